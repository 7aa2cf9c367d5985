// SPDX-License-Identifier: EPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ik5/audxfade"
	"github.com/ik5/audxfade/config"
	"github.com/ik5/audxfade/formats"
	"github.com/ik5/audxfade/internal/logging"
	"github.com/ik5/audxfade/internal/observe"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "audxfade",
	Short: "Gapless crossfading audio player",
	Long: `audxfade decodes a list of audio files ahead of playback and mixes them
with sample-accurate crossfades, either to the default audio device or to a
WAV file.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./audxfade.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().Int("sample-rate", 0, "working sample rate (default from config)")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("metrics.addr", rootCmd.PersistentFlags().Lookup("metrics-addr"))
}

func initConfig() {
	if verbose {
		viper.Set("logging.level", "debug")
	}
}

// setup loads the configuration and installs the process logger.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	if rate, _ := cmd.Flags().GetInt("sample-rate"); rate > 0 {
		viper.Set("sample_rate", rate)
	}

	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, logging.Setup(cfg.Logging.Level, cfg.Logging.Format), nil
}

// newEngine builds the engine with every bundled decoder.
func newEngine(cfg *config.Config, logger *slog.Logger) (*audxfade.Engine, error) {
	eng, err := audxfade.New(*cfg,
		audxfade.WithLogger(logger),
		audxfade.WithRegistry(formats.Default()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return eng, nil
}

// serveMetrics installs the Prometheus-backed meter provider and serves it
// on addr until the returned stop function is called. An empty addr does
// nothing.
func serveMetrics(addr string, logger *slog.Logger) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}

	handler, shutdown, err := observe.InitProvider()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "err", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = shutdown(ctx)
	}, nil
}
