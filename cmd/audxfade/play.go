// SPDX-License-Identifier: EPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ik5/audxfade/internal/playlist"
	"github.com/ik5/audxfade/output"
)

var playCmd = &cobra.Command{
	Use:   "play [files...]",
	Short: "Play files on the default audio device",
	RunE:  runPlay,
}

func init() {
	addListFlags(playCmd)
	playCmd.Flags().Float32("volume", 1, "master volume (0 to 1)")
	playCmd.Flags().Int("lookahead", playlist.DefaultLookahead, "entries to prefetch past the next one")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	stopMetrics, err := serveMetrics(cfg.Metrics.Addr, logger)
	if err != nil {
		return err
	}
	defer stopMetrics()

	eng, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	if cmd.Flags().Changed("volume") {
		v, _ := cmd.Flags().GetFloat32("volume")
		eng.SetVolume(v)
	}

	ps, err := passages(cmd, args, eng)
	if err != nil {
		return err
	}

	pump, err := eng.NewPump()
	if err != nil {
		return err
	}
	pump.Fill()

	sink, err := output.NewOtoSink(eng.SampleRate(), pump, cfg.Output.Latency)
	if err != nil {
		return err
	}
	defer sink.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	engCtx, stopEngine := context.WithCancel(gctx)
	defer stopEngine()

	lookahead, _ := cmd.Flags().GetInt("lookahead")
	seq := playlist.New(eng, ps, playlist.WithLogger(logger), playlist.WithLookahead(lookahead))

	g.Go(func() error { return eng.Run(engCtx) })
	g.Go(func() error { return pump.Run(engCtx) })
	g.Go(func() error {
		defer stopEngine()
		if err := seq.Run(gctx); err != nil {
			return err
		}
		// Let the device drain what is already buffered.
		select {
		case <-time.After(cfg.Output.Buffer + cfg.Output.Latency):
		case <-gctx.Done():
		}
		return nil
	})

	sink.Play()

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if serr := sink.Err(); err == nil && serr != nil {
		err = fmt.Errorf("audio device: %w", serr)
	}

	st := eng.Status()
	logger.Info("playback stopped",
		"rendered", st.Rendered,
		"crossfades", st.Crossfades,
		"mixer_underruns", st.Underruns,
		"output_underruns", pump.Underruns(),
	)
	return err
}
