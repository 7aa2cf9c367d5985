// SPDX-License-Identifier: EPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/events"
	"github.com/ik5/audxfade/internal/playlist"
	"github.com/ik5/audxfade/output"
)

const renderBlock = 1024

var renderCmd = &cobra.Command{
	Use:   "render [files...]",
	Short: "Mix files into a WAV file",
	Long: `render runs the same decode and mix path as play but writes the result
to a WAV file. Mixing is paced at --speed times real time so crossfades land
where they would during playback.`,
	RunE: runRender,
}

func init() {
	addListFlags(renderCmd)
	renderCmd.Flags().StringP("output", "o", "out.wav", "output WAV file")
	renderCmd.Flags().Int("bits", 16, "output bit depth (8, 16, 24 or 32)")
	renderCmd.Flags().Float64("speed", 8, "render speed relative to real time")
	rootCmd.AddCommand(renderCmd)
}

// pacer slows a Renderer down to a fixed multiple of real time.
type pacer struct {
	src  output.Renderer
	wait time.Duration
}

func (p *pacer) Render(dst []audio.Frame) {
	p.src.Render(dst)
	time.Sleep(p.wait)
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	stopMetrics, err := serveMetrics(cfg.Metrics.Addr, logger)
	if err != nil {
		return err
	}
	defer stopMetrics()

	out, _ := cmd.Flags().GetString("output")
	bits, _ := cmd.Flags().GetInt("bits")
	speed, _ := cmd.Flags().GetFloat64("speed")
	if speed <= 0 {
		return fmt.Errorf("speed %v must be positive", speed)
	}

	eng, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	ps, err := passages(cmd, args, eng)
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	engCtx, stopEngine := context.WithCancel(gctx)
	defer stopEngine()

	started := eng.Subscribe(events.PassageStarted)
	var finished atomic.Bool
	seqDone := make(chan struct{})
	seq := playlist.New(eng, ps, playlist.WithLogger(logger))

	g.Go(func() error { return eng.Run(engCtx) })
	g.Go(func() error {
		defer close(seqDone)
		defer finished.Store(true)
		return seq.Run(engCtx)
	})

	// Skip the silence before the first passage is ready.
	select {
	case <-started:
	case <-seqDone:
	case <-gctx.Done():
	}
	eng.Unsubscribe(started)

	block := time.Duration(renderBlock) * time.Second / time.Duration(eng.SampleRate())
	src := &pacer{src: eng.Mixer(), wait: time.Duration(float64(block) / speed)}

	frames, rerr := output.WriteWAV(gctx, f, src, output.RenderOptions{
		SampleRate: eng.SampleRate(),
		BitDepth:   bits,
		Block:      renderBlock,
		Done:       finished.Load,
	})
	stopEngine()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if rerr != nil && !errors.Is(rerr, context.Canceled) {
		return rerr
	}

	logger.Info("render complete", "file", out, "frames", frames,
		"seconds", float64(frames)/float64(eng.SampleRate()))
	return nil
}
