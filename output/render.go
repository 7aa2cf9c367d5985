// SPDX-License-Identifier: EPL-2.0

package output

import (
	"context"
	"fmt"
	"io"

	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/formats/wav"
)

const defaultBlock = 4096

// RenderOptions controls WriteWAV.
type RenderOptions struct {
	SampleRate int
	// BitDepth is 16 or 24; zero means 16.
	BitDepth int
	// Block is the number of frames rendered per step; zero means 4096.
	Block int
	// MaxFrames caps the output; zero means no cap.
	MaxFrames int64
	// Done is polled between blocks and ends the render when it returns
	// true. Without Done or MaxFrames the render only stops on ctx.
	Done func() bool
}

// WriteWAV renders from src into a stereo WAV file on w and returns the
// number of frames written.
func WriteWAV(ctx context.Context, w io.WriteSeeker, src Renderer, opts RenderOptions) (int64, error) {
	depth := opts.BitDepth
	if depth == 0 {
		depth = 16
	}
	block := opts.Block
	if block <= 0 {
		block = defaultBlock
	}

	ww, err := wav.NewWriter(w, opts.SampleRate, 2, depth)
	if err != nil {
		return 0, err
	}

	frames := make([]audio.Frame, block)
	samples := make([]float32, 2*block)
	var total int64

	for {
		if err := ctx.Err(); err != nil {
			_ = ww.Close()
			return total, err
		}
		if opts.Done != nil && opts.Done() {
			break
		}
		n := block
		if opts.MaxFrames > 0 {
			left := opts.MaxFrames - total
			if left <= 0 {
				break
			}
			n = int(min(int64(n), left))
		}

		src.Render(frames[:n])
		k := audio.Interleave(samples, frames[:n])
		if err := ww.Write(samples[:k]); err != nil {
			_ = ww.Close()
			return total, fmt.Errorf("render: %w", err)
		}
		total += int64(n)
	}

	if err := ww.Close(); err != nil {
		return total, err
	}
	return total, nil
}
