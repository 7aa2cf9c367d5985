// SPDX-License-Identifier: EPL-2.0

package decoder

import (
	"errors"
	"fmt"
	"io"

	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/buffers"
	"github.com/ik5/audxfade/passage"
	"github.com/ik5/audxfade/timing"
)

// maxEmptyReads bounds consecutive reads that return nothing before the
// source is treated as stuck.
const maxEmptyReads = 100

// cursor is the open decode pipeline of one passage:
//
//	source -> seek to start -> resample -> stereo -> fade -> buffer
//
// Positions are frames at the working rate, relative to the passage start.
type cursor struct {
	raw  audio.Source
	pipe audio.Source
	env  audio.Envelope

	sourceRate int
	pos        int64
	// end is the passage length, -1 until the source runs out.
	end int64
	// endTicks is End of the timing the cursor decodes against.
	endTicks int64
	// discovered is set when endTicks came from probing the source.
	discovered bool

	buf     []float32
	pending []float32
	eof     bool
}

// openCursor opens p and positions it at the passage start.
func openCursor(open Opener, p passage.Passage, workRate, chunkFrames int) (*cursor, error) {
	src, err := open.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceOpenFailed, err)
	}

	c, err := newCursor(src, p, workRate, chunkFrames)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return c, nil
}

func newCursor(src audio.Source, p passage.Passage, workRate, chunkFrames int) (*cursor, error) {
	rate := src.SampleRate()
	if rate <= 0 || src.Channels() <= 0 {
		return nil, fmt.Errorf("%w: %d Hz, %d channels", ErrSourceOpenFailed, rate, src.Channels())
	}

	c := &cursor{
		raw:        src,
		sourceRate: rate,
		end:        -1,
		buf:        make([]float32, 2*chunkFrames),
	}

	tm := p.Timing
	if !tm.HasEnd() {
		if n := audio.FrameLength(src); n > 0 {
			end, err := timing.ApproxSamplesToTicks(n, rate)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrSourceOpenFailed, err)
			}
			if end <= tm.Start {
				return nil, fmt.Errorf("%w: start %d beyond file end %d", ErrDecodeFailed, tm.Start, end)
			}
			tm = tm.WithEnd(end)
			c.discovered = true
		}
	}
	c.endTicks = tm.End

	if tm.HasEnd() {
		n, err := timing.TicksToSamples(tm.End-tm.Start, workRate)
		if err != nil {
			return nil, err
		}
		c.end = n
	}

	// Fades need the end when there is a fade-out; without one the fade-out
	// is skipped.
	shaped := passage.Passage{Timing: tm, FadeInCurve: p.FadeInCurve, FadeOutCurve: p.FadeOutCurve}
	if !tm.HasEnd() {
		shaped.Timing.FadeOut = 0
	}
	env, err := shaped.Envelope(workRate)
	if err != nil {
		return nil, err
	}
	c.env = env

	startFrame, err := timing.ApproxTicksToSamples(tm.Start, rate)
	if err != nil {
		return nil, err
	}
	if _, err := audio.SeekOrSkip(src, startFrame); err != nil {
		return nil, fmt.Errorf("%w: seek to %d: %w", ErrDecodeFailed, startFrame, err)
	}

	var pipe audio.Source = src
	if rate != workRate {
		pipe = audio.NewResampler(pipe, workRate)
	}
	c.pipe = audio.NewStereoMixer(pipe)
	return c, nil
}

// fadeOutMissing reports whether a configured fade-out had to be dropped
// because the passage end was unknown.
func (c *cursor) fadeOutMissing(p passage.Passage) bool {
	return p.Timing.HasFadeOut() && c.end < 0
}

// flush pushes leftover samples from an earlier chunk and reports whether
// all of them were accepted.
func (c *cursor) flush(h *buffers.Handle) (int, bool) {
	if len(c.pending) == 0 {
		return 0, true
	}
	n := h.Push(c.pending)
	c.pending = c.pending[2*n:]
	return n, len(c.pending) == 0
}

// step decodes up to maxFrames frames, fades them and pushes them into h.
// Frames the buffer refuses are kept for the next call. It returns the
// number of frames pushed.
func (c *cursor) step(h *buffers.Handle, maxFrames int64) (int, error) {
	pushed, ok := c.flush(h)
	if !ok || c.eof {
		return pushed, nil
	}

	want := min(int64(len(c.buf)/2), maxFrames)
	if c.end >= 0 {
		want = min(want, c.end-c.pos)
	}
	if want <= 0 {
		c.eof = c.end >= 0 && c.pos >= c.end
		return pushed, nil
	}

	got, err := c.read(c.buf[:2*want])
	frames := int64(got / 2)
	if frames > 0 {
		chunk := c.buf[:got]
		c.env.Apply(chunk, c.pos)
		c.pos += frames

		n := h.Push(chunk)
		pushed += n
		if n < int(frames) {
			c.pending = append(c.pending[:0], chunk[2*n:]...)
		}
	}
	if err != nil {
		return pushed, err
	}
	if c.end >= 0 && c.pos >= c.end {
		c.eof = true
	}
	return pushed, nil
}

// read fills dst as far as the source allows. Reaching the end of the
// source sets eof.
func (c *cursor) read(dst []float32) (int, error) {
	filled := 0
	empty := 0
	for filled < len(dst) {
		n, err := c.pipe.ReadSamples(dst[filled:])
		filled += n
		if errors.Is(err, io.EOF) {
			c.eof = true
			return filled, nil
		}
		if err != nil {
			return filled, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
		}
		if n == 0 {
			empty++
			if empty >= maxEmptyReads {
				return filled, fmt.Errorf("%w: %w", ErrDecodeFailed, io.ErrNoProgress)
			}
			continue
		}
		empty = 0
	}
	return filled, nil
}

// done reports whether every frame of the passage has been pushed.
func (c *cursor) done() bool {
	return c.eof && len(c.pending) == 0
}

func (c *cursor) close() error {
	if c == nil || c.pipe == nil {
		return nil
	}
	err := c.pipe.Close()
	c.pipe = nil
	return err
}
