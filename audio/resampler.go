// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"io"

	"github.com/ik5/audxfade/utils"
)

// maxStalls bounds consecutive empty reads before a source is treated as
// stuck.
const maxStalls = 100

// Resampler streams from src to target sample rate using cubic interpolation.
// Works on interleaved samples; preserves channel count.
// Includes basic anti-aliasing filtering when downsampling.
type Resampler struct {
	src      Source
	dstRate  int
	ratio    float64 // source frames advanced per output frame
	channels int

	// Interpolation window: win[0] = t-1, win[1] = t0, win[2] = t+1, win[3] = t+2.
	// valid marks frames that came from the source rather than edge padding.
	win    [4][]float32
	valid  [4]bool
	primed bool

	// Fractional position between win[1] and win[2].
	pos float64

	// Batch read from the source.
	srcBuf []float32
	bufPos int
	bufLen int
	srcEOF bool
	stalls int

	useFilter    bool
	filterPrimed bool
	filterAlpha  float32
	filterState  []float32
}

func NewResampler(src Source, dstRate int) *Resampler {
	channels := max(src.Channels(), 1)
	ratio := float64(src.SampleRate()) / float64(dstRate)

	batch := max(src.BufSize()/channels, 1024)

	r := &Resampler{
		src:         src,
		dstRate:     dstRate,
		ratio:       ratio,
		channels:    channels,
		srcBuf:      make([]float32, batch*channels),
		useFilter:   ratio > 1.0,
		filterState: make([]float32, channels),
	}
	if r.useFilter {
		// One-pole low-pass; a coarse guard against aliasing.
		r.filterAlpha = 0.5
	}

	for i := range r.win {
		r.win[i] = make([]float32, channels)
	}

	return r
}

func (r *Resampler) SampleRate() int { return r.dstRate }
func (r *Resampler) Channels() int   { return r.channels }
func (r *Resampler) BufSize() int    { return r.src.BufSize() }

func (r *Resampler) Close() error {
	err := r.src.Close()
	if err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// pull copies the next source frame into frame. It reports false once the
// source is drained.
func (r *Resampler) pull(frame []float32) (bool, error) {
	for r.bufPos >= r.bufLen {
		if r.srcEOF {
			return false, nil
		}

		n, err := r.src.ReadSamples(r.srcBuf)
		r.bufPos = 0
		r.bufLen = n - n%r.channels

		switch {
		case err == io.EOF:
			r.srcEOF = true
		case err != nil:
			return false, fmt.Errorf("resampler read: %w", err)
		}

		if r.bufLen == 0 && !r.srcEOF {
			r.stalls++
			if r.stalls >= maxStalls {
				return false, io.ErrNoProgress
			}
			continue
		}
		r.stalls = 0
	}

	copy(frame, r.srcBuf[r.bufPos:r.bufPos+r.channels])
	r.bufPos += r.channels

	if r.useFilter {
		if !r.filterPrimed {
			// Start from the first sample to avoid a warm-up transient.
			copy(r.filterState, frame)
			r.filterPrimed = true
		}
		for c := range r.channels {
			// y[n] = alpha * x[n] + (1-alpha) * y[n-1]
			frame[c] = r.filterAlpha*frame[c] + (1-r.filterAlpha)*r.filterState[c]
			r.filterState[c] = frame[c]
		}
	}

	return true, nil
}

// fill loads slot i from the source, padding with the previous slot at EOF.
func (r *Resampler) fill(i int) error {
	ok, err := r.pull(r.win[i])
	if err != nil {
		return err
	}
	r.valid[i] = ok
	if !ok {
		copy(r.win[i], r.win[i-1])
	}
	return nil
}

func (r *Resampler) prime() error {
	r.primed = true

	if err := r.fill(1); err != nil {
		return err
	}
	copy(r.win[0], r.win[1])
	r.valid[0] = false

	if !r.valid[1] {
		return nil
	}
	if err := r.fill(2); err != nil {
		return err
	}
	return r.fill(3)
}

// advance slides the window one source frame forward.
func (r *Resampler) advance() error {
	r.win[0], r.win[1], r.win[2], r.win[3] = r.win[1], r.win[2], r.win[3], r.win[0]
	r.valid[0], r.valid[1], r.valid[2] = r.valid[1], r.valid[2], r.valid[3]
	if !r.valid[2] {
		// Already padding; keep padding without touching the source.
		copy(r.win[3], r.win[2])
		r.valid[3] = false
		return nil
	}
	return r.fill(3)
}

// ReadSamples produces dst samples at the destination rate.
// dst length should be a multiple of the channel count.
func (r *Resampler) ReadSamples(dst []float32) (int, error) {
	if len(dst)%r.channels != 0 {
		return 0, ErrInvalidDstSize
	}

	if !r.primed {
		if err := r.prime(); err != nil {
			return 0, err
		}
	}

	written := 0
	framesNeeded := len(dst) / r.channels

	for written < framesNeeded {
		for r.pos >= 1.0 {
			r.pos -= 1.0
			if err := r.advance(); err != nil {
				return written * r.channels, err
			}
		}

		if !r.valid[1] {
			if written == 0 {
				return 0, io.EOF
			}
			return written * r.channels, io.EOF
		}

		alpha := float32(r.pos)
		out := dst[written*r.channels : (written+1)*r.channels]
		for c := range r.channels {
			out[c] = utils.CubicInterpolate(r.win[0][c], r.win[1][c], r.win[2][c], r.win[3][c], alpha)
		}

		written++
		r.pos += r.ratio
	}

	return written * r.channels, nil
}
