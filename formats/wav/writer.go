// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/ik5/audxfade/utils"
)

// Writer streams interleaved float32 samples into an integer PCM WAV file.
// The header sizes are patched on Close, so the destination must seek.
type Writer struct {
	enc      *wav.Encoder
	buf      *goaudio.IntBuffer
	bitDepth int
	channels int
	frames   int64
}

// NewWriter starts a WAV stream on w. bitDepth must be 16 or 24.
func NewWriter(w io.WriteSeeker, sampleRate, channels, bitDepth int) (*Writer, error) {
	if bitDepth != 16 && bitDepth != 24 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("wav writer: invalid channel count %d", channels)
	}

	return &Writer{
		enc: wav.NewEncoder(w, sampleRate, bitDepth, channels, formatPCM),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
		bitDepth: bitDepth,
		channels: channels,
	}, nil
}

// Write appends interleaved samples. len(samples) must be a multiple of the
// channel count.
func (w *Writer) Write(samples []float32) error {
	if len(samples)%w.channels != 0 {
		return fmt.Errorf("wav writer: %d samples is not a whole number of frames", len(samples))
	}
	if len(samples) == 0 {
		return nil
	}

	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	for i, v := range samples {
		w.buf.Data[i] = utils.Float32ToPCM(v, w.bitDepth)
	}

	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("wav write: %w", err)
	}
	w.frames += int64(len(samples) / w.channels)
	return nil
}

// Frames returns the number of frames written so far.
func (w *Writer) Frames() int64 { return w.frames }

// Close finalizes the header. It does not close the underlying writer.
func (w *Writer) Close() error {
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("wav close: %w", err)
	}
	return nil
}

// WriteWAV16 writes a complete 16-bit PCM WAV with the given channel count.
func WriteWAV16(w io.WriteSeeker, sampleRate, channels int, samples []float32) error {
	ww, err := NewWriter(w, sampleRate, channels, 16)
	if err != nil {
		return err
	}
	if err := ww.Write(samples); err != nil {
		return err
	}
	return ww.Close()
}
