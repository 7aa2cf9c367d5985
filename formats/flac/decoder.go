// SPDX-License-Identifier: EPL-2.0

package flac

import (
	"fmt"
	"io"

	"github.com/gopxl/beep/v2"
	beepflac "github.com/gopxl/beep/v2/flac"
	"github.com/ik5/audxfade/audio"
)

// beep streams always carry two channels; mono input is duplicated.
const channels = 2

type source struct {
	stream     beep.StreamSeekCloser
	sampleRate int
	seekable   bool
	pairs      [][2]float64
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return channels }
func (s *source) BufSize() int    { return cap(s.pairs) * channels }

func (s *source) Close() error {
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("flac close: %w", err)
	}
	return nil
}

// Length returns the number of frames declared in STREAMINFO, or -1 when
// the encoder left it unset.
func (s *source) Length() int64 {
	if l := s.stream.Len(); l > 0 {
		return int64(l)
	}
	return -1
}

func (s *source) SeekFrame(frame int64) error {
	if !s.seekable {
		return audio.ErrNotSeekable
	}
	if err := s.stream.Seek(int(frame)); err != nil {
		return fmt.Errorf("flac seek: %w", err)
	}
	return nil
}

func (s *source) ReadSamples(dst []float32) (int, error) {
	frames := len(dst) / channels
	if frames == 0 {
		return 0, nil
	}
	if cap(s.pairs) < frames {
		s.pairs = make([][2]float64, frames)
	}
	s.pairs = s.pairs[:frames]

	n, ok := s.stream.Stream(s.pairs)
	for i := range n {
		dst[2*i] = float32(s.pairs[i][0])
		dst[2*i+1] = float32(s.pairs[i][1])
	}

	if !ok {
		if err := s.stream.Err(); err != nil {
			return n * channels, fmt.Errorf("flac read: %w", err)
		}
		return n * channels, io.EOF
	}
	return n * channels, nil
}

// noClose keeps beep from closing a reader the caller owns.
type noClose struct {
	io.ReadSeeker
}

type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	in := r
	rs, seekable := r.(io.ReadSeeker)
	if seekable {
		in = noClose{rs}
	} else {
		in = io.NopCloser(r)
	}

	stream, format, err := beepflac.Decode(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFlacFile, err)
	}

	return &source{
		stream:     stream,
		sampleRate: int(format.SampleRate),
		seekable:   seekable,
		pairs:      make([][2]float64, 4096),
	}, nil
}
