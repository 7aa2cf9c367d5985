// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// fileSource ties a decoded Source to the file it reads from.
type fileSource struct {
	Source
	f *os.File
}

func (s *fileSource) Close() error {
	return errors.Join(s.Source.Close(), s.f.Close())
}

func (s *fileSource) Length() int64 {
	if l, ok := s.Source.(Lengther); ok {
		return l.Length()
	}
	return -1
}

func (s *fileSource) SeekFrame(frame int64) error {
	if sk, ok := s.Source.(Seeker); ok {
		return sk.SeekFrame(frame)
	}
	return ErrNotSeekable
}

// OpenFile opens path and decodes it with the decoder registered for its
// extension. Closing the returned Source closes the file.
func OpenFile(reg *Registry, path string) (Source, error) {
	dec, err := reg.Lookup(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	src, err := dec.Decode(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if src.Channels() <= 0 {
		_ = src.Close()
		_ = f.Close()
		return nil, fmt.Errorf("decode %s: %w", path, ErrNoChannels)
	}

	return &fileSource{Source: src, f: f}, nil
}

// FrameLength returns the length of src in frames, or -1 when src cannot
// tell.
func FrameLength(src Source) int64 {
	if l, ok := src.(Lengther); ok {
		return l.Length()
	}
	return -1
}

// SkipFrames reads and discards up to n frames from src. It returns the
// number of frames skipped, which is short only when the source ends.
func SkipFrames(src Source, n int64) (int64, error) {
	channels := src.Channels()
	if channels <= 0 {
		return 0, ErrNoChannels
	}

	buf := make([]float32, 4096*channels)
	var skipped int64
	stalls := 0
	for skipped < n {
		want := min(n-skipped, int64(len(buf)/channels))
		got, err := src.ReadSamples(buf[:want*int64(channels)])
		skipped += int64(got / channels)
		if errors.Is(err, io.EOF) {
			return skipped, nil
		}
		if err != nil {
			return skipped, fmt.Errorf("skip: %w", err)
		}
		if got == 0 {
			stalls++
			if stalls >= maxStalls {
				return skipped, io.ErrNoProgress
			}
			continue
		}
		stalls = 0
	}
	return skipped, nil
}

// SeekOrSkip positions src at frame, seeking when the source supports it
// and decoding forward otherwise. It returns the frame reached.
func SeekOrSkip(src Source, frame int64) (int64, error) {
	if frame <= 0 {
		return 0, nil
	}
	if sk, ok := src.(Seeker); ok {
		err := sk.SeekFrame(frame)
		if err == nil {
			return frame, nil
		}
		if !errors.Is(err, ErrNotSeekable) {
			return 0, fmt.Errorf("seek to frame %d: %w", frame, err)
		}
	}
	return SkipFrames(src, frame)
}
