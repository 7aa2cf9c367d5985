// SPDX-License-Identifier: EPL-2.0

package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoSink plays a Float32LE stereo stream on the default audio device.
// oto allows one context per process, so only one sink may exist.
type OtoSink struct {
	mu     sync.Mutex
	ctx    *oto.Context
	player *oto.Player
	closed bool
}

// NewOtoSink opens the audio device at rate and attaches src. latency is the
// device buffer size; zero lets oto choose.
func NewOtoSink(rate int, src io.Reader, latency time.Duration) (*OtoSink, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   latency,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	return &OtoSink{ctx: ctx, player: ctx.NewPlayer(src)}, nil
}

// Play starts or continues playback.
func (s *OtoSink) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.player.Play()
	}
}

// Pause stops pulling from the stream.
func (s *OtoSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.player.Pause()
	}
}

// Err reports a device error, if any.
func (s *OtoSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.player.Err()
}

// Close releases the player. Safe to call more than once.
func (s *OtoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.player.Close()
}
