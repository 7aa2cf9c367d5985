// SPDX-License-Identifier: EPL-2.0

package audiotest

import (
	"errors"
	"io"
	"math"
	"sync/atomic"
	"time"
)

// ErrInjected is returned by sources built with FailAfter.
var ErrInjected = errors.New("injected read failure")

// MockSource is a test helper that generates audio data for testing.
// It implements audio.Source, audio.Lengther and audio.Seeker without
// importing the audio package.
type MockSource struct {
	sampleRate   int
	channels     int
	totalSamples int // Total samples to generate (per channel)
	generated    int // Samples generated so far (per channel)
	waveform     func(sample int, channel int) float32

	failAt  int // fail once generated reaches this frame; <0 disables
	maxRead int // cap on frames per read; 0 means no cap
	unsized bool
	delay   time.Duration
	closed  atomic.Bool
}

// NewMockSource creates a new mock audio source.
// totalSamples is the total number of samples per channel to generate.
// waveform is a function that generates sample values given sample index and channel.
func NewMockSource(sampleRate, channels, totalSamples int, waveform func(sample int, channel int) float32) *MockSource {
	return &MockSource{
		sampleRate:   sampleRate,
		channels:     channels,
		totalSamples: totalSamples,
		waveform:     waveform,
		failAt:       -1,
	}
}

// NewSilentSource creates a mock source that generates silence (all zeros).
func NewSilentSource(sampleRate, channels, totalSamples int) *MockSource {
	return NewMockSource(sampleRate, channels, totalSamples, func(int, int) float32 {
		return 0.0
	})
}

// NewSineSource creates a mock source that generates a sine wave.
func NewSineSource(sampleRate, channels, totalSamples int, frequency float64) *MockSource {
	return NewMockSource(sampleRate, channels, totalSamples, func(sample int, _ int) float32 {
		t := float64(sample) / float64(sampleRate)
		return float32(math.Sin(2 * math.Pi * frequency * t))
	})
}

// NewConstantSource creates a mock source with constant value.
func NewConstantSource(sampleRate, channels, totalSamples int, value float32) *MockSource {
	return NewMockSource(sampleRate, channels, totalSamples, func(int, int) float32 {
		return value
	})
}

// NewRampSource creates a source whose sample value is its frame index, so
// tests can tell exactly which frames came out. Channel c adds c*0.5.
func NewRampSource(sampleRate, channels, totalSamples int) *MockSource {
	return NewMockSource(sampleRate, channels, totalSamples, func(sample int, channel int) float32 {
		return float32(sample) + float32(channel)*0.5
	})
}

// FailAfter makes ReadSamples return ErrInjected once frame has been
// generated.
func (m *MockSource) FailAfter(frame int) *MockSource {
	m.failAt = frame
	return m
}

// LimitRead caps the number of frames returned by a single read.
func (m *MockSource) LimitRead(frames int) *MockSource {
	m.maxRead = frames
	return m
}

// Unsized makes Length report -1, like a stream without a length header.
func (m *MockSource) Unsized() *MockSource {
	m.unsized = true
	return m
}

// Delay makes every read sleep for d.
func (m *MockSource) Delay(d time.Duration) *MockSource {
	m.delay = d
	return m
}

func (m *MockSource) SampleRate() int { return m.sampleRate }
func (m *MockSource) Channels() int   { return m.channels }
func (m *MockSource) BufSize() int    { return 4096 }

func (m *MockSource) Length() int64 {
	if m.unsized {
		return -1
	}
	return int64(m.totalSamples)
}

func (m *MockSource) Close() error {
	m.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (m *MockSource) Closed() bool { return m.closed.Load() }

// Position returns the number of frames generated so far.
func (m *MockSource) Position() int { return m.generated }

// SeekFrame moves the read position to frame.
func (m *MockSource) SeekFrame(frame int64) error {
	m.generated = int(min(max(frame, 0), int64(m.totalSamples)))
	return nil
}

// Reset resets the generated sample counter to allow re-reading
func (m *MockSource) Reset() {
	m.generated = 0
}

func (m *MockSource) ReadSamples(dst []float32) (int, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.failAt >= 0 && m.generated >= m.failAt {
		return 0, ErrInjected
	}
	if m.generated >= m.totalSamples {
		return 0, io.EOF
	}

	framesToWrite := min(len(dst)/m.channels, m.totalSamples-m.generated)
	if m.maxRead > 0 {
		framesToWrite = min(framesToWrite, m.maxRead)
	}
	if m.failAt >= 0 {
		framesToWrite = min(framesToWrite, m.failAt-m.generated)
	}

	for frame := range framesToWrite {
		sampleIndex := m.generated + frame
		for ch := range m.channels {
			dst[frame*m.channels+ch] = m.waveform(sampleIndex, ch)
		}
	}

	m.generated += framesToWrite
	samplesWritten := framesToWrite * m.channels

	if m.generated >= m.totalSamples {
		return samplesWritten, io.EOF
	}

	return samplesWritten, nil
}
