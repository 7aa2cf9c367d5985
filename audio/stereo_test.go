// SPDX-License-Identifier: EPL-2.0

package audio_test

import (
	"errors"
	"io"
	"testing"

	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/internal/audiotest"
)

func TestStereoMixer_Layouts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		channels  int
		waveform  func(sample, channel int) float32
		wantLeft  float32
		wantRight float32
	}{
		{
			name:      "mono duplicates",
			channels:  1,
			waveform:  func(int, int) float32 { return 0.4 },
			wantLeft:  0.4,
			wantRight: 0.4,
		},
		{
			name:      "stereo passes through",
			channels:  2,
			waveform:  func(_, c int) float32 { return []float32{0.1, -0.2}[c] },
			wantLeft:  0.1,
			wantRight: -0.2,
		},
		{
			name:      "three channels",
			channels:  3,
			waveform:  func(_, c int) float32 { return []float32{0.2, 0.5, 0.4}[c] },
			wantLeft:  0.3,
			wantRight: 0.5,
		},
		{
			name:      "5.1 layout",
			channels:  6,
			waveform:  func(_, c int) float32 { return float32(c) * 0.1 },
			wantLeft:  0.2, // (0 + 0.2 + 0.4) / 3
			wantRight: 0.3, // (0.1 + 0.3 + 0.5) / 3
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := audiotest.NewMockSource(44100, tt.channels, 64, tt.waveform)
			m := audio.NewStereoMixer(src)
			if m.Channels() != 2 {
				t.Fatalf("Channels() = %d, want 2", m.Channels())
			}

			buf := make([]float32, 32)
			n, err := m.ReadSamples(buf)
			if err != nil {
				t.Fatalf("ReadSamples() error = %v", err)
			}
			if n != 32 {
				t.Fatalf("ReadSamples() = %d, want 32", n)
			}
			for f := 0; f < n/2; f++ {
				if !near(buf[2*f], tt.wantLeft, 1e-6) || !near(buf[2*f+1], tt.wantRight, 1e-6) {
					t.Fatalf("frame %d = (%v, %v), want (%v, %v)", f, buf[2*f], buf[2*f+1], tt.wantLeft, tt.wantRight)
				}
			}
		})
	}
}

func TestStereoMixer_EOFAndErrors(t *testing.T) {
	t.Parallel()

	m := audio.NewStereoMixer(audiotest.NewConstantSource(8000, 1, 5, 1))

	if _, err := m.ReadSamples(make([]float32, 3)); !errors.Is(err, audio.ErrInvalidDstSize) {
		t.Errorf("odd dst error = %v, want ErrInvalidDstSize", err)
	}

	buf := make([]float32, 64)
	n, err := m.ReadSamples(buf)
	if n != 10 {
		t.Errorf("ReadSamples() = %d, want 10", n)
	}
	if err != io.EOF {
		t.Errorf("ReadSamples() error = %v, want io.EOF with final data", err)
	}
	if n, err := m.ReadSamples(buf); n != 0 || err != io.EOF {
		t.Errorf("ReadSamples() after end = %d, %v", n, err)
	}
}

func BenchmarkStereoMixer_Surround(b *testing.B) {
	src := audiotest.NewSineSource(48000, 6, 1<<30, 440)
	m := audio.NewStereoMixer(src)
	buf := make([]float32, 4096)

	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		if _, err := m.ReadSamples(buf); err != nil {
			b.Fatal(err)
		}
	}
}
