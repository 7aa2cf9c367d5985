// SPDX-License-Identifier: EPL-2.0

package timing

import (
	"errors"
	"testing"
	"time"
)

func TestTickRateDividesSupportedRates(t *testing.T) {
	t.Parallel()

	for _, rate := range SupportedRates {
		if TickRate%int64(rate) != 0 {
			t.Errorf("TickRate %% %d = %d, want 0", rate, TickRate%int64(rate))
		}

		tps, err := TicksPerSample(rate)
		if err != nil {
			t.Fatalf("TicksPerSample(%d) error = %v", rate, err)
		}
		if tps*int64(rate) != TickRate {
			t.Errorf("TicksPerSample(%d) = %d, want %d", rate, tps, TickRate/int64(rate))
		}
	}
}

func TestTicksToSamples(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		ticks int64
		rate  int
		want  int64
	}{
		{name: "one second at 44.1kHz", ticks: 28_224_000, rate: 44100, want: 44100},
		{name: "three second crossfade at 48kHz", ticks: 84_672_000, rate: 48000, want: 144000},
		{name: "zero", ticks: 0, rate: 8000, want: 0},
		{name: "negative second", ticks: -28_224_000, rate: 96000, want: -96000},
		{name: "truncates partial sample", ticks: 641, rate: 44100, want: 1},
		{name: "truncates negative partial sample toward zero", ticks: -641, rate: 44100, want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := TicksToSamples(tt.ticks, tt.rate)
			if err != nil {
				t.Fatalf("TicksToSamples() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("TicksToSamples(%d, %d) = %d, want %d", tt.ticks, tt.rate, got, tt.want)
			}
		})
	}
}

func TestSampleRoundTrip(t *testing.T) {
	t.Parallel()

	for _, rate := range SupportedRates {
		tps, _ := TicksPerSample(rate)
		for _, n := range []int64{-123_457, -1, 0, 1, 7, 44_100, 10_000_003} {
			ticks := n * tps

			samples, err := TicksToSamples(ticks, rate)
			if err != nil {
				t.Fatalf("TicksToSamples() error = %v", err)
			}
			back, err := SamplesToTicks(samples, rate)
			if err != nil {
				t.Fatalf("SamplesToTicks() error = %v", err)
			}
			if back != ticks {
				t.Errorf("rate %d: round trip of %d ticks gave %d", rate, ticks, back)
			}
		}
	}
}

func TestInvalidRate(t *testing.T) {
	t.Parallel()

	for _, rate := range []int{0, -44100, 1, 37800, 50000} {
		if _, err := TicksToSamples(1000, rate); !errors.Is(err, ErrInvalidRate) {
			t.Errorf("TicksToSamples(_, %d) error = %v, want ErrInvalidRate", rate, err)
		}
		if _, err := SamplesToTicks(1000, rate); !errors.Is(err, ErrInvalidRate) {
			t.Errorf("SamplesToTicks(_, %d) error = %v, want ErrInvalidRate", rate, err)
		}
		if IsSupportedRate(rate) {
			t.Errorf("IsSupportedRate(%d) = true, want false", rate)
		}
	}
}

func TestMilliseconds(t *testing.T) {
	t.Parallel()

	if got := MsToTicks(1000); got != TickRate {
		t.Errorf("MsToTicks(1000) = %d, want %d", got, TickRate)
	}
	if got := MsToTicks(-5); got != -5*TicksPerMs {
		t.Errorf("MsToTicks(-5) = %d, want %d", got, -5*TicksPerMs)
	}
	if got := TicksToMs(TicksPerMs*3 + TicksPerMs - 1); got != 3 {
		t.Errorf("TicksToMs() = %d, want 3 (truncation)", got)
	}
	if got := TicksToMs(-(TicksPerMs*3 + 1)); got != -3 {
		t.Errorf("TicksToMs() = %d, want -3 (truncation toward zero)", got)
	}
	for ms := int64(-2000); ms <= 2000; ms += 7 {
		if got := TicksToMs(MsToTicks(ms)); got != ms {
			t.Fatalf("TicksToMs(MsToTicks(%d)) = %d", ms, got)
		}
	}
}

func TestApproxSamplesToTicks(t *testing.T) {
	t.Parallel()

	got, err := ApproxSamplesToTicks(37800, 37800)
	if err != nil {
		t.Fatalf("ApproxSamplesToTicks() error = %v", err)
	}
	if got != TickRate {
		t.Errorf("ApproxSamplesToTicks(37800, 37800) = %d, want %d", got, TickRate)
	}

	if _, err := ApproxSamplesToTicks(1, 0); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("ApproxSamplesToTicks(_, 0) error = %v, want ErrInvalidRate", err)
	}
}

func TestDurationConversions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d     time.Duration
		ticks int64
	}{
		{d: time.Second, ticks: TickRate},
		{d: 3 * time.Second, ticks: 84_672_000},
		{d: time.Millisecond, ticks: TicksPerMs},
		{d: -1500 * time.Millisecond, ticks: -42_336_000},
		{d: 0, ticks: 0},
	}

	for _, tt := range tests {
		if got := DurationToTicks(tt.d); got != tt.ticks {
			t.Errorf("DurationToTicks(%v) = %d, want %d", tt.d, got, tt.ticks)
		}
		if got := TicksToDuration(tt.ticks); got != tt.d {
			t.Errorf("TicksToDuration(%d) = %v, want %v", tt.ticks, got, tt.d)
		}
	}

	if got := TicksToSeconds(TickRate / 2); got != 0.5 {
		t.Errorf("TicksToSeconds() = %v, want 0.5", got)
	}
	if got := SecondsToTicks(2.5); got != 70_560_000 {
		t.Errorf("SecondsToTicks(2.5) = %d, want 70560000", got)
	}
}

func BenchmarkTicksToSamples(b *testing.B) {
	b.ReportAllocs()
	var sink int64
	for i := range b.N {
		sink, _ = TicksToSamples(int64(i)*640, 44100)
	}
	_ = sink
}
