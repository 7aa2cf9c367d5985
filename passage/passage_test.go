// SPDX-License-Identifier: EPL-2.0

package passage

import (
	"errors"
	"testing"

	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/timing"
)

func sec(s int64) int64 { return s * timing.TickRate }

func TestTiming_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		timing  Timing
		wantErr bool
	}{
		{name: "open ended", timing: Timing{Start: sec(1)}},
		{name: "full", timing: Timing{Start: sec(10), End: sec(20), FadeIn: sec(12), FadeOut: sec(18), LeadIn: sec(10), LeadOut: sec(19)}},
		{name: "negative start", timing: Timing{Start: -1}, wantErr: true},
		{name: "end before start", timing: Timing{Start: sec(5), End: sec(4)}, wantErr: true},
		{name: "fade in after fade out", timing: Timing{End: sec(10), FadeIn: sec(6), FadeOut: sec(5)}, wantErr: true},
		{name: "fade out after end", timing: Timing{End: sec(10), FadeOut: sec(11)}, wantErr: true},
		{name: "lead out before start", timing: Timing{Start: sec(3), LeadOut: sec(2)}, wantErr: true},
		{name: "fade out without end", timing: Timing{FadeOut: sec(100)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.timing.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTiming) {
				t.Errorf("error %v does not wrap ErrInvalidTiming", err)
			}
		})
	}
}

func TestTiming_MillisRoundTrip(t *testing.T) {
	t.Parallel()

	m := Millis{Start: 10000, End: 20000, FadeIn: 12000, FadeOut: 18000, LeadIn: 9000, LeadOut: 21000}
	tk := m.Ticks()
	if tk.FadeIn != 338_688_000 || tk.LeadOut != 592_704_000 {
		t.Errorf("Ticks() = %+v", tk)
	}
	if got := tk.Millis(); got != m {
		t.Errorf("round trip = %+v, want %+v", got, m)
	}
}

func TestTiming_Durations(t *testing.T) {
	t.Parallel()

	tm := Timing{Start: sec(10), FadeIn: sec(12), FadeOut: sec(18)}
	if _, err := tm.Duration(); !errors.Is(err, ErrUnknownEnd) {
		t.Errorf("Duration() without end = %v, want ErrUnknownEnd", err)
	}
	if _, err := tm.FadeOutDuration(); !errors.Is(err, ErrUnknownEnd) {
		t.Errorf("FadeOutDuration() without end = %v, want ErrUnknownEnd", err)
	}

	tm = tm.WithEnd(sec(20))
	if d, _ := tm.Duration(); d != sec(10) {
		t.Errorf("Duration() = %d", d)
	}
	if got := tm.FadeInDuration(); got != sec(2) {
		t.Errorf("FadeInDuration() = %d", got)
	}
	if d, _ := tm.FadeOutDuration(); d != sec(2) {
		t.Errorf("FadeOutDuration() = %d", d)
	}
}

func TestTiming_CrossfadePoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		timing Timing
		want   int64
		err    error
	}{
		{timing: Timing{End: sec(30), FadeOut: sec(25), LeadOut: sec(27)}, want: sec(27)},
		{timing: Timing{End: sec(30), FadeOut: sec(25)}, want: sec(25)},
		{timing: Timing{End: sec(30)}, want: sec(30)},
		{timing: Timing{}, err: ErrUnknownEnd},
	}
	for _, tt := range tests {
		got, err := tt.timing.CrossfadePoint()
		if !errors.Is(err, tt.err) || got != tt.want {
			t.Errorf("CrossfadePoint(%+v) = %d, %v; want %d, %v", tt.timing, got, err, tt.want, tt.err)
		}
	}
}

func TestPassage_Envelope(t *testing.T) {
	t.Parallel()

	p := Passage{
		Path:         "a.wav",
		Timing:       Timing{Start: sec(10), End: sec(20), FadeIn: sec(12), FadeOut: sec(17)},
		FadeInCurve:  audio.SCurve,
		FadeOutCurve: audio.Exponential,
	}
	env, err := p.Envelope(44100)
	if err != nil {
		t.Fatal(err)
	}

	want := audio.Envelope{
		FadeInFrames:  2 * 44100,
		FadeInCurve:   audio.SCurve,
		FadeOutStart:  7 * 44100,
		FadeOutFrames: 3 * 44100,
		FadeOutCurve:  audio.Exponential,
	}
	if env != want {
		t.Errorf("Envelope() = %+v, want %+v", env, want)
	}

	p.Timing.End = 0
	if _, err := p.Envelope(44100); !errors.Is(err, ErrUnknownEnd) {
		t.Errorf("Envelope() without end = %v", err)
	}

	odd := Passage{Path: "x", Timing: Timing{FadeIn: sec(1)}}
	if _, err := odd.Envelope(12345); !errors.Is(err, timing.ErrInvalidRate) {
		t.Errorf("Envelope(12345) = %v, want ErrInvalidRate", err)
	}
}

func TestTiming_FramesAt(t *testing.T) {
	t.Parallel()

	f, err := Timing{Start: sec(1), End: sec(3)}.FramesAt(48000)
	if err != nil {
		t.Fatal(err)
	}
	if f.Start != 48000 || f.End != 144000 || f.Count() != 96000 {
		t.Errorf("FramesAt = %+v", f)
	}

	f, _ = Timing{Start: sec(1)}.FramesAt(48000)
	if f.Count() != -1 {
		t.Errorf("open-ended Count() = %d, want -1", f.Count())
	}

	if _, err := (Timing{}).FramesAt(0); !errors.Is(err, timing.ErrInvalidRate) {
		t.Errorf("FramesAt(0) = %v", err)
	}
}

func TestPassage_Validate(t *testing.T) {
	t.Parallel()

	if err := (Passage{}).Validate(); !errors.Is(err, ErrInvalidTiming) {
		t.Errorf("empty path: %v", err)
	}
	if err := (Passage{Path: "a.ogg"}).Validate(); err != nil {
		t.Errorf("minimal passage: %v", err)
	}
}
