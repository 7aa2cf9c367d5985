// SPDX-License-Identifier: EPL-2.0

package playlist

import (
	"strings"
	"testing"
	"time"

	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/timing"
)

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	pl, err := LoadFromReader(strings.NewReader(`
crossfade: 2s
curve: s-curve
items:
  - path: intro.flac
    end: 30s
  - path: song.mp3
    start: 1.5s
    end: 20s
    fade_out: 4s
    fade_out_curve: equal-power
`))
	if err != nil {
		t.Fatal(err)
	}
	if pl.Crossfade != 2*time.Second || pl.Curve != audio.SCurve || len(pl.Items) != 2 {
		t.Fatalf("LoadFromReader() = %+v", pl)
	}

	p, err := pl.Passage(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Timing.FadeIn != timing.MsToTicks(2000) || p.Timing.FadeOut != timing.MsToTicks(28_000) {
		t.Errorf("item 0 timing = %+v", p.Timing)
	}
	if p.FadeInCurve != audio.SCurve {
		t.Errorf("item 0 fade-in curve = %v", p.FadeInCurve)
	}

	p, err = pl.Passage(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Timing.Start != timing.MsToTicks(1500) || p.Timing.FadeIn != 0 {
		t.Errorf("item 1 timing = %+v", p.Timing)
	}
	if p.Timing.FadeOut != timing.MsToTicks(16_000) || p.FadeOutCurve != audio.EqualPower {
		t.Errorf("item 1 fade-out = %d %v", p.Timing.FadeOut, p.FadeOutCurve)
	}
}

func TestLoadRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown field", doc: "items:\n  - path: a.wav\n    volume: 3\n"},
		{name: "no items", doc: "crossfade: 1s\n"},
		{name: "no path", doc: "items:\n  - end: 3s\n"},
		{name: "end before start", doc: "items:\n  - path: a.wav\n    start: 5s\n    end: 2s\n"},
		{name: "bad curve", doc: "curve: wobbly\nitems:\n  - path: a.wav\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := LoadFromReader(strings.NewReader(tt.doc)); err == nil {
				t.Fatal("LoadFromReader() = nil error")
			}
		})
	}
}

func TestPassageUsesLength(t *testing.T) {
	t.Parallel()

	pl := FromPaths([]string{"a.wav", "b.wav"}, 3*time.Second, audio.Linear)
	if !pl.NeedsLength(0) {
		t.Fatal("NeedsLength() = false for a crossfaded whole file")
	}

	p, err := pl.Passage(0, timing.MsToTicks(4000))
	if err != nil {
		t.Fatal(err)
	}
	// Fades are capped at half of the four seconds.
	if p.Timing.End != timing.MsToTicks(4000) ||
		p.Timing.FadeIn != timing.MsToTicks(2000) ||
		p.Timing.FadeOut != timing.MsToTicks(2000) {
		t.Fatalf("timing = %+v", p.Timing)
	}

	plain := FromPaths([]string{"a.wav"}, 0, audio.Linear)
	if plain.NeedsLength(0) {
		t.Fatal("NeedsLength() = true without fades")
	}
	p, err = plain.Passage(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Timing.End != 0 || p.Timing.FadeIn != 0 || p.Timing.FadeOut != 0 {
		t.Fatalf("timing = %+v", p.Timing)
	}
}
