// SPDX-License-Identifier: EPL-2.0

package playlist

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/passage"
	"github.com/ik5/audxfade/timing"
)

// File is a playlist document.
//
//	crossfade: 2s
//	curve: s-curve
//	items:
//	  - path: intro.flac
//	    end: 30s
//	  - path: song.mp3
//	    start: 1.5s
//	    fade_out: 4s
type File struct {
	// Crossfade is applied as fade-in and fade-out to items that set
	// neither.
	Crossfade time.Duration   `yaml:"crossfade"`
	Curve     audio.FadeCurve `yaml:"curve"`
	Items     []Item          `yaml:"items"`
}

// Item is one playlist line. Times are offsets: Start, End, LeadIn and
// LeadOut from the file start, FadeIn from Start and FadeOut back from End.
type Item struct {
	Path         string           `yaml:"path"`
	Start        time.Duration    `yaml:"start"`
	End          time.Duration    `yaml:"end"`
	FadeIn       time.Duration    `yaml:"fade_in"`
	FadeOut      time.Duration    `yaml:"fade_out"`
	LeadIn       time.Duration    `yaml:"lead_in"`
	LeadOut      time.Duration    `yaml:"lead_out"`
	FadeInCurve  *audio.FadeCurve `yaml:"fade_in_curve"`
	FadeOutCurve *audio.FadeCurve `yaml:"fade_out_curve"`
}

// Load reads and validates the playlist at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("playlist: open %q: %w", path, err)
	}
	defer f.Close()

	pl, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("playlist: parse %q: %w", path, err)
	}
	return pl, nil
}

// LoadFromReader decodes a YAML playlist from r and validates it.
func LoadFromReader(r io.Reader) (*File, error) {
	pl := &File{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(pl); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := pl.Validate(); err != nil {
		return nil, err
	}
	return pl, nil
}

// Validate reports every malformed item.
func (pl *File) Validate() error {
	var errs []error
	if pl.Crossfade < 0 {
		errs = append(errs, fmt.Errorf("crossfade %v is negative", pl.Crossfade))
	}
	if len(pl.Items) == 0 {
		errs = append(errs, errors.New("no items"))
	}
	for i, it := range pl.Items {
		if it.Path == "" {
			errs = append(errs, fmt.Errorf("items[%d]: path is required", i))
		}
		for _, f := range []struct {
			name string
			d    time.Duration
		}{
			{"start", it.Start}, {"end", it.End}, {"fade_in", it.FadeIn},
			{"fade_out", it.FadeOut}, {"lead_in", it.LeadIn}, {"lead_out", it.LeadOut},
		} {
			if f.d < 0 {
				errs = append(errs, fmt.Errorf("items[%d]: %s %v is negative", i, f.name, f.d))
			}
		}
		if it.End > 0 && it.End <= it.Start {
			errs = append(errs, fmt.Errorf("items[%d]: end %v not after start %v", i, it.End, it.Start))
		}
	}
	return errors.Join(errs...)
}

// FromPaths builds a playlist of whole files.
func FromPaths(paths []string, crossfade time.Duration, curve audio.FadeCurve) *File {
	pl := &File{Crossfade: crossfade, Curve: curve}
	for _, p := range paths {
		pl.Items = append(pl.Items, Item{Path: p})
	}
	return pl
}

// NeedsLength reports whether Passage needs the file length: a fade-out is
// measured back from an end that was not given.
func (pl *File) NeedsLength(i int) bool {
	it := pl.Items[i]
	return it.End == 0 && (it.FadeOut > 0 || (pl.Crossfade > 0 && it.FadeIn == 0 && it.FadeOut == 0))
}

// Passage resolves item i into ticks. length is the file length in ticks,
// used when the item has no End; pass 0 when unknown.
func (pl *File) Passage(i int, length int64) (passage.Passage, error) {
	it := pl.Items[i]

	fadeIn, fadeOut := it.FadeIn, it.FadeOut
	if fadeIn == 0 && fadeOut == 0 {
		fadeIn, fadeOut = pl.Crossfade, pl.Crossfade
	}

	p := passage.Passage{
		Path:         it.Path,
		FadeInCurve:  pl.Curve,
		FadeOutCurve: pl.Curve,
	}
	if it.FadeInCurve != nil {
		p.FadeInCurve = *it.FadeInCurve
	}
	if it.FadeOutCurve != nil {
		p.FadeOutCurve = *it.FadeOutCurve
	}

	t := passage.Timing{
		Start:   timing.DurationToTicks(it.Start),
		End:     timing.DurationToTicks(it.End),
		LeadIn:  timing.DurationToTicks(it.LeadIn),
		LeadOut: timing.DurationToTicks(it.LeadOut),
	}
	if t.End == 0 {
		t.End = length
	}

	// Long fades are shortened to half the passage so they never cross.
	if t.End > 0 {
		half := (t.End - t.Start) / 2
		in := min(timing.DurationToTicks(fadeIn), half)
		out := min(timing.DurationToTicks(fadeOut), half)
		if in > 0 {
			t.FadeIn = t.Start + in
		}
		if out > 0 {
			t.FadeOut = t.End - out
		}
	} else if fadeIn > 0 {
		t.FadeIn = t.Start + timing.DurationToTicks(fadeIn)
	}

	p.Timing = t
	if err := p.Validate(); err != nil {
		return passage.Passage{}, fmt.Errorf("items[%d]: %w", i, err)
	}
	return p, nil
}
