// SPDX-License-Identifier: EPL-2.0

// Package passage describes timed excerpts of audio files.
//
// Every point is a tick offset from the start of the file. End, FadeOut,
// LeadIn and LeadOut use zero for "not set": an unset End means the file
// end, an unset FadeOut means no fade-out. FadeIn is the tick at which the
// fade-in completes; a value at or before Start means no fade-in.
package passage

import (
	"fmt"

	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/timing"
)

// Timing holds the points of one passage, in ticks from file start.
type Timing struct {
	Start   int64 `json:"start"   mapstructure:"start"`
	End     int64 `json:"end"     mapstructure:"end"`
	FadeIn  int64 `json:"fade_in" mapstructure:"fade_in"`
	FadeOut int64 `json:"fade_out" mapstructure:"fade_out"`
	LeadIn  int64 `json:"lead_in" mapstructure:"lead_in"`
	LeadOut int64 `json:"lead_out" mapstructure:"lead_out"`
}

// Millis is Timing expressed in milliseconds, for callers that speak in
// wall-clock units.
type Millis struct {
	Start, End, FadeIn, FadeOut, LeadIn, LeadOut int64
}

// Ticks converts m losslessly.
func (m Millis) Ticks() Timing {
	return Timing{
		Start:   timing.MsToTicks(m.Start),
		End:     timing.MsToTicks(m.End),
		FadeIn:  timing.MsToTicks(m.FadeIn),
		FadeOut: timing.MsToTicks(m.FadeOut),
		LeadIn:  timing.MsToTicks(m.LeadIn),
		LeadOut: timing.MsToTicks(m.LeadOut),
	}
}

// Millis converts t, truncating toward zero.
func (t Timing) Millis() Millis {
	return Millis{
		Start:   timing.TicksToMs(t.Start),
		End:     timing.TicksToMs(t.End),
		FadeIn:  timing.TicksToMs(t.FadeIn),
		FadeOut: timing.TicksToMs(t.FadeOut),
		LeadIn:  timing.TicksToMs(t.LeadIn),
		LeadOut: timing.TicksToMs(t.LeadOut),
	}
}

// HasEnd reports whether End is set.
func (t Timing) HasEnd() bool { return t.End > 0 }

// HasFadeIn reports whether a fade-in is configured.
func (t Timing) HasFadeIn() bool { return t.FadeIn > t.Start }

// HasFadeOut reports whether a fade-out is configured.
func (t Timing) HasFadeOut() bool { return t.FadeOut > 0 }

// Validate checks the ordering of the points. Points that depend on End are
// only checked against it when End is set.
func (t Timing) Validate() error {
	switch {
	case t.Start < 0:
		return fmt.Errorf("%w: start %d is negative", ErrInvalidTiming, t.Start)
	case t.End < 0 || t.FadeIn < 0 || t.FadeOut < 0 || t.LeadIn < 0 || t.LeadOut < 0:
		return fmt.Errorf("%w: negative point in %+v", ErrInvalidTiming, t)
	case t.HasEnd() && t.End <= t.Start:
		return fmt.Errorf("%w: end %d not after start %d", ErrInvalidTiming, t.End, t.Start)
	case t.HasFadeOut() && t.FadeOut < t.Start:
		return fmt.Errorf("%w: fade-out %d before start %d", ErrInvalidTiming, t.FadeOut, t.Start)
	case t.HasFadeIn() && t.HasFadeOut() && t.FadeIn > t.FadeOut:
		return fmt.Errorf("%w: fade-in ends at %d after fade-out starts at %d", ErrInvalidTiming, t.FadeIn, t.FadeOut)
	case t.LeadIn > 0 && t.LeadIn < t.Start:
		return fmt.Errorf("%w: lead-in %d before start %d", ErrInvalidTiming, t.LeadIn, t.Start)
	case t.LeadOut > 0 && t.LeadOut < t.Start:
		return fmt.Errorf("%w: lead-out %d before start %d", ErrInvalidTiming, t.LeadOut, t.Start)
	}

	if !t.HasEnd() {
		return nil
	}
	points := [...]struct {
		name string
		at   int64
	}{{"fade-in", t.FadeIn}, {"fade-out", t.FadeOut}, {"lead-in", t.LeadIn}, {"lead-out", t.LeadOut}}
	for _, p := range points {
		if p.at > t.End {
			return fmt.Errorf("%w: %s %d after end %d", ErrInvalidTiming, p.name, p.at, t.End)
		}
	}
	return nil
}

// WithEnd returns a copy of t whose End is end, used once the file length
// has been discovered.
func (t Timing) WithEnd(end int64) Timing {
	t.End = end
	return t
}

// Duration returns End - Start in ticks.
func (t Timing) Duration() (int64, error) {
	if !t.HasEnd() {
		return 0, ErrUnknownEnd
	}
	return t.End - t.Start, nil
}

// FadeInDuration returns the fade-in length in ticks, zero without one.
func (t Timing) FadeInDuration() int64 {
	if !t.HasFadeIn() {
		return 0
	}
	return t.FadeIn - t.Start
}

// FadeOutDuration returns the fade-out length in ticks, zero without a
// fade-out. The fade-out runs to End.
func (t Timing) FadeOutDuration() (int64, error) {
	if !t.HasFadeOut() {
		return 0, nil
	}
	if !t.HasEnd() {
		return 0, ErrUnknownEnd
	}
	return max(t.End-t.FadeOut, 0), nil
}

// CrossfadePoint is the tick at which the next passage should start
// overlapping this one: the lead-out point, else the fade-out point, else
// End.
func (t Timing) CrossfadePoint() (int64, error) {
	switch {
	case t.LeadOut > 0:
		return t.LeadOut, nil
	case t.HasFadeOut():
		return t.FadeOut, nil
	case t.HasEnd():
		return t.End, nil
	}
	return 0, ErrUnknownEnd
}

// Passage is one playable excerpt: a file, its timing and fade curves.
type Passage struct {
	Path         string          `json:"path"          mapstructure:"path"`
	Timing       Timing          `json:"timing"        mapstructure:"timing"`
	FadeInCurve  audio.FadeCurve `json:"fade_in_curve"  mapstructure:"fade_in_curve"`
	FadeOutCurve audio.FadeCurve `json:"fade_out_curve" mapstructure:"fade_out_curve"`
}

// Validate checks the path and the timing.
func (p Passage) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidTiming)
	}
	return p.Timing.Validate()
}

// Frames are the sample-domain points of a passage at one rate, relative
// to the file start. End is -1 while unknown.
type Frames struct {
	Start int64
	End   int64
}

// Count returns the number of frames between Start and End, or -1.
func (f Frames) Count() int64 {
	if f.End < 0 {
		return -1
	}
	return f.End - f.Start
}

// FramesAt converts the start and end of t to frames at rate.
func (t Timing) FramesAt(rate int) (Frames, error) {
	start, err := timing.TicksToSamples(t.Start, rate)
	if err != nil {
		return Frames{}, err
	}
	f := Frames{Start: start, End: -1}
	if t.HasEnd() {
		if f.End, err = timing.TicksToSamples(t.End, rate); err != nil {
			return Frames{}, err
		}
	}
	return f, nil
}

// Envelope builds the fade gain schedule of p at rate, in frames relative
// to the passage start. A fade-out needs End; pass the discovered end
// through WithEnd first when the passage had none.
func (p Passage) Envelope(rate int) (audio.Envelope, error) {
	var env audio.Envelope

	if d := p.Timing.FadeInDuration(); d > 0 {
		n, err := timing.TicksToSamples(d, rate)
		if err != nil {
			return env, err
		}
		env.FadeInFrames = n
		env.FadeInCurve = p.FadeInCurve
	}

	if !p.Timing.HasFadeOut() {
		return env, nil
	}
	d, err := p.Timing.FadeOutDuration()
	if err != nil {
		return env, err
	}
	start, err := timing.TicksToSamples(p.Timing.FadeOut-p.Timing.Start, rate)
	if err != nil {
		return env, err
	}
	n, err := timing.TicksToSamples(d, rate)
	if err != nil {
		return env, err
	}
	env.FadeOutStart = start
	env.FadeOutFrames = n
	env.FadeOutCurve = p.FadeOutCurve
	return env, nil
}
