// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"math"
	"strings"
)

// FadeCurve selects the gain shape of a fade.
type FadeCurve uint8

const (
	// Linear: v(t) = t.
	Linear FadeCurve = iota
	// Exponential: v(t) = t^2, slow start and fast finish.
	Exponential
	// Logarithmic: fast start and slow finish, sqrt(t) in and (1-t)^2 out.
	Logarithmic
	// SCurve: smoothstep 3t^2 - 2t^3.
	SCurve
	// Cosine: raised cosine 0.5(1 - cos(pi t)).
	Cosine
	// EqualPower: sin(t pi/2), constant perceived loudness across a crossfade.
	EqualPower
)

var curveNames = [...]string{
	Linear:      "linear",
	Exponential: "exponential",
	Logarithmic: "logarithmic",
	SCurve:      "s-curve",
	Cosine:      "cosine",
	EqualPower:  "equal-power",
}

func (c FadeCurve) String() string {
	if int(c) < len(curveNames) {
		return curveNames[c]
	}
	return fmt.Sprintf("FadeCurve(%d)", uint8(c))
}

// ParseFadeCurve maps a curve name to a FadeCurve. Matching ignores case,
// and '_' and '-' are interchangeable.
func ParseFadeCurve(s string) (FadeCurve, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "linear":
		return Linear, nil
	case "exponential":
		return Exponential, nil
	case "logarithmic":
		return Logarithmic, nil
	case "s-curve", "scurve":
		return SCurve, nil
	case "cosine":
		return Cosine, nil
	case "equal-power", "equalpower":
		return EqualPower, nil
	}
	return Linear, fmt.Errorf("%w: %q", ErrInvalidCurve, s)
}

func (c FadeCurve) MarshalText() ([]byte, error) {
	if int(c) >= len(curveNames) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCurve, uint8(c))
	}
	return []byte(curveNames[c]), nil
}

func (c *FadeCurve) UnmarshalText(b []byte) error {
	v, err := ParseFadeCurve(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Pair returns the curve that complements c on the other side of a
// crossfade.
func (c FadeCurve) Pair() FadeCurve {
	switch c {
	case Exponential:
		return Logarithmic
	case Logarithmic:
		return Exponential
	}
	return c
}

func clamp01(t float64) float64 {
	switch {
	case t <= 0:
		return 0
	case t >= 1:
		return 1
	}
	return t
}

// FadeIn returns the gain at normalized position t of a fade-in, rising
// from 0 at t=0 to 1 at t=1.
func (c FadeCurve) FadeIn(t float64) float32 {
	t = clamp01(t)
	switch c {
	case Exponential:
		return float32(t * t)
	case Logarithmic:
		return float32(math.Sqrt(t))
	case SCurve:
		return float32(t * t * (3 - 2*t))
	case Cosine:
		return float32(0.5 * (1 - math.Cos(math.Pi*t)))
	case EqualPower:
		return float32(math.Sin(t * math.Pi / 2))
	}
	return float32(t)
}

// FadeOut returns the gain at normalized position t of a fade-out, falling
// from 1 at t=0 to 0 at t=1.
func (c FadeCurve) FadeOut(t float64) float32 {
	t = clamp01(t)
	switch c {
	case Exponential, Logarithmic:
		inv := 1 - t
		return float32(inv * inv)
	case SCurve:
		inv := 1 - t
		return float32(inv * inv * (3 - 2*inv))
	case Cosine:
		return float32(0.5 * (1 + math.Cos(math.Pi*t)))
	case EqualPower:
		return float32(math.Cos(t * math.Pi / 2))
	}
	return float32(1 - t)
}

// Envelope is the gain schedule of one passage, in frames relative to the
// passage start.
type Envelope struct {
	// FadeInFrames is the length of the fade-in; 0 disables it.
	FadeInFrames int64
	FadeInCurve  FadeCurve

	// FadeOutStart is the first frame of the fade-out and FadeOutFrames
	// its length; FadeOutFrames == 0 disables it.
	FadeOutStart  int64
	FadeOutFrames int64
	FadeOutCurve  FadeCurve
}

// Gain returns the multiplier for the frame at offset frame.
func (e Envelope) Gain(frame int64) float32 {
	g := float32(1)
	if e.FadeInFrames > 0 && frame < e.FadeInFrames {
		g = e.FadeInCurve.FadeIn(float64(frame) / float64(e.FadeInFrames))
	}
	if e.FadeOutFrames > 0 && frame >= e.FadeOutStart {
		pos := frame - e.FadeOutStart
		if pos >= e.FadeOutFrames {
			return 0
		}
		g *= e.FadeOutCurve.FadeOut(float64(pos) / float64(e.FadeOutFrames))
	}
	return g
}

// Touches reports whether any of the n frames starting at first falls
// inside a fade region.
func (e Envelope) Touches(first, n int64) bool {
	if n <= 0 {
		return false
	}
	if e.FadeInFrames > 0 && first < e.FadeInFrames {
		return true
	}
	return e.FadeOutFrames > 0 && first+n > e.FadeOutStart
}

// Apply scales interleaved stereo samples whose first frame sits at offset
// first.
func (e Envelope) Apply(samples []float32, first int64) {
	frames := int64(len(samples) / 2)
	if !e.Touches(first, frames) {
		return
	}
	for i := range frames {
		g := e.Gain(first + i)
		if g == 1 {
			continue
		}
		samples[2*i] *= g
		samples[2*i+1] *= g
	}
}
