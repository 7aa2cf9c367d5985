// SPDX-License-Identifier: EPL-2.0

package mixer

import "fmt"

// State is the mixer's mode.
type State uint8

const (
	// Idle outputs silence.
	Idle State = iota
	// Single plays one passage.
	Single
	// Crossfading sums the outgoing and incoming passages.
	Crossfading
	// Paused decays the last output frame to silence.
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Single:
		return "single"
	case Crossfading:
		return "crossfading"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}
