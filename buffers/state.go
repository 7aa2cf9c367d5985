// SPDX-License-Identifier: EPL-2.0

package buffers

import "fmt"

// State is the lifecycle position of one passage buffer.
//
//	Decoding -> Ready -> Playing -> Finished -> Exhausted
//
// Decoding and Ready may jump to Playing or Finished directly. Exhausted is
// terminal.
type State uint32

const (
	Decoding State = iota
	Ready
	Playing
	Finished
	Exhausted
)

func (s State) String() string {
	switch s {
	case Decoding:
		return "decoding"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Finished:
		return "finished"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("State(%d)", uint32(s))
}

// canMove lists the legal transitions.
func canMove(from, to State) bool {
	switch to {
	case Ready:
		return from == Decoding
	case Playing:
		return from == Decoding || from == Ready
	case Finished:
		return from == Decoding || from == Ready || from == Playing
	case Exhausted:
		return from == Finished
	}
	return false
}
