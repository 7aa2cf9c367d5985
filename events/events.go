// SPDX-License-Identifier: EPL-2.0

// Package events carries lifecycle notifications from the pipeline to
// whoever is listening. Delivery never blocks the publisher: a subscriber
// whose channel is full misses the event and the drop is counted.
package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies an event type.
type Kind uint8

const (
	// StateChanged reports a buffer lifecycle transition (From -> To).
	StateChanged Kind = iota
	// ReadyForStart fires once a buffer holds enough frames to start playback.
	ReadyForStart
	// Finished fires when decoding of a passage completes. TotalFrames and
	// EndTicks carry the decoded length.
	Finished
	// Exhausted fires when a finished buffer has been fully drained.
	Exhausted
	// EndpointDiscovered reports the end tick probed for a passage that had
	// none.
	EndpointDiscovered
	// DecodeError reports a request abandoned because of Err.
	DecodeError
	// PassageStarted fires when the mixer begins playing an entry.
	PassageStarted
	// CrossfadeStarted fires when the mixer begins overlapping EntryID
	// (outgoing) with Incoming.
	CrossfadeStarted
	// CrossfadeCompleted fires exactly once per crossfade, when the mixer
	// drops the outgoing passage.
	CrossfadeCompleted
	// PassageCompleted fires when the mixer runs out of an entry outside a
	// crossfade.
	PassageCompleted

	numKinds
)

var kindNames = [...]string{
	StateChanged:       "state_changed",
	ReadyForStart:      "ready_for_start",
	Finished:           "finished",
	Exhausted:          "exhausted",
	EndpointDiscovered: "endpoint_discovered",
	DecodeError:        "decode_error",
	PassageStarted:     "passage_started",
	CrossfadeStarted:   "crossfade_started",
	CrossfadeCompleted: "crossfade_completed",
	PassageCompleted:   "passage_completed",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Event is one notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind    Kind
	EntryID uuid.UUID
	Time    time.Time

	From string
	To   string

	TotalFrames int64
	EndTicks    int64

	Incoming uuid.UUID

	Err error
}

func (e Event) String() string {
	switch e.Kind {
	case StateChanged:
		return fmt.Sprintf("%s %s: %s -> %s", e.Kind, e.EntryID, e.From, e.To)
	case DecodeError:
		return fmt.Sprintf("%s %s: %v", e.Kind, e.EntryID, e.Err)
	case CrossfadeStarted, CrossfadeCompleted:
		return fmt.Sprintf("%s %s -> %s", e.Kind, e.EntryID, e.Incoming)
	case Finished, EndpointDiscovered:
		return fmt.Sprintf("%s %s: end=%d frames=%d", e.Kind, e.EntryID, e.EndTicks, e.TotalFrames)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.EntryID)
}

// Publisher accepts events. Implementations must not block.
type Publisher interface {
	Publish(Event)
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
