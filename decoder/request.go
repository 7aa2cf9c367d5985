// SPDX-License-Identifier: EPL-2.0

package decoder

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ik5/audxfade/passage"
)

// Priority orders decode work. Higher values run first.
type Priority uint8

const (
	// Prefetch decodes passages further down the queue.
	Prefetch Priority = iota
	// Next decodes the passage that plays after the current one.
	Next
	// Immediate decodes the passage that must play now.
	Immediate
)

func (p Priority) String() string {
	switch p {
	case Prefetch:
		return "prefetch"
	case Next:
		return "next"
	case Immediate:
		return "immediate"
	}
	return fmt.Sprintf("Priority(%d)", uint8(p))
}

// ParsePriority parses the String form of a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prefetch":
		return Prefetch, nil
	case "next":
		return Next, nil
	case "immediate":
		return Immediate, nil
	}
	return 0, fmt.Errorf("unknown decode priority %q", s)
}

// Request asks for one passage to be decoded into its buffer.
type Request struct {
	EntryID  uuid.UUID
	Passage  passage.Passage
	Priority Priority
	// FullDecode decodes the whole passage. When false only the first
	// partial-decode window is decoded until Promote asks for the rest.
	FullDecode bool
	// Capacity overrides the buffer size in frames; 0 uses the default.
	Capacity int
}
