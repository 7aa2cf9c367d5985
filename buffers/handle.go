// SPDX-License-Identifier: EPL-2.0

package buffers

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/events"
	"github.com/ik5/audxfade/ring"
)

// Handle is one registered passage buffer: its ring plus lifecycle state.
//
// Push and Finalize belong to the decoder, Pop to the mixer. State queries
// are safe from any goroutine.
type Handle struct {
	id    uuid.UUID
	ring  *ring.Buffer
	ready int64
	mgr   *Manager

	state    atomic.Uint32
	written  atomic.Int64
	total    atomic.Int64
	endTicks atomic.Int64

	// mu serialises transitions with their side effects and guards the
	// metadata below.
	mu         sync.Mutex
	path       string
	sourceRate int
	created    time.Time
	readyAt    time.Time
	playingAt  time.Time
	finishedAt time.Time
}

// ID returns the queue-entry identity.
func (h *Handle) ID() uuid.UUID { return h.id }

// Ring exposes the underlying ring buffer.
func (h *Handle) Ring() *ring.Buffer { return h.ring }

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Written returns the number of frames pushed so far.
func (h *Handle) Written() int64 { return h.written.Load() }

// TotalFrames returns the decoded length once finalized, or -1.
func (h *Handle) TotalFrames() int64 { return h.total.Load() }

// EndTicks returns the discovered end point, or 0 when none was reported.
func (h *Handle) EndTicks() int64 { return h.endTicks.Load() }

// SetSource records where the frames come from.
func (h *Handle) SetSource(path string, rate int) {
	h.mu.Lock()
	h.path = path
	h.sourceRate = rate
	h.mu.Unlock()
}

// Push appends interleaved stereo samples and returns the number of frames
// accepted.
func (h *Handle) Push(samples []float32) int {
	n := h.ring.PushInterleaved(samples)
	h.advance(n)
	return n
}

// PushFrames appends frames and returns how many were accepted.
func (h *Handle) PushFrames(frames []audio.Frame) int {
	n := h.ring.Push(frames)
	h.advance(n)
	return n
}

func (h *Handle) advance(n int) {
	if n == 0 {
		return
	}
	if w := h.written.Add(int64(n)); w >= h.ready && h.State() == Decoding {
		h.mu.Lock()
		moved := h.move(Ready)
		if moved {
			h.readyAt = time.Now()
		}
		h.mu.Unlock()
		if moved {
			h.mgr.publish(events.Event{Kind: events.ReadyForStart, EntryID: h.id})
		}
	}
}

// Pop returns the next frame. On an empty buffer it returns the cached last
// frame and false; if decoding is complete the buffer is then exhausted.
func (h *Handle) Pop() (audio.Frame, bool) {
	f, ok := h.ring.PopOne()
	if !ok && h.ring.IsDecodeComplete() {
		h.IsExhausted()
	}
	return f, ok
}

// ShouldPauseDecoder reports the latched backpressure signal.
func (h *Handle) ShouldPauseDecoder() bool { return h.ring.ShouldPauseProducer() }

// CanResumeDecoder reports whether enough space has been freed to resume.
func (h *Handle) CanResumeDecoder() bool { return h.ring.CanResumeProducer() }

// MarkPlaying records that the mixer started consuming. A buffer that has
// already finished decoding keeps its Finished state.
func (h *Handle) MarkPlaying() error {
	h.mu.Lock()
	switch h.State() {
	case Playing, Finished:
		if h.playingAt.IsZero() {
			h.playingAt = time.Now()
		}
		h.mu.Unlock()
		return nil
	case Exhausted:
		h.mu.Unlock()
		return fmt.Errorf("%w: %s is exhausted", ErrInvalidState, h.id)
	}
	h.move(Playing)
	h.playingAt = time.Now()
	h.mu.Unlock()
	return nil
}

// Finalize records the decoded length, marks decoding complete and moves
// the buffer to Finished in one step.
func (h *Handle) Finalize(totalFrames int64) error {
	h.mu.Lock()
	from := h.State()
	if from == Finished || from == Exhausted {
		h.mu.Unlock()
		return nil
	}
	h.total.Store(totalFrames)
	h.ring.MarkDecodeComplete()
	h.move(Finished)
	h.finishedAt = time.Now()
	if h.readyAt.IsZero() {
		h.readyAt = h.finishedAt
	}
	h.mu.Unlock()

	// A passage shorter than the ready threshold becomes playable here.
	if from == Decoding {
		h.mgr.publish(events.Event{Kind: events.ReadyForStart, EntryID: h.id})
	}
	h.mgr.publish(events.Event{
		Kind:        events.Finished,
		EntryID:     h.id,
		TotalFrames: totalFrames,
		EndTicks:    h.EndTicks(),
	})
	return nil
}

// IsExhausted reports whether the buffer is finished and drained, moving it
// to Exhausted the first time that holds.
func (h *Handle) IsExhausted() bool {
	switch h.State() {
	case Exhausted:
		return true
	case Finished:
	default:
		return false
	}
	if !h.ring.IsExhausted() {
		return false
	}

	h.mu.Lock()
	moved := h.move(Exhausted)
	h.mu.Unlock()
	if moved {
		h.mgr.publish(events.Event{Kind: events.Exhausted, EntryID: h.id})
	}
	return true
}

// move changes state if the transition is legal and reports whether it
// happened. Callers hold h.mu.
func (h *Handle) move(to State) bool {
	from := h.State()
	if !canMove(from, to) {
		return false
	}
	h.state.Store(uint32(to))
	h.mgr.transitioned(h, from, to)
	return true
}

// Info is a point-in-time description of a buffer.
type Info struct {
	ID          uuid.UUID
	State       State
	Path        string
	SourceRate  int
	Written     int64
	TotalFrames int64
	EndTicks    int64
	Ring        ring.Stats
	Created     time.Time
	ReadyAt     time.Time
	PlayingAt   time.Time
	FinishedAt  time.Time
}

// Info returns a snapshot of h.
func (h *Handle) Info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Info{
		ID:          h.id,
		State:       h.State(),
		Path:        h.path,
		SourceRate:  h.sourceRate,
		Written:     h.Written(),
		TotalFrames: h.TotalFrames(),
		EndTicks:    h.EndTicks(),
		Ring:        h.ring.Stats(),
		Created:     h.created,
		ReadyAt:     h.readyAt,
		PlayingAt:   h.playingAt,
		FinishedAt:  h.finishedAt,
	}
}
