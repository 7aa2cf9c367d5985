// SPDX-License-Identifier: EPL-2.0

package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueueSize is the channel capacity handed to subscribers that do
// not ask for one.
const DefaultQueueSize = 256

type subscription struct {
	ch    chan Event
	kinds uint32
}

func (s subscription) wants(k Kind) bool {
	return s.kinds&(1<<k) != 0
}

// Bus fans events out to subscriber channels.
type Bus struct {
	mu      sync.RWMutex
	subs    []subscription
	closed  bool
	dropped atomic.Uint64
	now     func() time.Time
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{now: time.Now}
}

// Subscribe returns a channel receiving the given kinds, or every kind
// when none are listed. size <= 0 selects DefaultQueueSize.
func (b *Bus) Subscribe(size int, kinds ...Kind) <-chan Event {
	if size <= 0 {
		size = DefaultQueueSize
	}

	var mask uint32
	for _, k := range kinds {
		mask |= 1 << k
	}
	if mask == 0 {
		mask = 1<<numKinds - 1
	}

	ch := make(chan Event, size)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, subscription{ch: ch, kinds: mask})
	return ch
}

// Publish delivers e to every interested subscriber without blocking.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if !s.wants(e.Kind) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.ch == ch {
			close(s.ch)
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels. Later Publish calls are no-ops and
// later Subscribe calls return a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
}
