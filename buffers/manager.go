// SPDX-License-Identifier: EPL-2.0

package buffers

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/events"
	"github.com/ik5/audxfade/internal/logging"
	"github.com/ik5/audxfade/internal/observe"
	"github.com/ik5/audxfade/ring"
)

const (
	// DefaultReadyThreshold is 0.5 s at 44.1 kHz.
	DefaultReadyThreshold = 22_050
	// DefaultMaxBuffers bounds concurrent decode-buffer chains.
	DefaultMaxBuffers = 12
	// DefaultMaxCapacity allows overrides up to four times the default ring.
	DefaultMaxCapacity = 4 * ring.DefaultCapacity
)

// Config sizes the buffers a Manager creates.
type Config struct {
	Ring           ring.Config
	MaxCapacity    int
	ReadyThreshold int
	MaxBuffers     int
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		Ring:           ring.DefaultConfig(),
		MaxCapacity:    DefaultMaxCapacity,
		ReadyThreshold: DefaultReadyThreshold,
		MaxBuffers:     DefaultMaxBuffers,
	}
}

// Validate checks c, including the default ring sizing against MaxCapacity.
func (c Config) Validate() error {
	if err := c.Ring.Validate(); err != nil {
		return err
	}
	if c.Ring.Hysteresis <= 0 {
		return fmt.Errorf("%w: hysteresis %d must be positive", ErrInvalidConfig, c.Ring.Hysteresis)
	}
	if c.MaxBuffers <= 0 {
		return fmt.Errorf("%w: max buffers %d must be positive", ErrInvalidConfig, c.MaxBuffers)
	}
	if c.ReadyThreshold <= 0 {
		return fmt.Errorf("%w: ready threshold %d must be positive", ErrInvalidConfig, c.ReadyThreshold)
	}
	return ValidateCapacity(c.Ring.Capacity, c.Ring.Headroom, c.MaxCapacity)
}

// ValidateCapacity rejects capacities above maxCapacity and headroom that
// leaves no usable space.
func ValidateCapacity(capacity, headroom, maxCapacity int) error {
	switch {
	case capacity <= 0:
		return fmt.Errorf("%w: capacity %d must be positive", ErrInvalidConfig, capacity)
	case capacity > maxCapacity:
		return fmt.Errorf("%w: %d > %d", ErrCapacityExceeded, capacity, maxCapacity)
	case headroom >= capacity:
		return fmt.Errorf("%w: headroom %d leaves no room in capacity %d", ErrInvalidConfig, headroom, capacity)
	}
	return nil
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = logging.WithComponent(l, "buffers") }
}

// WithPublisher sets where lifecycle notifications go.
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.pub = p }
}

// WithMetrics sets the metric instruments.
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = met }
}

// Manager owns every passage buffer keyed by queue-entry identity.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	pub     events.Publisher
	metrics *observe.Metrics

	mu      sync.RWMutex
	handles map[uuid.UUID]*Handle
}

// NewManager validates cfg and returns an empty Manager.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:     cfg,
		logger:  logging.WithComponent(nil, "buffers"),
		pub:     events.Discard,
		handles: make(map[uuid.UUID]*Handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m, nil
}

// Config returns the configuration m was built with.
func (m *Manager) Config() Config { return m.cfg }

// Create registers a buffer for id. capacity <= 0 selects the configured
// default. Creating an id that already exists returns the existing handle.
func (m *Manager) Create(id uuid.UUID, capacity int) (*Handle, error) {
	rc := m.cfg.Ring
	if capacity > 0 {
		rc.Capacity = capacity
	}
	if err := ValidateCapacity(rc.Capacity, rc.Headroom, m.cfg.MaxCapacity); err != nil {
		return nil, err
	}
	// A small override keeps the hysteresis inside the buffer.
	if rc.Headroom+rc.Hysteresis > rc.Capacity {
		rc.Hysteresis = (rc.Capacity - rc.Headroom) / 2
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.handles[id]; ok {
		return h, nil
	}
	if len(m.handles) >= m.cfg.MaxBuffers {
		return nil, fmt.Errorf("%w: limit %d reached", ErrTooManyBuffers, m.cfg.MaxBuffers)
	}

	rb, err := ring.New(rc)
	if err != nil {
		return nil, err
	}
	h := &Handle{
		id:      id,
		ring:    rb,
		ready:   int64(min(m.cfg.ReadyThreshold, rc.Capacity-rc.Headroom)),
		mgr:     m,
		created: time.Now(),
	}
	h.total.Store(-1)
	m.handles[id] = h

	m.metrics.ActiveBuffers.Add(context.Background(), 1)
	m.logger.Debug("buffer created", "id", id, "capacity", rc.Capacity)
	return h, nil
}

// Get returns the handle for id.
func (m *Manager) Get(id uuid.UUID) (*Handle, error) {
	m.mu.RLock()
	h, ok := m.handles[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBufferNotFound, id)
	}
	return h, nil
}

// PushSamples appends interleaved stereo samples to id's buffer and returns
// the number of frames accepted.
func (m *Manager) PushSamples(id uuid.UUID, samples []float32) (int, error) {
	h, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	return h.Push(samples), nil
}

// PopFrame pops one frame from id's buffer. ok is false on underrun, in
// which case the frame is the cached last frame.
func (m *Manager) PopFrame(id uuid.UUID) (f audio.Frame, ok bool, err error) {
	h, err := m.Get(id)
	if err != nil {
		return audio.Frame{}, false, err
	}
	f, ok = h.Pop()
	return f, ok, nil
}

// ShouldPauseDecoder reports whether the decoder feeding id should stop.
func (m *Manager) ShouldPauseDecoder(id uuid.UUID) (bool, error) {
	h, err := m.Get(id)
	if err != nil {
		return false, err
	}
	return h.ShouldPauseDecoder(), nil
}

// CanResumeDecoder reports whether the decoder feeding id may continue.
func (m *Manager) CanResumeDecoder(id uuid.UUID) (bool, error) {
	h, err := m.Get(id)
	if err != nil {
		return false, err
	}
	return h.CanResumeDecoder(), nil
}

// Finalize marks id's decode complete with its total frame count.
func (m *Manager) Finalize(id uuid.UUID, totalFrames int64) error {
	h, err := m.Get(id)
	if err != nil {
		return err
	}
	return h.Finalize(totalFrames)
}

// SetDiscoveredEnd records the probed end tick of a passage that had none
// and announces it.
func (m *Manager) SetDiscoveredEnd(id uuid.UUID, endTicks int64) error {
	h, err := m.Get(id)
	if err != nil {
		return err
	}
	h.endTicks.Store(endTicks)
	m.publish(events.Event{Kind: events.EndpointDiscovered, EntryID: id, EndTicks: endTicks})
	return nil
}

// IsExhausted reports whether id is finished and drained.
func (m *Manager) IsExhausted(id uuid.UUID) (bool, error) {
	h, err := m.Get(id)
	if err != nil {
		return false, err
	}
	return h.IsExhausted(), nil
}

// MarkPlaying records that the mixer started consuming id.
func (m *Manager) MarkPlaying(id uuid.UUID) error {
	h, err := m.Get(id)
	if err != nil {
		return err
	}
	return h.MarkPlaying()
}

// State returns id's lifecycle state.
func (m *Manager) State(id uuid.UUID) (State, error) {
	h, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	return h.State(), nil
}

// Release unregisters id. The handle stays usable by whoever still holds it
// but no longer counts against the chain limit.
func (m *Manager) Release(id uuid.UUID) error {
	m.mu.Lock()
	_, ok := m.handles[id]
	delete(m.handles, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrBufferNotFound, id)
	}
	m.metrics.ActiveBuffers.Add(context.Background(), -1)
	m.logger.Debug("buffer released", "id", id)
	return nil
}

// Exhausted returns the ids of every exhausted buffer.
func (m *Manager) Exhausted() []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []uuid.UUID
	for id, h := range m.handles {
		if h.State() == Exhausted {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of registered buffers.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}

// List returns a snapshot of every buffer, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	hs := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		hs = append(hs, h)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(hs))
	for _, h := range hs {
		infos = append(infos, h.Info())
	}
	slices.SortFunc(infos, func(a, b Info) int { return a.Created.Compare(b.Created) })
	return infos
}

func (m *Manager) publish(e events.Event) {
	m.pub.Publish(e)
}

func (m *Manager) transitioned(h *Handle, from, to State) {
	m.logger.Debug("buffer state", "id", h.id, "from", from, "to", to)
	m.publish(events.Event{
		Kind:    events.StateChanged,
		EntryID: h.id,
		From:    from.String(),
		To:      to.String(),
	})
}
