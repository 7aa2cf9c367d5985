// SPDX-License-Identifier: EPL-2.0

// Package mixer drains passage buffers into one stereo stream.
//
// Frames arrive with their fades already applied, so steady playback is a
// copy and a crossfade is a plain sum of the two passages. The mixer only
// shapes the signal itself for master volume, the fade-in after a resume
// and the decay to silence while paused.
package mixer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/events"
	"github.com/ik5/audxfade/internal/logging"
	"github.com/ik5/audxfade/internal/observe"
	"github.com/ik5/audxfade/timing"
)

const (
	// DefaultDecayFactor is 31/32 per frame.
	DefaultDecayFactor = 0.96875
	// DefaultDecayFloor is about -75 dBFS.
	DefaultDecayFloor = 0.0001778
	// DefaultResumeFade is the fade-in applied after Resume.
	DefaultResumeFade = 500 * time.Millisecond

	underrunLogEvery = 1000
)

// Input is a passage buffer the mixer can drain.
type Input interface {
	ID() uuid.UUID
	// Pop returns the next frame, or the last frame and false when empty.
	Pop() (audio.Frame, bool)
	// IsExhausted reports whether the passage has been decoded and drained.
	IsExhausted() bool
	// MarkPlaying records that consumption started.
	MarkPlaying() error
}

// Fade is a gain ramp measured in frames.
type Fade struct {
	Curve  audio.FadeCurve
	Frames int64
}

// Config tunes the mixer.
type Config struct {
	SampleRate  int
	DecayFactor float32
	DecayFloor  float32
	ResumeFade  time.Duration
	ResumeCurve audio.FadeCurve
	Volume      float32
}

// DefaultConfig returns the stock settings at 44.1 kHz.
func DefaultConfig() Config {
	return Config{
		SampleRate:  44_100,
		DecayFactor: DefaultDecayFactor,
		DecayFloor:  DefaultDecayFloor,
		ResumeFade:  DefaultResumeFade,
		ResumeCurve: audio.Exponential,
		Volume:      1,
	}
}

// Validate checks c.
func (c Config) Validate() error {
	var errs []error
	if !timing.IsSupportedRate(c.SampleRate) {
		errs = append(errs, fmt.Errorf("%w: %w: %d", ErrInvalidConfig, timing.ErrInvalidRate, c.SampleRate))
	}
	if c.DecayFactor <= 0 || c.DecayFactor >= 1 {
		errs = append(errs, fmt.Errorf("%w: decay factor %v outside (0, 1)", ErrInvalidConfig, c.DecayFactor))
	}
	if c.DecayFloor <= 0 || c.DecayFloor >= 1 {
		errs = append(errs, fmt.Errorf("%w: decay floor %v outside (0, 1)", ErrInvalidConfig, c.DecayFloor))
	}
	if c.ResumeFade < 0 {
		errs = append(errs, fmt.Errorf("%w: negative resume fade %v", ErrInvalidConfig, c.ResumeFade))
	}
	if c.Volume < 0 || c.Volume > 1 {
		errs = append(errs, fmt.Errorf("%w: volume %v outside [0, 1]", ErrInvalidConfig, c.Volume))
	}
	return errors.Join(errs...)
}

// Option configures a Mixer.
type Option func(*Mixer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mixer) { m.logger = logging.WithComponent(l, "mixer") }
}

// WithPublisher sets where playback notifications go.
func WithPublisher(p events.Publisher) Option {
	return func(m *Mixer) { m.pub = p }
}

// WithMetrics sets the metric instruments.
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Mixer) { m.metrics = met }
}

// lane is one passage being drained.
type lane struct {
	in  Input
	pos int64
}

// pull returns the next frame of l. ended is set once the passage is
// exhausted; underrun is set when the buffer was empty mid-decode and the
// last frame was repeated.
func (l *lane) pull() (f audio.Frame, underrun, ended bool) {
	f, ok := l.in.Pop()
	if ok {
		l.pos++
		return f, false, false
	}
	if l.in.IsExhausted() {
		return audio.Frame{}, false, true
	}
	return f, true, false
}

// ramp is a mixer-level fade-in.
type ramp struct {
	curve audio.FadeCurve
	total int64
	done  int64
}

func (r *ramp) active() bool { return r.done < r.total }

func (r *ramp) next() float32 {
	g := r.curve.FadeIn(float64(r.done) / float64(r.total))
	r.done++
	return g
}

// Mixer is the playback state machine. Render is called from the output
// path; the control methods may be called from any goroutine.
type Mixer struct {
	cfg         Config
	resumeFrame int64
	logger      *slog.Logger
	pub         events.Publisher
	metrics     *observe.Metrics

	mu       sync.Mutex
	state    State
	cur      lane
	next     lane
	queued   lane
	xfTotal  int64
	xfDone   int64
	resumeTo State
	decaying audio.Frame
	fadeIn   ramp
	volume   float32
	last     audio.Frame

	underruns  uint64
	crossfades uint64
	rendered   uint64
}

// New returns an idle Mixer.
func New(cfg Config, opts ...Option) (*Mixer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	resume, _ := timing.TicksToSamples(timing.DurationToTicks(cfg.ResumeFade), cfg.SampleRate)
	m := &Mixer{
		cfg:         cfg,
		resumeFrame: resume,
		logger:      logging.WithComponent(nil, "mixer"),
		pub:         events.Discard,
		volume:      cfg.Volume,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m, nil
}

// StartPassage makes in the only playing passage, replacing whatever was
// playing. fade is applied on top of the baked passage fades; pass a zero
// Fade when the buffer already carries its fade-in.
func (m *Mixer) StartPassage(in Input, fade Fade) error {
	if in == nil {
		return ErrNilInput
	}
	if err := in.MarkPlaying(); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = Single
	m.cur = lane{in: in}
	m.next, m.queued = lane{}, lane{}
	m.xfTotal, m.xfDone = 0, 0
	m.fadeIn = ramp{curve: fade.Curve, total: max(fade.Frames, 0)}
	m.mu.Unlock()

	m.logger.Debug("passage started", "id", in.ID(), "fade_frames", fade.Frames)
	m.pub.Publish(events.Event{Kind: events.PassageStarted, EntryID: in.ID()})
	return nil
}

// StartCrossfade overlaps the playing passage outgoing with incoming. Both
// buffers carry their own fade envelopes, so the overlap runs for the
// shorter of the two fades and the output is their sum. A zero-length
// overlap switches to incoming at once.
func (m *Mixer) StartCrossfade(outgoing uuid.UUID, fadeOut Fade, incoming Input, fadeIn Fade) error {
	if incoming == nil {
		return ErrNilInput
	}

	m.mu.Lock()
	if m.state != Single || m.cur.in.ID() != outgoing {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: %s (state %v)", ErrNotPlaying, outgoing, state)
	}
	m.mu.Unlock()

	if err := incoming.MarkPlaying(); err != nil {
		return err
	}

	total := max(min(fadeOut.Frames, fadeIn.Frames), 0)

	m.mu.Lock()
	if m.state != Single || m.cur.in.ID() != outgoing {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotPlaying, outgoing)
	}
	m.next = lane{in: incoming}
	m.xfTotal, m.xfDone = total, 0
	m.state = Crossfading
	m.logger.Debug("crossfade started", "outgoing", outgoing, "incoming", incoming.ID(),
		"frames", total, "out_curve", fadeOut.Curve, "in_curve", fadeIn.Curve)
	m.pub.Publish(events.Event{Kind: events.CrossfadeStarted, EntryID: outgoing, Incoming: incoming.ID()})
	if total == 0 {
		m.completeCrossfadeLocked()
	}
	m.mu.Unlock()
	return nil
}

// Enqueue sets the passage that follows the current one with no gap and
// no overlap. It replaces any earlier queued passage.
func (m *Mixer) Enqueue(in Input) error {
	if in == nil {
		return ErrNilInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur.in == nil {
		return fmt.Errorf("%w: nothing to follow", ErrNotPlaying)
	}
	m.queued = lane{in: in}
	return nil
}

// Pause starts decaying the output toward silence. Buffers are not read
// while paused, so Resume continues from the same position.
func (m *Mixer) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Paused {
		return
	}
	m.resumeTo = m.state
	m.state = Paused
	m.decaying = m.last
}

// Resume returns to the state before Pause and fades the output back in.
func (m *Mixer) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Paused {
		return ErrNotPaused
	}
	m.state = m.resumeTo
	m.fadeIn = ramp{curve: m.cfg.ResumeCurve, total: m.resumeFrame}
	return nil
}

// Stop drops every passage and goes idle. It returns the ids that were
// playing.
func (m *Mixer) Stop() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []uuid.UUID
	for _, l := range []lane{m.cur, m.next, m.queued} {
		if l.in != nil {
			ids = append(ids, l.in.ID())
		}
	}
	m.state = Idle
	m.cur, m.next, m.queued = lane{}, lane{}, lane{}
	m.fadeIn = ramp{}
	return ids
}

// Drop removes id from playback. A crossfade collapses onto the other
// passage without a completion notification. It reports whether id was
// playing.
func (m *Mixer) Drop(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queued.in != nil && m.queued.in.ID() == id {
		m.queued = lane{}
		return true
	}

	switch {
	case m.next.in != nil && m.next.in.ID() == id:
		m.next = lane{}
		m.setStateLocked(Single)
	case m.cur.in != nil && m.cur.in.ID() == id:
		if m.next.in != nil {
			m.cur, m.next = m.next, lane{}
			m.setStateLocked(Single)
			break
		}
		m.cur = lane{}
		m.setStateLocked(Idle)
	default:
		return false
	}
	m.xfTotal, m.xfDone = 0, 0
	return true
}

// setStateLocked changes the playing state, or the state Resume returns to
// while paused.
func (m *Mixer) setStateLocked(s State) {
	if m.state == Paused {
		m.resumeTo = s
		return
	}
	m.state = s
}

// SetVolume sets the master volume, clamped to [0, 1].
func (m *Mixer) SetVolume(v float32) {
	v = min(max(v, 0), 1)
	m.mu.Lock()
	m.volume = v
	m.mu.Unlock()
}

// Volume returns the master volume.
func (m *Mixer) Volume() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// State returns the current mode.
func (m *Mixer) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Render fills dst with the next len(dst) output frames.
func (m *Mixer) Render(dst []audio.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range dst {
		dst[i] = m.frameLocked()
	}
	m.rendered += uint64(len(dst))
}

func (m *Mixer) frameLocked() audio.Frame {
	var f audio.Frame

	switch m.state {
	case Idle:
		m.last = f
		return f

	case Paused:
		return m.decayLocked()

	case Single:
		f = m.singleLocked()

	case Crossfading:
		a, underA, outDone := m.cur.pull()
		b, underB, inDone := m.next.pull()
		if underA {
			m.underrunLocked(m.cur.in.ID())
		}
		if underB {
			m.underrunLocked(m.next.in.ID())
		}
		if inDone {
			b = audio.Frame{}
		}
		f = a.Add(b)
		m.xfDone++
		if m.xfDone >= m.xfTotal || outDone {
			m.completeCrossfadeLocked()
		}
	}

	f = f.Scale(m.volume)
	if m.fadeIn.active() {
		f = f.Scale(m.fadeIn.next())
	}
	m.last = f
	return f
}

// singleLocked pulls from the current passage. When it ends, a queued
// passage takes over within the same frame.
func (m *Mixer) singleLocked() audio.Frame {
	for {
		f, underrun, ended := m.cur.pull()
		if underrun {
			m.underrunLocked(m.cur.in.ID())
		}
		if !ended {
			return f
		}

		id := m.cur.in.ID()
		m.pub.Publish(events.Event{Kind: events.PassageCompleted, EntryID: id})
		m.logger.Debug("passage completed", "id", id)

		if m.queued.in == nil {
			m.state = Idle
			m.cur = lane{}
			return audio.Frame{}
		}
		m.cur, m.queued = m.queued, lane{}
		if err := m.cur.in.MarkPlaying(); err != nil {
			m.logger.Warn("queued passage cannot play", "id", m.cur.in.ID(), "err", err)
		}
		m.pub.Publish(events.Event{Kind: events.PassageStarted, EntryID: m.cur.in.ID()})
	}
}

// completeCrossfadeLocked drops the outgoing passage and continues with the
// incoming one. It runs once per crossfade.
func (m *Mixer) completeCrossfadeLocked() {
	out := m.cur.in.ID()
	in := m.next.in.ID()

	m.cur = m.next
	m.next = lane{}
	m.state = Single
	m.crossfades++

	m.metrics.CrossfadesCompleted.Add(context.Background(), 1)
	m.pub.Publish(events.Event{Kind: events.CrossfadeCompleted, EntryID: out, Incoming: in})
	m.logger.Debug("crossfade completed", "outgoing", out, "incoming", in)
}

func (m *Mixer) decayLocked() audio.Frame {
	floor := m.cfg.DecayFloor
	d := &m.decaying
	d.Left *= m.cfg.DecayFactor
	d.Right *= m.cfg.DecayFactor
	if float32(math.Abs(float64(d.Left))) < floor {
		d.Left = 0
	}
	if float32(math.Abs(float64(d.Right))) < floor {
		d.Right = 0
	}
	m.last = *d
	return *d
}

func (m *Mixer) underrunLocked(id uuid.UUID) {
	m.underruns++
	m.metrics.MixerUnderruns.Add(context.Background(), 1)
	if m.underruns == 1 || m.underruns%underrunLogEvery == 0 {
		m.logger.Warn("buffer underrun, repeating last frame", "id", id, "underruns", m.underruns)
	}
}

// Status is a snapshot of the mixer.
type Status struct {
	State            State
	Current          uuid.UUID
	Incoming         uuid.UUID
	Queued           uuid.UUID
	Position         int64
	PositionTicks    int64
	CrossfadeElapsed int64
	CrossfadeTotal   int64
	Volume           float32
	Underruns        uint64
	Crossfades       uint64
	Rendered         uint64
}

// Status returns the current snapshot. Position counts frames consumed
// from the current passage.
func (m *Mixer) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		State:      m.state,
		Position:   m.cur.pos,
		Volume:     m.volume,
		Underruns:  m.underruns,
		Crossfades: m.crossfades,
		Rendered:   m.rendered,
	}
	if m.cur.in != nil {
		s.Current = m.cur.in.ID()
	}
	if m.queued.in != nil {
		s.Queued = m.queued.in.ID()
	}
	if m.next.in != nil {
		s.Incoming = m.next.in.ID()
		s.CrossfadeElapsed = m.xfDone
		s.CrossfadeTotal = m.xfTotal
	}
	s.PositionTicks, _ = timing.SamplesToTicks(s.Position, m.cfg.SampleRate)
	return s
}
