// SPDX-License-Identifier: EPL-2.0

// Package playlist is a small queue layer over the engine: it submits
// decodes ahead of playback, starts passages, and triggers crossfades or
// gapless hand-offs at each passage's crossfade point.
package playlist

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ik5/audxfade/buffers"
	"github.com/ik5/audxfade/decoder"
	"github.com/ik5/audxfade/events"
	"github.com/ik5/audxfade/internal/logging"
	"github.com/ik5/audxfade/mixer"
	"github.com/ik5/audxfade/passage"
	"github.com/ik5/audxfade/timing"
)

const (
	// DefaultPoll is how often playback position is checked.
	DefaultPoll = 10 * time.Millisecond
	// DefaultLookahead is how many entries past the next one are
	// prefetched.
	DefaultLookahead = 2
)

// Player is the part of the engine the sequencer drives.
type Player interface {
	SubmitDecode(id uuid.UUID, p passage.Passage, pr decoder.Priority, full bool) (*buffers.Handle, error)
	Promote(id uuid.UUID, pr decoder.Priority, full bool) error
	StartPassage(id uuid.UUID, fade mixer.Fade) error
	StartCrossfade(outgoing uuid.UUID, fadeOut mixer.Fade, incoming uuid.UUID, fadeIn mixer.Fade) error
	Enqueue(id uuid.UUID) error
	Status() mixer.Status
	Subscribe(kinds ...events.Kind) <-chan events.Event
	Unsubscribe(ch <-chan events.Event)
	SampleRate() int
}

type entry struct {
	id        uuid.UUID
	p         passage.Passage
	h         *buffers.Handle
	submitted bool
	pr        decoder.Priority
	full      bool
	failed    bool
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) { s.logger = logging.WithComponent(l, "playlist") }
}

// WithPoll sets the position check interval.
func WithPoll(d time.Duration) Option {
	return func(s *Sequencer) { s.poll = d }
}

// WithLookahead sets how many entries past the next one are prefetched.
func WithLookahead(n int) Option {
	return func(s *Sequencer) { s.lookahead = max(n, 0) }
}

// Sequencer plays passages in order. It is not safe for concurrent use;
// Run owns it.
type Sequencer struct {
	player    Player
	entries   []*entry
	logger    *slog.Logger
	poll      time.Duration
	lookahead int

	cur     int
	started bool
	handoff bool
	done    bool
}

// New returns a sequencer for ps.
func New(player Player, ps []passage.Passage, opts ...Option) *Sequencer {
	s := &Sequencer{
		player:    player,
		logger:    logging.WithComponent(nil, "playlist"),
		poll:      DefaultPoll,
		lookahead: DefaultLookahead,
	}
	for _, p := range ps {
		s.entries = append(s.entries, &entry{id: uuid.New(), p: p})
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IDs returns the queue-entry id of every passage, in order.
func (s *Sequencer) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(s.entries))
	for i, e := range s.entries {
		ids[i] = e.id
	}
	return ids
}

// Run plays the list to the end or until ctx is done.
func (s *Sequencer) Run(ctx context.Context) error {
	if len(s.entries) == 0 {
		return nil
	}

	ch := s.player.Subscribe(
		events.ReadyForStart, events.DecodeError, events.PassageStarted,
		events.CrossfadeCompleted, events.PassageCompleted,
	)
	defer s.player.Unsubscribe(ch)

	if err := s.schedule(); err != nil {
		return err
	}

	tick := time.NewTicker(s.poll)
	defer tick.Stop()

	for !s.done {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.handle(ev); err != nil {
				return err
			}
		case <-tick.C:
			if err := s.check(); err != nil {
				return err
			}
		}
	}
	s.logger.Info("playlist finished", "entries", len(s.entries))
	return nil
}

func (s *Sequencer) index(id uuid.UUID) int {
	for i, e := range s.entries {
		if e.id == id {
			return i
		}
	}
	return -1
}

// following returns the first playable entry after i, or -1.
func (s *Sequencer) following(i int) int {
	for j := i + 1; j < len(s.entries); j++ {
		if !s.entries[j].failed {
			return j
		}
	}
	return -1
}

// schedule submits the current entry at Immediate, the next at Next and a
// few more as partial prefetches, raising entries already submitted.
func (s *Sequencer) schedule() error {
	n := 0
	for i := s.cur; i < len(s.entries) && n < 2+s.lookahead; i++ {
		e := s.entries[i]
		if e.failed {
			continue
		}

		pr := decoder.Prefetch
		switch n {
		case 0:
			pr = decoder.Immediate
		case 1:
			pr = decoder.Next
		}
		full := n < 2
		n++

		if err := s.request(e, pr, full); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) request(e *entry, pr decoder.Priority, full bool) error {
	if !e.submitted {
		h, err := s.player.SubmitDecode(e.id, e.p, pr, full)
		if err != nil {
			s.logger.Error("submit failed", "path", e.p.Path, "err", err)
			e.failed = true
			return nil
		}
		e.h, e.submitted, e.pr, e.full = h, true, pr, full
		return nil
	}
	if pr <= e.pr && (!full || e.full) {
		return nil
	}
	// An unknown request has already finished decoding.
	if err := s.player.Promote(e.id, max(pr, e.pr), full || e.full); err != nil && !errors.Is(err, decoder.ErrUnknownRequest) {
		return err
	}
	e.pr, e.full = max(pr, e.pr), full || e.full
	return nil
}

func (s *Sequencer) handle(ev events.Event) error {
	i := s.index(ev.EntryID)
	if i < 0 {
		return nil
	}

	switch ev.Kind {
	case events.ReadyForStart:
		if !s.started && i == s.cur {
			return s.start(i)
		}

	case events.DecodeError:
		s.logger.Warn("skipping entry", "path", s.entries[i].p.Path, "err", ev.Err)
		s.entries[i].failed = true
		if !s.started && i == s.cur {
			return s.skipTo(s.following(i))
		}

	case events.PassageStarted:
		if i != s.cur {
			// A queued passage took over.
			s.cur = i
			s.handoff = false
			return s.schedule()
		}

	case events.CrossfadeCompleted:
		if in := s.index(ev.Incoming); in >= 0 {
			s.cur = in
			s.handoff = false
			return s.schedule()
		}

	case events.PassageCompleted:
		// After Enqueue the follower announces itself with PassageStarted.
		if i != s.cur || s.handoff {
			return nil
		}
		s.started = false
		s.handoff = false
		return s.skipTo(s.following(i))
	}
	return nil
}

// skipTo makes entry i current and starts it once ready; -1 ends the run.
func (s *Sequencer) skipTo(i int) error {
	if i < 0 {
		s.done = true
		return nil
	}
	s.cur = i
	s.started = false
	if err := s.schedule(); err != nil {
		return err
	}
	if h := s.entries[i].h; h != nil && playable(h) {
		return s.start(i)
	}
	return nil
}

func playable(h *buffers.Handle) bool {
	switch h.State() {
	case buffers.Ready, buffers.Playing, buffers.Finished:
		return true
	}
	return false
}

func (s *Sequencer) start(i int) error {
	e := s.entries[i]
	if err := s.player.StartPassage(e.id, mixer.Fade{}); err != nil {
		return err
	}
	s.started = true
	s.logger.Info("playing", "path", e.p.Path)
	return s.schedule()
}

// check hands off to the next entry once the current one reaches its
// crossfade point.
func (s *Sequencer) check() error {
	if !s.started || s.handoff {
		return nil
	}
	cur := s.entries[s.cur]
	ni := s.following(s.cur)
	if ni < 0 {
		return nil
	}
	next := s.entries[ni]
	if next.h == nil || !playable(next.h) {
		return nil
	}

	st := s.player.Status()
	if st.Current != cur.id || st.State == mixer.Crossfading {
		return nil
	}

	rate := s.player.SampleRate()
	point, err := cur.p.Timing.CrossfadePoint()
	if err != nil || point == cur.p.Timing.End {
		// No overlap: queue the next passage to follow the last frame.
		if err := s.player.Enqueue(next.id); err != nil {
			return nil
		}
		s.handoff = true
		return nil
	}

	at, _ := timing.TicksToSamples(point-cur.p.Timing.Start, rate)
	if st.Position < at {
		return nil
	}

	total := cur.h.TotalFrames()
	if total < 0 {
		d, err := cur.p.Timing.Duration()
		if err != nil {
			return nil
		}
		total, _ = timing.TicksToSamples(d, rate)
	}
	out := mixer.Fade{Curve: cur.p.FadeOutCurve, Frames: max(total-st.Position, 0)}

	inTicks := next.p.Timing.FadeInDuration()
	if lead := next.p.Timing.LeadIn - next.p.Timing.Start; lead > inTicks {
		inTicks = lead
	}
	inFrames, _ := timing.TicksToSamples(inTicks, rate)
	in := mixer.Fade{Curve: next.p.FadeInCurve, Frames: inFrames}

	if err := s.player.StartCrossfade(cur.id, out, next.id, in); err != nil {
		if errors.Is(err, mixer.ErrNotPlaying) {
			return nil
		}
		return err
	}
	s.handoff = true
	s.logger.Debug("crossfade", "from", cur.p.Path, "to", next.p.Path,
		"out_frames", out.Frames, "in_frames", in.Frames)
	return nil
}
