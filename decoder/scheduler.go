// SPDX-License-Identifier: EPL-2.0

package decoder

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/buffers"
	"github.com/ik5/audxfade/events"
	"github.com/ik5/audxfade/internal/logging"
	"github.com/ik5/audxfade/internal/observe"
	"github.com/ik5/audxfade/timing"
)

const (
	DefaultSampleRate       = 44_100
	DefaultChunk            = time.Second
	DefaultWorkPeriod       = 5 * time.Second
	DefaultBackpressurePoll = 20 * time.Millisecond
	DefaultPartialDecode    = 15 * time.Second
)

// Config tunes the scheduler.
type Config struct {
	// SampleRate is the working rate every passage is resampled to.
	SampleRate int
	// Chunk is the amount of audio decoded between scheduling checks.
	Chunk time.Duration
	// WorkPeriod is how long a task runs before the queue is re-examined
	// for higher-priority work.
	WorkPeriod time.Duration
	// BackpressurePoll is how often blocked tasks are re-checked when
	// nothing else can run.
	BackpressurePoll time.Duration
	// PartialDecode is the window decoded for requests without FullDecode.
	PartialDecode time.Duration
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		SampleRate:       DefaultSampleRate,
		Chunk:            DefaultChunk,
		WorkPeriod:       DefaultWorkPeriod,
		BackpressurePoll: DefaultBackpressurePoll,
		PartialDecode:    DefaultPartialDecode,
	}
}

// Validate checks c.
func (c Config) Validate() error {
	var errs []error
	if !timing.IsSupportedRate(c.SampleRate) {
		errs = append(errs, fmt.Errorf("%w: %w: %d", ErrInvalidConfig, timing.ErrInvalidRate, c.SampleRate))
	}
	if c.Chunk <= 0 {
		errs = append(errs, fmt.Errorf("%w: chunk %v must be positive", ErrInvalidConfig, c.Chunk))
	}
	if c.WorkPeriod <= 0 {
		errs = append(errs, fmt.Errorf("%w: work period %v must be positive", ErrInvalidConfig, c.WorkPeriod))
	}
	if c.BackpressurePoll <= 0 {
		errs = append(errs, fmt.Errorf("%w: backpressure poll %v must be positive", ErrInvalidConfig, c.BackpressurePoll))
	}
	if c.PartialDecode <= 0 {
		errs = append(errs, fmt.Errorf("%w: partial decode %v must be positive", ErrInvalidConfig, c.PartialDecode))
	}
	return errors.Join(errs...)
}

func (c Config) frames(d time.Duration) int64 {
	n, _ := timing.TicksToSamples(timing.DurationToTicks(d), c.SampleRate)
	return max(n, 1)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logging.WithComponent(l, "decoder") }
}

// WithPublisher sets where decode errors are announced.
func WithPublisher(p events.Publisher) Option {
	return func(s *Scheduler) { s.pub = p }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithOpener sets how passage paths are opened.
func WithOpener(o Opener) Option {
	return func(s *Scheduler) { s.opener = o }
}

// Scheduler is the single decode worker. Run advances at most one passage
// at a time, picked from a priority queue; Submit, Cancel and Promote may
// be called from any goroutine.
type Scheduler struct {
	cfg         Config
	chunkFrames int64
	bufs        *buffers.Manager
	opener      Opener
	logger      *slog.Logger
	pub         events.Publisher
	metrics     *observe.Metrics

	wake chan struct{}

	mu      sync.Mutex
	queue   taskQueue
	tasks   map[uuid.UUID]*task
	active  *task
	seq     uint64
	running bool
	stopped bool
}

// New creates a Scheduler feeding bufs.
func New(cfg Config, bufs *buffers.Manager, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:    cfg,
		bufs:   bufs,
		logger: logging.WithComponent(nil, "decoder"),
		pub:    events.Discard,
		wake:   make(chan struct{}, 1),
		tasks:  make(map[uuid.UUID]*task),
	}
	s.chunkFrames = cfg.frames(cfg.Chunk)
	for _, opt := range opts {
		opt(s)
	}
	if s.opener == nil {
		return nil, fmt.Errorf("%w: no opener", ErrInvalidConfig)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// Submit registers the buffer for req and queues it for decoding. The
// buffer exists when Submit returns. Submitting an entry that is already
// queued raises its priority and decode scope if req asks for more; an
// entry whose decode has ended returns its buffer untouched until it is
// released.
func (s *Scheduler) Submit(req Request) (*buffers.Handle, error) {
	if err := req.Passage.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrStopped
	}
	if t, ok := s.tasks[req.EntryID]; ok {
		s.promoteLocked(t, max(t.req.Priority, req.Priority), t.req.FullDecode || req.FullDecode)
		return t.handle, nil
	}
	if h, err := s.bufs.Get(req.EntryID); err == nil {
		return h, nil
	}

	h, err := s.bufs.Create(req.EntryID, req.Capacity)
	if err != nil {
		return nil, err
	}
	h.SetSource(req.Passage.Path, 0)

	s.seq++
	t := &task{req: req, seq: s.seq, handle: h, index: -1}
	s.tasks[req.EntryID] = t
	heap.Push(&s.queue, t)
	s.signal()

	s.logger.Debug("decode submitted", "id", req.EntryID, "path", req.Passage.Path,
		"priority", req.Priority, "full", req.FullDecode)
	return h, nil
}

// Cancel abandons the request for id and releases its buffer. A request
// being decoded stops after its current chunk.
func (s *Scheduler) Cancel(id uuid.UUID) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	delete(s.tasks, id)
	t.cancelled = true
	inFlight := s.active == t
	if !inFlight {
		s.queue.remove(t)
	}
	s.mu.Unlock()

	if !inFlight {
		_ = t.cursor.close()
	}
	if err := s.bufs.Release(id); err != nil && !errors.Is(err, buffers.ErrBufferNotFound) {
		return err
	}
	s.logger.Debug("decode cancelled", "id", id, "in_flight", inFlight)
	return nil
}

// Promote changes the priority of id and, with full set, lifts a partial
// decode to a full one.
func (s *Scheduler) Promote(id uuid.UUID, p Priority, full bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	s.promoteLocked(t, p, full || t.req.FullDecode)
	return nil
}

func (s *Scheduler) promoteLocked(t *task, p Priority, full bool) {
	t.req.Priority = p
	t.req.FullDecode = full

	switch {
	case t.state == taskParked && full:
		t.state = taskYielded
		heap.Push(&s.queue, t)
	case t.index >= 0:
		heap.Fix(&s.queue, t.index)
	}
	s.signal()
}

// Len returns the number of requests not yet finished, including the one
// being decoded and parked partial decodes.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Probe opens path and returns its duration in ticks, decoding the whole
// file when the format cannot report its length.
func (s *Scheduler) Probe(path string) (int64, error) {
	return Probe(s.opener, path)
}

// Probe returns the duration of path in ticks.
func Probe(open Opener, path string) (int64, error) {
	src, err := open.Open(path)
	if err != nil {
		return 0, &RequestError{Path: path, Op: "probe", Err: fmt.Errorf("%w: %w", ErrSourceOpenFailed, err)}
	}
	defer src.Close()

	n := audio.FrameLength(src)
	if n < 0 {
		if n, err = audio.SkipFrames(src, math.MaxInt64); err != nil {
			return 0, &RequestError{Path: path, Op: "probe", Err: fmt.Errorf("%w: %w", ErrDecodeFailed, err)}
		}
	}
	return timing.ApproxSamplesToTicks(n, src.SampleRate())
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run is the worker loop. It returns when ctx is done; pending requests are
// dropped and their sources closed.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.stopped:
		s.mu.Unlock()
		return ErrStopped
	case s.running:
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	defer s.shutdown()

	poll := time.NewTimer(s.cfg.BackpressurePoll)
	defer poll.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		t, blocked := s.next()
		if t != nil {
			s.work(ctx, t)
			continue
		}

		var pollC <-chan time.Time
		if blocked {
			poll.Reset(s.cfg.BackpressurePoll)
			pollC = poll.C
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		case <-pollC:
		}
	}
}

// next pops the highest-priority task that can make progress. blocked
// reports whether tasks were skipped because their buffers are full.
func (s *Scheduler) next() (*task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var skipped []*task
	defer func() {
		for _, t := range skipped {
			heap.Push(&s.queue, t)
		}
	}()

	for s.queue.Len() > 0 {
		t := heap.Pop(&s.queue).(*task)
		if t.blocked && t.handle.ShouldPauseDecoder() {
			skipped = append(skipped, t)
			continue
		}
		t.blocked = false
		t.state = taskInProgress
		s.active = t
		return t, false
	}
	return nil, len(skipped) > 0
}

// work advances t until it finishes, fails or yields.
func (s *Scheduler) work(ctx context.Context, t *task) {
	started := time.Now()
	log := s.logger.With("id", t.id(), "path", t.req.Passage.Path)

	if t.cursor == nil {
		c, err := openCursor(s.opener, t.req.Passage, s.cfg.SampleRate, int(s.chunkFrames))
		if err != nil {
			s.failOrDrop(t, "open", err)
			return
		}
		t.cursor = c
		t.handle.SetSource(t.req.Passage.Path, c.sourceRate)
		if c.discovered {
			_ = s.bufs.SetDiscoveredEnd(t.id(), c.endTicks)
		}
		if c.fadeOutMissing(t.req.Passage) {
			log.Warn("passage end unknown, fade-out skipped")
		}
		log.Debug("decode started", "source_rate", c.sourceRate, "frames", c.end)
	}

	for {
		s.mu.Lock()
		cancelled := t.cancelled
		full := t.req.FullDecode
		s.mu.Unlock()

		if cancelled {
			s.drop(t)
			return
		}
		if ctx.Err() != nil {
			s.requeue(t, false)
			return
		}

		limit := t.cursor.end
		capped := false
		if !full {
			if partial := s.cfg.frames(s.cfg.PartialDecode); limit < 0 || partial < limit {
				limit, capped = partial, true
			}
		}
		if capped && t.cursor.pos >= limit && len(t.cursor.pending) == 0 {
			s.park(t)
			return
		}

		maxFrames := s.chunkFrames
		if limit >= 0 {
			maxFrames = min(maxFrames, limit-t.cursor.pos)
		}

		chunkStart := time.Now()
		n, err := t.cursor.step(t.handle, maxFrames)
		s.metrics.ChunkDuration.Record(ctx, time.Since(chunkStart).Seconds())
		if n > 0 {
			s.metrics.DecodeChunks.Add(ctx, 1)
			s.metrics.DecodedFrames.Add(ctx, int64(n))
		}
		if err != nil {
			s.failOrDrop(t, "decode", err)
			return
		}

		if t.cursor.done() {
			s.finish(t)
			return
		}
		if t.handle.ShouldPauseDecoder() {
			s.metrics.SchedulerYields.Add(ctx, 1, observe.Reason(observe.YieldBackpressure))
			s.requeue(t, true)
			return
		}
		if time.Since(started) >= s.cfg.WorkPeriod && s.higherWaiting(t) {
			s.metrics.SchedulerYields.Add(ctx, 1, observe.Reason(observe.YieldPriority))
			log.Debug("yielding to higher priority")
			s.requeue(t, false)
			return
		}
	}
}

func (s *Scheduler) higherWaiting(t *task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.waitingAbove(t.req.Priority)
}

// requeue puts t back with its cursor intact.
func (s *Scheduler) requeue(t *task, blocked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = nil
	if t.cancelled {
		_ = t.cursor.close()
		return
	}
	t.state = taskYielded
	t.blocked = blocked
	heap.Push(&s.queue, t)
}

// park sets a partial decode aside until Promote asks for the rest.
func (s *Scheduler) park(t *task) {
	s.metrics.SchedulerYields.Add(context.Background(), 1, observe.Reason(observe.YieldPartial))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = nil
	if t.cancelled {
		_ = t.cursor.close()
		return
	}
	if t.req.FullDecode {
		// Promoted while the last chunk was decoding.
		t.state = taskYielded
		heap.Push(&s.queue, t)
		return
	}
	t.state = taskParked
	s.logger.Debug("partial decode parked", "id", t.id(), "frames", t.cursor.pos)
}

func (s *Scheduler) finish(t *task) {
	total := t.cursor.pos
	if t.cursor.end < 0 {
		// Length was unknown until the source ran out.
		end := t.req.Passage.Timing.Start
		if d, err := timing.SamplesToTicks(total, s.cfg.SampleRate); err == nil {
			end += d
		}
		_ = s.bufs.SetDiscoveredEnd(t.id(), end)
	}
	_ = t.cursor.close()
	_ = t.handle.Finalize(total)

	s.mu.Lock()
	s.active = nil
	if s.tasks[t.id()] == t {
		delete(s.tasks, t.id())
	}
	s.mu.Unlock()

	s.logger.Debug("decode finished", "id", t.id(), "frames", total)
}

func (s *Scheduler) drop(t *task) {
	_ = t.cursor.close()

	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
}

// failOrDrop reports err unless t was cancelled meanwhile; a cancelled
// task's buffer is already released.
func (s *Scheduler) failOrDrop(t *task, op string, err error) {
	s.mu.Lock()
	cancelled := t.cancelled
	s.mu.Unlock()

	if cancelled {
		s.logger.Debug("error after cancel ignored", "id", t.id(), "op", op, "err", err)
		s.drop(t)
		return
	}
	s.fail(t, op, err)
}

// fail abandons t. Frames already pushed stay playable: the buffer is
// finalized so it drains and is torn down like any other.
func (s *Scheduler) fail(t *task, op string, err error) {
	var pushed int64
	if t.cursor != nil {
		pushed = t.cursor.pos - int64(len(t.cursor.pending)/2)
		_ = t.cursor.close()
	}
	_ = t.handle.Finalize(max(pushed, 0))

	s.mu.Lock()
	s.active = nil
	if s.tasks[t.id()] == t {
		delete(s.tasks, t.id())
	}
	s.mu.Unlock()

	rerr := &RequestError{EntryID: t.id(), Path: t.req.Passage.Path, Op: op, Err: err}
	s.metrics.DecodeErrors.Add(context.Background(), 1, observe.Op(op))
	s.logger.Error("decode failed", "id", t.id(), "path", t.req.Passage.Path, "op", op, "err", err)
	s.pub.Publish(events.Event{Kind: events.DecodeError, EntryID: t.id(), Err: rerr})
}

func (s *Scheduler) shutdown() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = make(map[uuid.UUID]*task)
	s.queue = nil
	s.active = nil
	s.running = false
	s.stopped = true
	s.mu.Unlock()

	for _, t := range tasks {
		_ = t.cursor.close()
	}
}
