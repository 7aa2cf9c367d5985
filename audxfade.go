// SPDX-License-Identifier: EPL-2.0

package audxfade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ik5/audxfade/buffers"
	"github.com/ik5/audxfade/config"
	"github.com/ik5/audxfade/decoder"
	"github.com/ik5/audxfade/events"
	"github.com/ik5/audxfade/formats"
	"github.com/ik5/audxfade/internal/logging"
	"github.com/ik5/audxfade/internal/observe"
	"github.com/ik5/audxfade/mixer"
	"github.com/ik5/audxfade/output"
	"github.com/ik5/audxfade/passage"
)

// Engine wires the buffer manager, decode scheduler and mixer together and
// is the surface the queue layer talks to.
type Engine struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *observe.Metrics

	bus   *events.Bus
	bufs  *buffers.Manager
	sched *decoder.Scheduler
	mix   *mixer.Mixer
}

// New builds an engine from cfg. Nothing runs until Run is called.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.opener == nil {
		reg := o.registry
		if reg == nil {
			reg = formats.Default()
		}
		o.opener = decoder.RegistryOpener{Registry: reg}
	}

	met := observe.DefaultMetrics()
	if o.meters != nil {
		var err error
		if met, err = observe.NewMetrics(o.meters); err != nil {
			return nil, fmt.Errorf("create metrics: %w", err)
		}
	}

	bus := events.NewBus()

	bufs, err := buffers.NewManager(cfg.Buffers(),
		buffers.WithLogger(o.logger),
		buffers.WithPublisher(bus),
		buffers.WithMetrics(met),
	)
	if err != nil {
		return nil, err
	}

	sched, err := decoder.New(cfg.DecoderSettings(), bufs,
		decoder.WithLogger(o.logger),
		decoder.WithPublisher(bus),
		decoder.WithMetrics(met),
		decoder.WithOpener(o.opener),
	)
	if err != nil {
		return nil, err
	}

	mc, err := cfg.MixerSettings()
	if err != nil {
		return nil, err
	}
	mix, err := mixer.New(mc,
		mixer.WithLogger(o.logger),
		mixer.WithPublisher(bus),
		mixer.WithMetrics(met),
	)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:     cfg,
		logger:  logging.WithComponent(o.logger, "engine"),
		metrics: met,
		bus:     bus,
		bufs:    bufs,
		sched:   sched,
		mix:     mix,
	}, nil
}

// Run drives the decode scheduler and the buffer janitor until ctx is
// done.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.sched.Run(ctx) })
	g.Go(func() error { return e.janitor(ctx) })

	e.logger.Info("engine started", "sample_rate", e.cfg.SampleRate)
	err := g.Wait()
	e.logger.Info("engine stopped")
	return err
}

// Close ends every event subscription.
func (e *Engine) Close() error {
	e.bus.Close()
	return nil
}

// SampleRate returns the working rate of every buffer and the mixer.
func (e *Engine) SampleRate() int { return e.cfg.SampleRate }

// SubmitDecode registers a buffer for id and queues p for decoding. The
// buffer can be queried as soon as SubmitDecode returns.
func (e *Engine) SubmitDecode(id uuid.UUID, p passage.Passage, pr decoder.Priority, full bool) (*buffers.Handle, error) {
	return e.sched.Submit(decoder.Request{
		EntryID:    id,
		Passage:    p,
		Priority:   pr,
		FullDecode: full,
	})
}

// Submit queues a fully specified request.
func (e *Engine) Submit(req decoder.Request) (*buffers.Handle, error) {
	return e.sched.Submit(req)
}

// Promote raises the priority of id and, with full set, continues a
// partial decode to the end.
func (e *Engine) Promote(id uuid.UUID, pr decoder.Priority, full bool) error {
	return e.sched.Promote(id, pr, full)
}

// CancelDecode abandons id wherever it is: queued, decoding, buffered or
// playing. Its buffer is released.
func (e *Engine) CancelDecode(id uuid.UUID) error {
	if e.mix.Drop(id) {
		e.logger.Debug("cancelled entry removed from playback", "id", id)
	}
	err := e.sched.Cancel(id)
	if !errors.Is(err, decoder.ErrUnknownRequest) {
		return err
	}
	// Decoding already finished; only the buffer is left.
	return e.bufs.Release(id)
}

// Probe returns the length of the file at path in ticks.
func (e *Engine) Probe(path string) (int64, error) {
	return e.sched.Probe(path)
}

// StartPassage plays id alone. fade is an extra mixer-level fade-in on top
// of the one baked into the buffer.
func (e *Engine) StartPassage(id uuid.UUID, fade mixer.Fade) error {
	h, err := e.bufs.Get(id)
	if err != nil {
		return err
	}
	return e.mix.StartPassage(h, fade)
}

// StartCrossfade overlaps the playing passage outgoing with incoming.
func (e *Engine) StartCrossfade(outgoing uuid.UUID, fadeOut mixer.Fade, incoming uuid.UUID, fadeIn mixer.Fade) error {
	h, err := e.bufs.Get(incoming)
	if err != nil {
		return err
	}
	return e.mix.StartCrossfade(outgoing, fadeOut, h, fadeIn)
}

// Enqueue makes id follow the playing passage with no gap.
func (e *Engine) Enqueue(id uuid.UUID) error {
	h, err := e.bufs.Get(id)
	if err != nil {
		return err
	}
	return e.mix.Enqueue(h)
}

// Pause decays output to silence without consuming buffers.
func (e *Engine) Pause() { e.mix.Pause() }

// Resume continues after Pause with a short fade-in.
func (e *Engine) Resume() error { return e.mix.Resume() }

// SetVolume sets the master volume in [0, 1].
func (e *Engine) SetVolume(v float32) { e.mix.SetVolume(v) }

// Status returns the mixer snapshot.
func (e *Engine) Status() mixer.Status { return e.mix.Status() }

// Buffers lists the registered buffers, oldest first.
func (e *Engine) Buffers() []buffers.Info { return e.bufs.List() }

// BufferState returns the lifecycle state of id.
func (e *Engine) BufferState(id uuid.UUID) (buffers.State, error) {
	return e.bufs.State(id)
}

// Mixer exposes the frame source for output.
func (e *Engine) Mixer() *mixer.Mixer { return e.mix }

// Subscribe returns a channel of the given notification kinds, or all of
// them. Slow readers lose notifications rather than stall the engine.
func (e *Engine) Subscribe(kinds ...events.Kind) <-chan events.Event {
	return e.bus.Subscribe(e.cfg.Events.QueueSize, kinds...)
}

// Unsubscribe closes a channel returned by Subscribe.
func (e *Engine) Unsubscribe(ch <-chan events.Event) { e.bus.Unsubscribe(ch) }

// NewPump builds the device-side output pump over the mixer.
func (e *Engine) NewPump() (*output.Pump, error) {
	return output.NewPump(e.cfg.OutputSettings(), e.mix,
		output.WithLogger(e.logger),
		output.WithMetrics(e.metrics),
	)
}

// Render mixes offline into a WAV file on w. The sample rate is always the
// working rate.
func (e *Engine) Render(ctx context.Context, w io.WriteSeeker, opts output.RenderOptions) (int64, error) {
	opts.SampleRate = e.cfg.SampleRate
	return output.WriteWAV(ctx, w, e.mix, opts)
}

// janitor releases buffers that can no longer be heard: the outgoing side
// of a completed crossfade, finished passages and anything exhausted. It
// also reports notifications lost to slow subscribers.
func (e *Engine) janitor(ctx context.Context) error {
	ch := e.bus.Subscribe(e.cfg.Events.QueueSize,
		events.Exhausted, events.CrossfadeCompleted, events.PassageCompleted)
	defer e.bus.Unsubscribe(ch)

	sweep := time.NewTicker(e.cfg.Events.Sweep)
	defer sweep.Stop()

	var dropped uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			e.retire(ev.EntryID, ev.Kind.String())
		case <-sweep.C:
			for _, id := range e.bufs.Exhausted() {
				e.retire(id, "sweep")
			}
			if d := e.bus.Dropped(); d > dropped {
				e.metrics.DroppedEvents.Add(ctx, int64(d-dropped))
				e.logger.Warn("notifications dropped", "count", d-dropped)
				dropped = d
			}
		}
	}
}

// retire stops any decode of id and releases its buffer.
func (e *Engine) retire(id uuid.UUID, reason string) {
	err := e.sched.Cancel(id)
	if errors.Is(err, decoder.ErrUnknownRequest) {
		err = e.bufs.Release(id)
	}
	switch {
	case err == nil:
		e.logger.Debug("buffer retired", "id", id, "reason", reason)
	case errors.Is(err, buffers.ErrBufferNotFound):
	default:
		e.logger.Warn("retire buffer", "id", id, "err", err)
	}
}
