// SPDX-License-Identifier: EPL-2.0

package decoder

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/buffers"
	"github.com/ik5/audxfade/events"
	"github.com/ik5/audxfade/internal/audiotest"
	"github.com/ik5/audxfade/internal/logging"
	"github.com/ik5/audxfade/internal/observe"
	"github.com/ik5/audxfade/passage"
	"github.com/ik5/audxfade/ring"
	"github.com/ik5/audxfade/timing"
)

const testRate = 8000

func sec(s float64) int64 { return int64(s * float64(timing.TickRate)) }

// fakeFiles opens sources built on demand and records the open order.
type fakeFiles struct {
	mu      sync.Mutex
	make    map[string]func() *audiotest.MockSource
	fixed   map[string]audio.Source
	opened  []string
	sources map[string]*audiotest.MockSource
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{
		make:    make(map[string]func() *audiotest.MockSource),
		fixed:   make(map[string]audio.Source),
		sources: make(map[string]*audiotest.MockSource),
	}
}

func (f *fakeFiles) add(path string, mk func() *audiotest.MockSource) {
	f.mu.Lock()
	f.make[path] = mk
	f.mu.Unlock()
}

// addSource registers a ready-made source, opened at most once.
func (f *fakeFiles) addSource(path string, src audio.Source) {
	f.mu.Lock()
	f.fixed[path] = src
	f.mu.Unlock()
}

func (f *fakeFiles) Open(path string) (audio.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if src, ok := f.fixed[path]; ok {
		f.opened = append(f.opened, path)
		return src, nil
	}
	mk, ok := f.make[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	f.opened = append(f.opened, path)
	src := mk()
	f.sources[path] = src
	return src, nil
}

func (f *fakeFiles) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}

func (f *fakeFiles) source(path string) *audiotest.MockSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sources[path]
}

type harness struct {
	sched *Scheduler
	bufs  *buffers.Manager
	files *fakeFiles
	ev    <-chan events.Event
}

func testConfig() Config {
	return Config{
		SampleRate:       testRate,
		Chunk:            100 * time.Millisecond,
		WorkPeriod:       5 * time.Second,
		BackpressurePoll: time.Millisecond,
		PartialDecode:    time.Second,
	}
}

func newHarness(t *testing.T, cfg Config, ringCfg ring.Config) *harness {
	t.Helper()

	bus := events.NewBus()
	t.Cleanup(bus.Close)
	met, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}

	bufs, err := buffers.NewManager(buffers.Config{
		Ring:           ringCfg,
		MaxCapacity:    1_000_000,
		ReadyThreshold: 800,
		MaxBuffers:     12,
	}, buffers.WithPublisher(bus), buffers.WithLogger(logging.Discard()), buffers.WithMetrics(met))
	if err != nil {
		t.Fatal(err)
	}

	files := newFakeFiles()
	sched, err := New(cfg, bufs,
		WithOpener(files),
		WithPublisher(bus),
		WithLogger(logging.Discard()),
		WithMetrics(met),
	)
	if err != nil {
		t.Fatal(err)
	}
	return &harness{sched: sched, bufs: bufs, files: files, ev: bus.Subscribe(4096)}
}

func bigRing() ring.Config {
	return ring.Config{Capacity: 300_000, Headroom: 100, Hysteresis: 1000}
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.sched.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run returned %v", err)
		}
	})
}

// waitFor returns the first event of kind for id, failing after a timeout.
func (h *harness) waitFor(t *testing.T, kind events.Kind, id uuid.UUID) events.Event {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case e := <-h.ev:
			if e.Kind == kind && e.EntryID == id {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %v on %s", kind, id)
		}
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func drain(h *buffers.Handle) []audio.Frame {
	var out []audio.Frame
	for {
		f, ok := h.Pop()
		if !ok {
			return out
		}
		out = append(out, f)
	}
}

func near(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-3 }

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	bad := Config{SampleRate: 12345}
	err := bad.Validate()
	if !errors.Is(err, ErrInvalidConfig) || !errors.Is(err, timing.ErrInvalidRate) {
		t.Errorf("Validate() = %v", err)
	}
}

func TestPriority_String(t *testing.T) {
	t.Parallel()

	for _, p := range []Priority{Prefetch, Next, Immediate} {
		got, err := ParsePriority(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePriority(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Error("ParsePriority accepted an unknown name")
	}
}

func TestScheduler_TrimsPassage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), bigRing())
	h.files.add("ramp.wav", func() *audiotest.MockSource {
		return audiotest.NewRampSource(testRate, 1, 3*testRate)
	})
	h.run(t)

	id := uuid.New()
	handle, err := h.sched.Submit(Request{
		EntryID:    id,
		Passage:    passage.Passage{Path: "ramp.wav", Timing: passage.Timing{Start: sec(1), End: sec(2)}},
		Priority:   Immediate,
		FullDecode: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	fin := h.waitFor(t, events.Finished, id)
	if fin.TotalFrames != testRate {
		t.Errorf("TotalFrames = %d, want %d", fin.TotalFrames, testRate)
	}

	frames := drain(handle)
	if len(frames) != testRate {
		t.Fatalf("got %d frames, want %d", len(frames), testRate)
	}
	for i, f := range []int{0, 1, testRate - 1} {
		want := float32(testRate + f)
		if frames[f].Left != want || frames[f].Right != want {
			t.Errorf("check %d: frame %d = %+v, want mono %v on both sides", i, f, frames[f], want)
		}
	}
	if !h.files.source("ramp.wav").Closed() {
		t.Error("source not closed after finishing")
	}
	if h.sched.Len() != 0 {
		t.Errorf("Len() = %d after finish", h.sched.Len())
	}
}

func TestScheduler_BakesFades(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), bigRing())
	h.files.add("tone.wav", func() *audiotest.MockSource {
		return audiotest.NewConstantSource(testRate, 2, 2*testRate, 1)
	})
	h.run(t)

	id := uuid.New()
	handle, err := h.sched.Submit(Request{
		EntryID: id,
		Passage: passage.Passage{
			Path:         "tone.wav",
			Timing:       passage.Timing{End: sec(2), FadeIn: sec(1), FadeOut: sec(1.5)},
			FadeInCurve:  audio.Linear,
			FadeOutCurve: audio.Linear,
		},
		Priority:   Immediate,
		FullDecode: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, events.Finished, id)

	frames := drain(handle)
	checks := map[int]float32{
		0:     0,
		4000:  0.5,
		8000:  1,
		12000: 1,
		14000: 0.5,
		15999: 1.0 / 4000,
	}
	for at, want := range checks {
		if !near(frames[at].Left, want) || !near(frames[at].Right, want) {
			t.Errorf("frame %d = %+v, want gain %v", at, frames[at], want)
		}
	}
}

func TestScheduler_DownmixesToStereo(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), bigRing())
	h.files.add("quad.wav", func() *audiotest.MockSource {
		return audiotest.NewRampSource(testRate, 4, testRate)
	})
	h.run(t)

	id := uuid.New()
	handle, _ := h.sched.Submit(Request{EntryID: id, Passage: passage.Passage{Path: "quad.wav"}, FullDecode: true})
	h.waitFor(t, events.Finished, id)

	frames := drain(handle)
	if len(frames) != testRate {
		t.Fatalf("got %d frames", len(frames))
	}
	// Channels 0 and 2 average to f+0.5, channels 1 and 3 to f+1.
	if f := frames[10]; f.Left != 10.5 || f.Right != 11 {
		t.Errorf("frame 10 = %+v, want {10.5 11}", f)
	}
}

func TestScheduler_Resamples(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), bigRing())
	h.files.add("hi.wav", func() *audiotest.MockSource {
		return audiotest.NewSineSource(16000, 1, 16000, 440)
	})
	h.run(t)

	id := uuid.New()
	handle, _ := h.sched.Submit(Request{EntryID: id, Passage: passage.Passage{Path: "hi.wav"}, FullDecode: true})
	end := h.waitFor(t, events.EndpointDiscovered, id)
	if end.EndTicks != sec(1) {
		t.Errorf("discovered end = %d, want %d", end.EndTicks, sec(1))
	}
	h.waitFor(t, events.Finished, id)

	n := len(drain(handle))
	if n < testRate-10 || n > testRate {
		t.Errorf("resampled to %d frames, want about %d", n, testRate)
	}
	if info := handle.Info(); info.SourceRate != 16000 {
		t.Errorf("SourceRate = %d", info.SourceRate)
	}
}

func TestScheduler_PriorityOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), bigRing())
	for _, p := range []string{"prefetch-1", "next", "immediate", "prefetch-2"} {
		h.files.add(p, func() *audiotest.MockSource {
			return audiotest.NewSilentSource(testRate, 2, testRate/2)
		})
	}

	ids := map[string]uuid.UUID{}
	submit := func(path string, p Priority) {
		ids[path] = uuid.New()
		if _, err := h.sched.Submit(Request{EntryID: ids[path], Passage: passage.Passage{Path: path}, Priority: p, FullDecode: true}); err != nil {
			t.Fatal(err)
		}
	}
	submit("prefetch-1", Prefetch)
	submit("next", Next)
	submit("immediate", Immediate)
	submit("prefetch-2", Prefetch)
	if h.sched.Len() != 4 {
		t.Fatalf("Len() = %d", h.sched.Len())
	}

	h.run(t)
	h.waitFor(t, events.Finished, ids["prefetch-2"])

	want := []string{"immediate", "next", "prefetch-1", "prefetch-2"}
	got := h.files.order()
	if len(got) != len(want) {
		t.Fatalf("open order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("open order = %v, want %v", got, want)
			break
		}
	}
}

func TestScheduler_YieldsToHigherPriority(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.WorkPeriod = 20 * time.Millisecond
	h := newHarness(t, cfg, bigRing())
	h.files.add("long.ogg", func() *audiotest.MockSource {
		return audiotest.NewSilentSource(testRate, 2, 30*testRate).LimitRead(80).Delay(time.Millisecond)
	})
	h.files.add("now.ogg", func() *audiotest.MockSource {
		return audiotest.NewSilentSource(testRate, 2, testRate)
	})
	h.run(t)

	long := uuid.New()
	lh, err := h.sched.Submit(Request{EntryID: long, Passage: passage.Passage{Path: "long.ogg"}, Priority: Prefetch, FullDecode: true})
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, "prefetch decoding", func() bool { return lh.Written() > 0 })

	now := uuid.New()
	if _, err := h.sched.Submit(Request{EntryID: now, Passage: passage.Passage{Path: "now.ogg"}, Priority: Immediate, FullDecode: true}); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, events.Finished, now)

	if s := lh.State(); s == buffers.Finished || s == buffers.Exhausted {
		t.Fatalf("prefetch finished before the immediate request; state %v", s)
	}
	if lh.Written() >= 30*testRate {
		t.Error("prefetch decoded completely before yielding")
	}

	// The yielded cursor resumes rather than restarting.
	if err := h.sched.Cancel(long); err != nil {
		t.Fatal(err)
	}
	if got := len(h.files.order()); got != 2 {
		t.Errorf("%d opens, want 2", got)
	}
}

func TestScheduler_Backpressure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), ring.Config{Capacity: 2000, Headroom: 50, Hysteresis: 500})
	h.files.add("ramp.flac", func() *audiotest.MockSource {
		return audiotest.NewRampSource(testRate, 1, 10_000)
	})
	h.run(t)

	id := uuid.New()
	handle, err := h.sched.Submit(Request{EntryID: id, Passage: passage.Passage{Path: "ramp.flac"}, Priority: Immediate, FullDecode: true})
	if err != nil {
		t.Fatal(err)
	}

	eventually(t, "buffer to fill", func() bool { return handle.Ring().FreeSpace() <= 50 })

	var got []audio.Frame
	deadline := time.Now().Add(10 * time.Second)
	for !handle.IsExhausted() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %d frames", len(got))
		}
		if handle.Ring().Occupied() > handle.Ring().Capacity() {
			t.Fatal("occupancy above capacity")
		}
		f, ok := handle.Pop()
		if !ok {
			time.Sleep(50 * time.Microsecond)
			continue
		}
		got = append(got, f)
	}

	if len(got) != 10_000 {
		t.Fatalf("received %d frames, want 10000", len(got))
	}
	for i, f := range got {
		if f.Left != float32(i) {
			t.Fatalf("frame %d = %v: frames lost or reordered under backpressure", i, f.Left)
		}
	}
	if handle.Ring().Stats().Overruns == 0 {
		t.Error("decoder never hit a full buffer")
	}
}

func TestScheduler_CancelQueued(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), bigRing())
	a, b := uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{a, b} {
		if _, err := h.sched.Submit(Request{EntryID: id, Passage: passage.Passage{Path: "x.wav"}}); err != nil {
			t.Fatal(err)
		}
	}

	if err := h.sched.Cancel(a); err != nil {
		t.Fatal(err)
	}
	if h.sched.Len() != 1 || h.sched.queue.Len() != 1 {
		t.Errorf("Len() = %d, queue %d after cancel", h.sched.Len(), h.sched.queue.Len())
	}
	if _, err := h.bufs.Get(a); !errors.Is(err, buffers.ErrBufferNotFound) {
		t.Errorf("buffer of cancelled request still registered: %v", err)
	}
	if err := h.sched.Cancel(a); !errors.Is(err, ErrUnknownRequest) {
		t.Errorf("second Cancel = %v", err)
	}
	if err := h.sched.Promote(a, Immediate, true); !errors.Is(err, ErrUnknownRequest) {
		t.Errorf("Promote(cancelled) = %v", err)
	}
}

func TestScheduler_CancelInFlight(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), bigRing())
	h.files.add("slow.mp3", func() *audiotest.MockSource {
		return audiotest.NewSilentSource(testRate, 2, 30*testRate).LimitRead(80).Delay(time.Millisecond)
	})
	h.run(t)

	id := uuid.New()
	handle, _ := h.sched.Submit(Request{EntryID: id, Passage: passage.Passage{Path: "slow.mp3"}, Priority: Immediate, FullDecode: true})
	eventually(t, "decode start", func() bool { return handle.Written() > 0 })

	if err := h.sched.Cancel(id); err != nil {
		t.Fatal(err)
	}
	eventually(t, "source close", func() bool { return h.files.source("slow.mp3").Closed() })

	if h.sched.Len() != 0 {
		t.Errorf("Len() = %d", h.sched.Len())
	}
	if h.bufs.Len() != 0 {
		t.Errorf("%d buffers still registered", h.bufs.Len())
	}
}

// gatedSource serves one full read, then blocks until gate is closed and
// fails.
type gatedSource struct {
	gate   chan struct{}
	served bool
	closed atomic.Bool
}

func (g *gatedSource) SampleRate() int { return testRate }
func (g *gatedSource) Channels() int   { return 2 }
func (g *gatedSource) BufSize() int    { return 4096 }

func (g *gatedSource) Close() error {
	g.closed.Store(true)
	return nil
}

func (g *gatedSource) ReadSamples(dst []float32) (int, error) {
	if !g.served {
		g.served = true
		clear(dst)
		return len(dst), nil
	}
	<-g.gate
	return 0, audiotest.ErrInjected
}

func TestScheduler_ErrorAfterCancelIsSilent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), bigRing())
	src := &gatedSource{gate: make(chan struct{})}
	h.files.addSource("stuck.flac", src)
	h.files.add("after.wav", func() *audiotest.MockSource {
		return audiotest.NewSilentSource(testRate, 2, testRate/10)
	})
	h.run(t)

	id := uuid.New()
	handle, err := h.sched.Submit(Request{EntryID: id, Passage: passage.Passage{Path: "stuck.flac"}, Priority: Immediate, FullDecode: true})
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, "first chunk", func() bool { return handle.Written() > 0 })

	if err := h.sched.Cancel(id); err != nil {
		t.Fatal(err)
	}
	close(src.gate)
	eventually(t, "source close", src.closed.Load)

	// The worker is serial: once the next request finishes, anything the
	// cancelled one would have published is already on the bus.
	next := uuid.New()
	if _, err := h.sched.Submit(Request{EntryID: next, Passage: passage.Passage{Path: "after.wav"}, Priority: Immediate, FullDecode: true}); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(10 * time.Second)
	for done := false; !done; {
		select {
		case e := <-h.ev:
			if e.EntryID == id && e.Kind == events.DecodeError {
				t.Fatalf("DecodeError published for a cancelled request: %v", e.Err)
			}
			done = e.EntryID == next && e.Kind == events.Finished
		case <-timeout:
			t.Fatal("timed out waiting for the next request")
		}
	}

	if _, err := h.bufs.Get(id); !errors.Is(err, buffers.ErrBufferNotFound) {
		t.Errorf("cancelled buffer is registered again: %v", err)
	}
	if handle.State() == buffers.Finished {
		t.Error("released buffer was finalized after cancel")
	}
}

func TestScheduler_ResubmitAfterFinish(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), bigRing())
	h.files.add("a.wav", func() *audiotest.MockSource {
		return audiotest.NewConstantSource(testRate, 2, testRate, 0.25)
	})
	h.run(t)

	req := Request{EntryID: uuid.New(), Passage: passage.Passage{Path: "a.wav"}, Priority: Immediate, FullDecode: true}
	first, err := h.sched.Submit(req)
	if err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, events.Finished, req.EntryID)
	eventually(t, "task removal", func() bool { return h.sched.Len() == 0 })

	again, err := h.sched.Submit(req)
	if err != nil {
		t.Fatal(err)
	}
	if again != first {
		t.Error("Submit after finish returned a different buffer")
	}
	if n := h.sched.Len(); n != 0 {
		t.Fatalf("Len() = %d after resubmitting a finished entry, want 0", n)
	}
	if got := first.Ring().Occupied(); got != testRate {
		t.Errorf("Occupied() = %d, want %d", got, testRate)
	}
	if got := first.Written(); got != testRate {
		t.Errorf("Written() = %d, want %d", got, testRate)
	}
	if got := h.files.order(); len(got) != 1 {
		t.Errorf("opened %v, want a single open", got)
	}
}

func TestScheduler_OpenFailureDoesNotStall(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), bigRing())
	h.files.add("good.wav", func() *audiotest.MockSource {
		return audiotest.NewSilentSource(testRate, 2, testRate)
	})

	bad, good := uuid.New(), uuid.New()
	_, _ = h.sched.Submit(Request{EntryID: bad, Passage: passage.Passage{Path: "missing.wav"}, Priority: Immediate, FullDecode: true})
	_, _ = h.sched.Submit(Request{EntryID: good, Passage: passage.Passage{Path: "good.wav"}, Priority: Next, FullDecode: true})
	h.run(t)

	e := h.waitFor(t, events.DecodeError, bad)
	if !errors.Is(e.Err, ErrSourceOpenFailed) {
		t.Errorf("decode error = %v, want ErrSourceOpenFailed", e.Err)
	}
	var rerr *RequestError
	if !errors.As(e.Err, &rerr) || rerr.EntryID != bad || rerr.Op != "open" {
		t.Errorf("error %v is not a RequestError for the bad entry", e.Err)
	}
	h.waitFor(t, events.Finished, good)

	if s, _ := h.bufs.State(bad); s != buffers.Finished && s != buffers.Exhausted {
		t.Errorf("failed buffer state = %v, want finished", s)
	}
}

func TestScheduler_DecodeFailureKeepsPushedFrames(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), bigRing())
	h.files.add("corrupt.ogg", func() *audiotest.MockSource {
		return audiotest.NewSilentSource(testRate, 2, 5*testRate).FailAfter(1000)
	})
	h.run(t)

	id := uuid.New()
	handle, _ := h.sched.Submit(Request{EntryID: id, Passage: passage.Passage{Path: "corrupt.ogg"}, Priority: Immediate, FullDecode: true})

	e := h.waitFor(t, events.DecodeError, id)
	if !errors.Is(e.Err, ErrDecodeFailed) || !errors.Is(e.Err, audiotest.ErrInjected) {
		t.Errorf("decode error = %v", e.Err)
	}
	if handle.TotalFrames() != 1000 {
		t.Errorf("TotalFrames = %d, want 1000", handle.TotalFrames())
	}
	if n := len(drain(handle)); n != 1000 {
		t.Errorf("drained %d frames, want 1000", n)
	}
	if !handle.IsExhausted() {
		t.Error("failed buffer never exhausts")
	}
}

func TestScheduler_PartialDecodeAndPromote(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), bigRing())
	h.files.add("song.wav", func() *audiotest.MockSource {
		return audiotest.NewRampSource(testRate, 2, 3*testRate)
	})
	h.run(t)

	id := uuid.New()
	handle, _ := h.sched.Submit(Request{EntryID: id, Passage: passage.Passage{Path: "song.wav"}, Priority: Prefetch})
	h.waitFor(t, events.ReadyForStart, id)
	eventually(t, "partial window", func() bool { return handle.Written() == testRate })

	time.Sleep(20 * time.Millisecond)
	if w := handle.Written(); w != testRate {
		t.Fatalf("partial decode wrote %d frames, want %d", w, testRate)
	}
	if handle.State() != buffers.Ready {
		t.Errorf("state = %v, want ready", handle.State())
	}
	if h.sched.Len() != 1 {
		t.Errorf("parked request not counted: Len() = %d", h.sched.Len())
	}

	if err := h.sched.Promote(id, Next, true); err != nil {
		t.Fatal(err)
	}
	fin := h.waitFor(t, events.Finished, id)
	if fin.TotalFrames != 3*testRate {
		t.Errorf("TotalFrames = %d, want %d", fin.TotalFrames, 3*testRate)
	}

	frames := drain(handle)
	for i, f := range frames {
		if f.Left != float32(i) {
			t.Fatalf("frame %d = %v after promote", i, f.Left)
		}
	}
	if got := len(h.files.order()); got != 1 {
		t.Errorf("source opened %d times, want 1", got)
	}
}

func TestScheduler_DiscoversEndAtEOF(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), bigRing())
	h.files.add("stream.mp3", func() *audiotest.MockSource {
		return audiotest.NewSilentSource(testRate, 2, 2*testRate).Unsized()
	})
	h.run(t)

	id := uuid.New()
	_, _ = h.sched.Submit(Request{
		EntryID:    id,
		Passage:    passage.Passage{Path: "stream.mp3", Timing: passage.Timing{Start: sec(0.5)}},
		Priority:   Immediate,
		FullDecode: true,
	})

	e := h.waitFor(t, events.EndpointDiscovered, id)
	if e.EndTicks != sec(2) {
		t.Errorf("discovered end = %d, want %d", e.EndTicks, sec(2))
	}
	fin := h.waitFor(t, events.Finished, id)
	if fin.TotalFrames != int64(1.5*testRate) || fin.EndTicks != sec(2) {
		t.Errorf("finished = %+v", fin)
	}
}

func TestScheduler_SubmitTwiceAndValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), bigRing())

	if _, err := h.sched.Submit(Request{EntryID: uuid.New(), Passage: passage.Passage{}}); !errors.Is(err, passage.ErrInvalidTiming) {
		t.Errorf("Submit(invalid) = %v", err)
	}

	id := uuid.New()
	first, _ := h.sched.Submit(Request{EntryID: id, Passage: passage.Passage{Path: "a.wav"}, Priority: Prefetch})
	second, err := h.sched.Submit(Request{EntryID: id, Passage: passage.Passage{Path: "a.wav"}, Priority: Immediate, FullDecode: true})
	if err != nil || first != second {
		t.Fatalf("resubmit = %p, %v; want the same handle", second, err)
	}
	if tk := h.sched.tasks[id]; tk.req.Priority != Immediate || !tk.req.FullDecode {
		t.Errorf("resubmit did not promote: %+v", tk.req)
	}
}

func TestScheduler_Lifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), bigRing())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.sched.Run(ctx) }()

	eventually(t, "worker start", func() bool {
		h.sched.mu.Lock()
		defer h.sched.mu.Unlock()
		return h.sched.running
	})
	if err := h.sched.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run = %v", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v", err)
	}
	if _, err := h.sched.Submit(Request{EntryID: uuid.New(), Passage: passage.Passage{Path: "a.wav"}}); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit after stop = %v", err)
	}
	if err := h.sched.Run(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Run after stop = %v", err)
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()

	files := newFakeFiles()
	files.add("sized.wav", func() *audiotest.MockSource { return audiotest.NewSilentSource(48000, 2, 96000) })
	files.add("unsized.mp3", func() *audiotest.MockSource { return audiotest.NewSilentSource(48000, 2, 96000).Unsized() })

	for _, path := range []string{"sized.wav", "unsized.mp3"} {
		got, err := Probe(files, path)
		if err != nil || got != sec(2) {
			t.Errorf("Probe(%s) = %d, %v; want %d", path, got, err, sec(2))
		}
	}
	if _, err := Probe(files, "nope.wav"); !errors.Is(err, ErrSourceOpenFailed) {
		t.Errorf("Probe(missing) = %v", err)
	}
}
