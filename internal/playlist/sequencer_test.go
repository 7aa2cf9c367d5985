// SPDX-License-Identifier: EPL-2.0

package playlist_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ik5/audxfade"
	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/config"
	"github.com/ik5/audxfade/decoder"
	"github.com/ik5/audxfade/events"
	"github.com/ik5/audxfade/internal/audiotest"
	"github.com/ik5/audxfade/internal/logging"
	"github.com/ik5/audxfade/internal/playlist"
	"github.com/ik5/audxfade/mixer"
	"github.com/ik5/audxfade/passage"
	"github.com/ik5/audxfade/timing"
)

var _ playlist.Player = (*audxfade.Engine)(nil)

const rate = 8000

func ms(n int64) int64 { return timing.MsToTicks(n) }

func newEngine(t *testing.T) *audxfade.Engine {
	t.Helper()

	cfg := config.Default()
	cfg.SampleRate = rate
	cfg.Buffer.Capacity = 40_000
	cfg.Buffer.Headroom = 80
	cfg.Buffer.Hysteresis = 8000
	cfg.Buffer.ReadyThreshold = 800
	cfg.Decoder.Chunk = 100 * time.Millisecond
	cfg.Decoder.BackpressurePoll = time.Millisecond
	cfg.Events.Sweep = 5 * time.Millisecond

	open := decoder.OpenerFunc(func(string) (audio.Source, error) {
		return audiotest.NewConstantSource(rate, 2, rate, 0.5), nil
	})
	eng, err := audxfade.New(cfg,
		audxfade.WithLogger(logging.Discard()),
		audxfade.WithMeterProvider(sdkmetric.NewMeterProvider()),
		audxfade.WithOpener(open),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

// collect keeps every notification until stop is called.
func collect(ch <-chan events.Event) (stop func() []events.Event) {
	var (
		mu  sync.Mutex
		got []events.Event
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
		}
	}()
	return func() []events.Event {
		<-done
		mu.Lock()
		defer mu.Unlock()
		return got
	}
}

func TestSequencerPlaysThrough(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	stop := collect(eng.Subscribe(
		events.PassageStarted, events.CrossfadeCompleted, events.PassageCompleted,
	))

	ps := []passage.Passage{
		{Path: "a.wav", Timing: passage.Timing{End: ms(1000), FadeOut: ms(750)}},
		{Path: "b.wav", Timing: passage.Timing{End: ms(1000), FadeIn: ms(250)}},
		{Path: "c.wav"},
	}
	seq := playlist.New(eng, ps, playlist.WithLogger(logging.Discard()), playlist.WithPoll(time.Millisecond))
	ids := seq.IDs()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	engDone := make(chan error, 1)
	go func() { engDone <- eng.Run(ctx) }()

	// Stand-in for the audio device.
	renderCtx, stopRender := context.WithCancel(ctx)
	defer stopRender()
	go func() {
		buf := make([]audio.Frame, 80)
		for renderCtx.Err() == nil {
			eng.Mixer().Render(buf)
			time.Sleep(time.Millisecond)
		}
	}()

	if err := seq.Run(ctx); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	stopRender()
	cancel()
	if err := <-engDone; err != nil {
		t.Fatalf("engine Run() = %v", err)
	}
	_ = eng.Close()
	got := stop()

	if st := eng.Status(); st.State != mixer.Idle {
		t.Fatalf("mixer state = %v after the list ended", st.State)
	}

	var started []uuid.UUID
	var crossfades int
	completed := map[uuid.UUID]bool{}
	for _, ev := range got {
		switch ev.Kind {
		case events.PassageStarted:
			started = append(started, ev.EntryID)
		case events.CrossfadeCompleted:
			crossfades++
			if ev.EntryID != ids[0] || ev.Incoming != ids[1] {
				t.Errorf("crossfade %s -> %s, want a -> b", ev.EntryID, ev.Incoming)
			}
		case events.PassageCompleted:
			completed[ev.EntryID] = true
		}
	}

	if crossfades != 1 {
		t.Errorf("crossfades = %d, want 1", crossfades)
	}
	if len(started) != 2 || started[0] != ids[0] || started[1] != ids[2] {
		t.Errorf("PassageStarted order = %v, want a then c", started)
	}
	if !completed[ids[1]] || !completed[ids[2]] {
		t.Errorf("PassageCompleted = %v, want b and c", completed)
	}
}

func TestSequencerEmpty(t *testing.T) {
	t.Parallel()

	seq := playlist.New(newEngine(t), nil)
	if err := seq.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
}
