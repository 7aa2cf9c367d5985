// SPDX-License-Identifier: EPL-2.0

package output

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/internal/logging"
	"github.com/ik5/audxfade/internal/observe"
	"github.com/ik5/audxfade/ring"
	"github.com/ik5/audxfade/timing"
)

const (
	// DefaultRefill is how often the pump tops up the output ring.
	DefaultRefill = 90 * time.Millisecond

	bytesPerFrame = 8
	readChunk     = 1024
)

// Renderer produces output frames. *mixer.Mixer satisfies it.
type Renderer interface {
	Render(dst []audio.Frame)
}

// Config sizes the output path.
type Config struct {
	SampleRate int
	// Refill is the pump cadence.
	Refill time.Duration
	// Buffer is the output ring length; it must hold at least one refill.
	Buffer time.Duration
}

// DefaultConfig returns a 90 ms cadence over a two-period ring.
func DefaultConfig() Config {
	return Config{
		SampleRate: 44_100,
		Refill:     DefaultRefill,
		Buffer:     2 * DefaultRefill,
	}
}

// Validate checks c.
func (c Config) Validate() error {
	var errs []error
	if !timing.IsSupportedRate(c.SampleRate) {
		errs = append(errs, fmt.Errorf("%w: %w: %d", ErrInvalidConfig, timing.ErrInvalidRate, c.SampleRate))
	}
	if c.Refill <= 0 {
		errs = append(errs, fmt.Errorf("%w: refill period %v must be positive", ErrInvalidConfig, c.Refill))
	}
	if c.Buffer < c.Refill {
		errs = append(errs, fmt.Errorf("%w: buffer %v shorter than refill period %v", ErrInvalidConfig, c.Buffer, c.Refill))
	}
	return errors.Join(errs...)
}

func (c Config) frames(d time.Duration) int {
	n, _ := timing.TicksToSamples(timing.DurationToTicks(d), c.SampleRate)
	return int(max(n, 1))
}

// Option configures a Pump.
type Option func(*Pump)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pump) { p.logger = logging.WithComponent(l, "output") }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pump) { p.metrics = m }
}

// Pump is the mixer side of the output ring. Fill and Run belong to one
// goroutine, Read and ReadFrames to the audio device.
type Pump struct {
	cfg     Config
	src     Renderer
	ring    *ring.Buffer
	logger  *slog.Logger
	metrics *observe.Metrics

	scratch []audio.Frame
	readBuf []audio.Frame

	underruns atomic.Uint64
	closed    atomic.Bool
}

// NewPump builds a pump that renders from src.
func NewPump(cfg Config, src Renderer, opts ...Option) (*Pump, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	size := cfg.frames(cfg.Buffer)
	rb, err := ring.New(ring.Config{Capacity: size})
	if err != nil {
		return nil, err
	}

	p := &Pump{
		cfg:     cfg,
		src:     src,
		ring:    rb,
		logger:  logging.WithComponent(nil, "output"),
		scratch: make([]audio.Frame, size),
		readBuf: make([]audio.Frame, readChunk),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}

// Fill renders enough frames to top up the output ring and returns how
// many were added.
func (p *Pump) Fill() int {
	n := p.ring.FreeSpace()
	if n <= 0 {
		return 0
	}
	buf := p.scratch[:n]
	p.src.Render(buf)
	return p.ring.Push(buf)
}

// Run fills the ring immediately and then once per refill period until ctx
// is done.
func (p *Pump) Run(ctx context.Context) error {
	p.Fill()

	tick := time.NewTicker(p.cfg.Refill)
	defer tick.Stop()

	p.logger.Debug("output pump started", "refill", p.cfg.Refill, "buffer_frames", p.ring.Capacity())
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("output pump stopped", "underruns", p.underruns.Load())
			return nil
		case <-tick.C:
			p.Fill()
		}
	}
}

// ReadFrames fills dst from the output ring. Frames the ring cannot supply
// are silence and count as output underruns. It returns the number of real
// frames.
func (p *Pump) ReadFrames(dst []audio.Frame) int {
	got := p.ring.Pop(dst)
	if missing := len(dst) - got; missing > 0 {
		clear(dst[got:])
		total := p.underruns.Add(uint64(missing))
		p.metrics.OutputUnderruns.Add(context.Background(), int64(missing))
		if total == uint64(missing) {
			p.logger.Warn("output underrun", "frames", missing)
		}
	}
	return got
}

// Read implements io.Reader with interleaved little-endian float32 stereo,
// the layout oto's FormatFloat32LE expects. It always returns whole frames.
func (p *Pump) Read(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, io.EOF
	}

	frames := len(b) / bytesPerFrame
	off := 0
	for frames > 0 {
		n := min(frames, len(p.readBuf))
		buf := p.readBuf[:n]
		p.ReadFrames(buf)
		for _, f := range buf {
			binary.LittleEndian.PutUint32(b[off:], math.Float32bits(f.Left))
			binary.LittleEndian.PutUint32(b[off+4:], math.Float32bits(f.Right))
			off += bytesPerFrame
		}
		frames -= n
	}
	return off, nil
}

// Close makes further reads return io.EOF.
func (p *Pump) Close() error {
	p.closed.Store(true)
	return nil
}

// Underruns returns the number of silent frames handed out so far.
func (p *Pump) Underruns() uint64 { return p.underruns.Load() }

// Stats returns the output ring counters.
func (p *Pump) Stats() ring.Stats { return p.ring.Stats() }
