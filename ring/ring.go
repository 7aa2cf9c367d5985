// SPDX-License-Identifier: EPL-2.0

package ring

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/ik5/audxfade/audio"
)

const (
	// DefaultCapacity holds about 15 s at 44.1 kHz.
	DefaultCapacity = 661_941
	// DefaultHeadroom is 10 ms at 44.1 kHz.
	DefaultHeadroom = 441
	// DefaultHysteresis is 1 s at 44.1 kHz.
	DefaultHysteresis = 44_100
)

// Config sizes a Buffer. All values are in frames.
type Config struct {
	Capacity   int
	Headroom   int
	Hysteresis int
}

// DefaultConfig returns the stock sizing.
func DefaultConfig() Config {
	return Config{
		Capacity:   DefaultCapacity,
		Headroom:   DefaultHeadroom,
		Hysteresis: DefaultHysteresis,
	}
}

// Validate reports whether c describes a usable buffer.
func (c Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity %d must be positive", ErrInvalidConfig, c.Capacity)
	case c.Headroom < 0 || c.Hysteresis < 0:
		return fmt.Errorf("%w: negative headroom %d or hysteresis %d", ErrInvalidConfig, c.Headroom, c.Hysteresis)
	case c.Headroom+c.Hysteresis > c.Capacity:
		return fmt.Errorf("%w: headroom %d + hysteresis %d exceed capacity %d",
			ErrInvalidConfig, c.Headroom, c.Hysteresis, c.Capacity)
	}
	return nil
}

// Buffer is a lock-free SPSC ring of stereo frames.
//
// Thread assignment:
//   - Push, PushInterleaved, ShouldPauseProducer, MarkDecodeComplete: producer only
//   - PopOne, Pop: consumer only
//   - everything else: any goroutine
type Buffer struct {
	// Separate cache lines so producer and consumer do not false-share.
	writePos atomic.Uint64
	_pad1    [56]byte
	readPos  atomic.Uint64
	_pad2    [56]byte

	// lastFrame packs the last pushed frame as left<<32 | right bits.
	lastFrame atomic.Uint64
	paused    atomic.Bool
	complete  atomic.Bool
	underruns atomic.Uint64
	overruns  atomic.Uint64

	capacity   uint64
	headroom   uint64
	hysteresis uint64
	data       []audio.Frame
}

// New allocates a buffer sized by cfg.
func New(cfg Config) (*Buffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Buffer{
		capacity:   uint64(cfg.Capacity),
		headroom:   uint64(cfg.Headroom),
		hysteresis: uint64(cfg.Hysteresis),
		data:       make([]audio.Frame, cfg.Capacity),
	}, nil
}

func pack(f audio.Frame) uint64 {
	return uint64(math.Float32bits(f.Left))<<32 | uint64(math.Float32bits(f.Right))
}

func unpack(v uint64) audio.Frame {
	return audio.Frame{
		Left:  math.Float32frombits(uint32(v >> 32)),
		Right: math.Float32frombits(uint32(v)),
	}
}

// Push stores as many frames as fit and returns how many were accepted.
// A short count is normal backpressure; the caller retries the rest later.
func (b *Buffer) Push(frames []audio.Frame) int {
	w := b.writePos.Load()
	r := b.readPos.Load()

	free := b.capacity - (w - r)
	n := min(uint64(len(frames)), free)
	if n < uint64(len(frames)) {
		b.overruns.Add(1)
	}
	if n == 0 {
		b.latch(free)
		return 0
	}

	pos := w % b.capacity
	first := b.capacity - pos
	if first >= n {
		copy(b.data[pos:pos+n], frames[:n])
	} else {
		copy(b.data[pos:], frames[:first])
		copy(b.data[:n-first], frames[first:n])
	}

	b.lastFrame.Store(pack(frames[n-1]))
	b.writePos.Store(w + n)
	b.latch(free - n)

	return int(n)
}

// PushInterleaved stores interleaved stereo samples and returns the number
// of frames accepted. A trailing odd sample is ignored.
func (b *Buffer) PushInterleaved(samples []float32) int {
	w := b.writePos.Load()
	r := b.readPos.Load()

	want := uint64(len(samples) / 2)
	free := b.capacity - (w - r)
	n := min(want, free)
	if n < want {
		b.overruns.Add(1)
	}
	if n == 0 {
		b.latch(free)
		return 0
	}

	pos := w % b.capacity
	for i := range n {
		b.data[pos] = audio.Frame{Left: samples[2*i], Right: samples[2*i+1]}
		pos++
		if pos == b.capacity {
			pos = 0
		}
	}

	b.lastFrame.Store(pack(audio.Frame{Left: samples[2*n-2], Right: samples[2*n-1]}))
	b.writePos.Store(w + n)
	b.latch(free - n)

	return int(n)
}

// latch engages producer backpressure once free space reaches headroom.
func (b *Buffer) latch(free uint64) {
	if free <= b.headroom {
		b.paused.Store(true)
	}
}

// PopOne returns the next frame and true, or the last pushed frame and
// false when the buffer is empty. An empty pop before MarkDecodeComplete
// counts as an underrun.
func (b *Buffer) PopOne() (audio.Frame, bool) {
	r := b.readPos.Load()
	w := b.writePos.Load()

	if w == r {
		if !b.complete.Load() {
			b.underruns.Add(1)
		}
		return unpack(b.lastFrame.Load()), false
	}

	f := b.data[r%b.capacity]
	b.readPos.Store(r + 1)
	return f, true
}

// Pop copies up to len(dst) frames out of the buffer and returns the count.
// It does not substitute or count underruns.
func (b *Buffer) Pop(dst []audio.Frame) int {
	r := b.readPos.Load()
	w := b.writePos.Load()

	n := min(uint64(len(dst)), w-r)
	if n == 0 {
		return 0
	}

	pos := r % b.capacity
	first := b.capacity - pos
	if first >= n {
		copy(dst[:n], b.data[pos:pos+n])
	} else {
		copy(dst[:first], b.data[pos:])
		copy(dst[first:n], b.data[:n-first])
	}

	b.readPos.Store(r + n)
	return int(n)
}

// LastFrame returns the most recently pushed frame, or silence before the
// first push.
func (b *Buffer) LastFrame() audio.Frame {
	return unpack(b.lastFrame.Load())
}

// Occupied returns the number of frames waiting to be read. Called from a
// goroutine that is neither producer nor consumer it is a snapshot that
// may be stale but stays within [0, Capacity].
func (b *Buffer) Occupied() int {
	w := b.writePos.Load()
	r := b.readPos.Load()
	return int(span(w, r, b.capacity))
}

// span is w - r clamped to [0, capacity]. The cursors are loaded one after
// the other, so an observer can see r past w or the pair a lap apart.
func span(w, r, capacity uint64) uint64 {
	if r >= w {
		return 0
	}
	return min(w-r, capacity)
}

// FreeSpace returns the number of frames that can be pushed.
func (b *Buffer) FreeSpace() int {
	return int(b.capacity) - b.Occupied()
}

// FillFraction returns occupancy in [0, 1].
func (b *Buffer) FillFraction() float64 {
	return float64(b.Occupied()) / float64(b.capacity)
}

// Capacity returns the size of the buffer in frames.
func (b *Buffer) Capacity() int { return int(b.capacity) }

// ShouldPauseProducer reports whether the producer must stop pushing. Once
// true it stays true until free space recovers to headroom + hysteresis.
func (b *Buffer) ShouldPauseProducer() bool {
	free := uint64(b.FreeSpace())
	if b.paused.Load() {
		if free >= b.headroom+b.hysteresis {
			b.paused.Store(false)
			return false
		}
		return true
	}
	if free <= b.headroom {
		b.paused.Store(true)
		return true
	}
	return false
}

// CanResumeProducer reports whether free space has reached headroom +
// hysteresis.
func (b *Buffer) CanResumeProducer() bool {
	return uint64(b.FreeSpace()) >= b.headroom+b.hysteresis
}

// MarkDecodeComplete records that no more frames will be pushed.
func (b *Buffer) MarkDecodeComplete() {
	b.complete.Store(true)
}

// IsDecodeComplete reports whether MarkDecodeComplete was called.
func (b *Buffer) IsDecodeComplete() bool {
	return b.complete.Load()
}

// IsExhausted reports whether decoding is complete and every frame has
// been read.
func (b *Buffer) IsExhausted() bool {
	return b.complete.Load() && b.Occupied() == 0
}

// Underruns returns the number of empty pops before decode completion.
func (b *Buffer) Underruns() uint64 {
	return b.underruns.Load()
}

// Stats is a point-in-time snapshot of a Buffer. Fields are read without a
// common lock and may be off by one chunk relative to each other.
type Stats struct {
	Capacity       int
	Occupied       int
	Written        uint64
	Read           uint64
	Underruns      uint64
	Overruns       uint64
	ProducerPaused bool
	DecodeComplete bool
}

// FillPercent returns occupancy as a percentage.
func (s Stats) FillPercent() float64 {
	if s.Capacity == 0 {
		return 0
	}
	return float64(s.Occupied) * 100 / float64(s.Capacity)
}

// Healthy reports whether the fill level sits in the comfortable band
// (25% to 90%), or the buffer is simply draining a finished decode.
func (s Stats) Healthy() bool {
	if s.DecodeComplete {
		return true
	}
	p := s.FillPercent()
	return p >= 25 && p <= 90
}

// Stats returns a snapshot of the buffer counters.
func (b *Buffer) Stats() Stats {
	w := b.writePos.Load()
	r := b.readPos.Load()
	return Stats{
		Capacity:       int(b.capacity),
		Occupied:       int(span(w, r, b.capacity)),
		Written:        w,
		Read:           r,
		Underruns:      b.underruns.Load(),
		Overruns:       b.overruns.Load(),
		ProducerPaused: b.paused.Load(),
		DecodeComplete: b.complete.Load(),
	}
}
