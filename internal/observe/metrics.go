// SPDX-License-Identifier: EPL-2.0

// Package observe holds the OpenTelemetry instruments recorded by the
// pipeline. Tests build Metrics from their own MeterProvider; production
// code falls back to the global provider, which is a no-op until the
// process installs one.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/ik5/audxfade"

// Yield reasons recorded on SchedulerYields.
const (
	YieldBackpressure = "backpressure"
	YieldPriority     = "priority"
	YieldPartial      = "partial"
)

// Metrics holds every instrument. All fields are safe for concurrent use.
type Metrics struct {
	// DecodeChunks counts chunks pushed into buffers.
	DecodeChunks metric.Int64Counter
	// DecodedFrames counts frames pushed into buffers.
	DecodedFrames metric.Int64Counter
	// DecodeErrors counts abandoned requests. Attribute: "op".
	DecodeErrors metric.Int64Counter
	// SchedulerYields counts cursors handed back to the queue. Attribute:
	// "reason".
	SchedulerYields metric.Int64Counter
	// ChunkDuration is the wall time spent producing one chunk.
	ChunkDuration metric.Float64Histogram

	// MixerUnderruns counts output frames repeated because a buffer ran dry.
	MixerUnderruns metric.Int64Counter
	// CrossfadesCompleted counts finished crossfades.
	CrossfadesCompleted metric.Int64Counter
	// OutputUnderruns counts silent frames handed to the audio device.
	OutputUnderruns metric.Int64Counter

	// ActiveBuffers tracks registered passage buffers.
	ActiveBuffers metric.Int64UpDownCounter
	// DroppedEvents counts notifications a full subscriber missed.
	DroppedEvents metric.Int64Counter
}

// chunkBuckets are in seconds; a chunk is about one second of audio and
// should decode in a small fraction of that.
var chunkBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.DecodeChunks, err = m.Int64Counter("audxfade.decode.chunks",
		metric.WithDescription("Decoded chunks pushed into passage buffers."),
	); err != nil {
		return nil, err
	}
	if met.DecodedFrames, err = m.Int64Counter("audxfade.decode.frames",
		metric.WithDescription("Decoded frames pushed into passage buffers."),
		metric.WithUnit("{frame}"),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("audxfade.decode.errors",
		metric.WithDescription("Decode requests abandoned because of an error, by operation."),
	); err != nil {
		return nil, err
	}
	if met.SchedulerYields, err = m.Int64Counter("audxfade.scheduler.yields",
		metric.WithDescription("Decode cursors returned to the queue, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ChunkDuration, err = m.Float64Histogram("audxfade.decode.chunk.duration",
		metric.WithDescription("Wall time to decode, resample and fade one chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(chunkBuckets...),
	); err != nil {
		return nil, err
	}

	if met.MixerUnderruns, err = m.Int64Counter("audxfade.mixer.underruns",
		metric.WithDescription("Output frames repeated because a passage buffer was empty."),
		metric.WithUnit("{frame}"),
	); err != nil {
		return nil, err
	}
	if met.CrossfadesCompleted, err = m.Int64Counter("audxfade.mixer.crossfades",
		metric.WithDescription("Crossfades that ran to completion."),
	); err != nil {
		return nil, err
	}
	if met.OutputUnderruns, err = m.Int64Counter("audxfade.output.underruns",
		metric.WithDescription("Silent frames handed to the audio device."),
		metric.WithUnit("{frame}"),
	); err != nil {
		return nil, err
	}

	if met.ActiveBuffers, err = m.Int64UpDownCounter("audxfade.buffers.active",
		metric.WithDescription("Registered passage buffers."),
	); err != nil {
		return nil, err
	}
	if met.DroppedEvents, err = m.Int64Counter("audxfade.events.dropped",
		metric.WithDescription("Notifications a full subscriber missed."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level Metrics built from the global
// provider on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Reason is shorthand for the "reason" attribute option.
func Reason(r string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("reason", r))
}

// Op is shorthand for the "op" attribute option.
func Op(op string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("op", op))
}
