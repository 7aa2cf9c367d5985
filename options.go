// SPDX-License-Identifier: EPL-2.0

package audxfade

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/decoder"
)

type options struct {
	logger   *slog.Logger
	meters   metric.MeterProvider
	opener   decoder.Opener
	registry *audio.Registry
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the base logger; components derive their own from it.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMeterProvider records metrics through mp instead of the global
// provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meters = mp }
}

// WithOpener replaces the file opener, mainly for tests and custom storage.
func WithOpener(op decoder.Opener) Option {
	return func(o *options) { o.opener = op }
}

// WithRegistry sets the extension registry used to open files. It is
// ignored when WithOpener is given.
func WithRegistry(r *audio.Registry) Option {
	return func(o *options) { o.registry = r }
}
