// SPDX-License-Identifier: EPL-2.0

// Package config loads engine settings from defaults, a YAML file and
// AUDXFADE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/buffers"
	"github.com/ik5/audxfade/decoder"
	"github.com/ik5/audxfade/events"
	"github.com/ik5/audxfade/mixer"
	"github.com/ik5/audxfade/output"
	"github.com/ik5/audxfade/ring"
)

// EnvPrefix is prepended to every environment override, with dots in keys
// turned into underscores: AUDXFADE_MIXER_VOLUME.
const EnvPrefix = "AUDXFADE"

// Config holds every engine setting.
type Config struct {
	SampleRate int           `mapstructure:"sample_rate"`
	Buffer     BufferConfig  `mapstructure:"buffer"`
	Decoder    DecoderConfig `mapstructure:"decoder"`
	Mixer      MixerConfig   `mapstructure:"mixer"`
	Output     OutputConfig  `mapstructure:"output"`
	Events     EventsConfig  `mapstructure:"events"`
	Logging    LoggingConfig `mapstructure:"logging"`
	Metrics    MetricsConfig `mapstructure:"metrics"`
}

// BufferConfig sizes passage buffers. Values are frames.
type BufferConfig struct {
	Capacity       int `mapstructure:"capacity"`
	Headroom       int `mapstructure:"headroom"`
	Hysteresis     int `mapstructure:"hysteresis"`
	MaxCapacity    int `mapstructure:"max_capacity"`
	ReadyThreshold int `mapstructure:"ready_threshold"`
	MaxChains      int `mapstructure:"max_chains"`
}

// DecoderConfig tunes the decode scheduler.
type DecoderConfig struct {
	Chunk            time.Duration `mapstructure:"chunk"`
	WorkPeriod       time.Duration `mapstructure:"work_period"`
	BackpressurePoll time.Duration `mapstructure:"backpressure_poll"`
	PartialDecode    time.Duration `mapstructure:"partial_decode"`
}

// MixerConfig tunes the mixer.
type MixerConfig struct {
	DecayFactor float64       `mapstructure:"decay_factor"`
	DecayFloor  float64       `mapstructure:"decay_floor"`
	ResumeFade  time.Duration `mapstructure:"resume_fade"`
	ResumeCurve string        `mapstructure:"resume_curve"`
	Volume      float64       `mapstructure:"volume"`
}

// OutputConfig tunes the device path.
type OutputConfig struct {
	Refill time.Duration `mapstructure:"refill"`
	Buffer time.Duration `mapstructure:"buffer"`
	// Latency is the device buffer handed to oto; zero lets it choose.
	Latency time.Duration `mapstructure:"latency"`
}

// EventsConfig sizes notification queues.
type EventsConfig struct {
	QueueSize int `mapstructure:"queue_size"`
	// Sweep is how often exhausted buffers are released and dropped
	// notifications are reported.
	Sweep time.Duration `mapstructure:"sweep"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Default returns the stock configuration.
func Default() Config {
	d := decoder.DefaultConfig()
	m := mixer.DefaultConfig()
	o := output.DefaultConfig()
	return Config{
		SampleRate: d.SampleRate,
		Buffer: BufferConfig{
			Capacity:       ring.DefaultCapacity,
			Headroom:       ring.DefaultHeadroom,
			Hysteresis:     ring.DefaultHysteresis,
			MaxCapacity:    buffers.DefaultMaxCapacity,
			ReadyThreshold: buffers.DefaultReadyThreshold,
			MaxChains:      buffers.DefaultMaxBuffers,
		},
		Decoder: DecoderConfig{
			Chunk:            d.Chunk,
			WorkPeriod:       d.WorkPeriod,
			BackpressurePoll: d.BackpressurePoll,
			PartialDecode:    d.PartialDecode,
		},
		Mixer: MixerConfig{
			DecayFactor: mixer.DefaultDecayFactor,
			DecayFloor:  mixer.DefaultDecayFloor,
			ResumeFade:  m.ResumeFade,
			ResumeCurve: m.ResumeCurve.String(),
			Volume:      float64(m.Volume),
		},
		Output: OutputConfig{
			Refill: o.Refill,
			Buffer: o.Buffer,
		},
		Events: EventsConfig{
			QueueSize: events.DefaultQueueSize,
			Sweep:     time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers Default() on v so unset keys fall back to it.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("sample_rate", d.SampleRate)

	v.SetDefault("buffer.capacity", d.Buffer.Capacity)
	v.SetDefault("buffer.headroom", d.Buffer.Headroom)
	v.SetDefault("buffer.hysteresis", d.Buffer.Hysteresis)
	v.SetDefault("buffer.max_capacity", d.Buffer.MaxCapacity)
	v.SetDefault("buffer.ready_threshold", d.Buffer.ReadyThreshold)
	v.SetDefault("buffer.max_chains", d.Buffer.MaxChains)

	v.SetDefault("decoder.chunk", d.Decoder.Chunk)
	v.SetDefault("decoder.work_period", d.Decoder.WorkPeriod)
	v.SetDefault("decoder.backpressure_poll", d.Decoder.BackpressurePoll)
	v.SetDefault("decoder.partial_decode", d.Decoder.PartialDecode)

	v.SetDefault("mixer.decay_factor", d.Mixer.DecayFactor)
	v.SetDefault("mixer.decay_floor", d.Mixer.DecayFloor)
	v.SetDefault("mixer.resume_fade", d.Mixer.ResumeFade)
	v.SetDefault("mixer.resume_curve", d.Mixer.ResumeCurve)
	v.SetDefault("mixer.volume", d.Mixer.Volume)

	v.SetDefault("output.refill", d.Output.Refill)
	v.SetDefault("output.buffer", d.Output.Buffer)
	v.SetDefault("output.latency", d.Output.Latency)

	v.SetDefault("events.queue_size", d.Events.QueueSize)
	v.SetDefault("events.sweep", d.Events.Sweep)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// Load reads configuration into a validated Config. With file empty it
// looks for audxfade.yaml in the working directory, $HOME/.audxfade and
// /etc/audxfade, and a missing file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("audxfade")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.audxfade")
		v.AddConfigPath("/etc/audxfade")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		slog.Debug("no config file found, using defaults and environment variables")
	} else {
		slog.Debug("using config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Ring returns the default passage ring sizing.
func (c Config) Ring() ring.Config {
	return ring.Config{
		Capacity:   c.Buffer.Capacity,
		Headroom:   c.Buffer.Headroom,
		Hysteresis: c.Buffer.Hysteresis,
	}
}

// Buffers returns the buffer manager settings.
func (c Config) Buffers() buffers.Config {
	return buffers.Config{
		Ring:           c.Ring(),
		MaxCapacity:    c.Buffer.MaxCapacity,
		ReadyThreshold: c.Buffer.ReadyThreshold,
		MaxBuffers:     c.Buffer.MaxChains,
	}
}

// DecoderSettings returns the scheduler settings.
func (c Config) DecoderSettings() decoder.Config {
	return decoder.Config{
		SampleRate:       c.SampleRate,
		Chunk:            c.Decoder.Chunk,
		WorkPeriod:       c.Decoder.WorkPeriod,
		BackpressurePoll: c.Decoder.BackpressurePoll,
		PartialDecode:    c.Decoder.PartialDecode,
	}
}

// MixerSettings returns the mixer settings.
func (c Config) MixerSettings() (mixer.Config, error) {
	curve, err := audio.ParseFadeCurve(c.Mixer.ResumeCurve)
	if err != nil {
		return mixer.Config{}, fmt.Errorf("mixer.resume_curve: %w", err)
	}
	return mixer.Config{
		SampleRate:  c.SampleRate,
		DecayFactor: float32(c.Mixer.DecayFactor),
		DecayFloor:  float32(c.Mixer.DecayFloor),
		ResumeFade:  c.Mixer.ResumeFade,
		ResumeCurve: curve,
		Volume:      float32(c.Mixer.Volume),
	}, nil
}

// OutputSettings returns the output pump settings.
func (c Config) OutputSettings() output.Config {
	return output.Config{
		SampleRate: c.SampleRate,
		Refill:     c.Output.Refill,
		Buffer:     c.Output.Buffer,
	}
}

// Validate reports every problem in c at once.
func (c Config) Validate() error {
	var errs []error
	if err := c.Buffers().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("buffer: %w", err))
	}
	if err := c.DecoderSettings().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("decoder: %w", err))
	}
	if mc, err := c.MixerSettings(); err != nil {
		errs = append(errs, err)
	} else if err := mc.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("mixer: %w", err))
	}
	if err := c.OutputSettings().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("output: %w", err))
	}
	if c.Events.QueueSize <= 0 {
		errs = append(errs, &Error{Field: "events.queue_size", Message: "must be positive"})
	}
	if c.Events.Sweep <= 0 {
		errs = append(errs, &Error{Field: "events.sweep", Message: "must be positive"})
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, &Error{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)})
	}
	return errors.Join(errs...)
}

// Error is a validation failure of one field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Field + ": " + e.Message
}
