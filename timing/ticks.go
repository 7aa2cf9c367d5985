// SPDX-License-Identifier: EPL-2.0

package timing

import (
	"fmt"
	"math"
	"time"
)

const (
	// TickRate is the number of ticks per second.
	TickRate int64 = 28_224_000

	// TicksPerMs is the number of ticks per millisecond.
	TicksPerMs int64 = TickRate / 1000
)

// SupportedRates lists every sample rate the tick rate divides evenly.
var SupportedRates = [...]int{
	8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000,
}

// TicksPerSample returns the number of ticks in one sample period at rate.
func TicksPerSample(rate int) (int64, error) {
	switch rate {
	case 8000:
		return 3528, nil
	case 11025:
		return 2560, nil
	case 16000:
		return 1764, nil
	case 22050:
		return 1280, nil
	case 32000:
		return 882, nil
	case 44100:
		return 640, nil
	case 48000:
		return 588, nil
	case 88200:
		return 320, nil
	case 96000:
		return 294, nil
	case 176400:
		return 160, nil
	case 192000:
		return 147, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidRate, rate)
}

// IsSupportedRate reports whether rate is one of SupportedRates.
func IsSupportedRate(rate int) bool {
	_, err := TicksPerSample(rate)
	return err == nil
}

// MsToTicks converts milliseconds to ticks.
func MsToTicks(ms int64) int64 {
	return ms * TicksPerMs
}

// TicksToMs converts ticks to milliseconds, truncating toward zero.
func TicksToMs(ticks int64) int64 {
	return ticks / TicksPerMs
}

// TicksToSamples converts ticks to a sample count at rate. The result is
// exact when ticks sits on a sample boundary and truncates toward zero
// otherwise.
func TicksToSamples(ticks int64, rate int) (int64, error) {
	tps, err := TicksPerSample(rate)
	if err != nil {
		return 0, err
	}
	return ticks / tps, nil
}

// SamplesToTicks converts a sample count at rate to ticks.
func SamplesToTicks(samples int64, rate int) (int64, error) {
	tps, err := TicksPerSample(rate)
	if err != nil {
		return 0, err
	}
	return samples * tps, nil
}

// ApproxSamplesToTicks converts samples at any positive rate to ticks,
// rounding toward zero. It exists for probing files recorded at rates
// outside SupportedRates; everything else should use SamplesToTicks.
func ApproxSamplesToTicks(samples int64, rate int) (int64, error) {
	if rate <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRate, rate)
	}
	if tps, err := TicksPerSample(rate); err == nil {
		return samples * tps, nil
	}
	return samples * TickRate / int64(rate), nil
}

// ApproxTicksToSamples is the inverse of ApproxSamplesToTicks.
func ApproxTicksToSamples(ticks int64, rate int) (int64, error) {
	if rate <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRate, rate)
	}
	if tps, err := TicksPerSample(rate); err == nil {
		return ticks / tps, nil
	}
	return ticks * int64(rate) / TickRate, nil
}

// TicksToSeconds converts ticks to seconds. For display only.
func TicksToSeconds(ticks int64) float64 {
	return float64(ticks) / float64(TickRate)
}

// SecondsToTicks converts seconds to ticks, rounding to the nearest tick.
func SecondsToTicks(seconds float64) int64 {
	return int64(math.Round(seconds * float64(TickRate)))
}

// DurationToTicks converts d to ticks, rounding to the nearest tick.
func DurationToTicks(d time.Duration) int64 {
	// 28_224_000 / 1e9 reduces to 3528 / 125_000.
	whole := int64(d/time.Second) * TickRate
	rem := int64(d % time.Second)
	frac := (rem*3528 + sign(rem)*62_500) / 125_000
	return whole + frac
}

// TicksToDuration converts ticks to a time.Duration, rounding to the
// nearest nanosecond.
func TicksToDuration(ticks int64) time.Duration {
	whole := ticks / TickRate
	rem := ticks % TickRate
	frac := (rem*125_000 + sign(rem)*1764) / 3528
	return time.Duration(whole)*time.Second + time.Duration(frac)
}

func sign(v int64) int64 {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}
