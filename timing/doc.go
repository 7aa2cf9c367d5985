// SPDX-License-Identifier: EPL-2.0

// Package timing converts between wall-clock time, sample counts and ticks.
//
// A tick is 1/28,224,000 of a second. The tick rate is the least common
// multiple of every supported sample rate, so converting ticks to samples
// (and back) is exact at any of those rates:
//
//	ticks := timing.MsToTicks(3000)                 // 84_672_000
//	n, _ := timing.TicksToSamples(ticks, 48000)     // 144_000
//	back, _ := timing.SamplesToTicks(n, 48000)      // 84_672_000
//
// Ticks to milliseconds is the only lossy direction; it truncates toward
// zero. Negative values convert symmetrically.
//
// Conversions that take a sample rate fail with ErrInvalidRate when the
// rate is zero or not one of SupportedRates.
package timing
