// SPDX-License-Identifier: EPL-2.0

// Package ring implements the bounded single-producer single-consumer
// frame buffer that sits between a passage's decoder and the mixer.
//
// The write and read cursors are monotonically increasing atomic counters;
// storage is indexed modulo the capacity, which need not be a power of two.
// A push publishes whole frames by advancing the write cursor after the
// frames are stored, so the consumer never sees half a frame.
//
// Flow control uses two thresholds. The producer is told to pause once free
// space drops to the headroom and stays paused until free space climbs back
// to headroom plus the hysteresis margin.
//
// A pop on an empty buffer never fails: it returns the last frame pushed so
// the consumer can hold the level instead of dropping to silence, and counts
// an underrun unless decoding has completed.
package ring
