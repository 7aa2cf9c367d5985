// SPDX-License-Identifier: EPL-2.0

// Package output moves mixed frames to where they are heard or stored.
//
// A Pump renders from the mixer into a small output ring on a fixed refill
// cadence and serves the ring to the audio device as a Float32LE stereo
// io.Reader. OtoSink plays that reader through the system audio device,
// and WriteWAV renders offline into a WAV file.
package output
