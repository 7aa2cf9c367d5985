// SPDX-License-Identifier: EPL-2.0

// Package buffers owns the per-passage ring buffers that sit between the
// decoder and the mixer.
//
// A Manager maps queue-entry identities to Handles. Each Handle wraps a
// ring.Buffer and tracks where the passage is in its lifecycle:
//
//	Decoding   frames are being written, fewer than the ready threshold
//	Ready      enough frames to start playback without an immediate underrun
//	Playing    the mixer is consuming
//	Finished   decoding is complete, frames may remain
//	Exhausted  finished and fully drained
//
// Every transition is announced through an events.Publisher. The
// notifications are informational; the pipeline does not depend on anyone
// reading them.
package buffers
