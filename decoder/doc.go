// SPDX-License-Identifier: EPL-2.0

// Package decoder turns passages into buffered, faded stereo frames.
//
// A single worker (Scheduler.Run) decodes at most one passage at any
// instant. Requests wait in a priority queue ordered Immediate, Next,
// Prefetch and then by arrival. Each activation opens the file (or resumes
// a saved cursor), seeks to the passage start and repeatedly decodes one
// chunk through
//
//	decode -> resample to the working rate -> stereo downmix -> fade -> push
//
// After every chunk the worker checks its buffer: a full buffer sends the
// task back to the queue until the ring's hysteresis margin has drained.
// Once the work period has elapsed the worker also yields when a
// higher-priority request is waiting. A yielded task keeps its open source
// and position, so resuming continues exactly where it stopped.
//
// A failed open or decode abandons only that request: the frames already
// pushed stay playable, the buffer is finalized and a DecodeError event
// carries a *RequestError.
package decoder
