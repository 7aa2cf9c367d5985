// SPDX-License-Identifier: EPL-2.0

package mixer

import "errors"

var (
	ErrNotPlaying    = errors.New("mixer is not playing the outgoing passage")
	ErrNotPaused     = errors.New("mixer is not paused")
	ErrNilInput      = errors.New("mixer input is nil")
	ErrInvalidConfig = errors.New("invalid mixer configuration")
)
