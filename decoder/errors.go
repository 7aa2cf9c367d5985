// SPDX-License-Identifier: EPL-2.0

package decoder

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrSourceOpenFailed = errors.New("failed to open audio source")
	ErrDecodeFailed     = errors.New("failed to decode audio")
	ErrStopped          = errors.New("decoder stopped")
	ErrAlreadyRunning   = errors.New("decoder already running")
	ErrUnknownRequest   = errors.New("no decode request for entry")
	ErrInvalidConfig    = errors.New("invalid decoder configuration")
)

// RequestError reports a decode request abandoned by the scheduler.
type RequestError struct {
	EntryID uuid.UUID
	Path    string
	Op      string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("decoder: %s %s (%s): %v", e.Op, e.Path, e.EntryID, e.Err)
	}
	return fmt.Sprintf("decoder: %s %s: %v", e.Op, e.EntryID, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
