// SPDX-License-Identifier: EPL-2.0

package buffers

import "errors"

var (
	ErrCapacityExceeded = errors.New("requested buffer capacity exceeds the configured maximum")
	ErrTooManyBuffers   = errors.New("too many decode buffers")
	ErrBufferNotFound   = errors.New("buffer not found")
	ErrInvalidConfig    = errors.New("invalid buffer manager configuration")
	ErrInvalidState     = errors.New("invalid buffer state transition")
)
