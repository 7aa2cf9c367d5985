// SPDX-License-Identifier: EPL-2.0

package output

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid output configuration")
	ErrClosed        = errors.New("output is closed")
)
