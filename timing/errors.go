// SPDX-License-Identifier: EPL-2.0

package timing

import "errors"

var (
	// ErrInvalidRate is returned for a zero or unsupported sample rate.
	ErrInvalidRate = errors.New("invalid sample rate")
)
