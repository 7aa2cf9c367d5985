// SPDX-License-Identifier: EPL-2.0

package passage

import "errors"

var (
	ErrInvalidTiming = errors.New("invalid passage timing")
	ErrUnknownEnd    = errors.New("passage end is not known")
)
