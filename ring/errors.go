// SPDX-License-Identifier: EPL-2.0

package ring

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid ring buffer configuration")
)
