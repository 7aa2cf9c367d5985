// SPDX-License-Identifier: EPL-2.0

package flac

import "errors"

var (
	// ErrNotFlacFile is returned when the stream has no FLAC signature.
	ErrNotFlacFile = errors.New("not a FLAC file")
)
