// SPDX-License-Identifier: EPL-2.0

package mp3

import "errors"

var (
	// ErrNotMP3File is returned when the stream has no decodable MPEG frame.
	ErrNotMP3File = errors.New("not an MP3 file")
)
