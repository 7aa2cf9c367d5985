// SPDX-License-Identifier: EPL-2.0

// Package flac decodes FLAC streams through github.com/gopxl/beep/v2/flac.
//
// beep hands out stereo float64 pairs, so the source is always two
// channels. Seekable inputs support SeekFrame and report the STREAMINFO
// sample count through Length.
package flac
