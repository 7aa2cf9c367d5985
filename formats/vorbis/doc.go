// SPDX-License-Identifier: EPL-2.0

// Package vorbis decodes Ogg Vorbis streams through
// github.com/jfreymuth/oggvorbis.
//
// Vorbis decodes straight to float32, so samples pass through unchanged.
// Seekable inputs report their length and support SeekFrame.
package vorbis
