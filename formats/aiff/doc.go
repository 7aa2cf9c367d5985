// SPDX-License-Identifier: EPL-2.0

// Package aiff decodes AIFF files through github.com/go-audio/aiff.
//
// Signed PCM at 8, 16, 24 and 32 bits is supported. The decoder needs an
// io.ReadSeeker; other readers are buffered into memory first. The frame
// count from the COMM chunk is reported through Length.
package aiff
