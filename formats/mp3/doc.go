// SPDX-License-Identifier: EPL-2.0

// Package mp3 decodes MPEG-1/2 Layer III streams through
// github.com/hajimehoshi/go-mp3.
//
// The decoder always yields 16-bit stereo which is converted to float32 in
// [-1, 1]. When the input implements io.Seeker the source also reports its
// length in frames and supports frame-accurate seeking:
//
//	f, _ := os.Open("song.mp3")
//	src, err := mp3.Decoder{}.Decode(f)
//	frames := audio.FrameLength(src)
package mp3
