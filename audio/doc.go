// SPDX-License-Identifier: EPL-2.0

// Package audio provides the sample-level building blocks of the decode
// pipeline.
//
// This package contains:
//   - Source interface for decoded PCM input, plus the optional Lengther
//     and Seeker capabilities
//   - Registry mapping file extensions to decoders, and OpenFile
//   - Resampler for sample rate conversion
//   - StereoMixer for folding any channel layout to stereo
//   - Frame, the stereo unit stored in ring buffers
//   - FadeCurve and Envelope for fade gain
//
// # Source Interface
//
//	type Source interface {
//	    SampleRate() int
//	    Channels() int
//	    ReadSamples(dst []float32) (int, error)
//	    BufSize() int
//	    Close() error
//	}
//
// Decoders and processors implement this interface so they chain into a
// pipeline: decode, resample, downmix.
//
//	src, _ := audio.OpenFile(reg, "track.flac")
//	pipeline := audio.NewStereoMixer(audio.NewResampler(src, 44100))
//
// # Fades
//
// An Envelope describes fade-in and fade-out regions in frames relative to
// the passage start. Apply scales interleaved stereo samples in place:
//
//	env := audio.Envelope{FadeInFrames: 44100, FadeInCurve: audio.SCurve}
//	env.Apply(chunk, firstFrame)
//
// # Sample Format
//
// Samples are float32 in the range [-1.0, 1.0]. A source may return data
// together with io.EOF; a read returning 0 samples with io.EOF marks the
// end of the stream.
package audio
