// SPDX-License-Identifier: EPL-2.0

// Package wav provides WAV decoding and encoding on top of
// github.com/go-audio/wav.
//
// # Supported Formats
//
// Decoding handles integer PCM at 8 (unsigned), 16, 24 and 32 bits with any
// channel count and sample rate. The data chunk size gives the frame count,
// reported through Length.
//
// # Decoding WAV Files
//
//	file, _ := os.Open("audio.wav")
//	source, err := wav.Decoder{}.Decode(file)
//	if err != nil {
//	    // Handle error
//	}
//	buf := make([]float32, 4096)
//	n, err := source.ReadSamples(buf)
//
// # Encoding WAV Files
//
// Writer streams float32 samples out as 16 or 24-bit PCM. The destination
// must be an io.WriteSeeker because the header is patched on Close:
//
//	out, _ := os.Create("render.wav")
//	w, _ := wav.NewWriter(out, 44100, 2, 16)
//	_ = w.Write(samples)
//	_ = w.Close()
package wav
