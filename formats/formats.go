// SPDX-License-Identifier: EPL-2.0

// Package formats wires every bundled decoder into an audio.Registry.
package formats

import (
	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/formats/aiff"
	"github.com/ik5/audxfade/formats/flac"
	"github.com/ik5/audxfade/formats/mp3"
	"github.com/ik5/audxfade/formats/vorbis"
	"github.com/ik5/audxfade/formats/wav"
)

// Default returns a registry with all bundled decoders keyed by extension.
func Default() *audio.Registry {
	reg := audio.NewRegistry()

	reg.Register("wav", wav.Decoder{})
	reg.Register("wave", wav.Decoder{})
	reg.Register("mp3", mp3.Decoder{})
	reg.Register("ogg", vorbis.Decoder{})
	reg.Register("oga", vorbis.Decoder{})
	reg.Register("aiff", aiff.Decoder{})
	reg.Register("aif", aiff.Decoder{})
	reg.Register("flac", flac.Decoder{})

	return reg
}
