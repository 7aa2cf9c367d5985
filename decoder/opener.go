// SPDX-License-Identifier: EPL-2.0

package decoder

import (
	"github.com/ik5/audxfade/audio"
)

// Opener turns a passage path into a decoded Source.
type Opener interface {
	Open(path string) (audio.Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (audio.Source, error)

func (f OpenerFunc) Open(path string) (audio.Source, error) { return f(path) }

// RegistryOpener opens files through an extension registry.
type RegistryOpener struct {
	Registry *audio.Registry
}

func (o RegistryOpener) Open(path string) (audio.Source, error) {
	return audio.OpenFile(o.Registry, path)
}
