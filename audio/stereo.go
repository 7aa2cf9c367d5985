// SPDX-License-Identifier: EPL-2.0

package audio

import "fmt"

// StereoMixer folds any channel layout down (or up) to interleaved stereo.
// Mono is duplicated to both sides. Wider layouts average the even-indexed
// channels into left and the odd-indexed channels into right.
type StereoMixer struct {
	src Source
	tmp []float32
}

func NewStereoMixer(src Source) *StereoMixer {
	return &StereoMixer{
		src: src,
		tmp: make([]float32, 8192),
	}
}

func (m *StereoMixer) SampleRate() int { return m.src.SampleRate() }
func (m *StereoMixer) Channels() int   { return 2 }
func (m *StereoMixer) BufSize() int    { return m.src.BufSize() }
func (m *StereoMixer) Close() error {
	err := m.src.Close()
	if err != nil {
		return fmt.Errorf("%w", err)
	}

	return nil
}

// ReadSamples fills dst with interleaved stereo samples and returns the
// number of float32 values written.
func (m *StereoMixer) ReadSamples(dst []float32) (int, error) {
	if len(dst)%2 != 0 {
		return 0, ErrInvalidDstSize
	}
	if len(dst) == 0 {
		return 0, nil
	}

	channels := m.src.Channels()
	if channels <= 0 {
		return 0, ErrNoChannels
	}
	if channels == 2 {
		return m.src.ReadSamples(dst)
	}

	frames := len(dst) / 2
	samplesNeeded := frames * channels

	// Grow tmp buffer if needed (but don't shrink to avoid thrashing)
	if cap(m.tmp) < samplesNeeded {
		m.tmp = make([]float32, samplesNeeded)
	}
	m.tmp = m.tmp[:samplesNeeded]

	n, err := m.src.ReadSamples(m.tmp)
	got := n / channels
	if got == 0 {
		return 0, err
	}

	switch channels {
	case 1:
		for f := range got {
			v := m.tmp[f]
			dst[2*f] = v
			dst[2*f+1] = v
		}
	default:
		// Even-indexed channels feed left, odd-indexed feed right.
		invLeft := 1 / float32((channels+1)/2)
		invRight := 1 / float32(channels/2)
		for f := range got {
			base := f * channels
			var l, r float32
			for c := 0; c < channels; c += 2 {
				l += m.tmp[base+c]
			}
			for c := 1; c < channels; c += 2 {
				r += m.tmp[base+c]
			}
			dst[2*f] = l * invLeft
			dst[2*f+1] = r * invRight
		}
	}

	return got * 2, err
}
