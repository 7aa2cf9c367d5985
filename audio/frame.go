// SPDX-License-Identifier: EPL-2.0

package audio

// Frame is one stereo sample pair.
type Frame struct {
	Left  float32
	Right float32
}

// Scale returns f with both channels multiplied by g.
func (f Frame) Scale(g float32) Frame {
	return Frame{Left: f.Left * g, Right: f.Right * g}
}

// Add returns the per-channel sum of f and o.
func (f Frame) Add(o Frame) Frame {
	return Frame{Left: f.Left + o.Left, Right: f.Right + o.Right}
}

// Peak returns the larger absolute channel value.
func (f Frame) Peak() float32 {
	l, r := f.Left, f.Right
	if l < 0 {
		l = -l
	}
	if r < 0 {
		r = -r
	}
	if l > r {
		return l
	}
	return r
}

// FramesFromInterleaved converts interleaved stereo samples into frames,
// writing at most len(dst) frames and returning how many were written.
func FramesFromInterleaved(dst []Frame, samples []float32) int {
	n := min(len(dst), len(samples)/2)
	for i := range n {
		dst[i] = Frame{Left: samples[2*i], Right: samples[2*i+1]}
	}
	return n
}

// Interleave writes frames into dst as L,R pairs and returns the number of
// samples written.
func Interleave(dst []float32, frames []Frame) int {
	n := min(len(frames), len(dst)/2)
	for i := range n {
		dst[2*i] = frames[i].Left
		dst[2*i+1] = frames[i].Right
	}
	return n * 2
}
