// SPDX-License-Identifier: EPL-2.0

package utils

// Float32ToInt16 converts a sample in [-1, 1] to 16-bit PCM, clamping
// values outside the range. Negative values scale by 32768 so -1 maps to
// math.MinInt16.
func Float32ToInt16(x float32) int16 {
	return int16(Float32ToPCM(x, 16))
}

// Float32ToPCM converts a sample in [-1, 1] to signed PCM of the given bit
// depth (8 to 32), clamping values outside the range.
func Float32ToPCM(x float32, bitDepth int) int {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}

	full := int64(1) << (bitDepth - 1)
	if x < 0 {
		return int(float64(x) * float64(full))
	}
	return int(float64(x) * float64(full-1))
}
