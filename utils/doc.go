// SPDX-License-Identifier: EPL-2.0

// Package utils holds small numeric helpers shared by the resampler and the
// WAV writer.
package utils
