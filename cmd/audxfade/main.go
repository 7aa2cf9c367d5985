// SPDX-License-Identifier: EPL-2.0

// Command audxfade plays or renders a list of audio files with gapless
// crossfades.
package main

func main() {
	Execute()
}
