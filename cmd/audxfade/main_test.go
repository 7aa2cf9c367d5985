// SPDX-License-Identifier: EPL-2.0

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gowav "github.com/go-audio/wav"

	"github.com/ik5/audxfade/formats/wav"
)

const testRate = 44100

func writeTone(t *testing.T, dir, name string, frames int64) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	samples := make([]float32, 2*frames)
	for i := range samples {
		samples[i] = 0.25
	}
	if err := wav.WriteWAV16(f, testRate, 2, samples); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestVersion(t *testing.T) {
	if out := execute(t, "version"); !strings.Contains(out, "audxfade version dev") {
		t.Fatalf("version output = %q", out)
	}
}

func TestProbe(t *testing.T) {
	path := writeTone(t, t.TempDir(), "tone.wav", testRate/2)

	out := execute(t, "probe", "--log-level", "error", path)
	if !strings.Contains(out, "500ms") {
		t.Fatalf("probe output = %q, want 500ms", out)
	}
}

func TestRenderCrossfades(t *testing.T) {
	dir := t.TempDir()
	a := writeTone(t, dir, "a.wav", testRate/2)
	b := writeTone(t, dir, "b.wav", testRate/2)
	dst := filepath.Join(dir, "mix.wav")

	execute(t, "render", "--log-level", "error", "--speed", "4",
		"--crossfade", "200ms", "--curve", "linear", "-o", dst, a, b)

	f, err := os.Open(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	dec := gowav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatal(err)
	}
	frames := buf.NumFrames()

	// Two half-second files overlapping by up to 200 ms, plus at most one
	// trailing block of silence.
	if lo, hi := testRate*3/4, testRate+renderBlock; frames < lo || frames > hi {
		t.Fatalf("rendered %d frames, want %d..%d", frames, lo, hi)
	}
	if dec.SampleRate != testRate || dec.NumChans != 2 {
		t.Fatalf("format = %d Hz %d ch", dec.SampleRate, dec.NumChans)
	}
}
