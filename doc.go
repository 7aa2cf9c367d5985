// SPDX-License-Identifier: EPL-2.0

// Package audxfade is a gapless, crossfading playback engine.
//
// Passages, timed excerpts of audio files, are decoded one at a time by a
// priority scheduler into per-passage ring buffers. Fades are baked into the
// frames as they are decoded, so the mixer only has to copy one buffer or
// sum two of them during a crossfade. Everything is driven through an
// Engine:
//
//	cfg := config.Default()
//	eng, err := audxfade.New(cfg)
//	if err != nil {
//		return err
//	}
//	defer eng.Close()
//	go eng.Run(ctx)
//
//	id := uuid.New()
//	_, err = eng.SubmitDecode(id, passage.Passage{Path: "song.flac"}, decoder.Immediate, true)
//	// wait for events.ReadyForStart, then
//	err = eng.StartPassage(id, mixer.Fade{})
//
// Output is pulled from Engine.Mixer, either through an output.Pump feeding
// the audio device or offline with Engine.Render.
//
// # Packages
//
//   - timing: tick arithmetic shared by every component
//   - audio, formats: sources, decoders and the resample/downmix pipeline
//   - ring, buffers: per-passage frame storage and its lifecycle
//   - decoder: the single-worker decode scheduler
//   - mixer: the playback state machine
//   - output: device and file output
//   - events: lifecycle notifications
//   - config: settings loaded with viper
package audxfade
