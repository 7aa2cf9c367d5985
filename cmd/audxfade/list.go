// SPDX-License-Identifier: EPL-2.0

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ik5/audxfade"
	"github.com/ik5/audxfade/audio"
	"github.com/ik5/audxfade/internal/playlist"
	"github.com/ik5/audxfade/passage"
)

func addListFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("playlist", "p", "", "YAML playlist file")
	cmd.Flags().Duration("crossfade", 3*time.Second, "crossfade length for files given as arguments")
	cmd.Flags().String("curve", audio.SCurve.String(), "fade curve for files given as arguments")
}

// passages builds the play list from --playlist or from the file arguments
// and resolves every item, probing files whose fade-out is measured from
// the end.
func passages(cmd *cobra.Command, args []string, eng *audxfade.Engine) ([]passage.Passage, error) {
	var pl *playlist.File

	file, _ := cmd.Flags().GetString("playlist")
	switch {
	case file != "" && len(args) > 0:
		return nil, errors.New("give either --playlist or files, not both")
	case file != "":
		var err error
		if pl, err = playlist.Load(file); err != nil {
			return nil, err
		}
	case len(args) > 0:
		xf, _ := cmd.Flags().GetDuration("crossfade")
		name, _ := cmd.Flags().GetString("curve")
		curve, err := audio.ParseFadeCurve(name)
		if err != nil {
			return nil, err
		}
		pl = playlist.FromPaths(args, xf, curve)
		if err := pl.Validate(); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("nothing to play")
	}

	ps := make([]passage.Passage, 0, len(pl.Items))
	for i := range pl.Items {
		var length int64
		if pl.NeedsLength(i) {
			var err error
			if length, err = eng.Probe(pl.Items[i].Path); err != nil {
				return nil, fmt.Errorf("probe %s: %w", pl.Items[i].Path, err)
			}
		}
		p, err := pl.Passage(i, length)
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	return ps, nil
}
