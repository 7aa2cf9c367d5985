// SPDX-License-Identifier: EPL-2.0

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ik5/audxfade/timing"
)

var probeCmd = &cobra.Command{
	Use:   "probe files...",
	Short: "Print the length of each file",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	var failed int
	for _, path := range args {
		ticks, err := eng.Probe(path)
		if err != nil {
			logger.Error("probe failed", "path", path, "err", err)
			failed++
			continue
		}
		fmt.Fprintf(tw, "%s\t%v\t%d ticks\n", path, timing.TicksToDuration(ticks).Round(time.Millisecond), ticks)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be probed", failed, len(args))
	}
	return nil
}
