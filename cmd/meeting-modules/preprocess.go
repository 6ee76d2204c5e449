// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/meeting-modules/internal/segment"
)

var preprocessCmd = &cobra.Command{
	Use:   "preprocess",
	Short: "Split current notes into ordered segments",
	Long: `Preprocess cleans each current note (accents folded to ASCII, meeting
boilerplate and horizontal rules dropped) and splits it into paragraph,
list and quote segments with line ranges. A note's segments are replaced atomically;
notes whose segments are unchanged are left alone.`,
	RunE: runPreprocess,
}

func runPreprocess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("min-length") {
		cfg.Segment.MinLength, _ = cmd.Flags().GetInt("min-length")
	}
	project, _ := cmd.Flags().GetString("project")

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	started := time.Now()
	summary, err := segment.New(st, cfg.Segment, logger).Run(ctx, project, os.Stdout)
	if err != nil {
		return err
	}
	failures := make([]string, 0, len(summary.Failures))
	for _, f := range summary.Failures {
		failures = append(failures, f.NoteID+": "+f.Err.Error())
	}
	recordRun(ctx, st, "preprocess", started, summary.Segmented, summary.Unchanged, summary.Failed, failures)

	if summary.HasFailures() {
		return batchFailed(summary.Failed, "note(s)")
	}
	return nil
}

func init() {
	preprocessCmd.Flags().String("project", "", "only segment notes of this project")
	preprocessCmd.Flags().Int("min-length", 0, "drop blocks shorter than this many characters (overrides segment.min_length)")

	rootCmd.AddCommand(preprocessCmd)
}
