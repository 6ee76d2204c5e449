// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/meeting-modules/internal/generate"
	"github.com/pdiddy/meeting-modules/internal/store"
	versioning "github.com/pdiddy/meeting-modules/internal/version"
	"github.com/pdiddy/meeting-modules/pkg/types"
)

var generateCmd = &cobra.Command{
	Use:   "generate [projects...]",
	Short: "Build, version and write knowledge modules",
	Long: `Generate builds a tutorial, FAQ and how-to module for every theme, a
learning path for every role named in the notes, and a project index.
Each module is committed to its version history: unchanged content keeps
the current version, otherwise the bump follows the structural change
(removed sections are major, added sections or items are minor, text
edits are patch). Rendered modules are written to
<output-dir>/<project>/<slug>.md together with a changelog.

With no arguments every project with current notes is generated.`,
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.Generation.OutputDir, _ = cmd.Flags().GetString("output-dir")
	}
	if cmd.Flags().Changed("changelogs") {
		cfg.Generation.Changelogs, _ = cmd.Flags().GetBool("changelogs")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	g, err := newGenerator(st, cfg)
	if err != nil {
		return err
	}

	started := time.Now()
	summary, err := g.Run(ctx, args, os.Stdout)
	if err != nil {
		return err
	}
	var failures []string
	for _, r := range summary.Results {
		if r.Err != nil {
			failures = append(failures, r.Project+"/"+string(r.Type)+"/"+r.Key+": "+r.Err.Error())
		}
	}
	recordRun(ctx, st, "generate", started, summary.Committed+summary.Unchanged, summary.Skipped, summary.Failed, failures)

	if summary.HasFailures() {
		return batchFailed(summary.Failed, "module(s)")
	}
	return nil
}

func newGenerator(st *store.Store, cfg types.PipelineConfig) (*generate.Generator, error) {
	r, err := generate.NewTemplateRenderer()
	if err != nil {
		return nil, err
	}
	b := generate.NewBuilder(st, r, logger)
	vm := versioning.NewManager(st, cfg.Versioning, logger)
	return generate.NewGenerator(b, vm, st, cfg.Generation, logger), nil
}

func init() {
	generateCmd.Flags().String("output-dir", "", "directory for rendered modules (overrides generation.output_dir)")
	generateCmd.Flags().Bool("changelogs", true, "write a CHANGELOG file next to each module (overrides generation.changelogs)")

	rootCmd.AddCommand(generateCmd)
}
