// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/meeting-modules/internal/analyze"
	"github.com/pdiddy/meeting-modules/internal/roles"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [projects...]",
	Short: "Cluster segments into themes per project",
	Long: `Analyze builds a TF-IDF representation of each project's segments and
clusters them with seeded k-means. Clusters below the minimum support are
discarded; the rest become themes named after their top keywords. A
project's previous themes are replaced. Projects with fewer segments than
k are skipped.

Themes and segments are then mapped to the roles of the role taxonomy
(roles.taxonomy, or the built-in one) by keyword matching. Mapped roles
get their own role path modules in generate.

With no arguments every project with current notes is analyzed. The same
segments, k and seed always produce the same themes.`,
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("k") {
		cfg.Analysis.K, _ = cmd.Flags().GetInt("k")
	}
	if cmd.Flags().Changed("seed") {
		cfg.Analysis.Seed, _ = cmd.Flags().GetInt64("seed")
	}
	if cmd.Flags().Changed("min-support") {
		cfg.Analysis.MinSupport, _ = cmd.Flags().GetInt("min-support")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	taxonomy, err := roles.LoadTaxonomy(cfg.Roles.Taxonomy)
	if err != nil {
		return err
	}
	a, err := analyze.New(st, cfg.Analysis, logger)
	if err != nil {
		return err
	}
	a.WithRoles(roles.NewMapper(st, taxonomy, cfg.Roles, logger))

	started := time.Now()
	summary, err := a.AnalyzeAll(ctx, args, os.Stdout)
	if err != nil {
		return err
	}
	failures := make([]string, 0, len(summary.Failures))
	for _, f := range summary.Failures {
		failures = append(failures, f.Project+": "+f.Err.Error())
	}
	recordRun(ctx, st, "analyze", started, summary.Analyzed, summary.Skipped, summary.Failed, failures)

	if summary.HasFailures() {
		return batchFailed(summary.Failed, "project(s)")
	}
	return nil
}

func init() {
	analyzeCmd.Flags().Int("k", 0, "number of clusters (overrides analysis.k)")
	analyzeCmd.Flags().Int64("seed", 0, "k-means random seed (overrides analysis.seed)")
	analyzeCmd.Flags().Int("min-support", 0, "minimum segments per theme (overrides analysis.min_support)")

	rootCmd.AddCommand(analyzeCmd)
}
