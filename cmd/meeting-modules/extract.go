// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/meeting-modules/internal/extract"
	"github.com/pdiddy/meeting-modules/pkg/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract steps, definitions, FAQs, decisions and actions from notes",
	Long: `Extract runs an extractor over the segments of each current note and
stores the validated items with provenance (note, segments, line range).
Items are keyed by type, note and normalized payload, so re-running never
duplicates them.

The rules extractor (default) recognizes numbered steps, "X is/means Y"
definitions, Q:/A: pairs, "Decision:" lines and "Action:" lines with an
owner and a due date. The claude extractor asks the Claude API and reads its key
from the anthropic-api-key secret.`,
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("extractor") {
		cfg.Extraction.Extractor, _ = cmd.Flags().GetString("extractor")
	}
	if cmd.Flags().Changed("model") {
		cfg.Extraction.Model, _ = cmd.Flags().GetString("model")
	}
	project, _ := cmd.Flags().GetString("project")

	ext, err := newExtractor(cfg.Extraction)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	started := time.Now()
	summary, err := extract.NewRunner(st, ext, cfg.Extraction, logger).Run(ctx, project, os.Stdout)
	if err != nil {
		return err
	}
	failures := make([]string, 0, len(summary.Failures))
	for _, f := range summary.Failures {
		failures = append(failures, f.Path+": "+f.Err.Error())
	}
	recordRun(ctx, st, "extract", started, summary.Notes, 0, summary.Failed, failures)

	if summary.HasFailures() {
		return batchFailed(summary.Failed, "note(s)")
	}
	return nil
}

func newExtractor(cfg types.ExtractionConfig) (extract.Extractor, error) {
	switch cfg.Extractor {
	case "rules", "":
		return extract.RuleExtractor{}, nil
	case "claude":
		key := secretDefault("anthropic-api-key", cfg.APIKey)
		if key == "" {
			return nil, fmt.Errorf("claude extractor needs an API key: add .secrets/anthropic-api-key or set MEETING_MODULES_EXTRACTION_API_KEY")
		}
		return &extract.ClaudeExtractor{
			APIKey:         key,
			Model:          cfg.Model,
			Client:         &http.Client{Timeout: cfg.ItemTimeout},
			MaxRateRetries: cfg.MaxRetries,
		}, nil
	default:
		return nil, fmt.Errorf("unknown extractor %q: use rules or claude", cfg.Extractor)
	}
}

func init() {
	extractCmd.Flags().String("project", "", "only extract from notes of this project")
	extractCmd.Flags().String("extractor", "", "extraction backend: rules or claude (overrides extraction.extractor)")
	extractCmd.Flags().String("model", "", "Claude model identifier (overrides extraction.model)")

	rootCmd.AddCommand(extractCmd)
}
