// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/meeting-modules/internal/container"
	"github.com/pdiddy/meeting-modules/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Store meeting notes from files and directories",
	Long: `Ingest reads Markdown and plain-text meeting notes, normalizes them and
stores each distinct content once, keyed by its SHA-256 hash. Directories
are walked recursively. With no arguments the configured input
directories are used.

Re-ingesting a changed file at the same path stores a new note and marks
the previous one as superseded. With --markitdown, PDF and DOCX files are
converted through the markitdown container image first. With --watch,
the directories are monitored and new or changed files are ingested as
they appear.`,
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("project") {
		cfg.Ingest.DefaultProject, _ = cmd.Flags().GetString("project")
	}
	if cmd.Flags().Changed("markitdown") {
		cfg.Ingest.Markitdown, _ = cmd.Flags().GetBool("markitdown")
	}
	watch, _ := cmd.Flags().GetBool("watch")

	paths := args
	if len(paths) == 0 {
		paths = cfg.Ingest.InputDirs
	}
	if len(paths) == 0 {
		return fmt.Errorf("no input: pass files or directories, or set ingest.input_dirs")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := []ingest.Option{ingest.WithLogger(logger)}
	if cfg.Ingest.Markitdown {
		rt, err := container.DetectRuntime(ctx)
		if err != nil {
			return err
		}
		p, err := ingest.NewMarkitdownParser(ctx, rt)
		if err != nil {
			return err
		}
		for _, ext := range []string{".pdf", ".docx", ".pptx", ".html"} {
			opts = append(opts, ingest.WithParser(ext, p))
		}
	}
	in := ingest.New(st, cfg.Ingest, opts...)

	started := time.Now()
	summary, err := in.IngestBatch(ctx, paths, os.Stdout)
	if err != nil {
		return err
	}
	failures := make([]string, 0, len(summary.Failures))
	for _, f := range summary.Failures {
		failures = append(failures, f.Path+": "+f.Err.Error())
	}
	recordRun(ctx, st, "ingest", started, summary.Ingested+summary.Superseded, summary.Duplicates, summary.Failed, failures)

	if watch {
		var dirs []string
		for _, p := range paths {
			if info, err := os.Stat(p); err == nil && info.IsDir() {
				dirs = append(dirs, p)
			}
		}
		if len(dirs) == 0 {
			return fmt.Errorf("--watch needs at least one directory")
		}
		if err := in.Watch(ctx, dirs, os.Stdout); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	if summary.HasFailures() {
		return batchFailed(summary.Failed, "file(s)")
	}
	return nil
}

func init() {
	ingestCmd.Flags().String("project", "", "project used when neither front matter nor directory names one (overrides ingest.default_project)")
	ingestCmd.Flags().Bool("watch", false, "keep running and ingest files as they change")
	ingestCmd.Flags().Bool("markitdown", false, "convert PDF and DOCX files through the markitdown container")

	rootCmd.AddCommand(ingestCmd)
}
