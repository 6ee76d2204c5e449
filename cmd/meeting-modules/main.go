// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the meeting-modules CLI.
// Each pipeline stage is a subcommand: ingest, preprocess, analyze,
// extract and generate. diff, history, export, search and verify read the
// results back.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/meeting-modules/internal/logging"
	"github.com/pdiddy/meeting-modules/internal/secrets"
	"github.com/pdiddy/meeting-modules/internal/store"
	"github.com/pdiddy/meeting-modules/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets secrets.Secrets

// logger is built in PersistentPreRunE from --verbose and --log-format.
var logger = zap.NewNop()

// errBatchFailures marks a batch that finished with failed items.
var errBatchFailures = errors.New("batch completed with failures")

// Exit codes.
const (
	exitOK       = 0
	exitInternal = 1
	exitNotFound = 2
	exitBatch    = 3
)

// secretDefault returns the secret value for key if it exists, or fallback otherwise.
func secretDefault(key, fallback string) string {
	return loadedSecrets.Get(key, fallback)
}

// rootCmd is the base command for the meeting-modules CLI.
var rootCmd = &cobra.Command{
	Use:   "meeting-modules",
	Short: "Turn meeting notes into versioned knowledge modules",
	Long: `meeting-modules ingests meeting notes, splits them into segments, groups
the segments into themes, extracts steps, definitions, FAQs, decisions and
action items, and builds tutorial, FAQ, how-to, role path and index
modules from them. Every module change is recorded as a new semantic
version with a unified diff against the previous one.

Run the stages in order: ingest, preprocess, analyze, extract, generate.
Each stage is idempotent and safe to re-run.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		format, _ := cmd.Flags().GetString("log-format")
		log, err := logging.New(logging.Options{Verbose: verbose, Format: format})
		if err != nil {
			return err
		}
		logger = log

		s, err := secrets.Load(".secrets/", logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", s.Keys())
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./meeting-modules.yaml or ~/.config/meeting-modules/meeting-modules.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "working directory holding the database (overrides store.data_dir)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "console", "diagnostic log format: console or json")
}

func initConfig() {
	if err := setDefaults(types.DefaultPipelineConfig()); err != nil {
		fmt.Fprintln(os.Stderr, "warning: registering config defaults:", err)
	}

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("meeting-modules")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "meeting-modules"))
		}
	}

	viper.SetEnvPrefix("MEETING_MODULES")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every leaf of cfg with viper so that environment
// variables such as MEETING_MODULES_ANALYSIS_K are picked up.
func setDefaults(cfg types.PipelineConfig) error {
	m, err := configMap(cfg)
	if err != nil {
		return err
	}
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := prefix + k
			if sub, ok := v.(map[string]any); ok {
				walk(key+".", sub)
				continue
			}
			viper.SetDefault(key, v)
		}
	}
	walk("", m)
	viper.SetDefault("extraction.api_key", "")
	return nil
}

// loadConfig returns the effective configuration: defaults, then the
// config file and environment, then --data-dir.
func loadConfig(cmd *cobra.Command) (types.PipelineConfig, error) {
	cfg := types.DefaultPipelineConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("reading configuration: %w", err)
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Store.DataDir = dir
	}
	return cfg, nil
}

func openStore(cfg types.PipelineConfig) (*store.Store, error) {
	return store.Open(cfg.Store, logger)
}

// batchFailed wraps errBatchFailures so main exits with code 3.
func batchFailed(n int, what string) error {
	return fmt.Errorf("%d %s failed: %w", n, what, errBatchFailures)
}

// recordRun appends a batch outcome to the run log. A failure to record
// is logged and otherwise ignored.
func recordRun(ctx context.Context, st *store.Store, command string, started time.Time, succeeded, skipped, failed int, failures []string) {
	_, err := st.RecordRun(ctx, types.Run{
		Command:    command,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Succeeded:  succeeded,
		Skipped:    skipped,
		Failed:     failed,
		Failures:   failures,
	})
	if err != nil {
		logger.Warn("recording run", zap.String("command", command), zap.Error(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, types.ErrNotFound):
		return exitNotFound
	case errors.Is(err, errBatchFailures):
		return exitBatch
	default:
		return exitInternal
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}
