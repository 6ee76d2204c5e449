// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/meeting-modules/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the pipeline state for consistency",
	Long: `Verify checks that note IDs match their content hashes, segment IDs
and order are intact, themes meet the minimum support, every module's
version equals its latest history entry, histories increase strictly,
and links between rendered modules resolve. Missing extraction types,
dangling segment references and theme modules whose theme was replaced
are reported as warnings; --strict turns them into failures.`,
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	project, _ := cmd.Flags().GetString("project")
	strict, _ := cmd.Flags().GetBool("strict")
	minSupport := cfg.Analysis.MinSupport
	if cmd.Flags().Changed("min-support") {
		minSupport, _ = cmd.Flags().GetInt("min-support")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := verify.New(st, logger).Run(ctx, verify.Options{
		Project:    project,
		MinSupport: minSupport,
		OutputDir:  cfg.Generation.OutputDir,
		Strict:     strict,
	}, os.Stdout)
	if err != nil {
		return err
	}
	if !report.Passed() {
		return batchFailed(report.Failed(), "check(s)")
	}
	return nil
}

func init() {
	verifyCmd.Flags().String("project", "", "only check this project")
	verifyCmd.Flags().Bool("strict", false, "treat warnings as failures")
	verifyCmd.Flags().Int("min-support", 0, "minimum segments per theme (overrides analysis.min_support)")

	rootCmd.AddCommand(verifyCmd)
}
