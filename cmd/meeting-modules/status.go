// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show record counts and recent runs",
	Long: `Status prints how many notes, segments, themes, role mappings,
extractions, modules and versions the store holds, followed by the most
recent batch runs.`,
	RunE: runStatus,
}

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List modules with their current versions",
	RunE:  runModules,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("runs")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	counts, err := st.Counts(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("Store: %s\n\n", st.DataDir())
	for _, k := range keys {
		fmt.Printf("  %-15s %d\n", k, counts[k])
	}

	runs, err := st.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}
	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tCOMMAND\tOK\tSKIPPED\tFAILED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.StartedAt.Format(time.RFC3339), r.Command, r.Succeeded, r.Skipped, r.Failed,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	return tw.Flush()
}

func runModules(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	project, _ := cmd.Flags().GetString("project")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	mods, err := st.ListModules(ctx, project)
	if err != nil {
		return err
	}
	if len(mods) == 0 {
		fmt.Println("No modules found.")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROJECT\tTYPE\tVERSION\tTITLE")
	for _, m := range mods {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Project, m.Type, m.Version, strings.TrimSpace(m.Title))
	}
	return tw.Flush()
}

func init() {
	statusCmd.Flags().Int("runs", 10, "number of recent runs to show")
	modulesCmd.Flags().String("project", "", "only list modules of this project")

	rootCmd.AddCommand(statusCmd, modulesCmd)
}
