// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/meeting-modules/internal/store"
	versioning "github.com/pdiddy/meeting-modules/internal/version"
	"github.com/pdiddy/meeting-modules/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history <module>",
	Short: "Show the version history of a module",
	Long: `History lists every version of a module, oldest first, with its bump
kind and change summary. The module is named by its ID or as
project/type/topic (for example payments/tutorial/deploy). With
--changelog the history is printed as the Markdown changelog instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

var diffCmd = &cobra.Command{
	Use:   "diff <ref1> <ref2>",
	Short: "Show the unified diff between two module versions",
	Long: `Diff prints the unified diff from ref1 to ref2. A ref is a version ID,
a module ID (its latest version), or module@X.Y.Z where module is an ID
or project/type/topic.`,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	changelog, _ := cmd.Flags().GetBool("changelog")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	m, err := resolveModule(ctx, st, args[0])
	if err != nil {
		return err
	}
	vm := versioning.NewManager(st, cfg.Versioning, logger)

	if changelog {
		text, err := vm.Changelog(ctx, m.ID)
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	}

	versions, err := vm.History(ctx, m.ID)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s, %s)\n\n", m.Title, m.Type, m.ID)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tBUMP\tDATE\tCHANGES")
	for _, v := range versions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Version, v.Bump, v.CreatedAt.Format(time.RFC3339), v.Changes)
	}
	return tw.Flush()
}

func runDiff(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	refs := make([]string, len(args))
	for i, r := range args {
		if refs[i], err = expandRef(ctx, st, r); err != nil {
			return err
		}
	}

	diff, err := versioning.NewManager(st, cfg.Versioning, logger).DiffRefs(ctx, refs[0], refs[1])
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Fprintln(os.Stderr, "No differences")
		return nil
	}
	fmt.Print(diff)
	return nil
}

// resolveModule accepts a module ID or project/type/topic.
func resolveModule(ctx context.Context, st *store.Store, name string) (types.Module, error) {
	parts := strings.SplitN(name, "/", 3)
	if len(parts) != 3 {
		return st.GetModule(ctx, name)
	}
	t, err := types.ParseModuleType(parts[1])
	if err != nil {
		return types.Module{}, err
	}
	return st.FindModule(ctx, parts[0], t, strings.ToLower(parts[2]))
}

// expandRef rewrites the module part of a project/type/topic ref to its
// module ID. Other refs are returned unchanged.
func expandRef(ctx context.Context, st *store.Store, r string) (string, error) {
	name, num, hasNum := strings.Cut(r, "@")
	if strings.Count(name, "/") != 2 {
		return r, nil
	}
	m, err := resolveModule(ctx, st, name)
	if err != nil {
		return "", err
	}
	if hasNum {
		return m.ID + "@" + num, nil
	}
	return m.ID, nil
}

func init() {
	historyCmd.Flags().Bool("changelog", false, "print the Markdown changelog")

	rootCmd.AddCommand(historyCmd, diffCmd)
}
