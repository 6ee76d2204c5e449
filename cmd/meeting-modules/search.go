// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/meeting-modules/internal/store"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over notes, segments and extractions",
	Long: `Search matches the query against note text, segment text and extraction
payloads. Terms are stemmed; use "quotes" for phrases, a trailing * for
prefixes and OR between alternatives. Records of superseded notes are
left out. Hits are ranked by how many query terms they contain.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	project, _ := cmd.Flags().GetString("project")
	kinds, _ := cmd.Flags().GetStringSlice("kind")
	itemTypes, _ := cmd.Flags().GetStringSlice("type")
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	q := store.SearchQuery{
		Text:    strings.Join(args, " "),
		Project: project,
		Types:   itemTypes,
		Limit:   limit,
	}
	for _, k := range kinds {
		kind := store.SearchKind(strings.ToLower(k))
		if !slices.Contains(store.SearchKinds, kind) {
			return fmt.Errorf("unknown kind %q: use note, segment or extraction", k)
		}
		q.Kinds = append(q.Kinds, kind)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	results, err := st.Search(cmd.Context(), q)
	if err != nil {
		return err
	}
	return formatSearchOutput(os.Stdout, results, jsonOutput)
}

func formatSearchOutput(w io.Writer, results []store.SearchResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintf(w, "%-4s  %-10s  %-10s  %-12s  %s\n", "Rank", "Kind", "Type", "Project", "Snippet")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for i, r := range results {
		snippet := strings.Join(strings.Fields(r.Snippet), " ")
		if len(snippet) > 60 {
			snippet = snippet[:57] + "..."
		}
		project := r.Project
		if len(project) > 12 {
			project = project[:9] + "..."
		}
		fmt.Fprintf(w, "%-4d  %-10s  %-10s  %-12s  %s\n", i+1, r.Kind, r.Type, project, snippet)
	}
	fmt.Fprintf(w, "\n%d results\n", len(results))
	return nil
}

func init() {
	searchCmd.Flags().String("project", "", "only search this project")
	searchCmd.Flags().StringSlice("kind", nil, "record kinds to search: note, segment, extraction")
	searchCmd.Flags().StringSlice("type", nil, "segment or extraction types to keep, e.g. faq,step,heading")
	searchCmd.Flags().Int("limit", store.DefaultSearchLimit, "maximum results")
	searchCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(searchCmd)
}
