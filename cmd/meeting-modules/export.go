// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export modules, version histories and extractions",
	Long: `Export writes every module with its complete, ordered version history
and every extraction to <data-dir>/index/export.yaml or export.json. With
--format csv it writes notes.csv, extractions.csv, modules.csv and
versions.csv into --out (default <data-dir>/index/csv).`,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	format, _ := cmd.Flags().GetString("format")
	project, _ := cmd.Flags().GetString("project")
	out, _ := cmd.Flags().GetString("out")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	switch format {
	case "yaml", "":
		path, err := st.ExportYAML(ctx, project)
		if err != nil {
			return err
		}
		fmt.Println("Exported to", path)
	case "json":
		path, err := st.ExportJSON(ctx, project)
		if err != nil {
			return err
		}
		fmt.Println("Exported to", path)
	case "csv":
		if out == "" {
			out = filepath.Join(st.DataDir(), "index", "csv")
		}
		paths, err := st.ExportCSV(ctx, out, project)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println("Exported to", p)
		}
	default:
		return fmt.Errorf("unsupported format %q: use yaml, json or csv", format)
	}

	return nil
}

func init() {
	exportCmd.Flags().String("format", "yaml", "export format: yaml, json or csv")
	exportCmd.Flags().String("project", "", "only export this project")
	exportCmd.Flags().String("out", "", "directory for csv files")

	rootCmd.AddCommand(exportCmd)
}
