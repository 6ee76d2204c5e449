// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

// Export is the document written by ExportYAML and ExportJSON.
type Export struct {
	Modules     []ExportModule     `json:"modules" yaml:"modules"`
	Extractions []types.Extraction `json:"extractions" yaml:"extractions"`
}

// ExportModule is a module with its complete, ordered version history.
type ExportModule struct {
	ID       string          `json:"id" yaml:"id"`
	Project  string          `json:"project" yaml:"project"`
	Type     string          `json:"module_type" yaml:"module_type"`
	TopicKey string          `json:"topic_key" yaml:"topic_key"`
	Title    string          `json:"title" yaml:"title"`
	Version  string          `json:"version" yaml:"version"`
	Versions []ExportVersion `json:"versions" yaml:"versions"`
}

// ExportVersion is one entry of a module's history.
type ExportVersion struct {
	ID        string `json:"id" yaml:"id"`
	Version   string `json:"version" yaml:"version"`
	Bump      string `json:"bump" yaml:"bump"`
	Changes   string `json:"changes" yaml:"changes"`
	CreatedAt string `json:"created_at" yaml:"created_at"`
	Content   string `json:"content" yaml:"content"`
}

// ExportYAML writes the modules and extractions of project (all when
// empty) to DataDir/index/export.yaml and returns the path.
func (s *Store) ExportYAML(ctx context.Context, project string) (string, error) {
	doc, err := s.BuildExport(ctx, project)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	path := filepath.Join(s.dataDir, indexDir, "export.yaml")
	return path, os.WriteFile(path, data, 0o644)
}

// ExportJSON writes the same document as ExportYAML to export.json.
func (s *Store) ExportJSON(ctx context.Context, project string) (string, error) {
	doc, err := s.BuildExport(ctx, project)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	path := filepath.Join(s.dataDir, indexDir, "export.json")
	return path, os.WriteFile(path, data, 0o644)
}

// BuildExport collects modules with their histories and all extractions.
func (s *Store) BuildExport(ctx context.Context, project string) (Export, error) {
	modules, err := s.ListModules(ctx, project)
	if err != nil {
		return Export{}, fmt.Errorf("querying for export: %w", err)
	}

	doc := Export{Modules: make([]ExportModule, 0, len(modules))}
	for _, m := range modules {
		versions, err := s.ListVersions(ctx, m.ID)
		if err != nil {
			return Export{}, err
		}
		em := ExportModule{
			ID:       m.ID,
			Project:  m.Project,
			Type:     string(m.Type),
			TopicKey: m.TopicKey,
			Title:    m.Title,
			Version:  m.Version.String(),
			Versions: make([]ExportVersion, len(versions)),
		}
		for i, v := range versions {
			em.Versions[i] = ExportVersion{
				ID:        v.ID,
				Version:   v.Version.String(),
				Bump:      string(v.Bump),
				Changes:   v.Changes,
				CreatedAt: formatTime(v.CreatedAt),
				Content:   v.Content,
			}
		}
		doc.Modules = append(doc.Modules, em)
	}

	doc.Extractions, err = s.QueryExtractions(ctx, ExtractionQuery{Project: project})
	if err != nil {
		return Export{}, err
	}
	return doc, nil
}

// ExportCSV writes notes.csv, extractions.csv, modules.csv and
// versions.csv into dir and returns the paths written.
func (s *Store) ExportCSV(ctx context.Context, dir, project string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	notes, err := s.ListNotes(ctx, project, true)
	if err != nil {
		return nil, err
	}
	noteRows := [][]string{{"id", "project", "date", "title", "source_path", "content_hash", "roles", "superseded_by"}}
	for _, n := range notes {
		noteRows = append(noteRows, []string{n.ID, n.Project, formatDate(n.Date), n.Title,
			n.SourcePath, n.ContentHash, strings.Join(n.Roles, ";"), n.SupersededBy})
	}

	exts, err := s.QueryExtractions(ctx, ExtractionQuery{Project: project})
	if err != nil {
		return nil, err
	}
	extRows := [][]string{{"id", "type", "project", "note_id", "payload", "source_path", "line_start", "line_end"}}
	for _, e := range exts {
		extRows = append(extRows, []string{e.ID, string(e.Type), e.Project, e.NoteID,
			encodeJSON(e.Payload), e.Source.Path, strconv.Itoa(e.Source.LineStart), strconv.Itoa(e.Source.LineEnd)})
	}

	modules, err := s.ListModules(ctx, project)
	if err != nil {
		return nil, err
	}
	modRows := [][]string{{"id", "project", "module_type", "topic_key", "title", "version"}}
	verRows := [][]string{{"id", "module_id", "version", "bump", "changes", "created_at"}}
	for _, m := range modules {
		modRows = append(modRows, []string{m.ID, m.Project, string(m.Type), m.TopicKey, m.Title, m.Version.String()})
		versions, err := s.ListVersions(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			verRows = append(verRows, []string{v.ID, v.ModuleID, v.Version.String(), string(v.Bump), v.Changes, formatTime(v.CreatedAt)})
		}
	}

	var paths []string
	for name, rows := range map[string][][]string{
		"notes.csv":       noteRows,
		"extractions.csv": extRows,
		"modules.csv":     modRows,
		"versions.csv":    verRows,
	} {
		path := filepath.Join(dir, name)
		if err := writeCSV(path, rows); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths, nil
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
