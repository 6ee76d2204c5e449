// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

// Parser turns one input file into text plus metadata. Format support
// beyond Markdown and plain text is provided by additional parsers.
type Parser interface {
	Parse(ctx context.Context, path string) (types.ParsedDocument, error)
}

// MarkdownParser reads .md and .txt files with optional YAML front matter.
type MarkdownParser struct{}

// Parse reads path and splits off its front matter.
func (MarkdownParser) Parse(ctx context.Context, path string) (types.ParsedDocument, error) {
	if err := ctx.Err(); err != nil {
		return types.ParsedDocument{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.ParsedDocument{}, err
	}
	return ParseText(path, raw)
}

// ParseText builds a ParsedDocument from file bytes. Raw keeps the whole
// file so the front matter participates in the content hash.
func ParseText(path string, raw []byte) (types.ParsedDocument, error) {
	doc := types.ParsedDocument{SourcePath: path, Raw: raw}

	front, body, ok := splitFrontMatter(raw)
	doc.Content = string(body)
	if !ok {
		return doc, nil
	}

	var fm map[string]any
	if err := yaml.Unmarshal(front, &fm); err != nil {
		return types.ParsedDocument{}, fmt.Errorf("parsing front matter: %w", err)
	}
	applyFrontMatter(&doc, fm)
	return doc, nil
}

// splitFrontMatter separates a leading "---" delimited YAML block.
func splitFrontMatter(raw []byte) (front, body []byte, ok bool) {
	text := bytes.TrimPrefix(raw, []byte("\ufeff"))
	text = bytes.ReplaceAll(text, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(text, []byte("---\n")) {
		return nil, text, false
	}
	rest := text[len("---\n"):]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, text, false
	}
	front = rest[:end+1]
	body = rest[end+len("\n---"):]
	// Drop the remainder of the closing delimiter line.
	if nl := bytes.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = nil
	}
	return front, body, true
}

func applyFrontMatter(doc *types.ParsedDocument, fm map[string]any) {
	doc.Metadata = make(map[string]string)
	for key, val := range fm {
		switch strings.ToLower(key) {
		case "project":
			doc.Project = scalarString(val)
		case "title", "meeting":
			if doc.Title == "" || strings.EqualFold(key, "title") {
				doc.Title = scalarString(val)
			}
		case "date":
			if t, ok := parseDateValue(val); ok {
				doc.Date = t
			}
		case "roles", "role":
			doc.Roles = listValue(val)
		default:
			if list, isList := val.([]any); isList {
				doc.Metadata[strings.ToLower(key)] = strings.Join(listValue(list), ", ")
			} else {
				doc.Metadata[strings.ToLower(key)] = scalarString(val)
			}
		}
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case time.Time:
		return t.Format(types.DateLayout)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func listValue(v any) []string {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := scalarString(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, part := range strings.Split(t, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

var dateLayouts = []string{types.DateLayout, "2006/01/02", "01/02/2006", "January 2, 2006", "Jan 2, 2006", time.RFC3339}

func parseDateValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return dateOnly(t), true
	case string:
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
				return dateOnly(d), true
			}
		}
	}
	return time.Time{}, false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var fileDatePattern = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)

// dateFromFileName finds a YYYY-MM-DD date in the file name.
func dateFromFileName(path string) (time.Time, bool) {
	m := fileDatePattern.FindString(filepath.Base(path))
	if m == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(types.DateLayout, m)
	return t, err == nil
}

// genericDirs are parent directory names that do not name a project.
var genericDirs = map[string]bool{
	"notes": true, "data": true, "seed": true, "input": true, "inputs": true, ".": true, "": true,
}

// projectFromPath infers a project from the parent directory name.
func projectFromPath(path string) string {
	dir := filepath.Base(filepath.Dir(path))
	if genericDirs[strings.ToLower(dir)] {
		return ""
	}
	return dir
}

var headingPattern = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// titleFromContent returns the first level-1 heading, if any.
func titleFromContent(content string) string {
	if m := headingPattern.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
