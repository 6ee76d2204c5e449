// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest implements the content store front end: it reads note
// files, normalizes and hashes them, and stores each distinct content
// exactly once.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/meeting-modules/internal/store"
	"github.com/pdiddy/meeting-modules/pkg/types"
)

// NoteStore is the persistence the ingester needs.
type NoteStore interface {
	InsertNote(ctx context.Context, n types.Note) (store.InsertResult, error)
}

// Outcome describes what happened to one ingested file.
type Outcome string

const (
	OutcomeCreated    Outcome = "created"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeSuperseded Outcome = "superseded"

	// OutcomeRestored means the file was reverted to content stored
	// earlier; that note is current again.
	OutcomeRestored Outcome = "restored"
)

// Result is the outcome of ingesting one file.
type Result struct {
	Note    types.Note
	Outcome Outcome

	// Superseded lists older notes from the same path replaced by Note.
	Superseded []string
}

// Ingester reads files through registered parsers and stores notes.
type Ingester struct {
	store   NoteStore
	cfg     types.IngestConfig
	parsers map[string]Parser
	log     *zap.Logger
	now     func() time.Time
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithParser registers p for a file extension such as ".pdf".
func WithParser(ext string, p Parser) Option {
	return func(in *Ingester) { in.parsers[strings.ToLower(ext)] = p }
}

// WithLogger sets the diagnostic logger.
func WithLogger(log *zap.Logger) Option {
	return func(in *Ingester) { in.log = log }
}

// New returns an Ingester with the Markdown parser registered for .md,
// .markdown and .txt.
func New(st NoteStore, cfg types.IngestConfig, opts ...Option) *Ingester {
	md := MarkdownParser{}
	in := &Ingester{
		store: st,
		cfg:   cfg,
		parsers: map[string]Parser{
			".md":       md,
			".markdown": md,
			".txt":      md,
		},
		log: zap.NewNop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Supports reports whether a parser is registered for path's extension.
func (in *Ingester) Supports(path string) bool {
	_, ok := in.parsers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Ingest reads, normalizes and stores one file. Content already stored
// under the same hash is returned unchanged with OutcomeDuplicate, or with
// OutcomeRestored when the file was reverted to an earlier version. Every
// failure is an *types.IngestError.
func (in *Ingester) Ingest(ctx context.Context, path string) (Result, error) {
	parser, ok := in.parsers[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return Result{}, &types.IngestError{Path: path, Err: fmt.Errorf("unsupported file type %q", filepath.Ext(path))}
	}

	doc, err := parser.Parse(ctx, path)
	if err != nil {
		return Result{}, &types.IngestError{Path: path, Err: err}
	}
	note, err := in.buildNote(path, doc)
	if err != nil {
		return Result{}, &types.IngestError{Path: path, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, &types.IngestError{Path: path, Err: err}
	}

	res, err := in.store.InsertNote(ctx, note)
	if err != nil {
		return Result{}, &types.IngestError{Path: path, Err: err}
	}

	out := Result{Note: res.Note, Outcome: OutcomeCreated, Superseded: res.Superseded}
	switch {
	case res.Restored:
		out.Outcome = OutcomeRestored
	case res.Duplicate:
		out.Outcome = OutcomeDuplicate
	case len(res.Superseded) > 0:
		out.Outcome = OutcomeSuperseded
	}
	in.log.Debug("ingested", zap.String("path", path), zap.String("note", out.Note.ID), zap.String("outcome", string(out.Outcome)))
	return out, nil
}

func (in *Ingester) buildNote(path string, doc types.ParsedDocument) (types.Note, error) {
	normalized, err := Normalize(doc.Raw)
	if err != nil {
		return types.Note{}, err
	}
	content, err := Normalize([]byte(doc.Content))
	if err != nil {
		return types.Note{}, err
	}
	hash := Hash(normalized)

	n := types.Note{
		ID:          types.NoteID(hash),
		Project:     doc.Project,
		Date:        doc.Date,
		Title:       doc.Title,
		SourcePath:  filepath.ToSlash(filepath.Clean(path)),
		Content:     content,
		ContentHash: hash,
		Roles:       doc.Roles,
		Metadata:    doc.Metadata,
		IngestedAt:  in.now().UTC(),
	}
	if n.Project == "" {
		n.Project = projectFromPath(path)
	}
	if n.Project == "" {
		n.Project = in.cfg.DefaultProject
	}
	if n.Project == "" {
		n.Project = "default"
	}
	if n.Date.IsZero() {
		if d, ok := dateFromFileName(path); ok {
			n.Date = d
		} else if info, err := os.Stat(path); err == nil {
			n.Date = dateOnly(info.ModTime())
		}
	}
	if n.Title == "" {
		n.Title = titleFromContent(content)
	}
	if n.Title == "" {
		n.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return n, nil
}

// Failure records one file that could not be ingested.
type Failure struct {
	Path string
	Err  error
}

// BatchSummary holds counts from a batch ingest run.
type BatchSummary struct {
	Ingested   int
	Superseded int
	Duplicates int
	Failed     int
	Failures   []Failure
}

// Total returns the number of files processed.
func (s BatchSummary) Total() int {
	return s.Ingested + s.Superseded + s.Duplicates + s.Failed
}

// HasFailures reports whether any file failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// IngestBatch ingests every supported file under paths (files or
// directories, walked recursively in lexical order). A failing file is
// reported and counted; it never stops the rest of the batch.
func (in *Ingester) IngestBatch(ctx context.Context, paths []string, w io.Writer) (BatchSummary, error) {
	files, err := in.expand(paths)
	if err != nil {
		return BatchSummary{}, err
	}

	var summary BatchSummary
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res, err := in.ingestOne(ctx, path)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", path, errors.Unwrap(err))
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{Path: path, Err: err})
			continue
		}

		switch res.Outcome {
		case OutcomeDuplicate:
			fmt.Fprintf(w, "skipped %s (duplicate of %s)\n", path, res.Note.ID)
			summary.Duplicates++
		case OutcomeSuperseded, OutcomeRestored:
			fmt.Fprintf(w, "updated %s (%s, supersedes %d)\n", path, res.Note.Project, len(res.Superseded))
			summary.Superseded++
		default:
			fmt.Fprintf(w, "ingested %s (%s)\n", path, res.Note.Project)
			summary.Ingested++
		}
	}

	fmt.Fprintf(w, "\ningested: %d, updated: %d, duplicates: %d, failed: %d\n",
		summary.Ingested, summary.Superseded, summary.Duplicates, summary.Failed)
	return summary, nil
}

func (in *Ingester) ingestOne(ctx context.Context, path string) (Result, error) {
	if in.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.cfg.ItemTimeout)
		defer cancel()
	}
	return in.Ingest(ctx, path)
}

// expand resolves directories into the supported files they contain.
// Explicit file arguments are kept even when unsupported so the batch
// reports them as failures.
func (in *Ingester) expand(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			files = append(files, p)
			continue
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if in.Supports(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", p, err)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}
