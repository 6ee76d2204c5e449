// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract finds typed knowledge items (steps, definitions, FAQs,
// decisions, actions, topics) in segmented notes and records them in the
// extraction store.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

// Candidate is an item proposed by an Extractor, not yet validated or
// stored.
type Candidate struct {
	Payload    types.Payload
	SegmentIDs []string
	LineStart  int
	LineEnd    int
}

// Extractor finds candidates in the segments of one note. Implementations
// need not be deterministic: recording the same natural key twice yields
// one stored extraction.
type Extractor interface {
	Extract(ctx context.Context, note types.Note, segs []types.Segment) ([]Candidate, error)
}

// Store is the persistence the runner needs.
type Store interface {
	ListNotes(ctx context.Context, project string, includeSuperseded bool) ([]types.Note, error)
	SegmentsForNote(ctx context.Context, noteID string) ([]types.Segment, error)
	RecordExtraction(ctx context.Context, e types.Extraction) (string, bool, error)
}

// Failure records one note whose extraction failed.
type Failure struct {
	NoteID string
	Path   string
	Err    error
}

// Rejection records one candidate refused by validation.
type Rejection struct {
	NoteID string
	Type   types.ExtractionType
	Err    error
}

// BatchSummary holds counts from an extraction run.
type BatchSummary struct {
	Notes      int
	Failed     int
	Recorded   int
	Duplicates int
	Rejected   int
	Failures   []Failure
	Rejections []Rejection
}

// Total returns the number of notes processed.
func (s BatchSummary) Total() int {
	return s.Notes + s.Failed
}

// HasFailures reports whether any note failed. Rejected candidates are
// not failures.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// Runner drives an Extractor over the current notes of a project.
type Runner struct {
	store     Store
	extractor Extractor
	cfg       types.ExtractionConfig
	log       *zap.Logger
	now       func() time.Time
}

// NewRunner returns a Runner. A nil logger disables logging.
func NewRunner(st Store, ext Extractor, cfg types.ExtractionConfig, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{store: st, extractor: ext, cfg: cfg, log: log, now: time.Now}
}

// Run extracts from every current note of project (all projects when
// empty). A failing note is reported and counted; the rest continue.
func (r *Runner) Run(ctx context.Context, project string, w io.Writer) (BatchSummary, error) {
	notes, err := r.store.ListNotes(ctx, project, false)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("listing notes: %w", err)
	}

	var summary BatchSummary
	for _, note := range notes {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		counts, err := r.extractNote(ctx, note, &summary)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", note.SourcePath, err)
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{NoteID: note.ID, Path: note.SourcePath, Err: err})
			continue
		}
		summary.Notes++
		fmt.Fprintf(w, "extracted %s (%d new, %d duplicate, %d rejected)\n",
			note.SourcePath, counts.recorded, counts.duplicates, counts.rejected)
	}

	fmt.Fprintf(w, "\nnotes: %d, failed: %d, recorded: %d, duplicates: %d, rejected: %d\n",
		summary.Notes, summary.Failed, summary.Recorded, summary.Duplicates, summary.Rejected)
	return summary, nil
}

type noteCounts struct {
	recorded, duplicates, rejected int
}

func (r *Runner) extractNote(ctx context.Context, note types.Note, summary *BatchSummary) (noteCounts, error) {
	if r.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ItemTimeout)
		defer cancel()
	}

	segs, err := r.store.SegmentsForNote(ctx, note.ID)
	if err != nil {
		return noteCounts{}, fmt.Errorf("loading segments: %w", err)
	}
	if len(segs) == 0 {
		return noteCounts{}, nil
	}

	maxRetries := r.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	candidates, err := callWithRetry(ctx, r.extractor, note, segs, maxRetries)
	if err != nil {
		return noteCounts{}, err
	}

	var counts noteCounts
	for _, c := range candidates {
		e := types.Extraction{
			Project:    note.Project,
			NoteID:     note.ID,
			SegmentIDs: c.SegmentIDs,
			Payload:    c.Payload,
			Source:     types.SourceRef{Path: note.SourcePath, LineStart: c.LineStart, LineEnd: c.LineEnd},
			CreatedAt:  r.now().UTC(),
		}
		if c.Payload != nil {
			e.Type = c.Payload.Kind()
		}

		_, inserted, err := r.store.RecordExtraction(ctx, e)
		switch {
		case errors.Is(err, types.ErrValidation):
			counts.rejected++
			summary.Rejected++
			summary.Rejections = append(summary.Rejections, Rejection{NoteID: note.ID, Type: e.Type, Err: err})
			r.log.Debug("candidate rejected", zap.String("note", note.ID), zap.Error(err))
		case err != nil:
			return counts, fmt.Errorf("recording %s: %w", e.Type, err)
		case inserted:
			counts.recorded++
			summary.Recorded++
		default:
			counts.duplicates++
			summary.Duplicates++
		}
	}
	return counts, nil
}

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

// callWithRetry calls the extractor with exponential backoff.
func callWithRetry(ctx context.Context, ext Extractor, note types.Note, segs []types.Segment, maxRetries int) ([]Candidate, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		candidates, err := ext.Extract(ctx, note, segs)
		if err == nil {
			return candidates, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}
