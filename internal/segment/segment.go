// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package segment splits notes into ordered, typed segments.
package segment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

// Store is the persistence the segmenter needs.
type Store interface {
	ListNotes(ctx context.Context, project string, includeSuperseded bool) ([]types.Note, error)
	ReplaceSegments(ctx context.Context, noteID string, segs []types.Segment) (bool, error)
}

// Segmenter turns note content into segments and keeps the stored
// segment sets in step with the current notes.
type Segmenter struct {
	store Store
	cfg   types.SegmentConfig
	md    goldmark.Markdown
	log   *zap.Logger
}

// New returns a Segmenter. A nil logger disables logging.
func New(st Store, cfg types.SegmentConfig, log *zap.Logger) *Segmenter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Segmenter{store: st, cfg: cfg, md: goldmark.New(), log: log}
}

var quoteMarker = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)

// Segment splits one note. The same content always yields the same
// boundaries, types, order and IDs. Line numbers are 1-based and refer to
// the note content.
func (s *Segmenter) Segment(note types.Note) []types.Segment {
	source := []byte(cleanLines(note.Content))
	doc := s.md.Parser().Parse(text.NewReader(source))

	var (
		segs    []types.Segment
		heading string
	)
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		var kind types.SegmentType
		switch n := node.(type) {
		case *ast.Heading:
			heading = headingText(n, source)
			continue
		case *ast.ThematicBreak:
			continue
		case *ast.List:
			kind = types.SegmentList
		case *ast.Blockquote:
			kind = types.SegmentQuote
		default:
			kind = types.SegmentParagraph
		}

		start, stop, ok := blockSpan(node, source)
		if !ok {
			continue
		}
		content := strings.TrimRight(string(source[start:stop]), "\n")
		if kind == types.SegmentQuote {
			content = quoteMarker.ReplaceAllString(content, "")
		}
		content = strings.TrimSpace(content)
		if utf8.RuneCountInString(content) < s.cfg.MinLength || content == "" {
			continue
		}

		order := len(segs)
		segs = append(segs, types.Segment{
			ID:        types.SegmentID(note.ID, order, content),
			NoteID:    note.ID,
			Project:   note.Project,
			Content:   content,
			Type:      kind,
			Order:     order,
			Heading:   heading,
			LineStart: lineOf(source, start),
			LineEnd:   lineOf(source, stop-1),
		})
	}
	return segs
}

// blockSpan returns the byte range covering every source line of node,
// widened to whole lines.
func blockSpan(node ast.Node, source []byte) (start, stop int, ok bool) {
	start, stop = -1, -1
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			if start < 0 || seg.Start < start {
				start = seg.Start
			}
			if seg.Stop > stop {
				stop = seg.Stop
			}
		}
		return ast.WalkContinue, nil
	})
	if start < 0 || stop <= start {
		return 0, 0, false
	}
	if i := bytes.LastIndexByte(source[:start], '\n'); i >= 0 {
		start = i + 1
	} else {
		start = 0
	}
	if i := bytes.IndexByte(source[stop-1:], '\n'); i >= 0 {
		stop = stop - 1 + i + 1
	} else {
		stop = len(source)
	}
	return start, stop, true
}

func headingText(h *ast.Heading, source []byte) string {
	var b strings.Builder
	lines := h.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	return strings.TrimSpace(b.String())
}

func lineOf(source []byte, offset int) int {
	return bytes.Count(source[:offset], []byte("\n")) + 1
}

// Failure records one note that could not be segmented.
type Failure struct {
	NoteID string
	Err    error
}

// Summary holds counts from a segmentation run.
type Summary struct {
	Segmented int
	Unchanged int
	Failed    int
	Segments  int
	Failures  []Failure
}

// Total returns the number of notes processed.
func (s Summary) Total() int {
	return s.Segmented + s.Unchanged + s.Failed
}

// HasFailures reports whether any note failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// Run segments every current note of project (all projects when empty).
// Each note's segment set is replaced in one transaction; a note whose
// stored set is already identical is left untouched and reported as
// unchanged.
func (s *Segmenter) Run(ctx context.Context, project string, w io.Writer) (Summary, error) {
	notes, err := s.store.ListNotes(ctx, project, false)
	if err != nil {
		return Summary{}, fmt.Errorf("listing notes: %w", err)
	}

	var summary Summary
	for _, note := range notes {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		segs := s.Segment(note)
		changed, err := s.store.ReplaceSegments(ctx, note.ID, segs)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", note.SourcePath, err)
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{NoteID: note.ID, Err: err})
			continue
		}
		summary.Segments += len(segs)
		if !changed {
			fmt.Fprintf(w, "skipped %s (unchanged)\n", note.SourcePath)
			summary.Unchanged++
			continue
		}
		fmt.Fprintf(w, "segmented %s (%d segments)\n", note.SourcePath, len(segs))
		s.log.Debug("segmented", zap.String("note", note.ID), zap.Int("segments", len(segs)))
		summary.Segmented++
	}

	fmt.Fprintf(w, "\nsegmented: %d, unchanged: %d, failed: %d, segments: %d\n",
		summary.Segmented, summary.Unchanged, summary.Failed, summary.Segments)
	return summary, nil
}
