// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/didi/gendry/builder"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

var segmentFields = []string{"id", "note_id", "project", "content", "segment_type", "ord", "heading", "line_start", "line_end"}

const segmentColumns = `s.id, s.note_id, s.project, s.content, s.segment_type, s.ord, s.heading, s.line_start, s.line_end`

// ReplaceSegments atomically swaps the segment set of noteID for segs.
// It reports false and writes nothing when the stored set already has the
// same IDs in the same order.
func (s *Store) ReplaceSegments(ctx context.Context, noteID string, segs []types.Segment) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM segments WHERE note_id = ? ORDER BY ord`, noteID)
	if err != nil {
		return false, fmt.Errorf("reading segments: %w", err)
	}
	var existing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return false, err
		}
		existing = append(existing, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}

	ids := make([]string, len(segs))
	for i, seg := range segs {
		ids[i] = seg.ID
	}
	if slices.Equal(existing, ids) {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE note_id = ?`, noteID); err != nil {
		return false, fmt.Errorf("deleting segments: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO segments (id, note_id, project, content, segment_type, ord, heading, line_start, line_end)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return false, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, seg := range segs {
		if seg.NoteID != noteID {
			return false, fmt.Errorf("segment %s belongs to note %s, not %s", seg.ID, seg.NoteID, noteID)
		}
		if _, err := stmt.ExecContext(ctx, seg.ID, seg.NoteID, seg.Project, seg.Content,
			string(seg.Type), seg.Order, seg.Heading, seg.LineStart, seg.LineEnd); err != nil {
			return false, fmt.Errorf("inserting segment %s: %w", seg.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// SegmentsForNote returns the segments of noteID in order.
func (s *Store) SegmentsForNote(ctx context.Context, noteID string) ([]types.Segment, error) {
	return s.querySegments(ctx,
		`SELECT `+segmentColumns+` FROM segments s WHERE s.note_id = ? ORDER BY s.ord`, noteID)
}

// SegmentsForProject returns the segments of every current note in project,
// ordered by note date, note ID and position.
func (s *Store) SegmentsForProject(ctx context.Context, project string) ([]types.Segment, error) {
	return s.querySegments(ctx,
		`SELECT `+segmentColumns+` FROM segments s JOIN notes n ON n.id = s.note_id
		 WHERE s.project = ? AND n.superseded_by = ''
		 ORDER BY n.date, n.id, s.ord`, project)
}

// ResolveSegments looks up segment references. Unknown IDs are returned in
// missing rather than as an error: extractions hold weak references that
// may outlive a re-segmentation.
func (s *Store) ResolveSegments(ctx context.Context, ids []string) (found []types.Segment, missing []string, err error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	where := map[string]interface{}{
		"id in":    ids,
		"_orderby": "note_id, ord",
	}
	query, args, err := builder.BuildSelect("segments", where, segmentFields)
	if err != nil {
		return nil, nil, fmt.Errorf("building segment query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving segments: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool, len(ids))
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, nil, err
		}
		seen[seg.ID] = true
		found = append(found, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	for _, id := range ids {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	return found, missing, nil
}

func (s *Store) querySegments(ctx context.Context, query string, args ...any) ([]types.Segment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying segments: %w", err)
	}
	defer rows.Close()

	var segs []types.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

func scanSegment(row scanner) (types.Segment, error) {
	var (
		seg     types.Segment
		segType string
		heading *string
	)
	if err := row.Scan(&seg.ID, &seg.NoteID, &seg.Project, &seg.Content, &segType,
		&seg.Order, &heading, &seg.LineStart, &seg.LineEnd); err != nil {
		return types.Segment{}, err
	}
	seg.Type = types.SegmentType(segType)
	if heading != nil {
		seg.Heading = *heading
	}
	return seg, nil
}
