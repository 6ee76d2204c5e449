// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

var extractionFields = []string{
	"id", "natural_key", "type", "project", "note_id", "payload",
	"segment_ids", "source_path", "line_start", "line_end", "created_at",
}

// ExtractionQuery filters QueryExtractions. Zero fields match everything.
type ExtractionQuery struct {
	Project string
	Types   []types.ExtractionType
	NoteIDs []string
	Limit   uint
}

// RecordExtraction validates e and upserts it on its natural key
// (type, note, normalized payload hash). Recording the same natural key
// twice yields one row: the second call refreshes segment references and
// source location and reports inserted=false.
func (s *Store) RecordExtraction(ctx context.Context, e types.Extraction) (id string, inserted bool, err error) {
	if err := e.Validate(); err != nil {
		return "", false, err
	}
	key := types.NaturalKeyFor(e.Type, e.NoteID, e.Payload)
	id = types.ExtractionID(key)

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return "", false, fmt.Errorf("encoding payload: %w", err)
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO extractions (id, natural_key, type, project, note_id, payload, payload_hash,
			segment_ids, source_path, line_start, line_end, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(natural_key) DO NOTHING`,
		id, key, string(e.Type), e.Project, e.NoteID, string(payload), types.PayloadHash(e.Payload),
		encodeJSON(e.SegmentIDs), e.Source.Path, e.Source.LineStart, e.Source.LineEnd, formatTime(created))
	if err != nil {
		return "", false, fmt.Errorf("inserting extraction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, err
	}
	inserted = n == 1

	if !inserted {
		if _, err := tx.ExecContext(ctx,
			`UPDATE extractions SET segment_ids = ?, source_path = ?, line_start = ?, line_end = ?
			 WHERE natural_key = ?`,
			encodeJSON(e.SegmentIDs), e.Source.Path, e.Source.LineStart, e.Source.LineEnd, key); err != nil {
			return "", false, fmt.Errorf("refreshing extraction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return id, inserted, nil
}

// QueryExtractions returns matching extractions ordered by source location.
func (s *Store) QueryExtractions(ctx context.Context, q ExtractionQuery) ([]types.Extraction, error) {
	where := map[string]interface{}{
		"_orderby": "source_path, line_start, id",
	}
	if q.Project != "" {
		where["project"] = q.Project
	}
	if len(q.Types) > 0 {
		names := make([]string, len(q.Types))
		for i, t := range q.Types {
			names[i] = string(t)
		}
		where["type in"] = names
	}
	if len(q.NoteIDs) > 0 {
		where["note_id in"] = q.NoteIDs
	}
	if q.Limit > 0 {
		where["_limit"] = []uint{0, q.Limit}
	}

	query, args, err := builder.BuildSelect("extractions", where, extractionFields)
	if err != nil {
		return nil, fmt.Errorf("building extraction query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying extractions: %w", err)
	}
	defer rows.Close()

	var out []types.Extraction
	for rows.Next() {
		e, err := scanExtraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetExtraction returns one extraction by ID, or a NotFoundError.
func (s *Store) GetExtraction(ctx context.Context, id string) (types.Extraction, error) {
	query, args, err := builder.BuildSelect("extractions", map[string]interface{}{"id": id}, extractionFields)
	if err != nil {
		return types.Extraction{}, err
	}
	e, err := scanExtraction(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Extraction{}, &types.NotFoundError{Kind: "extraction", ID: id}
	}
	return e, err
}

func scanExtraction(row scanner) (types.Extraction, error) {
	var (
		e                          types.Extraction
		typ, payload               string
		segIDs, srcPath, createdAt sql.NullString
	)
	if err := row.Scan(&e.ID, &e.NaturalKey, &typ, &e.Project, &e.NoteID, &payload,
		&segIDs, &srcPath, &e.Source.LineStart, &e.Source.LineEnd, &createdAt); err != nil {
		return types.Extraction{}, err
	}
	e.Type = types.ExtractionType(typ)
	p, err := types.DecodePayload(e.Type, []byte(payload))
	if err != nil {
		return types.Extraction{}, fmt.Errorf("extraction %s: %w", e.ID, err)
	}
	e.Payload = p
	e.SegmentIDs = decodeStrings(segIDs.String)
	e.Source.Path = srcPath.String
	e.CreatedAt = parseTime(createdAt.String)
	return e, nil
}
