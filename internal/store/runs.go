// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

// RecordRun appends r to the audit log, assigning an ID when empty.
func (s *Store) RecordRun(ctx context.Context, r types.Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, started_at, finished_at, succeeded, skipped, failed, failures)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Command, formatTime(r.StartedAt), formatTime(r.FinishedAt),
		r.Succeeded, r.Skipped, r.Failed, encodeJSON(r.Failures))
	if err != nil {
		return "", fmt.Errorf("recording run: %w", err)
	}
	return r.ID, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]types.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, command, started_at, finished_at, succeeded, skipped, failed, failures
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []types.Run
	for rows.Next() {
		var (
			r                 types.Run
			started, finished sql.NullString
			failures          sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Command, &started, &finished,
			&r.Succeeded, &r.Skipped, &r.Failed, &failures); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started.String)
		r.FinishedAt = parseTime(finished.String)
		r.Failures = decodeStrings(failures.String)
		out = append(out, r)
	}
	return out, rows.Err()
}
