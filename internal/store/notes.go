// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

const noteColumns = `id, project, date, title, source_path, content, content_hash, roles, metadata, superseded_by, ingested_at`

// InsertResult describes what InsertNote did.
type InsertResult struct {
	// Note is the stored note: the new one, or the existing note with the
	// same content hash.
	Note types.Note

	// Duplicate is true when a note with the same hash already existed and
	// nothing was written.
	Duplicate bool

	// Superseded lists notes at the same source path that the new note replaced.
	Superseded []string

	// Restored is true when the duplicate was a superseded note from the
	// same source path that became current again.
	Restored bool
}

// InsertNote stores n unless a note with the same content hash exists.
// Current notes read from the same source path are marked superseded by n
// in the same transaction. When the existing note was superseded and
// came from the same path (a file reverted to earlier content), it is made
// current again and the notes that replaced it are superseded instead.
func (s *Store) InsertNote(ctx context.Context, n types.Note) (InsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return InsertResult{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanNote(tx.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE content_hash = ?`, n.ContentHash))
	switch {
	case err == nil:
		if existing.SupersededBy == "" || n.SourcePath == "" || existing.SourcePath != n.SourcePath {
			return InsertResult{Note: existing, Duplicate: true}, nil
		}
		return s.restoreNote(ctx, tx, existing)
	case !errors.Is(err, sql.ErrNoRows):
		return InsertResult{}, fmt.Errorf("looking up content hash: %w", err)
	}

	var superseded []string
	if n.SourcePath != "" {
		if superseded, err = currentAtPath(ctx, tx, n.SourcePath); err != nil {
			return InsertResult{}, err
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?)`,
		n.ID, n.Project, formatDate(n.Date), n.Title, n.SourcePath, n.Content, n.ContentHash,
		encodeJSON(n.Roles), encodeJSON(n.Metadata), formatTime(n.IngestedAt),
	)
	if err != nil {
		return InsertResult{}, fmt.Errorf("inserting note: %w", err)
	}

	for _, id := range superseded {
		if _, err := tx.ExecContext(ctx,
			`UPDATE notes SET superseded_by = ? WHERE id = ?`, n.ID, id); err != nil {
			return InsertResult{}, fmt.Errorf("superseding note %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return InsertResult{}, err
	}
	if len(superseded) > 0 {
		s.log.Debug("notes superseded", zap.String("note", n.ID), zap.Strings("superseded", superseded))
	}
	return InsertResult{Note: n, Superseded: superseded}, nil
}

// restoreNote makes the superseded note n current again and supersedes
// the notes currently read from its path.
func (s *Store) restoreNote(ctx context.Context, tx *sql.Tx, n types.Note) (InsertResult, error) {
	superseded, err := currentAtPath(ctx, tx, n.SourcePath)
	if err != nil {
		return InsertResult{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE notes SET superseded_by = '' WHERE id = ?`, n.ID); err != nil {
		return InsertResult{}, fmt.Errorf("restoring note %s: %w", n.ID, err)
	}
	for _, id := range superseded {
		if _, err := tx.ExecContext(ctx,
			`UPDATE notes SET superseded_by = ? WHERE id = ?`, n.ID, id); err != nil {
			return InsertResult{}, fmt.Errorf("superseding note %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return InsertResult{}, err
	}
	s.log.Debug("note restored", zap.String("note", n.ID), zap.Strings("superseded", superseded))
	n.SupersededBy = ""
	return InsertResult{Note: n, Duplicate: true, Restored: true, Superseded: superseded}, nil
}

// currentAtPath returns the IDs of the current notes read from path.
func currentAtPath(ctx context.Context, tx *sql.Tx, path string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM notes WHERE source_path = ? AND superseded_by = '' ORDER BY id`, path)
	if err != nil {
		return nil, fmt.Errorf("looking up source path: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetNote returns the note with id, or a NotFoundError.
func (s *Store) GetNote(ctx context.Context, id string) (types.Note, error) {
	n, err := scanNote(s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Note{}, &types.NotFoundError{Kind: "note", ID: id}
	}
	return n, err
}

// FindNoteByHash returns the note with the given content hash, or a NotFoundError.
func (s *Store) FindNoteByHash(ctx context.Context, hash string) (types.Note, error) {
	n, err := scanNote(s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE content_hash = ?`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Note{}, &types.NotFoundError{Kind: "note", ID: hash}
	}
	return n, err
}

// ListNotes returns the notes of project (all projects when empty),
// ordered by date then ID. Superseded notes are included only when
// includeSuperseded is set.
func (s *Store) ListNotes(ctx context.Context, project string, includeSuperseded bool) ([]types.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE (? = '' OR project = ?)`
	if !includeSuperseded {
		query += ` AND superseded_by = ''`
	}
	query += ` ORDER BY date, id`

	rows, err := s.db.QueryContext(ctx, query, project, project)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()

	var notes []types.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func scanNote(row scanner) (types.Note, error) {
	var (
		n                           types.Note
		date, roles, meta, ingested sql.NullString
		title, sourcePath           sql.NullString
	)
	err := row.Scan(&n.ID, &n.Project, &date, &title, &sourcePath, &n.Content, &n.ContentHash,
		&roles, &meta, &n.SupersededBy, &ingested)
	if err != nil {
		return types.Note{}, err
	}
	n.Date = parseDate(date.String)
	n.Title = title.String
	n.SourcePath = sourcePath.String
	n.Roles = decodeStrings(roles.String)
	if meta.String != "" && meta.String != "null" {
		_ = json.Unmarshal([]byte(meta.String), &n.Metadata)
	}
	n.IngestedAt = parseTime(ingested.String)
	return n, nil
}
