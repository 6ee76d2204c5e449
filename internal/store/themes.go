// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

// ReplaceThemes swaps the theme set of project for themes in one
// transaction. Themes of other projects are untouched.
func (s *Store) ReplaceThemes(ctx context.Context, project string, themes []types.Theme) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM theme_members WHERE theme_id IN (SELECT id FROM themes WHERE project = ?)`, project); err != nil {
		return fmt.Errorf("deleting theme members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM themes WHERE project = ?`, project); err != nil {
		return fmt.Errorf("deleting themes: %w", err)
	}

	// Member note IDs are looked up inside the transaction.
	noteOf := make(map[string]string)
	rows, err := tx.QueryContext(ctx, `SELECT id, note_id FROM segments WHERE project = ?`, project)
	if err != nil {
		return fmt.Errorf("reading segments: %w", err)
	}
	for rows.Next() {
		var id, noteID string
		if err := rows.Scan(&id, &noteID); err != nil {
			rows.Close()
			return err
		}
		noteOf[id] = noteID
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for i, th := range themes {
		if th.Project != project {
			return fmt.Errorf("theme %s belongs to project %s, not %s", th.ID, th.Project, project)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO themes (id, project, name, keywords, support_count, representative_note_id, ord)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			th.ID, th.Project, th.Name, encodeJSON(th.Keywords), th.SupportCount, th.RepresentativeNoteID, i)
		if err != nil {
			return fmt.Errorf("inserting theme %s: %w", th.Name, err)
		}
		for _, segID := range th.SegmentIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO theme_members (theme_id, segment_id, note_id) VALUES (?, ?, ?)`,
				th.ID, segID, noteOf[segID]); err != nil {
				return fmt.Errorf("inserting theme member %s: %w", segID, err)
			}
		}
	}

	return tx.Commit()
}

// ListThemes returns the themes of project in analysis order, with members.
func (s *Store) ListThemes(ctx context.Context, project string) ([]types.Theme, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project, name, keywords, support_count, representative_note_id
		 FROM themes WHERE project = ? ORDER BY ord`, project)
	if err != nil {
		return nil, fmt.Errorf("listing themes: %w", err)
	}
	var themes []types.Theme
	for rows.Next() {
		th, err := scanTheme(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		themes = append(themes, th)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range themes {
		members, err := s.themeMembers(ctx, themes[i].ID)
		if err != nil {
			return nil, err
		}
		themes[i].SegmentIDs = members
	}
	return themes, nil
}

// FindTheme returns the theme of project whose ID or name matches key
// (names compare case-insensitively).
func (s *Store) FindTheme(ctx context.Context, project, key string) (types.Theme, error) {
	th, err := scanTheme(s.db.QueryRowContext(ctx,
		`SELECT id, project, name, keywords, support_count, representative_note_id
		 FROM themes WHERE project = ? AND (id = ? OR lower(name) = ?) ORDER BY ord LIMIT 1`,
		project, key, strings.ToLower(key)))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Theme{}, &types.NotFoundError{Kind: "theme", ID: key}
	}
	if err != nil {
		return types.Theme{}, err
	}
	th.SegmentIDs, err = s.themeMembers(ctx, th.ID)
	return th, err
}

// ThemeNoteIDs returns the distinct notes that own a member of themeID.
func (s *Store) ThemeNoteIDs(ctx context.Context, themeID string) ([]string, error) {
	return s.queryStrings(ctx,
		`SELECT DISTINCT note_id FROM theme_members WHERE theme_id = ? ORDER BY note_id`, themeID)
}

func (s *Store) themeMembers(ctx context.Context, themeID string) ([]string, error) {
	return s.queryStrings(ctx,
		`SELECT segment_id FROM theme_members WHERE theme_id = ? ORDER BY segment_id`, themeID)
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanTheme(row scanner) (types.Theme, error) {
	var (
		th       types.Theme
		keywords sql.NullString
		repNote  sql.NullString
	)
	if err := row.Scan(&th.ID, &th.Project, &th.Name, &keywords, &th.SupportCount, &repNote); err != nil {
		return types.Theme{}, err
	}
	th.Keywords = decodeStrings(keywords.String)
	th.RepresentativeNoteID = repNote.String
	return th, nil
}
