// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

// ReplaceRoleMappings swaps the role mappings of project for mappings in
// one transaction. A topic mapped to the same role twice keeps the higher
// confidence.
func (s *Store) ReplaceRoleMappings(ctx context.Context, project string, mappings []types.RoleMapping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM topic_role_map WHERE project = ?`, project); err != nil {
		return fmt.Errorf("deleting role mappings: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO topic_role_map (project, topic_id, topic_kind, role, confidence)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(topic_id, role) DO UPDATE SET confidence = max(confidence, excluded.confidence)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range mappings {
		if m.Project != project {
			return fmt.Errorf("role mapping of %s belongs to project %s, not %s", m.TopicID, m.Project, project)
		}
		if _, err := stmt.ExecContext(ctx, project, m.TopicID, string(m.TopicKind), m.Role, m.Confidence); err != nil {
			return fmt.Errorf("inserting role mapping %s/%s: %w", m.TopicID, m.Role, err)
		}
	}
	return tx.Commit()
}

// RoleMappings returns the role mappings of project ordered by role, then
// by descending confidence.
func (s *Store) RoleMappings(ctx context.Context, project string) ([]types.RoleMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project, topic_id, topic_kind, role, confidence FROM topic_role_map
		 WHERE project = ? ORDER BY role, confidence DESC, topic_id`, project)
	if err != nil {
		return nil, fmt.Errorf("listing role mappings: %w", err)
	}
	defer rows.Close()

	var out []types.RoleMapping
	for rows.Next() {
		var (
			m    types.RoleMapping
			kind string
		)
		if err := rows.Scan(&m.Project, &m.TopicID, &kind, &m.Role, &m.Confidence); err != nil {
			return nil, err
		}
		m.TopicKind = types.TopicKind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

// RoleNoteIDs returns the notes behind the themes and segments mapped to
// role in project. Roles compare case-insensitively.
func (s *Store) RoleNoteIDs(ctx context.Context, project, role string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT note_id FROM theme_members WHERE theme_id IN (
			SELECT topic_id FROM topic_role_map
			WHERE project = ? AND topic_kind = 'theme' AND lower(role) = lower(?))
		 UNION
		 SELECT note_id FROM segments WHERE id IN (
			SELECT topic_id FROM topic_role_map
			WHERE project = ? AND topic_kind = 'segment' AND lower(role) = lower(?))
		 ORDER BY 1`,
		project, role, project, role)
	if err != nil {
		return nil, fmt.Errorf("listing notes of role %s: %w", role, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}
