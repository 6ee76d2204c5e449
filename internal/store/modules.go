// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

var moduleFields = []string{
	"id", "project", "module_type", "topic_key", "title", "description", "content",
	"theme_ids", "step_ids", "definition_ids", "faq_ids", "decision_ids", "action_ids", "topic_ids",
	"major", "minor", "patch", "updated_at",
}

const versionColumns = `id, module_id, major, minor, patch, content, changes, bump, diff, created_at`

// SaveModule upserts the module row on (project, module_type, topic_key).
// The version columns are owned by AppendVersion and are never changed here.
func (s *Store) SaveModule(ctx context.Context, m types.Module) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	if err := saveModule(ctx, tx, m); err != nil {
		return err
	}
	return tx.Commit()
}

func saveModule(ctx context.Context, tx *sql.Tx, m types.Module) error {
	updated := m.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO modules (id, project, module_type, topic_key, title, description, content,
			theme_ids, step_ids, definition_ids, faq_ids, decision_ids, action_ids, topic_ids, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, description=excluded.description, content=excluded.content,
			theme_ids=excluded.theme_ids, step_ids=excluded.step_ids,
			definition_ids=excluded.definition_ids, faq_ids=excluded.faq_ids,
			decision_ids=excluded.decision_ids, action_ids=excluded.action_ids,
			topic_ids=excluded.topic_ids, updated_at=excluded.updated_at`,
		m.ID, m.Project, string(m.Type), m.TopicKey, m.Title, m.Description, m.Content,
		encodeJSON(m.ThemeIDs), encodeJSON(m.StepIDs), encodeJSON(m.DefinitionIDs),
		encodeJSON(m.FAQIDs), encodeJSON(m.DecisionIDs), encodeJSON(m.ActionIDs),
		encodeJSON(m.TopicIDs), formatTime(updated))
	if err != nil {
		return fmt.Errorf("upserting module %s: %w", m.ID, err)
	}
	return nil
}

// AppendVersion saves m and appends v to its history in one transaction.
// The latest stored version is re-read inside the transaction; unless
// v.Version is strictly greater, nothing is written and a
// VersionConflictError is returned. On success the module row carries
// v.Version and v.Content.
func (s *Store) AppendVersion(ctx context.Context, m types.Module, v types.Version) error {
	if v.ModuleID != m.ID {
		return fmt.Errorf("version %s belongs to module %s, not %s", v.ID, v.ModuleID, m.ID)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var latest types.SemVer
	err = tx.QueryRowContext(ctx,
		`SELECT major, minor, patch FROM versions WHERE module_id = ?
		 ORDER BY major DESC, minor DESC, patch DESC LIMIT 1`, m.ID,
	).Scan(&latest.Major, &latest.Minor, &latest.Patch)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reading latest version: %w", err)
	}
	if !latest.Less(v.Version) {
		return &types.VersionConflictError{ModuleID: m.ID, Latest: latest, Proposed: v.Version}
	}

	m.Content = v.Content
	if err := saveModule(ctx, tx, m); err != nil {
		return err
	}

	created := v.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO versions (`+versionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.ModuleID, v.Version.Major, v.Version.Minor, v.Version.Patch,
		v.Content, v.Changes, string(v.Bump), v.Diff, formatTime(created)); err != nil {
		return fmt.Errorf("inserting version %s: %w", v.Version, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE modules SET major = ?, minor = ?, patch = ? WHERE id = ?`,
		v.Version.Major, v.Version.Minor, v.Version.Patch, m.ID); err != nil {
		return fmt.Errorf("updating module version: %w", err)
	}

	return tx.Commit()
}

// GetModule returns the module with id, or a NotFoundError.
func (s *Store) GetModule(ctx context.Context, id string) (types.Module, error) {
	return s.getModule(ctx, map[string]interface{}{"id": id}, id)
}

// FindModule returns the module for (project, type, topicKey), or a NotFoundError.
func (s *Store) FindModule(ctx context.Context, project string, t types.ModuleType, topicKey string) (types.Module, error) {
	return s.GetModule(ctx, types.ModuleID(project, t, topicKey))
}

func (s *Store) getModule(ctx context.Context, where map[string]interface{}, key string) (types.Module, error) {
	query, args, err := builder.BuildSelect("modules", where, moduleFields)
	if err != nil {
		return types.Module{}, err
	}
	m, err := scanModule(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Module{}, &types.NotFoundError{Kind: "module", ID: key}
	}
	return m, err
}

// ListModules returns the modules of project (all when empty) ordered by
// type and topic key.
func (s *Store) ListModules(ctx context.Context, project string) ([]types.Module, error) {
	where := map[string]interface{}{"_orderby": "project, module_type, topic_key"}
	if project != "" {
		where["project"] = project
	}
	query, args, err := builder.BuildSelect("modules", where, moduleFields)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing modules: %w", err)
	}
	defer rows.Close()

	var out []types.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LatestVersion returns the newest version of moduleID. ok is false when
// the module has never been committed.
func (s *Store) LatestVersion(ctx context.Context, moduleID string) (v types.Version, ok bool, err error) {
	v, err = scanVersion(s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE module_id = ?
		 ORDER BY major DESC, minor DESC, patch DESC LIMIT 1`, moduleID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Version{}, false, nil
	}
	if err != nil {
		return types.Version{}, false, fmt.Errorf("reading latest version: %w", err)
	}
	return v, true, nil
}

// ListVersions returns the history of moduleID, oldest first.
func (s *Store) ListVersions(ctx context.Context, moduleID string) ([]types.Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE module_id = ?
		 ORDER BY major, minor, patch`, moduleID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	var out []types.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetVersion returns the version with id, or a NotFoundError.
func (s *Store) GetVersion(ctx context.Context, id string) (types.Version, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Version{}, &types.NotFoundError{Kind: "version", ID: id}
	}
	return v, err
}

// GetVersionByNumber returns version number sv of moduleID, or a NotFoundError.
func (s *Store) GetVersionByNumber(ctx context.Context, moduleID string, sv types.SemVer) (types.Version, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM versions
		 WHERE module_id = ? AND major = ? AND minor = ? AND patch = ?`,
		moduleID, sv.Major, sv.Minor, sv.Patch))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Version{}, &types.NotFoundError{Kind: "version", ID: moduleID + "@" + sv.String()}
	}
	return v, err
}

func scanModule(row scanner) (types.Module, error) {
	var (
		m                                        types.Module
		moduleType                               string
		title, desc, content, updated            sql.NullString
		themes, steps, defs, faqs, decs, actions sql.NullString
		topics                                   sql.NullString
	)
	if err := row.Scan(&m.ID, &m.Project, &moduleType, &m.TopicKey, &title, &desc, &content,
		&themes, &steps, &defs, &faqs, &decs, &actions, &topics,
		&m.Version.Major, &m.Version.Minor, &m.Version.Patch, &updated); err != nil {
		return types.Module{}, err
	}
	m.Type = types.ModuleType(moduleType)
	m.Title = title.String
	m.Description = desc.String
	m.Content = content.String
	m.ThemeIDs = decodeStrings(themes.String)
	m.StepIDs = decodeStrings(steps.String)
	m.DefinitionIDs = decodeStrings(defs.String)
	m.FAQIDs = decodeStrings(faqs.String)
	m.DecisionIDs = decodeStrings(decs.String)
	m.ActionIDs = decodeStrings(actions.String)
	m.TopicIDs = decodeStrings(topics.String)
	m.UpdatedAt = parseTime(updated.String)
	return m, nil
}

func scanVersion(row scanner) (types.Version, error) {
	var (
		v                      types.Version
		bump                   string
		changes, diff, created sql.NullString
	)
	if err := row.Scan(&v.ID, &v.ModuleID, &v.Version.Major, &v.Version.Minor, &v.Version.Patch,
		&v.Content, &changes, &bump, &diff, &created); err != nil {
		return types.Version{}, err
	}
	v.Bump = types.BumpKind(bump)
	v.Changes = changes.String
	v.Diff = diff.String
	v.CreatedAt = parseTime(created.String)
	return v, nil
}
