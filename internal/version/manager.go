// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package version snapshots module content into an append-only history
// numbered with semantic versions. The bump is derived from the module's
// section outline and every snapshot carries a unified diff from its
// predecessor.
package version

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/meeting-modules/internal/keylock"
	"github.com/pdiddy/meeting-modules/pkg/types"
)

// Store is the persistence the manager needs.
type Store interface {
	GetModule(ctx context.Context, id string) (types.Module, error)
	LatestVersion(ctx context.Context, moduleID string) (types.Version, bool, error)
	AppendVersion(ctx context.Context, m types.Module, v types.Version) error
	ListVersions(ctx context.Context, moduleID string) ([]types.Version, error)
	GetVersion(ctx context.Context, id string) (types.Version, error)
	GetVersionByNumber(ctx context.Context, moduleID string, sv types.SemVer) (types.Version, error)
}

// Manager commits module snapshots. It is safe for concurrent use;
// commits for the same module are serialized.
type Manager struct {
	store Store
	cfg   types.VersioningConfig
	locks keylock.Map
	log   *zap.Logger
	now   func() time.Time
}

// NewManager returns a Manager backed by st.
func NewManager(st Store, cfg types.VersioningConfig, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ContextLines < 0 {
		cfg.ContextLines = 0
	}
	return &Manager{store: st, cfg: cfg, log: log, now: time.Now}
}

// Commit snapshots m.Content. When the normalized content equals the
// latest snapshot nothing is written and the latest version is returned
// with created false. A VersionConflictError from a concurrent writer is
// retried with a fresh read up to MaxConflictRetries times.
func (mg *Manager) Commit(ctx context.Context, m types.Module) (*types.Version, bool, error) {
	unlock := mg.locks.Lock(m.ID)
	defer unlock()

	content := Normalize(m.Content)
	for attempt := 0; ; attempt++ {
		latest, ok, err := mg.store.LatestVersion(ctx, m.ID)
		if err != nil {
			return nil, false, fmt.Errorf("committing module %s: %w", m.ID, err)
		}
		if ok && latest.Content == content {
			return &latest, false, nil
		}

		next, err := mg.next(m, content, latest, ok)
		if err != nil {
			return nil, false, err
		}
		err = mg.store.AppendVersion(ctx, m, next)
		if err == nil {
			mg.log.Info("committed module version",
				zap.String("module", m.ID),
				zap.String("version", next.Version.String()),
				zap.String("bump", string(next.Bump)))
			return &next, true, nil
		}
		if !errors.Is(err, types.ErrVersionConflict) || attempt >= mg.cfg.MaxConflictRetries {
			return nil, false, fmt.Errorf("committing module %s: %w", m.ID, err)
		}
		mg.log.Warn("version conflict, retrying",
			zap.String("module", m.ID), zap.Int("attempt", attempt+1), zap.Error(err))
	}
}

func (mg *Manager) next(m types.Module, content string, latest types.Version, ok bool) (types.Version, error) {
	v := types.Version{
		ModuleID:  m.ID,
		Content:   content,
		CreatedAt: mg.now().UTC(),
	}
	nextOutline := ParseOutline(content)

	fromLabel := "/dev/null"
	if !ok {
		v.Version = types.InitialVersion
		v.Bump = types.BumpInitial
		v.Changes = "Initial version"
	} else {
		prevOutline := ParseOutline(latest.Content)
		v.Bump = Bump(prevOutline, nextOutline)
		v.Version = latest.Version.Bump(v.Bump)
		v.Changes = Summarize(prevOutline, nextOutline)
		fromLabel = ref(m.ID, latest.Version)
	}
	v.ID = types.VersionID(m.ID, v.Version)

	diff, err := Diff(latest.Content, content, fromLabel, ref(m.ID, v.Version), mg.cfg.ContextLines)
	if err != nil {
		return types.Version{}, err
	}
	v.Diff = diff
	return v, nil
}

func ref(moduleID string, sv types.SemVer) string {
	return moduleID + "@" + sv.String()
}

// History returns every version of moduleID, oldest first.
func (mg *Manager) History(ctx context.Context, moduleID string) ([]types.Version, error) {
	if _, err := mg.store.GetModule(ctx, moduleID); err != nil {
		return nil, err
	}
	return mg.store.ListVersions(ctx, moduleID)
}

// Resolve finds the version named by ref: a version ID, a module ID
// (its latest version) or "moduleID@X.Y.Z".
func (mg *Manager) Resolve(ctx context.Context, r string) (types.Version, error) {
	if moduleID, num, ok := strings.Cut(r, "@"); ok {
		sv, err := types.ParseSemVer(num)
		if err != nil {
			return types.Version{}, err
		}
		return mg.store.GetVersionByNumber(ctx, moduleID, sv)
	}

	v, err := mg.store.GetVersion(ctx, r)
	if err == nil || !errors.Is(err, types.ErrNotFound) {
		return v, err
	}
	v, ok, err := mg.store.LatestVersion(ctx, r)
	if err != nil {
		return types.Version{}, err
	}
	if !ok {
		return types.Version{}, &types.NotFoundError{Kind: "version", ID: r}
	}
	return v, nil
}

// DiffRefs returns the unified diff between two resolved refs.
func (mg *Manager) DiffRefs(ctx context.Context, ref1, ref2 string) (string, error) {
	a, err := mg.Resolve(ctx, ref1)
	if err != nil {
		return "", err
	}
	b, err := mg.Resolve(ctx, ref2)
	if err != nil {
		return "", err
	}
	return Diff(a.Content, b.Content, ref(a.ModuleID, a.Version), ref(b.ModuleID, b.Version), mg.cfg.ContextLines)
}

// Changelog renders the history of moduleID as markdown, newest first.
func (mg *Manager) Changelog(ctx context.Context, moduleID string) (string, error) {
	m, err := mg.store.GetModule(ctx, moduleID)
	if err != nil {
		return "", err
	}
	versions, err := mg.store.ListVersions(ctx, moduleID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Changelog - %s\n\n", m.Title)
	fmt.Fprintf(&b, "**Project:** %s\n", m.Project)
	fmt.Fprintf(&b, "**Module ID:** `%s`\n\n", m.ID)
	b.WriteString("## Versions\n")
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		fmt.Fprintf(&b, "\n### Version %s\n\n", v.Version)
		fmt.Fprintf(&b, "**Date:** %s\n", v.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "**Bump:** %s\n\n", v.Bump)
		fmt.Fprintf(&b, "**Changes:** %s\n", v.Changes)
	}
	return b.String(), nil
}

// WriteChangelog writes the changelog of moduleID to path.
func (mg *Manager) WriteChangelog(ctx context.Context, moduleID, path string) error {
	text, err := mg.Changelog(ctx, moduleID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating changelog directory: %w", err)
	}
	return os.WriteFile(path, []byte(text), 0o644)
}
