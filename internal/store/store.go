// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists notes, segments, themes, role mappings,
// extractions, modules and their version history in a single SQLite
// database. Every multi-row write runs in one transaction; dedup keys are
// enforced with unique constraints.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "meeting-modules.db"
)

// Store is the persistent store. It is safe for concurrent use.
type Store struct {
	db      *sql.DB
	dataDir string
	log     *zap.Logger
}

// Open opens or creates the database at cfg.DataDir/index/meeting-modules.db
// and creates the schema if it does not exist. A nil logger disables
// diagnostic logging.
func Open(cfg types.StoreConfig, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dbDir := filepath.Join(cfg.DataDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Single connection: transactions are serialized. Never query s.db
	// while holding a tx.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dataDir: cfg.DataDir, log: log}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	log.Debug("store opened", zap.String("path", dbPath))
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DataDir returns the working directory the store was opened in.
func (s *Store) DataDir() string {
	return s.dataDir
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			project TEXT NOT NULL,
			date TEXT,
			title TEXT,
			source_path TEXT,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL UNIQUE,
			roles TEXT,
			metadata TEXT,
			superseded_by TEXT NOT NULL DEFAULT '',
			ingested_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_project ON notes(project)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_source_path ON notes(source_path)`,
		`CREATE TABLE IF NOT EXISTS segments (
			id TEXT PRIMARY KEY,
			note_id TEXT NOT NULL REFERENCES notes(id),
			project TEXT NOT NULL,
			content TEXT NOT NULL,
			segment_type TEXT NOT NULL,
			ord INTEGER NOT NULL,
			heading TEXT,
			line_start INTEGER,
			line_end INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_segments_note_id ON segments(note_id)`,
		`CREATE INDEX IF NOT EXISTS idx_segments_project ON segments(project)`,
		`CREATE TABLE IF NOT EXISTS themes (
			id TEXT PRIMARY KEY,
			project TEXT NOT NULL,
			name TEXT NOT NULL,
			keywords TEXT,
			support_count INTEGER NOT NULL,
			representative_note_id TEXT,
			ord INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_themes_project ON themes(project)`,
		`CREATE TABLE IF NOT EXISTS theme_members (
			theme_id TEXT NOT NULL REFERENCES themes(id) ON DELETE CASCADE,
			segment_id TEXT NOT NULL,
			note_id TEXT NOT NULL,
			PRIMARY KEY (theme_id, segment_id)
		)`,
		`CREATE TABLE IF NOT EXISTS topic_role_map (
			project TEXT NOT NULL,
			topic_id TEXT NOT NULL,
			topic_kind TEXT NOT NULL,
			role TEXT NOT NULL,
			confidence REAL NOT NULL,
			PRIMARY KEY (topic_id, role)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_topic_role_map_project_role ON topic_role_map(project, role)`,
		`CREATE TABLE IF NOT EXISTS extractions (
			id TEXT PRIMARY KEY,
			natural_key TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			project TEXT NOT NULL,
			note_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			payload_hash TEXT NOT NULL,
			segment_ids TEXT,
			source_path TEXT,
			line_start INTEGER,
			line_end INTEGER,
			created_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_extractions_project_type ON extractions(project, type)`,
		`CREATE INDEX IF NOT EXISTS idx_extractions_note_id ON extractions(note_id)`,
		`CREATE TABLE IF NOT EXISTS modules (
			id TEXT PRIMARY KEY,
			project TEXT NOT NULL,
			module_type TEXT NOT NULL,
			topic_key TEXT NOT NULL,
			title TEXT,
			description TEXT,
			content TEXT,
			theme_ids TEXT,
			step_ids TEXT,
			definition_ids TEXT,
			faq_ids TEXT,
			decision_ids TEXT,
			action_ids TEXT,
			topic_ids TEXT,
			major INTEGER NOT NULL DEFAULT 0,
			minor INTEGER NOT NULL DEFAULT 0,
			patch INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT,
			UNIQUE (project, module_type, topic_key)
		)`,
		`CREATE TABLE IF NOT EXISTS versions (
			id TEXT PRIMARY KEY,
			module_id TEXT NOT NULL REFERENCES modules(id),
			major INTEGER NOT NULL,
			minor INTEGER NOT NULL,
			patch INTEGER NOT NULL,
			content TEXT NOT NULL,
			changes TEXT,
			bump TEXT NOT NULL,
			diff TEXT,
			created_at TEXT,
			UNIQUE (module_id, major, minor, patch)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_versions_module_id ON versions(module_id)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			command TEXT NOT NULL,
			started_at TEXT,
			finished_at TEXT,
			succeeded INTEGER,
			skipped INTEGER,
			failed INTEGER,
			failures TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return s.createSearchIndex()
}

// Projects returns the distinct projects that have at least one current note.
func (s *Store) Projects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT project FROM notes WHERE superseded_by = '' ORDER BY project`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var projects []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Counts returns the number of rows in each table, keyed by table name.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range []string{"notes", "segments", "themes", "topic_role_map", "extractions", "modules", "versions", "runs"} {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM `+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func encodeJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func decodeStrings(s string) []string {
	var out []string
	if s == "" {
		return nil
	}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(types.DateLayout)
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(types.DateLayout, s)
	return t
}
