// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

// SearchKind names the record type a search hit came from.
type SearchKind string

const (
	SearchNote       SearchKind = "note"
	SearchSegment    SearchKind = "segment"
	SearchExtraction SearchKind = "extraction"
)

// SearchKinds lists every searchable record type.
var SearchKinds = []SearchKind{SearchNote, SearchSegment, SearchExtraction}

// DefaultSearchLimit caps results when SearchQuery.Limit is zero.
const DefaultSearchLimit = 20

// SearchQuery holds the full-text query and its filters. Zero filters
// match everything.
type SearchQuery struct {
	// Text is an FTS4 MATCH expression: terms, "phrases", prefix* and OR.
	Text string

	Project string

	// Kinds restricts hits to notes, segments or extractions.
	Kinds []SearchKind

	// Types restricts hits by segment type or extraction type.
	Types []string

	Limit int
}

// SearchResult is one ranked hit.
type SearchResult struct {
	Kind    SearchKind `json:"kind" yaml:"kind"`
	ID      string     `json:"id" yaml:"id"`
	NoteID  string     `json:"note_id" yaml:"note_id"`
	Project string     `json:"project" yaml:"project"`
	Type    string     `json:"type,omitempty" yaml:"type,omitempty"`
	Snippet string     `json:"snippet" yaml:"snippet"`
	Hits    int        `json:"hits" yaml:"hits"`
}

// search_index columns; only body is tokenized.
const searchColumns = 6

func (s *Store) createSearchIndex() error {
	var exists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'search_index'`,
	).Scan(&exists); err != nil {
		return fmt.Errorf("checking search index: %w", err)
	}
	if exists > 0 {
		return nil
	}

	statements := []string{
		`CREATE VIRTUAL TABLE search_index USING fts4(
			kind, ref, project, note_id, item_type, body,
			notindexed=kind, notindexed=ref, notindexed=project,
			notindexed=note_id, notindexed=item_type,
			tokenize=porter
		)`,
		`CREATE TRIGGER notes_search_ai AFTER INSERT ON notes BEGIN
			INSERT INTO search_index (kind, ref, project, note_id, item_type, body)
			VALUES ('note', new.id, new.project, new.id, '', coalesce(new.title, '') || ' ' || new.content);
		END`,
		`CREATE TRIGGER notes_search_ad AFTER DELETE ON notes BEGIN
			DELETE FROM search_index WHERE kind = 'note' AND ref = old.id;
		END`,
		`CREATE TRIGGER segments_search_ai AFTER INSERT ON segments BEGIN
			INSERT INTO search_index (kind, ref, project, note_id, item_type, body)
			VALUES ('segment', new.id, new.project, new.note_id, new.segment_type,
				coalesce(new.heading, '') || ' ' || new.content);
		END`,
		`CREATE TRIGGER segments_search_ad AFTER DELETE ON segments BEGIN
			DELETE FROM search_index WHERE kind = 'segment' AND ref = old.id;
		END`,
		`CREATE TRIGGER extractions_search_ai AFTER INSERT ON extractions BEGIN
			INSERT INTO search_index (kind, ref, project, note_id, item_type, body)
			VALUES ('extraction', new.id, new.project, new.note_id, new.type,
				(SELECT group_concat(value, ' ') FROM json_each(new.payload)));
		END`,
		`CREATE TRIGGER extractions_search_ad AFTER DELETE ON extractions BEGIN
			DELETE FROM search_index WHERE kind = 'extraction' AND ref = old.id;
		END`,
		// Rows written before the index existed.
		`INSERT INTO search_index (kind, ref, project, note_id, item_type, body)
			SELECT 'note', id, project, id, '', coalesce(title, '') || ' ' || content FROM notes`,
		`INSERT INTO search_index (kind, ref, project, note_id, item_type, body)
			SELECT 'segment', id, project, note_id, segment_type, coalesce(heading, '') || ' ' || content FROM segments`,
		`INSERT INTO search_index (kind, ref, project, note_id, item_type, body)
			SELECT 'extraction', e.id, e.project, e.note_id, e.type,
				(SELECT group_concat(value, ' ') FROM json_each(e.payload)) FROM extractions e`,
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("creating search index: %w", err)
		}
	}
	return tx.Commit()
}

// Search runs a full-text query over notes, segments and extraction
// payloads. Records of superseded notes are skipped. Hits are ranked by
// the number of matched terms, then by kind and ID.
func (s *Store) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, &types.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(
		`SELECT kind, ref, note_id, project, item_type,
			snippet(search_index, '[', ']', '...', 5, 16),
			matchinfo(search_index, 'pcx')
		FROM search_index
		WHERE search_index MATCH ?
			AND note_id NOT IN (SELECT id FROM notes WHERE superseded_by != '')`)
	args = append(args, q.Text)

	if q.Project != "" {
		qb.WriteString(` AND project = ?`)
		args = append(args, q.Project)
	}
	if len(q.Kinds) > 0 {
		qb.WriteString(` AND kind IN (` + placeholders(len(q.Kinds)) + `)`)
		for _, k := range q.Kinds {
			args = append(args, string(k))
		}
	}
	if len(q.Types) > 0 {
		qb.WriteString(` AND item_type IN (` + placeholders(len(q.Types)) + `)`)
		for _, t := range q.Types {
			args = append(args, t)
		}
	}

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", q.Text, err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var (
			r    SearchResult
			kind string
			info []byte
		)
		if err := rows.Scan(&kind, &r.ID, &r.NoteID, &r.Project, &r.Type, &r.Snippet, &info); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		r.Kind = SearchKind(kind)
		r.Hits = rowHits(info)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("searching %q: %w", q.Text, err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Hits != out[j].Hits {
			return out[i].Hits > out[j].Hits
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// rowHits sums the in-row hit counts of a matchinfo 'pcx' blob: phrase
// count, column count, then three counters per phrase and column.
func rowHits(info []byte) int {
	if len(info) < 8 {
		return 0
	}
	word := func(i int) int { return int(binary.NativeEndian.Uint32(info[i*4:])) }
	phrases, cols := word(0), word(1)
	if cols != searchColumns || len(info) < 4*(2+3*phrases*cols) {
		return 0
	}
	hits := 0
	for p := 0; p < phrases; p++ {
		for c := 0; c < cols; c++ {
			hits += word(2 + 3*(p*cols+c))
		}
	}
	return hits
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
