// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

func searchFixture(t *testing.T) (*Store, types.Note, types.Note) {
	t.Helper()
	s := testStore(t)
	ctx := context.Background()

	deploy := insertNote(t, s, sampleNote("alpha", "alpha/deploy.md", "We deploy with the release pipeline every Friday."))
	_, err := s.ReplaceSegments(ctx, deploy.ID, segmentsFor(deploy,
		"We deploy with the release pipeline every Friday.",
		"Rollbacks use the previous image tag."))
	require.NoError(t, err)

	budget := insertNote(t, s, sampleNote("beta", "beta/budget.md", "The budget review covers the pipeline vendor costs."))

	for _, e := range []types.Extraction{
		{Type: types.ExtractFAQ, Project: "alpha", NoteID: deploy.ID,
			Payload: types.FAQPayload{Question: "How do we deploy?", Answer: "Run the release pipeline."}},
		{Type: types.ExtractDefinition, Project: "alpha", NoteID: deploy.ID,
			Payload: types.DefinitionPayload{Term: "Rollback", Definition: "Redeploying the previous image."}},
	} {
		_, _, err := s.RecordExtraction(ctx, e)
		require.NoError(t, err)
	}
	return s, deploy, budget
}

func TestSearchFilters(t *testing.T) {
	s, _, _ := searchFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		q     SearchQuery
		kinds []SearchKind
	}{
		{"all projects", SearchQuery{Text: "pipeline"},
			[]SearchKind{SearchExtraction, SearchNote, SearchNote, SearchSegment}},
		{"by project", SearchQuery{Text: "pipeline", Project: "beta"},
			[]SearchKind{SearchNote}},
		{"by kind", SearchQuery{Text: "pipeline", Kinds: []SearchKind{SearchSegment}},
			[]SearchKind{SearchSegment}},
		{"by extraction type", SearchQuery{Text: "previous", Types: []string{string(types.ExtractDefinition)}},
			[]SearchKind{SearchExtraction}},
		{"by segment type", SearchQuery{Text: "rollbacks", Types: []string{string(types.SegmentParagraph)}},
			[]SearchKind{SearchSegment}},
		{"stemmed", SearchQuery{Text: "deploys", Project: "alpha", Kinds: []SearchKind{SearchExtraction}},
			[]SearchKind{SearchExtraction}},
		{"limited", SearchQuery{Text: "pipeline", Limit: 2}, nil},
		{"no match", SearchQuery{Text: "kubernetes"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(ctx, tt.q)
			require.NoError(t, err)
			if tt.q.Limit > 0 {
				assert.Len(t, got, tt.q.Limit)
				return
			}
			var kinds []SearchKind
			for _, r := range got {
				kinds = append(kinds, r.Kind)
			}
			assert.ElementsMatch(t, tt.kinds, kinds)
		})
	}
}

func TestSearchRanksAndSnippets(t *testing.T) {
	s, deploy, _ := searchFixture(t)

	got, err := s.Search(context.Background(), SearchQuery{Text: "release pipeline", Project: "alpha"})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Hits, got[i].Hits, "hits are ranked")
	}
	for _, r := range got {
		assert.Equal(t, deploy.ID, r.NoteID)
		assert.Equal(t, "alpha", r.Project)
		assert.Contains(t, r.Snippet, "[")
		assert.Positive(t, r.Hits)
	}
}

func TestSearchSkipsSupersededNotes(t *testing.T) {
	s, deploy, _ := searchFixture(t)
	ctx := context.Background()

	newer := sampleNote("alpha", deploy.SourcePath, "We ship with the nightly train now.")
	_, err := s.InsertNote(ctx, newer)
	require.NoError(t, err)

	got, err := s.Search(ctx, SearchQuery{Text: "pipeline", Project: "alpha"})
	require.NoError(t, err)
	assert.Empty(t, got, "records of the superseded note are hidden")

	got, err = s.Search(ctx, SearchQuery{Text: "nightly"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, newer.ID, got[0].ID)
}

func TestSearchTracksReplacedSegments(t *testing.T) {
	s, deploy, _ := searchFixture(t)
	ctx := context.Background()

	_, err := s.ReplaceSegments(ctx, deploy.ID, segmentsFor(deploy, "Canary hosts go first."))
	require.NoError(t, err)

	got, err := s.Search(ctx, SearchQuery{Text: "rollbacks", Kinds: []SearchKind{SearchSegment}})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Search(ctx, SearchQuery{Text: "canary", Kinds: []SearchKind{SearchSegment}})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSearchIndexesExistingRowsOnOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(types.StoreConfig{DataDir: dir}, nil)
	require.NoError(t, err)
	insertNote(t, s, sampleNote("alpha", "a.md", "Quarterly roadmap planning"))
	_, err = s.db.Exec(`DROP TABLE search_index`)
	require.NoError(t, err)
	for _, trg := range []string{"notes_search_ai", "notes_search_ad", "segments_search_ai",
		"segments_search_ad", "extractions_search_ai", "extractions_search_ad"} {
		_, err = s.db.Exec(`DROP TRIGGER ` + trg)
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	s, err = Open(types.StoreConfig{DataDir: dir}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	got, err := s.Search(context.Background(), SearchQuery{Text: "roadmap"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	s := testStore(t)
	_, err := s.Search(context.Background(), SearchQuery{Text: "  "})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestRowHits(t *testing.T) {
	assert.Equal(t, 0, rowHits(nil))
	assert.Equal(t, 0, rowHits([]byte{1, 0, 0, 0}))
}
