// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

// --- test helpers ---

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(types.StoreConfig{DataDir: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleNote(project, path, content string) types.Note {
	hash := "hash-" + content
	return types.Note{
		ID:          types.NoteID(hash),
		Project:     project,
		Date:        time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Title:       "Weekly sync",
		SourcePath:  path,
		Content:     content,
		ContentHash: hash,
		Roles:       []string{"engineer"},
		Metadata:    map[string]string{"attendees": "Ana, Bo"},
		IngestedAt:  time.Now(),
	}
}

func insertNote(t *testing.T, s *Store, n types.Note) types.Note {
	t.Helper()
	res, err := s.InsertNote(context.Background(), n)
	require.NoError(t, err)
	return res.Note
}

func segmentsFor(n types.Note, texts ...string) []types.Segment {
	segs := make([]types.Segment, len(texts))
	for i, txt := range texts {
		segs[i] = types.Segment{
			ID:        types.SegmentID(n.ID, i, txt),
			NoteID:    n.ID,
			Project:   n.Project,
			Content:   txt,
			Type:      types.SegmentParagraph,
			Order:     i,
			LineStart: i*2 + 1,
			LineEnd:   i*2 + 1,
		}
	}
	return segs
}

// --- schema ---

func TestOpenCreatesSchema(t *testing.T) {
	s := testStore(t)
	for _, table := range []string{"notes", "segments", "themes", "theme_members", "topic_role_map", "extractions", "modules", "versions", "runs"} {
		var count int
		err := s.db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s", table)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(types.StoreConfig{DataDir: dir}, nil)
	require.NoError(t, err)
	insertNote(t, s1, sampleNote("alpha", "a.md", "one"))
	require.NoError(t, s1.Close())

	s2, err := Open(types.StoreConfig{DataDir: dir}, nil)
	require.NoError(t, err)
	defer s2.Close()
	notes, err := s2.ListNotes(context.Background(), "", false)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

// --- notes ---

func TestInsertNoteDeduplicatesOnHash(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	n := sampleNote("alpha", "a.md", "one")

	first, err := s.InsertNote(ctx, n)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	again := n
	again.SourcePath = "copy-of-a.md"
	second, err := s.InsertNote(ctx, again)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, n.ID, second.Note.ID)
	assert.Equal(t, "a.md", second.Note.SourcePath, "existing note is returned unchanged")

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["notes"])
}

func TestInsertNoteSupersedesSamePath(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	old := insertNote(t, s, sampleNote("alpha", "notes/a.md", "v1"))

	res, err := s.InsertNote(ctx, sampleNote("alpha", "notes/a.md", "v2"))
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID}, res.Superseded)

	current, err := s.ListNotes(ctx, "alpha", false)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, res.Note.ID, current[0].ID)

	all, err := s.ListNotes(ctx, "alpha", true)
	require.NoError(t, err)
	assert.Len(t, all, 2, "superseded notes are retained")

	got, err := s.GetNote(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Note.ID, got.SupersededBy)
	assert.Equal(t, []string{"engineer"}, got.Roles)
	assert.Equal(t, "Ana, Bo", got.Metadata["attendees"])
}

func TestGetNoteNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetNote(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// --- segments ---

func TestReplaceSegmentsIsAtomicAndIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	n := insertNote(t, s, sampleNote("alpha", "a.md", "one"))

	segs := segmentsFor(n, "first block", "second block")
	changed, err := s.ReplaceSegments(ctx, n.ID, segs)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.ReplaceSegments(ctx, n.ID, segs)
	require.NoError(t, err)
	assert.False(t, changed, "identical set is not rewritten")

	// A failing replacement leaves the previous set in place.
	bad := segmentsFor(n, "x", "y")
	bad[1].NoteID = "other-note"
	_, err = s.ReplaceSegments(ctx, n.ID, bad)
	require.Error(t, err)

	got, err := s.SegmentsForNote(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first block", got[0].Content)
	assert.Equal(t, "second block", got[1].Content)
}

func TestSegmentsForProjectSkipsSupersededNotes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	old := insertNote(t, s, sampleNote("alpha", "a.md", "v1"))
	_, err := s.ReplaceSegments(ctx, old.ID, segmentsFor(old, "old text"))
	require.NoError(t, err)

	cur := insertNote(t, s, sampleNote("alpha", "a.md", "v2"))
	_, err = s.ReplaceSegments(ctx, cur.ID, segmentsFor(cur, "new text"))
	require.NoError(t, err)

	segs, err := s.SegmentsForProject(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "new text", segs[0].Content)
}

func TestResolveSegmentsReportsMissing(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	n := insertNote(t, s, sampleNote("alpha", "a.md", "one"))
	segs := segmentsFor(n, "kept")
	_, err := s.ReplaceSegments(ctx, n.ID, segs)
	require.NoError(t, err)

	found, missing, err := s.ResolveSegments(ctx, []string{segs[0].ID, "gone"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, segs[0].ID, found[0].ID)
	assert.Equal(t, []string{"gone"}, missing)
}

// --- themes ---

func TestReplaceThemesIsPerProject(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	a := insertNote(t, s, sampleNote("alpha", "a.md", "one"))
	b := insertNote(t, s, sampleNote("beta", "b.md", "two"))
	segA := segmentsFor(a, "deploy pipeline")
	segB := segmentsFor(b, "budget review")
	_, err := s.ReplaceSegments(ctx, a.ID, segA)
	require.NoError(t, err)
	_, err = s.ReplaceSegments(ctx, b.ID, segB)
	require.NoError(t, err)

	themeA := types.Theme{ID: "ta", Project: "alpha", Name: "deploy, pipeline", Keywords: []string{"deploy", "pipeline"},
		SupportCount: 1, RepresentativeNoteID: a.ID, SegmentIDs: []string{segA[0].ID}}
	themeB := types.Theme{ID: "tb", Project: "beta", Name: "budget", Keywords: []string{"budget"},
		SupportCount: 1, RepresentativeNoteID: b.ID, SegmentIDs: []string{segB[0].ID}}
	require.NoError(t, s.ReplaceThemes(ctx, "alpha", []types.Theme{themeA}))
	require.NoError(t, s.ReplaceThemes(ctx, "beta", []types.Theme{themeB}))

	// Re-analysis of alpha must not touch beta.
	require.NoError(t, s.ReplaceThemes(ctx, "alpha", nil))

	alpha, err := s.ListThemes(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, alpha)

	beta, err := s.FindTheme(ctx, "beta", "BUDGET")
	require.NoError(t, err)
	assert.Equal(t, []string{segB[0].ID}, beta.SegmentIDs)

	notes, err := s.ThemeNoteIDs(ctx, "tb")
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, notes)

	_, err = s.FindTheme(ctx, "alpha", "deploy, pipeline")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// --- extractions ---

func TestRecordExtractionDeduplicates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e := types.Extraction{
		Type:       types.ExtractFAQ,
		Project:    "alpha",
		NoteID:     "n1",
		SegmentIDs: []string{"s1"},
		Payload:    types.FAQPayload{Question: "How do we deploy?", Answer: "Run the pipeline."},
		Source:     types.SourceRef{Path: "a.md", LineStart: 3, LineEnd: 4},
	}
	id1, inserted, err := s.RecordExtraction(ctx, e)
	require.NoError(t, err)
	assert.True(t, inserted)

	e.Payload = types.FAQPayload{Question: "how do we  deploy?", Answer: "Run the pipeline."}
	e.SegmentIDs = []string{"s2"}
	id2, inserted, err := s.RecordExtraction(ctx, e)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, id1, id2)

	got, err := s.QueryExtractions(ctx, ExtractionQuery{Project: "alpha", Types: []types.ExtractionType{types.ExtractFAQ}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"s2"}, got[0].SegmentIDs, "last writer refreshes references")
	assert.Equal(t, "How do we deploy?", got[0].Payload.(types.FAQPayload).Question)
}

func TestRecordExtractionConcurrentSameAction(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	e := types.Extraction{
		Type:    types.ExtractAction,
		Project: "alpha",
		NoteID:  "n1",
		Payload: types.ActionPayload{Action: "X", Owner: "A", DueDate: "2025-01-01"},
	}

	var wg sync.WaitGroup
	inserted := make([]bool, 4)
	for i := range inserted {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.RecordExtraction(ctx, e)
			assert.NoError(t, err)
			inserted[i] = ok
		}()
	}
	wg.Wait()

	got, err := s.QueryExtractions(ctx, ExtractionQuery{Types: []types.ExtractionType{types.ExtractAction}})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	n := 0
	for _, ok := range inserted {
		if ok {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestRecordExtractionRejectsInvalid(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, _, err := s.RecordExtraction(ctx, types.Extraction{
		Type:    types.ExtractAction,
		Project: "alpha",
		NoteID:  "n1",
		Payload: types.ActionPayload{Action: "Write the runbook"},
	})
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "owner", ve.Field)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts["extractions"])
}

func TestQueryExtractionsFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	record := func(project, note string, p types.Payload) {
		_, _, err := s.RecordExtraction(ctx, types.Extraction{
			Type: p.Kind(), Project: project, NoteID: note, Payload: p,
			Source: types.SourceRef{Path: note + ".md", LineStart: 1},
		})
		require.NoError(t, err)
	}
	record("alpha", "n1", types.StepPayload{Number: 1, Title: "Open the console"})
	record("alpha", "n1", types.DefinitionPayload{Term: "SLA", Definition: "Service level agreement"})
	record("alpha", "n2", types.StepPayload{Number: 1, Title: "Close the console"})
	record("beta", "n3", types.StepPayload{Number: 1, Title: "Open the ledger"})

	tests := []struct {
		name string
		q    ExtractionQuery
		want int
	}{
		{"all", ExtractionQuery{}, 4},
		{"by project", ExtractionQuery{Project: "alpha"}, 3},
		{"by type", ExtractionQuery{Types: []types.ExtractionType{types.ExtractStep}}, 3},
		{"by note", ExtractionQuery{NoteIDs: []string{"n1", "n3"}}, 3},
		{"combined", ExtractionQuery{Project: "alpha", Types: []types.ExtractionType{types.ExtractStep}, NoteIDs: []string{"n2"}}, 1},
		{"limited", ExtractionQuery{Limit: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.QueryExtractions(ctx, tt.q)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

// --- modules and versions ---

func sampleModule() types.Module {
	return types.Module{
		ID:       types.ModuleID("alpha", types.ModuleFAQ, "deploy"),
		Project:  "alpha",
		Type:     types.ModuleFAQ,
		TopicKey: "deploy",
		Title:    "Deploy FAQ",
		FAQIDs:   []string{"f1"},
	}
}

func sampleVersion(m types.Module, v types.SemVer, content string) types.Version {
	return types.Version{
		ID:       types.VersionID(m.ID, v),
		ModuleID: m.ID,
		Version:  v,
		Content:  content,
		Bump:     types.BumpMinor,
	}
}

func TestAppendVersionEnforcesMonotonicity(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := sampleModule()

	require.NoError(t, s.AppendVersion(ctx, m, sampleVersion(m, types.SemVer{Major: 1}, "v1\n")))
	require.NoError(t, s.AppendVersion(ctx, m, sampleVersion(m, types.SemVer{Major: 1, Minor: 1}, "v2\n")))

	err := s.AppendVersion(ctx, m, sampleVersion(m, types.SemVer{Major: 1, Minor: 1}, "stale\n"))
	var conflict *types.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, types.SemVer{Major: 1, Minor: 1}, conflict.Latest)

	err = s.AppendVersion(ctx, m, sampleVersion(m, types.SemVer{Major: 1, Patch: 5}, "older\n"))
	assert.ErrorIs(t, err, types.ErrVersionConflict)

	got, err := s.GetModule(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SemVer{Major: 1, Minor: 1}, got.Version)
	assert.Equal(t, "v2\n", got.Content)
	assert.Equal(t, []string{"f1"}, got.FAQIDs)

	latest, ok, err := s.LatestVersion(ctx, m.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2\n", latest.Content)

	history, err := s.ListVersions(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Version.Less(history[1].Version))

	byNumber, err := s.GetVersionByNumber(ctx, m.ID, types.SemVer{Major: 1})
	require.NoError(t, err)
	assert.Equal(t, "v1\n", byNumber.Content)
}

func TestSaveModuleKeepsVersion(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := sampleModule()
	require.NoError(t, s.AppendVersion(ctx, m, sampleVersion(m, types.SemVer{Major: 1}, "v1\n")))

	m.Title = "Deployment FAQ"
	m.Version = types.SemVer{}
	require.NoError(t, s.SaveModule(ctx, m))

	got, err := s.FindModule(ctx, "alpha", types.ModuleFAQ, "deploy")
	require.NoError(t, err)
	assert.Equal(t, "Deployment FAQ", got.Title)
	assert.Equal(t, types.SemVer{Major: 1}, got.Version)
}

func TestModuleNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetModule(context.Background(), "nope")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, ok, err := s.LatestVersion(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

// --- runs and export ---

func TestRecordRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	id, err := s.RecordRun(ctx, types.Run{Command: "ingest", StartedAt: time.Now(), Succeeded: 2, Failed: 1, Failures: []string{"bad.md"}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	runs, err := s.ListRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, []string{"bad.md"}, runs[0].Failures)
}

func TestExportWritesHistory(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := sampleModule()
	require.NoError(t, s.AppendVersion(ctx, m, sampleVersion(m, types.SemVer{Major: 1}, "v1\n")))
	require.NoError(t, s.AppendVersion(ctx, m, sampleVersion(m, types.SemVer{Major: 1, Minor: 1}, "v2\n")))

	path, err := s.ExportYAML(ctx, "")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Modules []ExportModule `yaml:"modules"`
	}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	require.Len(t, doc.Modules, 1)
	require.Len(t, doc.Modules[0].Versions, 2)
	assert.Equal(t, "1.0.0", doc.Modules[0].Versions[0].Version)
	assert.Equal(t, "1.1.0", doc.Modules[0].Version)

	_, err = s.ExportJSON(ctx, "alpha")
	require.NoError(t, err)

	paths, err := s.ExportCSV(ctx, filepath.Join(s.DataDir(), "csv"), "")
	require.NoError(t, err)
	assert.Len(t, paths, 4)
	for _, p := range paths {
		assert.FileExists(t, p)
	}
}
