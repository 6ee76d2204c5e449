// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/meeting-modules/internal/store"
	"github.com/pdiddy/meeting-modules/pkg/types"
)

func TestMain(m *testing.M) {
	backoffBase = time.Millisecond
	os.Exit(m.Run())
}

// --- fixtures ---

func syncNote() types.Note {
	return types.Note{
		ID:          types.NoteID("sync-hash"),
		Project:     "platform",
		Date:        time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Title:       "Platform sync",
		SourcePath:  "notes/platform/2026-03-02-sync.md",
		Content:     "unused",
		ContentHash: "sync-hash",
		IngestedAt:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func syncSegments(noteID string) []types.Segment {
	raw := []struct {
		heading    string
		content    string
		start, end int
		kind       types.SegmentType
	}{
		{"Deploy process", "1. Run the migration script\n2. Restart the API servers\n3. ok", 3, 5, types.SegmentList},
		{"Deploy process", "Canary release is a rollout to five percent of traffic.", 7, 7, types.SegmentParagraph},
		{"Questions", "Q: How do we roll back?\nA: Redeploy the previous tag.", 11, 12, types.SegmentParagraph},
		{"Outcomes", "Decision: Use blue-green deploys because downtime hurts customers\nThe team decided to adopt Terraform, approved by Dana Smith.", 15, 16, types.SegmentParagraph},
		{"Outcomes", "- Action: Ana Lopez will update the runbook by March 15\n- Action item: check dashboards", 18, 19, types.SegmentList},
	}
	segs := make([]types.Segment, len(raw))
	for i, r := range raw {
		segs[i] = types.Segment{
			ID:        types.SegmentID(noteID, i, r.content),
			NoteID:    noteID,
			Project:   "platform",
			Content:   r.content,
			Type:      r.kind,
			Order:     i,
			Heading:   r.heading,
			LineStart: r.start,
			LineEnd:   r.end,
		}
	}
	return segs
}

// --- RuleExtractor ---

func TestRuleExtractor(t *testing.T) {
	note := syncNote()
	segs := syncSegments(note.ID)
	id := func(i int) []string { return []string{segs[i].ID} }

	got, err := RuleExtractor{}.Extract(context.Background(), note, segs)
	require.NoError(t, err)

	want := []Candidate{
		{Payload: types.StepPayload{Number: 1, Title: "Run the migration script", Description: "Run the migration script"}, SegmentIDs: id(0), LineStart: 3, LineEnd: 3},
		{Payload: types.StepPayload{Number: 2, Title: "Restart the API servers", Description: "Restart the API servers"}, SegmentIDs: id(0), LineStart: 4, LineEnd: 4},
		{Payload: types.DefinitionPayload{Term: "Canary release", Definition: "a rollout to five percent of traffic", Context: "Deploy process"}, SegmentIDs: id(1), LineStart: 7, LineEnd: 7},
		{Payload: types.FAQPayload{Question: "How do we roll back?", Answer: "Redeploy the previous tag.", Category: "Questions"}, SegmentIDs: id(2), LineStart: 11, LineEnd: 12},
		{Payload: types.DecisionPayload{Decision: "Use blue-green deploys", Rationale: "downtime hurts customers"}, SegmentIDs: id(3), LineStart: 15, LineEnd: 15},
		{Payload: types.DecisionPayload{Decision: "adopt Terraform, approved by Dana Smith", DecisionMaker: "Dana Smith"}, SegmentIDs: id(3), LineStart: 16, LineEnd: 16},
		{Payload: types.ActionPayload{Action: "Ana Lopez will update the runbook by March 15", Owner: "Ana Lopez", DueDate: "2026-03-15", Status: "pending"}, SegmentIDs: id(4), LineStart: 18, LineEnd: 18},
		{Payload: types.ActionPayload{Action: "check dashboards", Status: "pending"}, SegmentIDs: id(4), LineStart: 19, LineEnd: 19},
		{Payload: types.TopicPayload{Name: "Deploy process"}, SegmentIDs: []string{segs[0].ID, segs[1].ID}, LineStart: 3, LineEnd: 7},
		{Payload: types.TopicPayload{Name: "Questions"}, SegmentIDs: id(2), LineStart: 11, LineEnd: 12},
		{Payload: types.TopicPayload{Name: "Outcomes"}, SegmentIDs: []string{segs[3].ID, segs[4].ID}, LineStart: 15, LineEnd: 19},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}

	again, err := RuleExtractor{}.Extract(context.Background(), note, segs)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestOwner(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"update the docs, assigned to Bo Chen", "Bo Chen"},
		{"owner: Ana - rotate keys", "Ana"},
		{"@dana.r rotate keys.", "dana.r"},
		{"Carl will file the ticket", "Carl"},
		{"ship it by Friday", ""},
		{"review the plan by Ed", "Ed"},
		{"nobody owns this", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, owner(tt.text))
		})
	}
}

func TestDueDate(t *testing.T) {
	ref := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		text string
		want string
	}{
		{"finish 2026-04-01", "2026-04-01"},
		{"due: March 3rd, 2027", "2027-03-03"},
		{"deadline Jan. 9 2026", "2026-01-09"},
		{"send it 4/5/2026", "2026-04-05"},
		{"by June 30", "2026-06-30"},
		{"soon", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, dueDate(tt.text, ref))
		})
	}
}

func TestDefinitionFilters(t *testing.T) {
	for _, text := range []string{"It is going well today", "Owner: Ana Lopez", "Q: what is it", "Go is fun"} {
		_, ok := definition(text, "")
		assert.False(t, ok, text)
	}
	p, ok := definition("The SLO means ninety nine point nine percent", "")
	require.True(t, ok)
	assert.Equal(t, "SLO", p.Term)
}

func TestFAQNeedsAnswerMarkerAcrossSegments(t *testing.T) {
	lines := []noteLine{
		{text: "Should we hire more?", segment: "s1", number: 1},
		{text: "The budget is tight this quarter.", segment: "s2", number: 3},
	}
	_, _, ok := faq(lines, 0)
	assert.False(t, ok)

	lines[1].text = "A: Not until the budget clears."
	c, consumed, ok := faq(lines, 0)
	require.True(t, ok)
	assert.Equal(t, 1, consumed)
	assert.Equal(t, []string{"s1", "s2"}, c.SegmentIDs)
	assert.Equal(t, 3, c.LineEnd)
}

// --- retry ---

type flakyExtractor struct {
	failures int
	calls    int
}

func (f *flakyExtractor) Extract(_ context.Context, _ types.Note, _ []types.Segment) ([]Candidate, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("backend unavailable")
	}
	return []Candidate{{Payload: types.TopicPayload{Name: "Retry"}}}, nil
}

func TestCallWithRetry(t *testing.T) {
	ext := &flakyExtractor{failures: 2}
	got, err := callWithRetry(context.Background(), ext, syncNote(), nil, 3)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 3, ext.calls)

	ext = &flakyExtractor{failures: 10}
	_, err = callWithRetry(context.Background(), ext, syncNote(), nil, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, 3, ext.calls)
}

// --- Runner ---

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(types.StoreConfig{DataDir: filepath.Join(t.TempDir(), "data")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRunnerRecordsAndDeduplicates(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	note := syncNote()
	_, err := st.InsertNote(ctx, note)
	require.NoError(t, err)
	_, err = st.ReplaceSegments(ctx, note.ID, syncSegments(note.ID))
	require.NoError(t, err)

	r := NewRunner(st, RuleExtractor{}, types.ExtractionConfig{MaxRetries: 1, ItemTimeout: time.Minute}, nil)

	var buf bytes.Buffer
	first, err := r.Run(ctx, "platform", &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Notes)
	assert.Equal(t, 10, first.Recorded)
	assert.Equal(t, 1, first.Rejected, "the action without owner or due date")
	require.Len(t, first.Rejections, 1)
	assert.Equal(t, types.ExtractAction, first.Rejections[0].Type)
	assert.ErrorIs(t, first.Rejections[0].Err, types.ErrValidation)
	assert.False(t, first.HasFailures())

	second, err := r.Run(ctx, "platform", &buf)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Recorded)
	assert.Equal(t, 10, second.Duplicates)

	stored, err := st.QueryExtractions(ctx, store.ExtractionQuery{Project: "platform"})
	require.NoError(t, err)
	assert.Len(t, stored, 10)

	actions, err := st.QueryExtractions(ctx, store.ExtractionQuery{Project: "platform", Types: []types.ExtractionType{types.ExtractAction}})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "notes/platform/2026-03-02-sync.md", actions[0].Source.Path)
	assert.Equal(t, 18, actions[0].Source.LineStart)
}

type noteStore struct {
	notes    []types.Note
	recorded int
}

func (s *noteStore) ListNotes(context.Context, string, bool) ([]types.Note, error) { return s.notes, nil }

func (s *noteStore) SegmentsForNote(_ context.Context, noteID string) ([]types.Segment, error) {
	return syncSegments(noteID), nil
}

func (s *noteStore) RecordExtraction(_ context.Context, e types.Extraction) (string, bool, error) {
	if err := e.Validate(); err != nil {
		return "", false, err
	}
	s.recorded++
	return "id", true, nil
}

type noteFailingExtractor struct{ bad string }

func (f noteFailingExtractor) Extract(ctx context.Context, note types.Note, segs []types.Segment) ([]Candidate, error) {
	if note.ID == f.bad {
		return nil, errors.New("model refused")
	}
	return RuleExtractor{}.Extract(ctx, note, segs)
}

func TestRunnerIsolatesNoteFailures(t *testing.T) {
	good, bad := syncNote(), syncNote()
	bad.ID, bad.SourcePath = "bad-note", "notes/platform/bad.md"
	st := &noteStore{notes: []types.Note{bad, good}}

	r := NewRunner(st, noteFailingExtractor{bad: bad.ID}, types.ExtractionConfig{MaxRetries: 1}, nil)

	var buf bytes.Buffer
	summary, err := r.Run(context.Background(), "", &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Notes)
	assert.Equal(t, 2, summary.Total())
	assert.Equal(t, 10, st.recorded)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "notes/platform/bad.md", summary.Failures[0].Path)
	assert.Contains(t, buf.String(), "failed  notes/platform/bad.md: after 1 retries: model refused")
}

// --- Claude ---

func TestClaudeExtractor(t *testing.T) {
	note := syncNote()
	segs := syncSegments(note.ID)

	var gotPrompt string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		var req claudeRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		gotPrompt = req.Messages[0].Content

		items := modelResponse{Items: []modelItem{{
			Type:       "faq",
			Payload:    json.RawMessage(`{"question":"How do we roll back?","answer":"Redeploy the previous tag."}`),
			SegmentIDs: []string{segs[2].ID, "invented"},
			LineStart:  11,
			LineEnd:    12,
		}}}
		text, _ := json.Marshal(items)
		json.NewEncoder(w).Encode(claudeResponse{Content: []claudeContent{{Type: "text", Text: "```json\n" + string(text) + "\n```"}}})
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	c := &ClaudeExtractor{APIKey: "test-key", Model: "test-model", Client: ts.Client()}
	got, err := c.Extract(context.Background(), note, segs)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, types.FAQPayload{Question: "How do we roll back?", Answer: "Redeploy the previous tag."}, got[0].Payload)
	assert.Equal(t, []string{segs[2].ID}, got[0].SegmentIDs)
	assert.Contains(t, gotPrompt, "Meeting: Platform sync (2026-03-02)")
	assert.Contains(t, gotPrompt, "[segment "+segs[0].ID+" lines 3-5 under \"Deploy process\"]")
}

func TestClaudeExtractorErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "bad request")
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	c := &ClaudeExtractor{APIKey: "k", Model: "m", Client: ts.Client()}
	_, err := c.Extract(context.Background(), syncNote(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestParseModelResponseRejectsUnknownType(t *testing.T) {
	_, err := parseModelResponse(`{"items":[{"type":"claim","payload":{}}]}`, nil)
	assert.ErrorIs(t, err, types.ErrValidation)
}
