// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemVerCompareAndBump(t *testing.T) {
	tests := []struct {
		name string
		from SemVer
		kind BumpKind
		want SemVer
	}{
		{"major resets minor and patch", SemVer{1, 4, 2}, BumpMajor, SemVer{2, 0, 0}},
		{"minor resets patch", SemVer{1, 4, 2}, BumpMinor, SemVer{1, 5, 0}},
		{"patch", SemVer{1, 4, 2}, BumpPatch, SemVer{1, 4, 3}},
		{"initial", SemVer{}, BumpInitial, SemVer{1, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.from.Bump(tt.kind)
			assert.Equal(t, tt.want, got)
			assert.True(t, tt.from.Less(got), "bumped version must be greater")
		})
	}

	assert.Equal(t, 0, SemVer{1, 2, 3}.Compare(SemVer{1, 2, 3}))
	assert.Equal(t, 1, SemVer{2, 0, 0}.Compare(SemVer{1, 9, 9}))
	assert.Equal(t, -1, SemVer{1, 2, 3}.Compare(SemVer{1, 3, 0}))
}

func TestParseSemVer(t *testing.T) {
	v, err := ParseSemVer("v2.10.1")
	require.NoError(t, err)
	assert.Equal(t, SemVer{2, 10, 1}, v)
	assert.Equal(t, "2.10.1", v.String())

	for _, bad := range []string{"", "1.2", "1.2.x", "1.-2.3", "1.2.3.4"} {
		_, err := ParseSemVer(bad)
		assert.Error(t, err, bad)
	}
}

func TestExtractionValidate(t *testing.T) {
	base := Extraction{Project: "alpha", NoteID: "n1"}
	tests := []struct {
		name      string
		typ       ExtractionType
		payload   Payload
		wantField string
	}{
		{"valid step", ExtractStep, StepPayload{Number: 1, Title: "Open the console"}, ""},
		{"step without title", ExtractStep, StepPayload{Number: 1}, "title"},
		{"definition without definition", ExtractDefinition, DefinitionPayload{Term: "SLA"}, "definition"},
		{"faq without answer", ExtractFAQ, FAQPayload{Question: "Who owns it?"}, "answer"},
		{"valid decision", ExtractDecision, DecisionPayload{Decision: "Ship on Friday"}, ""},
		{"action without owner", ExtractAction, ActionPayload{Action: "Write docs", DueDate: "2026-03-01"}, "owner"},
		{"action with bad date", ExtractAction, ActionPayload{Action: "Write docs", Owner: "Ana", DueDate: "03/01/2026"}, "due_date"},
		{"action with bad status", ExtractAction, ActionPayload{Action: "Write docs", Owner: "Ana", DueDate: "2026-03-01", Status: "someday"}, "status"},
		{"valid action", ExtractAction, ActionPayload{Action: "Write docs", Owner: "Ana", DueDate: "2026-03-01", Status: "pending"}, ""},
		{"mismatched payload", ExtractFAQ, StepPayload{Title: "x"}, "payload"},
		{"missing payload", ExtractTopic, nil, "payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base
			e.Type = tt.typ
			e.Payload = tt.payload
			err := e.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestNaturalKeyIgnoresCaseAndWhitespace(t *testing.T) {
	a := FAQPayload{Question: "How do we deploy?", Answer: "Run  the pipeline."}
	b := FAQPayload{Question: "how do  we deploy?", Answer: "run the\npipeline."}
	c := FAQPayload{Question: "How do we roll back?", Answer: "Run the pipeline."}

	assert.Equal(t, NaturalKeyFor(ExtractFAQ, "n1", a), NaturalKeyFor(ExtractFAQ, "n1", b))
	assert.NotEqual(t, NaturalKeyFor(ExtractFAQ, "n1", a), NaturalKeyFor(ExtractFAQ, "n1", c))
	assert.NotEqual(t, NaturalKeyFor(ExtractFAQ, "n1", a), NaturalKeyFor(ExtractFAQ, "n2", a))
}

func TestExtractionJSONRoundTrip(t *testing.T) {
	e := Extraction{
		ID:      "x1",
		Type:    ExtractAction,
		Project: "alpha",
		NoteID:  "n1",
		Payload: ActionPayload{Action: "Draft runbook", Owner: "Ana", DueDate: "2026-04-02", Status: "pending"},
	}
	data, err := json.Marshal(e)
	require.NoError(t, err)

	var got Extraction
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, e.Payload, got.Payload)
	assert.Equal(t, e.Type, got.Type)
}

func TestIdentityIsDeterministic(t *testing.T) {
	assert.Equal(t, NoteID("abc"), NoteID("abc"))
	assert.NotEqual(t, NoteID("abc"), NoteID("abd"))
	assert.Equal(t, ModuleID("p", ModuleFAQ, "Deploy"), ModuleID("p", ModuleFAQ, "deploy"))
	assert.NotEqual(t, ModuleID("p", ModuleFAQ, "deploy"), ModuleID("p", ModuleHowTo, "deploy"))
	assert.NotEqual(t, SegmentID("n", 0, "x"), SegmentID("n", 1, "x"))
}

func TestErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{&IngestError{Path: "a.md", Err: errors.New("bad utf-8")}, ErrIngest},
		{&InsufficientDataError{Project: "p", Segments: 2, Clusters: 6}, ErrInsufficientData},
		{&VersionConflictError{ModuleID: "m", Latest: SemVer{1, 1, 0}, Proposed: SemVer{1, 1, 0}}, ErrVersionConflict},
		{&NotFoundError{Kind: "module", ID: "m"}, ErrNotFound},
	}
	for _, tt := range tests {
		wrapped := errors.Join(errors.New("context"), tt.err)
		assert.ErrorIs(t, wrapped, tt.want, tt.err.Error())
	}
}
