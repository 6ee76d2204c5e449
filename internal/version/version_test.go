// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package version

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/meeting-modules/internal/store"
	"github.com/pdiddy/meeting-modules/pkg/types"
)

const v1 = `# Deploy tutorial

## Steps

1. Build the image
2. Push the image

## Definitions

### Canary

A small first rollout.
`

// --- Normalize and outline ---

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing spaces", "a  \nb\t\n", "a\nb\n"},
		{"trailing blank lines", "a\n\n\n", "a\n"},
		{"missing newline", "a", "a\n"},
		{"crlf", "a\r\nb\r\n", "a\nb\n"},
		{"empty", " \n\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestParseOutline(t *testing.T) {
	content := "# Title\n\n- loose item\n\n## Steps\n\n1. one\n2. two\n   - nested\n\n## FAQ\n\n### Why?\n\nBecause.\n\n### How?\n\nLike so.\n\n## Steps\n\n- three\n"
	got := ParseOutline(content)
	want := Outline{Sections: []Section{
		{Title: "", Items: 1},
		{Title: "Steps", Items: 4},
		{Title: "FAQ", Items: 2},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("outline mismatch (-want +got):\n%s", diff)
	}
}

func TestBump(t *testing.T) {
	base := ParseOutline(v1)
	tests := []struct {
		name    string
		next    string
		want    types.BumpKind
		summary string
	}{
		{
			name:    "text edit",
			next:    strings.Replace(v1, "A small first rollout.", "A small, early rollout.", 1),
			want:    types.BumpPatch,
			summary: "Patch change: text edits",
		},
		{
			name:    "added item",
			next:    strings.Replace(v1, "2. Push the image\n", "2. Push the image\n3. Roll out\n", 1),
			want:    types.BumpMinor,
			summary: "Minor change: Steps gained 1 item(s)",
		},
		{
			name:    "added section",
			next:    v1 + "\n## Decisions\n\n- Use canaries\n",
			want:    types.BumpMinor,
			summary: "Minor change: added section Decisions",
		},
		{
			name:    "removed item",
			next:    strings.Replace(v1, "2. Push the image\n", "", 1),
			want:    types.BumpMajor,
			summary: "Major change: Steps lost 1 item(s)",
		},
		{
			name:    "removed section wins over additions",
			next:    strings.Replace(v1, "## Definitions", "## Glossary", 1) + "- extra\n",
			want:    types.BumpMajor,
			summary: "Major change: removed section Definitions",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := ParseOutline(tt.next)
			assert.Equal(t, tt.want, Bump(base, next))
			assert.Equal(t, tt.summary, Summarize(base, next))
		})
	}
}

// --- Diff and Apply ---

func TestDiffApplyRoundTrip(t *testing.T) {
	v2 := strings.Replace(v1, "2. Push the image\n", "2. Tag the image\n3. Push the image\n", 1) +
		"\n## Decisions\n\n- Ship weekly\n"
	tests := []struct {
		name string
		a, b string
	}{
		{"edit and append", v1, v2},
		{"reverse", v2, v1},
		{"from empty", "", v1},
		{"to empty", v1, ""},
		{"identical", v1, v1},
		{"first line", v1, "# Rollout tutorial\n" + strings.SplitN(v1, "\n", 2)[1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Diff(tt.a, tt.b, "a", "b", 3)
			require.NoError(t, err)
			got, err := Apply(tt.a, d)
			require.NoError(t, err)
			assert.Equal(t, Normalize(tt.b), got)
		})
	}
}

func TestDiffFormat(t *testing.T) {
	d, err := Diff("a\nb\nc\n", "a\nB\nc\n", "m@1.0.0", "m@1.0.1", 1)
	require.NoError(t, err)
	assert.Equal(t, "--- m@1.0.0\n+++ m@1.0.1\n@@ -1,3 +1,3 @@\n a\n-b\n+B\n c\n", d)

	d, err = Diff("same\n", "same", "a", "b", 3)
	require.NoError(t, err)
	assert.Empty(t, d)
}

func TestApplyRejectsMismatch(t *testing.T) {
	d, err := Diff("a\nb\n", "a\nc\n", "x", "y", 3)
	require.NoError(t, err)

	_, err = Apply("a\nz\n", d)
	assert.ErrorContains(t, err, "does not match")

	_, err = Apply("a\n", "@@ -1 +1 @@\n?bogus\n")
	assert.ErrorContains(t, err, "malformed")
}

func TestApplyRejectsBadHunkRange(t *testing.T) {
	tests := []struct {
		name string
		diff string
	}{
		{"start overflows", "@@ -99999999999999999999 +1 @@\n-a\n+b\n"},
		{"length overflows", "@@ -1,99999999999999999999 +1 @@\n-a\n+b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply("a\n", tt.diff)
			assert.ErrorContains(t, err, "bad hunk range")
		})
	}
}

// --- Manager ---

func testManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(types.StoreConfig{DataDir: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewManager(st, types.VersioningConfig{ContextLines: 3, MaxConflictRetries: 3}, nil), st
}

func testModule(content string) types.Module {
	return types.Module{
		ID:       types.ModuleID("onboarding", types.ModuleTutorial, "deploy"),
		Project:  "onboarding",
		Type:     types.ModuleTutorial,
		TopicKey: "deploy",
		Title:    "Deploy tutorial",
		Content:  content,
	}
}

func TestCommitLifecycle(t *testing.T) {
	ctx := context.Background()
	mg, st := testManager(t)

	v, created, err := mg.Commit(ctx, testModule(v1))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, types.InitialVersion, v.Version)
	assert.Equal(t, types.BumpInitial, v.Bump)

	// Whitespace-only differences are not a new version.
	v, created, err = mg.Commit(ctx, testModule(v1+"\n\n  "))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "1.0.0", v.Version.String())

	v2 := strings.Replace(v1, "2. Push the image\n", "2. Push the image\n3. Verify\n", 1)
	v, created, err = mg.Commit(ctx, testModule(v2))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "1.1.0", v.Version.String())
	assert.Equal(t, types.BumpMinor, v.Bump)
	assert.Contains(t, v.Diff, "+3. Verify")

	v, _, err = mg.Commit(ctx, testModule(strings.Replace(v2, "Verify", "Verify the rollout", 1)))
	require.NoError(t, err)
	assert.Equal(t, "1.1.1", v.Version.String())

	v, _, err = mg.Commit(ctx, testModule("# Deploy tutorial\n\n## Steps\n\n1. Ship it\n"))
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", v.Version.String())
	assert.Equal(t, "Major change: Steps lost 2 item(s); removed section Definitions", v.Changes)

	history, err := mg.History(ctx, v.ModuleID)
	require.NoError(t, err)
	var nums []string
	for _, h := range history {
		nums = append(nums, h.Version.String())
	}
	assert.Equal(t, []string{"1.0.0", "1.1.0", "1.1.1", "2.0.0"}, nums)

	m, err := st.GetModule(ctx, v.ModuleID)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", m.Version.String())
	assert.Equal(t, v.Content, m.Content)

	// Every stored diff rebuilds its snapshot from the previous one.
	prev := ""
	for _, h := range history {
		got, err := Apply(prev, h.Diff)
		require.NoError(t, err)
		assert.Equal(t, h.Content, got, "version %s", h.Version)
		prev = h.Content
	}
}

func TestCommitConcurrent(t *testing.T) {
	ctx := context.Background()
	mg, _ := testManager(t)

	var wg sync.WaitGroup
	results := make([]*types.Version, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			content := v1 + "\n## Extra\n\n" + strings.Repeat("- item\n", i+1)
			v, _, err := mg.Commit(ctx, testModule(content))
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, v := range results {
		require.NotNil(t, v)
		assert.False(t, seen[v.Version.String()], "duplicate version %s", v.Version)
		seen[v.Version.String()] = true
	}
}

// conflictStore reports a conflict on the first n appends.
type conflictStore struct {
	*store.Store
	n int
}

func (c *conflictStore) AppendVersion(ctx context.Context, m types.Module, v types.Version) error {
	if c.n > 0 {
		c.n--
		return &types.VersionConflictError{ModuleID: m.ID, Latest: v.Version, Proposed: v.Version}
	}
	return c.Store.AppendVersion(ctx, m, v)
}

func TestCommitRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	_, st := testManager(t)

	mg := NewManager(&conflictStore{Store: st, n: 2}, types.VersioningConfig{MaxConflictRetries: 3}, nil)
	v, created, err := mg.Commit(ctx, testModule(v1))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "1.0.0", v.Version.String())

	mg = NewManager(&conflictStore{Store: st, n: 5}, types.VersioningConfig{MaxConflictRetries: 1}, nil)
	_, _, err = mg.Commit(ctx, testModule(v1+"\nmore\n"))
	assert.ErrorIs(t, err, types.ErrVersionConflict)
}

func TestDiffRefs(t *testing.T) {
	ctx := context.Background()
	mg, _ := testManager(t)

	first, _, err := mg.Commit(ctx, testModule(v1))
	require.NoError(t, err)
	second, _, err := mg.Commit(ctx, testModule(strings.Replace(v1, "Build", "Compile", 1)))
	require.NoError(t, err)

	byNumber, err := mg.DiffRefs(ctx, first.ModuleID+"@1.0.0", first.ModuleID)
	require.NoError(t, err)
	byID, err := mg.DiffRefs(ctx, first.ID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, byNumber, byID)
	assert.Contains(t, byID, "-1. Build the image")
	assert.Contains(t, byID, "+1. Compile the image")

	_, err = mg.DiffRefs(ctx, first.ID, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = mg.DiffRefs(ctx, first.ModuleID+"@9.9.9", first.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestWriteChangelog(t *testing.T) {
	ctx := context.Background()
	mg, _ := testManager(t)

	_, _, err := mg.Commit(ctx, testModule(v1))
	require.NoError(t, err)
	v, _, err := mg.Commit(ctx, testModule(v1+"\n## Decisions\n\n- Ship weekly\n"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "deploy", "CHANGELOG.md")
	require.NoError(t, mg.WriteChangelog(ctx, v.ModuleID, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "# Changelog - Deploy tutorial\n"))
	newer := strings.Index(text, "### Version 1.1.0")
	older := strings.Index(text, "### Version 1.0.0")
	require.True(t, newer > 0 && older > 0)
	assert.Less(t, newer, older)
	assert.Contains(t, text, "**Changes:** Minor change: added section Decisions")

	err = mg.WriteChangelog(ctx, "nope", path)
	assert.ErrorIs(t, err, types.ErrNotFound)
}
