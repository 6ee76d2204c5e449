// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package analyze groups a project's segments into themes with TF-IDF
// vectors and seeded k-means. For a fixed segment set and configuration
// the themes, their IDs and their order are reproducible.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

// Store is the persistence the analyzer needs.
type Store interface {
	Projects(ctx context.Context) ([]string, error)
	SegmentsForProject(ctx context.Context, project string) ([]types.Segment, error)
	ReplaceThemes(ctx context.Context, project string, themes []types.Theme) error
}

// RoleMapper assigns roles to a project's themes and segments once the
// themes are stored.
type RoleMapper interface {
	MapProject(ctx context.Context, project string, themes []types.Theme, segs []types.Segment) (int, error)
}

// Analyzer discovers themes. It owns a token cache shared by every
// project it analyzes.
type Analyzer struct {
	store  Store
	cfg    types.AnalysisConfig
	tokens *tokenCache
	roles  RoleMapper
	log    *zap.Logger
}

// WithRoles makes every analyzed project's themes and segments go
// through m after they are stored.
func (a *Analyzer) WithRoles(m RoleMapper) *Analyzer {
	a.roles = m
	return a
}

// New returns an Analyzer. A nil logger disables logging.
func New(st Store, cfg types.AnalysisConfig, log *zap.Logger) (*Analyzer, error) {
	if cfg.K < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d", cfg.K)
	}
	if log == nil {
		log = zap.NewNop()
	}
	tc, err := newTokenCache(cfg.CacheSize, cfg.Bigrams)
	if err != nil {
		return nil, fmt.Errorf("creating token cache: %w", err)
	}
	return &Analyzer{store: st, cfg: cfg, tokens: tc, log: log}, nil
}

// Themes clusters segs, which must all belong to project. The order of
// segs does not matter. Clusters smaller than MinSupport are dropped.
func (a *Analyzer) Themes(project string, segs []types.Segment) ([]types.Theme, error) {
	for _, seg := range segs {
		if seg.Project != project {
			return nil, &types.ValidationError{
				Field:  "segment project",
				Reason: fmt.Sprintf("segment %s belongs to %q, not %q", seg.ID, seg.Project, project),
			}
		}
	}
	if len(segs) < a.cfg.K {
		return nil, &types.InsufficientDataError{Project: project, Segments: len(segs), Clusters: a.cfg.K}
	}

	sorted := make([]types.Segment, len(segs))
	copy(sorted, segs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	docs := make([][]string, len(sorted))
	for i, seg := range sorted {
		docs[i] = a.tokens.tokens(seg.Content)
	}
	m := vectorize(docs, a.cfg.MaxFeatures)
	if len(m.vocab) == 0 {
		return nil, &types.InsufficientDataError{Project: project, Segments: len(segs), Clusters: a.cfg.K}
	}

	c := kmeans(m.rows, a.cfg.K, a.cfg.Seed, a.cfg.Restarts, a.cfg.MaxIterations)

	members := make([][]int, len(c.centroids))
	for i, l := range c.labels {
		members[l] = append(members[l], i)
	}

	var themes []types.Theme
	seen := make(map[string]int)
	for cluster, idx := range members {
		if len(idx) < a.cfg.MinSupport || len(idx) == 0 {
			continue
		}
		keywords := topKeywords(m, idx, a.cfg.TopKeywords)

		id := types.ThemeID(project, keywords)
		if n := seen[id]; n > 0 {
			id = types.ThemeID(project, append(keywords, "#"+strconv.Itoa(n)))
		}
		seen[types.ThemeID(project, keywords)]++

		segIDs := make([]string, len(idx))
		for i, j := range idx {
			segIDs[i] = sorted[j].ID
		}
		rep := representative(m.rows, idx, c.centroids[cluster])

		themes = append(themes, types.Theme{
			ID:                   id,
			Project:              project,
			Name:                 themeName(keywords),
			Keywords:             keywords,
			SupportCount:         len(idx),
			RepresentativeNoteID: sorted[rep].NoteID,
			SegmentIDs:           segIDs,
		})
	}
	return themes, nil
}

// topKeywords ranks terms by their summed weight over the members, ties
// broken by term.
func topKeywords(m tfidf, idx []int, n int) []string {
	weights := make([]float64, len(m.vocab))
	for _, i := range idx {
		for j, v := range m.rows[i] {
			weights[j] += v
		}
	}
	order := make([]int, 0, len(m.vocab))
	for j, w := range weights {
		if w > 0 {
			order = append(order, j)
		}
	}
	sort.Slice(order, func(x, y int) bool {
		if weights[order[x]] != weights[order[y]] {
			return weights[order[x]] > weights[order[y]]
		}
		return m.vocab[order[x]] < m.vocab[order[y]]
	})
	if n > 0 && len(order) > n {
		order = order[:n]
	}
	keywords := make([]string, len(order))
	for i, j := range order {
		keywords[i] = m.vocab[j]
	}
	return keywords
}

// representative returns the member closest to the centroid, the first
// on ties.
func representative(rows [][]float64, idx []int, centroid []float64) int {
	best, bestDist := idx[0], sqDist(rows[idx[0]], centroid)
	for _, i := range idx[1:] {
		if d := sqDist(rows[i], centroid); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func themeName(keywords []string) string {
	if len(keywords) > 3 {
		keywords = keywords[:3]
	}
	if len(keywords) == 0 {
		return "untitled"
	}
	return strings.Join(keywords, ", ")
}

// AnalyzeProject recomputes the themes of project and replaces its stored
// theme set in one transaction. With a RoleMapper the project's role
// mappings are rebuilt afterwards.
func (a *Analyzer) AnalyzeProject(ctx context.Context, project string) ([]types.Theme, error) {
	segs, err := a.store.SegmentsForProject(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("loading segments: %w", err)
	}
	themes, err := a.Themes(project, segs)
	if err != nil {
		return nil, err
	}
	if err := a.store.ReplaceThemes(ctx, project, themes); err != nil {
		return nil, fmt.Errorf("storing themes: %w", err)
	}
	mapped := 0
	if a.roles != nil {
		if mapped, err = a.roles.MapProject(ctx, project, themes, segs); err != nil {
			return nil, fmt.Errorf("mapping roles: %w", err)
		}
	}
	a.log.Info("themes updated",
		zap.String("project", project),
		zap.Int("segments", len(segs)),
		zap.Int("themes", len(themes)),
		zap.Int("role_mappings", mapped),
	)
	return themes, nil
}

// Failure records one project that could not be analyzed.
type Failure struct {
	Project string
	Err     error
}

// Summary holds counts from an analysis run.
type Summary struct {
	Analyzed int
	Skipped  int
	Failed   int
	Themes   int
	Failures []Failure
}

// Total returns the number of projects processed.
func (s Summary) Total() int {
	return s.Analyzed + s.Skipped + s.Failed
}

// HasFailures reports whether any project failed. Projects skipped for
// insufficient data are listed in Failures but do not count.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

type projectResult struct {
	themes []types.Theme
	err    error
}

// AnalyzeAll analyzes projects concurrently, at most Concurrency at a
// time. An empty list means every project with current notes. Output is
// written in project order once all projects finish.
func (a *Analyzer) AnalyzeAll(ctx context.Context, projects []string, w io.Writer) (Summary, error) {
	if len(projects) == 0 {
		var err error
		if projects, err = a.store.Projects(ctx); err != nil {
			return Summary{}, fmt.Errorf("listing projects: %w", err)
		}
	}

	results := make([]projectResult, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	limit := a.cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, project := range projects {
		g.Go(func() error {
			themes, err := a.AnalyzeProject(gctx, project)
			results[i] = projectResult{themes: themes, err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	var summary Summary
	for i, project := range projects {
		res := results[i]
		switch {
		case errors.Is(res.err, types.ErrInsufficientData):
			fmt.Fprintf(w, "skipped %s: %v\n", project, res.err)
			summary.Skipped++
			summary.Failures = append(summary.Failures, Failure{Project: project, Err: res.err})
		case res.err != nil:
			fmt.Fprintf(w, "failed  %s: %v\n", project, res.err)
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{Project: project, Err: res.err})
		default:
			fmt.Fprintf(w, "analyzed %s (%d themes)\n", project, len(res.themes))
			for _, th := range res.themes {
				fmt.Fprintf(w, "  %-40s support %d\n", th.Name, th.SupportCount)
			}
			summary.Analyzed++
			summary.Themes += len(res.themes)
		}
	}

	fmt.Fprintf(w, "\nanalyzed: %d, skipped: %d, failed: %d, themes: %d\n",
		summary.Analyzed, summary.Skipped, summary.Failed, summary.Themes)
	return summary, nil
}
