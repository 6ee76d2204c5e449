// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

// Committer records module snapshots.
type Committer interface {
	Commit(ctx context.Context, m types.Module) (*types.Version, bool, error)
	WriteChangelog(ctx context.Context, moduleID, path string) error
}

// ProjectLister lists the projects to generate when none are named.
type ProjectLister interface {
	Projects(ctx context.Context) ([]string, error)
}

// Generator builds, commits and writes every module of a project.
type Generator struct {
	builder  *Builder
	versions Committer
	projects ProjectLister
	cfg      types.GenerationConfig
	log      *zap.Logger
}

// NewGenerator returns a Generator. A nil logger disables logging.
func NewGenerator(b *Builder, versions Committer, projects ProjectLister, cfg types.GenerationConfig, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{builder: b, versions: versions, projects: projects, cfg: cfg, log: log}
}

// Result reports one generated module.
type Result struct {
	Project string
	Type    types.ModuleType
	Key     string
	Path    string
	Version types.SemVer
	Bump    types.BumpKind
	Created bool
	Err     error
}

// Summary holds counts from a generation run.
type Summary struct {
	Committed int
	Unchanged int
	Skipped   int
	Failed    int
	Results   []Result
}

// Total returns the number of modules attempted.
func (s Summary) Total() int {
	return s.Committed + s.Unchanged + s.Skipped + s.Failed
}

// HasFailures reports whether any module failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

type target struct {
	t   types.ModuleType
	key string
}

// Run generates the modules of projects (all projects when empty). Each
// project runs in its own goroutine; a failing module never stops its
// siblings. Per-module lines are written to w in project order.
func (g *Generator) Run(ctx context.Context, projects []string, w io.Writer) (Summary, error) {
	if len(projects) == 0 {
		var err error
		if projects, err = g.projects.Projects(ctx); err != nil {
			return Summary{}, fmt.Errorf("listing projects: %w", err)
		}
	}

	results := make([][]Result, len(projects))
	eg, gctx := errgroup.WithContext(ctx)
	limit := g.cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	eg.SetLimit(limit)
	for i, project := range projects {
		eg.Go(func() error {
			results[i] = g.GenerateProject(gctx, project)
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	var summary Summary
	for _, rs := range results {
		for _, r := range rs {
			summary.Results = append(summary.Results, r)
			name := r.Project + "/" + r.Key
			if r.Path != "" {
				name = r.Path
			}
			switch {
			case r.Err != nil:
				fmt.Fprintf(w, "failed  %s %s: %v\n", r.Type, name, r.Err)
				summary.Failed++
			case r.Path == "":
				fmt.Fprintf(w, "skipped %s %s (no content)\n", r.Type, name)
				summary.Skipped++
			case r.Created:
				fmt.Fprintf(w, "generated %s (v%s, %s)\n", name, r.Version, r.Bump)
				summary.Committed++
			default:
				fmt.Fprintf(w, "unchanged %s (v%s)\n", name, r.Version)
				summary.Unchanged++
			}
		}
	}

	fmt.Fprintf(w, "\ngenerated: %d, unchanged: %d, skipped: %d, failed: %d\n",
		summary.Committed, summary.Unchanged, summary.Skipped, summary.Failed)
	return summary, nil
}

// GenerateProject builds one tutorial per theme, an faq and a howto per
// theme when they have content, one role path per role and finally the
// index, which lists the others.
func (g *Generator) GenerateProject(ctx context.Context, project string) []Result {
	targets, err := g.plan(ctx, project)
	if err != nil {
		return []Result{{Project: project, Type: types.ModuleIndex, Key: IndexKey, Err: err}}
	}
	targets = append(targets, target{types.ModuleIndex, IndexKey})

	var out []Result
	for _, tg := range targets {
		if err := ctx.Err(); err != nil {
			out = append(out, Result{Project: project, Type: tg.t, Key: tg.key, Err: err})
			continue
		}
		out = append(out, g.generate(ctx, project, tg))
	}
	return out
}

func (g *Generator) plan(ctx context.Context, project string) ([]target, error) {
	themes, err := g.builder.store.ListThemes(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("listing themes: %w", err)
	}
	var targets []target
	for _, th := range themes {
		for _, t := range []types.ModuleType{types.ModuleTutorial, types.ModuleFAQ, types.ModuleHowTo} {
			targets = append(targets, target{t, th.ID})
		}
	}

	roles, err := g.builder.roles(ctx, project)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(roles))
	for k := range roles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		targets = append(targets, target{types.ModuleRolePath, roles[k]})
	}
	return targets, nil
}

func (g *Generator) generate(ctx context.Context, project string, tg target) Result {
	res := Result{Project: project, Type: tg.t, Key: tg.key}

	m, rc, err := g.builder.build(ctx, project, tg.t, tg.key)
	if err != nil {
		res.Err = err
		return res
	}
	res.Key = m.TopicKey
	if empty(tg.t, rc) {
		return res
	}

	v, created, err := g.versions.Commit(ctx, m)
	if err != nil {
		res.Err = err
		return res
	}
	res.Version, res.Bump, res.Created = v.Version, v.Bump, created

	rc.Version = v.Version.String()
	text, err := g.builder.Render(rc)
	if err != nil {
		res.Err = err
		return res
	}
	slug := Slug(m.Title)
	if tg.t == types.ModuleIndex {
		slug = IndexKey
	}
	dir := filepath.Join(g.cfg.OutputDir, project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		res.Err = fmt.Errorf("creating output directory: %w", err)
		return res
	}
	if err := os.WriteFile(filepath.Join(dir, slug+".md"), []byte(text), 0o644); err != nil {
		res.Err = fmt.Errorf("writing module: %w", err)
		return res
	}
	if g.cfg.Changelogs {
		if err := g.versions.WriteChangelog(ctx, m.ID, filepath.Join(dir, slug+".CHANGELOG.md")); err != nil {
			res.Err = fmt.Errorf("writing changelog: %w", err)
			return res
		}
	}
	res.Path = filepath.Join(project, slug+".md")
	g.log.Debug("module written",
		zap.String("project", project),
		zap.String("path", res.Path),
		zap.String("version", rc.Version))
	return res
}

// empty reports whether a faq or howto module has nothing to show.
// Tutorials, role paths and indexes are always written.
func empty(t types.ModuleType, rc types.RenderContext) bool {
	switch t {
	case types.ModuleFAQ:
		return len(rc.FAQs) == 0
	case types.ModuleHowTo:
		return len(rc.Steps) == 0 && len(rc.Definitions) == 0
	}
	return false
}
