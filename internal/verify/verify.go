// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package verify checks the stored pipeline state against the invariants
// every stage maintains, and the rendered output for broken links.
package verify

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/meeting-modules/internal/store"
	"github.com/pdiddy/meeting-modules/pkg/types"
)

// Store is the persistence the verifier reads.
type Store interface {
	Projects(ctx context.Context) ([]string, error)
	ListNotes(ctx context.Context, project string, includeSuperseded bool) ([]types.Note, error)
	SegmentsForNote(ctx context.Context, noteID string) ([]types.Segment, error)
	ListThemes(ctx context.Context, project string) ([]types.Theme, error)
	QueryExtractions(ctx context.Context, q store.ExtractionQuery) ([]types.Extraction, error)
	ResolveSegments(ctx context.Context, ids []string) (found []types.Segment, missing []string, err error)
	ListModules(ctx context.Context, project string) ([]types.Module, error)
	ListVersions(ctx context.Context, moduleID string) ([]types.Version, error)
}

// Options configures a verification run.
type Options struct {
	// Project limits the checks to one project; empty checks all.
	Project string

	// MinSupport is the smallest allowed theme support count.
	MinSupport int

	// OutputDir holds rendered modules; links are checked when it exists.
	OutputDir string

	// Strict turns advisory checks into failures.
	Strict bool
}

// Check is the outcome of one verification.
type Check struct {
	Name     string
	Passed   bool
	Advisory bool
	Message  string
	Problems []string
}

// Report collects every check of a run.
type Report struct {
	Checks []Check
}

// Passed reports whether no required check failed.
func (r Report) Passed() bool {
	return r.Failed() == 0
}

// Failed returns the number of failed required checks.
func (r Report) Failed() int {
	n := 0
	for _, c := range r.Checks {
		if !c.Passed && !c.Advisory {
			n++
		}
	}
	return n
}

// Verifier runs the checks.
type Verifier struct {
	store Store
	log   *zap.Logger
}

// New returns a Verifier. A nil logger disables logging.
func New(st Store, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{store: st, log: log}
}

type checkFunc func(ctx context.Context, projects []string, opts Options) Check

// Run executes every check and writes one line per check to w. A check
// that cannot read the store fails; the others still run.
func (v *Verifier) Run(ctx context.Context, opts Options, w io.Writer) (Report, error) {
	projects := []string{opts.Project}
	if opts.Project == "" {
		var err error
		if projects, err = v.store.Projects(ctx); err != nil {
			return Report{}, fmt.Errorf("listing projects: %w", err)
		}
	}

	checks := []checkFunc{
		v.checkNotes,
		v.checkSegments,
		v.checkThemes,
		v.checkExtractions,
		v.checkSegmentRefs,
		v.checkVersions,
		v.checkThemeModules,
		v.checkLinks,
	}

	var report Report
	for _, fn := range checks {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		c := fn(ctx, projects, opts)
		if opts.Strict {
			c.Advisory = false
		}
		report.Checks = append(report.Checks, c)

		status := "ok     "
		switch {
		case !c.Passed && c.Advisory:
			status = "warning"
		case !c.Passed:
			status = "failed "
		}
		fmt.Fprintf(w, "%s %s: %s\n", status, c.Name, c.Message)
		for _, p := range c.Problems {
			fmt.Fprintf(w, "        - %s\n", p)
		}
	}

	fmt.Fprintf(w, "\nchecks: %d, failed: %d\n", len(report.Checks), report.Failed())
	return report, nil
}

func storeError(name string, err error) Check {
	return Check{Name: name, Message: fmt.Sprintf("error: %v", err)}
}

// result builds a check that passes when problems is empty.
func result(name string, problems []string, ok, failed string) Check {
	c := Check{Name: name, Passed: len(problems) == 0, Problems: problems, Message: ok}
	if !c.Passed {
		c.Message = failed
	}
	return c
}

// checkNotes requires at least one note and one stored note per content hash,
// with the ID derived from that hash.
func (v *Verifier) checkNotes(ctx context.Context, projects []string, _ Options) Check {
	const name = "Notes"
	var (
		problems []string
		count    int
		byHash   = map[string]string{}
	)
	for _, p := range projects {
		notes, err := v.store.ListNotes(ctx, p, true)
		if err != nil {
			return storeError(name, err)
		}
		count += len(notes)
		for _, n := range notes {
			if prev, ok := byHash[n.ContentHash]; ok && prev != n.ID {
				problems = append(problems, fmt.Sprintf("notes %s and %s share content hash %s", prev, n.ID, n.ContentHash))
			}
			byHash[n.ContentHash] = n.ID
			if types.NoteID(n.ContentHash) != n.ID {
				problems = append(problems, fmt.Sprintf("note %s does not match its content hash", n.ID))
			}
		}
	}
	if count == 0 {
		problems = append(problems, "no notes found")
	}
	return result(name, problems, fmt.Sprintf("%d note(s), hashes unique", count), fmt.Sprintf("%d problem(s)", len(problems)))
}

// checkSegments requires segment order to be non-decreasing within each
// current note and every segment ID to match its note, order and content.
func (v *Verifier) checkSegments(ctx context.Context, projects []string, _ Options) Check {
	const name = "Segments"
	var (
		problems []string
		count    int
	)
	for _, p := range projects {
		notes, err := v.store.ListNotes(ctx, p, false)
		if err != nil {
			return storeError(name, err)
		}
		for _, n := range notes {
			segs, err := v.store.SegmentsForNote(ctx, n.ID)
			if err != nil {
				return storeError(name, err)
			}
			count += len(segs)
			for i, s := range segs {
				if i > 0 && s.Order < segs[i-1].Order {
					problems = append(problems, fmt.Sprintf("note %s: segment order decreases at %d", n.ID, s.Order))
				}
				if types.SegmentID(n.ID, s.Order, s.Content) != s.ID {
					problems = append(problems, fmt.Sprintf("note %s: segment %s does not match its content", n.ID, s.ID))
				}
			}
		}
	}
	if count == 0 {
		problems = append(problems, "no segments found")
	}
	return result(name, problems, fmt.Sprintf("%d segment(s) in order", count), fmt.Sprintf("%d problem(s)", len(problems)))
}

// checkThemes requires every persisted theme to meet the minimum support
// and to have as many members as its support count.
func (v *Verifier) checkThemes(ctx context.Context, projects []string, opts Options) Check {
	const name = "Themes"
	var (
		problems []string
		count    int
	)
	for _, p := range projects {
		themes, err := v.store.ListThemes(ctx, p)
		if err != nil {
			return storeError(name, err)
		}
		count += len(themes)
		for _, th := range themes {
			if th.SupportCount < opts.MinSupport {
				problems = append(problems, fmt.Sprintf("%s/%s: support %d is below %d", p, th.Name, th.SupportCount, opts.MinSupport))
			}
			if th.SupportCount != len(th.SegmentIDs) {
				problems = append(problems, fmt.Sprintf("%s/%s: support %d but %d member(s)", p, th.Name, th.SupportCount, len(th.SegmentIDs)))
			}
		}
	}
	c := result(name, problems, fmt.Sprintf("%d theme(s) meet min support %d", count, opts.MinSupport), fmt.Sprintf("%d problem(s)", len(problems)))
	if count == 0 {
		c.Passed, c.Advisory, c.Message = false, true, "no themes found"
	}
	return c
}

// checkExtractions reports whether steps and definitions were extracted.
func (v *Verifier) checkExtractions(ctx context.Context, projects []string, _ Options) Check {
	const name = "Extractions"
	counts := map[types.ExtractionType]int{}
	for _, p := range projects {
		es, err := v.store.QueryExtractions(ctx, store.ExtractionQuery{Project: p})
		if err != nil {
			return storeError(name, err)
		}
		for _, e := range es {
			counts[e.Type]++
		}
	}
	var parts []string
	for _, t := range types.ExtractionTypes {
		parts = append(parts, fmt.Sprintf("%d %s", counts[t], t))
	}
	c := Check{Name: name, Passed: true, Advisory: true, Message: strings.Join(parts, ", ")}
	if counts[types.ExtractStep] == 0 || counts[types.ExtractDefinition] == 0 {
		c.Passed = false
		c.Message = "missing steps or definitions: " + c.Message
	}
	return c
}

// checkSegmentRefs reports extractions whose segment references no longer
// resolve. Such references are allowed to dangle after re-segmentation.
func (v *Verifier) checkSegmentRefs(ctx context.Context, projects []string, _ Options) Check {
	const name = "Segment references"
	var ids []string
	seen := map[string]bool{}
	for _, p := range projects {
		es, err := v.store.QueryExtractions(ctx, store.ExtractionQuery{Project: p})
		if err != nil {
			return storeError(name, err)
		}
		for _, e := range es {
			for _, id := range e.SegmentIDs {
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
	}
	_, missing, err := v.store.ResolveSegments(ctx, ids)
	if err != nil {
		return storeError(name, err)
	}
	c := Check{Name: name, Passed: len(missing) == 0, Advisory: true,
		Message: fmt.Sprintf("%d of %d reference(s) resolve", len(ids)-len(missing), len(ids))}
	return c
}

// checkThemeModules reports tutorial, faq and how-to modules whose theme
// was replaced by a later analysis. Their history is kept but the index
// no longer links them.
func (v *Verifier) checkThemeModules(ctx context.Context, projects []string, _ Options) Check {
	const name = "Theme modules"
	var (
		problems []string
		count    int
	)
	for _, p := range projects {
		themes, err := v.store.ListThemes(ctx, p)
		if err != nil {
			return storeError(name, err)
		}
		current := make(map[string]bool, len(themes))
		for _, th := range themes {
			current[th.ID] = true
		}
		mods, err := v.store.ListModules(ctx, p)
		if err != nil {
			return storeError(name, err)
		}
		for _, m := range mods {
			switch m.Type {
			case types.ModuleTutorial, types.ModuleFAQ, types.ModuleHowTo:
			default:
				continue
			}
			count++
			orphan := true
			for _, id := range m.ThemeIDs {
				if current[id] {
					orphan = false
				}
			}
			if orphan {
				problems = append(problems, fmt.Sprintf("%s/%s: theme no longer exists", p, strings.TrimSpace(m.Title)))
			}
		}
	}
	c := result(name, problems, fmt.Sprintf("%d theme module(s) have current themes", count), fmt.Sprintf("%d orphaned module(s)", len(problems)))
	c.Advisory = true
	return c
}

// checkVersions requires each module's history to be strictly increasing
// and the module row to carry its latest version and content.
func (v *Verifier) checkVersions(ctx context.Context, projects []string, _ Options) Check {
	const name = "Versions"
	var (
		problems []string
		modules  int
		total    int
	)
	for _, p := range projects {
		mods, err := v.store.ListModules(ctx, p)
		if err != nil {
			return storeError(name, err)
		}
		for _, m := range mods {
			modules++
			versions, err := v.store.ListVersions(ctx, m.ID)
			if err != nil {
				return storeError(name, err)
			}
			total += len(versions)
			problems = append(problems, versionProblems(m, versions)...)
		}
	}
	return result(name, problems,
		fmt.Sprintf("%d module(s), %d version(s), histories increasing", modules, total),
		fmt.Sprintf("%d problem(s)", len(problems)))
}

func versionProblems(m types.Module, versions []types.Version) []string {
	label := m.Project + "/" + m.Title
	if len(versions) == 0 {
		if m.Version.IsZero() {
			return nil
		}
		return []string{fmt.Sprintf("%s: at %s but has no history", label, m.Version)}
	}
	var problems []string
	for i := 1; i < len(versions); i++ {
		if !versions[i-1].Version.Less(versions[i].Version) {
			problems = append(problems, fmt.Sprintf("%s: %s does not follow %s", label, versions[i].Version, versions[i-1].Version))
		}
	}
	latest := versions[len(versions)-1]
	if m.Version != latest.Version {
		problems = append(problems, fmt.Sprintf("%s: module at %s but latest version is %s", label, m.Version, latest.Version))
	}
	if m.Content != latest.Content {
		problems = append(problems, fmt.Sprintf("%s: content differs from version %s", label, latest.Version))
	}
	return problems
}

// linkPattern matches inline markdown links to local .md files.
var linkPattern = regexp.MustCompile(`\[[^\]]*\]\(([^)\s#]+\.md)(?:#[^)]*)?\)`)

// checkLinks scans rendered modules for links to files that do not exist.
func (v *Verifier) checkLinks(_ context.Context, projects []string, opts Options) Check {
	const name = "Rendered links"
	if opts.OutputDir == "" {
		return Check{Name: name, Passed: true, Advisory: true, Message: "no output directory configured"}
	}
	var (
		problems []string
		files    int
	)
	for _, p := range projects {
		dir := filepath.Join(opts.OutputDir, p)
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return storeError(name, err)
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			files++
			data, err := os.ReadFile(filepath.Join(dir, n))
			if err != nil {
				return storeError(name, err)
			}
			for _, target := range brokenLinks(dir, string(data)) {
				problems = append(problems, fmt.Sprintf("%s/%s links to missing %s", p, n, target))
			}
		}
	}
	return result(name, problems, fmt.Sprintf("%d file(s), all links resolve", files), fmt.Sprintf("%d broken link(s)", len(problems)))
}

func brokenLinks(dir, text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range linkPattern.FindAllStringSubmatch(text, -1) {
		target := m[1]
		if seen[target] || strings.Contains(target, "://") {
			continue
		}
		seen[target] = true
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(target))); err != nil {
			out = append(out, target)
		}
	}
	return out
}
