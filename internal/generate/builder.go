// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package generate assembles themes and extractions into modules, commits
// them through the version manager and writes the rendered files.
package generate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/meeting-modules/internal/store"
	"github.com/pdiddy/meeting-modules/internal/version"
	"github.com/pdiddy/meeting-modules/pkg/types"
)

// Store is the persistence the builder reads from.
type Store interface {
	ListThemes(ctx context.Context, project string) ([]types.Theme, error)
	FindTheme(ctx context.Context, project, key string) (types.Theme, error)
	ThemeNoteIDs(ctx context.Context, themeID string) ([]string, error)
	ListNotes(ctx context.Context, project string, includeSuperseded bool) ([]types.Note, error)
	QueryExtractions(ctx context.Context, q store.ExtractionQuery) ([]types.Extraction, error)
	ListModules(ctx context.Context, project string) ([]types.Module, error)
	RoleMappings(ctx context.Context, project string) ([]types.RoleMapping, error)
	RoleNoteIDs(ctx context.Context, project, role string) ([]string, error)
}

// IndexKey is the topic key of a project's index module.
const IndexKey = "index"

var kindsFor = map[types.ModuleType][]types.ExtractionType{
	types.ModuleTutorial: types.ExtractionTypes,
	types.ModuleFAQ:      {types.ExtractFAQ},
	types.ModuleHowTo:    {types.ExtractStep, types.ExtractDefinition},
	types.ModuleRolePath: types.ExtractionTypes,
}

// Builder selects the records behind a module and renders it.
type Builder struct {
	store    Store
	renderer Renderer
	log      *zap.Logger
}

// NewBuilder returns a Builder. A nil logger disables logging.
func NewBuilder(st Store, r Renderer, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{store: st, renderer: r, log: log}
}

// Build assembles the module of type t for key: a theme name or ID for
// tutorial, faq and howto modules, a role for role_path modules and
// IndexKey for the index. The content is rendered without a version stamp.
func (b *Builder) Build(ctx context.Context, project string, t types.ModuleType, key string) (*types.Module, error) {
	m, _, err := b.build(ctx, project, t, key)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Render renders rc with the builder's renderer.
func (b *Builder) Render(rc types.RenderContext) (string, error) {
	return b.renderer.Render(rc)
}

func (b *Builder) build(ctx context.Context, project string, t types.ModuleType, key string) (types.Module, types.RenderContext, error) {
	var (
		m   types.Module
		rc  types.RenderContext
		err error
	)
	switch t {
	case types.ModuleTutorial, types.ModuleFAQ, types.ModuleHowTo:
		m, rc, err = b.themeModule(ctx, project, t, key)
	case types.ModuleRolePath:
		m, rc, err = b.roleModule(ctx, project, key)
	case types.ModuleIndex:
		m, rc, err = b.indexModule(ctx, project)
	default:
		err = fmt.Errorf("unknown module type %q", t)
	}
	if err != nil {
		return types.Module{}, types.RenderContext{}, err
	}

	m.ID = types.ModuleID(project, t, m.TopicKey)
	m.Project = project
	m.Type = t
	m.Title = rc.Title
	m.Description = rc.Description
	m.UpdatedAt = time.Now().UTC()

	rc.Project = project
	rc.ModuleType = t
	rc.Version = ""
	content, err := b.renderer.Render(rc)
	if err != nil {
		return types.Module{}, types.RenderContext{}, err
	}
	m.Content = version.Normalize(content)
	return m, rc, nil
}

func (b *Builder) themeModule(ctx context.Context, project string, t types.ModuleType, key string) (types.Module, types.RenderContext, error) {
	theme, err := b.store.FindTheme(ctx, project, key)
	if err != nil {
		return types.Module{}, types.RenderContext{}, err
	}
	themeNotes, err := b.store.ThemeNoteIDs(ctx, theme.ID)
	if err != nil {
		return types.Module{}, types.RenderContext{}, fmt.Errorf("listing notes of theme %s: %w", theme.Name, err)
	}
	notes, err := b.currentNotes(ctx, project, func(n types.Note) bool { return contains(themeNotes, n.ID) })
	if err != nil {
		return types.Module{}, types.RenderContext{}, err
	}

	m := types.Module{TopicKey: strings.ToLower(theme.Name), ThemeIDs: []string{theme.ID}}
	rc, err := b.content(ctx, project, notes, kindsFor[t], &m)
	if err != nil {
		return types.Module{}, types.RenderContext{}, err
	}
	rc.Title = themeTitle(t, theme.Name)
	rc.Description = fmt.Sprintf("Built from %d meeting note(s) on %s.", len(notes), strings.Join(theme.Keywords, ", "))
	rc.Counts.Themes = 1
	return m, rc, nil
}

func themeTitle(t types.ModuleType, name string) string {
	switch t {
	case types.ModuleFAQ:
		return "FAQ: " + name
	case types.ModuleHowTo:
		return "How-to: " + name
	default:
		return "Tutorial: " + name
	}
}

// roles returns the roles of project keyed by lower-cased name: those
// named in current notes and those the role mapper assigned to its themes
// or segments. The first spelling seen wins.
func (b *Builder) roles(ctx context.Context, project string) (map[string]string, error) {
	notes, err := b.store.ListNotes(ctx, project, false)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	roles := map[string]string{}
	add := func(r string) {
		r = strings.TrimSpace(r)
		if _, ok := roles[strings.ToLower(r)]; !ok && r != "" {
			roles[strings.ToLower(r)] = r
		}
	}
	for _, n := range notes {
		for _, r := range n.Roles {
			add(r)
		}
	}
	mappings, err := b.store.RoleMappings(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("listing role mappings: %w", err)
	}
	for _, m := range mappings {
		add(m.Role)
	}
	return roles, nil
}

func (b *Builder) roleModule(ctx context.Context, project, role string) (types.Module, types.RenderContext, error) {
	mapped, err := b.store.RoleNoteIDs(ctx, project, role)
	if err != nil {
		return types.Module{}, types.RenderContext{}, err
	}
	notes, err := b.currentNotes(ctx, project, func(n types.Note) bool {
		return hasRole(n, role) || contains(mapped, n.ID)
	})
	if err != nil {
		return types.Module{}, types.RenderContext{}, err
	}
	if len(notes) == 0 {
		return types.Module{}, types.RenderContext{}, &types.NotFoundError{Kind: "role", ID: role}
	}

	m := types.Module{TopicKey: strings.ToLower(role)}
	rc, err := b.content(ctx, project, notes, kindsFor[types.ModuleRolePath], &m)
	if err != nil {
		return types.Module{}, types.RenderContext{}, err
	}
	rc.Title = "Learning path: " + role
	rc.Description = fmt.Sprintf("Everything recorded for the %s role in %s.", role, project)
	rc.Role = role
	return m, rc, nil
}

func (b *Builder) indexModule(ctx context.Context, project string) (types.Module, types.RenderContext, error) {
	notes, err := b.store.ListNotes(ctx, project, false)
	if err != nil {
		return types.Module{}, types.RenderContext{}, fmt.Errorf("listing notes: %w", err)
	}
	themes, err := b.store.ListThemes(ctx, project)
	if err != nil {
		return types.Module{}, types.RenderContext{}, fmt.Errorf("listing themes: %w", err)
	}
	extractions, err := b.store.QueryExtractions(ctx, store.ExtractionQuery{Project: project})
	if err != nil {
		return types.Module{}, types.RenderContext{}, fmt.Errorf("listing extractions: %w", err)
	}
	modules, err := b.store.ListModules(ctx, project)
	if err != nil {
		return types.Module{}, types.RenderContext{}, fmt.Errorf("listing modules: %w", err)
	}
	roles, err := b.roles(ctx, project)
	if err != nil {
		return types.Module{}, types.RenderContext{}, err
	}

	current := make(map[string]bool, len(notes))
	for _, n := range notes {
		current[n.ID] = true
	}

	m := types.Module{TopicKey: IndexKey}
	rc := types.RenderContext{
		Title:       project + " - Project Index",
		Description: "Index of all modules and themes for the " + project + " project.",
	}
	for _, e := range extractions {
		if current[e.NoteID] {
			countKind(&rc.Counts, e.Type)
		}
	}
	rc.Counts.Notes = len(notes)
	rc.Counts.Themes = len(themes)
	for _, th := range themes {
		m.ThemeIDs = append(m.ThemeIDs, th.ID)
		rc.Themes = append(rc.Themes, types.ThemeSummary{Name: th.Name, Keywords: th.Keywords, SupportCount: th.SupportCount})
	}
	for _, mod := range modules {
		if !live(mod, m.ThemeIDs, roles) {
			continue
		}
		link := types.ModuleLink{Title: mod.Title, Type: mod.Type, Path: Slug(mod.Title) + ".md"}
		if !mod.Version.IsZero() {
			link.Version = mod.Version.String()
		}
		rc.Modules = append(rc.Modules, link)
	}
	sort.SliceStable(rc.Modules, func(i, j int) bool {
		if rc.Modules[i].Type != rc.Modules[j].Type {
			return rc.Modules[i].Type < rc.Modules[j].Type
		}
		return rc.Modules[i].Title < rc.Modules[j].Title
	})
	return m, rc, nil
}

// live reports whether the index links mod: theme modules whose theme
// still exists and role paths whose role is still present. Modules of
// replaced themes keep their history but drop out of the index.
func live(mod types.Module, themeIDs []string, roles map[string]string) bool {
	switch mod.Type {
	case types.ModuleIndex:
		return false
	case types.ModuleRolePath:
		_, ok := roles[strings.ToLower(mod.TopicKey)]
		return ok
	case types.ModuleTutorial, types.ModuleFAQ, types.ModuleHowTo:
		for _, id := range mod.ThemeIDs {
			if contains(themeIDs, id) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// currentNotes returns the non-superseded notes of project that keep.
func (b *Builder) currentNotes(ctx context.Context, project string, keep func(types.Note) bool) ([]types.Note, error) {
	all, err := b.store.ListNotes(ctx, project, false)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	var out []types.Note
	for _, n := range all {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// content fills the render context and the module's reference lists from
// the extractions of notes restricted to kinds. Identical payloads from
// different notes are shown once.
func (b *Builder) content(ctx context.Context, project string, notes []types.Note, kinds []types.ExtractionType, m *types.Module) (types.RenderContext, error) {
	var rc types.RenderContext
	if len(notes) == 0 {
		return rc, nil
	}
	ids := make([]string, len(notes))
	for i, n := range notes {
		ids[i] = n.ID
		rc.Backlinks = append(rc.Backlinks, backlink(n))
	}
	rc.Counts.Notes = len(notes)

	extractions, err := b.store.QueryExtractions(ctx, store.ExtractionQuery{Project: project, Types: kinds, NoteIDs: ids})
	if err != nil {
		return rc, fmt.Errorf("querying extractions: %w", err)
	}

	seen := make(map[string]bool)
	for _, e := range extractions {
		h := string(e.Type) + ":" + types.PayloadHash(e.Payload)
		if seen[h] {
			continue
		}
		seen[h] = true

		switch p := e.Payload.(type) {
		case types.StepPayload:
			p.Number = len(rc.Steps) + 1
			rc.Steps = append(rc.Steps, p)
			m.StepIDs = append(m.StepIDs, e.ID)
		case types.DefinitionPayload:
			rc.Definitions = append(rc.Definitions, p)
			m.DefinitionIDs = append(m.DefinitionIDs, e.ID)
		case types.FAQPayload:
			rc.FAQs = append(rc.FAQs, p)
			m.FAQIDs = append(m.FAQIDs, e.ID)
		case types.DecisionPayload:
			rc.Decisions = append(rc.Decisions, p)
			m.DecisionIDs = append(m.DecisionIDs, e.ID)
		case types.ActionPayload:
			rc.Actions = append(rc.Actions, p)
			m.ActionIDs = append(m.ActionIDs, e.ID)
		case types.TopicPayload:
			m.TopicIDs = append(m.TopicIDs, e.ID)
		}
		countKind(&rc.Counts, e.Type)
	}
	sort.SliceStable(rc.Definitions, func(i, j int) bool {
		return strings.ToLower(rc.Definitions[i].Term) < strings.ToLower(rc.Definitions[j].Term)
	})
	rc.TOC = toc(rc)
	return rc, nil
}

func toc(rc types.RenderContext) []types.TOCEntry {
	var out []types.TOCEntry
	add := func(title string, n int) {
		if n > 0 {
			out = append(out, types.TOCEntry{Title: title, Anchor: anchor(title), Count: n})
		}
	}
	add("Steps", len(rc.Steps))
	add("Key Definitions", len(rc.Definitions))
	add("Frequently Asked Questions", len(rc.FAQs))
	add("Decisions", len(rc.Decisions))
	add("Action Items", len(rc.Actions))
	return out
}

func countKind(c *types.RenderCounts, t types.ExtractionType) {
	switch t {
	case types.ExtractStep:
		c.Steps++
	case types.ExtractDefinition:
		c.Definitions++
	case types.ExtractFAQ:
		c.FAQs++
	case types.ExtractDecision:
		c.Decisions++
	case types.ExtractAction:
		c.Actions++
	}
}

func backlink(n types.Note) types.Backlink {
	bl := types.Backlink{NoteID: n.ID, Title: n.Title, SourcePath: n.SourcePath}
	if !n.Date.IsZero() {
		bl.Date = n.Date.Format(types.DateLayout)
	}
	return bl
}

func hasRole(n types.Note, role string) bool {
	for _, r := range n.Roles {
		if strings.EqualFold(strings.TrimSpace(r), strings.TrimSpace(role)) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
