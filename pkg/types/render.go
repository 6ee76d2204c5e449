// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// RenderContext is everything a Renderer receives to produce module text.
type RenderContext struct {
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Project     string     `json:"project" yaml:"project"`
	ModuleType  ModuleType `json:"module_type" yaml:"module_type"`

	// Version is empty when rendering the snapshot that gets versioned and
	// set to the committed version when writing output files.
	Version string `json:"version" yaml:"version"`

	TOC         []TOCEntry          `json:"toc" yaml:"toc"`
	Steps       []StepPayload       `json:"steps" yaml:"steps"`
	Definitions []DefinitionPayload `json:"definitions" yaml:"definitions"`
	FAQs        []FAQPayload        `json:"faqs" yaml:"faqs"`
	Decisions   []DecisionPayload   `json:"decisions" yaml:"decisions"`
	Actions     []ActionPayload     `json:"actions" yaml:"actions"`
	Backlinks   []Backlink          `json:"backlinks" yaml:"backlinks"`
	Counts      RenderCounts        `json:"counts" yaml:"counts"`
	Role        string              `json:"role,omitempty" yaml:"role,omitempty"`

	// Themes and Modules are filled for index modules only.
	Themes  []ThemeSummary `json:"themes,omitempty" yaml:"themes,omitempty"`
	Modules []ModuleLink   `json:"modules,omitempty" yaml:"modules,omitempty"`
}

// TOCEntry is one section of the rendered module.
type TOCEntry struct {
	Title  string `json:"title" yaml:"title"`
	Anchor string `json:"anchor" yaml:"anchor"`
	Count  int    `json:"count" yaml:"count"`
}

// Backlink points from a module to a note it was built from.
type Backlink struct {
	NoteID     string `json:"note_id" yaml:"note_id"`
	Title      string `json:"title" yaml:"title"`
	Date       string `json:"date" yaml:"date"`
	SourcePath string `json:"source_path" yaml:"source_path"`
}

// RenderCounts summarizes how many records of each kind a module holds.
type RenderCounts struct {
	Steps       int `json:"steps" yaml:"steps"`
	Definitions int `json:"definitions" yaml:"definitions"`
	FAQs        int `json:"faqs" yaml:"faqs"`
	Decisions   int `json:"decisions" yaml:"decisions"`
	Actions     int `json:"actions" yaml:"actions"`
	Notes       int `json:"notes" yaml:"notes"`
	Themes      int `json:"themes" yaml:"themes"`
}

// ThemeSummary is a theme as listed on an index page.
type ThemeSummary struct {
	Name         string   `json:"name" yaml:"name"`
	Keywords     []string `json:"keywords" yaml:"keywords"`
	SupportCount int      `json:"support_count" yaml:"support_count"`
}

// ModuleLink is a module as listed on an index page.
type ModuleLink struct {
	Title   string     `json:"title" yaml:"title"`
	Type    ModuleType `json:"module_type" yaml:"module_type"`
	Path    string     `json:"path" yaml:"path"`
	Version string     `json:"version" yaml:"version"`
}
