// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// StoreConfig holds settings for the persistent store.
type StoreConfig struct {
	// DataDir is the working directory; the database lives at
	// DataDir/index/meeting-modules.db.
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
}

// IngestConfig holds settings for the ingest stage.
type IngestConfig struct {
	// InputDirs are scanned when ingest is run without arguments.
	InputDirs []string `json:"input_dirs" yaml:"input_dirs" mapstructure:"input_dirs"`

	// DefaultProject is used when neither front matter nor the parent
	// directory names a project (default "default").
	DefaultProject string `json:"default_project" yaml:"default_project" mapstructure:"default_project"`

	// ItemTimeout bounds the time spent on one file (default 30s).
	ItemTimeout time.Duration `json:"item_timeout" yaml:"item_timeout" mapstructure:"item_timeout"`

	// Markitdown enables PDF and DOCX parsing through the markitdown
	// container image.
	Markitdown bool `json:"markitdown" yaml:"markitdown" mapstructure:"markitdown"`
}

// SegmentConfig holds settings for the segmentation stage.
type SegmentConfig struct {
	// MinLength drops blocks shorter than this many runes (default 3).
	MinLength int `json:"min_length" yaml:"min_length" mapstructure:"min_length"`
}

// AnalysisConfig holds settings for theme analysis. K and Seed fully
// determine the clustering for a given segment set.
type AnalysisConfig struct {
	// K is the number of clusters (default 6).
	K int `json:"k" yaml:"k" mapstructure:"k"`

	// Seed initializes the k-means random source (default 42).
	Seed int64 `json:"seed" yaml:"seed" mapstructure:"seed"`

	// MinSupport discards clusters with fewer segments (default 3).
	MinSupport int `json:"min_support" yaml:"min_support" mapstructure:"min_support"`

	// TopKeywords is the number of keywords kept per theme (default 10).
	TopKeywords int `json:"top_keywords" yaml:"top_keywords" mapstructure:"top_keywords"`

	// MaxFeatures caps the TF-IDF vocabulary (default 1000).
	MaxFeatures int `json:"max_features" yaml:"max_features" mapstructure:"max_features"`

	// MaxIterations bounds Lloyd iterations per restart (default 100).
	MaxIterations int `json:"max_iterations" yaml:"max_iterations" mapstructure:"max_iterations"`

	// Restarts is the number of seeded k-means runs; the lowest inertia wins (default 10).
	Restarts int `json:"restarts" yaml:"restarts" mapstructure:"restarts"`

	// Bigrams adds adjacent token pairs to the vocabulary (default true).
	Bigrams bool `json:"bigrams" yaml:"bigrams" mapstructure:"bigrams"`

	// CacheSize is the number of tokenized segments kept in memory (default 4096).
	CacheSize int `json:"cache_size" yaml:"cache_size" mapstructure:"cache_size"`

	// Concurrency is the number of projects analyzed at once (default 4).
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
}

// ExtractionConfig holds settings for the extraction stage.
type ExtractionConfig struct {
	// MaxRetries is the number of retries for a failing extractor call (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// ItemTimeout bounds the time spent on one note (default 60s).
	ItemTimeout time.Duration `json:"item_timeout" yaml:"item_timeout" mapstructure:"item_timeout"`

	// Extractor selects the extraction backend: "rules" (default) or "claude".
	Extractor string `json:"extractor" yaml:"extractor" mapstructure:"extractor"`

	// Model is the Claude model identifier used by the claude extractor.
	Model string `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`

	// APIKey authenticates the claude extractor. When empty it is read from
	// the anthropic-api-key secret.
	APIKey string `json:"-" yaml:"-" mapstructure:"api_key"`
}

// RolesConfig holds settings for mapping themes and segments to roles.
type RolesConfig struct {
	// Taxonomy is a YAML role taxonomy file. Empty uses the built-in one.
	Taxonomy string `json:"taxonomy" yaml:"taxonomy" mapstructure:"taxonomy"`

	// MinConfidence drops role matches scoring below it, 0 to 100 (default 20).
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence" mapstructure:"min_confidence"`
}

// GenerationConfig holds settings for module generation.
type GenerationConfig struct {
	// OutputDir receives rendered modules as OutputDir/<project>/<slug>.md.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// Concurrency is the number of projects generated at once (default 4).
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// Changelogs writes a CHANGELOG file next to each module (default true).
	Changelogs bool `json:"changelogs" yaml:"changelogs" mapstructure:"changelogs"`
}

// VersioningConfig holds settings for the version manager.
type VersioningConfig struct {
	// ContextLines is the unified diff context (default 3).
	ContextLines int `json:"context_lines" yaml:"context_lines" mapstructure:"context_lines"`

	// MaxConflictRetries bounds re-reads after a VersionConflictError (default 3).
	MaxConflictRetries int `json:"max_conflict_retries" yaml:"max_conflict_retries" mapstructure:"max_conflict_retries"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Store      StoreConfig      `json:"store" yaml:"store" mapstructure:"store"`
	Ingest     IngestConfig     `json:"ingest" yaml:"ingest" mapstructure:"ingest"`
	Segment    SegmentConfig    `json:"segment" yaml:"segment" mapstructure:"segment"`
	Analysis   AnalysisConfig   `json:"analysis" yaml:"analysis" mapstructure:"analysis"`
	Roles      RolesConfig      `json:"roles" yaml:"roles" mapstructure:"roles"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction" mapstructure:"extraction"`
	Generation GenerationConfig `json:"generation" yaml:"generation" mapstructure:"generation"`
	Versioning VersioningConfig `json:"versioning" yaml:"versioning" mapstructure:"versioning"`
}

// DefaultPipelineConfig returns the configuration used when no file,
// environment variable or flag overrides a value.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Store: StoreConfig{DataDir: "data"},
		Ingest: IngestConfig{
			InputDirs:      []string{"notes"},
			DefaultProject: "default",
			ItemTimeout:    30 * time.Second,
		},
		Segment: SegmentConfig{MinLength: 3},
		Analysis: AnalysisConfig{
			K:             6,
			Seed:          42,
			MinSupport:    3,
			TopKeywords:   10,
			MaxFeatures:   1000,
			MaxIterations: 100,
			Restarts:      10,
			Bigrams:       true,
			CacheSize:     4096,
			Concurrency:   4,
		},
		Roles:      RolesConfig{MinConfidence: 20},
		Extraction: ExtractionConfig{MaxRetries: 3, ItemTimeout: 60 * time.Second, Extractor: "rules", Model: "claude-sonnet-4-5-20250929"},
		Generation: GenerationConfig{OutputDir: "outputs", Concurrency: 4, Changelogs: true},
		Versioning: VersioningConfig{ContextLines: 3, MaxConflictRetries: 3},
	}
}
