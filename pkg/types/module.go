// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ModuleType selects which extractions a module draws on and how it renders.
type ModuleType string

const (
	ModuleTutorial ModuleType = "tutorial"
	ModuleFAQ      ModuleType = "faq"
	ModuleHowTo    ModuleType = "howto"
	ModuleRolePath ModuleType = "role_path"
	ModuleIndex    ModuleType = "index"
)

// ModuleTypes lists every module type.
var ModuleTypes = []ModuleType{ModuleTutorial, ModuleFAQ, ModuleHowTo, ModuleRolePath, ModuleIndex}

// ParseModuleType converts a name into a ModuleType.
func ParseModuleType(s string) (ModuleType, error) {
	for _, t := range ModuleTypes {
		if string(t) == strings.ToLower(strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown module type %q", s)
}

// SemVer is a MAJOR.MINOR.PATCH version number.
type SemVer struct {
	Major int `json:"major" yaml:"major"`
	Minor int `json:"minor" yaml:"minor"`
	Patch int `json:"patch" yaml:"patch"`
}

// InitialVersion is assigned to the first committed snapshot of a module.
var InitialVersion = SemVer{Major: 1}

func (v SemVer) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// IsZero reports whether v is 0.0.0, the version of a module never committed.
func (v SemVer) IsZero() bool {
	return v == SemVer{}
}

// Compare returns -1, 0 or 1 as v is less than, equal to or greater than o.
func (v SemVer) Compare(o SemVer) int {
	for _, d := range [3]int{v.Major - o.Major, v.Minor - o.Minor, v.Patch - o.Patch} {
		switch {
		case d < 0:
			return -1
		case d > 0:
			return 1
		}
	}
	return 0
}

// Less reports whether v sorts before o.
func (v SemVer) Less(o SemVer) bool { return v.Compare(o) < 0 }

// Bump returns the next version for kind.
func (v SemVer) Bump(kind BumpKind) SemVer {
	switch kind {
	case BumpMajor:
		return SemVer{Major: v.Major + 1}
	case BumpMinor:
		return SemVer{Major: v.Major, Minor: v.Minor + 1}
	case BumpPatch:
		return SemVer{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	default:
		return InitialVersion
	}
}

// ParseSemVer parses "X.Y.Z", with or without a leading "v".
func ParseSemVer(s string) (SemVer, error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(s), "v"), ".")
	if len(parts) != 3 {
		return SemVer{}, fmt.Errorf("invalid version %q: want MAJOR.MINOR.PATCH", s)
	}
	var n [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return SemVer{}, fmt.Errorf("invalid version %q: bad component %q", s, p)
		}
		n[i] = v
	}
	return SemVer{Major: n[0], Minor: n[1], Patch: n[2]}, nil
}

// BumpKind classifies the change between two versions.
type BumpKind string

const (
	BumpInitial BumpKind = "initial"
	BumpMajor   BumpKind = "major"
	BumpMinor   BumpKind = "minor"
	BumpPatch   BumpKind = "patch"
)

// Module is a generated, versioned document. Exactly one Module exists per
// (Project, Type, TopicKey).
type Module struct {
	ID          string     `json:"id" yaml:"id"`
	Project     string     `json:"project" yaml:"project"`
	Type        ModuleType `json:"module_type" yaml:"module_type"`
	TopicKey    string     `json:"topic_key" yaml:"topic_key"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`

	// Content is the rendered body without a version stamp.
	Content string `json:"content" yaml:"content"`

	ThemeIDs      []string `json:"theme_ids" yaml:"theme_ids"`
	StepIDs       []string `json:"step_ids" yaml:"step_ids"`
	DefinitionIDs []string `json:"definition_ids" yaml:"definition_ids"`
	FAQIDs        []string `json:"faq_ids" yaml:"faq_ids"`
	DecisionIDs   []string `json:"decision_ids" yaml:"decision_ids"`
	ActionIDs     []string `json:"action_ids" yaml:"action_ids"`
	TopicIDs      []string `json:"topic_ids" yaml:"topic_ids"`

	// Version is the latest committed Version; zero until the first commit.
	Version   SemVer    `json:"version" yaml:"version"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Version is an immutable snapshot of a module's content.
type Version struct {
	ID       string `json:"id" yaml:"id"`
	ModuleID string `json:"module_id" yaml:"module_id"`
	Version  SemVer `json:"version" yaml:"version"`
	Content  string `json:"content" yaml:"content"`

	// Changes is a one-line summary of the structural change.
	Changes string   `json:"changes" yaml:"changes"`
	Bump    BumpKind `json:"bump" yaml:"bump"`

	// Diff is the unified diff from the previous snapshot.
	Diff      string    `json:"diff" yaml:"diff"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
