// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package roles maps themes and segments to the roles of a role taxonomy
// by keyword matching and stores the mappings for role path generation.
package roles

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

// Role is one taxonomy entry.
type Role struct {
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`

	// Projects are name fragments; a match in a project whose name
	// contains one scores higher.
	Projects []string `yaml:"projects"`
}

// Taxonomy maps role names to their definitions.
type Taxonomy map[string]Role

// Names returns the role names in sorted order.
func (t Taxonomy) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadTaxonomy reads the taxonomy at path, or the built-in taxonomy when
// path is empty.
func LoadTaxonomy(path string) (Taxonomy, error) {
	data := defaultTaxonomy
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("reading role taxonomy: %w", err)
		}
	}
	return ParseTaxonomy(data)
}

// ParseTaxonomy decodes a YAML document with a top-level roles map.
func ParseTaxonomy(data []byte) (Taxonomy, error) {
	var doc struct {
		Roles Taxonomy `yaml:"roles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing role taxonomy: %w", err)
	}
	out := make(Taxonomy, len(doc.Roles))
	for name, r := range doc.Roles {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, &types.ValidationError{Field: "role", Reason: "name is empty"}
		}
		var kws []string
		for _, kw := range r.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				kws = append(kws, kw)
			}
		}
		if len(kws) == 0 {
			return nil, &types.ValidationError{Field: "role " + name, Reason: "has no keywords"}
		}
		r.Keywords = kws
		out[name] = r
	}
	return out, nil
}
