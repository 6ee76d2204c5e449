// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package roles

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

const (
	exactScore = 100.0
	nearScore  = 80.0

	// nearPrefix is the shortest shared prefix that counts as a near
	// match, e.g. deploy and deployment.
	nearPrefix = 5

	projectBoost = 1.2
)

// Store is the persistence the mapper writes to.
type Store interface {
	ReplaceRoleMappings(ctx context.Context, project string, mappings []types.RoleMapping) error
}

// Match is one role assigned to a text.
type Match struct {
	Role       string
	Confidence float64
}

// Mapper assigns roles to themes and segments.
type Mapper struct {
	store    Store
	taxonomy Taxonomy
	minScore float64
	log      *zap.Logger
}

// NewMapper returns a Mapper over taxonomy. A nil logger disables logging.
func NewMapper(st Store, taxonomy Taxonomy, cfg types.RolesConfig, log *zap.Logger) *Mapper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mapper{store: st, taxonomy: taxonomy, minScore: cfg.MinConfidence, log: log}
}

// Match scores text against every role and returns those reaching the
// minimum confidence, highest first, ties by role name.
func (m *Mapper) Match(project, text string) []Match {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	folded := cases.Fold().String(project)

	var out []Match
	for _, name := range m.taxonomy.Names() {
		role := m.taxonomy[name]
		c := Confidence(tokens, role.Keywords)
		for _, p := range role.Projects {
			if p != "" && strings.Contains(folded, cases.Fold().String(p)) {
				c = min(100, c*projectBoost)
				break
			}
		}
		if c > 0 && c >= m.minScore {
			out = append(out, Match{Role: name, Confidence: c})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// Confidence scores tokens against keywords from 0 to 100. A keyword
// found as a word or phrase scores 100, one sharing a long prefix with a
// word scores 80. The mean score is scaled by the share of keywords that
// matched.
func Confidence(tokens []string, keywords []string) float64 {
	if len(tokens) == 0 || len(keywords) == 0 {
		return 0
	}
	var (
		matches int
		total   float64
	)
	for _, kw := range keywords {
		kwTokens := tokenize(kw)
		switch {
		case len(kwTokens) == 0:
		case containsPhrase(tokens, kwTokens):
			matches++
			total += exactScore
		case len(kwTokens) == 1 && nearMatch(tokens, kwTokens[0]):
			matches++
			total += nearScore
		}
	}
	if matches == 0 {
		return 0
	}
	n := float64(len(keywords))
	c := total / n * (0.7 + 0.3*float64(matches)/n)
	return min(100, c)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(cases.Fold().String(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsPhrase(tokens, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		ok := true
		for j, p := range phrase {
			if tokens[i+j] != p {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func nearMatch(tokens []string, kw string) bool {
	if utf8.RuneCountInString(kw) < nearPrefix {
		return false
	}
	for _, tok := range tokens {
		if sharedPrefix(tok, kw) >= nearPrefix {
			return true
		}
	}
	return false
}

func sharedPrefix(a, b string) int {
	ar, br := []rune(a), []rune(b)
	n := 0
	for n < len(ar) && n < len(br) && ar[n] == br[n] {
		n++
	}
	return n
}

// MapProject maps the themes of project by their keywords and its segments
// by their text, and replaces the project's stored mappings. It returns
// the number of mappings stored.
func (m *Mapper) MapProject(ctx context.Context, project string, themes []types.Theme, segs []types.Segment) (int, error) {
	var mappings []types.RoleMapping
	for _, th := range themes {
		for _, match := range m.Match(project, strings.Join(th.Keywords, " ")) {
			mappings = append(mappings, types.RoleMapping{
				Project: project, TopicID: th.ID, TopicKind: types.TopicTheme,
				Role: match.Role, Confidence: match.Confidence,
			})
		}
	}
	for _, seg := range segs {
		for _, match := range m.Match(project, seg.Content) {
			mappings = append(mappings, types.RoleMapping{
				Project: project, TopicID: seg.ID, TopicKind: types.TopicSegment,
				Role: match.Role, Confidence: match.Confidence,
			})
		}
	}
	if err := m.store.ReplaceRoleMappings(ctx, project, mappings); err != nil {
		return 0, fmt.Errorf("storing role mappings: %w", err)
	}
	m.log.Debug("roles mapped",
		zap.String("project", project),
		zap.Int("themes", len(themes)),
		zap.Int("segments", len(segs)),
		zap.Int("mappings", len(mappings)),
	)
	return len(mappings), nil
}
