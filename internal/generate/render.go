// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

// Renderer turns a render context into module text.
type Renderer interface {
	Render(rc types.RenderContext) (string, error)
}

//go:embed templates/*.md.tmpl
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"oneline": func(s string) string { return strings.Join(strings.Fields(s), " ") },
	"join":    strings.Join,
	"done": func(status string) bool {
		switch strings.ToLower(status) {
		case "completed", "done", "closed":
			return true
		}
		return false
	},
}

// TemplateRenderer renders markdown from the embedded per-type templates.
type TemplateRenderer struct {
	tmpl *template.Template
}

// NewTemplateRenderer parses the embedded templates.
func NewTemplateRenderer() (*TemplateRenderer, error) {
	t, err := template.New("modules").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing module templates: %w", err)
	}
	return &TemplateRenderer{tmpl: t}, nil
}

// Render executes the template named after rc.ModuleType.
func (r *TemplateRenderer) Render(rc types.RenderContext) (string, error) {
	name := string(rc.ModuleType) + ".md.tmpl"
	if r.tmpl.Lookup(name) == nil {
		return "", fmt.Errorf("no template for module type %q", rc.ModuleType)
	}
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, rc); err != nil {
		return "", fmt.Errorf("rendering %s module: %w", rc.ModuleType, err)
	}
	return buf.String(), nil
}

const maxSlugLen = 50

var stripMarks = runes.Remove(runes.In(unicode.Mn))

// Slug returns a lowercase, hyphen-separated file name stem for title.
func Slug(title string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, stripMarks, norm.NFC), title)
	if err != nil {
		folded = title
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimRight(b.String(), "-")
	if len([]rune(s)) > maxSlugLen {
		s = strings.TrimRight(string([]rune(s)[:maxSlugLen]), "-")
	}
	if s == "" {
		return "untitled"
	}
	return s
}

func anchor(title string) string {
	return Slug(title)
}
