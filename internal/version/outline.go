// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package version

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

// Normalize strips trailing whitespace from every line and trailing blank
// lines, and ends non-empty content with exactly one newline. Normalized
// content is what gets compared and diffed.
func Normalize(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	out := strings.TrimRight(strings.Join(lines, "\n"), "\n")
	if out == "" {
		return ""
	}
	return out + "\n"
}

// Section is a level-2 heading and the number of items beneath it.
type Section struct {
	Title string
	Items int
}

// Outline is the structural shape of a module: its sections in document
// order. Items are level-3 headings and list items.
type Outline struct {
	Sections []Section
}

func (o Outline) lookup() map[string]int {
	m := make(map[string]int, len(o.Sections))
	for _, s := range o.Sections {
		m[s.Title] = s.Items
	}
	return m
}

var markdown = goldmark.New()

// ParseOutline walks the markdown document and groups items by their
// enclosing level-2 heading. Content before the first level-2 heading is
// counted under a section with an empty title, kept only when it has items.
// Sections repeating a title are merged.
func ParseOutline(content string) Outline {
	src := []byte(content)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var (
		out   Outline
		index = map[string]int{}
		cur   = -1
	)
	open := func(title string) {
		if i, ok := index[title]; ok {
			cur = i
			return
		}
		out.Sections = append(out.Sections, Section{Title: title})
		cur = len(out.Sections) - 1
		index[title] = cur
	}
	add := func(n int) {
		if n == 0 {
			return
		}
		if cur < 0 {
			open("")
		}
		out.Sections[cur].Items += n
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			switch {
			case node.Level == 2:
				open(nodeText(node, src))
			case node.Level >= 3:
				add(1)
			}
		case *ast.List:
			add(countListItems(node))
		}
	}
	return out
}

func countListItems(list ast.Node) int {
	count := 0
	_ = ast.Walk(list, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindListItem {
			count++
		}
		return ast.WalkContinue, nil
	})
	return count
}

func nodeText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// Bump classifies the change from prev to next. A missing section or a
// section with fewer items is a major change; a new section or a section
// with more items is minor; anything else is a patch.
func Bump(prev, next Outline) types.BumpKind {
	kind, _ := compare(prev, next)
	return kind
}

// Summarize describes the change from prev to next in one line, for
// example "Major change: removed section Decisions".
func Summarize(prev, next Outline) string {
	kind, reasons := compare(prev, next)
	label := strings.ToUpper(string(kind[:1])) + string(kind[1:]) + " change"
	if len(reasons) == 0 {
		return label + ": text edits"
	}
	return label + ": " + strings.Join(reasons, "; ")
}

func compare(prev, next Outline) (types.BumpKind, []string) {
	after := next.lookup()
	var removed []string
	for _, s := range prev.Sections {
		n, ok := after[s.Title]
		switch {
		case !ok:
			removed = append(removed, "removed section "+sectionName(s.Title))
		case n < s.Items:
			removed = append(removed, fmt.Sprintf("%s lost %d item(s)", sectionName(s.Title), s.Items-n))
		}
	}
	if len(removed) > 0 {
		return types.BumpMajor, removed
	}

	before := prev.lookup()
	var added []string
	for _, s := range next.Sections {
		n, ok := before[s.Title]
		switch {
		case !ok:
			added = append(added, "added section "+sectionName(s.Title))
		case s.Items > n:
			added = append(added, fmt.Sprintf("%s gained %d item(s)", sectionName(s.Title), s.Items-n))
		}
	}
	if len(added) > 0 {
		return types.BumpMinor, added
	}
	return types.BumpPatch, nil
}

func sectionName(title string) string {
	if title == "" {
		return "introduction"
	}
	return title
}
