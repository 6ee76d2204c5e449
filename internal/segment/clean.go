// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package segment

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// boilerplatePattern matches whole lines that carry meeting scaffolding
// rather than content. Markdown heading and bold markers are allowed in
// front of the keyword.
var boilerplatePattern = regexp.MustCompile(`(?i)^\s*(?:#{1,6}\s*)?(?:\*\*)?(?:meeting notes|minutes|agenda|attendees?:|date:|time:|location:|page \d+|confidential|this document)`)

var rulePattern = regexp.MustCompile(`^\s*(?:-{3,}|\*{3,}|_{3,})\s*$`)

var (
	innerSpace = regexp.MustCompile(`(\S)[ \t]{2,}`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
)

var typography = strings.NewReplacer(
	"\u2018", "'", "\u2019", "'", "\u201c", `"`, "\u201d", `"`,
	"\u2013", "-", "\u2014", "-", "\u00a0", " ",
)

// Clean folds text to ASCII where a base letter exists, drops boilerplate
// lines and collapses runs of blank lines to one.
func Clean(text string) string {
	cleaned := cleanLines(text)
	cleaned = blankRuns.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

// cleanLines is Clean without removing lines: boilerplate lines become
// empty so line numbers still refer to the original text.
func cleanLines(text string) string {
	text = fold(text)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if boilerplatePattern.MatchString(line) || rulePattern.MatchString(line) {
			lines[i] = ""
			continue
		}
		lines[i] = strings.TrimRight(innerSpace.ReplaceAllString(line, "$1 "), " \t")
	}
	return strings.Join(lines, "\n")
}

// fold removes combining marks after compatibility decomposition, so an
// accented letter folds to its base letter and an ellipsis to "...".
func fold(text string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, typography.Replace(text))
	if err != nil {
		return text
	}
	return out
}
