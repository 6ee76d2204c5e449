// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff returns the unified diff from a to b with context lines around
// each hunk. Both sides are normalized first. Equal content yields "".
func Diff(a, b, labelA, labelB string, context int) (string, error) {
	ud := difflib.UnifiedDiff{
		A:        splitLines(Normalize(a)),
		B:        splitLines(Normalize(b)),
		FromFile: labelA,
		ToFile:   labelB,
		Context:  context,
	}
	out, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", fmt.Errorf("computing diff: %w", err)
	}
	return out, nil
}

// splitLines keeps line terminators. Unlike difflib.SplitLines it does not
// invent an empty last line when the text ends with a newline.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

type hunk struct {
	oldStart, oldLen int
	lines            []string
}

// Apply patches a with a unified diff produced by Diff and returns the
// result. Context and removed lines must match a exactly.
func Apply(a, diff string) (string, error) {
	src := splitLines(Normalize(a))
	hunks, err := parseHunks(diff)
	if err != nil {
		return "", err
	}

	var (
		out []string
		pos int
	)
	for i, h := range hunks {
		start := h.oldStart - 1
		if h.oldLen == 0 {
			start = h.oldStart
		}
		if start < pos || start > len(src) {
			return "", fmt.Errorf("hunk %d: start line %d out of range", i+1, h.oldStart)
		}
		out = append(out, src[pos:start]...)
		pos = start

		for _, l := range h.lines {
			op, body := l[0], l[1:]
			switch op {
			case ' ', '-':
				if pos >= len(src) || src[pos] != body {
					return "", fmt.Errorf("hunk %d: line %d does not match", i+1, pos+1)
				}
				if op == ' ' {
					out = append(out, body)
				}
				pos++
			case '+':
				out = append(out, body)
			}
		}
	}
	out = append(out, src[pos:]...)
	return strings.Join(out, ""), nil
}

func parseHunks(diff string) ([]hunk, error) {
	var (
		hunks []hunk
		cur   *hunk
	)
	for _, l := range splitLines(diff) {
		if m := hunkHeader.FindStringSubmatch(l); m != nil {
			start, err := atoi(m[1])
			if err != nil {
				return nil, err
			}
			n, err := rangeLen(m[2])
			if err != nil {
				return nil, err
			}
			hunks = append(hunks, hunk{oldStart: start, oldLen: n})
			cur = &hunks[len(hunks)-1]
			continue
		}
		if cur == nil {
			// File headers precede the first hunk.
			continue
		}
		switch l[0] {
		case ' ', '-', '+':
			cur.lines = append(cur.lines, l)
		case '\\':
		default:
			return nil, fmt.Errorf("malformed diff line %q", strings.TrimRight(l, "\n"))
		}
	}
	return hunks, nil
}

func rangeLen(s string) (int, error) {
	if s == "" {
		return 1, nil
	}
	return atoi(s)
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad hunk range %q: %w", s, err)
	}
	return n, nil
}
