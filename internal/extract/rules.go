// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pdiddy/meeting-modules/pkg/types"
)

var (
	listMarker = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*+\x{2022}])\s+(?:\[[ xX]\]\s+)?(.*)$`)
	imperative = regexp.MustCompile(`^[A-Z][a-z]+\s`)

	actionLine   = regexp.MustCompile(`(?i)^action(?:\s+item)?\s*[.:]\s*(.+)$`)
	decisionLine = regexp.MustCompile(`(?i)^(?:decided|decision)\s*:\s*(.+)$`)
	decidedPhrase = regexp.MustCompile(`(?i)\b(?:we|the team|the group)\s+decided\s+(?:to\s+)?([^.]+)`)
	because      = regexp.MustCompile(`(?i)\s+because\s+`)
	makerPhrase  = regexp.MustCompile(`\b(?:by|from|made by)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)

	questionPrefix = regexp.MustCompile(`(?i)^(?:q|question)\s*[.:]\s*`)
	answerPrefix   = regexp.MustCompile(`(?i)^(?:a|answer)\s*[.:]\s*`)

	verbDefinition  = regexp.MustCompile(`^([A-Z][A-Za-z ]{1,48}?)\s+(?:is|are|means|defines?)\s+([^.]+)`)
	colonDefinition = regexp.MustCompile(`^([A-Z][A-Za-z ]{1,38}[A-Za-z]):\s+([^.]+)`)
	leadingArticle  = regexp.MustCompile(`^(?i:the|a|an)\s+`)

	ownerPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i:assigned to|owner\s*:)\s*([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`),
		regexp.MustCompile(`@([A-Za-z][\w.-]*)`),
		regexp.MustCompile(`^([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)\s+(?:will|to|should)\b`),
		regexp.MustCompile(`\bby\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`),
	}
	duePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`),
		regexp.MustCompile(`(?i:due|by|deadline)[:\s]+([A-Z][a-z]+\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4})`),
		regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{2,4})\b`),
		regexp.MustCompile(`(?i:due|by|deadline)[:\s]+([A-Z][a-z]+\.?\s+\d{1,2}(?:st|nd|rd|th)?)\b`),
	}
	ordinal      = regexp.MustCompile(`(\d)(?:st|nd|rd|th)\b`)
	statusPhrase = regexp.MustCompile(`(?i)\b(?:status|state)[:\s]+(pending|in progress|completed|done|open|closed)`)
)

// reservedTerms are labels that look like "Term: text" but are not
// definitions.
var reservedTerms = map[string]bool{
	"q": true, "question": true, "a": true, "answer": true, "action": true, "action item": true,
	"decision": true, "decided": true, "owner": true, "status": true, "due": true, "note": true,
	"notes": true, "summary": true, "next steps": true, "update": true, "updates": true,
}

var pronouns = map[string]bool{
	"it": true, "this": true, "that": true, "there": true, "these": true, "those": true,
	"we": true, "they": true, "he": true, "she": true, "i": true, "you": true, "what": true, "which": true,
}

// calendarWords keep "by Friday" from being read as an owner.
var calendarWords = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true, "friday": true,
	"saturday": true, "sunday": true, "today": true, "tomorrow": true, "january": true,
	"february": true, "march": true, "april": true, "may": true, "june": true, "july": true,
	"august": true, "september": true, "october": true, "november": true, "december": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true, "jul": true, "aug": true,
	"sep": true, "sept": true, "oct": true, "nov": true, "dec": true, "end": true, "next": true, "eod": true,
}

var dueLayouts = []string{
	types.DateLayout, "January 2 2006", "Jan 2 2006", "1/2/2006", "1/2/06",
}

var yearlessLayouts = []string{"January 2", "Jan 2"}

const maxStepTitle = 100

// RuleExtractor finds items with line patterns. It is deterministic:
// the same segments always yield the same candidates in the same order.
type RuleExtractor struct{}

// noteLine is one line of segment content with its provenance.
type noteLine struct {
	text    string
	segment string
	number  int
	heading string
	listed  bool
}

// Extract implements Extractor.
func (RuleExtractor) Extract(ctx context.Context, note types.Note, segs []types.Segment) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ordered := make([]types.Segment, len(segs))
	copy(ordered, segs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	lines := flatten(ordered)
	ref := note.Date
	if ref.IsZero() {
		ref = time.Now()
	}

	var (
		out   []Candidate
		steps int
		terms = make(map[string]bool)
	)
	for i := 0; i < len(lines); i++ {
		ln := lines[i]
		text := ln.text

		if m := actionLine.FindStringSubmatch(text); m != nil {
			out = append(out, single(ln, actionPayload(strings.TrimSpace(m[1]), ref)))
			continue
		}
		if p, ok := decision(text); ok {
			out = append(out, single(ln, p))
			continue
		}
		if c, consumed, ok := faq(lines, i); ok {
			out = append(out, c)
			i += consumed
			continue
		}
		if ln.listed && imperative.MatchString(text) && utf8.RuneCountInString(text) > 5 {
			steps++
			out = append(out, single(ln, types.StepPayload{Number: steps, Title: truncate(text, maxStepTitle), Description: text}))
			continue
		}
		if p, ok := definition(text, ln.heading); ok && !terms[strings.ToLower(p.Term)] {
			terms[strings.ToLower(p.Term)] = true
			out = append(out, single(ln, p))
		}
	}
	return append(out, topics(ordered)...), nil
}

func flatten(segs []types.Segment) []noteLine {
	var lines []noteLine
	for _, seg := range segs {
		for i, raw := range strings.Split(seg.Content, "\n") {
			ln := noteLine{segment: seg.ID, number: seg.LineStart + i, heading: seg.Heading}
			if m := listMarker.FindStringSubmatch(raw); m != nil {
				ln.text, ln.listed = strings.TrimSpace(m[1]), true
			} else {
				ln.text = strings.TrimSpace(raw)
			}
			if ln.text != "" {
				lines = append(lines, ln)
			}
		}
	}
	return lines
}

func single(ln noteLine, p types.Payload) Candidate {
	return Candidate{Payload: p, SegmentIDs: []string{ln.segment}, LineStart: ln.number, LineEnd: ln.number}
}

func actionPayload(text string, ref time.Time) types.ActionPayload {
	p := types.ActionPayload{Action: text, Owner: owner(text), DueDate: dueDate(text, ref), Status: "pending"}
	if m := statusPhrase.FindStringSubmatch(text); m != nil {
		p.Status = strings.ToLower(m[1])
	}
	return p
}

func owner(text string) string {
	for _, re := range ownerPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			name := strings.TrimRight(strings.TrimSpace(m[1]), ".-")
			first := strings.ToLower(strings.Fields(name)[0])
			if calendarWords[first] || pronouns[first] {
				continue
			}
			return name
		}
	}
	return ""
}

// dueDate finds a date in text and returns it as YYYY-MM-DD. Dates
// without a year take the year of ref.
func dueDate(text string, ref time.Time) string {
	for _, re := range duePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		s := ordinal.ReplaceAllString(m[1], "$1")
		s = strings.Join(strings.Fields(strings.NewReplacer(",", " ", ".", "").Replace(s)), " ")
		for _, layout := range dueLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format(types.DateLayout)
			}
		}
		for _, layout := range yearlessLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return time.Date(ref.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Format(types.DateLayout)
			}
		}
	}
	return ""
}

func decision(text string) (types.DecisionPayload, bool) {
	var body string
	if m := decisionLine.FindStringSubmatch(text); m != nil {
		body = m[1]
	} else if m := decidedPhrase.FindStringSubmatch(text); m != nil {
		body = m[1]
	} else {
		return types.DecisionPayload{}, false
	}
	body = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), "."))
	if utf8.RuneCountInString(body) <= 5 {
		return types.DecisionPayload{}, false
	}

	p := types.DecisionPayload{Decision: body}
	if parts := because.Split(body, 2); len(parts) == 2 {
		p.Decision, p.Rationale = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	for _, m := range makerPhrase.FindAllStringSubmatch(text, -1) {
		if !calendarWords[strings.ToLower(strings.Fields(m[1])[0])] {
			p.DecisionMaker = m[1]
			break
		}
	}
	return p, true
}

// faq reads a question at lines[i] and its answer, inline or on the next
// line. The answer line needs an "A:" marker unless the question had a
// "Q:" marker or both lines share a segment. consumed is the number of
// extra lines used.
func faq(lines []noteLine, i int) (Candidate, int, bool) {
	ln := lines[i]
	text := ln.text
	marked := questionPrefix.MatchString(text)
	text = questionPrefix.ReplaceAllString(text, "")

	q := strings.LastIndex(text, "?")
	if q < 0 {
		return Candidate{}, 0, false
	}
	question := strings.TrimSpace(text[:q+1])
	rest := strings.TrimSpace(text[q+1:])
	if utf8.RuneCountInString(question) <= 3 {
		return Candidate{}, 0, false
	}

	c := Candidate{SegmentIDs: []string{ln.segment}, LineStart: ln.number, LineEnd: ln.number}
	var answer string
	consumed := 0
	switch {
	case answerPrefix.MatchString(rest):
		answer = answerPrefix.ReplaceAllString(rest, "")
	case rest == "" && i+1 < len(lines):
		next := lines[i+1]
		if answerPrefix.MatchString(next.text) || marked || next.segment == ln.segment {
			answer = answerPrefix.ReplaceAllString(next.text, "")
			consumed = 1
			c.LineEnd = next.number
			if next.segment != ln.segment {
				c.SegmentIDs = append(c.SegmentIDs, next.segment)
			}
		}
	}
	answer = strings.TrimSpace(answer)
	if utf8.RuneCountInString(answer) <= 5 {
		return Candidate{}, 0, false
	}
	c.Payload = types.FAQPayload{Question: question, Answer: answer, Category: ln.heading}
	return c, consumed, true
}

func definition(text, heading string) (types.DefinitionPayload, bool) {
	m := colonDefinition.FindStringSubmatch(text)
	if m == nil {
		m = verbDefinition.FindStringSubmatch(text)
	}
	if m == nil {
		return types.DefinitionPayload{}, false
	}
	term := strings.TrimSpace(leadingArticle.ReplaceAllString(strings.TrimSpace(m[1]), ""))
	def := strings.TrimSpace(m[2])
	lower := strings.ToLower(term)
	if utf8.RuneCountInString(term) <= 2 || utf8.RuneCountInString(def) <= 5 ||
		len(strings.Fields(term)) > 4 || reservedTerms[lower] || pronouns[lower] {
		return types.DefinitionPayload{}, false
	}
	return types.DefinitionPayload{Term: term, Definition: def, Context: heading}, true
}

// topics yields one topic per distinct segment heading, spanning every
// segment under it.
func topics(segs []types.Segment) []Candidate {
	var (
		out   []Candidate
		index = make(map[string]int)
	)
	for _, seg := range segs {
		if seg.Heading == "" {
			continue
		}
		key := strings.ToLower(seg.Heading)
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, Candidate{
				Payload:    types.TopicPayload{Name: seg.Heading},
				SegmentIDs: []string{seg.ID},
				LineStart:  seg.LineStart,
				LineEnd:    seg.LineEnd,
			})
			continue
		}
		out[i].SegmentIDs = append(out[i].SegmentIDs, seg.ID)
		if seg.LineEnd > out[i].LineEnd {
			out[i].LineEnd = seg.LineEnd
		}
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
