// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"time"
)

// DateLayout is the calendar date format used for note dates and action
// due dates.
const DateLayout = "2006-01-02"

// Note is one ingested meeting record. Its identity is the SHA-256 of the
// normalized file bytes: the same content always yields the same Note.
type Note struct {
	// ID is derived from ContentHash (see NoteID).
	ID string `json:"id" yaml:"id"`

	// Project groups notes for theme analysis and module generation.
	Project string `json:"project" yaml:"project"`

	// Date is the meeting date.
	Date time.Time `json:"date" yaml:"date"`

	// Title comes from front matter (title or meeting) or the file name.
	Title string `json:"title" yaml:"title"`

	// SourcePath is the file the note was read from.
	SourcePath string `json:"source_path" yaml:"source_path"`

	// Content is the normalized text with front matter removed.
	Content string `json:"content" yaml:"content"`

	// ContentHash is the hex SHA-256 of the normalized file bytes.
	ContentHash string `json:"content_hash" yaml:"content_hash"`

	// Roles lists the audience roles named in front matter.
	Roles []string `json:"roles,omitempty" yaml:"roles,omitempty"`

	// Metadata holds the remaining front matter keys.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// SupersededBy is the ID of a newer Note read from the same SourcePath.
	// Superseded notes are kept but skipped by downstream stages.
	SupersededBy string `json:"superseded_by,omitempty" yaml:"superseded_by,omitempty"`

	// IngestedAt records when the note was first stored.
	IngestedAt time.Time `json:"ingested_at" yaml:"ingested_at"`
}

// Current reports whether no newer note replaced this one.
func (n Note) Current() bool {
	return n.SupersededBy == ""
}

// HasRole reports whether role is one of the note's roles (case-insensitive).
func (n Note) HasRole(role string) bool {
	for _, r := range n.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// ParsedDocument is what a Parser returns for one input file, before
// normalization and hashing.
type ParsedDocument struct {
	SourcePath string

	// Raw is the text the content hash is computed over: the file bytes
	// for text formats, the converted text for binary formats.
	Raw []byte

	// Content is the note body without front matter.
	Content  string
	Title    string
	Project  string
	Date     time.Time
	Roles    []string
	Metadata map[string]string
}

// SegmentType classifies the block a segment was cut from.
type SegmentType string

const (
	SegmentParagraph SegmentType = "paragraph"
	SegmentList      SegmentType = "list"
	SegmentQuote     SegmentType = "quote"
)

// Segment is a contiguous block of a Note. The segment set for a note is
// replaced as a whole when the note is segmented again.
type Segment struct {
	ID      string      `json:"id" yaml:"id"`
	NoteID  string      `json:"note_id" yaml:"note_id"`
	Project string      `json:"project" yaml:"project"`
	Content string      `json:"content" yaml:"content"`
	Type    SegmentType `json:"segment_type" yaml:"segment_type"`

	// Order is the zero-based position within the note.
	Order int `json:"order" yaml:"order"`

	// Heading is the nearest Markdown heading above the block, if any.
	Heading string `json:"heading,omitempty" yaml:"heading,omitempty"`

	// LineStart and LineEnd are 1-based, inclusive, relative to the
	// cleaned note content.
	LineStart int `json:"line_start" yaml:"line_start"`
	LineEnd   int `json:"line_end" yaml:"line_end"`
}

// Theme is a cluster of related segments within one project.
type Theme struct {
	ID      string `json:"id" yaml:"id"`
	Project string `json:"project" yaml:"project"`

	// Name joins the first three keywords with ", ".
	Name string `json:"name" yaml:"name"`

	// Keywords are ranked by aggregate TF-IDF weight across members.
	Keywords []string `json:"keywords" yaml:"keywords"`

	SupportCount         int      `json:"support_count" yaml:"support_count"`
	RepresentativeNoteID string   `json:"representative_note_id" yaml:"representative_note_id"`
	SegmentIDs           []string `json:"segment_ids" yaml:"segment_ids"`
}

// Run is an audit record of one batch command.
type Run struct {
	ID         string    `json:"id" yaml:"id"`
	Command    string    `json:"command" yaml:"command"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	Succeeded  int       `json:"succeeded" yaml:"succeeded"`
	Skipped    int       `json:"skipped" yaml:"skipped"`
	Failed     int       `json:"failed" yaml:"failed"`
	Failures   []string  `json:"failures,omitempty" yaml:"failures,omitempty"`
}
