// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ExtractionType names the structured record kinds pulled from notes.
type ExtractionType string

const (
	ExtractStep       ExtractionType = "step"
	ExtractDefinition ExtractionType = "definition"
	ExtractFAQ        ExtractionType = "faq"
	ExtractDecision   ExtractionType = "decision"
	ExtractAction     ExtractionType = "action"
	ExtractTopic      ExtractionType = "topic"
)

// ExtractionTypes lists every kind in rendering order.
var ExtractionTypes = []ExtractionType{
	ExtractStep, ExtractDefinition, ExtractFAQ, ExtractDecision, ExtractAction, ExtractTopic,
}

// ParseExtractionType converts a name into an ExtractionType.
func ParseExtractionType(s string) (ExtractionType, error) {
	for _, t := range ExtractionTypes {
		if string(t) == strings.ToLower(strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown extraction type %q", s)}
}

// ActionStatuses are the accepted values of ActionPayload.Status.
var ActionStatuses = []string{"pending", "open", "in progress", "completed", "done", "closed"}

// Payload is the type-specific body of an Extraction.
type Payload interface {
	Kind() ExtractionType
	Validate() error

	// normalized returns a copy with text fields folded for dedup hashing.
	normalized() Payload
}

// StepPayload is one instruction of a procedure.
type StepPayload struct {
	Number      int    `json:"number" yaml:"number"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

func (StepPayload) Kind() ExtractionType { return ExtractStep }

func (p StepPayload) Validate() error {
	return requireFields(ExtractStep, "title", p.Title)
}

func (p StepPayload) normalized() Payload {
	return StepPayload{Number: p.Number, Title: fold(p.Title), Description: fold(p.Description)}
}

// DefinitionPayload is a glossary entry.
type DefinitionPayload struct {
	Term       string `json:"term" yaml:"term"`
	Definition string `json:"definition" yaml:"definition"`
	Context    string `json:"context,omitempty" yaml:"context,omitempty"`
}

func (DefinitionPayload) Kind() ExtractionType { return ExtractDefinition }

func (p DefinitionPayload) Validate() error {
	return requireFields(ExtractDefinition, "term", p.Term, "definition", p.Definition)
}

func (p DefinitionPayload) normalized() Payload {
	return DefinitionPayload{Term: fold(p.Term), Definition: fold(p.Definition), Context: fold(p.Context)}
}

// FAQPayload is a question with its answer.
type FAQPayload struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
}

func (FAQPayload) Kind() ExtractionType { return ExtractFAQ }

func (p FAQPayload) Validate() error {
	return requireFields(ExtractFAQ, "question", p.Question, "answer", p.Answer)
}

func (p FAQPayload) normalized() Payload {
	return FAQPayload{Question: fold(p.Question), Answer: fold(p.Answer), Category: fold(p.Category)}
}

// DecisionPayload records an agreed outcome.
type DecisionPayload struct {
	Decision      string `json:"decision" yaml:"decision"`
	Rationale     string `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	DecisionMaker string `json:"decision_maker,omitempty" yaml:"decision_maker,omitempty"`
	Status        string `json:"status,omitempty" yaml:"status,omitempty"`
}

func (DecisionPayload) Kind() ExtractionType { return ExtractDecision }

func (p DecisionPayload) Validate() error {
	return requireFields(ExtractDecision, "decision", p.Decision)
}

func (p DecisionPayload) normalized() Payload {
	return DecisionPayload{
		Decision:      fold(p.Decision),
		Rationale:     fold(p.Rationale),
		DecisionMaker: fold(p.DecisionMaker),
		Status:        fold(p.Status),
	}
}

// ActionPayload is an assigned follow-up with a due date.
type ActionPayload struct {
	Action string `json:"action" yaml:"action"`
	Owner  string `json:"owner" yaml:"owner"`

	// DueDate uses DateLayout (YYYY-MM-DD).
	DueDate string `json:"due_date" yaml:"due_date"`
	Status  string `json:"status,omitempty" yaml:"status,omitempty"`
}

func (ActionPayload) Kind() ExtractionType { return ExtractAction }

func (p ActionPayload) Validate() error {
	if err := requireFields(ExtractAction, "action", p.Action, "owner", p.Owner, "due_date", p.DueDate); err != nil {
		return err
	}
	if _, err := time.Parse(DateLayout, p.DueDate); err != nil {
		return &ValidationError{Type: ExtractAction, Field: "due_date", Reason: fmt.Sprintf("%q is not a YYYY-MM-DD date", p.DueDate)}
	}
	if p.Status != "" && !containsFold(ActionStatuses, p.Status) {
		return &ValidationError{Type: ExtractAction, Field: "status", Reason: fmt.Sprintf("unknown status %q", p.Status)}
	}
	return nil
}

func (p ActionPayload) normalized() Payload {
	return ActionPayload{Action: fold(p.Action), Owner: fold(p.Owner), DueDate: p.DueDate, Status: fold(p.Status)}
}

// TopicPayload names a subject discussed in a note.
type TopicPayload struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

func (TopicPayload) Kind() ExtractionType { return ExtractTopic }

func (p TopicPayload) Validate() error {
	return requireFields(ExtractTopic, "name", p.Name)
}

func (p TopicPayload) normalized() Payload {
	return TopicPayload{Name: fold(p.Name), Description: fold(p.Description)}
}

// DecodePayload unmarshals raw JSON into the payload variant for t.
func DecodePayload(t ExtractionType, raw []byte) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch t {
	case ExtractStep:
		var v StepPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case ExtractDefinition:
		var v DefinitionPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case ExtractFAQ:
		var v FAQPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case ExtractDecision:
		var v DecisionPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case ExtractAction:
		var v ActionPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case ExtractTopic:
		var v TopicPayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, &ValidationError{Type: t, Field: "type", Reason: "unknown extraction type"}
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", t, err)
	}
	return p, nil
}

// SourceRef locates an extraction in its source file.
type SourceRef struct {
	Path      string `json:"path" yaml:"path"`
	LineStart int    `json:"line_start" yaml:"line_start"`
	LineEnd   int    `json:"line_end" yaml:"line_end"`
}

// Extraction is a validated, deduplicated structured record. SegmentIDs are
// weak references: segments may be replaced after the extraction is stored.
type Extraction struct {
	ID         string         `json:"id" yaml:"id"`
	Type       ExtractionType `json:"type" yaml:"type"`
	Project    string         `json:"project" yaml:"project"`
	NoteID     string         `json:"note_id" yaml:"note_id"`
	SegmentIDs []string       `json:"segment_ids" yaml:"segment_ids"`
	Payload    Payload        `json:"payload" yaml:"payload"`
	Source     SourceRef      `json:"source" yaml:"source"`
	NaturalKey string         `json:"natural_key" yaml:"natural_key"`
	CreatedAt  time.Time      `json:"created_at" yaml:"created_at"`
}

// UnmarshalJSON decodes the payload according to the extraction type.
func (e *Extraction) UnmarshalJSON(data []byte) error {
	type alias Extraction
	aux := struct {
		*alias
		Payload json.RawMessage `json:"payload"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Payload) == 0 || string(aux.Payload) == "null" {
		e.Payload = nil
		return nil
	}
	p, err := DecodePayload(e.Type, aux.Payload)
	if err != nil {
		return err
	}
	e.Payload = p
	return nil
}

// Validate checks the envelope and the type-specific required fields.
func (e Extraction) Validate() error {
	if _, err := ParseExtractionType(string(e.Type)); err != nil {
		return err
	}
	if e.Project == "" {
		return &ValidationError{Type: e.Type, Field: "project", Reason: "required"}
	}
	if e.NoteID == "" {
		return &ValidationError{Type: e.Type, Field: "note_id", Reason: "required"}
	}
	if e.Payload == nil {
		return &ValidationError{Type: e.Type, Field: "payload", Reason: "required"}
	}
	if e.Payload.Kind() != e.Type {
		return &ValidationError{Type: e.Type, Field: "payload", Reason: fmt.Sprintf("payload is a %s", e.Payload.Kind())}
	}
	return e.Payload.Validate()
}

// PayloadHash returns the hex SHA-256 of the payload's canonical form:
// case-folded, whitespace-collapsed text fields encoded as JSON.
func PayloadHash(p Payload) string {
	data, _ := json.Marshal(p.normalized())
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NaturalKeyFor returns the dedup key: type, note and payload hash.
func NaturalKeyFor(t ExtractionType, noteID string, p Payload) string {
	return string(t) + ":" + noteID + ":" + PayloadHash(p)
}

func requireFields(t ExtractionType, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return &ValidationError{Type: t, Field: pairs[i], Reason: "required"}
		}
	}
	return nil
}

func fold(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
