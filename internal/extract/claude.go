// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"

	"github.com/pdiddy/meeting-modules/internal/httputil"
	"github.com/pdiddy/meeting-modules/pkg/types"
)

// extractionPromptTmpl is sent once per note. Segments are listed with
// their IDs and line ranges so the model can cite provenance.
var extractionPromptTmpl = template.Must(template.New("extraction").Parse(`You extract structured knowledge from meeting notes. Read the segments below and return every item of these types:

- step: an instruction in a procedure. payload: {"number": int, "title": string, "description": string}
- definition: a term and its meaning. payload: {"term": string, "definition": string, "context": string}
- faq: a question that was answered. payload: {"question": string, "answer": string, "category": string}
- decision: something the group decided. payload: {"decision": string, "rationale": string, "decision_maker": string}
- action: a follow-up with an owner and a due date. payload: {"action": string, "owner": string, "due_date": "YYYY-MM-DD", "status": "pending"}
- topic: a subject that was discussed. payload: {"name": string, "description": string}

Copy wording from the notes; do not invent owners or dates. Skip an action if the notes name no owner or due date.

Respond with a JSON object containing an "items" array. Each element has "type", "payload", "segment_ids" (the IDs of the segments it came from), "line_start" and "line_end". Do not include any text outside the JSON object.

Meeting: {{.Title}} ({{.Date}})
{{range .Segments}}
[segment {{.ID}} lines {{.LineStart}}-{{.LineEnd}}{{if .Heading}} under "{{.Heading}}"{{end}}]
{{.Content}}
{{end}}`))

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// ClaudeExtractor asks the Claude API for candidates. Its output varies
// between calls; the natural-key dedup in the store absorbs repeats.
type ClaudeExtractor struct {
	APIKey string
	Model  string
	Client *http.Client

	// MaxRateRetries bounds retries on HTTP 429 responses.
	MaxRateRetries int
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// modelResponse is the JSON document the prompt asks for.
type modelResponse struct {
	Items []modelItem `json:"items"`
}

type modelItem struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	SegmentIDs []string        `json:"segment_ids"`
	LineStart  int             `json:"line_start"`
	LineEnd    int             `json:"line_end"`
}

// Extract implements Extractor.
func (c *ClaudeExtractor) Extract(ctx context.Context, note types.Note, segs []types.Segment) ([]Candidate, error) {
	prompt, err := renderPrompt(note, segs)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	bodyBytes, err := json.Marshal(claudeRequest{
		Model:     c.Model,
		MaxTokens: 4096,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, c.MaxRateRetries)
	if err != nil {
		return nil, fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return nil, fmt.Errorf("decoding Claude response: %w", err)
	}

	for _, block := range cResp.Content {
		if block.Type != "text" {
			continue
		}
		return parseModelResponse(block.Text, segs)
	}
	return nil, fmt.Errorf("no text content in Claude API response")
}

// parseModelResponse converts the model's JSON into candidates. Segment
// IDs the note does not contain are dropped.
func parseModelResponse(text string, segs []types.Segment) ([]Candidate, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```")

	var mr modelResponse
	if err := json.Unmarshal([]byte(text), &mr); err != nil {
		return nil, fmt.Errorf("parsing model response JSON: %w", err)
	}

	known := make(map[string]bool, len(segs))
	for _, s := range segs {
		known[s.ID] = true
	}

	candidates := make([]Candidate, 0, len(mr.Items))
	for i, item := range mr.Items {
		t, err := types.ParseExtractionType(item.Type)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		p, err := types.DecodePayload(t, item.Payload)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		var ids []string
		for _, id := range item.SegmentIDs {
			if known[id] {
				ids = append(ids, id)
			}
		}
		candidates = append(candidates, Candidate{Payload: p, SegmentIDs: ids, LineStart: item.LineStart, LineEnd: item.LineEnd})
	}
	return candidates, nil
}

func renderPrompt(note types.Note, segs []types.Segment) (string, error) {
	data := struct {
		Title    string
		Date     string
		Segments []types.Segment
	}{Title: note.Title, Segments: segs}
	if !note.Date.IsZero() {
		data.Date = note.Date.Format(types.DateLayout)
	}

	var buf bytes.Buffer
	if err := extractionPromptTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
