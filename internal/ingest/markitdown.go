// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/meeting-modules/internal/container"
	"github.com/pdiddy/meeting-modules/pkg/types"
)

const imageMarkitdown = "markitdown:latest"

// MarkitdownParser converts PDF and DOCX notes by piping them through the
// markitdown container image.
type MarkitdownParser struct {
	runtime container.Runtime
}

// NewMarkitdownParser verifies that the markitdown image exists in rt.
func NewMarkitdownParser(ctx context.Context, rt container.Runtime) (*MarkitdownParser, error) {
	if err := rt.ImageExists(ctx, imageMarkitdown); err != nil {
		return nil, fmt.Errorf("markitdown image not available in %s: %w", rt.Name(), err)
	}
	return &MarkitdownParser{runtime: rt}, nil
}

// Parse converts path to Markdown. Converted text has no front matter, so
// project, date and title come from the path and content.
func (m *MarkitdownParser) Parse(ctx context.Context, path string) (types.ParsedDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.ParsedDocument{}, err
	}
	defer f.Close()

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	var out bytes.Buffer
	if err := m.runtime.Run(ctx, imageMarkitdown, []string{"-x", ext}, f, &out); err != nil {
		return types.ParsedDocument{}, fmt.Errorf("converting with markitdown: %w", err)
	}
	if out.Len() == 0 {
		return types.ParsedDocument{}, fmt.Errorf("markitdown produced empty output")
	}
	return types.ParsedDocument{
		SourcePath: path,
		Raw:        out.Bytes(),
		Content:    out.String(),
	}, nil
}
