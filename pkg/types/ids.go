// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Name-based UUID namespaces. Every identity in the system is a SHA-1 UUID
// of its natural key, so re-running a stage on the same input reproduces
// the same IDs.
var (
	noteNamespace       = uuid.MustParse("6d0c1f3e-8a52-4a8e-9d43-0b3a8f6f2a10")
	segmentNamespace    = uuid.MustParse("a1f4b6c2-3e77-4c2d-8f0e-6a5d9c1b7e21")
	themeNamespace      = uuid.MustParse("c3e8d9a0-5b14-4f6a-9e2d-1f7c8b4a3d32")
	extractionNamespace = uuid.MustParse("e5a2c7f1-9d36-4b8e-a1c4-3d9e6f2b5c43")
	moduleNamespace     = uuid.MustParse("f7b3e1d4-2c58-4a9f-b3e6-5f1a8d4c7e54")
	versionNamespace    = uuid.MustParse("0a9c5e2f-4d7a-4c1b-8e5f-7b3c1e6d9f65")
)

func nameID(ns uuid.UUID, parts ...string) string {
	return uuid.NewSHA1(ns, []byte(strings.Join(parts, "\x00"))).String()
}

// NoteID derives a note identity from its content hash.
func NoteID(contentHash string) string {
	return nameID(noteNamespace, contentHash)
}

// SegmentID derives a segment identity from its note, position and text.
func SegmentID(noteID string, order int, content string) string {
	return nameID(segmentNamespace, noteID, strconv.Itoa(order), content)
}

// ThemeID derives a theme identity from its project and ranked keywords.
func ThemeID(project string, keywords []string) string {
	return nameID(themeNamespace, append([]string{project}, keywords...)...)
}

// ExtractionID derives an extraction identity from its natural key.
func ExtractionID(naturalKey string) string {
	return nameID(extractionNamespace, naturalKey)
}

// ModuleID derives a module identity from project, type and topic key.
func ModuleID(project string, t ModuleType, topicKey string) string {
	return nameID(moduleNamespace, project, string(t), strings.ToLower(topicKey))
}

// VersionID derives a version identity from its module and number.
func VersionID(moduleID string, v SemVer) string {
	return nameID(versionNamespace, moduleID, v.String())
}
