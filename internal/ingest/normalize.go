// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	errInvalidUTF8 = errors.New("content is not valid UTF-8")
	errEmpty       = errors.New("no content")
)

// Normalize canonicalizes text before hashing: no BOM, LF line endings,
// Unicode NFC, no trailing whitespace on any line, exactly one trailing
// newline. Equivalent files therefore hash identically.
func Normalize(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", errInvalidUTF8
	}
	s := strings.TrimPrefix(string(raw), "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = norm.NFC.String(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\f\v")
	}
	s = strings.TrimRight(strings.Join(lines, "\n"), "\n")
	if strings.TrimSpace(s) == "" {
		return "", errEmpty
	}
	return s + "\n", nil
}

// Hash returns the hex SHA-256 of normalized content.
func Hash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
