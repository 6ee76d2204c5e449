// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

// Sentinel errors. Each typed error below matches its sentinel with
// errors.Is, so callers can branch without type assertions.
var (
	ErrIngest           = errors.New("ingest failed")
	ErrInsufficientData = errors.New("insufficient data")
	ErrValidation       = errors.New("validation failed")
	ErrVersionConflict  = errors.New("version conflict")
	ErrNotFound         = errors.New("not found")
)

// IngestError reports an unreadable, corrupt or unsupported input file.
type IngestError struct {
	Path string
	Err  error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingesting %s: %v", e.Path, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

func (e *IngestError) Is(target error) bool { return target == ErrIngest }

// InsufficientDataError reports a project with fewer segments than
// requested clusters.
type InsufficientDataError struct {
	Project  string
	Segments int
	Clusters int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("project %s: %d segment(s) is fewer than k=%d", e.Project, e.Segments, e.Clusters)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// ValidationError reports an extraction payload missing a required field
// or carrying a malformed value.
type ValidationError struct {
	Type   ExtractionType
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %s: %s", e.Type, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// VersionConflictError reports a commit whose proposed version is not
// strictly greater than the module's latest version.
type VersionConflictError struct {
	ModuleID string
	Latest   SemVer
	Proposed SemVer
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("module %s: proposed version %s is not greater than latest %s", e.ModuleID, e.Proposed, e.Latest)
}

func (e *VersionConflictError) Is(target error) bool { return target == ErrVersionConflict }

// NotFoundError reports a missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
