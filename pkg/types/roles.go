// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// TopicKind names what a RoleMapping points at.
type TopicKind string

const (
	TopicTheme   TopicKind = "theme"
	TopicSegment TopicKind = "segment"
)

// RoleMapping assigns a role from the role taxonomy to a theme or segment
// with a confidence between 0 and 100.
type RoleMapping struct {
	Project    string    `json:"project" yaml:"project"`
	TopicID    string    `json:"topic_id" yaml:"topic_id"`
	TopicKind  TopicKind `json:"topic_kind" yaml:"topic_kind"`
	Role       string    `json:"role" yaml:"role"`
	Confidence float64   `json:"confidence" yaml:"confidence"`
}
