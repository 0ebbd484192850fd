// Package types provides the domain model shared across varextract components.
//
// Records and histories arrive as already-decoded JSON documents from the
// issue tracker. Variable declarations (VariableMapping, SourceRule and the
// six Source variants) are pure data: the extraction engine in internal/rules
// is the only consumer that gives them behavior.
//
// Separation from storage and transport: nothing in this package talks to a
// database or the network. Encoding is limited to encoding/json so the same
// values round-trip through the collection store, the gRPC surface and
// mapping files.
package types

import "strings"

// Record is one issue-tracker item as a nested key/value document.
// The "fields" subtree holds every attribute readable by field sources.
type Record map[string]any

// Fields returns the record's "fields" subtree, or nil when absent or not an object.
func (r Record) Fields() map[string]any {
	fields, _ := r["fields"].(map[string]any)
	return fields
}

// Key returns the record's issue key ("OPS-123"), or "" when absent.
func (r Record) Key() string {
	key, _ := r["key"].(string)
	return key
}

// ProjectKey returns fields.project.key, falling back to the prefix of the
// issue key. Returns "" when neither is present.
func (r Record) ProjectKey() string {
	if project, ok := r.Fields()["project"].(map[string]any); ok {
		if key, ok := project["key"].(string); ok && key != "" {
			return key
		}
	}
	if key := r.Key(); key != "" {
		if idx := strings.LastIndex(key, "-"); idx > 0 {
			return key[:idx]
		}
	}
	return ""
}

// IssueType returns fields.issuetype.name, or "" when absent.
func (r Record) IssueType() string {
	issueType, ok := r.Fields()["issuetype"].(map[string]any)
	if !ok {
		return ""
	}
	name, _ := issueType["name"].(string)
	return name
}

// ChangeItem is a single field change inside a changelog entry.
type ChangeItem struct {
	Field      string `json:"field"`
	FromString string `json:"fromString,omitempty"`
	ToString   string `json:"toString,omitempty"`
}

// ChangelogEntry groups the field changes made at one point in time.
// Created is kept as the original ISO-8601 string; evaluators parse it lazily
// so an unparsable timestamp only affects sources that need arithmetic.
type ChangelogEntry struct {
	Created string       `json:"created"`
	Items   []ChangeItem `json:"items"`
}

// History is a record's changelog. Callers supply chronological order;
// nothing in varextract re-sorts it.
type History []ChangelogEntry

// ValueKind is the declared semantic type of an extracted variable.
type ValueKind string

const (
	ValueKindDatetime ValueKind = "datetime"
	ValueKindBoolean  ValueKind = "boolean"
	ValueKindNumber   ValueKind = "number"
	ValueKindDuration ValueKind = "duration"
	ValueKindCategory ValueKind = "category"
	ValueKindCount    ValueKind = "count"
	// ValueKindString is only produced by namespace inference for plain
	// field reads; declared variables use the kinds above.
	ValueKindString ValueKind = "string"
)

// Valid reports whether k is one of the closed set of value kinds.
func (k ValueKind) Valid() bool {
	switch k {
	case ValueKindDatetime, ValueKindBoolean, ValueKindNumber, ValueKindDuration,
		ValueKindCategory, ValueKindCount, ValueKindString:
		return true
	}
	return false
}

// Category groups variables by the metric family that consumes them.
type Category string

const (
	CategoryDORA   Category = "dora"
	CategoryFlow   Category = "flow"
	CategoryCommon Category = "common"
)

// Resource limits enforced during compilation and evaluation.
const (
	// MaxPathDepth bounds dot-path length for field sources.
	MaxPathDepth = 16

	// MaxNestedWildcards limits wildcard segments in a field path.
	MaxNestedWildcards = 2

	// DefaultMaxRecursionDepth bounds nested timestamp_diff resolution.
	DefaultMaxRecursionDepth = 16

	// MaxMatchValues limits the literal list of in/not_in comparisons.
	MaxMatchValues = 64
)
