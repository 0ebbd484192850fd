// internal/types/mapping.go
package types

import (
	"encoding/json"
	"fmt"
	"sort"
)

/*
 * Variable declaration model.
 *
 * A VariableMapping names a business variable and lists the candidate
 * SourceRules the engine tries in ascending priority order, plus an optional
 * fallback. A Collection is the name-keyed set of mappings loaded for one
 * customer.
 *
 * Construction contract: NewVariableMapping rejects zero sources, non-positive
 * or duplicate priorities and invalid source payloads with a
 * *ConfigurationError. JSON decoding goes through the same validation, so a
 * bad stored document stops collection loading instead of surfacing at
 * evaluation time.
 *
 * Immutability: values returned by the constructors are treated as read-only.
 * Collections change only by whole-collection replacement (With, WithID).
 */

// MappingFilter gates a rule on properties of the record rather than the source.
type MappingFilter struct {
	Project          []string `json:"project,omitempty"`
	IssueType        []string `json:"issuetype,omitempty"`
	EnvironmentField string   `json:"environment_field,omitempty"`
	EnvironmentValue string   `json:"environment_value,omitempty"`
	// CustomJQL is accepted for compatibility but never evaluated.
	CustomJQL string `json:"custom_jql,omitempty"`
}

// SourceRule is one prioritized candidate: a source plus optional filters.
type SourceRule struct {
	Priority int
	Source   Source
	Filters  *MappingFilter
}

type sourceRuleJSON struct {
	Priority int             `json:"priority"`
	Source   json.RawMessage `json:"source"`
	Filters  *MappingFilter  `json:"filters,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r SourceRule) MarshalJSON() ([]byte, error) {
	src, err := MarshalSource(r.Source)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sourceRuleJSON{Priority: r.Priority, Source: src, Filters: r.Filters})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *SourceRule) UnmarshalJSON(data []byte) error {
	var raw sourceRuleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Source) == 0 {
		return fmt.Errorf("rule priority %d: missing source", raw.Priority)
	}
	src, err := UnmarshalSource(raw.Source)
	if err != nil {
		return fmt.Errorf("rule priority %d: %w", raw.Priority, err)
	}
	*r = SourceRule{Priority: raw.Priority, Source: src, Filters: raw.Filters}
	return nil
}

// VariableMapping declares how to extract one named variable.
type VariableMapping struct {
	Name            string            `json:"name"`
	ValueKind       ValueKind         `json:"value_kind"`
	Category        Category          `json:"category,omitempty"`
	Description     string            `json:"description,omitempty"`
	Required        bool              `json:"required,omitempty"`
	Sources         []SourceRule      `json:"sources"`
	FallbackSource  *SourceRule       `json:"fallback_source,omitempty"`
	CategoryMapping map[string]string `json:"category_mapping,omitempty"`
	ValidationRules map[string]any    `json:"validation_rules,omitempty"`
}

// NewVariableMapping validates m and returns a copy with sources ordered by priority.
func NewVariableMapping(m VariableMapping) (*VariableMapping, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	out := m
	out.Sources = append([]SourceRule(nil), m.Sources...)
	sort.SliceStable(out.Sources, func(i, j int) bool {
		return out.Sources[i].Priority < out.Sources[j].Priority
	})
	if m.FallbackSource != nil {
		fb := *m.FallbackSource
		out.FallbackSource = &fb
	}
	return &out, nil
}

// Validate checks the construction-time invariants of a mapping.
func (m *VariableMapping) Validate() error {
	if m.Name == "" {
		return &ConfigurationError{Reason: "name is required"}
	}
	if !m.ValueKind.Valid() {
		return &ConfigurationError{Variable: m.Name, Reason: fmt.Sprintf("unknown value kind %q", m.ValueKind)}
	}
	if len(m.Sources) == 0 {
		return &ConfigurationError{Variable: m.Name, Reason: "at least one source is required"}
	}
	if dups := duplicatePriorities(m.Sources); len(dups) > 0 {
		return &ConfigurationError{Variable: m.Name, Priorities: dups, Reason: "duplicate source priorities"}
	}
	for _, r := range m.Sources {
		if err := validateRule(m.Name, r); err != nil {
			return err
		}
	}
	if m.FallbackSource != nil {
		if err := validateRule(m.Name, *m.FallbackSource); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(variable string, r SourceRule) error {
	if r.Priority <= 0 {
		return &ConfigurationError{Variable: variable, Priorities: []int{r.Priority}, Reason: "priority must be positive"}
	}
	if r.Source == nil {
		return &ConfigurationError{Variable: variable, Priorities: []int{r.Priority}, Reason: "source is required"}
	}
	if err := r.Source.Validate(); err != nil {
		return &ConfigurationError{
			Variable:   variable,
			Priorities: []int{r.Priority},
			Reason:     fmt.Sprintf("%s source: %v", r.Source.Kind(), err),
		}
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler with construction-time validation.
func (m *VariableMapping) UnmarshalJSON(data []byte) error {
	type plain VariableMapping
	var raw plain
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewVariableMapping(VariableMapping(raw))
	if err != nil {
		return err
	}
	*m = *built
	return nil
}

// Collection is the immutable, name-keyed set of mappings for one customer.
type Collection struct {
	id        CollectionID
	version   string
	variables map[string]*VariableMapping
	names     []string
}

// NewCollection builds a collection. Duplicate variable names are rejected.
func NewCollection(version string, mappings ...*VariableMapping) (*Collection, error) {
	c := &Collection{
		version:   version,
		variables: make(map[string]*VariableMapping, len(mappings)),
	}
	for _, m := range mappings {
		if m == nil {
			continue
		}
		if _, exists := c.variables[m.Name]; exists {
			return nil, &ConfigurationError{Variable: m.Name, Reason: "declared more than once"}
		}
		c.variables[m.Name] = m
		c.names = append(c.names, m.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

// ID returns the stored identifier, or "" for collections never persisted.
func (c *Collection) ID() CollectionID { return c.id }

// Version returns the collection's version tag.
func (c *Collection) Version() string { return c.version }

// Len returns the number of declared variables.
func (c *Collection) Len() int { return len(c.variables) }

// Names returns variable names in sorted order.
func (c *Collection) Names() []string { return append([]string(nil), c.names...) }

// Get returns the mapping for name.
func (c *Collection) Get(name string) (*VariableMapping, bool) {
	m, ok := c.variables[name]
	return m, ok
}

// Mappings returns mappings in name order, restricted to category when non-empty.
func (c *Collection) Mappings(category Category) []*VariableMapping {
	out := make([]*VariableMapping, 0, len(c.names))
	for _, name := range c.names {
		m := c.variables[name]
		if category != "" && m.Category != category {
			continue
		}
		out = append(out, m)
	}
	return out
}

// WithID returns a copy of c carrying id.
func (c *Collection) WithID(id CollectionID) *Collection {
	out := *c
	out.id = id
	return &out
}

// With returns a new collection where the given mappings replace or extend c's.
// The returned collection has no ID; it has not been stored.
func (c *Collection) With(version string, mappings ...*VariableMapping) (*Collection, error) {
	merged := make(map[string]*VariableMapping, len(c.variables)+len(mappings))
	for name, m := range c.variables {
		merged[name] = m
	}
	for _, m := range mappings {
		merged[m.Name] = m
	}
	all := make([]*VariableMapping, 0, len(merged))
	for _, m := range merged {
		all = append(all, m)
	}
	return NewCollection(version, all...)
}

type collectionJSON struct {
	ID        CollectionID                `json:"id,omitempty"`
	Version   string                      `json:"version"`
	Variables map[string]*VariableMapping `json:"variables"`
}

// MarshalJSON implements json.Marshaler.
func (c *Collection) MarshalJSON() ([]byte, error) {
	return json.Marshal(collectionJSON{ID: c.id, Version: c.version, Variables: c.variables})
}

// UnmarshalJSON implements json.Unmarshaler.
// A mapping declared under a key other than its own name is rejected.
func (c *Collection) UnmarshalJSON(data []byte) error {
	var raw collectionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	mappings := make([]*VariableMapping, 0, len(raw.Variables))
	for key, m := range raw.Variables {
		if m == nil {
			return &ConfigurationError{Variable: key, Reason: "mapping is null"}
		}
		if m.Name != key {
			return &ConfigurationError{Variable: key, Reason: fmt.Sprintf("declared under mismatched name %q", m.Name)}
		}
		mappings = append(mappings, m)
	}
	built, err := NewCollection(raw.Version, mappings...)
	if err != nil {
		return err
	}
	built.id = raw.ID
	*c = *built
	return nil
}
