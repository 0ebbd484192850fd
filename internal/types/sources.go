// internal/types/sources.go
package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

/*
 * Source model: the six extraction strategies a SourceRule can carry.
 *
 * Source is a sealed interface (unexported marker method) so the dispatch in
 * internal/rules is a closed type switch. Adding a seventh kind means adding
 * a type here, a kind tag, an envelope case and an evaluator case.
 *
 * Wire format: a Source serializes as a flat object tagged by "kind":
 *   {"kind": "changelog_timestamp", "field": "status",
 *    "condition": {"transition_to": "Done"}}
 * Unknown kinds and unknown calculation names fail decoding.
 */

// SourceKind tags a Source variant.
type SourceKind string

const (
	KindFieldValue         SourceKind = "field_value"
	KindFieldValueMatch    SourceKind = "field_value_match"
	KindChangelogEvent     SourceKind = "changelog_event"
	KindChangelogTimestamp SourceKind = "changelog_timestamp"
	KindFixVersionRelease  SourceKind = "fix_version_release"
	KindCalculated         SourceKind = "calculated"
)

// Source is one strategy for obtaining a variable's value.
type Source interface {
	Kind() SourceKind
	Validate() error
	isSource()
}

// MatchOperator is the comparison applied by FieldValueMatch.
type MatchOperator string

const (
	OpEquals    MatchOperator = "equals"
	OpNotEquals MatchOperator = "not_equals"
	OpIn        MatchOperator = "in"
	OpNotIn     MatchOperator = "not_in"
	OpContains  MatchOperator = "contains"
)

// Valid reports whether op is a known operator.
func (op MatchOperator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpIn, OpNotIn, OpContains:
		return true
	}
	return false
}

// ReleaseSelector picks which release dates FixVersionRelease returns.
type ReleaseSelector string

const (
	SelectFirst ReleaseSelector = "first"
	SelectLast  ReleaseSelector = "last"
	SelectAll   ReleaseSelector = "all"
)

// Valid reports whether s is a known selector.
func (s ReleaseSelector) Valid() bool {
	return s == SelectFirst || s == SelectLast || s == SelectAll
}

// CalculationKind names a derived computation.
type CalculationKind string

const (
	CalcSumChangelogDurations CalculationKind = "sum_changelog_durations"
	CalcCountTransitions      CalculationKind = "count_transitions"
	CalcTimestampDiff         CalculationKind = "timestamp_diff"
)

// Valid reports whether c is a known calculation.
func (c CalculationKind) Valid() bool {
	switch c {
	case CalcSumChangelogDurations, CalcCountTransitions, CalcTimestampDiff:
		return true
	}
	return false
}

// StringList accepts either a single string or a list of strings when decoded.
// A single-element list encodes back to a bare string.
type StringList []string

// MarshalJSON implements json.Marshaler.
func (l StringList) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return json.Marshal(l[0])
	}
	return json.Marshal([]string(l))
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*l = StringList(many)
	return nil
}

// Contains reports whether v is a member of the list.
func (l StringList) Contains(v string) bool {
	for _, s := range l {
		if s == v {
			return true
		}
	}
	return false
}

// TransitionCondition selects changelog items by their new (and optionally prior) value.
type TransitionCondition struct {
	To   StringList `json:"transition_to"`
	From StringList `json:"transition_from,omitempty"`
}

// FieldValue reads a (possibly dot-nested) field directly from the record.
type FieldValue struct {
	Field     string
	ValueKind ValueKind
}

// FieldValueMatch reads a field and compares it against a literal or list of literals.
type FieldValueMatch struct {
	Field    string
	Operator MatchOperator
	Value    any
}

// ChangelogEvent reports whether the field ever transitioned per Condition.
type ChangelogEvent struct {
	Field     string
	Condition TransitionCondition
}

// ChangelogTimestamp returns the timestamp of the first transition matching Condition.
type ChangelogTimestamp struct {
	Field     string
	Condition TransitionCondition
}

// FixVersionRelease returns release dates from a version-array field.
// Field defaults to DefaultVersionField when empty.
type FixVersionRelease struct {
	Field    string
	Selector ReleaseSelector
}

// DefaultVersionField is the version-array field read by FixVersionRelease.
const DefaultVersionField = "fixVersions"

// CalculationInputs carries the named inputs of a calculation.
// Which fields apply depends on the calculation kind.
type CalculationInputs struct {
	Field    string   `json:"field,omitempty"`
	Statuses []string `json:"statuses,omitempty"`
	Start    string   `json:"start,omitempty"`
	End      string   `json:"end,omitempty"`
}

// Calculated is a derived computation over history or other variables.
type Calculated struct {
	Calculation CalculationKind
	Inputs      CalculationInputs
}

func (FieldValue) Kind() SourceKind         { return KindFieldValue }
func (FieldValueMatch) Kind() SourceKind    { return KindFieldValueMatch }
func (ChangelogEvent) Kind() SourceKind     { return KindChangelogEvent }
func (ChangelogTimestamp) Kind() SourceKind { return KindChangelogTimestamp }
func (FixVersionRelease) Kind() SourceKind  { return KindFixVersionRelease }
func (Calculated) Kind() SourceKind         { return KindCalculated }

func (FieldValue) isSource()         {}
func (FieldValueMatch) isSource()    {}
func (ChangelogEvent) isSource()     {}
func (ChangelogTimestamp) isSource() {}
func (FixVersionRelease) isSource()  {}
func (Calculated) isSource()         {}

var errEmptyField = errors.New("field is required")

func (s FieldValue) Validate() error {
	if s.Field == "" {
		return errEmptyField
	}
	return nil
}

func (s FieldValueMatch) Validate() error {
	if s.Field == "" {
		return errEmptyField
	}
	if !s.Operator.Valid() {
		return fmt.Errorf("unknown operator %q", s.Operator)
	}
	if list, ok := s.Value.([]any); ok && len(list) > MaxMatchValues {
		return fmt.Errorf("%s has %d values, limit is %d", s.Operator, len(list), MaxMatchValues)
	}
	return nil
}

func (s ChangelogEvent) Validate() error {
	return validateTransition(s.Field, s.Condition)
}

func (s ChangelogTimestamp) Validate() error {
	return validateTransition(s.Field, s.Condition)
}

func validateTransition(field string, cond TransitionCondition) error {
	if field == "" {
		return errEmptyField
	}
	if len(cond.To) == 0 {
		return errors.New("transition_to is required")
	}
	return nil
}

func (s FixVersionRelease) Validate() error {
	if !s.Selector.Valid() {
		return fmt.Errorf("unknown selector %q", s.Selector)
	}
	return nil
}

func (s Calculated) Validate() error {
	in := s.Inputs
	switch s.Calculation {
	case CalcSumChangelogDurations:
		if in.Field == "" || len(in.Statuses) == 0 {
			return errors.New("sum_changelog_durations needs field and statuses")
		}
	case CalcCountTransitions:
		if in.Field == "" {
			return errors.New("count_transitions needs field")
		}
	case CalcTimestampDiff:
		if in.Start == "" || in.End == "" {
			return errors.New("timestamp_diff needs start and end")
		}
	default:
		return fmt.Errorf("unknown calculation %q", s.Calculation)
	}
	return nil
}

// sourceEnvelope is the flat, kind-tagged wire form of every Source variant.
type sourceEnvelope struct {
	Kind        SourceKind           `json:"kind"`
	Field       string               `json:"field,omitempty"`
	ValueKind   ValueKind            `json:"value_kind,omitempty"`
	Operator    MatchOperator        `json:"operator,omitempty"`
	Value       any                  `json:"value,omitempty"`
	Condition   *TransitionCondition `json:"condition,omitempty"`
	Selector    ReleaseSelector      `json:"selector,omitempty"`
	Calculation CalculationKind      `json:"calculation,omitempty"`
	Inputs      *CalculationInputs   `json:"inputs,omitempty"`
}

// MarshalSource encodes a Source into its kind-tagged JSON form.
func MarshalSource(s Source) ([]byte, error) {
	env := sourceEnvelope{}
	switch v := s.(type) {
	case FieldValue:
		env = sourceEnvelope{Kind: KindFieldValue, Field: v.Field, ValueKind: v.ValueKind}
	case FieldValueMatch:
		env = sourceEnvelope{Kind: KindFieldValueMatch, Field: v.Field, Operator: v.Operator, Value: v.Value}
	case ChangelogEvent:
		cond := v.Condition
		env = sourceEnvelope{Kind: KindChangelogEvent, Field: v.Field, Condition: &cond}
	case ChangelogTimestamp:
		cond := v.Condition
		env = sourceEnvelope{Kind: KindChangelogTimestamp, Field: v.Field, Condition: &cond}
	case FixVersionRelease:
		env = sourceEnvelope{Kind: KindFixVersionRelease, Field: v.Field, Selector: v.Selector}
	case Calculated:
		inputs := v.Inputs
		env = sourceEnvelope{Kind: KindCalculated, Calculation: v.Calculation, Inputs: &inputs}
	case nil:
		return nil, errors.New("source is nil")
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownSourceKind, s)
	}
	return json.Marshal(env)
}

// UnmarshalSource decodes the kind-tagged JSON form into a Source and validates it.
func UnmarshalSource(data []byte) (Source, error) {
	var env sourceEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	var src Source
	switch env.Kind {
	case KindFieldValue:
		src = FieldValue{Field: env.Field, ValueKind: env.ValueKind}
	case KindFieldValueMatch:
		src = FieldValueMatch{Field: env.Field, Operator: env.Operator, Value: env.Value}
	case KindChangelogEvent:
		src = ChangelogEvent{Field: env.Field, Condition: derefCondition(env.Condition)}
	case KindChangelogTimestamp:
		src = ChangelogTimestamp{Field: env.Field, Condition: derefCondition(env.Condition)}
	case KindFixVersionRelease:
		src = FixVersionRelease{Field: env.Field, Selector: env.Selector}
	case KindCalculated:
		var inputs CalculationInputs
		if env.Inputs != nil {
			inputs = *env.Inputs
		}
		src = Calculated{Calculation: env.Calculation, Inputs: inputs}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSourceKind, env.Kind)
	}

	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("%s source: %w", env.Kind, err)
	}
	return src, nil
}

func derefCondition(c *TransitionCondition) TransitionCondition {
	if c == nil {
		return TransitionCondition{}
	}
	return *c
}
