package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for varextract operations.
var (
	// ErrConfiguration indicates a malformed variable mapping or collection.
	ErrConfiguration = errors.New("invalid mapping configuration")

	// ErrParse indicates a namespace path could not be parsed.
	ErrParse = errors.New("invalid namespace path")

	// ErrRecursionLimit indicates calculated inputs recursed too deep or formed a cycle.
	ErrRecursionLimit = errors.New("variable resolution recursion limit exceeded")

	// ErrFieldNotFound indicates a field path could not be resolved.
	ErrFieldNotFound = errors.New("field not found")

	// ErrPathTooDeep indicates a field path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("field path exceeds maximum depth")

	// ErrTooManyWildcards indicates a field path exceeds MaxNestedWildcards.
	ErrTooManyWildcards = errors.New("field path has too many wildcards")

	// ErrUnknownSourceKind indicates a serialized source carries an unknown kind tag.
	ErrUnknownSourceKind = errors.New("unknown source kind")

	// ErrInvalidTimestamp indicates a value could not be read as a timestamp.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrCollectionNotFound indicates no stored collection exists for a customer.
	ErrCollectionNotFound = errors.New("mapping collection not found")
)

// ConfigurationError reports a VariableMapping that cannot be constructed.
type ConfigurationError struct {
	Variable   string
	Priorities []int // offending priorities, if any
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if len(e.Priorities) > 0 {
		return fmt.Sprintf("variable %q: %s (priorities %v)", e.Variable, e.Reason, e.Priorities)
	}
	return fmt.Sprintf("variable %q: %s", e.Variable, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// ParseError carries the namespace path that failed to parse.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Path, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// RecursionLimitError reports runaway or cyclic calculated-input resolution.
// Chain lists the variables being resolved, outermost first.
type RecursionLimitError struct {
	Variable string
	Chain    []string
	Depth    int
	Cycle    bool
}

func (e *RecursionLimitError) Error() string {
	path := strings.Join(append(append([]string(nil), e.Chain...), e.Variable), " -> ")
	if e.Cycle {
		return fmt.Sprintf("cyclic variable resolution: %s", path)
	}
	return fmt.Sprintf("variable resolution exceeded depth %d: %s", e.Depth, path)
}

func (e *RecursionLimitError) Unwrap() error { return ErrRecursionLimit }

// duplicatePriorities returns the sorted set of priorities occurring more than once.
func duplicatePriorities(rules []SourceRule) []int {
	seen := make(map[int]int, len(rules))
	for _, r := range rules {
		seen[r.Priority]++
	}
	var dups []int
	for p, n := range seen {
		if n > 1 {
			dups = append(dups, p)
		}
	}
	sort.Ints(dups)
	return dups
}
