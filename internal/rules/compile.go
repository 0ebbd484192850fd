// internal/rules/compile.go
package rules

import (
	"fmt"
	"sort"

	"github.com/solatis/varextract/internal/types"
)

/*
 * Mapping compilation and validation.
 *
 * Compiles a types.Collection into a CompiledCollection: every variable's
 * rules re-validated, ordered by ascending priority, and their field paths
 * pre-split so evaluation never re-parses a path.
 *
 * Compilation workflow:
 *   1. Re-validate the mapping (priorities unique and positive, sources valid)
 *   2. Parse field paths, enforcing MaxPathDepth / MaxNestedWildcards
 *   3. Order rules by priority (stable; uniqueness makes order total)
 *
 * Why re-validate: a VariableMapping is a plain struct and can be assembled
 * without NewVariableMapping. The engine refuses to evaluate a variable with
 * duplicate priorities, so the check runs again here at engine construction.
 */

// CompiledRule is a SourceRule ready for evaluation.
type CompiledRule struct {
	Priority int
	Source   types.Source
	Filters  *types.MappingFilter
	Path     []PathSegment // field path for field and version sources, nil otherwise
}

// CompiledVariable is a VariableMapping with its rules ordered and pre-parsed.
type CompiledVariable struct {
	Mapping  *types.VariableMapping
	Rules    []CompiledRule // ascending priority
	Fallback *CompiledRule
}

// CompiledCollection is the evaluation-ready form of a types.Collection.
type CompiledCollection struct {
	Collection *types.Collection
	Variables  map[string]*CompiledVariable
}

// Compile validates and pre-processes every variable of a collection.
func Compile(c *types.Collection) (*CompiledCollection, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: collection is nil", types.ErrConfiguration)
	}
	compiled := &CompiledCollection{
		Collection: c,
		Variables:  make(map[string]*CompiledVariable, c.Len()),
	}
	for _, m := range c.Mappings("") {
		cv, err := CompileVariable(m)
		if err != nil {
			return nil, err
		}
		compiled.Variables[m.Name] = cv
	}
	return compiled, nil
}

// CompileVariable validates and pre-processes a single mapping.
func CompileVariable(m *types.VariableMapping) (*CompiledVariable, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	cv := &CompiledVariable{
		Mapping: m,
		Rules:   make([]CompiledRule, 0, len(m.Sources)),
	}
	for _, rule := range m.Sources {
		cr, err := compileRule(m.Name, rule)
		if err != nil {
			return nil, err
		}
		cv.Rules = append(cv.Rules, cr)
	}

	sort.SliceStable(cv.Rules, func(i, j int) bool {
		return cv.Rules[i].Priority < cv.Rules[j].Priority
	})

	if m.FallbackSource != nil {
		fb, err := compileRule(m.Name, *m.FallbackSource)
		if err != nil {
			return nil, err
		}
		cv.Fallback = &fb
	}
	return cv, nil
}

// compileRule pre-parses the field path a source reads, if any.
func compileRule(variable string, rule types.SourceRule) (CompiledRule, error) {
	cr := CompiledRule{Priority: rule.Priority, Source: rule.Source, Filters: rule.Filters}

	var field string
	switch s := rule.Source.(type) {
	case types.FieldValue:
		field = s.Field
	case types.FieldValueMatch:
		field = s.Field
	case types.FixVersionRelease:
		field = s.Field
		if field == "" {
			field = types.DefaultVersionField
		}
	default:
		return cr, nil
	}

	path, err := ParsePath(field)
	if err != nil {
		return CompiledRule{}, &types.ConfigurationError{
			Variable:   variable,
			Priorities: []int{rule.Priority},
			Reason:     fmt.Sprintf("field %q: %v", field, err),
		}
	}
	cr.Path = path
	return cr, nil
}
