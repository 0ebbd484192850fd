// internal/rules/operators.go
package rules

import (
	"strings"

	"github.com/solatis/varextract/internal/types"
)

/*
 * FieldValueMatch comparison logic.
 *
 * Operators:
 *   - equals/not_equals: equality with numeric tolerance (float64/int mixing)
 *   - in/not_in: membership; the configured value must be a list
 *   - contains: the configured value must be a string; matches a substring of
 *     a string field or an element of a list field (labels, components)
 *
 * Type mismatches evaluate to false rather than erroring: a rule configured
 * with a scalar for "in" simply never matches.
 */

// Compare applies op to the resolved field value and the configured target.
func Compare(op types.MatchOperator, value, target any) bool {
	switch op {
	case types.OpEquals:
		return compareEqual(value, target)
	case types.OpNotEquals:
		return !compareEqual(value, target)
	case types.OpIn:
		set, ok := asList(target)
		return ok && compareIn(value, set)
	case types.OpNotIn:
		set, ok := asList(target)
		return ok && !compareIn(value, set)
	case types.OpContains:
		return compareContains(value, target)
	default:
		return false
	}
}

// compareEqual performs equality comparison with numeric type coercion.
// Object and list values never compare equal to a literal.
func compareEqual(a, b any) bool {
	if na, nb, ok := asNumbers(a, b); ok {
		return na == nb
	}
	switch a.(type) {
	case map[string]any, []any:
		return false
	}
	switch b.(type) {
	case map[string]any, []any, []string:
		return false
	}
	return a == b
}

// asNumbers attempts to convert both values to float64.
func asNumbers(a, b any) (float64, float64, bool) {
	na, oka := toFloat64(a)
	nb, okb := toFloat64(b)
	return na, nb, oka && okb
}

// toFloat64 converts value to float64 if it's a numeric type.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// asList normalizes configured list literals from JSON ([]any) or Go code ([]string).
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// compareIn checks if value exists in set using equality semantics.
func compareIn(value any, set []any) bool {
	for _, elem := range set {
		if compareEqual(value, elem) {
			return true
		}
	}
	return false
}

// compareContains matches a string target against a string or list field value.
func compareContains(value, target any) bool {
	needle, ok := target.(string)
	if !ok {
		return false
	}
	switch v := value.(type) {
	case string:
		return strings.Contains(v, needle)
	case []any:
		for _, elem := range v {
			if s, ok := elem.(string); ok && s == needle {
				return true
			}
		}
	}
	return false
}
