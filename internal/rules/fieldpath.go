// internal/rules/fieldpath.go
package rules

import (
	"sort"
	"strconv"
	"strings"

	"github.com/solatis/varextract/internal/types"
)

/*
 * Field path resolution over decoded record documents.
 *
 * Paths are dot-separated ("status.name", "components.0.name"). A segment of
 * digits addresses an array element when the current value is an array and is
 * an ordinary key otherwise; "*" matches any key or element with ANY
 * semantics (first match wins, object keys visited in sorted order).
 *
 * Resolution stops with ErrFieldNotFound at the first missing segment, at a
 * scalar intermediate, and at a null terminal value: a present-but-null field
 * is not a value for extraction purposes.
 */

// PathSegment represents one component of a field path.
type PathSegment struct {
	Key      string // object key; also the raw text of index segments
	Index    int    // array index when IsIndex
	IsIndex  bool   // segment is all digits
	Wildcard bool   // "*" segment
}

// ParsePath splits a dot path into segments, enforcing depth and wildcard limits.
func ParsePath(path string) ([]PathSegment, error) {
	if path == "" {
		return nil, types.ErrFieldNotFound
	}
	parts := strings.Split(path, ".")
	if len(parts) > types.MaxPathDepth {
		return nil, types.ErrPathTooDeep
	}

	segments := make([]PathSegment, 0, len(parts))
	wildcards := 0
	for _, part := range parts {
		if part == "" {
			return nil, types.ErrFieldNotFound
		}
		if part == "*" {
			wildcards++
			segments = append(segments, PathSegment{Wildcard: true})
			continue
		}
		seg := PathSegment{Key: part}
		if idx, err := strconv.Atoi(part); err == nil && idx >= 0 {
			seg.Index = idx
			seg.IsIndex = true
		}
		segments = append(segments, seg)
	}
	if wildcards > types.MaxNestedWildcards {
		return nil, types.ErrTooManyWildcards
	}
	return segments, nil
}

// ResolveResult contains the resolved value and the concrete path taken.
type ResolveResult struct {
	Value        any
	ResolvedPath []PathSegment // wildcards replaced by actual keys/indices
	Found        bool
}

// Resolve traverses data following path segments.
// Returns ErrFieldNotFound if the path does not lead to a non-null value.
func Resolve(path []PathSegment, data any) (ResolveResult, error) {
	if len(path) > types.MaxPathDepth {
		return ResolveResult{}, types.ErrPathTooDeep
	}
	return resolveRecursive(path, data, nil)
}

// resolveRecursive walks one segment at a time, accumulating the concrete path.
func resolveRecursive(path []PathSegment, current any, resolvedSoFar []PathSegment) (ResolveResult, error) {
	if len(path) == 0 {
		if current == nil {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return ResolveResult{Value: current, ResolvedPath: resolvedSoFar, Found: true}, nil
	}

	seg := path[0]
	remaining := path[1:]

	switch v := current.(type) {
	case map[string]any:
		if seg.Wildcard {
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, key := range keys {
				resolved := append(append([]PathSegment(nil), resolvedSoFar...), PathSegment{Key: key})
				result, err := resolveRecursive(remaining, v[key], resolved)
				if err == nil && result.Found {
					return result, nil
				}
			}
			return ResolveResult{}, types.ErrFieldNotFound
		}
		val, ok := v[seg.Key]
		if !ok {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveRecursive(remaining, val, append(resolvedSoFar, seg))

	case []any:
		if seg.Wildcard {
			for i, elem := range v {
				resolved := append(append([]PathSegment(nil), resolvedSoFar...), PathSegment{Key: strconv.Itoa(i), Index: i, IsIndex: true})
				result, err := resolveRecursive(remaining, elem, resolved)
				if err == nil && result.Found {
					return result, nil
				}
			}
			return ResolveResult{}, types.ErrFieldNotFound
		}
		if !seg.IsIndex || seg.Index >= len(v) {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveRecursive(remaining, v[seg.Index], append(resolvedSoFar, seg))

	default:
		// nil or scalar intermediate
		return ResolveResult{}, types.ErrFieldNotFound
	}
}

// resolveField parses and resolves a dot path against a record's fields subtree.
func resolveField(rec types.Record, path string) (any, bool) {
	segments, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	res, err := Resolve(segments, rec.Fields())
	if err != nil {
		return nil, false
	}
	return res.Value, true
}
