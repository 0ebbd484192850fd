// internal/rules/coercion.go
package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/varextract/internal/types"
)

/*
 * Value coercion for extraction.
 *
 * Timestamps: issue trackers emit ISO-8601 in several dialects. Jira uses a
 * numeric zone without colon and millisecond precision
 * ("2024-03-01T10:15:00.000+0000"); other sources use RFC 3339 or bare
 * dates. ParseTimestamp tries each layout in turn and reports
 * ErrInvalidTimestamp when none apply; evaluators turn that into not-found.
 *
 * Text: changelog and filter comparisons work on strings, so field values are
 * rendered leniently (numbers without trailing zeros, booleans as
 * "true"/"false", objects by their "name" or "value" property).
 */

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp converts a string or time.Time into a time.Time.
func ParseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, types.ErrInvalidTimestamp
		}
		return *t, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, types.ErrInvalidTimestamp
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q", types.ErrInvalidTimestamp, s)
	default:
		return time.Time{}, fmt.Errorf("%w: %T", types.ErrInvalidTimestamp, v)
	}
}

// secondsBetween returns end-start in seconds; negative when end precedes start.
func secondsBetween(start, end time.Time) float64 {
	return end.Sub(start).Seconds()
}

// coerceText renders a field value as a string for equality against configured text.
// Returns false for values with no sensible text form (nil, lists).
func coerceText(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case bool:
		return strconv.FormatBool(v), true
	case map[string]any:
		// Option-style objects: {"value": "prod"} or {"name": "Done"}
		for _, key := range []string{"value", "name"} {
			if s, ok := v[key].(string); ok {
				return s, true
			}
		}
		return "", false
	default:
		return "", false
	}
}

// applyCategoryMapping maps a raw category value onto its canonical name.
// Unmapped values pass through unchanged.
func applyCategoryMapping(value any, table map[string]string) any {
	if len(table) == 0 {
		return value
	}
	text, ok := coerceText(value)
	if !ok {
		return value
	}
	if mapped, ok := table[text]; ok {
		return mapped
	}
	return value
}
