// internal/rules/changelog.go
package rules

import (
	"strings"

	"github.com/solatis/varextract/internal/types"
)

/*
 * Changelog replay.
 *
 * History is scanned in the order supplied; callers own chronological
 * ordering. A change item matches a transition condition when its field
 * names the tracked field (case-insensitive: Jira reports "status" while
 * operators write "Status"), its toString is one of transition_to, and, when
 * transition_from is set, its fromString is one of transition_from.
 *
 * Result shapes:
 *   - ChangelogEvent: always found; true when any item matched
 *   - ChangelogTimestamp: created of the first matching entry, else not found
 *   - sum_changelog_durations: seconds spent inside tracked statuses, closed
 *     intervals only (an interval still open at the end adds nothing)
 *   - count_transitions: number of items touching the field, always found
 */

func fieldMatches(item types.ChangeItem, field string) bool {
	return strings.EqualFold(item.Field, field)
}

func transitionMatches(item types.ChangeItem, field string, cond types.TransitionCondition) bool {
	if !fieldMatches(item, field) {
		return false
	}
	if !cond.To.Contains(item.ToString) {
		return false
	}
	if len(cond.From) > 0 && !cond.From.Contains(item.FromString) {
		return false
	}
	return true
}

// firstTransition returns the created timestamp of the first matching entry.
func firstTransition(history types.History, field string, cond types.TransitionCondition) (string, bool) {
	for _, entry := range history {
		for _, item := range entry.Items {
			if transitionMatches(item, field, cond) {
				return entry.Created, true
			}
		}
	}
	return "", false
}

// countTransitions counts items touching field regardless of value.
func countTransitions(history types.History, field string) int {
	n := 0
	for _, entry := range history {
		for _, item := range entry.Items {
			if fieldMatches(item, field) {
				n++
			}
		}
	}
	return n
}

// sumDurations replays history and totals seconds spent in tracked statuses.
// Returns ok=false if a timestamp needed for the total cannot be parsed.
func sumDurations(history types.History, field string, statuses []string) (float64, bool) {
	tracked := types.StringList(statuses)

	var total float64
	inside := false
	var enteredAt string
	for _, entry := range history {
		for _, item := range entry.Items {
			if !fieldMatches(item, field) {
				continue
			}
			if inside {
				start, err := ParseTimestamp(enteredAt)
				if err != nil {
					return 0, false
				}
				end, err := ParseTimestamp(entry.Created)
				if err != nil {
					return 0, false
				}
				total += secondsBetween(start, end)
				inside = false
			}
			if tracked.Contains(item.ToString) {
				inside = true
				enteredAt = entry.Created
			}
		}
	}
	return total, true
}
