package rules

import (
	"go.uber.org/zap"

	"github.com/solatis/varextract/internal/types"
)

// FilterPolicy decides how unsupported filter conditions (custom JQL) evaluate.
type FilterPolicy int

const (
	// FilterPolicyPass logs unsupported conditions and lets the rule run.
	FilterPolicyPass FilterPolicy = iota
	// FilterPolicyFail treats unsupported conditions as a mismatch.
	FilterPolicyFail
)

// ParseFilterPolicy maps "pass"/"fail" to a FilterPolicy. Unknown values pass.
func ParseFilterPolicy(s string) FilterPolicy {
	if s == "fail" {
		return FilterPolicyFail
	}
	return FilterPolicyPass
}

// filterMatches evaluates a rule's record-level gate. A nil filter always matches.
// Project and issue-type allow-lists fail closed when the record lacks the attribute.
func (e *Engine) filterMatches(variable string, f *types.MappingFilter, rec types.Record) bool {
	if f == nil {
		return true
	}

	if len(f.Project) > 0 && !containsString(f.Project, rec.ProjectKey()) {
		return false
	}
	if len(f.IssueType) > 0 && !containsString(f.IssueType, rec.IssueType()) {
		return false
	}

	// Environment check only applies when both halves are configured
	if f.EnvironmentField != "" && f.EnvironmentValue != "" {
		raw, ok := resolveField(rec, f.EnvironmentField)
		if !ok {
			return false
		}
		text, ok := coerceText(raw)
		if !ok || text != f.EnvironmentValue {
			return false
		}
	}

	if f.CustomJQL != "" {
		e.logger.Warn("custom JQL filter is not supported",
			zap.String("variable", variable),
			zap.String("custom_jql", f.CustomJQL),
			zap.Bool("fail_closed", e.filterPolicy == FilterPolicyFail),
		)
		if e.filterPolicy == FilterPolicyFail {
			return false
		}
	}
	return true
}

func containsString(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
