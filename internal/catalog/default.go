// Package catalog builds, merges, encodes and reloads mapping collections.
//
// DefaultCollection returns a fresh built-in collection on every call; there
// is no package-level instance, so tests and tenants never share state.
// Customer configuration either replaces the defaults outright (a full
// collection document) or overrides individual variables with namespace
// paths (ApplyOverrides).
package catalog

import (
	"fmt"

	"github.com/solatis/varextract/internal/types"
)

// DefaultVersion tags the built-in collection.
const DefaultVersion = "defaults-v1"

var (
	doneStatuses       = types.StringList{"Done", "Closed", "Resolved"}
	deployedStatuses   = types.StringList{"Deployed", "Released"}
	inProgressStatuses = []string{"In Progress", "In Review"}
)

// DefaultCollection returns the built-in DORA, flow and common variables.
func DefaultCollection() *types.Collection {
	mappings := []types.VariableMapping{
		{
			Name:        "created_at",
			ValueKind:   types.ValueKindDatetime,
			Category:    types.CategoryCommon,
			Description: "When the issue was created",
			Required:    true,
			Sources: []types.SourceRule{
				{Priority: 1, Source: types.FieldValue{Field: "created", ValueKind: types.ValueKindDatetime}},
			},
		},
		{
			Name:        "resolved_at",
			ValueKind:   types.ValueKindDatetime,
			Category:    types.CategoryFlow,
			Description: "When the issue reached a done status",
			Sources: []types.SourceRule{
				{Priority: 1, Source: types.FieldValue{Field: "resolutiondate", ValueKind: types.ValueKindDatetime}},
				{Priority: 2, Source: types.ChangelogTimestamp{Field: "status", Condition: types.TransitionCondition{To: doneStatuses}}},
			},
		},
		{
			Name:        "in_progress_at",
			ValueKind:   types.ValueKindDatetime,
			Category:    types.CategoryFlow,
			Description: "First move into In Progress",
			Sources: []types.SourceRule{
				{Priority: 1, Source: types.ChangelogTimestamp{Field: "status", Condition: types.TransitionCondition{To: types.StringList{"In Progress"}}}},
			},
		},
		{
			Name:        "deployed_at",
			ValueKind:   types.ValueKindDatetime,
			Category:    types.CategoryDORA,
			Description: "When the change reached production",
			Sources: []types.SourceRule{
				{Priority: 1, Source: types.ChangelogTimestamp{Field: "status", Condition: types.TransitionCondition{To: deployedStatuses}}},
			},
			FallbackSource: &types.SourceRule{
				Priority: 99,
				Source:   types.FixVersionRelease{Selector: types.SelectFirst},
			},
		},
		{
			Name:        "release_date",
			ValueKind:   types.ValueKindDatetime,
			Category:    types.CategoryDORA,
			Description: "Release date of the first fix version",
			Sources: []types.SourceRule{
				{Priority: 1, Source: types.FixVersionRelease{Selector: types.SelectFirst}},
			},
		},
		{
			Name:        "is_deployed",
			ValueKind:   types.ValueKindBoolean,
			Category:    types.CategoryDORA,
			Description: "Whether the issue ever reached a deployed status",
			Sources: []types.SourceRule{
				{Priority: 1, Source: types.ChangelogEvent{Field: "status", Condition: types.TransitionCondition{To: deployedStatuses}}},
			},
		},
		{
			Name:        "is_incident",
			ValueKind:   types.ValueKindBoolean,
			Category:    types.CategoryDORA,
			Description: "Whether the issue represents a production incident",
			Sources: []types.SourceRule{
				{Priority: 1, Source: types.FieldValueMatch{Field: "issuetype.name", Operator: types.OpIn, Value: []any{"Incident", "Outage"}}},
			},
		},
		{
			Name:        "environment",
			ValueKind:   types.ValueKindCategory,
			Category:    types.CategoryDORA,
			Description: "Deployment environment",
			Sources: []types.SourceRule{
				{Priority: 1, Source: types.FieldValue{Field: "environment", ValueKind: types.ValueKindCategory}},
			},
			CategoryMapping: map[string]string{
				"prod":       "production",
				"Production": "production",
				"stage":      "staging",
				"Staging":    "staging",
			},
		},
		{
			Name:        "work_type",
			ValueKind:   types.ValueKindCategory,
			Category:    types.CategoryFlow,
			Description: "Flow item type",
			Sources: []types.SourceRule{
				{Priority: 1, Source: types.FieldValue{Field: "issuetype.name", ValueKind: types.ValueKindCategory}},
			},
			CategoryMapping: map[string]string{
				"Story":    "feature",
				"Epic":     "feature",
				"Bug":      "defect",
				"Incident": "defect",
				"Task":     "debt",
				"Spike":    "risk",
			},
		},
		{
			Name:        "time_in_progress",
			ValueKind:   types.ValueKindDuration,
			Category:    types.CategoryFlow,
			Description: "Seconds spent in active statuses",
			Sources: []types.SourceRule{
				{Priority: 1, Source: types.Calculated{
					Calculation: types.CalcSumChangelogDurations,
					Inputs:      types.CalculationInputs{Field: "status", Statuses: inProgressStatuses},
				}},
			},
		},
		{
			Name:        "status_changes",
			ValueKind:   types.ValueKindCount,
			Category:    types.CategoryFlow,
			Description: "Number of status transitions",
			Sources: []types.SourceRule{
				{Priority: 1, Source: types.Calculated{
					Calculation: types.CalcCountTransitions,
					Inputs:      types.CalculationInputs{Field: "status"},
				}},
			},
		},
		{
			Name:        "cycle_time",
			ValueKind:   types.ValueKindDuration,
			Category:    types.CategoryFlow,
			Description: "Seconds from first In Progress to resolution",
			Sources: []types.SourceRule{
				{Priority: 1, Source: types.Calculated{
					Calculation: types.CalcTimestampDiff,
					Inputs:      types.CalculationInputs{Start: "in_progress_at", End: "resolved_at"},
				}},
			},
		},
		{
			Name:        "lead_time",
			ValueKind:   types.ValueKindDuration,
			Category:    types.CategoryDORA,
			Description: "Seconds from creation to deployment",
			Sources: []types.SourceRule{
				{Priority: 1, Source: types.Calculated{
					Calculation: types.CalcTimestampDiff,
					Inputs:      types.CalculationInputs{Start: "created_at", End: "deployed_at"},
				}},
			},
		},
	}

	built := make([]*types.VariableMapping, 0, len(mappings))
	for _, m := range mappings {
		vm, err := types.NewVariableMapping(m)
		if err != nil {
			panic(fmt.Sprintf("catalog: invalid built-in mapping: %v", err))
		}
		built = append(built, vm)
	}
	c, err := types.NewCollection(DefaultVersion, built...)
	if err != nil {
		panic(fmt.Sprintf("catalog: invalid built-in collection: %v", err))
	}
	return c
}
