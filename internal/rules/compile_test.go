package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/solatis/varextract/internal/types"
)

func TestCompile_OrdersRulesByPriority(t *testing.T) {
	m := &types.VariableMapping{
		Name:      "resolved_at",
		ValueKind: types.ValueKindDatetime,
		Sources: []types.SourceRule{
			{Priority: 3, Source: types.FieldValue{Field: "updated"}},
			{Priority: 1, Source: types.FieldValue{Field: "resolutiondate"}},
			{Priority: 2, Source: types.ChangelogTimestamp{Field: "status", Condition: types.TransitionCondition{To: types.StringList{"Done"}}}},
		},
		FallbackSource: &types.SourceRule{Priority: 99, Source: types.FixVersionRelease{Selector: types.SelectFirst}},
	}

	cv, err := CompileVariable(m)
	if err != nil {
		t.Fatalf("CompileVariable() error = %v", err)
	}
	for i, want := range []int{1, 2, 3} {
		if cv.Rules[i].Priority != want {
			t.Errorf("Rules[%d].Priority = %d, want %d", i, cv.Rules[i].Priority, want)
		}
	}
	if cv.Rules[0].Path == nil || cv.Rules[0].Path[0].Key != "resolutiondate" {
		t.Errorf("field path not pre-parsed: %+v", cv.Rules[0].Path)
	}
	if cv.Rules[1].Path != nil {
		t.Errorf("changelog rule has a field path: %+v", cv.Rules[1].Path)
	}
	if cv.Fallback == nil || cv.Fallback.Path[0].Key != types.DefaultVersionField {
		t.Errorf("fallback did not default to %s: %+v", types.DefaultVersionField, cv.Fallback)
	}
}

func TestCompile_RejectsUnvalidatedDuplicates(t *testing.T) {
	// assembled without NewVariableMapping
	m := &types.VariableMapping{
		Name:      "deployed_at",
		ValueKind: types.ValueKindDatetime,
		Sources: []types.SourceRule{
			{Priority: 1, Source: types.FieldValue{Field: "a"}},
			{Priority: 1, Source: types.FieldValue{Field: "b"}},
		},
	}
	_, err := CompileVariable(m)
	var cfgErr *types.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("CompileVariable() error = %v, want ConfigurationError", err)
	}
	if len(cfgErr.Priorities) != 1 || cfgErr.Priorities[0] != 1 {
		t.Errorf("Priorities = %v, want [1]", cfgErr.Priorities)
	}
}

func TestCompile_FieldPathLimits(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		wantErr bool
	}{
		{"maximum wildcards allowed", "sprints.*.goals.*.points", false},
		{"maximum depth allowed", strings.TrimSuffix(strings.Repeat("a.", types.MaxPathDepth), "."), false},
		{"too many wildcards", "*.*.*", true},
		{"too deep", strings.Repeat("a.", types.MaxPathDepth) + "a", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &types.VariableMapping{
				Name:      "x",
				ValueKind: types.ValueKindCategory,
				Sources:   []types.SourceRule{{Priority: 1, Source: types.FieldValue{Field: tt.field}}},
			}
			_, err := CompileVariable(m)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CompileVariable() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, types.ErrConfiguration) {
				t.Errorf("error %v does not wrap ErrConfiguration", err)
			}
		})
	}
}

func TestCompile_MaximumMatchValues(t *testing.T) {
	values := make([]any, types.MaxMatchValues+1)
	for i := range values {
		values[i] = "v"
	}
	m := &types.VariableMapping{
		Name:      "is_incident",
		ValueKind: types.ValueKindBoolean,
		Sources: []types.SourceRule{{Priority: 1, Source: types.FieldValueMatch{
			Field: "issuetype.name", Operator: types.OpIn, Value: values,
		}}},
	}
	if _, err := CompileVariable(m); !errors.Is(err, types.ErrConfiguration) {
		t.Fatalf("CompileVariable() error = %v, want ErrConfiguration", err)
	}

	m.Sources[0].Source = types.FieldValueMatch{Field: "issuetype.name", Operator: types.OpIn, Value: values[:types.MaxMatchValues]}
	if _, err := CompileVariable(m); err != nil {
		t.Fatalf("CompileVariable() at the limit error = %v", err)
	}
}

func TestCompile_NilCollection(t *testing.T) {
	if _, err := Compile(nil); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("Compile(nil) error = %v, want ErrConfiguration", err)
	}
}
