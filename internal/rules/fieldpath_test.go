package rules

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/varextract/internal/types"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decoding %s: %v", s, err)
	}
	return v
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		path    string
		want    []PathSegment
		wantErr error
	}{
		{
			path: "status.name",
			want: []PathSegment{{Key: "status"}, {Key: "name"}},
		},
		{
			path: "components.0.name",
			want: []PathSegment{{Key: "components"}, {Key: "0", Index: 0, IsIndex: true}, {Key: "name"}},
		},
		{
			path: "fixVersions.*.releaseDate",
			want: []PathSegment{{Key: "fixVersions"}, {Wildcard: true}, {Key: "releaseDate"}},
		},
		{path: "", wantErr: types.ErrFieldNotFound},
		{path: "a..b", wantErr: types.ErrFieldNotFound},
		{path: strings.Repeat("a.", types.MaxPathDepth) + "a", wantErr: types.ErrPathTooDeep},
		{path: "*.*.*", wantErr: types.ErrTooManyWildcards},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ParsePath(tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParsePath() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParsePath() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolve_Normal(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		data     string
		expected any
	}{
		{
			name:     "nested object traversal",
			path:     "status.name",
			data:     `{"status": {"name": "Done"}}`,
			expected: "Done",
		},
		{
			name:     "array index access",
			path:     "components.0.name",
			data:     `{"components": [{"name": "api"}]}`,
			expected: "api",
		},
		{
			name:     "single wildcard first match",
			path:     "fixVersions.*.releaseDate",
			data:     `{"fixVersions": [{"name": "1.0"}, {"releaseDate": "2024-02-01"}]}`,
			expected: "2024-02-01",
		},
		{
			name:     "wildcard on object sorted keys",
			path:     "*.value",
			data:     `{"z": {"value": 1}, "a": {"value": 2}, "m": {"value": 3}}`,
			expected: float64(2),
		},
		{
			name:     "digit key on object",
			path:     "custom.0",
			data:     `{"custom": {"0": "zero"}}`,
			expected: "zero",
		},
		{
			name:     "nested wildcards",
			path:     "sprints.*.goals.*.points",
			data:     `{"sprints": [{"goals": [{"title": "x"}]}, {"goals": [{"points": 3}]}]}`,
			expected: float64(3),
		},
		{
			name:     "false is a value",
			path:     "flagged",
			data:     `{"flagged": false}`,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := ParsePath(tt.path)
			if err != nil {
				t.Fatalf("ParsePath() error = %v", err)
			}
			result, err := Resolve(path, decode(t, tt.data))
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if !result.Found {
				t.Fatalf("Resolve() Found = false, want true")
			}
			if result.Value != tt.expected {
				t.Errorf("Resolve() Value = %v, expected %v", result.Value, tt.expected)
			}
		})
	}
}

func TestResolve_ResolvedPath(t *testing.T) {
	path, _ := ParsePath("fixVersions.*.releaseDate")
	result, err := Resolve(path, decode(t, `{"fixVersions": [{"name": "1.0"}, {"releaseDate": "2024-02-01"}]}`))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	expected := []PathSegment{
		{Key: "fixVersions"},
		{Key: "1", Index: 1, IsIndex: true},
		{Key: "releaseDate"},
	}
	if !reflect.DeepEqual(result.ResolvedPath, expected) {
		t.Errorf("ResolvedPath = %+v, expected %+v", result.ResolvedPath, expected)
	}
}

func TestResolve_NotFound(t *testing.T) {
	tests := []struct {
		name string
		path string
		data string
	}{
		{"empty object", "missing", `{}`},
		{"empty array", "0", `[]`},
		{"empty array with wildcard", "*.price", `[]`},
		{"null value at intermediate level", "assignee.name", `{"assignee": null}`},
		{"null terminal value", "resolutiondate", `{"resolutiondate": null}`},
		{"scalar value but path continues", "summary.text", `{"summary": "scalar"}`},
		{"array index out of bounds", "5", `[1, 2, 3]`},
		{"string key on array", "key", `[1, 2, 3]`},
		{"wildcard on empty object", "*.value", `{}`},
		{"missing intermediate key", "a.b.c", `{"a": {"x": "wrong"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := ParsePath(tt.path)
			if err != nil {
				t.Fatalf("ParsePath() error = %v", err)
			}
			if _, err := Resolve(path, decode(t, tt.data)); !errors.Is(err, types.ErrFieldNotFound) {
				t.Errorf("Resolve() error = %v, want ErrFieldNotFound", err)
			}
		})
	}
}

func TestResolve_TooDeep(t *testing.T) {
	path := make([]PathSegment, types.MaxPathDepth+1)
	for i := range path {
		path[i] = PathSegment{Key: "a"}
	}
	if _, err := Resolve(path, map[string]any{}); !errors.Is(err, types.ErrPathTooDeep) {
		t.Errorf("Resolve() error = %v, want ErrPathTooDeep", err)
	}
}

func TestResolveField(t *testing.T) {
	rec := types.Record{"fields": map[string]any{"status": map[string]any{"name": "Done"}}}
	if v, ok := resolveField(rec, "status.name"); !ok || v != "Done" {
		t.Errorf("resolveField() = %v, %v", v, ok)
	}
	if _, ok := resolveField(types.Record{"key": "OPS-1"}, "status"); ok {
		t.Errorf("resolveField() found a value in a record without fields")
	}
}

func TestResolve_PropertyNeverCrashes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	data := map[string]any{"key": []any{map[string]any{"key": "value"}, nil, float64(1)}}

	properties.Property("resolution never crashes regardless of input", prop.ForAll(
		func(depth int, wildcards int, useArray bool) (ok bool) {
			path := make([]PathSegment, depth)
			wildcardCount := 0
			for i := 0; i < depth; i++ {
				switch {
				case wildcardCount < wildcards && i%2 == 0:
					path[i] = PathSegment{Wildcard: true}
					wildcardCount++
				case useArray && i%3 == 0:
					path[i] = PathSegment{Index: i, IsIndex: true}
				default:
					path[i] = PathSegment{Key: "key"}
				}
			}

			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Resolve() panicked: %v", r)
					ok = false
				}
			}()
			_, _ = Resolve(path, data)
			return true
		},
		gen.IntRange(0, 20),
		gen.IntRange(0, 5),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestResolve_PropertyWildcardDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("wildcard over object keys picks the smallest matching key", prop.ForAll(
		func(keys []string) bool {
			if len(keys) == 0 {
				return true
			}
			data := make(map[string]any, len(keys))
			smallest := keys[0]
			for _, k := range keys {
				data[k] = map[string]any{"value": k}
				if k < smallest {
					smallest = k
				}
			}
			path, _ := ParsePath("*.value")
			res, err := Resolve(path, data)
			return err == nil && res.Value == smallest
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}
