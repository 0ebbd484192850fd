package catalog

import (
	"fmt"
	"sort"

	"github.com/solatis/varextract/internal/namespace"
	"github.com/solatis/varextract/internal/types"
)

// Overrides is a customer document that replaces the sources of individual
// variables with namespace paths. Paths are tried in list order.
type Overrides struct {
	Version string              `json:"version,omitempty" yaml:"version,omitempty"`
	Paths   map[string][]string `json:"paths" yaml:"paths"`
}

// ApplyOverrides returns base with each overridden variable's sources replaced
// by the compiled paths. Metadata (kind, category, required, fallback,
// category mapping) of known variables is kept. Unknown names become optional
// variables whose kind is inferred from their first path.
//
// A variable whose paths all fail to parse is a configuration error; partially
// valid lists keep the valid paths.
func ApplyOverrides(base *types.Collection, ov Overrides, compiler *namespace.Compiler) (*types.Collection, error) {
	if compiler == nil {
		compiler = namespace.NewCompiler(nil)
	}

	names := make([]string, 0, len(ov.Paths))
	for name := range ov.Paths {
		names = append(names, name)
	}
	sort.Strings(names)

	mappings := make([]*types.VariableMapping, 0, len(names))
	for _, name := range names {
		paths := ov.Paths[name]
		rules := compiler.TranslateMultiple(paths)
		if len(rules) == 0 {
			return nil, &types.ConfigurationError{Variable: name, Reason: "no valid namespace paths"}
		}

		var m types.VariableMapping
		if existing, ok := base.Get(name); ok {
			m = *existing
		} else {
			m = types.VariableMapping{
				Name:      name,
				ValueKind: firstKind(paths),
				Category:  types.CategoryCommon,
			}
		}
		m.Sources = rules

		built, err := types.NewVariableMapping(m)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, built)
	}

	version := ov.Version
	if version == "" {
		version = base.Version() + "+overrides"
	}
	merged, err := base.With(version, mappings...)
	if err != nil {
		return nil, fmt.Errorf("merging overrides: %w", err)
	}
	return merged, nil
}

func firstKind(paths []string) types.ValueKind {
	for _, path := range paths {
		if p, err := namespace.Parse(path); err == nil {
			return p.ValueKind
		}
	}
	return types.ValueKindString
}
