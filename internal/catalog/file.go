package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/solatis/varextract/internal/namespace"
	"github.com/solatis/varextract/internal/types"
)

// LoadFile reads a mapping document from disk.
//
// Two document shapes are accepted, told apart by their top-level keys:
// a document with "paths" is an Overrides file applied on top of
// DefaultCollection, anything else must be a full collection.
func LoadFile(path string, compiler *namespace.Compiler) (*types.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mappings file: %w", err)
	}
	c, err := Load(data, FormatFromPath(path), compiler)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return c, nil
}

// Load decodes a mapping document already in memory. See LoadFile.
func Load(data []byte, f Format, compiler *namespace.Compiler) (*types.Collection, error) {
	asJSON, err := toJSON(data, f)
	if err != nil {
		return nil, err
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(asJSON, &probe); err != nil {
		return nil, fmt.Errorf("mapping document must be an object: %w", err)
	}

	if _, ok := probe["paths"]; ok {
		ov, err := DecodeOverrides(asJSON, FormatJSON)
		if err != nil {
			return nil, err
		}
		return ApplyOverrides(DefaultCollection(), ov, compiler)
	}
	return DecodeCollection(asJSON, FormatJSON)
}
