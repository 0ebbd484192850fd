package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/solatis/varextract/internal/types"
)

/*
 * Document encoding.
 *
 * The canonical form of a collection is its JSON encoding (types.Collection
 * implements json.Marshaler/Unmarshaler, including the kind-tagged source
 * envelope). YAML is supported by bridging: YAML documents are decoded into a
 * generic tree, re-encoded as JSON and decoded through the same validating
 * path, so both formats accept exactly the same documents.
 */

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a user-supplied name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown format %q (want json or yaml)", s)
}

// FormatFromPath picks the format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// EncodeCollection serializes c in the given format.
func EncodeCollection(c *types.Collection, f Format) ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding collection: %w", err)
	}
	if f != FormatYAML {
		return data, nil
	}
	return jsonToYAML(data)
}

// DecodeCollection parses and validates a collection document.
func DecodeCollection(data []byte, f Format) (*types.Collection, error) {
	data, err := toJSON(data, f)
	if err != nil {
		return nil, err
	}
	var c types.Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DecodeOverrides parses an overrides document.
func DecodeOverrides(data []byte, f Format) (Overrides, error) {
	var ov Overrides
	data, err := toJSON(data, f)
	if err != nil {
		return ov, err
	}
	if err := json.Unmarshal(data, &ov); err != nil {
		return ov, fmt.Errorf("decoding overrides: %w", err)
	}
	return ov, nil
}

func toJSON(data []byte, f Format) ([]byte, error) {
	if f != FormatYAML {
		return data, nil
	}
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}
	out, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("converting yaml to json: %w", err)
	}
	return out, nil
}

func jsonToYAML(data []byte) ([]byte, error) {
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
