package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes routes every config format through one strict JSON
// decode. Files with a .yaml/.yml extension are parsed as YAML and
// re-marshaled to JSON; anything else is passed through untouched. The
// second return value reports which branch was taken.
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, "json", nil
	}

	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, "yaml", fmt.Errorf("parse yaml: %w", err)
	}
	out, err := json.Marshal(stringifyKeys(tree))
	if err != nil {
		return nil, "yaml", fmt.Errorf("encode yaml as json: %w", err)
	}
	return out, "yaml", nil
}

// stringifyKeys rewrites YAML's map[any]any nodes into map[string]any so
// the tree is JSON-marshalable. Slices and nested maps are walked in place.
func stringifyKeys(node any) any {
	switch v := node.(type) {
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[fmt.Sprint(key)] = stringifyKeys(val)
		}
		return out
	case map[string]any:
		for key, val := range v {
			v[key] = stringifyKeys(val)
		}
		return v
	case []any:
		for i, val := range v {
			v[i] = stringifyKeys(val)
		}
		return v
	}
	return node
}
