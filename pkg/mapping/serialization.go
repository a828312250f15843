package mapping

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang/snappy"
	"gopkg.in/yaml.v3"
)

// SerializeToBase64 encodes the mapping as base64(snappy(json(field))).
// The result is the opaque mapping payload carried by partition definitions.
func (f *Field) SerializeToBase64() (string, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("mapping: failed to marshal field: %w", err)
	}
	compressed := snappy.Encode(nil, raw)
	return base64.StdEncoding.EncodeToString(compressed), nil
}

// DeserializeFromBase64 reverses SerializeToBase64.
func DeserializeFromBase64(payload string) (*Field, error) {
	compressed, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("mapping: invalid base64 data: %w", err)
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("mapping: snappy decompress failed: %w", err)
	}
	var f Field
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("mapping: failed to unmarshal field: %w", err)
	}
	return &f, nil
}

// ParseMapping converts an Elasticsearch-style mapping document
// ({"properties": {"name": {"type": "keyword"}, ...}}) into a Field tree
// rooted at a field named root.
func ParseMapping(root string, doc map[string]interface{}) (*Field, error) {
	if m, ok := doc["mappings"].(map[string]interface{}); ok {
		doc = m
	}
	props, ok := doc["properties"].(map[string]interface{})
	if !ok {
		return nil, errors.New("mapping: document has no properties")
	}
	children, err := parseProperties(props)
	if err != nil {
		return nil, err
	}
	return &Field{Name: root, Type: TypeObject, Properties: children}, nil
}

func parseProperties(props map[string]interface{}) ([]Field, error) {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		def, ok := props[name].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("mapping: property %q is not an object", name)
		}

		field := Field{Name: name}
		if sub, ok := def["properties"].(map[string]interface{}); ok {
			children, err := parseProperties(sub)
			if err != nil {
				return nil, fmt.Errorf("mapping: %s: %w", name, err)
			}
			field.Properties = children
			field.Type = TypeObject
		}
		if typ, ok := def["type"].(string); ok {
			field.Type = ParseFieldType(typ)
		} else if field.Type == "" {
			return nil, fmt.Errorf("mapping: property %q has no type", name)
		}
		fields = append(fields, field)
	}
	return fields, nil
}

// ParseFile loads an Elasticsearch-style mapping from a YAML or JSON file.
// The root field is named after the file's base name without extension.
func ParseFile(path string) (*Field, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mapping: failed to read mapping file: %w", err)
	}

	var doc map[string]interface{}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("mapping: failed to parse YAML mapping: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("mapping: failed to parse JSON mapping: %w", err)
		}
	default:
		return nil, fmt.Errorf("mapping: unsupported mapping file format: %s", ext)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ParseMapping(name, doc)
}
