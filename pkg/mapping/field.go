// Package mapping models the index schema shipped alongside each partition
// definition. A mapping is a tree of Fields; leaves carry a concrete type and
// object/nested fields carry children.
package mapping

import (
	"sort"
	"strings"
)

// FieldType is an Elasticsearch field type.
type FieldType string

const (
	TypeObject   FieldType = "object"
	TypeNested   FieldType = "nested"
	TypeKeyword  FieldType = "keyword"
	TypeText     FieldType = "text"
	TypeLong     FieldType = "long"
	TypeInteger  FieldType = "integer"
	TypeShort    FieldType = "short"
	TypeByte     FieldType = "byte"
	TypeDouble   FieldType = "double"
	TypeFloat    FieldType = "float"
	TypeBoolean  FieldType = "boolean"
	TypeDate     FieldType = "date"
	TypeBinary   FieldType = "binary"
	TypeIP       FieldType = "ip"
	TypeGeoPoint FieldType = "geo_point"
	TypeGeoShape FieldType = "geo_shape"
	TypeJoin     FieldType = "join"
	TypeUnknown  FieldType = "unknown"
)

var knownTypes = map[FieldType]bool{
	TypeObject: true, TypeNested: true, TypeKeyword: true, TypeText: true,
	TypeLong: true, TypeInteger: true, TypeShort: true, TypeByte: true,
	TypeDouble: true, TypeFloat: true, TypeBoolean: true, TypeDate: true,
	TypeBinary: true, TypeIP: true, TypeGeoPoint: true, TypeGeoShape: true,
	TypeJoin: true,
}

// ParseFieldType maps a raw type name to a FieldType; unrecognized names
// become TypeUnknown.
func ParseFieldType(s string) FieldType {
	t := FieldType(strings.ToLower(s))
	if knownTypes[t] {
		return t
	}
	return TypeUnknown
}

// IsContainer reports whether fields of this type hold sub-properties.
func (t FieldType) IsContainer() bool {
	return t == TypeObject || t == TypeNested
}

// Field is one node of a mapping tree.
type Field struct {
	Name       string    `json:"name" yaml:"name"`
	Type       FieldType `json:"type" yaml:"type"`
	Properties []Field   `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// NewField creates a leaf field.
func NewField(name string, typ FieldType) Field {
	return Field{Name: name, Type: typ}
}

// NewObject creates a container field with the given children, sorted by name.
func NewObject(name string, children ...Field) Field {
	props := append([]Field(nil), children...)
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	return Field{Name: name, Type: TypeObject, Properties: props}
}

// Flatten returns the dotted path and type of every leaf beneath f.
// The root's own name is not part of the paths.
func (f Field) Flatten() map[string]FieldType {
	out := make(map[string]FieldType)
	for _, p := range f.Properties {
		p.flattenInto("", out)
	}
	return out
}

func (f Field) flattenInto(prefix string, out map[string]FieldType) {
	path := f.Name
	if prefix != "" {
		path = prefix + "." + f.Name
	}
	if len(f.Properties) == 0 {
		out[path] = f.Type
		return
	}
	for _, p := range f.Properties {
		p.flattenInto(path, out)
	}
}

// Lookup finds a field by dotted path relative to f.
func (f Field) Lookup(path string) (Field, bool) {
	cur := f
	for _, part := range strings.Split(path, ".") {
		found := false
		for _, p := range cur.Properties {
			if p.Name == part {
				cur = p
				found = true
				break
			}
		}
		if !found {
			return Field{}, false
		}
	}
	return cur, true
}
