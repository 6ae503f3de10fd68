// Package schema defines the metadata model: aspects built from typed fields,
// entity definitions composed of aspects, and the annotations that declare
// search indexing and relationships between entity types.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates the FieldType variants
type Kind int

const (
	KindPrimitive Kind = iota
	KindEnum
	KindRecord
	KindArray
	KindMap
	KindNullable
	KindRef
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindEnum:
		return "enum"
	case KindRecord:
		return "record"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindNullable:
		return "nullable"
	case KindRef:
		return "ref"
	default:
		return "unknown"
	}
}

// PrimitiveType represents the built-in scalar types
type PrimitiveType int

const (
	TypeNull PrimitiveType = iota
	TypeBoolean
	TypeInt
	TypeLong
	TypeFloat
	TypeDouble
	TypeBytes
	TypeString
)

// String returns the string representation of the primitive type
func (p PrimitiveType) String() string {
	switch p {
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeInt:
		return "int"
	case TypeLong:
		return "long"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeBytes:
		return "bytes"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// ParsePrimitiveType converts a string to a PrimitiveType
func ParsePrimitiveType(s string) (PrimitiveType, error) {
	switch s {
	case "null":
		return TypeNull, nil
	case "boolean":
		return TypeBoolean, nil
	case "int":
		return TypeInt, nil
	case "long":
		return TypeLong, nil
	case "float":
		return TypeFloat, nil
	case "double":
		return TypeDouble, nil
	case "bytes":
		return TypeBytes, nil
	case "string":
		return TypeString, nil
	default:
		return 0, fmt.Errorf("unknown primitive type: %s", s)
	}
}

// FieldType is the closed set of value types a field can carry.
// Implementations: *Primitive, *Enum, *Record, *Array, *Map, *Nullable, *Ref.
type FieldType interface {
	Kind() Kind
	String() string
	clone() FieldType
}

// Named is a FieldType that can be referenced by name (records and enums)
type Named interface {
	FieldType
	FullName() string
	ShortName() string
}

// Primitive is a scalar type
type Primitive struct {
	Type PrimitiveType
}

func (p *Primitive) Kind() Kind { return KindPrimitive }
func (p *Primitive) String() string { return p.Type.String() }
func (p *Primitive) clone() FieldType { return &Primitive{Type: p.Type} }

// Enum is a named set of symbols
type Enum struct {
	Name       string
	Namespace  string
	Doc        string
	Symbols    []string
	SymbolDocs map[string]string
	Deprecated map[string]bool
}

func (e *Enum) Kind() Kind { return KindEnum }
func (e *Enum) String() string { return "enum<" + e.FullName() + ">" }
func (e *Enum) FullName() string { return qualify(e.Namespace, e.Name) }
func (e *Enum) ShortName() string { return e.Name }
func (e *Enum) clone() FieldType {
	c := *e
	c.Symbols = cloneSlice(e.Symbols)
	c.SymbolDocs = cloneMap(e.SymbolDocs)
	c.Deprecated = cloneMap(e.Deprecated)
	return &c
}

// Record is a named, ordered collection of fields
type Record struct {
	Name      string
	Namespace string
	Doc       string
	Fields    []*Field
}

func (r *Record) Kind() Kind { return KindRecord }
func (r *Record) String() string { return "record<" + r.FullName() + ">" }
func (r *Record) FullName() string { return qualify(r.Namespace, r.Name) }
func (r *Record) ShortName() string { return r.Name }
func (r *Record) clone() FieldType {
	c := *r
	c.Fields = cloneFields(r.Fields)
	return &c
}

// Field returns the field with the given name
func (r *Record) Field(name string) (*Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Array is a homogeneous list
type Array struct {
	Items FieldType
}

func (a *Array) Kind() Kind { return KindArray }
func (a *Array) String() string { return fmt.Sprintf("array<%s>", a.Items) }
func (a *Array) clone() FieldType { return &Array{Items: CloneType(a.Items)} }

// Map is a string-keyed map
type Map struct {
	Values FieldType
}

func (m *Map) Kind() Kind { return KindMap }
func (m *Map) String() string { return fmt.Sprintf("map<string, %s>", m.Values) }
func (m *Map) clone() FieldType { return &Map{Values: CloneType(m.Values)} }

// Nullable is the ["null", T] union
type Nullable struct {
	Of FieldType
}

func (n *Nullable) Kind() Kind { return KindNullable }
func (n *Nullable) String() string { return n.Of.String() + "?" }
func (n *Nullable) clone() FieldType { return &Nullable{Of: CloneType(n.Of)} }

// Ref refers to a named record or enum defined elsewhere in the schema set
type Ref struct {
	Name string
}

func (r *Ref) Kind() Kind { return KindRef }
func (r *Ref) String() string { return r.Name }
func (r *Ref) clone() FieldType { return &Ref{Name: r.Name} }

// Field is a single named member of a record
type Field struct {
	Name       string
	Type       FieldType
	Doc        string
	Default    json.RawMessage // nil when the field declares no default
	Searchable []SearchableAnnotation
	Relations  []RelationshipAnnotation
}

// HasDefault reports whether the field declares a default value ("null" counts)
func (f *Field) HasDefault() bool {
	return len(f.Default) > 0
}

// Clone returns a deep copy of the field
func (f *Field) Clone() *Field {
	if f == nil {
		return nil
	}
	c := *f
	c.Type = CloneType(f.Type)
	if f.Default != nil {
		c.Default = append(json.RawMessage(nil), f.Default...)
	}
	if f.Searchable != nil {
		c.Searchable = make([]SearchableAnnotation, len(f.Searchable))
		for i := range f.Searchable {
			c.Searchable[i] = f.Searchable[i].clone()
		}
	}
	if f.Relations != nil {
		c.Relations = make([]RelationshipAnnotation, len(f.Relations))
		for i := range f.Relations {
			c.Relations[i] = f.Relations[i].clone()
		}
	}
	return &c
}

// AspectSchema is a named, versioned record attachable to an entity
type AspectSchema struct {
	Name       string // aspect name, e.g. "ownership"
	RecordName string // record name, e.g. "Ownership"
	Namespace  string
	Doc        string
	Fields     []*Field
}

// FullName returns the namespace-qualified record name
func (a *AspectSchema) FullName() string {
	return qualify(a.Namespace, a.RecordName)
}

// Record exposes the aspect as a Record type so it can be walked like any nested record
func (a *AspectSchema) Record() *Record {
	return &Record{Name: a.RecordName, Namespace: a.Namespace, Doc: a.Doc, Fields: a.Fields}
}

// Field returns the top-level field with the given name
func (a *AspectSchema) Field(name string) (*Field, bool) {
	for _, f := range a.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the aspect
func (a *AspectSchema) Clone() *AspectSchema {
	if a == nil {
		return nil
	}
	c := *a
	c.Fields = cloneFields(a.Fields)
	return &c
}

// EntityDefinition is a named entity type: one key aspect plus the aspects it may carry
type EntityDefinition struct {
	Name      string   `json:"name" yaml:"name" toml:"name"`
	Doc       string   `json:"doc,omitempty" yaml:"doc,omitempty" toml:"doc,omitempty"`
	Category  string   `json:"category,omitempty" yaml:"category,omitempty" toml:"category,omitempty"`
	KeyAspect string   `json:"keyAspect" yaml:"keyAspect" toml:"keyAspect"`
	Aspects   []string `json:"aspects" yaml:"aspects" toml:"aspects"` // non-key aspects in declaration order
}

// AllAspects returns the key aspect followed by the non-key aspects
func (e *EntityDefinition) AllAspects() []string {
	all := make([]string, 0, len(e.Aspects)+1)
	all = append(all, e.KeyAspect)
	for _, a := range e.Aspects {
		if a != e.KeyAspect {
			all = append(all, a)
		}
	}
	return all
}

// Clone returns a copy of the definition
func (e *EntityDefinition) Clone() *EntityDefinition {
	if e == nil {
		return nil
	}
	c := *e
	c.Aspects = cloneSlice(e.Aspects)
	return &c
}

// EntityKey normalizes an entity type name for lookups; entity names are case-insensitive
func EntityKey(name string) string {
	return strings.ToLower(name)
}

// CloneType returns a deep copy of a FieldType
func CloneType(t FieldType) FieldType {
	if t == nil {
		return nil
	}
	return t.clone()
}

func qualify(namespace, name string) string {
	if namespace == "" || strings.Contains(name, ".") {
		return name
	}
	return namespace + "." + name
}

func cloneFields(fields []*Field) []*Field {
	if fields == nil {
		return nil
	}
	out := make([]*Field, len(fields))
	for i, f := range fields {
		out[i] = f.Clone()
	}
	return out
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append([]T(nil), s...)
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
