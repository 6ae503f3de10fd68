package schema

import (
	"fmt"
	"strings"
)

// AspectValidator checks the structural integrity of an aspect against the
// named types known to the registry.
type AspectValidator struct {
	resolve Resolver
}

// NewAspectValidator creates a validator that resolves references with resolve.
// A nil resolver treats every reference to a type outside the aspect as unresolved.
func NewAspectValidator(resolve Resolver) *AspectValidator {
	return &AspectValidator{resolve: resolve}
}

// Validate returns an *InvalidFieldError for the first violation found:
// missing names, duplicate field names within a record, unsupported or
// unresolved types, and malformed relationship or searchable annotations.
func (v *AspectValidator) Validate(a *AspectSchema) error {
	if a.Name == "" {
		return &InvalidFieldError{Aspect: a.RecordName, Reason: "aspect name is required"}
	}

	c := &checker{aspect: a.Name, resolve: ScopedResolver(a, v.resolve)}
	return c.record(a.Name, a.Fields)
}

type checker struct {
	aspect  string
	resolve Resolver
}

func (c *checker) invalid(path, format string, args ...interface{}) error {
	return &InvalidFieldError{Aspect: c.aspect, Path: path, Reason: fmt.Sprintf(format, args...)}
}

func (c *checker) record(prefix string, fields []*Field) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f == nil || f.Name == "" {
			return c.invalid(prefix, "field name is required")
		}
		path := prefix + "." + f.Name
		if seen[f.Name] {
			return c.invalid(path, "duplicate field name %q", f.Name)
		}
		seen[f.Name] = true

		if err := c.fieldType(path, f.Type); err != nil {
			return err
		}
		for _, rel := range f.Relations {
			if err := c.relationship(path, f, rel); err != nil {
				return err
			}
		}
		for _, s := range f.Searchable {
			if _, err := c.target(path, f.Type, s.Path); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *checker) fieldType(path string, t FieldType) error {
	switch t := t.(type) {
	case *Primitive:
		return nil
	case *Enum:
		if t.Name == "" {
			return c.invalid(path, "enum name is required")
		}
		if len(t.Symbols) == 0 {
			return c.invalid(path, "enum %s declares no symbols", t.Name)
		}
		return nil
	case *Record:
		if t.Name == "" {
			return c.invalid(path, "record name is required")
		}
		return c.record(path, t.Fields)
	case *Array:
		return c.fieldType(path, t.Items)
	case *Map:
		return c.fieldType(path, t.Values)
	case *Nullable:
		if _, nested := t.Of.(*Nullable); nested {
			return c.invalid(path, "nested nullable union")
		}
		return c.fieldType(path, t.Of)
	case *Ref:
		if _, ok := c.resolve(t.Name); !ok {
			return c.invalid(path, "unresolved type reference %s", t.Name)
		}
		return nil
	case nil:
		return c.invalid(path, "type is required")
	default:
		return c.invalid(path, "unsupported type %T", t)
	}
}

func (c *checker) relationship(path string, f *Field, rel RelationshipAnnotation) error {
	if rel.Name == "" {
		return c.invalid(path, "relationship annotation has no name")
	}
	if len(rel.EntityTypes) == 0 {
		return c.invalid(path, "relationship %s declares no target entity types", rel.Name)
	}
	for _, et := range rel.EntityTypes {
		if et == "" {
			return c.invalid(path, "relationship %s has an empty target entity type", rel.Name)
		}
	}
	_, err := c.target(path, f.Type, rel.Path)
	return err
}

// target resolves the type an annotation path points at, starting from the field type
func (c *checker) target(path string, t FieldType, annotationPath string) (FieldType, error) {
	if annotationPath == "" {
		return t, nil
	}
	cur := t
	for _, part := range splitPath(annotationPath) {
		cur = c.deref(Unwrap(c.deref(cur)))
		if part == "*" {
			switch ct := cur.(type) {
			case *Array:
				cur = ct.Items
			case *Map:
				cur = ct.Values
			default:
				return nil, c.invalid(path, "annotation path %s: wildcard on non-collection type %s", annotationPath, cur)
			}
			continue
		}
		rec, ok := cur.(*Record)
		if !ok {
			return nil, c.invalid(path, "annotation path %s: %s is not a record", annotationPath, cur)
		}
		f, ok := rec.Field(part)
		if !ok {
			return nil, c.invalid(path, "annotation path %s: no field %s in %s", annotationPath, part, rec.Name)
		}
		cur = f.Type
	}
	return cur, nil
}

func (c *checker) deref(t FieldType) FieldType {
	if r, ok := t.(*Ref); ok {
		if n, ok := c.resolve(r.Name); ok {
			return n
		}
	}
	return t
}

func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}
