package schema

import "fmt"

// Resolver looks up a named record or enum by full or short name
type Resolver func(name string) (Named, bool)

// Visitor is called for every field reached by Walk with its dotted path,
// rooted at the aspect name (e.g. "ownership.owners.owner").
type Visitor func(path string, f *Field) error

// ScopedResolver resolves names against the types defined inline in the
// aspect before falling back to resolve, which may be nil. A short name
// declared by the aspect itself always wins over a catalog type that shares it.
func ScopedResolver(a *AspectSchema, resolve Resolver) Resolver {
	local := make(map[string]Named)
	for _, n := range CollectNamed(a) {
		if _, ok := local[n.FullName()]; !ok {
			local[n.FullName()] = n
		}
		if _, ok := local[n.ShortName()]; !ok {
			local[n.ShortName()] = n
		}
	}
	return func(name string) (Named, bool) {
		if n, ok := local[name]; ok {
			return n, true
		}
		if resolve != nil {
			return resolve(name)
		}
		return nil, false
	}
}

// Walk visits every field of an aspect depth-first in declaration order,
// descending through nested records, array items, map values, nullable
// unions and resolved references. References resolve through
// ScopedResolver. Recursive record types are visited once per path.
func Walk(a *AspectSchema, resolve Resolver, visit Visitor) error {
	w := &walker{resolve: ScopedResolver(a, resolve), visit: visit, active: make(map[string]bool)}
	w.active[a.FullName()] = true
	return w.fields(a.Name, a.Fields)
}

type walker struct {
	resolve Resolver
	visit   Visitor
	active  map[string]bool // records on the current descent path
}

func (w *walker) fields(prefix string, fields []*Field) error {
	for _, f := range fields {
		path := prefix + "." + f.Name
		if err := w.visit(path, f); err != nil {
			return err
		}
		if err := w.descend(path, f.Type); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) descend(path string, t FieldType) error {
	switch t := t.(type) {
	case *Primitive, *Enum:
		return nil
	case *Record:
		name := t.FullName()
		if w.active[name] {
			return nil
		}
		w.active[name] = true
		defer delete(w.active, name)
		return w.fields(path, t.Fields)
	case *Array:
		return w.descend(path, t.Items)
	case *Map:
		return w.descend(path, t.Values)
	case *Nullable:
		return w.descend(path, t.Of)
	case *Ref:
		named, ok := w.resolve(t.Name)
		if !ok {
			return fmt.Errorf("unresolved type reference %s at %s", t.Name, path)
		}
		return w.descend(path, named)
	case nil:
		return fmt.Errorf("missing type at %s", path)
	default:
		return fmt.Errorf("unsupported field type %T at %s", t, path)
	}
}

// Unwrap strips a Nullable wrapper
func Unwrap(t FieldType) FieldType {
	if n, ok := t.(*Nullable); ok {
		return n.Of
	}
	return t
}

// CollectNamed returns every record and enum defined inline in the aspect,
// in declaration order. References are not followed.
func CollectNamed(a *AspectSchema) []Named {
	var out []Named
	var collect func(t FieldType)
	collect = func(t FieldType) {
		switch t := t.(type) {
		case *Enum:
			out = append(out, t)
		case *Record:
			out = append(out, t)
			for _, f := range t.Fields {
				collect(f.Type)
			}
		case *Array:
			collect(t.Items)
		case *Map:
			collect(t.Values)
		case *Nullable:
			collect(t.Of)
		}
	}
	for _, f := range a.Fields {
		collect(f.Type)
	}
	return out
}
