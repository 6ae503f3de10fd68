package avro

import (
	"encoding/json"
	"fmt"

	"github.com/metagraph-dev/metagraph/pkg/schema"
)

type encRecord struct {
	Type      string     `json:"type"`
	Aspect    *rawAspect `json:"Aspect,omitempty"`
	Name      string     `json:"name"`
	Namespace string     `json:"namespace,omitempty"`
	Fields    []encField `json:"fields"`
	Doc       string     `json:"doc,omitempty"`
}

type encEnum struct {
	Type              string            `json:"type"`
	Name              string            `json:"name"`
	Namespace         string            `json:"namespace,omitempty"`
	Symbols           []string          `json:"symbols"`
	SymbolDocs        map[string]string `json:"symbolDocs,omitempty"`
	DeprecatedSymbols map[string]bool   `json:"deprecatedSymbols,omitempty"`
	Doc               string            `json:"doc,omitempty"`
}

type encField struct {
	Relationship interface{}     `json:"Relationship,omitempty"`
	Searchable   interface{}     `json:"Searchable,omitempty"`
	Type         interface{}     `json:"type"`
	Name         string          `json:"name"`
	Default      json.RawMessage `json:"default,omitempty"`
	Doc          string          `json:"doc,omitempty"`
}

// EncodeAspect renders an aspect in the source format. Decoding the output
// yields a value deep-equal to the input.
func EncodeAspect(a *schema.AspectSchema) ([]byte, error) {
	fields, err := encodeFields(a.Fields)
	if err != nil {
		return nil, fmt.Errorf("aspect %s: %w", a.Name, err)
	}
	return json.Marshal(encRecord{
		Type:      "record",
		Aspect:    &rawAspect{Name: a.Name},
		Name:      a.RecordName,
		Namespace: a.Namespace,
		Fields:    fields,
		Doc:       a.Doc,
	})
}

// EncodeType renders a shared named type in the source format
func EncodeType(n schema.Named) ([]byte, error) {
	v, err := encodeType(n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func encodeFields(fields []*schema.Field) ([]encField, error) {
	out := make([]encField, 0, len(fields))
	for _, f := range fields {
		t, err := encodeType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		ef := encField{
			Type:    t,
			Name:    f.Name,
			Default: f.Default,
			Doc:     f.Doc,
		}
		if len(f.Relations) > 0 {
			ef.Relationship = encodeRelations(f.Relations)
		}
		if len(f.Searchable) > 0 {
			ef.Searchable = encodeSearchable(f.Searchable)
		}
		out = append(out, ef)
	}
	return out, nil
}

func encodeType(t schema.FieldType) (interface{}, error) {
	switch t := t.(type) {
	case *schema.Primitive:
		return t.Type.String(), nil
	case *schema.Ref:
		return t.Name, nil
	case *schema.Nullable:
		of, err := encodeType(t.Of)
		if err != nil {
			return nil, err
		}
		return []interface{}{"null", of}, nil
	case *schema.Array:
		items, err := encodeType(t.Items)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"type": "array", "items": items}, nil
	case *schema.Map:
		values, err := encodeType(t.Values)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"type": "map", "values": values}, nil
	case *schema.Enum:
		return encEnum{
			Type:              "enum",
			Name:              t.Name,
			Namespace:         t.Namespace,
			Symbols:           t.Symbols,
			SymbolDocs:        t.SymbolDocs,
			DeprecatedSymbols: t.Deprecated,
			Doc:               t.Doc,
		}, nil
	case *schema.Record:
		fields, err := encodeFields(t.Fields)
		if err != nil {
			return nil, err
		}
		return encRecord{
			Type:      "record",
			Name:      t.Name,
			Namespace: t.Namespace,
			Fields:    fields,
			Doc:       t.Doc,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported field type %T", t)
	}
}

func encodeRelations(rels []schema.RelationshipAnnotation) interface{} {
	if len(rels) == 1 && rels[0].Path == "" {
		return rels[0]
	}
	keyed := make(map[string]schema.RelationshipAnnotation, len(rels))
	for _, r := range rels {
		keyed[r.Path] = r
	}
	return keyed
}

func encodeSearchable(anns []schema.SearchableAnnotation) interface{} {
	if len(anns) == 1 && anns[0].Path == "" {
		return anns[0]
	}
	keyed := make(map[string]schema.SearchableAnnotation, len(anns))
	for _, s := range anns {
		keyed[s.Path] = s
	}
	return keyed
}
