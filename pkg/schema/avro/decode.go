// Package avro reads and writes aspect schemas in the Avro-style JSON source
// format: records carrying "Aspect", "Searchable" and "Relationship" blocks.
package avro

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/metagraph-dev/metagraph/pkg/schema"
)

// Document is the decoded content of one schema source. Records with an
// "Aspect" block become aspects; any other top-level record or enum is a
// shared named type.
type Document struct {
	Aspects []*schema.AspectSchema
	Types   []schema.Named
}

type rawRecord struct {
	Type      string          `json:"type"`
	Aspect    *rawAspect      `json:"Aspect"`
	Name      string          `json:"name"`
	Namespace string          `json:"namespace"`
	Doc       string          `json:"doc"`
	Fields    []rawField      `json:"fields"`
	Symbols   []string        `json:"symbols"`
	Items     json.RawMessage `json:"items"`
	Values    json.RawMessage `json:"values"`

	SymbolDocs        map[string]string `json:"symbolDocs"`
	DeprecatedSymbols map[string]bool   `json:"deprecatedSymbols"`
}

type rawAspect struct {
	Name string `json:"name"`
}

type rawField struct {
	Name         string          `json:"name"`
	Type         json.RawMessage `json:"type"`
	Doc          string          `json:"doc"`
	Default      json.RawMessage `json:"default"`
	Searchable   json.RawMessage `json:"Searchable"`
	Relationship json.RawMessage `json:"Relationship"`
}

// Decode parses a source holding a single record or an array of records
func Decode(data []byte) (*Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty schema source")
	}

	var raws []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("failed to parse schema array: %w", err)
		}
	} else {
		raws = []json.RawMessage{data}
	}

	doc := &Document{}
	for i, raw := range raws {
		var rec rawRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse schema record %d: %w", i, err)
		}
		if rec.Aspect != nil {
			aspect, err := decodeAspect(&rec)
			if err != nil {
				return nil, err
			}
			doc.Aspects = append(doc.Aspects, aspect)
			continue
		}
		d := &decoder{aspect: rec.Name}
		t, err := d.object(rec.Name, &rec, "")
		if err != nil {
			return nil, err
		}
		named, ok := t.(schema.Named)
		if !ok {
			return nil, fmt.Errorf("schema record %d: top-level type %s is not a record or enum", i, t)
		}
		doc.Types = append(doc.Types, named)
	}
	return doc, nil
}

// DecodeAspect parses a source that must hold exactly one aspect record
func DecodeAspect(data []byte) (*schema.AspectSchema, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if len(doc.Aspects) != 1 || len(doc.Types) != 0 {
		return nil, fmt.Errorf("expected exactly one aspect record, got %d aspects and %d types",
			len(doc.Aspects), len(doc.Types))
	}
	return doc.Aspects[0], nil
}

func decodeAspect(rec *rawRecord) (*schema.AspectSchema, error) {
	if rec.Type != "record" {
		return nil, fmt.Errorf("aspect %s: expected record type, got %q", rec.Aspect.Name, rec.Type)
	}
	if rec.Aspect.Name == "" {
		return nil, &schema.InvalidFieldError{Aspect: rec.Name, Reason: "Aspect block has no name"}
	}
	d := &decoder{aspect: rec.Aspect.Name}
	fields, err := d.fields(rec.Aspect.Name, rec.Namespace, rec.Fields)
	if err != nil {
		return nil, err
	}
	return &schema.AspectSchema{
		Name:       rec.Aspect.Name,
		RecordName: rec.Name,
		Namespace:  rec.Namespace,
		Doc:        rec.Doc,
		Fields:     fields,
	}, nil
}

type decoder struct {
	aspect string
}

func (d *decoder) invalid(path, format string, args ...interface{}) error {
	return &schema.InvalidFieldError{Aspect: d.aspect, Path: path, Reason: fmt.Sprintf(format, args...)}
}

func (d *decoder) fields(prefix, namespace string, raws []rawField) ([]*schema.Field, error) {
	fields := make([]*schema.Field, 0, len(raws))
	for _, rf := range raws {
		path := prefix + "." + rf.Name
		t, err := d.fieldType(path, namespace, rf.Type)
		if err != nil {
			return nil, err
		}
		f := &schema.Field{
			Name:    rf.Name,
			Type:    t,
			Doc:     rf.Doc,
			Default: rf.Default,
		}
		if f.Searchable, err = decodeSearchable(rf.Searchable); err != nil {
			return nil, d.invalid(path, "bad Searchable annotation: %v", err)
		}
		if f.Relations, err = decodeRelationship(rf.Relationship); err != nil {
			return nil, d.invalid(path, "bad Relationship annotation: %v", err)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (d *decoder) fieldType(path, namespace string, raw json.RawMessage) (schema.FieldType, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, d.invalid(path, "missing type")
	}

	switch raw[0] {
	case '"':
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, d.invalid(path, "bad type name: %v", err)
		}
		if p, err := schema.ParsePrimitiveType(name); err == nil {
			return &schema.Primitive{Type: p}, nil
		}
		return &schema.Ref{Name: name}, nil

	case '[':
		var members []json.RawMessage
		if err := json.Unmarshal(raw, &members); err != nil {
			return nil, d.invalid(path, "bad union: %v", err)
		}
		if len(members) != 2 {
			return nil, d.invalid(path, "unsupported union with %d members", len(members))
		}
		nullIdx := -1
		for i, m := range members {
			if string(bytes.TrimSpace(m)) == `"null"` {
				nullIdx = i
			}
		}
		if nullIdx < 0 {
			return nil, d.invalid(path, "unsupported union without null member")
		}
		of, err := d.fieldType(path, namespace, members[1-nullIdx])
		if err != nil {
			return nil, err
		}
		if _, ok := of.(*schema.Nullable); ok {
			return nil, d.invalid(path, "nested nullable union")
		}
		return &schema.Nullable{Of: of}, nil

	case '{':
		var rec rawRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, d.invalid(path, "bad type object: %v", err)
		}
		return d.object(path, &rec, namespace)

	default:
		return nil, d.invalid(path, "unexpected type literal %s", string(raw))
	}
}

func (d *decoder) object(path string, rec *rawRecord, namespace string) (schema.FieldType, error) {
	if rec.Namespace != "" {
		namespace = rec.Namespace
	}
	switch rec.Type {
	case "record", "error":
		fields, err := d.fields(path, namespace, rec.Fields)
		if err != nil {
			return nil, err
		}
		return &schema.Record{Name: rec.Name, Namespace: namespace, Doc: rec.Doc, Fields: fields}, nil
	case "enum":
		return &schema.Enum{
			Name:       rec.Name,
			Namespace:  namespace,
			Doc:        rec.Doc,
			Symbols:    rec.Symbols,
			SymbolDocs: rec.SymbolDocs,
			Deprecated: rec.DeprecatedSymbols,
		}, nil
	case "array":
		items, err := d.fieldType(path, namespace, rec.Items)
		if err != nil {
			return nil, err
		}
		return &schema.Array{Items: items}, nil
	case "map":
		values, err := d.fieldType(path, namespace, rec.Values)
		if err != nil {
			return nil, err
		}
		return &schema.Map{Values: values}, nil
	default:
		if p, err := schema.ParsePrimitiveType(rec.Type); err == nil {
			return &schema.Primitive{Type: p}, nil
		}
		return nil, d.invalid(path, "unsupported type %q", rec.Type)
	}
}

func decodeSearchable(raw json.RawMessage) ([]schema.SearchableAnnotation, error) {
	var out []schema.SearchableAnnotation
	err := decodeAnnotation(raw, func(path string, body json.RawMessage) error {
		var s schema.SearchableAnnotation
		if err := json.Unmarshal(body, &s); err != nil {
			return err
		}
		s.Path = path
		out = append(out, s)
		return nil
	})
	return out, err
}

func decodeRelationship(raw json.RawMessage) ([]schema.RelationshipAnnotation, error) {
	var out []schema.RelationshipAnnotation
	err := decodeAnnotation(raw, func(path string, body json.RawMessage) error {
		var r schema.RelationshipAnnotation
		if err := json.Unmarshal(body, &r); err != nil {
			return err
		}
		r.Path = path
		out = append(out, r)
		return nil
	})
	return out, err
}

// decodeAnnotation handles both the direct form {"name": ...} and the
// path-keyed form {"/*": {"name": ...}}. Path keys are visited in sorted order.
func decodeAnnotation(raw json.RawMessage, fn func(path string, body json.RawMessage) error) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return err
	}

	pathKeyed := false
	for k := range keyed {
		if strings.HasPrefix(k, "/") {
			pathKeyed = true
			break
		}
	}
	if !pathKeyed {
		return fn("", raw)
	}

	paths := make([]string, 0, len(keyed))
	for k := range keyed {
		paths = append(paths, k)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := fn(p, keyed[p]); err != nil {
			return err
		}
	}
	return nil
}
