package registry

import (
	"fmt"
	"maps"

	"github.com/metagraph-dev/metagraph/pkg/schema"
)

// Searchable field types that are matched by free-text queries unless the
// annotation says otherwise.
var queryableByDefault = map[string]bool{
	"TEXT":         true,
	"TEXT_PARTIAL": true,
	"WORD_GRAM":    true,
	"URN":          true,
	"URN_PARTIAL":  true,
}

// SearchableField is a Searchable annotation resolved against its field, with
// defaults applied.
type SearchableField struct {
	Aspect               string             `json:"aspect"`
	FieldPath            string             `json:"fieldPath"`
	IndexName            string             `json:"indexName"`
	FieldType            string             `json:"fieldType"`
	QueryByDefault       bool               `json:"queryByDefault"`
	EnableAutocomplete   bool               `json:"enableAutocomplete"`
	AddToFilters         bool               `json:"addToFilters"`
	BoostScore           float64            `json:"boostScore"`
	FilterName           string             `json:"filterName,omitempty"`
	HasValuesFieldName   string             `json:"hasValuesFieldName,omitempty"`
	NumValuesFieldName   string             `json:"numValuesFieldName,omitempty"`
	WeightsPerFieldValue map[string]float64 `json:"weightsPerFieldValue,omitempty"`
}

// SearchableFields returns the search-index descriptors of every field in the
// entity's aspects, in the same order ComputeOutgoing uses.
func (s *Snapshot) SearchableFields(entity string) ([]SearchableField, error) {
	e, ok := s.data.entityByKey[schema.EntityKey(entity)]
	if !ok {
		return nil, &schema.NotFoundError{Kind: "entity", Name: entity}
	}

	var out []SearchableField
	for _, aspectName := range e.AllAspects() {
		a := s.data.aspectByName[aspectName]
		err := schema.Walk(a, s.data.resolve, func(path string, f *schema.Field) error {
			for _, ann := range f.Searchable {
				out = append(out, resolveSearchable(a.Name, path, f, ann))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("entity %s: aspect %s: %w", e.Name, a.Name, err)
		}
	}
	return out, nil
}

func resolveSearchable(aspect, path string, f *schema.Field, ann schema.SearchableAnnotation) SearchableField {
	sf := SearchableField{
		Aspect:               aspect,
		FieldPath:            joinPath(path, ann.Path),
		IndexName:            ann.FieldName,
		FieldType:            ann.FieldType,
		EnableAutocomplete:   ann.EnableAutocomplete,
		AddToFilters:         ann.AddToFilters,
		BoostScore:           1.0,
		FilterName:           ann.FilterNameOverride,
		HasValuesFieldName:   ann.HasValuesFieldName,
		NumValuesFieldName:   ann.NumValuesFieldName,
		WeightsPerFieldValue: maps.Clone(ann.WeightsPerFieldValue),
	}
	if sf.IndexName == "" {
		sf.IndexName = f.Name
		if segs := schema.PathSegments(ann.Path); len(segs) > 0 {
			sf.IndexName = segs[len(segs)-1]
		}
	}
	if sf.FieldType == "" {
		sf.FieldType = defaultSearchType(f.Type)
	}
	if ann.BoostScore != nil {
		sf.BoostScore = *ann.BoostScore
	}
	if ann.QueryByDefault != nil {
		sf.QueryByDefault = *ann.QueryByDefault
	} else {
		sf.QueryByDefault = queryableByDefault[sf.FieldType]
	}
	if sf.FilterName == "" && sf.AddToFilters {
		sf.FilterName = sf.IndexName
	}
	return sf
}

func defaultSearchType(t schema.FieldType) string {
	switch t := schema.Unwrap(t).(type) {
	case *schema.Primitive:
		switch t.Type {
		case schema.TypeBoolean:
			return "BOOLEAN"
		case schema.TypeInt, schema.TypeLong, schema.TypeFloat, schema.TypeDouble:
			return "COUNT"
		}
	case *schema.Array:
		return defaultSearchType(t.Items)
	}
	return "KEYWORD"
}
