package schema

import "strings"

// WildcardPath targets every array item or map value of the annotated field
const WildcardPath = "/*"

// RelationshipAnnotation declares that the values of a field reference other entities
type RelationshipAnnotation struct {
	Path        string   `json:"-"`
	Name        string   `json:"name"`
	EntityTypes []string `json:"entityTypes"`
	IsLineage   bool     `json:"isLineage,omitempty"`
}

func (r RelationshipAnnotation) clone() RelationshipAnnotation {
	r.EntityTypes = cloneSlice(r.EntityTypes)
	return r
}

// SearchableAnnotation carries search indexing hints for a field
type SearchableAnnotation struct {
	Path                 string             `json:"-"`
	FieldName            string             `json:"fieldName,omitempty"`
	FieldType            string             `json:"fieldType,omitempty"`
	QueryByDefault       *bool              `json:"queryByDefault,omitempty"`
	EnableAutocomplete   bool               `json:"enableAutocomplete,omitempty"`
	AddToFilters         bool               `json:"addToFilters,omitempty"`
	BoostScore           *float64           `json:"boostScore,omitempty"`
	FilterNameOverride   string             `json:"filterNameOverride,omitempty"`
	HasValuesFieldName   string             `json:"hasValuesFieldName,omitempty"`
	NumValuesFieldName   string             `json:"numValuesFieldName,omitempty"`
	WeightsPerFieldValue map[string]float64 `json:"weightsPerFieldValue,omitempty"`
}

func (s SearchableAnnotation) clone() SearchableAnnotation {
	if s.QueryByDefault != nil {
		v := *s.QueryByDefault
		s.QueryByDefault = &v
	}
	if s.BoostScore != nil {
		v := *s.BoostScore
		s.BoostScore = &v
	}
	s.WeightsPerFieldValue = cloneMap(s.WeightsPerFieldValue)
	return s
}

// PathSegments returns the named sub-field segments of an annotation path.
// Wildcards select items, not fields, so they contribute no segment:
// "/*" -> nil, "/*/dataset" -> ["dataset"].
func PathSegments(path string) []string {
	var segs []string
	for _, part := range strings.Split(path, "/") {
		if part == "" || part == "*" {
			continue
		}
		segs = append(segs, part)
	}
	return segs
}
