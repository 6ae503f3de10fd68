package registry

import (
	"fmt"
	"slices"
	"strings"

	"github.com/metagraph-dev/metagraph/pkg/schema"
)

// Relationship describes one directional edge class declared by a field
// annotation. A multi-target annotation yields one Relationship per target.
type Relationship struct {
	Name      string `json:"name"`
	Source    string `json:"source"`    // declaring entity type
	Target    string `json:"target"`    // target entity type as declared
	Aspect    string `json:"aspect"`    // aspect holding the annotated field
	FieldPath string `json:"fieldPath"` // e.g. "ownership.owners.owner"
	IsLineage bool   `json:"isLineage,omitempty"`
}

func (r Relationship) String() string {
	return fmt.Sprintf("%s -[%s]-> %s via %s", r.Source, r.Name, r.Target, r.FieldPath)
}

// RelationshipType summarizes every declaration of one relationship name
// across the registry.
type RelationshipType struct {
	Name       string   `json:"name"`
	Sources    []string `json:"sources"`
	Targets    []string `json:"targets"`
	FieldPaths []string `json:"fieldPaths"`
	IsLineage  bool     `json:"isLineage,omitempty"`
}

type relationshipIndex struct {
	all      []Relationship
	outgoing map[string][]Relationship // by source entity key
	incoming map[string][]Relationship // by target entity key
}

// ComputeOutgoing returns the relationships declared by the entity's aspects:
// key aspect first, then the remaining aspects in declaration order, then
// fields depth-first in declaration order. Results are stable for a snapshot.
func (s *Snapshot) ComputeOutgoing(entity string) ([]Relationship, error) {
	if _, ok := s.data.entityByKey[schema.EntityKey(entity)]; !ok {
		return nil, &schema.NotFoundError{Kind: "entity", Name: entity}
	}
	idx, err := s.relationships()
	if err != nil {
		return nil, err
	}
	return slices.Clone(idx.outgoing[schema.EntityKey(entity)]), nil
}

// ComputeIncoming returns every relationship in the registry whose target is
// the entity type, in entity definition order. Relationships an entity
// declares on itself are included, so incoming is the exact inverse of
// outgoing across the registry.
func (s *Snapshot) ComputeIncoming(entity string) ([]Relationship, error) {
	if _, ok := s.data.entityByKey[schema.EntityKey(entity)]; !ok {
		return nil, &schema.NotFoundError{Kind: "entity", Name: entity}
	}
	idx, err := s.relationships()
	if err != nil {
		return nil, err
	}
	return slices.Clone(idx.incoming[schema.EntityKey(entity)]), nil
}

// Direction selects outgoing or incoming relationships
type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
)

// ParseDirection accepts "outgoing", "incoming" and their short forms "out" and "in"
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "outgoing", "out":
		return Outgoing, nil
	case "incoming", "in":
		return Incoming, nil
	}
	return "", fmt.Errorf("invalid relationship direction %q: want outgoing or incoming", s)
}

// Relationships dispatches to ComputeOutgoing or ComputeIncoming
func (s *Snapshot) Relationships(entity string, dir Direction) ([]Relationship, error) {
	switch dir {
	case Outgoing:
		return s.ComputeOutgoing(entity)
	case Incoming:
		return s.ComputeIncoming(entity)
	}
	return nil, fmt.Errorf("invalid relationship direction %q", dir)
}

// AllRelationships returns every declared relationship in entity definition order
func (s *Snapshot) AllRelationships() ([]Relationship, error) {
	idx, err := s.relationships()
	if err != nil {
		return nil, err
	}
	return slices.Clone(idx.all), nil
}

// RelationshipTypes groups all relationships by name, in first-seen order
func (s *Snapshot) RelationshipTypes() ([]RelationshipType, error) {
	idx, err := s.relationships()
	if err != nil {
		return nil, err
	}

	var out []RelationshipType
	pos := make(map[string]int)
	for _, r := range idx.all {
		i, ok := pos[r.Name]
		if !ok {
			i = len(out)
			pos[r.Name] = i
			out = append(out, RelationshipType{Name: r.Name})
		}
		rt := &out[i]
		rt.Sources = appendUnique(rt.Sources, r.Source)
		rt.Targets = appendUnique(rt.Targets, r.Target)
		rt.FieldPaths = appendUnique(rt.FieldPaths, r.FieldPath)
		rt.IsLineage = rt.IsLineage || r.IsLineage
	}
	return out, nil
}

// DanglingTargets returns relationships whose target names no defined entity
func (s *Snapshot) DanglingTargets() ([]Relationship, error) {
	idx, err := s.relationships()
	if err != nil {
		return nil, err
	}
	var out []Relationship
	for _, r := range idx.all {
		if _, ok := s.data.entityByKey[schema.EntityKey(r.Target)]; !ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// GroupByName groups relationships by name, keeping first-seen order of names
// and the original order within each group.
func GroupByName(rels []Relationship) ([]string, map[string][]Relationship) {
	var names []string
	groups := make(map[string][]Relationship)
	for _, r := range rels {
		if _, ok := groups[r.Name]; !ok {
			names = append(names, r.Name)
		}
		groups[r.Name] = append(groups[r.Name], r)
	}
	return names, groups
}

func (s *Snapshot) relationships() (*relationshipIndex, error) {
	s.indexOnce.Do(func() {
		s.index, s.indexErr = buildRelationshipIndex(s.data)
	})
	return s.index, s.indexErr
}

func buildRelationshipIndex(c *catalog) (*relationshipIndex, error) {
	idx := &relationshipIndex{
		outgoing: make(map[string][]Relationship),
		incoming: make(map[string][]Relationship),
	}

	// Aspects are shared between entities; scan each one once.
	declared := make(map[string][]Relationship)
	for _, e := range c.entities {
		key := schema.EntityKey(e.Name)
		idx.outgoing[key] = nil
		for _, aspectName := range e.AllAspects() {
			rels, ok := declared[aspectName]
			if !ok {
				a := c.aspectByName[aspectName]
				var err error
				if rels, err = aspectRelationships(a, c.resolve); err != nil {
					return nil, fmt.Errorf("entity %s: %w", e.Name, err)
				}
				declared[aspectName] = rels
			}
			for _, r := range rels {
				r.Source = e.Name
				idx.outgoing[key] = append(idx.outgoing[key], r)
				idx.all = append(idx.all, r)
			}
		}
	}

	for _, r := range idx.all {
		target := schema.EntityKey(r.Target)
		idx.incoming[target] = append(idx.incoming[target], r)
	}
	return idx, nil
}

func aspectRelationships(a *schema.AspectSchema, resolve schema.Resolver) ([]Relationship, error) {
	var out []Relationship
	err := schema.Walk(a, resolve, func(path string, f *schema.Field) error {
		for _, ann := range f.Relations {
			fieldPath := joinPath(path, ann.Path)
			for _, target := range ann.EntityTypes {
				out = append(out, Relationship{
					Name:      ann.Name,
					Target:    target,
					Aspect:    a.Name,
					FieldPath: fieldPath,
					IsLineage: ann.IsLineage,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("aspect %s: %w", a.Name, err)
	}
	return out, nil
}

// joinPath appends the named segments of an annotation path to a field path.
// Wildcards select items rather than fields and add nothing.
func joinPath(fieldPath, annotationPath string) string {
	segs := schema.PathSegments(annotationPath)
	if len(segs) == 0 {
		return fieldPath
	}
	return fieldPath + "." + strings.Join(segs, ".")
}

func appendUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}
