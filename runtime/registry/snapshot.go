package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"iter"
	"reflect"
	"slices"
	"sync"

	"github.com/metagraph-dev/metagraph/pkg/schema"
	"github.com/metagraph-dev/metagraph/pkg/schema/avro"
)

// catalog is the registered schema set. It is never mutated once a Snapshot
// has been built around it; builders copy the containers before writing.
type catalog struct {
	types      []schema.Named
	typeByName map[string]schema.Named // full and short names

	aspects      []*schema.AspectSchema
	aspectByName map[string]*schema.AspectSchema

	entities    []*schema.EntityDefinition
	entityByKey map[string]*schema.EntityDefinition // schema.EntityKey(name)
}

func newCatalog() *catalog {
	return &catalog{
		typeByName:   make(map[string]schema.Named),
		aspectByName: make(map[string]*schema.AspectSchema),
		entityByKey:  make(map[string]*schema.EntityDefinition),
	}
}

func (c *catalog) copy() *catalog {
	return &catalog{
		types:        slices.Clone(c.types),
		typeByName:   cloneIndex(c.typeByName),
		aspects:      slices.Clone(c.aspects),
		aspectByName: cloneIndex(c.aspectByName),
		entities:     slices.Clone(c.entities),
		entityByKey:  cloneIndex(c.entityByKey),
	}
}

func (c *catalog) resolve(name string) (schema.Named, bool) {
	n, ok := c.typeByName[name]
	return n, ok
}

// Snapshot is an immutable view of the registered schema set.
// Every query against a Snapshot is safe for concurrent use and returns
// copies, so callers can never observe or cause a partial update.
//
// Derived data (the relationship index and the fingerprint) is computed
// lazily, at most once per snapshot.
type Snapshot struct {
	version uint64
	data    *catalog

	indexOnce sync.Once
	index     *relationshipIndex
	indexErr  error

	fpOnce      sync.Once
	fingerprint string
}

// Empty returns a snapshot with no types, aspects or entities
func Empty() *Snapshot {
	return &Snapshot{data: newCatalog()}
}

func (s *Snapshot) withVersion(v uint64) *Snapshot {
	return &Snapshot{version: v, data: s.data}
}

// Version returns the snapshot version. Each swap in a Registry increments it.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// NumAspects returns the number of registered aspects
func (s *Snapshot) NumAspects() int { return len(s.data.aspects) }

// NumEntities returns the number of defined entities
func (s *Snapshot) NumEntities() int { return len(s.data.entities) }

// Builder returns a builder seeded with the contents of this snapshot.
// Writes to the builder never affect the snapshot.
func (s *Snapshot) Builder() *Builder {
	return &Builder{data: s.data.copy()}
}

// Resolve looks up a shared or inline named type by full or short name
func (s *Snapshot) Resolve(name string) (schema.Named, bool) {
	n, ok := s.data.resolve(name)
	if !ok {
		return nil, false
	}
	return schema.CloneType(n).(schema.Named), true
}

// Types yields every explicitly registered shared type in registration order
func (s *Snapshot) Types() iter.Seq[schema.Named] {
	types := s.data.types
	return func(yield func(schema.Named) bool) {
		for _, t := range types {
			if !yield(schema.CloneType(t).(schema.Named)) {
				return
			}
		}
	}
}

// GetAspect returns a deep copy of the named aspect
func (s *Snapshot) GetAspect(name string) (*schema.AspectSchema, error) {
	a, ok := s.data.aspectByName[name]
	if !ok {
		return nil, &schema.NotFoundError{Kind: "aspect", Name: name}
	}
	return a.Clone(), nil
}

// ListAspects yields every aspect in registration order. The sequence can be
// ranged over any number of times and always reflects this snapshot.
func (s *Snapshot) ListAspects() iter.Seq[*schema.AspectSchema] {
	aspects := s.data.aspects
	return func(yield func(*schema.AspectSchema) bool) {
		for _, a := range aspects {
			if !yield(a.Clone()) {
				return
			}
		}
	}
}

// GetEntity returns a copy of the entity definition. Names are case-insensitive.
func (s *Snapshot) GetEntity(name string) (*schema.EntityDefinition, error) {
	e, ok := s.data.entityByKey[schema.EntityKey(name)]
	if !ok {
		return nil, &schema.NotFoundError{Kind: "entity", Name: name}
	}
	return e.Clone(), nil
}

// ListEntities yields every entity definition in definition order
func (s *Snapshot) ListEntities() iter.Seq[*schema.EntityDefinition] {
	entities := s.data.entities
	return func(yield func(*schema.EntityDefinition) bool) {
		for _, e := range entities {
			if !yield(e.Clone()) {
				return
			}
		}
	}
}

// Fingerprint returns a hex sha256 digest of the canonical encoding of the
// schema set. Snapshots with identical content in identical order share a
// fingerprint regardless of version.
func (s *Snapshot) Fingerprint() string {
	s.fpOnce.Do(func() {
		h := sha256.New()
		for _, t := range s.data.types {
			data, err := avro.EncodeType(t)
			if err != nil {
				data = []byte(t.FullName())
			}
			h.Write(data)
			h.Write([]byte{'\n'})
		}
		for _, a := range s.data.aspects {
			data, err := avro.EncodeAspect(a)
			if err != nil {
				data = []byte(a.Name)
			}
			h.Write(data)
			h.Write([]byte{'\n'})
		}
		for _, e := range s.data.entities {
			data, _ := json.Marshal(e)
			h.Write(data)
			h.Write([]byte{'\n'})
		}
		s.fingerprint = hex.EncodeToString(h.Sum(nil))
	})
	return s.fingerprint
}

// Builder accumulates registrations for a new snapshot. A Builder is not safe
// for concurrent use; Registry.Update serializes access to it.
type Builder struct {
	data *catalog
}

// NewBuilder returns a builder for an empty schema set
func NewBuilder() *Builder {
	return &Builder{data: newCatalog()}
}

// RegisterType adds a shared record or enum that aspects may reference by
// name. Registering the same definition twice is a no-op; a conflicting
// definition under an existing full name is an error.
func (b *Builder) RegisterType(n schema.Named) error {
	if n == nil || n.ShortName() == "" {
		return fmt.Errorf("shared type name is required")
	}
	if existing, ok := b.data.typeByName[n.FullName()]; ok {
		if reflect.DeepEqual(existing, n) {
			return nil
		}
		return fmt.Errorf("shared type %s is already registered with a different definition", n.FullName())
	}
	if err := b.validateType(n); err != nil {
		return err
	}
	c := schema.CloneType(n).(schema.Named)
	b.data.types = append(b.data.types, c)
	b.addNamed(c)
	for _, inner := range collectNested(c) {
		b.addNamed(inner)
	}
	return nil
}

// RegisterAspect validates and adds an aspect. It fails with a
// *schema.DuplicateAspectError if the name is taken and a
// *schema.InvalidFieldError if any field breaks schema integrity.
func (b *Builder) RegisterAspect(a *schema.AspectSchema) error {
	if a == nil {
		return fmt.Errorf("aspect is required")
	}
	if _, ok := b.data.aspectByName[a.Name]; ok {
		return &schema.DuplicateAspectError{Name: a.Name}
	}
	if err := schema.NewAspectValidator(b.data.resolve).Validate(a); err != nil {
		return err
	}

	c := a.Clone()
	b.data.aspects = append(b.data.aspects, c)
	b.data.aspectByName[c.Name] = c
	b.addNamed(c.Record())
	for _, n := range schema.CollectNamed(c) {
		b.addNamed(n)
	}
	return nil
}

// DefineEntity adds an entity definition. Names are compared case-insensitively.
func (b *Builder) DefineEntity(def *schema.EntityDefinition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("entity name is required")
	}
	if _, ok := b.data.entityByKey[schema.EntityKey(def.Name)]; ok {
		return &schema.DuplicateEntityError{Name: def.Name}
	}
	if _, ok := b.data.aspectByName[def.KeyAspect]; !ok {
		return &schema.MissingKeyAspectError{Entity: def.Name, KeyAspect: def.KeyAspect}
	}
	for _, name := range def.Aspects {
		if _, ok := b.data.aspectByName[name]; !ok {
			return &schema.UnknownAspectError{Entity: def.Name, Aspect: name}
		}
	}

	c := def.Clone()
	c.Aspects = dedupe(c.Aspects, c.KeyAspect)
	b.data.entities = append(b.data.entities, c)
	b.data.entityByKey[schema.EntityKey(c.Name)] = c
	return nil
}

// HasAspect reports whether an aspect with the given name has been registered
func (b *Builder) HasAspect(name string) bool {
	_, ok := b.data.aspectByName[name]
	return ok
}

// Build freezes the builder into a snapshot with version 0. The builder must
// not be used afterwards.
func (b *Builder) Build() *Snapshot {
	return b.build(0)
}

func (b *Builder) build(version uint64) *Snapshot {
	data := b.data
	b.data = nil
	return &Snapshot{version: version, data: data}
}

func (b *Builder) validateType(n schema.Named) error {
	rec, ok := n.(*schema.Record)
	if !ok {
		return nil
	}
	// A shared record may reference itself and other shared types
	self := func(name string) (schema.Named, bool) {
		if name == rec.FullName() || name == rec.ShortName() {
			return rec, true
		}
		return b.data.resolve(name)
	}
	probe := &schema.AspectSchema{Name: rec.Name, RecordName: rec.Name, Namespace: rec.Namespace, Fields: rec.Fields}
	return schema.NewAspectValidator(self).Validate(probe)
}

// addNamed indexes a named type by full and short name. The first definition wins.
func (b *Builder) addNamed(n schema.Named) {
	for _, key := range []string{n.FullName(), n.ShortName()} {
		if _, ok := b.data.typeByName[key]; !ok {
			b.data.typeByName[key] = n
		}
	}
}

func collectNested(n schema.Named) []schema.Named {
	rec, ok := n.(*schema.Record)
	if !ok {
		return nil
	}
	return schema.CollectNamed(&schema.AspectSchema{Fields: rec.Fields})
}

func dedupe(aspects []string, key string) []string {
	seen := map[string]bool{key: true}
	out := aspects[:0]
	for _, a := range aspects {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

func cloneIndex[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
