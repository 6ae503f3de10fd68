package registry

import (
	"iter"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/metagraph-dev/metagraph/pkg/schema"
)

// Registry publishes the current schema Snapshot to concurrent readers.
//
// Readers never lock: every query loads the current snapshot atomically and
// runs against it, so a reader sees either the old or the fully updated
// schema set. Writers are serialized by a single mutex and publish a new
// snapshot with a copy-on-write swap.
type Registry struct {
	current atomic.Pointer[Snapshot]
	writeMu sync.Mutex
	logger  *zap.Logger

	subMu       sync.RWMutex
	subscribers map[int]func(*Snapshot)
	nextSub     int
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger used to report snapshot swaps
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a registry holding an empty snapshot
func New(opts ...Option) *Registry {
	r := &Registry{
		logger:      zap.NewNop(),
		subscribers: make(map[int]func(*Snapshot)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.current.Store(Empty())
	return r
}

// Snapshot returns the current snapshot. Hold on to it to run several queries
// against one consistent schema set.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Update applies fn to a builder seeded from the current snapshot and, if fn
// succeeds, publishes the result. If fn fails nothing is published, so a batch
// of registrations is all-or-nothing.
func (r *Registry) Update(fn func(b *Builder) error) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	cur := r.current.Load()
	b := cur.Builder()
	if err := fn(b); err != nil {
		return err
	}
	r.publish(b.build(cur.version + 1))
	return nil
}

// Replace publishes the content of snap as the next version
func (r *Registry) Replace(snap *Snapshot) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	cur := r.current.Load()
	r.publish(snap.withVersion(cur.version + 1))
}

// Subscribe registers fn to be called with every newly published snapshot.
// Callbacks run synchronously on the writer's goroutine and must not call
// Update or Replace. The returned function removes the subscription.
func (r *Registry) Subscribe(fn func(*Snapshot)) (cancel func()) {
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = fn
	r.subMu.Unlock()

	return func() {
		r.subMu.Lock()
		delete(r.subscribers, id)
		r.subMu.Unlock()
	}
}

func (r *Registry) publish(next *Snapshot) {
	r.current.Store(next)
	r.logger.Info("schema snapshot published",
		zap.Uint64("version", next.Version()),
		zap.Int("aspects", next.NumAspects()),
		zap.Int("entities", next.NumEntities()),
	)

	r.subMu.RLock()
	defer r.subMu.RUnlock()
	for _, fn := range r.subscribers {
		fn(next)
	}
}

// RegisterType registers a shared named type
func (r *Registry) RegisterType(n schema.Named) error {
	return r.Update(func(b *Builder) error { return b.RegisterType(n) })
}

// RegisterAspect registers a single aspect
func (r *Registry) RegisterAspect(a *schema.AspectSchema) error {
	return r.Update(func(b *Builder) error { return b.RegisterAspect(a) })
}

// GetAspect returns a deep copy of the named aspect from the current snapshot
func (r *Registry) GetAspect(name string) (*schema.AspectSchema, error) {
	return r.Snapshot().GetAspect(name)
}

// ListAspects yields the aspects of the snapshot current at call time
func (r *Registry) ListAspects() iter.Seq[*schema.AspectSchema] {
	return r.Snapshot().ListAspects()
}

// DefineEntity defines an entity type with a key aspect and non-key aspects
func (r *Registry) DefineEntity(name, keyAspect string, aspects []string) error {
	def := &schema.EntityDefinition{Name: name, KeyAspect: keyAspect, Aspects: aspects}
	return r.Update(func(b *Builder) error { return b.DefineEntity(def) })
}

// GetEntity returns the named entity definition from the current snapshot
func (r *Registry) GetEntity(name string) (*schema.EntityDefinition, error) {
	return r.Snapshot().GetEntity(name)
}

// ListEntities yields the entity definitions of the snapshot current at call time
func (r *Registry) ListEntities() iter.Seq[*schema.EntityDefinition] {
	return r.Snapshot().ListEntities()
}

// ComputeOutgoing returns the relationships declared by the entity
func (r *Registry) ComputeOutgoing(entity string) ([]Relationship, error) {
	return r.Snapshot().ComputeOutgoing(entity)
}

// ComputeIncoming returns the relationships that target the entity
func (r *Registry) ComputeIncoming(entity string) ([]Relationship, error) {
	return r.Snapshot().ComputeIncoming(entity)
}
