// Package registry holds the metadata-entity registry: aspect schemas,
// entity definitions, and the relationship index derived from them.
//
// # Overview
//
// The schema set lives in an immutable Snapshot. A Registry publishes the
// current snapshot to any number of concurrent readers and serializes
// writers, which build the next snapshot from a copy of the current one:
//
//	reg := registry.New(registry.WithLogger(logger))
//
//	err := reg.Update(func(b *registry.Builder) error {
//		if err := b.RegisterAspect(ownership); err != nil {
//			return err
//		}
//		if err := b.RegisterAspect(mlModelGroupKey); err != nil {
//			return err
//		}
//		return b.DefineEntity(&schema.EntityDefinition{
//			Name:      "mlModelGroup",
//			KeyAspect: "mlModelGroupKey",
//			Aspects:   []string{"ownership"},
//		})
//	})
//
// A failing Update publishes nothing, so startup loading is all-or-nothing.
//
// # Relationships
//
// Fields declare relationships with a Relationship annotation naming the
// edge class and its target entity types. ComputeOutgoing lists the
// declarations of one entity; ComputeIncoming lists every declaration in the
// registry that targets it:
//
//	out, _ := reg.ComputeOutgoing("MlModelGroup")
//	for _, rel := range out {
//		fmt.Println(rel) // mlModelGroup -[OwnedBy]-> corpuser via ownership.owners.owner
//	}
//
// The index behind both queries is built on first use and kept for the
// lifetime of the snapshot. Publishing a new snapshot discards it.
//
// # Consistency
//
// Run related queries against one snapshot to get a consistent answer while
// writers are active:
//
//	snap := reg.Snapshot()
//	out, _ := snap.ComputeOutgoing("mlModel")
//	in, _ := snap.ComputeIncoming("mlModel")
package registry
