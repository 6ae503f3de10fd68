package registry

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/metagraph-dev/metagraph/pkg/schema"
)

func TestComputeOutgoing_MlModelGroup(t *testing.T) {
	r := fixtureRegistry(t)

	got, err := r.ComputeOutgoing("MlModelGroup")
	require.NoError(t, err)

	want := []Relationship{
		{Name: "SourcePlatform", Source: "mlModelGroup", Target: "dataPlatform", Aspect: "mlModelGroupKey", FieldPath: "mlModelGroupKey.platform"},
		{Name: "OwnedBy", Source: "mlModelGroup", Target: "corpuser", Aspect: "ownership", FieldPath: "ownership.owners.owner"},
		{Name: "OwnedBy", Source: "mlModelGroup", Target: "corpGroup", Aspect: "ownership", FieldPath: "ownership.owners.owner"},
		{Name: "AssociatedWith", Source: "mlModelGroup", Target: "domain", Aspect: "domains", FieldPath: "domains.domains"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ComputeOutgoing mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeIncoming_MlModelGroup(t *testing.T) {
	r := fixtureRegistry(t)

	got, err := r.ComputeIncoming("mlModelGroup")
	require.NoError(t, err)
	assert.Equal(t, []Relationship{
		{Name: "MemberOf", Source: "mlModel", Target: "mlModelGroup", Aspect: "mlModelProperties", FieldPath: "mlModelProperties.groups"},
	}, got)
}

func TestComputeIncoming_MultiTargetAnnotation(t *testing.T) {
	r := fixtureRegistry(t)

	for _, target := range []string{"corpuser", "corpGroup"} {
		got, err := r.ComputeIncoming(target)
		require.NoError(t, err)
		require.Len(t, got, 2, target)
		assert.Equal(t, "mlModelGroup", got[0].Source)
		assert.Equal(t, "mlModel", got[1].Source)
		for _, rel := range got {
			assert.Equal(t, "OwnedBy", rel.Name)
			assert.Equal(t, target, rel.Target)
			assert.Equal(t, "ownership.owners.owner", rel.FieldPath)
		}
	}
}

func TestComputeOutgoing_FilterByNameMatchesAnnotatedFields(t *testing.T) {
	snap := fixtureSnapshot(t)

	for e := range snap.ListEntities() {
		out, err := snap.ComputeOutgoing(e.Name)
		require.NoError(t, err)

		// Collect annotated (name, path, target) triples straight from the aspects
		type decl struct{ name, path, target string }
		var annotated []decl
		for _, aspectName := range e.AllAspects() {
			a, err := snap.GetAspect(aspectName)
			require.NoError(t, err)
			require.NoError(t, schema.Walk(a, snap.Resolve, func(path string, f *schema.Field) error {
				for _, ann := range f.Relations {
					for _, target := range ann.EntityTypes {
						annotated = append(annotated, decl{ann.Name, joinPath(path, ann.Path), target})
					}
				}
				return nil
			}))
		}

		names, groups := GroupByName(out)
		for _, name := range names {
			var want []decl
			for _, d := range annotated {
				if d.name == name {
					want = append(want, d)
				}
			}
			var got []decl
			for _, rel := range groups[name] {
				got = append(got, decl{rel.Name, rel.FieldPath, rel.Target})
			}
			assert.Equal(t, want, got, "entity %s relationship %s", e.Name, name)
		}
		assert.Len(t, out, len(annotated))
	}
}

func TestComputeIncoming_IsInverseOfOutgoing(t *testing.T) {
	snap := fixtureSnapshot(t)

	type edge struct{ source, name, path string }
	for target := range snap.ListEntities() {
		var want []edge
		for source := range snap.ListEntities() {
			out, err := snap.ComputeOutgoing(source.Name)
			require.NoError(t, err)
			for _, rel := range out {
				if schema.EntityKey(rel.Target) == schema.EntityKey(target.Name) {
					want = append(want, edge{source.Name, rel.Name, rel.FieldPath})
				}
			}
		}

		in, err := snap.ComputeIncoming(target.Name)
		require.NoError(t, err)
		var got []edge
		for _, rel := range in {
			got = append(got, edge{rel.Source, rel.Name, rel.FieldPath})
		}
		assert.Equal(t, want, got, "incoming of %s", target.Name)
	}
}

func TestComputeIncoming_IncludesSelfReferences(t *testing.T) {
	b := fixtureSnapshot(t).Builder()
	require.NoError(t, b.RegisterAspect(&schema.AspectSchema{
		Name:       "corpGroupInfo",
		RecordName: "CorpGroupInfo",
		Fields: []*schema.Field{{
			Name: "groups",
			Type: &schema.Array{Items: &schema.Primitive{Type: schema.TypeString}},
			Relations: []schema.RelationshipAnnotation{
				{Path: schema.WildcardPath, Name: "IsPartOf", EntityTypes: []string{"corpGroup"}},
			},
		}},
	}))
	require.NoError(t, b.DefineEntity(&schema.EntityDefinition{Name: "team", KeyAspect: "corpGroupKey", Aspects: []string{"corpGroupInfo"}}))
	snap := b.Build()

	in, err := snap.ComputeIncoming("corpGroup")
	require.NoError(t, err)
	require.Len(t, in, 3)
	assert.Equal(t, "team", in[2].Source)
	assert.Equal(t, "corpGroupInfo.groups", in[2].FieldPath)

	self := fixtureSnapshot(t).Builder()
	require.NoError(t, self.RegisterAspect(&schema.AspectSchema{
		Name:       "parent",
		RecordName: "Parent",
		Fields: []*schema.Field{{
			Name:      "parent",
			Type:      &schema.Nullable{Of: &schema.Primitive{Type: schema.TypeString}},
			Relations: []schema.RelationshipAnnotation{{Name: "ChildOf", EntityTypes: []string{"folder"}}},
		}},
	}))
	require.NoError(t, self.DefineEntity(&schema.EntityDefinition{Name: "folder", KeyAspect: "domainKey", Aspects: []string{"parent"}}))
	folder := self.Build()

	in, err = folder.ComputeIncoming("folder")
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "folder", in[0].Source)
}

func TestComputeOutgoing_ShortNameResolvesToOwnAspectType(t *testing.T) {
	str := &schema.Primitive{Type: schema.TypeString}
	b := fixtureSnapshot(t).Builder()

	// Both aspects define an inline record named Ref in different namespaces
	require.NoError(t, b.RegisterAspect(&schema.AspectSchema{
		Name: "plainRef", RecordName: "PlainRef", Namespace: "com.a",
		Fields: []*schema.Field{{
			Name: "first",
			Type: &schema.Record{Name: "Ref", Namespace: "com.a", Fields: []*schema.Field{{Name: "plain", Type: str}}},
		}},
	}))
	require.NoError(t, b.RegisterAspect(&schema.AspectSchema{
		Name: "linkedRef", RecordName: "LinkedRef", Namespace: "com.b",
		Fields: []*schema.Field{
			{
				Name: "first",
				Type: &schema.Record{Name: "Ref", Namespace: "com.b", Fields: []*schema.Field{{
					Name:      "urn",
					Type:      str,
					Relations: []schema.RelationshipAnnotation{{Name: "Points", EntityTypes: []string{"domain"}}},
				}}},
			},
			{Name: "second", Type: &schema.Ref{Name: "Ref"}},
		},
	}))
	require.NoError(t, b.DefineEntity(&schema.EntityDefinition{Name: "linked", KeyAspect: "domainKey", Aspects: []string{"linkedRef"}}))
	snap := b.Build()

	out, err := snap.ComputeOutgoing("linked")
	require.NoError(t, err)

	var paths []string
	for _, r := range out {
		assert.Equal(t, "Points", r.Name)
		paths = append(paths, r.FieldPath)
	}
	assert.Equal(t, []string{"linkedRef.first.urn", "linkedRef.second.urn"}, paths)

	fields, err := snap.SearchableFields("linked")
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestCompute_Idempotent(t *testing.T) {
	snap := fixtureSnapshot(t)

	for e := range snap.ListEntities() {
		out1, err := snap.ComputeOutgoing(e.Name)
		require.NoError(t, err)
		out2, err := snap.ComputeOutgoing(e.Name)
		require.NoError(t, err)
		assert.Equal(t, out1, out2)

		in1, err := snap.ComputeIncoming(e.Name)
		require.NoError(t, err)
		in2, err := snap.ComputeIncoming(e.Name)
		require.NoError(t, err)
		assert.Equal(t, in1, in2)
	}
}

func TestCompute_ResultsAreCopies(t *testing.T) {
	snap := fixtureSnapshot(t)

	out, err := snap.ComputeOutgoing("mlModelGroup")
	require.NoError(t, err)
	out[0].Name = "changed"

	again, err := snap.ComputeOutgoing("mlModelGroup")
	require.NoError(t, err)
	assert.Equal(t, "SourcePlatform", again[0].Name)
}

func TestCompute_EmptyBoundary(t *testing.T) {
	snap := fixtureSnapshot(t)

	out, err := snap.ComputeOutgoing("domain")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = snap.ComputeOutgoing("corpGroup")
	require.NoError(t, err)
	assert.Empty(t, out)

	in, err := snap.ComputeIncoming("mlModel")
	require.NoError(t, err)
	assert.Empty(t, in)
}

func TestCompute_UnknownEntity(t *testing.T) {
	snap := fixtureSnapshot(t)

	_, err := snap.ComputeOutgoing("dataPlatform")
	assert.True(t, schema.IsNotFound(err))
	_, err = snap.ComputeIncoming("dataPlatform")
	assert.True(t, schema.IsNotFound(err))
}

func TestRelationships_Direction(t *testing.T) {
	snap := fixtureSnapshot(t)

	for _, tt := range []struct {
		in   string
		want Direction
	}{{"outgoing", Outgoing}, {"OUT", Outgoing}, {"incoming", Incoming}, {"in", Incoming}} {
		dir, err := ParseDirection(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, dir)
	}
	_, err := ParseDirection("sideways")
	assert.Error(t, err)

	out, err := snap.Relationships("mlModelGroup", Outgoing)
	require.NoError(t, err)
	want, _ := snap.ComputeOutgoing("mlModelGroup")
	assert.Equal(t, want, out)

	in, err := snap.Relationships("mlModelGroup", Incoming)
	require.NoError(t, err)
	want, _ = snap.ComputeIncoming("mlModelGroup")
	assert.Equal(t, want, in)

	_, err = snap.Relationships("mlModelGroup", Direction("both"))
	assert.Error(t, err)
}

func TestRelationshipTypes(t *testing.T) {
	snap := fixtureSnapshot(t)

	types, err := snap.RelationshipTypes()
	require.NoError(t, err)

	byName := make(map[string]RelationshipType)
	var names []string
	for _, rt := range types {
		names = append(names, rt.Name)
		byName[rt.Name] = rt
	}
	assert.Equal(t, []string{"SourcePlatform", "OwnedBy", "AssociatedWith", "MemberOf", "TrainedBy"}, names)

	owned := byName["OwnedBy"]
	assert.Equal(t, []string{"mlModelGroup", "mlModel"}, owned.Sources)
	assert.Equal(t, []string{"corpuser", "corpGroup"}, owned.Targets)
	assert.Equal(t, []string{"ownership.owners.owner"}, owned.FieldPaths)
	assert.True(t, byName["TrainedBy"].IsLineage)
}

func TestDanglingTargets(t *testing.T) {
	snap := fixtureSnapshot(t)

	dangling, err := snap.DanglingTargets()
	require.NoError(t, err)

	var targets []string
	for _, rel := range dangling {
		targets = append(targets, rel.Target)
	}
	assert.Equal(t, []string{"dataPlatform", "dataJob"}, targets)
}

func TestIndex_RebuiltPerSnapshot(t *testing.T) {
	r := fixtureRegistry(t)

	in, err := r.ComputeIncoming("domain")
	require.NoError(t, err)
	assert.Len(t, in, 1)

	require.NoError(t, r.DefineEntity("glossaryTerm", "domainKey", []string{"domains"}))

	in, err = r.ComputeIncoming("domain")
	require.NoError(t, err)
	assert.Len(t, in, 2)
	assert.Equal(t, "glossaryTerm", in[1].Source)
}

func TestRegistry_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := fixtureRegistry(t)
	full := r.Snapshot().NumEntities()
	next := fixtureSnapshot(t)

	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < 50; i++ {
			r.Replace(next)
		}
		return nil
	})

	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for j := 0; j < 200; j++ {
				snap := r.Snapshot()
				if snap.NumEntities() != full {
					t.Errorf("observed partial snapshot with %d entities", snap.NumEntities())
				}
				out, err := snap.ComputeOutgoing("mlModelGroup")
				if err != nil {
					return err
				}
				if len(out) != 4 {
					t.Errorf("expected 4 outgoing relationships, got %d", len(out))
				}
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.Equal(t, uint64(51), r.Snapshot().Version())
}
