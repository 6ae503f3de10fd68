package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/metagraph-dev/metagraph/pkg/schema"
	"github.com/metagraph-dev/metagraph/pkg/schema/avro"
)

var aspectSources = map[string]string{
	"mlModelGroupKey": `{
	  "type": "record", "Aspect": {"name": "mlModelGroupKey"},
	  "name": "MLModelGroupKey", "namespace": "com.linkedin.metadata.key",
	  "fields": [
	    {"name": "platform", "type": "string",
	     "Searchable": {"fieldType": "URN"},
	     "Relationship": {"name": "SourcePlatform", "entityTypes": ["dataPlatform"]}},
	    {"name": "name", "type": "string",
	     "Searchable": {"boostScore": 10.0, "enableAutocomplete": true, "fieldType": "TEXT_PARTIAL"}},
	    {"name": "origin", "type": {"type": "enum", "name": "FabricType", "namespace": "com.linkedin.common",
	     "symbols": ["DEV", "TEST", "PROD"]},
	     "Searchable": {"addToFilters": true, "fieldType": "TEXT_PARTIAL", "queryByDefault": false}}
	  ]
	}`,
	"ownership": `{
	  "type": "record", "Aspect": {"name": "ownership"},
	  "name": "Ownership", "namespace": "com.linkedin.common",
	  "fields": [
	    {"name": "owners", "type": {"type": "array", "items": {
	      "type": "record", "name": "Owner",
	      "fields": [
	        {"name": "owner", "type": "string",
	         "Relationship": {"entityTypes": ["corpuser", "corpGroup"], "name": "OwnedBy"},
	         "Searchable": {"addToFilters": true, "fieldName": "owners", "fieldType": "URN",
	                        "filterNameOverride": "Owned By", "hasValuesFieldName": "hasOwners", "queryByDefault": false}},
	        {"name": "type", "type": {"type": "enum", "name": "OwnershipType", "symbols": ["TECHNICAL_OWNER", "BUSINESS_OWNER"]}}
	      ]}}},
	    {"name": "lastModified", "type": "com.linkedin.common.AuditStamp"}
	  ]
	}`,
	"domains": `{
	  "type": "record", "Aspect": {"name": "domains"},
	  "name": "Domains", "namespace": "com.linkedin.domain",
	  "fields": [
	    {"name": "domains", "type": {"type": "array", "items": "string"},
	     "Relationship": {"/*": {"entityTypes": ["domain"], "name": "AssociatedWith"}},
	     "Searchable": {"/*": {"addToFilters": true, "fieldName": "domains", "fieldType": "URN",
	                           "filterNameOverride": "Domain", "hasValuesFieldName": "hasDomain"}}}
	  ]
	}`,
	"status": `{
	  "type": "record", "Aspect": {"name": "status"},
	  "name": "Status", "namespace": "com.linkedin.common",
	  "fields": [
	    {"name": "removed", "type": "boolean", "default": false,
	     "Searchable": {"fieldType": "BOOLEAN"}}
	  ]
	}`,
	"mlModelKey": `{
	  "type": "record", "Aspect": {"name": "mlModelKey"},
	  "name": "MLModelKey", "namespace": "com.linkedin.metadata.key",
	  "fields": [{"name": "name", "type": "string"}]
	}`,
	"mlModelProperties": `{
	  "type": "record", "Aspect": {"name": "mlModelProperties"},
	  "name": "MLModelProperties", "namespace": "com.linkedin.ml.metadata",
	  "fields": [
	    {"name": "description", "type": ["null", "string"], "default": null},
	    {"name": "groups", "type": ["null", {"type": "array", "items": "string"}], "default": null,
	     "Relationship": {"/*": {"entityTypes": ["mlModelGroup"], "name": "MemberOf"}}},
	    {"name": "trainingJobs", "type": ["null", {"type": "array", "items": "string"}], "default": null,
	     "Relationship": {"/*": {"entityTypes": ["dataJob"], "name": "TrainedBy", "isLineage": true}}}
	  ]
	}`,
	"corpUserKey": `{
	  "type": "record", "Aspect": {"name": "corpUserKey"},
	  "name": "CorpUserKey", "namespace": "com.linkedin.metadata.key",
	  "fields": [{"name": "username", "type": "string"}]
	}`,
	"corpGroupKey": `{
	  "type": "record", "Aspect": {"name": "corpGroupKey"},
	  "name": "CorpGroupKey", "namespace": "com.linkedin.metadata.key",
	  "fields": [{"name": "name", "type": "string"}]
	}`,
	"domainKey": `{
	  "type": "record", "Aspect": {"name": "domainKey"},
	  "name": "DomainKey", "namespace": "com.linkedin.metadata.key",
	  "fields": [{"name": "id", "type": "string"}]
	}`,
}

var aspectOrder = []string{
	"mlModelGroupKey", "ownership", "domains", "status",
	"mlModelKey", "mlModelProperties", "corpUserKey", "corpGroupKey", "domainKey",
}

const auditStampSource = `{
  "type": "record", "name": "AuditStamp", "namespace": "com.linkedin.common",
  "fields": [
    {"name": "time", "type": "long"},
    {"name": "actor", "type": "string"}
  ]
}`

var entityFixtures = []*schema.EntityDefinition{
	{Name: "mlModelGroup", Category: "ML", KeyAspect: "mlModelGroupKey", Aspects: []string{"ownership", "domains", "status"}},
	{Name: "mlModel", Category: "ML", KeyAspect: "mlModelKey", Aspects: []string{"mlModelProperties", "ownership", "status"}},
	{Name: "corpuser", KeyAspect: "corpUserKey", Aspects: []string{"status"}},
	{Name: "corpGroup", KeyAspect: "corpGroupKey"},
	{Name: "domain", KeyAspect: "domainKey"},
}

func decodeAspect(t testing.TB, name string) *schema.AspectSchema {
	t.Helper()
	a, err := avro.DecodeAspect([]byte(aspectSources[name]))
	require.NoError(t, err, "decoding %s", name)
	return a
}

func registerFixtures(t testing.TB, b *Builder) {
	t.Helper()
	doc, err := avro.Decode([]byte(auditStampSource))
	require.NoError(t, err)
	for _, n := range doc.Types {
		require.NoError(t, b.RegisterType(n))
	}
	for _, name := range aspectOrder {
		require.NoError(t, b.RegisterAspect(decodeAspect(t, name)))
	}
	for _, e := range entityFixtures {
		require.NoError(t, b.DefineEntity(e))
	}
}

func fixtureSnapshot(t testing.TB) *Snapshot {
	t.Helper()
	b := NewBuilder()
	registerFixtures(t, b)
	return b.Build()
}

func fixtureRegistry(t testing.TB) *Registry {
	t.Helper()
	r := New()
	require.NoError(t, r.Update(func(b *Builder) error {
		registerFixtures(t, b)
		return nil
	}))
	return r
}
