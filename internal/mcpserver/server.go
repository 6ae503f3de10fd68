// Package mcpserver exposes registry queries as Model Context Protocol
// tools, so assistants can look up aspects, entities and relationships.
package mcpserver

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/metagraph-dev/metagraph/runtime/registry"
)

// New creates an MCP server with every registry tool registered. Each call
// reads the registry's current snapshot, so reloads are visible immediately.
func New(reg *registry.Registry, version string, logger *zap.Logger) *mcp.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tools{Registry: reg, Logger: logger}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "metagraph",
		Version: version,
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_aspects",
		Description: "List registered aspect schemas with their record names and field counts",
	}, t.ListAspects)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_aspect",
		Description: "Get one aspect schema as an Avro record document, including annotations",
	}, t.GetAspect)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_entities",
		Description: "List entity types with their key aspect and aspects, optionally filtered by category",
	}, t.ListEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_entity",
		Description: "Get one entity type definition (names are case-insensitive)",
	}, t.GetEntity)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "outgoing_relationships",
		Description: "List relationships declared by an entity type's aspects, pointing at other entity types",
	}, t.OutgoingRelationships)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "incoming_relationships",
		Description: "List relationships other entity types declare toward this entity type",
	}, t.IncomingRelationships)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_searchable_fields",
		Description: "List the search index fields contributed by an entity type's aspects",
	}, t.GetSearchableFields)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "entity_graph",
		Description: "Walk the relationship graph from an entity type up to a depth",
	}, t.EntityGraph)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_relationship_types",
		Description: "List every relationship name with the entity types it connects",
	}, t.ListRelationshipTypes)

	return srv
}

// HTTPHandler serves srv over the streamable HTTP transport
func HTTPHandler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return srv
	}, nil)
}
