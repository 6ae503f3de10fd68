package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/metagraph-dev/metagraph/pkg/schema"
	"github.com/metagraph-dev/metagraph/pkg/schema/avro"
	"github.com/metagraph-dev/metagraph/runtime/registry"
)

// Tools holds the registry the tool handlers query
type Tools struct {
	Registry *registry.Registry
	Logger   *zap.Logger
}

// NameInput selects one aspect or entity by name
type NameInput struct {
	Name string `json:"name" jsonschema:"Aspect or entity name"`
}

// ListEntitiesInput filters list_entities
type ListEntitiesInput struct {
	Category string `json:"category,omitempty" jsonschema:"Only entities in this category (e.g. core, internal)"`
}

// RelationshipsInput is shared by the outgoing and incoming relationship
// tools
type RelationshipsInput struct {
	Entity string   `json:"entity" jsonschema:"Entity type name"`
	Names  []string `json:"names,omitempty" jsonschema:"Only relationships with these names"`
}

// GraphInput configures entity_graph. An omitted depth follows one hop, the
// same as the HTTP graph endpoint.
type GraphInput struct {
	Entity    string   `json:"entity" jsonschema:"Entity type to start from"`
	Depth     *int     `json:"depth,omitempty" jsonschema:"Maximum hops to follow (default 1); 0 means unlimited"`
	Direction string   `json:"direction,omitempty" jsonschema:"outgoing (default) or incoming"`
	Names     []string `json:"names,omitempty" jsonschema:"Only follow relationships with these names"`
}

type aspectSummary struct {
	Name       string `json:"name"`
	RecordName string `json:"recordName"`
	Namespace  string `json:"namespace,omitempty"`
	Fields     int    `json:"fields"`
}

func (t *Tools) ListAspects(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	out := []aspectSummary{}
	for a := range t.Registry.ListAspects() {
		out = append(out, aspectSummary{Name: a.Name, RecordName: a.RecordName, Namespace: a.Namespace, Fields: len(a.Fields)})
	}
	return toolJSON(out)
}

func (t *Tools) GetAspect(_ context.Context, _ *mcp.CallToolRequest, input NameInput) (*mcp.CallToolResult, any, error) {
	a, err := t.Registry.GetAspect(input.Name)
	if err != nil {
		return toolError("%v", err), nil, nil
	}
	doc, err := avro.EncodeAspect(a)
	if err != nil {
		t.Logger.Error("failed to encode aspect", zap.String("aspect", a.Name), zap.Error(err))
		return toolError("Failed to encode aspect %q: %v", a.Name, err), nil, nil
	}
	return toolText(string(doc)), nil, nil
}

func (t *Tools) ListEntities(_ context.Context, _ *mcp.CallToolRequest, input ListEntitiesInput) (*mcp.CallToolResult, any, error) {
	out := []*schema.EntityDefinition{}
	for e := range t.Registry.ListEntities() {
		if input.Category != "" && !strings.EqualFold(e.Category, input.Category) {
			continue
		}
		out = append(out, e)
	}
	return toolJSON(out)
}

func (t *Tools) GetEntity(_ context.Context, _ *mcp.CallToolRequest, input NameInput) (*mcp.CallToolResult, any, error) {
	e, err := t.Registry.GetEntity(input.Name)
	if err != nil {
		return toolError("%v", err), nil, nil
	}
	return toolJSON(e)
}

func (t *Tools) OutgoingRelationships(_ context.Context, _ *mcp.CallToolRequest, input RelationshipsInput) (*mcp.CallToolResult, any, error) {
	return t.relationships(input, registry.Outgoing)
}

func (t *Tools) IncomingRelationships(_ context.Context, _ *mcp.CallToolRequest, input RelationshipsInput) (*mcp.CallToolResult, any, error) {
	return t.relationships(input, registry.Incoming)
}

func (t *Tools) relationships(input RelationshipsInput, dir registry.Direction) (*mcp.CallToolResult, any, error) {
	rels, err := t.Registry.Snapshot().Relationships(input.Entity, dir)
	if err != nil {
		return toolError("%v", err), nil, nil
	}
	if len(input.Names) > 0 {
		filtered := rels[:0:0]
		for _, r := range rels {
			for _, n := range input.Names {
				if r.Name == n {
					filtered = append(filtered, r)
					break
				}
			}
		}
		rels = filtered
	}
	return toolJSON(rels)
}

func (t *Tools) GetSearchableFields(_ context.Context, _ *mcp.CallToolRequest, input NameInput) (*mcp.CallToolResult, any, error) {
	fields, err := t.Registry.Snapshot().SearchableFields(input.Name)
	if err != nil {
		return toolError("%v", err), nil, nil
	}
	return toolJSON(fields)
}

const defaultGraphDepth = 1

func (t *Tools) EntityGraph(_ context.Context, _ *mcp.CallToolRequest, input GraphInput) (*mcp.CallToolResult, any, error) {
	depth := defaultGraphDepth
	if input.Depth != nil {
		depth = *input.Depth
	}
	if depth < 0 {
		return toolError("depth must not be negative"), nil, nil
	}
	dir, err := direction(input.Direction)
	if err != nil {
		return toolError("%v", err), nil, nil
	}
	g, err := t.Registry.Snapshot().Traverse(input.Entity, registry.GraphOptions{
		Depth:   depth,
		Reverse: dir == registry.Incoming,
		Names:   input.Names,
	})
	if err != nil {
		return toolError("%v", err), nil, nil
	}
	return toolJSON(g)
}

func (t *Tools) ListRelationshipTypes(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	types, err := t.Registry.Snapshot().RelationshipTypes()
	if err != nil {
		return toolError("%v", err), nil, nil
	}
	return toolJSON(types)
}

func direction(s string) (registry.Direction, error) {
	if s == "" {
		return registry.Outgoing, nil
	}
	return registry.ParseDirection(s)
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return toolText(string(data)), nil, nil
}
