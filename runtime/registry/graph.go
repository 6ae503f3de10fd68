package registry

import (
	"slices"

	"github.com/metagraph-dev/metagraph/pkg/schema"
)

// GraphOptions configures relationship graph traversal
type GraphOptions struct {
	Depth   int      // Maximum traversal depth (0 = unlimited)
	Reverse bool     // Follow incoming edges instead of outgoing
	Names   []string // Only follow these relationship names (empty = all)
}

// Graph is the subgraph reachable from one entity type
type Graph struct {
	Root  string         `json:"root"`
	Nodes []string       `json:"nodes"` // visit order, root first
	Edges []Relationship `json:"edges"`
}

type depthNode struct {
	key   string
	depth int
}

// Traverse walks the relationship graph breadth-first from entity. Targets
// that name no defined entity appear as nodes but are not expanded.
func (s *Snapshot) Traverse(entity string, opts GraphOptions) (*Graph, error) {
	root, ok := s.data.entityByKey[schema.EntityKey(entity)]
	if !ok {
		return nil, &schema.NotFoundError{Kind: "entity", Name: entity}
	}
	idx, err := s.relationships()
	if err != nil {
		return nil, err
	}

	g := &Graph{Root: root.Name, Nodes: []string{root.Name}}
	visited := map[string]bool{schema.EntityKey(root.Name): true}
	queue := []depthNode{{key: schema.EntityKey(root.Name)}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		edges := idx.outgoing[current.key]
		if opts.Reverse {
			edges = idx.incoming[current.key]
		}
		for _, edge := range edges {
			if len(opts.Names) > 0 && !slices.Contains(opts.Names, edge.Name) {
				continue
			}
			g.Edges = append(g.Edges, edge)

			next := edge.Target
			if opts.Reverse {
				next = edge.Source
			}
			key := schema.EntityKey(next)
			if visited[key] {
				continue
			}
			visited[key] = true
			g.Nodes = append(g.Nodes, next)

			if _, defined := s.data.entityByKey[key]; !defined {
				continue
			}
			if opts.Depth == 0 || current.depth+1 < opts.Depth {
				queue = append(queue, depthNode{key: key, depth: current.depth + 1})
			}
		}
	}
	return g, nil
}

// DetectCycles returns the relationship cycles between defined entity types.
// Each cycle lists entity names and ends with its first element repeated.
// Self references are reported as two-element cycles.
func (s *Snapshot) DetectCycles() ([][]string, error) {
	idx, err := s.relationships()
	if err != nil {
		return nil, err
	}

	var cycles [][]string
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var path []string

	var visit func(e *schema.EntityDefinition)
	visit = func(e *schema.EntityDefinition) {
		key := schema.EntityKey(e.Name)
		visited[key] = true
		onStack[key] = true
		path = append(path, e.Name)

		followed := make(map[string]bool)
		for _, edge := range idx.outgoing[key] {
			nextKey := schema.EntityKey(edge.Target)
			next, defined := s.data.entityByKey[nextKey]
			if !defined || followed[nextKey] {
				continue
			}
			followed[nextKey] = true
			if onStack[nextKey] {
				start := slices.IndexFunc(path, func(n string) bool { return schema.EntityKey(n) == nextKey })
				cycle := slices.Clone(path[start:])
				cycles = append(cycles, append(cycle, next.Name))
			} else if !visited[nextKey] {
				visit(next)
			}
		}

		path = path[:len(path)-1]
		onStack[key] = false
	}

	for _, e := range s.data.entities {
		if !visited[schema.EntityKey(e.Name)] {
			visit(e)
		}
	}
	return cycles, nil
}
