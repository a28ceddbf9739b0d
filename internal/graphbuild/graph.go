package graphbuild

import (
	"fmt"
	"sort"
)

// EdgeKey identifies one directed edge. Undirected store collections are
// represented as one directed edge carrying a reversible=true attribute.
type EdgeKey struct {
	Source string
	Target string
}

// Graph is the property graph a build assembles: attributed nodes keyed by
// identifier and attributed directed edges. It is owned by exactly one build
// until serialized and is not safe for concurrent use.
type Graph struct {
	nodes map[string]map[string]any
	edges map[EdgeKey]map[string]any
	out   map[string]map[string]int
	in    map[string]map[string]int
}

func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]map[string]any),
		edges: make(map[EdgeKey]map[string]any),
		out:   make(map[string]map[string]int),
		in:    make(map[string]map[string]int),
	}
}

func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// AddNode creates the node if absent and merges the given attributes.
func (g *Graph) AddNode(id string, attrs map[string]any) {
	node, ok := g.nodes[id]
	if !ok {
		node = make(map[string]any)
		g.nodes[id] = node
	}
	for k, v := range attrs {
		node[k] = v
	}
}

// AddEdge creates both endpoints if absent and sets the edge attributes,
// replacing any previous attributes on the same (source, target) pair.
func (g *Graph) AddEdge(source, target string, attrs map[string]any) {
	g.AddNode(source, nil)
	g.AddNode(target, nil)

	key := EdgeKey{Source: source, Target: target}
	if _, exists := g.edges[key]; !exists {
		if g.out[source] == nil {
			g.out[source] = make(map[string]int)
		}
		if g.in[target] == nil {
			g.in[target] = make(map[string]int)
		}
		g.out[source][target]++
		g.in[target][source]++
	}
	g.edges[key] = attrs
}

func (g *Graph) HasEdge(source, target string) bool {
	_, ok := g.edges[EdgeKey{Source: source, Target: target}]
	return ok
}

// RemoveNode deletes the node and every incident edge.
func (g *Graph) RemoveNode(id string) {
	if !g.HasNode(id) {
		return
	}
	for target := range g.out[id] {
		delete(g.edges, EdgeKey{Source: id, Target: target})
		delete(g.in[target], id)
	}
	for source := range g.in[id] {
		delete(g.edges, EdgeKey{Source: source, Target: id})
		delete(g.out[source], id)
	}
	delete(g.out, id)
	delete(g.in, id)
	delete(g.nodes, id)
}

// Degree counts incident edges in both directions.
func (g *Graph) Degree(id string) int {
	return len(g.out[id]) + len(g.in[id])
}

func (g *Graph) NodeAttrs(id string) map[string]any { return g.nodes[id] }

func (g *Graph) EdgeAttrs(key EdgeKey) map[string]any { return g.edges[key] }

func (g *Graph) NodeCount() int { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return len(g.edges) }

// NodeIDs returns node identifiers in sorted order for deterministic output.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EdgeKeys returns edge keys sorted by (source, target).
func (g *Graph) EdgeKeys() []EdgeKey {
	keys := make([]EdgeKey, 0, len(g.edges))
	for key := range g.edges {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Source != keys[j].Source {
			return keys[i].Source < keys[j].Source
		}
		return keys[i].Target < keys[j].Target
	})
	return keys
}

// Relabel renames nodes according to mapping and rewrites edge endpoints.
// Edge attributes are untouched; callers that mirror endpoint ids into
// attributes must rewrite them in lockstep (see Builder.relabelPass).
func (g *Graph) Relabel(mapping map[string]string) error {
	for oldID, newID := range mapping {
		if oldID == newID {
			continue
		}
		if !g.HasNode(oldID) {
			continue
		}
		if g.HasNode(newID) {
			return fmt.Errorf("relabel target %q already present", newID)
		}

		attrs := g.nodes[oldID]

		type moved struct {
			key   EdgeKey
			attrs map[string]any
		}
		var edges []moved
		for target := range g.out[oldID] {
			key := EdgeKey{Source: oldID, Target: target}
			edges = append(edges, moved{key, g.edges[key]})
		}
		for source := range g.in[oldID] {
			key := EdgeKey{Source: source, Target: oldID}
			edges = append(edges, moved{key, g.edges[key]})
		}

		g.RemoveNode(oldID)
		g.AddNode(newID, attrs)
		for _, e := range edges {
			src, tgt := e.key.Source, e.key.Target
			if src == oldID {
				src = newID
			}
			if tgt == oldID {
				tgt = newID
			}
			g.AddEdge(src, tgt, e.attrs)
		}
	}
	return nil
}
