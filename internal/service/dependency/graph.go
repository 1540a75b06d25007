// Package dependency orders table mappings by their declared dependencies.
package dependency

import "duck-ingest/internal/domain"

// Graph is an immutable dependency graph restricted to one set of mapping
// ids. It is safe for concurrent readers.
type Graph struct {
	ids      []int64
	inSet    map[int64]struct{}
	children map[int64][]int64 // parent -> children, in-set edges only
	parents  map[int64][]int64 // child -> parents, in-set edges only
	inDegree map[int64]int
	codes    map[int64]string
}

// NewGraph builds a graph over ids. Edges whose parent or child lies outside
// ids are ignored; duplicate ids and duplicate edges are collapsed. codes
// annotates diagnostics and may be nil.
func NewGraph(ids []int64, edges []domain.DependencyEdge, codes map[int64]string) *Graph {
	g := &Graph{
		inSet:    make(map[int64]struct{}, len(ids)),
		children: make(map[int64][]int64),
		parents:  make(map[int64][]int64),
		inDegree: make(map[int64]int, len(ids)),
		codes:    make(map[int64]string, len(codes)),
	}
	for _, id := range ids {
		if _, dup := g.inSet[id]; dup {
			continue
		}
		g.inSet[id] = struct{}{}
		g.ids = append(g.ids, id)
		g.inDegree[id] = 0
	}

	type edgeKey struct{ parent, child int64 }
	seen := make(map[edgeKey]struct{}, len(edges))
	for _, e := range edges {
		if !g.Contains(e.ParentMappingID) || !g.Contains(e.ChildMappingID) {
			continue
		}
		k := edgeKey{e.ParentMappingID, e.ChildMappingID}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		g.children[k.parent] = append(g.children[k.parent], k.child)
		g.parents[k.child] = append(g.parents[k.child], k.parent)
		g.inDegree[k.child]++
	}

	for id, code := range codes {
		g.codes[id] = code
	}
	return g
}

// IDs returns the deduplicated node ids in input order.
func (g *Graph) IDs() []int64 {
	return append([]int64(nil), g.ids...)
}

// Contains reports whether id is a node of the graph.
func (g *Graph) Contains(id int64) bool {
	_, ok := g.inSet[id]
	return ok
}

// Parents returns the in-set parents of id.
func (g *Graph) Parents(id int64) []int64 {
	return append([]int64(nil), g.parents[id]...)
}

// Code returns the mapping code of id, or "" when unknown.
func (g *Graph) Code(id int64) string {
	return g.codes[id]
}

// Codes returns the mapping codes of ids, "" where unknown.
func (g *Graph) Codes(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = g.codes[id]
	}
	return out
}

// ResolveOrder returns a total order of the graph's nodes in which every
// parent precedes its children. Ties are broken by input order. When the
// graph contains a cycle it returns a *domain.CycleError naming one.
func (g *Graph) ResolveOrder() ([]int64, error) {
	inDegree := make(map[int64]int, len(g.inDegree))
	for id, d := range g.inDegree {
		inDegree[id] = d
	}

	queue := make([]int64, 0, len(g.ids))
	for _, id := range g.ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]int64, 0, len(g.ids))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, child := range g.children[id] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if len(order) == len(g.ids) {
		return order, nil
	}

	emitted := make(map[int64]struct{}, len(order))
	for _, id := range order {
		emitted[id] = struct{}{}
	}
	unprocessed := make([]int64, 0, len(g.ids)-len(order))
	for _, id := range g.ids {
		if _, ok := emitted[id]; !ok {
			unprocessed = append(unprocessed, id)
		}
	}
	cycle := g.DetectCycle(unprocessed)
	return nil, &domain.CycleError{Cycle: cycle, Codes: g.Codes(cycle)}
}
