package graph

// neighbor is one adjacency entry: the node on the far side of an edge plus
// the edge's type and strength.
type neighbor struct {
	id       string
	edgeType EdgeType
	strength float64
}

// Index holds forward and backward adjacency lists built once from a flat
// edge slice. It is never mutated after construction and lives for a single
// traversal call.
type Index struct {
	forward  map[string][]neighbor
	backward map[string][]neighbor
}

// NewIndex builds forward and backward adjacency in one pass over edges.
// When allowed is non-empty, edges whose type is not in the allow-set are
// skipped entirely and appear in neither direction. Edge strengths <= 0 are
// treated as the default 1.0.
func NewIndex(edges []Edge, allowed []EdgeType) *Index {
	var allow map[EdgeType]bool
	if len(allowed) > 0 {
		allow = make(map[EdgeType]bool, len(allowed))
		for _, t := range allowed {
			allow[t] = true
		}
	}

	// Pre-size using the edge count to avoid rehashing on large graphs.
	idx := &Index{
		forward:  make(map[string][]neighbor, len(edges)),
		backward: make(map[string][]neighbor, len(edges)),
	}
	for _, e := range edges {
		if allow != nil && !allow[e.Type] {
			continue
		}
		strength := e.Strength
		if strength <= 0 {
			strength = 1.0
		}
		idx.forward[e.Source] = append(idx.forward[e.Source], neighbor{id: e.Target, edgeType: e.Type, strength: strength})
		idx.backward[e.Target] = append(idx.backward[e.Target], neighbor{id: e.Source, edgeType: e.Type, strength: strength})
	}
	return idx
}

// NodeCount returns the number of distinct nodes that appear on either side
// of an indexed edge.
func (idx *Index) NodeCount() int {
	seen := make(map[string]bool, len(idx.forward)+len(idx.backward))
	for id := range idx.forward {
		seen[id] = true
	}
	for id := range idx.backward {
		seen[id] = true
	}
	return len(seen)
}

// neighbors returns the adjacency entries for id: outgoing edges, plus
// incoming edges when includeIncoming is set.
func (idx *Index) neighbors(id string, includeIncoming bool) []neighbor {
	out := idx.forward[id]
	if !includeIncoming {
		return out
	}
	in := idx.backward[id]
	if len(in) == 0 {
		return out
	}
	merged := make([]neighbor, 0, len(out)+len(in))
	merged = append(merged, out...)
	merged = append(merged, in...)
	return merged
}
