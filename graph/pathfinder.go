package graph

import (
	"fmt"
	"sort"
	"strings"
)

// SearchOutcome reports why a K-shortest-path search stopped.
type SearchOutcome string

const (
	// OutcomeFoundAll means exactly k paths were accepted.
	OutcomeFoundAll SearchOutcome = "found_all"
	// OutcomeNoPath means no path exists between the endpoints at all.
	OutcomeNoPath SearchOutcome = "no_path"
	// OutcomeExhaustedCandidates means the candidate pool ran dry before
	// k paths were accepted.
	OutcomeExhaustedCandidates SearchOutcome = "exhausted_candidates"
	// OutcomeDiversityFilter means candidates remained but none passed the
	// Jaccard overlap test against the already-accepted paths.
	OutcomeDiversityFilter SearchOutcome = "diversity_filter"
)

// KShortestResult holds the accepted paths and the stop reason.
type KShortestResult struct {
	Paths   []PathResult  `json:"paths"`
	Outcome SearchOutcome `json:"outcome"`
}

// KShortestOptions configures a K-shortest-diverse-paths search.
type KShortestOptions struct {
	// K is the number of paths to find.
	K int
	// EdgeTypes restricts traversal to these edge types; empty means all.
	EdgeTypes []EdgeType
	// MaxDepth bounds each directional BFS; the combined search depth is
	// capped at twice this value.
	MaxDepth int
	// OverlapThreshold is the maximum Jaccard overlap an accepted path may
	// have with any previously accepted path.
	OverlapThreshold float64
	// MaxCandidates caps the candidate pool; excess candidates are evicted
	// in deterministic order.
	MaxCandidates int
	// MaxExtraHops caps accepted paths at shortest hop count plus this.
	MaxExtraHops int
	// Penalties scores paths cosmetically; nil uses DefaultPenalties.
	Penalties PenaltyTable
}

// DefaultKShortestOptions returns the standard search parameters.
func DefaultKShortestOptions() KShortestOptions {
	return KShortestOptions{
		K:                3,
		MaxDepth:         15,
		OverlapThreshold: 0.7,
		MaxCandidates:    100,
		MaxExtraHops:     2,
		Penalties:        DefaultPenalties(),
	}
}

// edgeKey builds the disabled-edge set key for a directed edge.
func edgeKey(src, dst string) string {
	return src + "->" + dst
}

// parentRec records how a node was first reached on one side of the
// bidirectional search.
type parentRec struct {
	parent string
	via    EdgeType
	depth  int
}

// ShortestPath runs a bidirectional BFS between start and end over the index,
// expanding the smaller frontier at each step. Disabled nodes and edges
// (keys "source->target") are excluded from expansion entirely. It returns
// the node sequence, the edge types in traversal order, and whether a path
// was found within maxDepth hops per side. Absence of a path is a normal
// outcome, not an error.
func (idx *Index) ShortestPath(start, end string, maxDepth int, disabledEdges, disabledNodes map[string]bool) ([]string, []EdgeType, bool) {
	if disabledNodes[start] || disabledNodes[end] {
		return nil, nil, false
	}
	if start == end {
		return []string{start}, nil, true
	}

	fwd := map[string]parentRec{start: {depth: 0}}
	bwd := map[string]parentRec{end: {depth: 0}}
	fFrontier := []string{start}
	bFrontier := []string{end}
	fDepth, bDepth := 0, 0

	bestDist := -1
	var bestMeet string

	// A meeting node does not immediately terminate the search: with
	// asymmetric frontier depths the first meeting point is not guaranteed
	// to lie on a shortest path, so expansion continues until the combined
	// depth reaches the best distance found so far.
	for len(fFrontier) > 0 && len(bFrontier) > 0 {
		if bestDist >= 0 && fDepth+bDepth >= bestDist {
			break
		}
		if fDepth+bDepth+1 > 2*maxDepth {
			break
		}

		forward := len(fFrontier) <= len(bFrontier)
		var (
			frontier []string
			visited  map[string]parentRec
			other    map[string]parentRec
			depth    int
		)
		if forward {
			frontier, visited, other = fFrontier, fwd, bwd
			fDepth++
			depth = fDepth
		} else {
			frontier, visited, other = bFrontier, bwd, fwd
			bDepth++
			depth = bDepth
		}

		var next []string
		for _, u := range frontier {
			var adj []neighbor
			if forward {
				adj = idx.forward[u]
			} else {
				adj = idx.backward[u]
			}
			for _, nb := range adj {
				if disabledNodes[nb.id] {
					continue
				}
				// On the backward side the underlying edge runs from the
				// neighbour into u.
				if forward {
					if disabledEdges[edgeKey(u, nb.id)] {
						continue
					}
				} else if disabledEdges[edgeKey(nb.id, u)] {
					continue
				}
				if _, seen := visited[nb.id]; seen {
					continue
				}
				visited[nb.id] = parentRec{parent: u, via: nb.edgeType, depth: depth}
				if rec, ok := other[nb.id]; ok {
					d := depth + rec.depth
					if bestDist < 0 || d < bestDist || (d == bestDist && nb.id < bestMeet) {
						bestDist = d
						bestMeet = nb.id
					}
				}
				next = append(next, nb.id)
			}
		}
		if forward {
			fFrontier = next
		} else {
			bFrontier = next
		}
	}

	if bestDist < 0 {
		return nil, nil, false
	}
	return reconstructPath(start, end, bestMeet, fwd, bwd)
}

// reconstructPath walks parent pointers from the meeting node back to start
// and forward to end, concatenating edge types in traversal order.
func reconstructPath(start, end, meet string, fwd, bwd map[string]parentRec) ([]string, []EdgeType, bool) {
	// Head: start .. meet, built in reverse.
	var head []string
	var headEdges []EdgeType
	for cur := meet; cur != start; {
		rec := fwd[cur]
		head = append(head, cur)
		headEdges = append(headEdges, rec.via)
		cur = rec.parent
	}
	path := []string{start}
	var edges []EdgeType
	for i := len(head) - 1; i >= 0; i-- {
		path = append(path, head[i])
		edges = append(edges, headEdges[i])
	}

	// Tail: meet .. end, already in traversal order.
	for cur := meet; cur != end; {
		rec := bwd[cur]
		edges = append(edges, rec.via)
		path = append(path, rec.parent)
		cur = rec.parent
	}
	return path, edges, true
}

// candidate is a pool entry in Yen's search.
type candidate struct {
	path  []string
	edges []EdgeType
	score float64
	sig   string
}

// candidateLess is the deterministic candidate ordering: ascending hop
// count, then ascending cosmetic score, then lexical path signature.
func candidateLess(a, b candidate) bool {
	if len(a.path) != len(b.path) {
		return len(a.path) < len(b.path)
	}
	if a.score != b.score {
		return a.score < b.score
	}
	return a.sig < b.sig
}

// pathSignature uniquely identifies a node sequence.
func pathSignature(path []string) string {
	return strings.Join(path, "\x1f")
}

// isSimplePath reports whether the path visits no node twice.
func isSimplePath(path []string) bool {
	seen := make(map[string]bool, len(path))
	for _, id := range path {
		if seen[id] {
			return false
		}
		seen[id] = true
	}
	return true
}

// KShortestPaths finds up to opts.K diverse paths from start to end using
// Yen's algorithm over the given edges. Each accepted path differs from every
// previously accepted one by at most opts.OverlapThreshold Jaccard node
// overlap, and no accepted path exceeds the shortest hop count plus
// opts.MaxExtraHops. The returned outcome explains why the search stopped.
func KShortestPaths(edges []Edge, start, end string, opts KShortestOptions) (*KShortestResult, error) {
	if start == "" || end == "" {
		return nil, fmt.Errorf("graph: start and end node ids must be non-empty")
	}
	if opts.K <= 0 {
		return nil, fmt.Errorf("graph: k must be positive, got %d", opts.K)
	}
	if opts.MaxDepth <= 0 {
		return nil, fmt.Errorf("graph: max depth must be positive, got %d", opts.MaxDepth)
	}
	if opts.MaxCandidates <= 0 {
		return nil, fmt.Errorf("graph: max candidates must be positive, got %d", opts.MaxCandidates)
	}
	if opts.OverlapThreshold < 0 || opts.OverlapThreshold > 1 {
		return nil, fmt.Errorf("graph: overlap threshold must be in [0,1], got %g", opts.OverlapThreshold)
	}
	if opts.MaxExtraHops < 0 {
		return nil, fmt.Errorf("graph: max extra hops must be non-negative, got %d", opts.MaxExtraHops)
	}
	penalties := opts.Penalties
	if penalties == nil {
		penalties = DefaultPenalties()
	}

	idx := NewIndex(edges, opts.EdgeTypes)

	path, pathEdges, ok := idx.ShortestPath(start, end, opts.MaxDepth, nil, nil)
	if !ok {
		return &KShortestResult{Outcome: OutcomeNoPath}, nil
	}

	shortestHops := len(path) - 1
	hopCap := shortestHops + opts.MaxExtraHops

	accepted := []PathResult{{
		Path:     path,
		Edges:    pathEdges,
		HopCount: shortestHops,
		Score:    penalties.PathScore(pathEdges),
	}}
	acceptedSigs := map[string]bool{pathSignature(path): true}

	var pool []candidate
	poolSigs := make(map[string]bool)

	for len(accepted) < opts.K {
		// Generate spur candidates from the most recently accepted path.
		base := accepted[len(accepted)-1]
		for i := 0; i < len(base.Path)-1; i++ {
			spur := base.Path[i]
			rootPath := base.Path[:i+1]
			rootEdges := base.Edges[:i]

			// Disable the outgoing edge any accepted path sharing this root
			// already used from the spur node, so the same path is not
			// regenerated.
			disabledEdges := make(map[string]bool)
			for _, p := range accepted {
				if len(p.Path) > i+1 && samePrefix(p.Path, rootPath) {
					disabledEdges[edgeKey(p.Path[i], p.Path[i+1])] = true
				}
			}
			// Disable the rest of the root so spur paths cannot cycle back
			// into it.
			disabledNodes := make(map[string]bool, i)
			for _, id := range rootPath[:i] {
				disabledNodes[id] = true
			}

			spurPath, spurEdges, found := idx.ShortestPath(spur, end, opts.MaxDepth, disabledEdges, disabledNodes)
			if !found {
				continue
			}

			full := make([]string, 0, len(rootPath)+len(spurPath)-1)
			full = append(full, rootPath...)
			full = append(full, spurPath[1:]...)
			fullEdges := make([]EdgeType, 0, len(rootEdges)+len(spurEdges))
			fullEdges = append(fullEdges, rootEdges...)
			fullEdges = append(fullEdges, spurEdges...)

			if len(full)-1 > hopCap || !isSimplePath(full) {
				continue
			}
			sig := pathSignature(full)
			if acceptedSigs[sig] || poolSigs[sig] {
				continue
			}
			poolSigs[sig] = true
			pool = append(pool, candidate{
				path:  full,
				edges: fullEdges,
				score: penalties.PathScore(fullEdges),
				sig:   sig,
			})
		}

		sort.Slice(pool, func(a, b int) bool { return candidateLess(pool[a], pool[b]) })
		if len(pool) > opts.MaxCandidates {
			for _, evicted := range pool[opts.MaxCandidates:] {
				delete(poolSigs, evicted.sig)
			}
			pool = pool[:opts.MaxCandidates]
		}

		if len(pool) == 0 {
			return &KShortestResult{Paths: accepted, Outcome: OutcomeExhaustedCandidates}, nil
		}

		// Promote the first candidate diverse enough against every accepted
		// path.
		promoted := -1
		for ci, c := range pool {
			diverse := true
			for _, p := range accepted {
				if JaccardOverlap(c.path, p.Path) > opts.OverlapThreshold {
					diverse = false
					break
				}
			}
			if diverse {
				promoted = ci
				break
			}
		}
		if promoted < 0 {
			return &KShortestResult{Paths: accepted, Outcome: OutcomeDiversityFilter}, nil
		}

		c := pool[promoted]
		pool = append(pool[:promoted], pool[promoted+1:]...)
		delete(poolSigs, c.sig)
		acceptedSigs[c.sig] = true
		accepted = append(accepted, PathResult{
			Path:     c.path,
			Edges:    c.edges,
			HopCount: len(c.path) - 1,
			Score:    c.score,
		})
	}

	return &KShortestResult{Paths: accepted, Outcome: OutcomeFoundAll}, nil
}

// samePrefix reports whether path begins with the given root.
func samePrefix(path, root []string) bool {
	if len(path) < len(root) {
		return false
	}
	for i := range root {
		if path[i] != root[i] {
			return false
		}
	}
	return true
}
