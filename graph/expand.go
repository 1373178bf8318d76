package graph

import (
	"fmt"
	"sort"
)

// ExpandOptions configures a bounded expansion.
type ExpandOptions struct {
	// MaxDepth bounds the traversal depth; seeds sit at depth 0.
	MaxDepth int
	// Budget caps the total number of accumulated nodes, seeds included.
	Budget int
	// EdgeTypes restricts traversal to these edge types; empty means all.
	EdgeTypes []EdgeType
	// DecayFactor is the per-hop multiplicative discount, in (0,1).
	DecayFactor float64
	// IncludeIncoming also traverses edges pointing at the frontier node.
	IncludeIncoming bool
	// ScoreThreshold prunes any edge whose propagated score falls below it.
	ScoreThreshold float64
}

// DefaultExpandOptions returns the standard expansion parameters used by
// retrieval and the CLI.
func DefaultExpandOptions() ExpandOptions {
	return ExpandOptions{
		MaxDepth:       2,
		Budget:         50,
		DecayFactor:    0.5,
		ScoreThreshold: 0.05,
	}
}

// Expand runs a decayed-score breadth-first traversal from the seed nodes.
// Each hop multiplies the parent score by the edge strength and the decay
// factor, so a node at depth d scores seedScore × Πstrength × decay^d; the
// highest score seen for a node wins. Expansion halts when the accumulated node count reaches the budget
// (possibly mid-level), the frontier empties, or MaxDepth is exhausted.
// Results are sorted by score descending (ties by id) and include the seeds.
// An empty seed list yields an empty result without touching the edges.
func Expand(edges []Edge, seeds []Seed, opts ExpandOptions) ([]ExpandedNode, error) {
	if len(seeds) == 0 {
		return nil, nil
	}
	if opts.MaxDepth <= 0 {
		return nil, fmt.Errorf("graph: expand max depth must be positive, got %d", opts.MaxDepth)
	}
	if opts.Budget <= 0 {
		return nil, fmt.Errorf("graph: expand budget must be positive, got %d", opts.Budget)
	}
	if opts.DecayFactor <= 0 || opts.DecayFactor >= 1 {
		return nil, fmt.Errorf("graph: decay factor must be in (0,1), got %g", opts.DecayFactor)
	}
	if opts.ScoreThreshold < 0 {
		return nil, fmt.Errorf("graph: score threshold must be non-negative, got %g", opts.ScoreThreshold)
	}

	idx := NewIndex(edges, opts.EdgeTypes)

	acc := make(map[string]*ExpandedNode, opts.Budget)
	var frontier []string
	for _, s := range seeds {
		if existing, ok := acc[s.ID]; ok {
			// Duplicate seed: the larger score wins.
			if s.Score > existing.Score {
				existing.Score = s.Score
			}
			continue
		}
		acc[s.ID] = &ExpandedNode{ID: s.ID, Depth: 0, Score: s.Score, Path: []string{s.ID}}
		frontier = append(frontier, s.ID)
	}

	budgetReached := len(acc) >= opts.Budget

levels:
	for d := 1; d <= opts.MaxDepth && len(frontier) > 0 && !budgetReached; d++ {
		var next []string
		for _, u := range frontier {
			parent := acc[u]
			for _, nb := range idx.neighbors(u, opts.IncludeIncoming) {
				// The parent score already carries the decay of earlier
				// hops, so one hop applies one decay factor. A node at
				// depth d ends up with seedScore × Πstrength × decay^d.
				newScore := parent.Score * nb.strength * opts.DecayFactor
				if newScore < opts.ScoreThreshold {
					continue
				}
				if cur, ok := acc[nb.id]; ok {
					// Already reached, possibly as a seed: keep the best
					// route. Improved nodes do not rejoin the frontier.
					if newScore > cur.Score {
						cur.Score = newScore
						cur.Depth = d
						cur.Path = extendPath(parent.Path, nb.id)
						cur.Via = nb.edgeType
					}
					continue
				}
				acc[nb.id] = &ExpandedNode{
					ID:    nb.id,
					Depth: d,
					Score: newScore,
					Path:  extendPath(parent.Path, nb.id),
					Via:   nb.edgeType,
				}
				next = append(next, nb.id)
				if len(acc) >= opts.Budget {
					budgetReached = true
					break levels
				}
			}
		}
		frontier = next
	}

	out := make([]ExpandedNode, 0, len(acc))
	for _, n := range acc {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// extendPath copies the parent path and appends the new node; paths must not
// alias because accumulator entries are overwritten independently.
func extendPath(parent []string, id string) []string {
	path := make([]string, len(parent), len(parent)+1)
	copy(path, parent)
	return append(path, id)
}

// Connected reports whether to is reachable from from within maxDepth hops,
// ignoring edge direction, and returns the depth at which it was reached.
func Connected(edges []Edge, from, to string, maxDepth int) (bool, int, error) {
	if from == to {
		return true, 0, nil
	}
	idx := NewIndex(edges, nil)
	budget := idx.NodeCount()
	if budget == 0 {
		return false, 0, nil
	}
	nodes, err := Expand(edges, []Seed{{ID: from, Score: 1.0}}, ExpandOptions{
		MaxDepth:        maxDepth,
		Budget:          budget,
		DecayFactor:     0.5,
		IncludeIncoming: true,
		ScoreThreshold:  0,
	})
	if err != nil {
		return false, 0, err
	}
	for _, n := range nodes {
		if n.ID == to {
			return true, n.Depth, nil
		}
	}
	return false, 0, nil
}

// Components partitions the graph into connected components, ignoring edge
// direction, type, and strength. Components are returned largest first (ties
// by first member), each with its members sorted.
func Components(edges []Edge) [][]string {
	idx := NewIndex(edges, nil)

	// Deterministic node ordering: first appearance in the edge slice.
	var order []string
	seen := make(map[string]bool)
	for _, e := range edges {
		if !seen[e.Source] {
			seen[e.Source] = true
			order = append(order, e.Source)
		}
		if !seen[e.Target] {
			seen[e.Target] = true
			order = append(order, e.Target)
		}
	}

	visited := make(map[string]bool, len(order))
	var components [][]string
	for _, root := range order {
		if visited[root] {
			continue
		}
		var comp []string
		queue := []string{root}
		visited[root] = true
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			comp = append(comp, u)
			for _, nb := range idx.neighbors(u, true) {
				if !visited[nb.id] {
					visited[nb.id] = true
					queue = append(queue, nb.id)
				}
			}
		}
		sort.Strings(comp)
		components = append(components, comp)
	}

	sort.Slice(components, func(i, j int) bool {
		if len(components[i]) != len(components[j]) {
			return len(components[i]) > len(components[j])
		}
		return components[i][0] < components[j][0]
	})
	return components
}
