// Package graph implements the traversal core of notegraph: adjacency
// indexing, shortest-path and K-shortest-path search, decayed-score bounded
// expansion, and connected components. Everything here is pure in-memory
// computation over edge slices loaded by the caller; no function performs I/O.
package graph

// EdgeType classifies a directed relation between two notes.
type EdgeType string

// The closed set of edge types. Callers filter traversals by these values
// and the penalty table keys off them.
const (
	EdgeExplicitLink       EdgeType = "explicit_link"
	EdgeSequence           EdgeType = "sequence"
	EdgeHierarchy          EdgeType = "hierarchy"
	EdgeCauses             EdgeType = "causes"
	EdgeSemantic           EdgeType = "semantic"
	EdgeSemanticSuggestion EdgeType = "semantic_suggestion"
	EdgeMention            EdgeType = "mention"
)

// AllEdgeTypes lists every known edge type, in display order.
var AllEdgeTypes = []EdgeType{
	EdgeExplicitLink,
	EdgeSequence,
	EdgeHierarchy,
	EdgeCauses,
	EdgeSemantic,
	EdgeSemanticSuggestion,
	EdgeMention,
}

// Edge is a directed typed relation between two notes. Strength defaults to
// 1.0 when unset; it scales the propagated score during bounded expansion.
type Edge struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Type     EdgeType `json:"type"`
	Strength float64  `json:"strength"`
}

// PathResult is a single path between two notes. Edges[i] is the type of the
// edge from Path[i] to Path[i+1], so len(Edges) == len(Path)-1. Score is the
// cosmetic ranking score: hop count plus the sum of per-edge penalties.
type PathResult struct {
	Path     []string   `json:"path"`
	Edges    []EdgeType `json:"edges"`
	HopCount int        `json:"hop_count"`
	Score    float64    `json:"score"`
}

// ExpandedNode is one node reached by bounded expansion. For nodes reachable
// by more than one route, the recorded depth/score/path belong to the
// highest-scoring route seen. Via is empty for seed nodes.
type ExpandedNode struct {
	ID    string   `json:"id"`
	Depth int      `json:"depth"`
	Score float64  `json:"score"`
	Path  []string `json:"path"`
	Via   EdgeType `json:"via,omitempty"`
}

// Seed supplies a starting node and its initial relevance score for bounded
// expansion.
type Seed struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// defaultPenalty applies to edge types without an entry in the table.
const defaultPenalty = 0.3

// PenaltyTable maps edge types to cosmetic path-scoring penalties. Lower is
// "more natural"; the penalty only influences ranking and tie-breaks, never
// reachability. It is passed explicitly so alternate schemes are swappable
// per call.
type PenaltyTable map[EdgeType]float64

// DefaultPenalties returns the standard penalty scheme: explicit wikilinks
// are free, structural and causal relations cheap, inferred semantic
// relations progressively more expensive.
func DefaultPenalties() PenaltyTable {
	return PenaltyTable{
		EdgeExplicitLink:       0,
		EdgeSequence:           0.1,
		EdgeCauses:             0.2,
		EdgeSemantic:           0.3,
		EdgeSemanticSuggestion: 0.5,
	}
}

// Penalty returns the penalty for the given edge type, falling back to the
// default for unlisted types. Safe to call on a nil table.
func (p PenaltyTable) Penalty(t EdgeType) float64 {
	if p != nil {
		if v, ok := p[t]; ok {
			return v
		}
	}
	return defaultPenalty
}

// PathScore computes the cosmetic score of a path: hop count plus the sum of
// edge penalties.
func (p PenaltyTable) PathScore(edges []EdgeType) float64 {
	score := float64(len(edges))
	for _, t := range edges {
		score += p.Penalty(t)
	}
	return score
}
