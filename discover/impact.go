package discover

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nkhoeller/notegraph/graph"
)

// ImpactOptions configures an impact analysis.
type ImpactOptions struct {
	MaxDepth       int
	EdgeTypes      []graph.EdgeType
	TransitiveOnly bool // drop direct dependents, keep depth >= 2
}

// ImpactedNote is a note that depends on the analysed note, directly or
// transitively, with the chain that connects them.
type ImpactedNote struct {
	NoteID string   `json:"note_id"`
	Path   string   `json:"path"`
	Title  string   `json:"title"`
	Depth  int      `json:"depth"`
	Score  float64  `json:"score"`
	Chain  []string `json:"chain"`
}

// Impact finds the notes that would be affected by changing the given note:
// everything reachable by following links in reverse. Results are ordered
// strongest dependency first.
func (e *Engine) Impact(ctx context.Context, noteID string, opts ImpactOptions) ([]ImpactedNote, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 3
	}

	if _, err := e.store.GetNote(ctx, noteID); err != nil {
		return nil, err
	}

	edges, err := e.store.AllLinks(ctx, opts.EdgeTypes)
	if err != nil {
		return nil, fmt.Errorf("loading links: %w", err)
	}
	if len(edges) == 0 {
		return nil, nil
	}

	// Dependents point at this note, so walk the graph with every edge
	// reversed.
	reversed := make([]graph.Edge, len(edges))
	for i, edge := range edges {
		reversed[i] = graph.Edge{
			Source:   edge.Target,
			Target:   edge.Source,
			Type:     edge.Type,
			Strength: edge.Strength,
		}
	}

	expanded, err := graph.Expand(reversed, []graph.Seed{{ID: noteID, Score: 1.0}}, graph.ExpandOptions{
		MaxDepth:    opts.MaxDepth,
		Budget:      len(reversed) + 1,
		DecayFactor: 0.5,
	})
	if err != nil {
		return nil, err
	}

	var impacted []ImpactedNote
	for _, n := range expanded {
		if n.Depth == 0 {
			continue // the note itself
		}
		if opts.TransitiveOnly && n.Depth < 2 {
			continue
		}
		target, err := e.store.GetNote(ctx, n.ID)
		if err != nil {
			slog.Warn("discover: dropping unresolvable dependent", "note_id", n.ID, "error", err)
			continue
		}
		impacted = append(impacted, ImpactedNote{
			NoteID: n.ID,
			Path:   target.Path,
			Title:  target.Title,
			Depth:  n.Depth,
			Score:  n.Score,
			Chain:  n.Path,
		})
	}
	return impacted, nil
}
