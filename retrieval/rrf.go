// Package retrieval combines independently ranked result lists (lexical
// full-text search, embedding similarity, graph expansion) into a single
// ordering using weighted reciprocal rank fusion.
package retrieval

import (
	"fmt"
	"sort"
)

// DefaultRRFK is the standard RRF damping constant from the literature.
const DefaultRRFK = 60

// RankedItem is one entry of a source's ranked list. Score is the source's
// own scoring and is opaque to fusion; only the position in the list matters.
type RankedItem struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Source string  `json:"source"`
}

// FusedItem is one entry of the fused ranking. Sources lists the distinct
// source names that contributed, in source-name order.
type FusedItem struct {
	ID      string   `json:"id"`
	Score   float64  `json:"score"`
	Sources []string `json:"sources"`
}

// FuseOptions configures rank fusion.
type FuseOptions struct {
	// K is the RRF damping constant; zero uses DefaultRRFK.
	K int
	// Weights scales each source's contribution; missing sources weigh 1.0.
	Weights map[string]float64
}

// Fuse merges the given best-first ranked lists into one ordering. An item at
// 0-based rank r in a source's list contributes weight/(k+r+1) to its fused
// score. Results are sorted by fused score descending; ties are broken by the
// number of contributing sources descending (agreement between strategies
// outranks a single strong source), then by item id for full determinism.
func Fuse(lists map[string][]RankedItem, opts FuseOptions) ([]FusedItem, error) {
	if opts.K < 0 {
		return nil, fmt.Errorf("retrieval: rrf k must be non-negative, got %d", opts.K)
	}
	k := opts.K
	if k == 0 {
		k = DefaultRRFK
	}

	// Process sources in name order so Sources slices and accumulation are
	// deterministic regardless of map iteration order.
	names := make([]string, 0, len(lists))
	for name := range lists {
		names = append(names, name)
	}
	sort.Strings(names)

	fused := make(map[string]*FusedItem)
	contributed := make(map[string]map[string]bool)

	for _, name := range names {
		weight := 1.0
		if w, ok := opts.Weights[name]; ok {
			weight = w
		}
		for rank, item := range lists[name] {
			entry, ok := fused[item.ID]
			if !ok {
				entry = &FusedItem{ID: item.ID}
				fused[item.ID] = entry
				contributed[item.ID] = make(map[string]bool)
			}
			entry.Score += weight / float64(k+rank+1)
			if !contributed[item.ID][name] {
				contributed[item.ID][name] = true
				entry.Sources = append(entry.Sources, name)
			}
		}
	}

	out := make([]FusedItem, 0, len(fused))
	for _, e := range fused {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if len(out[i].Sources) != len(out[j].Sources) {
			return len(out[i].Sources) > len(out[j].Sources)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
