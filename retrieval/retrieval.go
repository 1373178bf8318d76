package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nkhoeller/notegraph/graph"
	"github.com/nkhoeller/notegraph/llm"
	"github.com/nkhoeller/notegraph/store"
)

// Source names used in fusion and result annotations.
const (
	SourceLexical  = "lexical"
	SourceSemantic = "semantic"
	SourceGraph    = "graph"
)

// graphSeedCount caps how many top lexical hits seed the graph expansion.
const graphSeedCount = 5

// Config holds retrieval engine configuration.
type Config struct {
	WeightLexical  float64
	WeightSemantic float64
	WeightGraph    float64

	// Bounded-expansion parameters for the graph leg.
	ExpandDepth  int
	ExpandBudget int
	DecayFactor  float64
}

// SearchOptions configures a single search operation. Zero weights fall back
// to the engine configuration.
type SearchOptions struct {
	MaxResults     int
	WeightLexical  float64
	WeightSemantic float64
	WeightGraph    float64
}

// SearchTrace records the breakdown of a hybrid search for diagnostics.
type SearchTrace struct {
	LexicalResults  int     `json:"lexical_results"`
	SemanticResults int     `json:"semantic_results"`
	GraphResults    int     `json:"graph_results"`
	FusedResults    int     `json:"fused_results"`
	LexicalWeight   float64 `json:"lexical_weight"`
	SemanticWeight  float64 `json:"semantic_weight"`
	GraphWeight     float64 `json:"graph_weight"`
	FTSQuery        string  `json:"fts_query"`
	ElapsedMs       int64   `json:"elapsed_ms"`
}

// Result is one fused search hit with note metadata for display.
type Result struct {
	NoteID  string   `json:"note_id"`
	Path    string   `json:"path"`
	Title   string   `json:"title"`
	Score   float64  `json:"score"`
	Sources []string `json:"sources"`
}

// Engine performs hybrid retrieval over the note store: FTS5 lexical search,
// embedding similarity, and decayed graph expansion seeded from the lexical
// hits, fused with weighted RRF.
type Engine struct {
	store    *store.Store
	embedder llm.Provider
	cfg      Config
}

// New creates a retrieval engine. embedder may be nil, which disables the
// semantic leg.
func New(s *store.Store, embedder llm.Provider, cfg Config) *Engine {
	if cfg.ExpandDepth <= 0 {
		cfg.ExpandDepth = 2
	}
	if cfg.ExpandBudget <= 0 {
		cfg.ExpandBudget = 50
	}
	if cfg.DecayFactor <= 0 || cfg.DecayFactor >= 1 {
		cfg.DecayFactor = 0.5
	}
	// A zero-value config means "use the standard weights", not "weigh
	// every leg at zero".
	if cfg.WeightLexical == 0 && cfg.WeightSemantic == 0 && cfg.WeightGraph == 0 {
		cfg.WeightLexical = 1.0
		cfg.WeightSemantic = 1.0
		cfg.WeightGraph = 0.5
	}
	return &Engine{store: s, embedder: embedder, cfg: cfg}
}

// Search runs the hybrid retrieval pipeline and returns fused results plus a
// trace with the per-leg breakdown. An empty result set is a normal outcome.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, *SearchTrace, error) {
	if opts.MaxResults == 0 {
		opts.MaxResults = 20
	}
	if opts.WeightLexical == 0 {
		opts.WeightLexical = e.cfg.WeightLexical
	}
	if opts.WeightSemantic == 0 {
		opts.WeightSemantic = e.cfg.WeightSemantic
	}
	if opts.WeightGraph == 0 {
		opts.WeightGraph = e.cfg.WeightGraph
	}

	ftsQuery := sanitizeFTSQuery(query)
	trace := &SearchTrace{
		LexicalWeight:  opts.WeightLexical,
		SemanticWeight: opts.WeightSemantic,
		GraphWeight:    opts.WeightGraph,
		FTSQuery:       ftsQuery,
	}

	searchStart := time.Now()
	slog.Debug("retrieval: starting hybrid search",
		"query_len", len(query), "max_results", opts.MaxResults)

	// Lexical and semantic legs run concurrently; the graph leg is seeded
	// from the lexical hits and runs afterwards.
	type legResult struct {
		hits []store.NoteHit
		err  error
	}
	lexCh := make(chan legResult, 1)
	semCh := make(chan legResult, 1)

	go func() {
		hits, err := e.store.SearchNotes(ctx, ftsQuery, opts.MaxResults)
		lexCh <- legResult{hits, err}
	}()
	go func() {
		hits, err := e.semanticSearch(ctx, query, opts.MaxResults)
		semCh <- legResult{hits, err}
	}()

	lex := <-lexCh
	sem := <-semCh

	if lex.err != nil {
		slog.Warn("retrieval: lexical search failed", "error", lex.err)
	}
	if sem.err != nil {
		slog.Warn("retrieval: semantic search failed", "error", sem.err)
	}

	expanded, graphErr := e.graphExpand(ctx, lex.hits)
	if graphErr != nil {
		slog.Warn("retrieval: graph expansion failed", "error", graphErr)
	}

	trace.LexicalResults = len(lex.hits)
	trace.SemanticResults = len(sem.hits)
	trace.GraphResults = len(expanded)

	lists := map[string][]RankedItem{
		SourceLexical:  hitsToRanked(lex.hits, SourceLexical),
		SourceSemantic: hitsToRanked(sem.hits, SourceSemantic),
		SourceGraph:    expandedToRanked(expanded),
	}
	fused, err := Fuse(lists, FuseOptions{
		Weights: map[string]float64{
			SourceLexical:  opts.WeightLexical,
			SourceSemantic: opts.WeightSemantic,
			SourceGraph:    opts.WeightGraph,
		},
	})
	if err != nil {
		return nil, trace, fmt.Errorf("fusing results: %w", err)
	}
	if len(fused) > opts.MaxResults {
		fused = fused[:opts.MaxResults]
	}

	trace.FusedResults = len(fused)
	trace.ElapsedMs = time.Since(searchStart).Milliseconds()

	slog.Debug("retrieval: searches complete",
		"lexical", trace.LexicalResults, "semantic", trace.SemanticResults,
		"graph", trace.GraphResults, "fused", trace.FusedResults,
		"elapsed", time.Since(searchStart).Round(time.Millisecond))

	if len(fused) == 0 {
		// If every leg failed, surface the first error instead of
		// masquerading as "no results".
		if lex.err != nil && (e.embedder == nil || sem.err != nil) {
			return nil, trace, fmt.Errorf("lexical search: %w", lex.err)
		}
		return nil, trace, nil
	}

	results, err := e.resolveMetadata(ctx, fused, lex.hits, sem.hits)
	if err != nil {
		return nil, trace, err
	}
	return results, trace, nil
}

// semanticSearch embeds the query and searches the vector index. Disabled
// when no embedder is configured.
func (e *Engine) semanticSearch(ctx context.Context, query string, k int) ([]store.NoteHit, error) {
	if e.embedder == nil {
		return nil, nil
	}
	embeddings, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return e.store.VectorSearch(ctx, embeddings[0], k)
}

// graphExpand seeds a bounded expansion with the top lexical hits, scores
// normalised so the best hit seeds at 1.0.
func (e *Engine) graphExpand(ctx context.Context, lexical []store.NoteHit) ([]graph.ExpandedNode, error) {
	if len(lexical) == 0 {
		return nil, nil
	}
	top := lexical
	if len(top) > graphSeedCount {
		top = top[:graphSeedCount]
	}

	maxScore := top[0].Score
	if maxScore <= 0 {
		maxScore = 1
	}
	seeds := make([]graph.Seed, len(top))
	for i, h := range top {
		score := h.Score / maxScore
		if score <= 0 {
			score = 1.0 / float64(i+1)
		}
		seeds[i] = graph.Seed{ID: h.NoteID, Score: score}
	}

	edges, err := e.store.AllLinks(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("loading links: %w", err)
	}

	return graph.Expand(edges, seeds, graph.ExpandOptions{
		MaxDepth:        e.cfg.ExpandDepth,
		Budget:          e.cfg.ExpandBudget,
		DecayFactor:     e.cfg.DecayFactor,
		IncludeIncoming: true,
		ScoreThreshold:  0.01,
	})
}

// resolveMetadata fills display fields for fused results, reusing metadata
// from the search legs and falling back to a store lookup for notes reached
// only through the graph.
func (e *Engine) resolveMetadata(ctx context.Context, fused []FusedItem, legs ...[]store.NoteHit) ([]Result, error) {
	known := make(map[string]store.NoteHit)
	for _, leg := range legs {
		for _, h := range leg {
			if _, ok := known[h.NoteID]; !ok {
				known[h.NoteID] = h
			}
		}
	}

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		r := Result{NoteID: f.ID, Score: f.Score, Sources: f.Sources}
		if h, ok := known[f.ID]; ok {
			r.Path = h.Path
			r.Title = h.Title
		} else {
			note, err := e.store.GetNote(ctx, f.ID)
			if err != nil {
				slog.Warn("retrieval: dropping unresolvable note", "note_id", f.ID, "error", err)
				continue
			}
			r.Path = note.Path
			r.Title = note.Title
		}
		results = append(results, r)
	}
	return results, nil
}

func hitsToRanked(hits []store.NoteHit, source string) []RankedItem {
	items := make([]RankedItem, len(hits))
	for i, h := range hits {
		items[i] = RankedItem{ID: h.NoteID, Score: h.Score, Source: source}
	}
	return items
}

func expandedToRanked(nodes []graph.ExpandedNode) []RankedItem {
	items := make([]RankedItem, len(nodes))
	for i, n := range nodes {
		items[i] = RankedItem{ID: n.ID, Score: n.Score, Source: SourceGraph}
	}
	return items
}
