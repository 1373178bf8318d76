// Package notegraph turns a directory of markdown notes into a queryable
// knowledge graph: typed links between notes, hybrid lexical/semantic/graph
// search, path finding, bounded expansion, and link discovery.
package notegraph

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nkhoeller/notegraph/discover"
	"github.com/nkhoeller/notegraph/graph"
	"github.com/nkhoeller/notegraph/llm"
	"github.com/nkhoeller/notegraph/retrieval"
	"github.com/nkhoeller/notegraph/store"
	"github.com/nkhoeller/notegraph/vault"
)

// Engine is the main entry point for the note graph.
type Engine interface {
	// Index scans the vault, stores changed notes, rebuilds their links,
	// and refreshes embeddings.
	Index(ctx context.Context, opts ...IndexOption) (*IndexResult, error)

	// Search runs hybrid retrieval over the indexed notes.
	Search(ctx context.Context, query string, opts retrieval.SearchOptions) ([]retrieval.Result, *retrieval.SearchTrace, error)

	// Resolve turns a user-supplied reference (id, path, or title) into a note.
	Resolve(ctx context.Context, ref string) (*store.Note, error)

	// Notes lists all indexed notes.
	Notes(ctx context.Context) ([]store.Note, error)

	// Backlinks returns the notes linking to the referenced note.
	Backlinks(ctx context.Context, ref string, types []graph.EdgeType) ([]store.LinkedNote, error)

	// Neighbors returns the outgoing and incoming links of a note.
	Neighbors(ctx context.Context, ref string, types []graph.EdgeType) (outgoing, incoming []store.LinkedNote, err error)

	// ShortestPath finds one shortest path between two notes. A nil result
	// with nil error means the notes are not connected.
	ShortestPath(ctx context.Context, from, to string, opts PathOptions) (*graph.PathResult, error)

	// Paths finds up to K diverse short paths between two notes.
	Paths(ctx context.Context, from, to string, opts graph.KShortestOptions) (*graph.KShortestResult, error)

	// Expand runs a bounded decayed expansion from one or more notes.
	Expand(ctx context.Context, refs []string, opts graph.ExpandOptions) ([]graph.ExpandedNode, error)

	// Connected reports whether two notes are connected within maxDepth hops.
	Connected(ctx context.Context, from, to string, maxDepth int) (bool, int, error)

	// Components returns the connected components of the link graph,
	// largest first, as note ids.
	Components(ctx context.Context) ([][]string, error)

	// Suggest proposes new links for a note.
	Suggest(ctx context.Context, ref string, opts discover.SuggestOptions) ([]discover.Suggestion, error)

	// Impact finds the notes that depend on a note, directly or transitively.
	Impact(ctx context.Context, ref string, opts discover.ImpactOptions) ([]discover.ImpactedNote, error)

	// Similar returns the nearest notes by embedding similarity.
	Similar(ctx context.Context, ref string, k int) ([]store.NoteHit, error)

	// Stats reports index counts.
	Stats(ctx context.Context) (*store.Stats, error)

	// Store returns the underlying store for diagnostic access.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// IndexResult reports what an index run did.
type IndexResult struct {
	Scanned       int           `json:"scanned"`
	Added         int           `json:"added"`
	Updated       int           `json:"updated"`
	Unchanged     int           `json:"unchanged"`
	Removed       int           `json:"removed"`
	Links         int           `json:"links"`
	Embedded      int           `json:"embedded"`
	SemanticEdges int           `json:"semantic_edges"`
	Elapsed       time.Duration `json:"-"`
}

// IndexOption configures indexing behavior.
type IndexOption func(*indexOptions)

type indexOptions struct {
	force  bool
	enrich bool
}

// WithForce re-stores every note even when its content hash is unchanged.
func WithForce() IndexOption {
	return func(o *indexOptions) { o.force = true }
}

// WithEnrich runs LLM link discovery for changed notes after indexing,
// persisting accepted suggestions.
func WithEnrich() IndexOption {
	return func(o *indexOptions) { o.enrich = true }
}

// PathOptions configures a single shortest path search.
type PathOptions struct {
	MaxDepth  int
	EdgeTypes []graph.EdgeType
	Penalties graph.PenaltyTable
}

// embedBatchSize limits how many notes go into one embedding request.
const embedBatchSize = 16

// embedContentLimit caps how much note body is embedded.
const embedContentLimit = 8000

// semanticNeighborK is how many nearest neighbours are considered when
// deriving semantic edges for a freshly embedded note.
const semanticNeighborK = 5

// semanticSimilarityFloor is the minimum similarity for a neighbour pair to
// become a semantic edge.
const semanticSimilarityFloor = 0.75

// engine is the concrete implementation of Engine.
type engine struct {
	cfg      Config
	store    *store.Store
	chatLLM  llm.Provider
	embedLLM llm.Provider
	retrieve *retrieval.Engine
	discover *discover.Engine
}

// New creates a notegraph engine with the given configuration.
func New(cfg Config) (Engine, error) {
	dbPath := cfg.resolveDBPath()

	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = 768
	}

	s, err := store.New(dbPath, cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	var chatLLM llm.Provider
	if cfg.Chat.Provider != "" {
		chatLLM, err = llm.NewProvider(llm.Config{
			Provider: cfg.Chat.Provider,
			Model:    cfg.Chat.Model,
			BaseURL:  cfg.Chat.BaseURL,
			APIKey:   cfg.Chat.APIKey,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("creating chat provider: %w", err)
		}
	}

	var embedLLM llm.Provider
	if !cfg.SkipEmbeddings && cfg.Embedding.Provider != "" {
		embedLLM, err = llm.NewProvider(llm.Config{
			Provider: cfg.Embedding.Provider,
			Model:    cfg.Embedding.Model,
			BaseURL:  cfg.Embedding.BaseURL,
			APIKey:   cfg.Embedding.APIKey,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("creating embedding provider: %w", err)
		}
	}

	retriever := retrieval.New(s, embedLLM, retrieval.Config{
		WeightLexical:  cfg.WeightLexical,
		WeightSemantic: cfg.WeightSemantic,
		WeightGraph:    cfg.WeightGraph,
		ExpandDepth:    cfg.ExpandDepth,
		ExpandBudget:   cfg.ExpandBudget,
		DecayFactor:    cfg.DecayFactor,
	})

	return &engine{
		cfg:      cfg,
		store:    s,
		chatLLM:  chatLLM,
		embedLLM: embedLLM,
		retrieve: retriever,
		discover: discover.New(s, chatLLM),
	}, nil
}

func (e *engine) Close() error {
	return e.store.Close()
}

func (e *engine) Store() *store.Store {
	return e.store
}

// Index runs the full vault pipeline: scan, diff by content hash, upsert,
// prune deleted files, rebuild vault-origin links, refresh embeddings.
func (e *engine) Index(ctx context.Context, opts ...IndexOption) (*IndexResult, error) {
	options := &indexOptions{}
	for _, o := range opts {
		o(options)
	}

	if info, err := os.Stat(e.cfg.VaultDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrVaultNotFound, e.cfg.VaultDir)
	}

	start := time.Now()
	scanned, err := vault.NewScanner(e.cfg.VaultDir).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanning vault: %w", err)
	}

	existing, err := e.store.NotePaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading indexed paths: %w", err)
	}

	result := &IndexResult{Scanned: len(scanned)}
	idByPath := make(map[string]string, len(scanned))
	rowByPath := make(map[string]int64, len(scanned))
	changed := make(map[string]bool)

	for _, n := range scanned {
		prevHash, known := existing[n.Path]
		if known && prevHash == n.Hash && !options.force {
			stored, err := e.store.GetNoteByPath(ctx, n.Path)
			if err != nil {
				return nil, fmt.Errorf("loading unchanged note %q: %w", n.Path, err)
			}
			idByPath[n.Path] = stored.NoteID
			rowByPath[n.Path] = stored.ID
			result.Unchanged++
			continue
		}

		stored, err := e.store.UpsertNote(ctx, store.Note{
			Path:        n.Path,
			Title:       n.Title,
			Content:     n.Content,
			ContentHash: n.Hash,
			Frontmatter: n.FrontmatterJSON(),
		})
		if err != nil {
			return nil, fmt.Errorf("storing note %q: %w", n.Path, err)
		}
		idByPath[n.Path] = stored.NoteID
		rowByPath[n.Path] = stored.ID
		changed[n.Path] = true
		if known {
			result.Updated++
		} else {
			result.Added++
		}
	}

	// Prune notes whose files disappeared.
	for path := range existing {
		if _, ok := idByPath[path]; ok {
			continue
		}
		stored, err := e.store.GetNoteByPath(ctx, path)
		if err != nil {
			continue
		}
		if err := e.store.DeleteNote(ctx, stored.NoteID); err != nil {
			return nil, fmt.Errorf("removing note %q: %w", path, err)
		}
		result.Removed++
	}

	// Rebuild vault-origin links for every scanned note. Links from other
	// origins (llm, suggestion) survive rescans.
	edgesBySource := make(map[string][]store.Link)
	for _, edge := range vault.BuildEdges(scanned) {
		targetID, ok := idByPath[edge.TargetPath]
		if !ok {
			continue
		}
		edgesBySource[edge.SourcePath] = append(edgesBySource[edge.SourcePath], store.Link{
			TargetID: targetID,
			LinkType: string(edge.Type),
			Strength: edge.Strength,
		})
		result.Links++
	}
	for _, n := range scanned {
		if err := e.store.ReplaceLinks(ctx, idByPath[n.Path], store.OriginVault, edgesBySource[n.Path]); err != nil {
			return nil, fmt.Errorf("storing links for %q: %w", n.Path, err)
		}
	}

	if e.embedLLM != nil {
		embedded, err := e.refreshEmbeddings(ctx, scanned, idByPath, rowByPath, changed)
		if err != nil {
			return nil, err
		}
		result.Embedded = len(embedded)

		semantic, err := buildSemanticEdges(ctx, e.store, embedded)
		if err != nil {
			return nil, err
		}
		result.SemanticEdges = semantic
	}

	if options.enrich && e.chatLLM != nil {
		e.enrichChanged(ctx, idByPath, changed)
	}

	result.Elapsed = time.Since(start)
	slog.Info("index complete",
		"scanned", result.Scanned, "added", result.Added, "updated", result.Updated,
		"unchanged", result.Unchanged, "removed", result.Removed,
		"links", result.Links, "embedded", result.Embedded,
		"semantic_edges", result.SemanticEdges,
		"elapsed", result.Elapsed.Round(time.Millisecond))
	return result, nil
}

// refreshEmbeddings embeds changed notes plus any note missing a vector,
// in batches. It returns the note ids that received a fresh vector.
func (e *engine) refreshEmbeddings(ctx context.Context, scanned []vault.Note, idByPath map[string]string, rowByPath map[string]int64, changed map[string]bool) ([]string, error) {
	type pending struct {
		rowid  int64
		noteID string
		text   string
	}
	var todo []pending
	for _, n := range scanned {
		rowid := rowByPath[n.Path]
		if !changed[n.Path] {
			has, err := e.store.HasEmbedding(ctx, rowid)
			if err != nil {
				return nil, err
			}
			if has {
				continue
			}
		}
		todo = append(todo, pending{rowid: rowid, noteID: idByPath[n.Path], text: embedText(n)})
	}

	var embedded []string
	for len(todo) > 0 {
		batch := todo
		if len(batch) > embedBatchSize {
			batch = batch[:embedBatchSize]
		}
		todo = todo[len(batch):]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.text
		}
		vectors, err := e.embedLLM.Embed(ctx, texts)
		if err != nil {
			return embedded, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}
		if len(vectors) != len(batch) {
			return embedded, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(batch))
		}
		for i, p := range batch {
			if len(vectors[i]) == 0 {
				continue
			}
			if err := e.store.InsertEmbedding(ctx, p.rowid, vectors[i]); err != nil {
				return embedded, fmt.Errorf("storing embedding: %w", err)
			}
			embedded = append(embedded, p.noteID)
		}
	}
	return embedded, nil
}

// buildSemanticEdges derives semantic links for freshly embedded notes from
// their nearest neighbours in the vector index. Each note's previous
// llm-origin links are replaced; vault and suggestion links are untouched.
func buildSemanticEdges(ctx context.Context, s *store.Store, noteIDs []string) (int, error) {
	total := 0
	for _, id := range noteIDs {
		hits, err := s.SimilarNotes(ctx, id, semanticNeighborK)
		if err != nil {
			return total, fmt.Errorf("finding neighbours for %s: %w", id, err)
		}
		var links []store.Link
		for _, h := range hits {
			if h.Score < semanticSimilarityFloor {
				continue
			}
			links = append(links, store.Link{
				TargetID: h.NoteID,
				LinkType: string(graph.EdgeSemantic),
				Strength: h.Score,
			})
		}
		if err := s.ReplaceLinks(ctx, id, store.OriginLLM, links); err != nil {
			return total, fmt.Errorf("storing semantic links for %s: %w", id, err)
		}
		total += len(links)
	}
	return total, nil
}

// enrichChanged asks the LLM for link suggestions on each changed note.
// Failures are logged, not fatal: enrichment is best-effort.
func (e *engine) enrichChanged(ctx context.Context, idByPath map[string]string, changed map[string]bool) {
	for path := range changed {
		_, err := e.discover.Suggest(ctx, idByPath[path], discover.SuggestOptions{
			Limit:    5,
			Classify: true,
			Persist:  true,
		})
		if err != nil {
			slog.Warn("enrichment failed", "path", path, "error", err)
		}
	}
}

func embedText(n vault.Note) string {
	content := n.Content
	if len(content) > embedContentLimit {
		content = content[:embedContentLimit]
	}
	return n.Title + "\n\n" + strings.TrimSpace(content)
}

func (e *engine) Search(ctx context.Context, query string, opts retrieval.SearchOptions) ([]retrieval.Result, *retrieval.SearchTrace, error) {
	return e.retrieve.Search(ctx, query, opts)
}

func (e *engine) Resolve(ctx context.Context, ref string) (*store.Note, error) {
	return e.store.ResolveNote(ctx, ref)
}

func (e *engine) Notes(ctx context.Context) ([]store.Note, error) {
	return e.store.ListNotes(ctx)
}

func (e *engine) Stats(ctx context.Context) (*store.Stats, error) {
	return e.store.Stats(ctx)
}

func (e *engine) Backlinks(ctx context.Context, ref string, types []graph.EdgeType) ([]store.LinkedNote, error) {
	note, err := e.store.ResolveNote(ctx, ref)
	if err != nil {
		return nil, err
	}
	return e.store.Backlinks(ctx, note.NoteID, types)
}

func (e *engine) Neighbors(ctx context.Context, ref string, types []graph.EdgeType) ([]store.LinkedNote, []store.LinkedNote, error) {
	note, err := e.store.ResolveNote(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	outgoing, err := e.store.OutgoingLinks(ctx, note.NoteID, types)
	if err != nil {
		return nil, nil, err
	}
	incoming, err := e.store.Backlinks(ctx, note.NoteID, types)
	if err != nil {
		return nil, nil, err
	}
	return outgoing, incoming, nil
}

func (e *engine) ShortestPath(ctx context.Context, from, to string, opts PathOptions) (*graph.PathResult, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 15
	}
	if opts.Penalties == nil {
		opts.Penalties = graph.DefaultPenalties()
	}

	src, dst, edges, err := e.endpoints(ctx, from, to, opts.EdgeTypes)
	if err != nil {
		return nil, err
	}

	idx := graph.NewIndex(edges, opts.EdgeTypes)
	path, pathEdges, ok := idx.ShortestPath(src.NoteID, dst.NoteID, opts.MaxDepth, nil, nil)
	if !ok {
		return nil, nil
	}
	return &graph.PathResult{
		Path:     path,
		Edges:    pathEdges,
		HopCount: len(path) - 1,
		Score:    opts.Penalties.PathScore(pathEdges),
	}, nil
}

func (e *engine) Paths(ctx context.Context, from, to string, opts graph.KShortestOptions) (*graph.KShortestResult, error) {
	src, dst, edges, err := e.endpoints(ctx, from, to, opts.EdgeTypes)
	if err != nil {
		return nil, err
	}
	return graph.KShortestPaths(edges, src.NoteID, dst.NoteID, opts)
}

func (e *engine) Expand(ctx context.Context, refs []string, opts graph.ExpandOptions) ([]graph.ExpandedNode, error) {
	seeds := make([]graph.Seed, 0, len(refs))
	for _, ref := range refs {
		note, err := e.store.ResolveNote(ctx, ref)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, graph.Seed{ID: note.NoteID, Score: 1.0})
	}

	edges, err := e.store.AllLinks(ctx, opts.EdgeTypes)
	if err != nil {
		return nil, fmt.Errorf("loading links: %w", err)
	}
	return graph.Expand(edges, seeds, opts)
}

func (e *engine) Connected(ctx context.Context, from, to string, maxDepth int) (bool, int, error) {
	src, dst, edges, err := e.endpoints(ctx, from, to, nil)
	if err != nil {
		return false, 0, err
	}
	return graph.Connected(edges, src.NoteID, dst.NoteID, maxDepth)
}

func (e *engine) Components(ctx context.Context) ([][]string, error) {
	edges, err := e.store.AllLinks(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("loading links: %w", err)
	}
	return graph.Components(edges), nil
}

func (e *engine) Suggest(ctx context.Context, ref string, opts discover.SuggestOptions) ([]discover.Suggestion, error) {
	note, err := e.store.ResolveNote(ctx, ref)
	if err != nil {
		return nil, err
	}
	return e.discover.Suggest(ctx, note.NoteID, opts)
}

func (e *engine) Impact(ctx context.Context, ref string, opts discover.ImpactOptions) ([]discover.ImpactedNote, error) {
	note, err := e.store.ResolveNote(ctx, ref)
	if err != nil {
		return nil, err
	}
	return e.discover.Impact(ctx, note.NoteID, opts)
}

func (e *engine) Similar(ctx context.Context, ref string, k int) ([]store.NoteHit, error) {
	note, err := e.store.ResolveNote(ctx, ref)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}
	return e.store.SimilarNotes(ctx, note.NoteID, k)
}

// endpoints resolves both path endpoints and loads the link graph.
func (e *engine) endpoints(ctx context.Context, from, to string, types []graph.EdgeType) (*store.Note, *store.Note, []graph.Edge, error) {
	src, err := e.store.ResolveNote(ctx, from)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolving %q: %w", from, err)
	}
	dst, err := e.store.ResolveNote(ctx, to)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolving %q: %w", to, err)
	}
	edges, err := e.store.AllLinks(ctx, types)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading links: %w", err)
	}
	return src, dst, edges, nil
}
