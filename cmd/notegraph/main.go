// Command notegraph indexes a markdown vault into a local knowledge graph
// and queries it: hybrid search, path finding, bounded expansion, and link
// discovery.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nkhoeller/notegraph"
	"github.com/nkhoeller/notegraph/graph"
	"github.com/nkhoeller/notegraph/retrieval"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootFlags holds the persistent flag values shared by every subcommand.
type rootFlags struct {
	vault        string
	db           string
	config       string
	verbose      bool
	json         bool
	skipSemantic bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "notegraph",
		Short:         "Knowledge graph tooling for a markdown note vault",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if flags.verbose {
				level = slog.LevelDebug
			}
			opts := &slog.HandlerOptions{Level: level}
			var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
			if flags.json {
				handler = slog.NewJSONHandler(os.Stderr, opts)
			}
			slog.SetDefault(slog.New(handler))
		},
	}
	root.PersistentFlags().StringVar(&flags.vault, "vault", "", "vault directory (overrides config)")
	root.PersistentFlags().StringVar(&flags.db, "db", "", "database path (overrides config)")
	root.PersistentFlags().StringVar(&flags.config, "config", "", "config file path (YAML)")
	root.PersistentFlags().BoolVar(&flags.verbose, "verbose", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&flags.json, "json", false, "emit JSON instead of text")
	root.PersistentFlags().BoolVar(&flags.skipSemantic, "skip-semantic", false, "disable the embedding provider")

	root.AddCommand(newIndexCmd(flags))
	root.AddCommand(newSearchCmd(flags))
	root.AddCommand(newNotesCmd(flags))
	root.AddCommand(newStatsCmd(flags))
	root.AddCommand(newBacklinksCmd(flags))
	root.AddCommand(newNeighborsCmd(flags))
	root.AddCommand(newPathCmd(flags))
	root.AddCommand(newPathsCmd(flags))
	root.AddCommand(newExpandCmd(flags))
	root.AddCommand(newConnectedCmd(flags))
	root.AddCommand(newComponentsCmd(flags))
	root.AddCommand(newSuggestCmd(flags))
	root.AddCommand(newImpactCmd(flags))
	root.AddCommand(newSimilarCmd(flags))
	return root
}

// loadEngine builds an engine from the config file plus environment and
// flag overrides, lowest precedence first. Callers must Close it.
func loadEngine(flags *rootFlags) (notegraph.Engine, error) {
	cfg, err := notegraph.LoadConfig(flags.config)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	if flags.vault != "" {
		cfg.VaultDir = flags.vault
	}
	if cfg.VaultDir == "" {
		cfg.VaultDir = "."
	}
	if flags.db != "" {
		cfg.DBPath = flags.db
	}
	if flags.skipSemantic {
		cfg.SkipEmbeddings = true
	}
	return notegraph.New(cfg)
}

func applyEnvOverrides(cfg *notegraph.Config) {
	if v := os.Getenv("NOTEGRAPH_VAULT_DIR"); v != "" {
		cfg.VaultDir = v
	}
	if v := os.Getenv("NOTEGRAPH_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("NOTEGRAPH_CHAT_BASE_URL"); v != "" {
		cfg.Chat.BaseURL = v
	}
	if v := os.Getenv("NOTEGRAPH_CHAT_MODEL"); v != "" {
		cfg.Chat.Model = v
	}
	if v := os.Getenv("NOTEGRAPH_CHAT_API_KEY"); v != "" {
		cfg.Chat.APIKey = v
	}
	if v := os.Getenv("NOTEGRAPH_EMBED_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("NOTEGRAPH_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("NOTEGRAPH_EMBED_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
}

// parseEdgeTypes validates a --types flag value against the known edge types.
func parseEdgeTypes(names []string) ([]graph.EdgeType, error) {
	if len(names) == 0 {
		return nil, nil
	}
	known := make(map[graph.EdgeType]bool, len(graph.AllEdgeTypes))
	for _, t := range graph.AllEdgeTypes {
		known[t] = true
	}
	types := make([]graph.EdgeType, 0, len(names))
	for _, name := range names {
		t := graph.EdgeType(name)
		if !known[t] {
			return nil, fmt.Errorf("unknown edge type %q (known: %v)", name, graph.AllEdgeTypes)
		}
		types = append(types, t)
	}
	return types, nil
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

func joinStrings(items []string) string {
	return strings.Join(items, ", ")
}

// shortID abbreviates a note uuid for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newIndexCmd(flags *rootFlags) *cobra.Command {
	var force, enrich bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Scan the vault and update the graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := loadEngine(flags)
			if err != nil {
				return err
			}
			defer eng.Close()

			var opts []notegraph.IndexOption
			if force {
				opts = append(opts, notegraph.WithForce())
			}
			if enrich {
				opts = append(opts, notegraph.WithEnrich())
			}
			result, err := eng.Index(cmd.Context(), opts...)
			if err != nil {
				return err
			}

			p := newPrinter(flags.json)
			if p.JSON(result) {
				return nil
			}
			p.printf("%s %d scanned, %d added, %d updated, %d unchanged, %d removed\n",
				p.title("indexed:"), result.Scanned, result.Added, result.Updated, result.Unchanged, result.Removed)
			p.printf("%d links, %d embedded, %d semantic edges, %s\n",
				result.Links, result.Embedded, result.SemanticEdges, p.muted(result.Elapsed.String()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-store every note regardless of content hash")
	cmd.Flags().BoolVar(&enrich, "enrich", false, "run LLM link discovery on changed notes")
	return cmd
}

func newSearchCmd(flags *rootFlags) *cobra.Command {
	var limit int
	var trace bool
	var wLexical, wSemantic, wGraph float64
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid search over the indexed notes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine(flags)
			if err != nil {
				return err
			}
			defer eng.Close()

			query := joinArgs(args)
			results, searchTrace, err := eng.Search(cmd.Context(), query, retrieval.SearchOptions{
				MaxResults:     limit,
				WeightLexical:  wLexical,
				WeightSemantic: wSemantic,
				WeightGraph:    wGraph,
			})
			if err != nil {
				return err
			}

			p := newPrinter(flags.json)
			if p.json {
				payload := struct {
					Results []retrieval.Result     `json:"results"`
					Trace   *retrieval.SearchTrace `json:"trace,omitempty"`
				}{Results: results}
				if trace {
					payload.Trace = searchTrace
				}
				p.JSON(payload)
				return nil
			}
			if len(results) == 0 {
				p.println("no results")
				return nil
			}
			for i, r := range results {
				p.printf("%2d. %s %s %s\n", i+1, p.score(r.Score), p.title(r.Title), p.muted("("+r.Path+")"))
				p.printf("    %s\n", p.muted("sources: "+joinStrings(r.Sources)))
			}
			if trace {
				p.printf("\n%s lexical=%d semantic=%d graph=%d fused=%d fts=%q %dms\n",
					p.muted("trace:"), searchTrace.LexicalResults, searchTrace.SemanticResults,
					searchTrace.GraphResults, searchTrace.FusedResults, searchTrace.FTSQuery, searchTrace.ElapsedMs)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results")
	cmd.Flags().BoolVar(&trace, "trace", false, "show the per-leg retrieval breakdown")
	cmd.Flags().Float64Var(&wLexical, "weight-lexical", 0, "lexical leg weight (0 uses config)")
	cmd.Flags().Float64Var(&wSemantic, "weight-semantic", 0, "semantic leg weight (0 uses config)")
	cmd.Flags().Float64Var(&wGraph, "weight-graph", 0, "graph leg weight (0 uses config)")
	return cmd
}

func newNotesCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "notes",
		Short: "List all indexed notes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := loadEngine(flags)
			if err != nil {
				return err
			}
			defer eng.Close()

			notes, err := eng.Notes(cmd.Context())
			if err != nil {
				return err
			}

			p := newPrinter(flags.json)
			if p.JSON(notes) {
				return nil
			}
			if len(notes) == 0 {
				p.println("no notes indexed")
				return nil
			}
			tbl := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("ID", "TITLE", "PATH")
			for _, n := range notes {
				tbl.Row(shortID(n.NoteID), n.Title, n.Path)
			}
			p.println(tbl)
			return nil
		},
	}
}

func newStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := loadEngine(flags)
			if err != nil {
				return err
			}
			defer eng.Close()

			stats, err := eng.Stats(cmd.Context())
			if err != nil {
				return err
			}

			p := newPrinter(flags.json)
			if p.JSON(stats) {
				return nil
			}
			p.printf("notes: %d\nlinks: %d\nembeddings: %d\n", stats.Notes, stats.Links, stats.Embeddings)
			return nil
		},
	}
}
