package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nkhoeller/notegraph"
	"github.com/nkhoeller/notegraph/graph"
	"github.com/nkhoeller/notegraph/store"
)

func newBacklinksCmd(flags *rootFlags) *cobra.Command {
	var typeNames []string
	cmd := &cobra.Command{
		Use:   "backlinks <note>",
		Short: "List notes linking to a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := parseEdgeTypes(typeNames)
			if err != nil {
				return err
			}
			eng, err := loadEngine(flags)
			if err != nil {
				return err
			}
			defer eng.Close()

			links, err := eng.Backlinks(cmd.Context(), args[0], types)
			if err != nil {
				return err
			}

			p := newPrinter(flags.json)
			if p.JSON(links) {
				return nil
			}
			if len(links) == 0 {
				p.println("no backlinks")
				return nil
			}
			printLinkedNotes(p, links)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&typeNames, "types", nil, "restrict to these edge types")
	return cmd
}

func newNeighborsCmd(flags *rootFlags) *cobra.Command {
	var typeNames []string
	cmd := &cobra.Command{
		Use:   "neighbors <note>",
		Short: "Show outgoing and incoming links of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := parseEdgeTypes(typeNames)
			if err != nil {
				return err
			}
			eng, err := loadEngine(flags)
			if err != nil {
				return err
			}
			defer eng.Close()

			outgoing, incoming, err := eng.Neighbors(cmd.Context(), args[0], types)
			if err != nil {
				return err
			}

			p := newPrinter(flags.json)
			if p.json {
				p.JSON(struct {
					Outgoing []store.LinkedNote `json:"outgoing"`
					Incoming []store.LinkedNote `json:"incoming"`
				}{outgoing, incoming})
				return nil
			}
			p.println(p.header("outgoing"))
			if len(outgoing) == 0 {
				p.println("  none")
			} else {
				printLinkedNotes(p, outgoing)
			}
			p.println(p.header("incoming"))
			if len(incoming) == 0 {
				p.println("  none")
			} else {
				printLinkedNotes(p, incoming)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&typeNames, "types", nil, "restrict to these edge types")
	return cmd
}

func printLinkedNotes(p *printer, links []store.LinkedNote) {
	for _, l := range links {
		p.printf("  %s %s %s %s\n",
			p.muted("["+l.LinkType+"]"), p.title(l.Title), p.muted("("+l.Path+")"),
			p.muted(fmt.Sprintf("strength=%.2f origin=%s", l.Strength, l.Origin)))
	}
}

func newPathCmd(flags *rootFlags) *cobra.Command {
	var typeNames []string
	var maxDepth int
	cmd := &cobra.Command{
		Use:   "path <from> <to>",
		Short: "Find the shortest path between two notes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := parseEdgeTypes(typeNames)
			if err != nil {
				return err
			}
			eng, err := loadEngine(flags)
			if err != nil {
				return err
			}
			defer eng.Close()

			result, err := eng.ShortestPath(cmd.Context(), args[0], args[1], notegraph.PathOptions{
				MaxDepth:  maxDepth,
				EdgeTypes: types,
			})
			if err != nil {
				return err
			}

			p := newPrinter(flags.json)
			if p.json {
				p.JSON(result)
				return nil
			}
			if result == nil {
				p.println("not connected")
				return nil
			}
			printPath(p, eng, cmd, *result)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&typeNames, "types", nil, "restrict to these edge types")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 15, "maximum path length in hops")
	return cmd
}

func newPathsCmd(flags *rootFlags) *cobra.Command {
	var typeNames []string
	opts := graph.DefaultKShortestOptions()
	cmd := &cobra.Command{
		Use:   "paths <from> <to>",
		Short: "Find up to K diverse short paths between two notes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := parseEdgeTypes(typeNames)
			if err != nil {
				return err
			}
			opts.EdgeTypes = types

			eng, err := loadEngine(flags)
			if err != nil {
				return err
			}
			defer eng.Close()

			result, err := eng.Paths(cmd.Context(), args[0], args[1], opts)
			if err != nil {
				return err
			}

			p := newPrinter(flags.json)
			if p.JSON(result) {
				return nil
			}
			if len(result.Paths) == 0 {
				p.printf("no paths (%s)\n", result.Outcome)
				return nil
			}
			for i, path := range result.Paths {
				p.printf("%d. ", i+1)
				printPath(p, eng, cmd, path)
			}
			p.println(p.muted("outcome: " + string(result.Outcome)))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&typeNames, "types", nil, "restrict to these edge types")
	cmd.Flags().IntVarP(&opts.K, "k", "k", opts.K, "number of paths")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", opts.MaxDepth, "maximum search depth per direction")
	cmd.Flags().Float64Var(&opts.OverlapThreshold, "overlap", opts.OverlapThreshold, "maximum Jaccard overlap between accepted paths")
	cmd.Flags().IntVar(&opts.MaxExtraHops, "max-extra-hops", opts.MaxExtraHops, "accept paths up to shortest+N hops")
	return cmd
}

// printPath renders one path, resolving note ids to titles where possible.
func printPath(p *printer, eng notegraph.Engine, cmd *cobra.Command, path graph.PathResult) {
	labels := make([]string, len(path.Path))
	for i, id := range path.Path {
		labels[i] = id
		if note, err := eng.Resolve(cmd.Context(), id); err == nil {
			labels[i] = note.Title
		}
	}
	edges := make([]string, len(path.Edges))
	for i, t := range path.Edges {
		edges[i] = string(t)
	}
	p.printf("%s %s\n", p.pathLine(labels, edges),
		p.muted(fmt.Sprintf("(%d hops, score %.2f)", path.HopCount, path.Score)))
}

func newExpandCmd(flags *rootFlags) *cobra.Command {
	var typeNames []string
	opts := graph.DefaultExpandOptions()
	var incoming bool
	cmd := &cobra.Command{
		Use:   "expand <note>...",
		Short: "Bounded decayed expansion from one or more notes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := parseEdgeTypes(typeNames)
			if err != nil {
				return err
			}
			opts.EdgeTypes = types
			opts.IncludeIncoming = incoming

			eng, err := loadEngine(flags)
			if err != nil {
				return err
			}
			defer eng.Close()

			nodes, err := eng.Expand(cmd.Context(), args, opts)
			if err != nil {
				return err
			}

			p := newPrinter(flags.json)
			if p.JSON(nodes) {
				return nil
			}
			for _, n := range nodes {
				label := n.ID
				if note, err := eng.Resolve(cmd.Context(), n.ID); err == nil {
					label = note.Title
				}
				via := ""
				if n.Via != "" {
					via = " via " + string(n.Via)
				}
				p.printf("%s %s %s\n", p.score(n.Score), p.title(label),
					p.muted(fmt.Sprintf("(depth %d%s)", n.Depth, via)))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&typeNames, "types", nil, "restrict to these edge types")
	cmd.Flags().IntVar(&opts.MaxDepth, "depth", opts.MaxDepth, "maximum expansion depth")
	cmd.Flags().IntVar(&opts.Budget, "budget", opts.Budget, "node budget, seeds included")
	cmd.Flags().Float64Var(&opts.DecayFactor, "decay", opts.DecayFactor, "per-hop score decay")
	cmd.Flags().Float64Var(&opts.ScoreThreshold, "threshold", opts.ScoreThreshold, "prune scores below this")
	cmd.Flags().BoolVar(&incoming, "incoming", false, "also traverse incoming edges")
	return cmd
}

func newConnectedCmd(flags *rootFlags) *cobra.Command {
	var maxDepth int
	cmd := &cobra.Command{
		Use:   "connected <from> <to>",
		Short: "Check whether two notes are connected",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine(flags)
			if err != nil {
				return err
			}
			defer eng.Close()

			connected, depth, err := eng.Connected(cmd.Context(), args[0], args[1], maxDepth)
			if err != nil {
				return err
			}

			p := newPrinter(flags.json)
			if p.json {
				p.JSON(struct {
					Connected bool `json:"connected"`
					Depth     int  `json:"depth"`
				}{connected, depth})
				return nil
			}
			if connected {
				p.printf("connected at depth %d\n", depth)
			} else {
				p.println("not connected")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", 15, "maximum search depth")
	return cmd
}

func newComponentsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "components",
		Short: "List connected components of the link graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := loadEngine(flags)
			if err != nil {
				return err
			}
			defer eng.Close()

			components, err := eng.Components(cmd.Context())
			if err != nil {
				return err
			}

			p := newPrinter(flags.json)
			if p.JSON(components) {
				return nil
			}
			if len(components) == 0 {
				p.println("no components")
				return nil
			}
			for i, component := range components {
				p.printf("%s (%d notes)\n", p.header(fmt.Sprintf("component %d", i+1)), len(component))
				for _, id := range component {
					label := id
					if note, err := eng.Resolve(cmd.Context(), id); err == nil {
						label = note.Title + " " + p.muted("("+note.Path+")")
					}
					p.printf("  %s\n", label)
				}
			}
			return nil
		},
	}
}
