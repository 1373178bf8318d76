package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nkhoeller/notegraph/discover"
)

func newSuggestCmd(flags *rootFlags) *cobra.Command {
	var limit, maxDepth int
	var classify, persist bool
	cmd := &cobra.Command{
		Use:   "suggest <note>",
		Short: "Propose new links for a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if persist && !classify {
				return fmt.Errorf("--persist requires --classify")
			}
			eng, err := loadEngine(flags)
			if err != nil {
				return err
			}
			defer eng.Close()

			suggestions, err := eng.Suggest(cmd.Context(), args[0], discover.SuggestOptions{
				Limit:    limit,
				MaxDepth: maxDepth,
				Classify: classify,
				Persist:  persist,
			})
			if err != nil {
				return err
			}

			p := newPrinter(flags.json)
			if p.JSON(suggestions) {
				return nil
			}
			if len(suggestions) == 0 {
				p.println("no suggestions")
				return nil
			}
			for _, s := range suggestions {
				p.printf("%s %s %s\n", p.score(s.Score), p.title(s.Title), p.muted("("+s.Path+")"))
				if s.Relation != "" {
					p.printf("  %s\n", p.muted(fmt.Sprintf("%s (%.2f) %s", s.Relation, s.Confidence, s.Reason)))
				} else {
					p.printf("  %s\n", p.muted("sources: "+joinStrings(s.Sources)))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum suggestions")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 2, "expansion depth for graph candidates")
	cmd.Flags().BoolVar(&classify, "classify", false, "ask the LLM to name each relation")
	cmd.Flags().BoolVar(&persist, "persist", false, "store classified suggestions as links")
	return cmd
}

func newImpactCmd(flags *rootFlags) *cobra.Command {
	var typeNames []string
	var maxDepth int
	var transitive bool
	cmd := &cobra.Command{
		Use:   "impact <note>",
		Short: "List notes that depend on a note",
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

			impacted, err := eng.Impact(cmd.Context(), args[0], discover.ImpactOptions{
				MaxDepth:       maxDepth,
				EdgeTypes:      types,
				TransitiveOnly: transitive,
			})
			if err != nil {
				return err
			}

			p := newPrinter(flags.json)
			if p.JSON(impacted) {
				return nil
			}
			if len(impacted) == 0 {
				p.println("nothing depends on this note")
				return nil
			}
			for _, n := range impacted {
				p.printf("%s %s %s\n", p.score(n.Score), p.title(n.Title),
					p.muted(fmt.Sprintf("(%s, depth %d)", n.Path, n.Depth)))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&typeNames, "types", nil, "restrict to these edge types")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 3, "maximum dependency depth")
	cmd.Flags().BoolVar(&transitive, "transitive-only", false, "hide direct dependents")
	return cmd
}

func newSimilarCmd(flags *rootFlags) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "similar <note>",
		Short: "Nearest notes by embedding similarity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine(flags)
			if err != nil {
				return err
			}
			defer eng.Close()

			hits, err := eng.Similar(cmd.Context(), args[0], k)
			if err != nil {
				return err
			}

			p := newPrinter(flags.json)
			if p.JSON(hits) {
				return nil
			}
			if len(hits) == 0 {
				p.println("no similar notes (is the note embedded?)")
				return nil
			}
			for _, h := range hits {
				p.printf("%s %s %s\n", p.score(h.Score), p.title(h.Title), p.muted("("+h.Path+")"))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&k, "k", 10, "number of neighbours")
	return cmd
}
