package graph

import (
	"strings"
	"testing"
)

// undirected adds an edge in both directions.
func undirected(edges []Edge, src, dst string, t EdgeType) []Edge {
	return append(edges,
		Edge{Source: src, Target: dst, Type: t},
		Edge{Source: dst, Target: src, Type: t},
	)
}

func TestShortestPathBasic(t *testing.T) {
	edges := []Edge{
		{Source: "a", Target: "b", Type: EdgeExplicitLink},
		{Source: "b", Target: "c", Type: EdgeSequence},
		{Source: "c", Target: "d", Type: EdgeExplicitLink},
	}
	idx := NewIndex(edges, nil)

	path, pathEdges, ok := idx.ShortestPath("a", "d", 10, nil, nil)
	if !ok {
		t.Fatal("expected a path from a to d")
	}
	if got, want := strings.Join(path, " "), "a b c d"; got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
	wantEdges := []EdgeType{EdgeExplicitLink, EdgeSequence, EdgeExplicitLink}
	if len(pathEdges) != len(wantEdges) {
		t.Fatalf("edges length = %d, want %d", len(pathEdges), len(wantEdges))
	}
	for i, e := range wantEdges {
		if pathEdges[i] != e {
			t.Errorf("edges[%d] = %q, want %q", i, pathEdges[i], e)
		}
	}
}

func TestShortestPathSameNode(t *testing.T) {
	idx := NewIndex(nil, nil)
	path, pathEdges, ok := idx.ShortestPath("a", "a", 5, nil, nil)
	if !ok {
		t.Fatal("start==end should always be found")
	}
	if len(path) != 1 || path[0] != "a" || len(pathEdges) != 0 {
		t.Errorf("start==end should yield a single-node path, got %v / %v", path, pathEdges)
	}
}

func TestShortestPathNotFound(t *testing.T) {
	edges := []Edge{
		{Source: "a", Target: "b", Type: EdgeExplicitLink},
		{Source: "c", Target: "d", Type: EdgeExplicitLink},
	}
	idx := NewIndex(edges, nil)
	if _, _, ok := idx.ShortestPath("a", "d", 10, nil, nil); ok {
		t.Error("disconnected nodes should have no path")
	}
}

func TestShortestPathSymmetry(t *testing.T) {
	// Undirected graph: hop counts must match in both directions.
	var edges []Edge
	edges = undirected(edges, "a", "b", EdgeExplicitLink)
	edges = undirected(edges, "b", "c", EdgeExplicitLink)
	edges = undirected(edges, "c", "d", EdgeExplicitLink)
	edges = undirected(edges, "a", "e", EdgeExplicitLink)
	edges = undirected(edges, "e", "d", EdgeExplicitLink)
	idx := NewIndex(edges, nil)

	fwd, _, okF := idx.ShortestPath("a", "d", 10, nil, nil)
	rev, _, okR := idx.ShortestPath("d", "a", 10, nil, nil)
	if !okF || !okR {
		t.Fatal("both directions should find a path")
	}
	if len(fwd) != len(rev) {
		t.Errorf("hop counts differ: %d vs %d", len(fwd)-1, len(rev)-1)
	}
	// a-e-d is the 2-hop shortest route.
	if len(fwd)-1 != 2 {
		t.Errorf("shortest a->d should be 2 hops, got %d", len(fwd)-1)
	}
}

func TestShortestPathDisabled(t *testing.T) {
	edges := []Edge{
		{Source: "a", Target: "b", Type: EdgeExplicitLink},
		{Source: "b", Target: "c", Type: EdgeExplicitLink},
		{Source: "a", Target: "x", Type: EdgeExplicitLink},
		{Source: "x", Target: "c", Type: EdgeExplicitLink},
	}
	idx := NewIndex(edges, nil)

	path, _, ok := idx.ShortestPath("a", "c", 10, nil, map[string]bool{"b": true})
	if !ok {
		t.Fatal("detour via x should exist")
	}
	if strings.Join(path, " ") != "a x c" {
		t.Errorf("disabled node b should force detour, got %v", path)
	}

	path, _, ok = idx.ShortestPath("a", "c", 10, map[string]bool{"a->x": true}, nil)
	if !ok {
		t.Fatal("route via b should exist")
	}
	if strings.Join(path, " ") != "a b c" {
		t.Errorf("disabled edge a->x should force route via b, got %v", path)
	}

	if _, _, ok := idx.ShortestPath("a", "c", 10, map[string]bool{"a->x": true}, map[string]bool{"b": true}); ok {
		t.Error("no path should remain when both routes are blocked")
	}
}

func TestShortestPathMaxDepth(t *testing.T) {
	edges := []Edge{
		{Source: "a", Target: "b", Type: EdgeExplicitLink},
		{Source: "b", Target: "c", Type: EdgeExplicitLink},
		{Source: "c", Target: "d", Type: EdgeExplicitLink},
		{Source: "d", Target: "e", Type: EdgeExplicitLink},
	}
	idx := NewIndex(edges, nil)

	// 4 hops fits within the combined ceiling of 2 x maxDepth for depth 2.
	if _, _, ok := idx.ShortestPath("a", "e", 2, nil, nil); !ok {
		t.Error("4-hop path should be found with maxDepth=2")
	}
	if _, _, ok := idx.ShortestPath("a", "e", 1, nil, nil); ok {
		t.Error("4-hop path should be out of reach with maxDepth=1")
	}
}

func TestKShortestPathsEndToEnd(t *testing.T) {
	edges := []Edge{
		{Source: "a", Target: "b", Type: EdgeExplicitLink},
		{Source: "b", Target: "c", Type: EdgeSequence},
		{Source: "a", Target: "c", Type: EdgeSemantic},
	}

	opts := DefaultKShortestOptions()
	opts.K = 2
	res, err := KShortestPaths(edges, "a", "c", opts)
	if err != nil {
		t.Fatalf("KShortestPaths: %v", err)
	}
	if res.Outcome != OutcomeFoundAll {
		t.Fatalf("outcome = %q, want %q", res.Outcome, OutcomeFoundAll)
	}
	if len(res.Paths) != 2 {
		t.Fatalf("got %d paths, want 2", len(res.Paths))
	}

	// Path 1: the direct semantic edge, 1 hop, score 1 + 0.3.
	first := res.Paths[0]
	if strings.Join(first.Path, " ") != "a c" || first.HopCount != 1 {
		t.Errorf("first path = %v (%d hops), want [a c] 1 hop", first.Path, first.HopCount)
	}
	if diff := first.Score - 1.3; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("first path score = %g, want 1.3", first.Score)
	}

	// Path 2: the detour via b, 2 hops, score 2 + 0 + 0.1.
	second := res.Paths[1]
	if strings.Join(second.Path, " ") != "a b c" || second.HopCount != 2 {
		t.Errorf("second path = %v (%d hops), want [a b c] 2 hops", second.Path, second.HopCount)
	}
	if diff := second.Score - 2.1; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("second path score = %g, want 2.1", second.Score)
	}
}

func TestKShortestPathsEdgeTypeFilter(t *testing.T) {
	edges := []Edge{
		{Source: "a", Target: "b", Type: EdgeExplicitLink},
		{Source: "b", Target: "c", Type: EdgeSequence},
		{Source: "a", Target: "c", Type: EdgeSemantic},
	}

	opts := DefaultKShortestOptions()
	opts.K = 2
	opts.EdgeTypes = []EdgeType{EdgeExplicitLink, EdgeSequence}
	res, err := KShortestPaths(edges, "a", "c", opts)
	if err != nil {
		t.Fatalf("KShortestPaths: %v", err)
	}
	if len(res.Paths) != 1 {
		t.Fatalf("got %d paths, want 1", len(res.Paths))
	}
	if strings.Join(res.Paths[0].Path, " ") != "a b c" {
		t.Errorf("path = %v, want [a b c]", res.Paths[0].Path)
	}
	if res.Outcome != OutcomeExhaustedCandidates {
		t.Errorf("outcome = %q, want %q", res.Outcome, OutcomeExhaustedCandidates)
	}
}

func TestKShortestPathsNoPath(t *testing.T) {
	res, err := KShortestPaths(nil, "a", "b", DefaultKShortestOptions())
	if err != nil {
		t.Fatalf("KShortestPaths: %v", err)
	}
	if res.Outcome != OutcomeNoPath || len(res.Paths) != 0 {
		t.Errorf("empty graph should yield no_path with zero paths, got %q / %d", res.Outcome, len(res.Paths))
	}
}

func TestKShortestPathsInvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*KShortestOptions)
	}{
		{"zero k", func(o *KShortestOptions) { o.K = 0 }},
		{"negative depth", func(o *KShortestOptions) { o.MaxDepth = -1 }},
		{"zero candidates", func(o *KShortestOptions) { o.MaxCandidates = 0 }},
		{"overlap above one", func(o *KShortestOptions) { o.OverlapThreshold = 1.5 }},
		{"negative extra hops", func(o *KShortestOptions) { o.MaxExtraHops = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultKShortestOptions()
			tt.mutate(&opts)
			if _, err := KShortestPaths(nil, "a", "b", opts); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

// denseTestGraph builds a grid-ish graph with multiple routes between s and t.
func denseTestGraph() []Edge {
	var edges []Edge
	pairs := [][2]string{
		{"s", "m1"}, {"s", "m2"}, {"s", "m3"},
		{"m1", "n1"}, {"m2", "n2"}, {"m3", "n3"},
		{"n1", "t"}, {"n2", "t"}, {"n3", "t"},
		{"m1", "n2"}, {"m2", "n3"},
		{"s", "t"},
	}
	for _, p := range pairs {
		edges = append(edges, Edge{Source: p[0], Target: p[1], Type: EdgeExplicitLink})
	}
	return edges
}

func TestKShortestPathsInvariants(t *testing.T) {
	opts := DefaultKShortestOptions()
	opts.K = 4
	res, err := KShortestPaths(denseTestGraph(), "s", "t", opts)
	if err != nil {
		t.Fatalf("KShortestPaths: %v", err)
	}
	if len(res.Paths) == 0 {
		t.Fatal("expected at least one path")
	}

	shortest := res.Paths[0].HopCount
	for i, p := range res.Paths {
		// Monotonic hop bound.
		if p.HopCount > shortest+opts.MaxExtraHops {
			t.Errorf("path %d exceeds hop cap: %d > %d", i, p.HopCount, shortest+opts.MaxExtraHops)
		}
		// All paths are simple.
		if !isSimplePath(p.Path) {
			t.Errorf("path %d is not simple: %v", i, p.Path)
		}
		if len(p.Edges) != len(p.Path)-1 {
			t.Errorf("path %d: %d edges for %d nodes", i, len(p.Edges), len(p.Path))
		}
		// Pairwise diversity against every other accepted path.
		for j := 0; j < i; j++ {
			if ov := JaccardOverlap(p.Path, res.Paths[j].Path); ov > opts.OverlapThreshold {
				t.Errorf("paths %d and %d overlap %.2f > %.2f", i, j, ov, opts.OverlapThreshold)
			}
		}
	}
}

func TestKShortestPathsDeterministic(t *testing.T) {
	opts := DefaultKShortestOptions()
	opts.K = 4
	first, err := KShortestPaths(denseTestGraph(), "s", "t", opts)
	if err != nil {
		t.Fatalf("KShortestPaths: %v", err)
	}
	second, err := KShortestPaths(denseTestGraph(), "s", "t", opts)
	if err != nil {
		t.Fatalf("KShortestPaths: %v", err)
	}
	if first.Outcome != second.Outcome || len(first.Paths) != len(second.Paths) {
		t.Fatalf("runs disagree: %q/%d vs %q/%d",
			first.Outcome, len(first.Paths), second.Outcome, len(second.Paths))
	}
	for i := range first.Paths {
		if pathSignature(first.Paths[i].Path) != pathSignature(second.Paths[i].Path) {
			t.Errorf("path %d differs between runs: %v vs %v", i, first.Paths[i].Path, second.Paths[i].Path)
		}
	}
}
