package graph

import (
	"reflect"
	"testing"
)

// chainEdges builds a -> b -> c -> d with unit strength.
func chainEdges() []Edge {
	return []Edge{
		{Source: "a", Target: "b", Type: EdgeExplicitLink},
		{Source: "b", Target: "c", Type: EdgeExplicitLink},
		{Source: "c", Target: "d", Type: EdgeExplicitLink},
	}
}

func scoreOf(nodes []ExpandedNode, id string) (float64, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n.Score, true
		}
	}
	return 0, false
}

func TestExpandDecayChain(t *testing.T) {
	nodes, err := Expand(chainEdges(), []Seed{{ID: "a", Score: 1.0}}, ExpandOptions{
		MaxDepth:    3,
		Budget:      10,
		DecayFactor: 0.5,
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(nodes) != 4 {
		t.Fatalf("got %d nodes, want 4", len(nodes))
	}

	want := map[string]float64{"a": 1.0, "b": 0.5, "c": 0.25, "d": 0.125}
	for id, wantScore := range want {
		got, ok := scoreOf(nodes, id)
		if !ok {
			t.Fatalf("node %q missing from expansion", id)
		}
		if diff := got - wantScore; diff < -1e-9 || diff > 1e-9 {
			t.Errorf("score(%s) = %g, want %g", id, got, wantScore)
		}
	}

	// Output is sorted by score descending.
	for i := 1; i < len(nodes); i++ {
		if nodes[i].Score > nodes[i-1].Score {
			t.Errorf("nodes not sorted by score: %g before %g", nodes[i-1].Score, nodes[i].Score)
		}
	}
}

func TestExpandMaxDepth(t *testing.T) {
	nodes, err := Expand(chainEdges(), []Seed{{ID: "a", Score: 1.0}}, ExpandOptions{
		MaxDepth:    2,
		Budget:      10,
		DecayFactor: 0.5,
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if _, ok := scoreOf(nodes, "d"); ok {
		t.Error("d is 3 hops away and must not appear with maxDepth=2")
	}
	if len(nodes) != 3 {
		t.Errorf("got %d nodes, want 3", len(nodes))
	}
}

func TestExpandBudget(t *testing.T) {
	nodes, err := Expand(chainEdges(), []Seed{{ID: "a", Score: 1.0}}, ExpandOptions{
		MaxDepth:    5,
		Budget:      2,
		DecayFactor: 0.5,
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(nodes) > 2 {
		t.Errorf("budget violated: %d nodes accumulated", len(nodes))
	}
}

func TestExpandBestRouteWins(t *testing.T) {
	// The direct a->b edge is weak; the two-hop route via c scores higher
	// despite the extra decay, so b's record must be the two-hop route.
	edges := []Edge{
		{Source: "a", Target: "b", Type: EdgeMention, Strength: 0.2},
		{Source: "a", Target: "c", Type: EdgeExplicitLink, Strength: 1.0},
		{Source: "c", Target: "b", Type: EdgeExplicitLink, Strength: 1.0},
	}
	nodes, err := Expand(edges, []Seed{{ID: "a", Score: 1.0}}, ExpandOptions{
		MaxDepth:    3,
		Budget:      10,
		DecayFactor: 0.5,
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	for _, n := range nodes {
		if n.ID != "b" {
			continue
		}
		// Route via c: 1.0 × (1.0 × 0.5) × (1.0 × 0.5); direct route only
		// 0.2 × 0.5.
		if diff := n.Score - 0.25; diff < -1e-9 || diff > 1e-9 {
			t.Errorf("score(b) = %g, want 0.25 (route via c)", n.Score)
		}
		if n.Depth != 2 {
			t.Errorf("depth(b) = %d, want 2", n.Depth)
		}
		if !reflect.DeepEqual(n.Path, []string{"a", "c", "b"}) {
			t.Errorf("path(b) = %v, want [a c b]", n.Path)
		}
		if n.Via != EdgeExplicitLink {
			t.Errorf("via(b) = %q, want %q", n.Via, EdgeExplicitLink)
		}
		return
	}
	t.Fatal("node b missing from expansion")
}

func TestExpandSeedKeepsLargerScore(t *testing.T) {
	edges := []Edge{{Source: "a", Target: "b", Type: EdgeExplicitLink}}

	// Seed score larger than the discovered score: seed entry survives.
	nodes, err := Expand(edges, []Seed{{ID: "a", Score: 1.0}, {ID: "b", Score: 0.9}}, ExpandOptions{
		MaxDepth:    2,
		Budget:      10,
		DecayFactor: 0.5,
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got, _ := scoreOf(nodes, "b"); got != 0.9 {
		t.Errorf("score(b) = %g, want seed score 0.9", got)
	}

	// Discovered score larger than the seed score: route overwrites.
	nodes, err = Expand(edges, []Seed{{ID: "a", Score: 1.0}, {ID: "b", Score: 0.1}}, ExpandOptions{
		MaxDepth:    2,
		Budget:      10,
		DecayFactor: 0.5,
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got, _ := scoreOf(nodes, "b"); got != 0.5 {
		t.Errorf("score(b) = %g, want discovered score 0.5", got)
	}
}

func TestExpandScoreThreshold(t *testing.T) {
	nodes, err := Expand(chainEdges(), []Seed{{ID: "a", Score: 1.0}}, ExpandOptions{
		MaxDepth:       5,
		Budget:         10,
		DecayFactor:    0.5,
		ScoreThreshold: 0.3,
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	// b scores 0.5; c would score 0.25 < 0.3 and is pruned.
	if len(nodes) != 2 {
		t.Errorf("got %d nodes, want 2 (a and b)", len(nodes))
	}
}

func TestExpandIncludeIncoming(t *testing.T) {
	edges := []Edge{{Source: "b", Target: "a", Type: EdgeExplicitLink}}

	nodes, err := Expand(edges, []Seed{{ID: "a", Score: 1.0}}, ExpandOptions{
		MaxDepth:    2,
		Budget:      10,
		DecayFactor: 0.5,
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(nodes) != 1 {
		t.Errorf("outgoing-only expansion should not reach b, got %d nodes", len(nodes))
	}

	nodes, err = Expand(edges, []Seed{{ID: "a", Score: 1.0}}, ExpandOptions{
		MaxDepth:        2,
		Budget:          10,
		DecayFactor:     0.5,
		IncludeIncoming: true,
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if _, ok := scoreOf(nodes, "b"); !ok {
		t.Error("includeIncoming should reach b via the incoming edge")
	}
}

func TestExpandEmptySeeds(t *testing.T) {
	nodes, err := Expand(chainEdges(), nil, ExpandOptions{MaxDepth: 2, Budget: 10, DecayFactor: 0.5})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(nodes) != 0 {
		t.Errorf("empty seed list should yield empty result, got %d nodes", len(nodes))
	}
}

func TestExpandInvalidOptions(t *testing.T) {
	seeds := []Seed{{ID: "a", Score: 1.0}}
	tests := []struct {
		name string
		opts ExpandOptions
	}{
		{"zero depth", ExpandOptions{MaxDepth: 0, Budget: 10, DecayFactor: 0.5}},
		{"zero budget", ExpandOptions{MaxDepth: 2, Budget: 0, DecayFactor: 0.5}},
		{"decay zero", ExpandOptions{MaxDepth: 2, Budget: 10, DecayFactor: 0}},
		{"decay one", ExpandOptions{MaxDepth: 2, Budget: 10, DecayFactor: 1}},
		{"negative threshold", ExpandOptions{MaxDepth: 2, Budget: 10, DecayFactor: 0.5, ScoreThreshold: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Expand(chainEdges(), seeds, tt.opts); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestExpandDeterministic(t *testing.T) {
	edges := []Edge{
		{Source: "a", Target: "b", Type: EdgeExplicitLink},
		{Source: "a", Target: "c", Type: EdgeSequence},
		{Source: "b", Target: "d", Type: EdgeExplicitLink},
		{Source: "c", Target: "d", Type: EdgeExplicitLink},
	}
	opts := ExpandOptions{MaxDepth: 3, Budget: 10, DecayFactor: 0.5}
	first, err := Expand(edges, []Seed{{ID: "a", Score: 1.0}}, opts)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	second, err := Expand(edges, []Seed{{ID: "a", Score: 1.0}}, opts)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expansion not deterministic:\n%v\n%v", first, second)
	}
}

func TestConnected(t *testing.T) {
	edges := []Edge{
		{Source: "a", Target: "b", Type: EdgeExplicitLink},
		{Source: "c", Target: "b", Type: EdgeExplicitLink},
		{Source: "x", Target: "y", Type: EdgeExplicitLink},
	}

	// a and c connect through b against edge direction.
	ok, depth, err := Connected(edges, "a", "c", 5)
	if err != nil {
		t.Fatalf("Connected: %v", err)
	}
	if !ok || depth != 2 {
		t.Errorf("a-c: got connected=%v depth=%d, want true depth=2", ok, depth)
	}

	ok, _, err = Connected(edges, "a", "y", 5)
	if err != nil {
		t.Fatalf("Connected: %v", err)
	}
	if ok {
		t.Error("a and y are in different components")
	}

	ok, depth, err = Connected(edges, "a", "a", 5)
	if err != nil {
		t.Fatalf("Connected: %v", err)
	}
	if !ok || depth != 0 {
		t.Errorf("self-connectivity: got %v/%d, want true/0", ok, depth)
	}
}

func TestComponents(t *testing.T) {
	edges := []Edge{
		{Source: "a", Target: "b", Type: EdgeExplicitLink},
		{Source: "b", Target: "c", Type: EdgeSemantic},
		{Source: "x", Target: "y", Type: EdgeExplicitLink},
		{Source: "lone", Target: "lone2", Type: EdgeMention},
	}

	comps := Components(edges)
	if len(comps) != 3 {
		t.Fatalf("got %d components, want 3", len(comps))
	}
	// Largest first.
	if !reflect.DeepEqual(comps[0], []string{"a", "b", "c"}) {
		t.Errorf("comps[0] = %v, want [a b c]", comps[0])
	}
	// Equal-size components ordered by first member.
	if !reflect.DeepEqual(comps[1], []string{"lone", "lone2"}) {
		t.Errorf("comps[1] = %v, want [lone lone2]", comps[1])
	}
	if !reflect.DeepEqual(comps[2], []string{"x", "y"}) {
		t.Errorf("comps[2] = %v, want [x y]", comps[2])
	}

	if got := Components(nil); len(got) != 0 {
		t.Errorf("no edges should yield no components, got %v", got)
	}
}
