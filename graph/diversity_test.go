package graph

import "testing"

func TestJaccardOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{
			// Both interiors empty: defined as maximally similar.
			name: "two-node paths share only endpoints",
			a:    []string{"a", "c"},
			b:    []string{"a", "c"},
			want: 1.0,
		},
		{
			// Short paths compare interiors only, so the shared endpoints
			// do not count against diversity.
			name: "direct edge vs detour",
			a:    []string{"a", "c"},
			b:    []string{"a", "b", "c"},
			want: 0.0,
		},
		{
			name: "identical interiors",
			a:    []string{"a", "b", "c"},
			b:    []string{"x", "b", "y"},
			want: 1.0,
		},
		{
			// Both paths long enough: full node sets, endpoints included.
			name: "long paths share endpoints",
			a:    []string{"a", "b", "c", "d", "e"},
			b:    []string{"a", "x", "y", "z", "e"},
			want: 2.0 / 8.0,
		},
		{
			// One short path triggers endpoint exclusion for both.
			name: "long vs short",
			a:    []string{"a", "b", "c", "d", "e"},
			b:    []string{"a", "e"},
			want: 0.0,
		},
		{
			name: "partial interior overlap",
			a:    []string{"s", "m", "n", "t"},
			b:    []string{"s", "m", "q", "t"},
			want: 1.0 / 3.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JaccardOverlap(tt.a, tt.b)
			if diff := got - tt.want; diff < -1e-9 || diff > 1e-9 {
				t.Errorf("JaccardOverlap(%v, %v) = %g, want %g", tt.a, tt.b, got, tt.want)
			}
			// Overlap is symmetric.
			if rev := JaccardOverlap(tt.b, tt.a); rev != got {
				t.Errorf("overlap not symmetric: %g vs %g", got, rev)
			}
		})
	}
}
