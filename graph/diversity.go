package graph

// shortPathNodes is the length at or below which endpoint exclusion kicks in
// automatically: short paths necessarily share their endpoints, so comparing
// interiors only avoids trivially penalising them.
const shortPathNodes = 4

// JaccardOverlap measures the similarity of two paths as the Jaccard
// coefficient of their node sets: |A ∩ B| / |A ∪ B|. When either path has at
// most shortPathNodes nodes, the first and last node of each path are
// excluded from its set (for paths with at least two nodes). Two empty
// interiors are defined as fully overlapping (1.0) rather than undefined.
func JaccardOverlap(a, b []string) float64 {
	exclude := len(a) <= shortPathNodes || len(b) <= shortPathNodes

	setA := pathNodeSet(a, exclude)
	setB := pathNodeSet(b, exclude)

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}

	intersection := 0
	for id := range setA {
		if setB[id] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// pathNodeSet collects a path's nodes into a set, optionally dropping the
// endpoints when the path has at least two nodes.
func pathNodeSet(path []string, excludeEndpoints bool) map[string]bool {
	if excludeEndpoints && len(path) >= 2 {
		path = path[1 : len(path)-1]
	}
	set := make(map[string]bool, len(path))
	for _, id := range path {
		set[id] = true
	}
	return set
}
