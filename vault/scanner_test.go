package vault

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/nkhoeller/notegraph/graph"
)

func writeVault(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("creating dir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", rel, err)
		}
	}
	return root
}

func scanVault(t *testing.T, files map[string]string) []Note {
	t.Helper()
	root := writeVault(t, files)
	notes, err := NewScanner(root).Scan(context.Background())
	if err != nil {
		t.Fatalf("scanning vault: %v", err)
	}
	return notes
}

func noteByPath(t *testing.T, notes []Note, path string) Note {
	t.Helper()
	for _, n := range notes {
		if n.Path == path {
			return n
		}
	}
	t.Fatalf("note %q not found in scan results", path)
	return Note{}
}

func TestScanParsesFrontmatterAndLinks(t *testing.T) {
	notes := scanVault(t, map[string]string{
		"a.md": `---
title: Alpha Note
next: b
causes:
  - c
tags: [zettel]
---

Linking to [[b]] and [[c.md|see this]] and [[b#Details]].
`,
		"b.md": "# Beta Section\n\nSome body text.\n",
		"c.md": "plain body, no heading\n",
	})

	if len(notes) != 3 {
		t.Fatalf("expected 3 notes, got %d", len(notes))
	}
	// Sorted by path.
	if notes[0].Path != "a.md" || notes[1].Path != "b.md" || notes[2].Path != "c.md" {
		t.Fatalf("unexpected scan order: %s %s %s", notes[0].Path, notes[1].Path, notes[2].Path)
	}

	a := notes[0]
	if a.Title != "Alpha Note" {
		t.Errorf("title from frontmatter: got %q", a.Title)
	}
	if len(a.Next) != 1 || a.Next[0] != "b" {
		t.Errorf("next = %v, want [b]", a.Next)
	}
	if len(a.Causes) != 1 || a.Causes[0] != "c" {
		t.Errorf("causes = %v, want [c]", a.Causes)
	}
	if a.Hash == "" {
		t.Error("expected non-empty content hash")
	}
	if a.FrontmatterJSON() == "" {
		t.Error("expected frontmatter JSON")
	}

	wantLinks := []WikiLink{
		{Target: "b"},
		{Target: "c.md", Label: "see this"},
		{Target: "b", Heading: "Details"},
	}
	if len(a.WikiLinks) != len(wantLinks) {
		t.Fatalf("wikilinks = %+v, want %d entries", a.WikiLinks, len(wantLinks))
	}
	for i, want := range wantLinks {
		if a.WikiLinks[i] != want {
			t.Errorf("wikilink %d = %+v, want %+v", i, a.WikiLinks[i], want)
		}
	}

	b := notes[1]
	if b.Title != "Beta Section" {
		t.Errorf("title from heading: got %q", b.Title)
	}

	c := notes[2]
	if c.Title != "c" {
		t.Errorf("title from filename: got %q", c.Title)
	}
	if c.Frontmatter != nil {
		t.Errorf("expected no frontmatter, got %v", c.Frontmatter)
	}
}

func TestScanSkipsHiddenDirs(t *testing.T) {
	notes := scanVault(t, map[string]string{
		"note.md":           "# Visible\n",
		".obsidian/conf.md": "# Hidden\n",
		".trash/old.md":     "# Hidden too\n",
	})
	if len(notes) != 1 || notes[0].Path != "note.md" {
		t.Fatalf("expected only note.md, got %+v", notes)
	}
}

func TestScanMalformedFrontmatter(t *testing.T) {
	notes := scanVault(t, map[string]string{
		"bad.md": "---\n: not yaml [\n---\n\n# Still Parses\n",
	})
	if len(notes) != 1 {
		t.Fatalf("expected note despite bad frontmatter, got %d", len(notes))
	}
	if notes[0].Title != "Still Parses" {
		t.Errorf("title = %q, want heading fallback", notes[0].Title)
	}
}

func TestScanMissingVault(t *testing.T) {
	_, err := NewScanner(filepath.Join(t.TempDir(), "nope")).Scan(context.Background())
	if err == nil {
		t.Fatal("expected error for missing vault directory")
	}
}

func TestBuildEdges(t *testing.T) {
	notes := scanVault(t, map[string]string{
		"a.md": `---
title: Alpha Note
next: b
causes: [c]
parent: nonexistent
---

See [[b]] and [[c.md]].
`,
		"b.md": "# Beta Section\n\nThis mentions Alpha Note in passing.\n",
		"c.md": "---\ntitle: Gamma Topic\n---\n\nUnrelated body.\n",
	})

	edges := BuildEdges(notes)

	type key struct {
		src, dst string
		t        graph.EdgeType
	}
	got := make(map[key]float64, len(edges))
	for _, e := range edges {
		got[key{e.SourcePath, e.TargetPath, e.Type}] = e.Strength
	}

	want := []key{
		{"a.md", "b.md", graph.EdgeExplicitLink},
		{"a.md", "c.md", graph.EdgeExplicitLink},
		{"a.md", "b.md", graph.EdgeSequence},
		{"a.md", "c.md", graph.EdgeCauses},
		{"b.md", "a.md", graph.EdgeMention},
	}
	if len(edges) != len(want) {
		t.Fatalf("edges = %+v, want %d entries", edges, len(want))
	}
	for _, k := range want {
		if _, ok := got[k]; !ok {
			t.Errorf("missing edge %s -> %s (%s)", k.src, k.dst, k.t)
		}
	}

	// The unresolvable parent reference is dropped, not an edge to nowhere.
	for _, e := range edges {
		if e.Type == graph.EdgeHierarchy {
			t.Errorf("unexpected hierarchy edge: %+v", e)
		}
	}

	if got[key{"b.md", "a.md", graph.EdgeMention}] != mentionStrength {
		t.Errorf("mention strength = %v, want %v",
			got[key{"b.md", "a.md", graph.EdgeMention}], mentionStrength)
	}
}

func TestBuildEdgesMentionSkipsLinkedPairs(t *testing.T) {
	notes := scanVault(t, map[string]string{
		"a.md": "---\ntitle: Alpha Note\n---\n\nTalks about Beta Topic and links [[b]].\n",
		"b.md": "---\ntitle: Beta Topic\n---\n\nBody.\n",
	})

	edges := BuildEdges(notes)
	for _, e := range edges {
		if e.Type == graph.EdgeMention && e.SourcePath == "a.md" {
			t.Errorf("mention edge duplicates explicit link: %+v", e)
		}
	}
}

func TestBuildEdgesMentionPrefersLongestTitle(t *testing.T) {
	notes := scanVault(t, map[string]string{
		"graph.md":        "---\ntitle: Graph\n---\n\nBody.\n",
		"graph-theory.md": "---\ntitle: Graph Theory\n---\n\nBody.\n",
		"essay.md":        "---\ntitle: Essay\n---\n\nI enjoy Graph Theory.\n",
	})

	var mentions []Edge
	for _, e := range BuildEdges(notes) {
		if e.Type == graph.EdgeMention && e.SourcePath == "essay.md" {
			mentions = append(mentions, e)
		}
	}
	if len(mentions) != 1 || mentions[0].TargetPath != "graph-theory.md" {
		t.Fatalf("mentions = %+v, want one edge to graph-theory.md", mentions)
	}
}

func TestBuildEdgesMentionShorterTitleOutsideClaimedSpan(t *testing.T) {
	notes := scanVault(t, map[string]string{
		"graph.md":        "---\ntitle: Graph\n---\n\nBody.\n",
		"graph-theory.md": "---\ntitle: Graph Theory\n---\n\nBody.\n",
		"essay.md":        "---\ntitle: Essay\n---\n\nGraph Theory builds on Graph basics.\n",
	})

	got := make(map[string]bool)
	for _, e := range BuildEdges(notes) {
		if e.Type == graph.EdgeMention && e.SourcePath == "essay.md" {
			got[e.TargetPath] = true
		}
	}
	for _, want := range []string{"graph.md", "graph-theory.md"} {
		if !got[want] {
			t.Errorf("missing mention edge essay.md -> %s (got %v)", want, got)
		}
	}
}

func TestBuildEdgesNoSelfEdges(t *testing.T) {
	notes := scanVault(t, map[string]string{
		"solo.md": "---\ntitle: Solo\nnext: solo\n---\n\nA [[solo]] self reference.\n",
	})
	if edges := BuildEdges(notes); len(edges) != 0 {
		t.Errorf("expected no self edges, got %+v", edges)
	}
}

func TestResolverPrecedence(t *testing.T) {
	notes := []Note{
		{Path: "x/deep.md", Title: "Deep Dive"},
		{Path: "deep.md", Title: "Shallow"},
	}
	r := newResolver(notes)

	tests := []struct {
		ref  string
		want string
	}{
		{"x/deep.md", "x/deep.md"}, // exact path wins
		{"deep.md", "deep.md"},
		{"deep", "deep.md"},
		{"Deep Dive", "x/deep.md"},
		{"shallow", "deep.md"},
	}
	for _, tt := range tests {
		got, ok := r.resolve(tt.ref)
		if !ok {
			t.Errorf("resolve(%q): not found", tt.ref)
			continue
		}
		if got != tt.want {
			t.Errorf("resolve(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}

	if _, ok := r.resolve("missing"); ok {
		t.Error("expected missing reference to fail")
	}
}

func TestScanXLSXAttachment(t *testing.T) {
	root := writeVault(t, map[string]string{
		"a.md": "# Alpha\n\nBody.\n",
	})

	f := excelize.NewFile()
	if err := f.SetCellValue("Sheet1", "A1", "budget"); err != nil {
		t.Fatalf("setting cell: %v", err)
	}
	if err := f.SetCellValue("Sheet1", "B1", 42); err != nil {
		t.Fatalf("setting cell: %v", err)
	}
	if err := f.SaveAs(filepath.Join(root, "figures.xlsx")); err != nil {
		t.Fatalf("saving xlsx: %v", err)
	}

	notes, err := NewScanner(root).Scan(context.Background())
	if err != nil {
		t.Fatalf("scanning vault: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(notes))
	}

	sheet := noteByPath(t, notes, "figures.xlsx")
	if sheet.Title != "figures" {
		t.Errorf("title = %q, want %q", sheet.Title, "figures")
	}
	if !strings.Contains(sheet.Content, "| budget | 42 |") {
		t.Errorf("content missing sheet row: %q", sheet.Content)
	}
	if len(sheet.WikiLinks) != 0 {
		t.Errorf("attachment should carry no links, got %d", len(sheet.WikiLinks))
	}
	if sheet.Hash == "" {
		t.Error("attachment hash not set")
	}
}
