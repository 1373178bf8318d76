// Package vault reads a markdown note collection from disk and derives the
// typed links between notes: explicit wikilinks, frontmatter-declared
// sequence, hierarchy and causal edges, and title mentions in body text.
package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nkhoeller/notegraph/graph"
)

// WikiLink is one [[target]] reference found in a note body.
type WikiLink struct {
	Target  string // raw link target, without heading or label
	Heading string // optional #heading fragment
	Label   string // optional |label text
}

// Note is a parsed vault file before it is stored.
type Note struct {
	Path        string // vault-relative, slash-separated
	Title       string
	Content     string // body without frontmatter
	Hash        string
	Frontmatter map[string]any
	WikiLinks   []WikiLink

	// Frontmatter-declared relations, raw references.
	Next    []string
	Parents []string
	Causes  []string
}

// FrontmatterJSON renders the parsed frontmatter for storage. Returns ""
// when there is none.
func (n *Note) FrontmatterJSON() string {
	if len(n.Frontmatter) == 0 {
		return ""
	}
	b, err := json.Marshal(n.Frontmatter)
	if err != nil {
		return ""
	}
	return string(b)
}

// Scanner walks a vault directory and parses its notes.
type Scanner struct {
	root string
}

// NewScanner creates a scanner for the vault rooted at dir.
func NewScanner(dir string) *Scanner {
	return &Scanner{root: dir}
}

// Scan walks the vault in sorted order and parses every markdown note and
// attachment (PDF, XLSX). Hidden directories and files are skipped.
// Unreadable files are logged and skipped rather than failing the scan.
func (s *Scanner) Scan(ctx context.Context) ([]Note, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("opening vault %q: %w", s.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault %q is not a directory", s.root)
	}

	var paths []string
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != s.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".md", ".markdown", ".pdf", ".xlsx":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking vault: %w", err)
	}
	sort.Strings(paths)

	notes := make([]Note, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil, err
		}
		rel = filepath.ToSlash(rel)

		var note *Note
		switch strings.ToLower(filepath.Ext(path)) {
		case ".pdf":
			note, err = parsePDFAttachment(path, rel)
		case ".xlsx":
			note, err = parseXLSXAttachment(path, rel)
		default:
			note, err = parseMarkdownFile(path, rel)
		}
		if err != nil {
			slog.Warn("vault: skipping unreadable file", "path", rel, "error", err)
			continue
		}
		notes = append(notes, *note)
	}

	slog.Debug("vault: scan complete", "root", s.root, "notes", len(notes))
	return notes, nil
}

var wikiLinkRe = regexp.MustCompile(`\[\[([^\[\]|#]+)(#[^\[\]|]+)?(\|[^\[\]]+)?\]\]`)

func parseMarkdownFile(path, rel string) (*Note, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	hash := sha256.Sum256(raw)
	fm, body := splitFrontmatter(string(raw))

	note := &Note{
		Path:    rel,
		Content: body,
		Hash:    hex.EncodeToString(hash[:]),
	}

	if fm != "" {
		meta := make(map[string]any)
		if err := yaml.Unmarshal([]byte(fm), &meta); err != nil {
			slog.Warn("vault: ignoring malformed frontmatter", "path", rel, "error", err)
		} else {
			note.Frontmatter = meta
			note.Next = stringList(meta["next"])
			note.Parents = stringList(meta["parent"])
			note.Causes = stringList(meta["causes"])
			if t, ok := meta["title"].(string); ok && t != "" {
				note.Title = t
			}
		}
	}

	if note.Title == "" {
		note.Title = firstHeading(body)
	}
	if note.Title == "" {
		note.Title = titleFromPath(rel)
	}

	for _, m := range wikiLinkRe.FindAllStringSubmatch(body, -1) {
		wl := WikiLink{Target: strings.TrimSpace(m[1])}
		if m[2] != "" {
			wl.Heading = strings.TrimPrefix(m[2], "#")
		}
		if m[3] != "" {
			wl.Label = strings.TrimPrefix(m[3], "|")
		}
		if wl.Target != "" {
			note.WikiLinks = append(note.WikiLinks, wl)
		}
	}

	return note, nil
}

// splitFrontmatter separates a leading YAML frontmatter block from the body.
func splitFrontmatter(content string) (frontmatter, body string) {
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return "", content
	}
	rest := content[strings.Index(content, "\n")+1:]
	for _, marker := range []string{"\n---\n", "\n---\r\n"} {
		if idx := strings.Index(rest, marker); idx >= 0 {
			return rest[:idx], rest[idx+len(marker):]
		}
	}
	if strings.HasSuffix(rest, "\n---") {
		return strings.TrimSuffix(rest, "\n---"), ""
	}
	return "", content
}

var headingRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)

func firstHeading(body string) string {
	if m := headingRe.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func titleFromPath(rel string) string {
	base := filepath.Base(rel)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(base, "-", " ")
}

// stringList coerces a frontmatter value into a string slice. Accepts a
// single string or a YAML list.
func stringList(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []any:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Edge is a typed relation between two parsed notes, identified by their
// vault-relative paths.
type Edge struct {
	SourcePath string
	TargetPath string
	Type       graph.EdgeType
	Strength   float64
}

// mentionStrength is the edge strength for implicit title mentions. Weaker
// than an explicit link since it is only textual evidence.
const mentionStrength = 0.5

// BuildEdges resolves the relations of a parsed note set into edges between
// paths. Wikilink and frontmatter references are resolved by path, filename
// stem and title; unresolvable references are logged and dropped. A second
// pass detects mentions of other notes' titles in body text.
func BuildEdges(notes []Note) []Edge {
	res := newResolver(notes)

	var edges []Edge
	add := func(src string, ref string, t graph.EdgeType, strength float64) {
		target, ok := res.resolve(ref)
		if !ok {
			slog.Debug("vault: unresolved reference", "source", src, "ref", ref, "type", t)
			return
		}
		if target == src {
			return
		}
		edges = append(edges, Edge{SourcePath: src, TargetPath: target, Type: t, Strength: strength})
	}

	for _, n := range notes {
		for _, wl := range n.WikiLinks {
			add(n.Path, wl.Target, graph.EdgeExplicitLink, 1.0)
		}
		for _, ref := range n.Next {
			add(n.Path, ref, graph.EdgeSequence, 1.0)
		}
		for _, ref := range n.Parents {
			add(n.Path, ref, graph.EdgeHierarchy, 1.0)
		}
		for _, ref := range n.Causes {
			add(n.Path, ref, graph.EdgeCauses, 1.0)
		}
	}

	edges = append(edges, mentionEdges(notes, edges)...)
	return edges
}

// mentionEdges finds other notes' titles appearing in a note body. Titles
// shorter than four characters are too noisy to match. Longer titles are
// tried first and claim the text they match, so "Graph Theory" in a body
// mentions the Graph Theory note without also mentioning a note titled
// "Graph". Pairs that already have an edge between them are skipped,
// though their matches still claim spans.
func mentionEdges(notes []Note, existing []Edge) []Edge {
	linked := make(map[string]bool, len(existing))
	for _, e := range existing {
		linked[e.SourcePath+"\x00"+e.TargetPath] = true
	}

	type target struct {
		path    string
		title   string
		pattern *regexp.Regexp
	}
	targets := make([]target, 0, len(notes))
	for _, n := range notes {
		if len(n.Title) < 4 {
			continue
		}
		pattern, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(n.Title) + `\b`)
		if err != nil {
			continue
		}
		targets = append(targets, target{path: n.Path, title: n.Title, pattern: pattern})
	}
	sort.SliceStable(targets, func(i, j int) bool {
		return len(targets[i].title) > len(targets[j].title)
	})

	var edges []Edge
	for _, n := range notes {
		var claimed [][2]int
		overlaps := func(start, end int) bool {
			for _, c := range claimed {
				if start < c[1] && c[0] < end {
					return true
				}
			}
			return false
		}
		for _, t := range targets {
			if t.path == n.Path {
				continue
			}
			matched := false
			for _, m := range t.pattern.FindAllStringIndex(n.Content, -1) {
				if overlaps(m[0], m[1]) {
					continue
				}
				claimed = append(claimed, [2]int{m[0], m[1]})
				matched = true
			}
			if !matched || linked[n.Path+"\x00"+t.path] {
				continue
			}
			edges = append(edges, Edge{
				SourcePath: n.Path,
				TargetPath: t.path,
				Type:       graph.EdgeMention,
				Strength:   mentionStrength,
			})
		}
	}
	return edges
}

// resolver maps loose references (paths, filename stems, titles) to note
// paths within one scanned set.
type resolver struct {
	byPath  map[string]string
	byStem  map[string][]string
	byTitle map[string][]string
}

func newResolver(notes []Note) *resolver {
	r := &resolver{
		byPath:  make(map[string]string, len(notes)),
		byStem:  make(map[string][]string),
		byTitle: make(map[string][]string),
	}
	for _, n := range notes {
		r.byPath[strings.ToLower(n.Path)] = n.Path

		stem := strings.ToLower(strings.TrimSuffix(filepath.Base(n.Path), filepath.Ext(n.Path)))
		r.byStem[stem] = append(r.byStem[stem], n.Path)

		title := strings.ToLower(n.Title)
		if title != "" {
			r.byTitle[title] = append(r.byTitle[title], n.Path)
		}
	}
	return r
}

// resolve returns the path a reference points to. Ambiguous stems and
// titles resolve to the lexically smallest path for determinism.
func (r *resolver) resolve(ref string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(ref))
	if key == "" {
		return "", false
	}

	if p, ok := r.byPath[key]; ok {
		return p, true
	}
	if p, ok := r.byPath[key+".md"]; ok {
		return p, true
	}
	if paths, ok := r.byStem[strings.TrimSuffix(key, ".md")]; ok {
		return smallest(paths), true
	}
	if paths, ok := r.byTitle[key]; ok {
		return smallest(paths), true
	}
	return "", false
}

func smallest(paths []string) string {
	min := paths[0]
	for _, p := range paths[1:] {
		if p < min {
			min = p
		}
	}
	return min
}
