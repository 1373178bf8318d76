// Package discover proposes new links for a note and analyses which notes
// depend on it. Candidates come from embedding similarity and bounded graph
// expansion; an optional LLM pass classifies the relation type.
package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nkhoeller/notegraph/graph"
	"github.com/nkhoeller/notegraph/llm"
	"github.com/nkhoeller/notegraph/retrieval"
	"github.com/nkhoeller/notegraph/store"
)

// Candidate sources for fusion.
const (
	sourceSimilarity = "similarity"
	sourceExpansion  = "expansion"
)

// minClassifyConfidence drops classified suggestions the model is unsure
// about.
const minClassifyConfidence = 0.5

// excerptLen caps how much note body goes into the classification prompt.
const excerptLen = 400

// Suggestion is a proposed link from the queried note to another note.
type Suggestion struct {
	NoteID  string   `json:"note_id"`
	Path    string   `json:"path"`
	Title   string   `json:"title"`
	Score   float64  `json:"score"`
	Sources []string `json:"sources"`

	// Set by LLM classification.
	Relation   graph.EdgeType `json:"relation,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// SuggestOptions configures a suggestion run.
type SuggestOptions struct {
	Limit    int
	MaxDepth int
	Classify bool // ask the LLM to name the relation
	Persist  bool // store classified suggestions as semantic_suggestion links
}

// Engine runs discovery over a note store. chat may be nil, which disables
// classification.
type Engine struct {
	store *store.Store
	chat  llm.Provider
}

// New creates a discovery engine.
func New(s *store.Store, chat llm.Provider) *Engine {
	return &Engine{store: s, chat: chat}
}

// Suggest proposes notes worth linking to the given note. Notes already
// linked in either direction are excluded. An empty result is a normal
// outcome for well-connected notes.
func (e *Engine) Suggest(ctx context.Context, noteID string, opts SuggestOptions) ([]Suggestion, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 2
	}

	note, err := e.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}

	linked, err := e.store.LinkedNoteIDs(ctx, noteID)
	if err != nil {
		return nil, fmt.Errorf("loading existing links: %w", err)
	}

	similar, err := e.store.SimilarNotes(ctx, noteID, opts.Limit*2)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	expanded, err := e.expandFrom(ctx, noteID, opts.MaxDepth)
	if err != nil {
		return nil, err
	}

	lists := map[string][]retrieval.RankedItem{
		sourceSimilarity: make([]retrieval.RankedItem, 0, len(similar)),
		sourceExpansion:  make([]retrieval.RankedItem, 0, len(expanded)),
	}
	for _, h := range similar {
		lists[sourceSimilarity] = append(lists[sourceSimilarity],
			retrieval.RankedItem{ID: h.NoteID, Score: h.Score, Source: sourceSimilarity})
	}
	for _, n := range expanded {
		lists[sourceExpansion] = append(lists[sourceExpansion],
			retrieval.RankedItem{ID: n.ID, Score: n.Score, Source: sourceExpansion})
	}

	fused, err := retrieval.Fuse(lists, retrieval.FuseOptions{
		Weights: map[string]float64{sourceSimilarity: 1.0, sourceExpansion: 0.5},
	})
	if err != nil {
		return nil, fmt.Errorf("fusing candidates: %w", err)
	}

	var suggestions []Suggestion
	for _, f := range fused {
		if f.ID == noteID || linked[f.ID] {
			continue
		}
		target, err := e.store.GetNote(ctx, f.ID)
		if err != nil {
			slog.Warn("discover: dropping unresolvable candidate", "note_id", f.ID, "error", err)
			continue
		}
		suggestions = append(suggestions, Suggestion{
			NoteID:  f.ID,
			Path:    target.Path,
			Title:   target.Title,
			Score:   f.Score,
			Sources: f.Sources,
		})
		if len(suggestions) == opts.Limit {
			break
		}
	}

	if opts.Classify && e.chat != nil && len(suggestions) > 0 {
		suggestions, err = e.classify(ctx, note, suggestions)
		if err != nil {
			return nil, err
		}
		if opts.Persist {
			if err := e.persist(ctx, noteID, suggestions); err != nil {
				return nil, err
			}
		}
	}

	return suggestions, nil
}

// expandFrom runs a bounded expansion from the note over the full link
// graph, following edges in both directions.
func (e *Engine) expandFrom(ctx context.Context, noteID string, maxDepth int) ([]graph.ExpandedNode, error) {
	edges, err := e.store.AllLinks(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("loading links: %w", err)
	}
	if len(edges) == 0 {
		return nil, nil
	}
	return graph.Expand(edges, []graph.Seed{{ID: noteID, Score: 1.0}}, graph.ExpandOptions{
		MaxDepth:        maxDepth,
		Budget:          100,
		DecayFactor:     0.5,
		IncludeIncoming: true,
	})
}

// classificationPrompt asks the model to name the relation between the
// source note and each candidate. The relation vocabulary matches the link
// types the rest of the system understands.
const classificationPrompt = `You are a link classification engine for a personal knowledge base.
Given a source note and a list of candidate notes, decide for each candidate whether the source should link to it and what kind of relation fits.

RELATION TYPES (use exactly these values):
- semantic : the notes cover closely related ideas
- causes   : the source describes something that causes or leads to the candidate's topic
- sequence : the candidate is a natural next step after the source
- none     : no meaningful relation

Return a JSON object with exactly one key:
  "suggestions" : array of {"note_id": string, "relation": string, "confidence": number, "reason": string}

Rules:
- note_id must be one of the candidate ids given below.
- Confidence is a float between 0.0 and 1.0.
- Use "none" when the connection is superficial.
- Do NOT include any text outside the JSON object.

SOURCE NOTE (%s):
%s

CANDIDATES:
%s`

type classificationResult struct {
	Suggestions []struct {
		NoteID     string  `json:"note_id"`
		Relation   string  `json:"relation"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	} `json:"suggestions"`
}

// classify sends one batched prompt for all candidates and keeps those the
// model names a relation for with sufficient confidence.
func (e *Engine) classify(ctx context.Context, note *store.Note, candidates []Suggestion) ([]Suggestion, error) {
	var sb strings.Builder
	for _, c := range candidates {
		target, err := e.store.GetNote(ctx, c.NoteID)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "- id: %s\n  title: %s\n  excerpt: %s\n",
			c.NoteID, target.Title, excerpt(target.Content))
	}

	prompt := fmt.Sprintf(classificationPrompt, note.Title, excerpt(note.Content), sb.String())

	resp, err := e.chat.Chat(ctx, llm.ChatRequest{
		Messages:       []llm.Message{{Role: "user", Content: prompt}},
		Temperature:    0.0,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return nil, fmt.Errorf("classification llm chat: %w", err)
	}

	jsonStr, err := extractJSON(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing classification result: %w", err)
	}

	var result classificationResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("unmarshalling classification result: %w", err)
	}

	byID := make(map[string]int, len(candidates))
	for i, c := range candidates {
		byID[c.NoteID] = i
	}

	var classified []Suggestion
	for _, r := range result.Suggestions {
		idx, ok := byID[r.NoteID]
		if !ok {
			slog.Debug("discover: classification names unknown candidate", "note_id", r.NoteID)
			continue
		}
		if r.Relation == "none" || r.Confidence < minClassifyConfidence {
			continue
		}
		s := candidates[idx]
		s.Relation = graph.EdgeType(r.Relation)
		s.Confidence = r.Confidence
		s.Reason = r.Reason
		classified = append(classified, s)
	}
	return classified, nil
}

// persist stores classified suggestions as semantic_suggestion links so the
// traversal engine can use them with the appropriate penalty.
func (e *Engine) persist(ctx context.Context, noteID string, suggestions []Suggestion) error {
	for _, s := range suggestions {
		err := e.store.InsertLink(ctx, store.Link{
			SourceID: noteID,
			TargetID: s.NoteID,
			LinkType: string(graph.EdgeSemanticSuggestion),
			Strength: s.Confidence,
			Origin:   store.OriginSuggestion,
		})
		if err != nil {
			return fmt.Errorf("persisting suggestion %s: %w", s.NoteID, err)
		}
	}
	slog.Info("discover: persisted suggestions", "note_id", noteID, "count", len(suggestions))
	return nil
}

func excerpt(content string) string {
	content = strings.TrimSpace(content)
	if len(content) <= excerptLen {
		return content
	}
	return content[:excerptLen] + "..."
}

// codeBlockRe strips markdown code fences from LLM output.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// extractJSON attempts to find a valid JSON object in the LLM response text.
// It handles common LLM quirks: markdown code blocks, text before/after JSON.
func extractJSON(raw string) (string, error) {
	// Strip markdown code blocks first.
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}

	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "{") {
		return raw, nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], nil
	}

	return "", fmt.Errorf("no JSON object found in response")
}
