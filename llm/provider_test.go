package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  bool
	}{
		{"ollama", false},
		{"openai", false},
		{"custom", false},
		{"", true},
		{"bogus", true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: tt.provider, Model: "m"})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for provider %q", tt.provider)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider(%q): %v", tt.provider, err)
			}
			if p == nil {
				t.Fatal("expected non-nil provider")
			}
		})
	}
}

func TestCompatChat(t *testing.T) {
	var gotPath string
	var gotBody chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{
			"choices": [{"message": {"content": "hello"}, "finish_reason": "stop"}],
			"model": "test-model",
			"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
		}`)
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{Provider: "custom", Model: "test-model", BaseURL: srv.URL})
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages:       []Message{{Role: "user", Content: "hi"}},
		ResponseFormat: "json_object",
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if gotPath != "/v1/chat/completions" {
		t.Errorf("path = %q, want /v1/chat/completions", gotPath)
	}
	if gotBody.Model != "test-model" {
		t.Errorf("model = %q, want config default", gotBody.Model)
	}
	if gotBody.ResponseFormat == nil || gotBody.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v, want json_object", gotBody.ResponseFormat)
	}
	if resp.Content != "hello" || resp.TotalTokens != 5 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestCompatEmbedOrdering(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Return embeddings out of order; the client must reorder by index.
		fmt.Fprint(w, `{"data": [
			{"embedding": [2, 2], "index": 1},
			{"embedding": [1, 1], "index": 0}
		]}`)
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{Provider: "custom", Model: "m", BaseURL: srv.URL})
	embs, err := p.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(embs) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(embs))
	}
	if embs[0][0] != 1 || embs[1][0] != 2 {
		t.Errorf("embeddings out of order: %v", embs)
	}
}

func TestCompatNonRetryableError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{Provider: "custom", Model: "m", BaseURL: srv.URL})
	_, err := p.Embed(context.Background(), []string{"x"})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if calls != 1 {
		t.Errorf("400 was retried %d times, want a single attempt", calls)
	}
}

func TestCompatAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"data": [{"embedding": [1], "index": 0}]}`)
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{Provider: "custom", Model: "m", BaseURL: srv.URL, APIKey: "secret"})
	if _, err := p.Embed(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth header = %q, want bearer token", gotAuth)
	}
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %q, want /api/embed", r.URL.Path)
		}
		var req ollamaEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Input) != 2 {
			t.Errorf("input batch = %v, want 2 texts", req.Input)
		}
		fmt.Fprint(w, `{"embeddings": [[0.5, 0.5], [0.25, 0.75]]}`)
	}))
	defer srv.Close()

	p := NewOllama(Config{Provider: "ollama", Model: "nomic-embed-text", BaseURL: srv.URL})
	embs, err := p.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(embs) != 2 || embs[1][1] != 0.75 {
		t.Errorf("unexpected embeddings: %v", embs)
	}
}
