package notegraph

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the notegraph engine.
type Config struct {
	// VaultDir is the directory containing the markdown notes.
	VaultDir string `json:"vault_dir" yaml:"vault_dir"`

	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.notegraph/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "notegraph".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath is
	// not explicitly set. Options: "home" (default) uses ~/.notegraph/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// LLM providers
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`

	// Retrieval weights for RRF
	WeightLexical  float64 `json:"weight_lexical" yaml:"weight_lexical"`
	WeightSemantic float64 `json:"weight_semantic" yaml:"weight_semantic"`
	WeightGraph    float64 `json:"weight_graph" yaml:"weight_graph"`

	// Graph expansion defaults
	ExpandDepth  int     `json:"expand_depth" yaml:"expand_depth"`
	ExpandBudget int     `json:"expand_budget" yaml:"expand_budget"`
	DecayFactor  float64 `json:"decay_factor" yaml:"decay_factor"`

	// SkipEmbeddings disables the semantic index entirely; lexical and
	// graph search keep working.
	SkipEmbeddings bool `json:"skip_embeddings" yaml:"skip_embeddings"`

	// Embedding dimensions (must match model)
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, openai, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with sensible defaults for local inference.
// Database is stored in ~/.notegraph/notegraph.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:     "notegraph",
		StorageDir: "home",
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		WeightLexical:  1.0,
		WeightSemantic: 1.0,
		WeightGraph:    0.5,
		ExpandDepth:    2,
		ExpandBudget:   50,
		DecayFactor:    0.5,
		EmbeddingDim:   768,
	}
}

// LoadConfig reads a YAML config file over the defaults. A missing file is
// not an error; the defaults are returned unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// keep defaults
	case err != nil:
		return cfg, fmt.Errorf("reading config %q: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parsing %q: %v", ErrInvalidConfig, path, err)
		}
	}

	// Environment fallback for hosted providers.
	if cfg.Chat.APIKey == "" {
		cfg.Chat.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return cfg, nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "notegraph"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".notegraph", name+".db")
	}
}
