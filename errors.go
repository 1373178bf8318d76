package notegraph

import "errors"

var (
	// ErrVaultNotFound is returned when the configured vault directory
	// does not exist.
	ErrVaultNotFound = errors.New("notegraph: vault directory not found")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("notegraph: invalid configuration")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("notegraph: embedding generation failed")

	// ErrLLMRequestFailed is returned when an LLM request fails.
	ErrLLMRequestFailed = errors.New("notegraph: LLM request failed")

	// ErrNoResults is returned when a search yields no matching notes.
	ErrNoResults = errors.New("notegraph: no results found")
)
