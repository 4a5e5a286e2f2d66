// Package embed produces text embeddings for catalog items and queries.
// Two providers exist: an HTTP provider speaking the Ollama embed API, and a
// deterministic hash-based provider that needs no external service.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// StaticDimensions is the embedding dimension of the hash-based provider.
	StaticDimensions = 256

	// DefaultTimeout bounds a single embedding call. The ingestion pipeline
	// falls back to lexical-only indexing when the budget is exhausted.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries is the retry budget for transient embedding failures.
	DefaultMaxRetries = 3

	// DefaultCacheSize is the number of query embeddings kept in the LRU.
	DefaultCacheSize = 1000
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the provider is ready to serve.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales v to unit length in place and returns it.
// A zero vector is returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
