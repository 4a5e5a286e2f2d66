package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"

	errs "github.com/restocker/invsearch/internal/errors"
	"github.com/restocker/invsearch/internal/index"
)

// Feature weights for the hash-based vector.
const (
	staticTokenWeight = 0.7
	staticNgramWeight = 0.3
	staticNgramSize   = 3
)

// StaticEmbedder generates deterministic hash-based embeddings with no
// external service. Semantic quality is reduced, but identical text always
// yields an identical vector, which keeps ingestion idempotent and tests
// hermetic.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder returns a ready-to-use hash-based embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, errs.New(errs.ErrCodeEmbeddingUnavailable, "embedder is closed", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}
	return normalizeVector(e.generateVector(trimmed)), nil
}

func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// generateVector folds token and character-trigram features into fixed
// buckets. Trigrams give partial robustness to misspellings.
func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	tokens := index.Tokenize(text)
	for _, token := range tokens {
		vector[hashToIndex(token, StaticDimensions)] += staticTokenWeight

		if len(token) >= staticNgramSize {
			for i := 0; i+staticNgramSize <= len(token); i++ {
				gram := token[i : i+staticNgramSize]
				vector[hashToIndex(gram, StaticDimensions)] += staticNgramWeight
			}
		}
	}
	return vector
}

func hashToIndex(s string, buckets int) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32() % uint32(buckets))
}

func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

func (e *StaticEmbedder) ModelName() string { return "static-hash-v1" }

func (e *StaticEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
