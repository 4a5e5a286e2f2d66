package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	errs "github.com/restocker/invsearch/internal/errors"
)

// HTTPConfig configures the HTTP embedding provider.
type HTTPConfig struct {
	// Host is the base URL of an Ollama-compatible server.
	Host string

	// Model is the embedding model name.
	Model string

	// Dimensions is the expected embedding dimension; responses of any other
	// dimension are rejected as malformed.
	Dimensions int

	// Timeout bounds each embedding request.
	Timeout time.Duration
}

// HTTPEmbedder calls an Ollama-compatible /api/embed endpoint.
type HTTPEmbedder struct {
	cfg    HTTPConfig
	client *http.Client

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*HTTPEmbedder)(nil)

type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewHTTPEmbedder returns an embedder backed by the server at cfg.Host.
func NewHTTPEmbedder(cfg HTTPConfig) *HTTPEmbedder {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &HTTPEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.cfg.Dimensions), nil
	}
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, errs.New(errs.ErrCodeEmbeddingUnavailable, "embedder is closed", nil)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrCodeEmbeddingMalformed, "marshal embed request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrCodeEmbeddingUnavailable, "build embed request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errs.Wrap(err, errs.ErrCodeEmbeddingTimeout, "embedding request timed out").
				WithDetail("timeout", e.cfg.Timeout.String())
		}
		return nil, errs.Wrap(err, errs.ErrCodeEmbeddingUnavailable, "embedding request failed").
			WithDetail("host", e.cfg.Host).
			WithSuggestion("check that the embedding server is running")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errs.New(errs.ErrCodeEmbeddingUnavailable, "embedding server returned an error", nil).
			WithDetail("status", strconv.Itoa(resp.StatusCode)).
			WithDetail("body", string(raw))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errs.Wrap(err, errs.ErrCodeEmbeddingMalformed, "decode embed response")
	}
	if len(result.Embeddings) != len(texts) {
		return nil, errs.New(errs.ErrCodeEmbeddingMalformed, "embedding count mismatch", nil).
			WithDetail("expected", strconv.Itoa(len(texts))).
			WithDetail("got", strconv.Itoa(len(result.Embeddings)))
	}
	for _, vec := range result.Embeddings {
		if len(vec) != e.cfg.Dimensions {
			return nil, errs.New(errs.ErrCodeEmbeddingMalformed, "embedding dimension mismatch", nil).
				WithDetail("expected", strconv.Itoa(e.cfg.Dimensions)).
				WithDetail("got", strconv.Itoa(len(vec)))
		}
	}
	return result.Embeddings, nil
}

func (e *HTTPEmbedder) Dimensions() int { return e.cfg.Dimensions }

func (e *HTTPEmbedder) ModelName() string { return e.cfg.Model }

// Available probes the server root with a short deadline.
func (e *HTTPEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.Host+"/", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (e *HTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}
