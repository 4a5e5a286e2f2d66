// Package ingest owns all writes to the search indexes. It applies item
// changes from the catalog change feed, keeps lexical and vector state in
// step with the store, and tracks items whose embeddings are stale so they
// can be retried later.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/restocker/invsearch/internal/catalog"
	"github.com/restocker/invsearch/internal/embed"
	errs "github.com/restocker/invsearch/internal/errors"
	"github.com/restocker/invsearch/internal/index"
)

// ChangeKind labels a change-feed event.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Config tunes the pipeline.
type Config struct {
	// EmbedTimeout bounds each embedding attempt.
	EmbedTimeout time.Duration

	// Retry is the backoff policy around embedding calls.
	Retry embed.RetryConfig
}

// Pipeline is the single writer for the lexical and vector indexes. Change
// delivery is at-least-once, so every operation is idempotent: re-applying
// the same item version yields identical index state.
type Pipeline struct {
	store    catalog.Store
	lexical  *index.LexicalIndex
	vectors  index.VectorIndex
	embedder embed.Embedder
	cfg      Config
	logger   *slog.Logger

	mu           sync.Mutex
	stale        map[string]struct{}
	inconsistent map[string]struct{}
}

// NewPipeline wires the ingestion pipeline. The logger may be nil.
func NewPipeline(store catalog.Store, lexical *index.LexicalIndex, vectors index.VectorIndex, embedder embed.Embedder, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = embed.DefaultTimeout
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = embed.DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:        store,
		lexical:      lexical,
		vectors:      vectors,
		embedder:     embedder,
		cfg:          cfg,
		logger:       logger,
		stale:        make(map[string]struct{}),
		inconsistent: make(map[string]struct{}),
	}
}

// Ingest applies one change-feed event.
func (p *Pipeline) Ingest(ctx context.Context, item *catalog.Item, kind ChangeKind) error {
	switch kind {
	case ChangeCreated, ChangeUpdated:
		return p.apply(ctx, item)
	case ChangeDeleted:
		if item == nil || item.ID == "" {
			return errs.New(errs.ErrCodeInvalidItem, "delete event without item id", nil)
		}
		return p.Delete(ctx, item.ID)
	default:
		return errs.New(errs.ErrCodeUnknownChangeKind, "unknown change kind", nil).
			WithDetail("kind", string(kind))
	}
}

// apply upserts the item in the store and both indexes. The embedding step is
// skipped when the embeddable text has not changed since the last successful
// embed; quantity and cost churn therefore never trigger re-embedding.
//
// When the embedding provider stays down past the retry budget, the item is
// still fully searchable by keyword and is flagged semantic-stale for
// RetryStale. That path returns nil: lexical-only indexing is the documented
// fallback, not a failure.
func (p *Pipeline) apply(ctx context.Context, item *catalog.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}

	prevHash, err := p.store.GetEmbedHash(ctx, item.ID)
	if err != nil {
		return err
	}
	if err := p.store.PutItem(ctx, item); err != nil {
		return err
	}

	p.lexical.Put(item.ID, item.Name, item.Vendor, item.SKU, item.Category, item.Description)

	newHash := item.EmbedHash()
	if newHash == prevHash && p.vectors.Has(item.ID) && !p.isStale(item.ID) {
		p.logger.Debug("embeddable text unchanged, skipping embed", slog.String("id", item.ID))
		return nil
	}

	if err := p.embedAndStore(ctx, item.ID, item.EmbeddableText(), newHash); err != nil {
		// Only embedding-provider failures get the lexical-only fallback;
		// store and index errors must surface for redelivery.
		if errs.GetCategory(err) != errs.CategoryEmbedding && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		p.markStale(item.ID)
		p.logger.Warn("embedding failed, item indexed lexically only",
			slog.String("id", item.ID),
			slog.String("error", err.Error()))
		return nil
	}
	return nil
}

// embedAndStore runs the bounded-retry embedding call and commits the vector
// and its fingerprint.
func (p *Pipeline) embedAndStore(ctx context.Context, id, text, hash string) error {
	var vec []float32
	err := embed.WithRetry(ctx, p.cfg.Retry, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.EmbedTimeout)
		defer cancel()
		var embedErr error
		vec, embedErr = p.embedder.Embed(attemptCtx, text)
		return embedErr
	})
	if err != nil {
		return err
	}
	return p.commitVector(ctx, id, vec, hash)
}

// commitVector stores an embedding and its fingerprint, clearing any stale
// flag once both writes land.
func (p *Pipeline) commitVector(ctx context.Context, id string, vec []float32, hash string) error {
	if err := p.vectors.Put(id, vec); err != nil {
		return err
	}
	if err := p.store.SetEmbedHash(ctx, id, hash); err != nil {
		return err
	}
	p.clearStale(id)
	return nil
}

// embedBatch embeds the pending items in one provider round trip and commits
// each vector. Failures follow the lexical-only fallback of the single-item
// path: affected items are flagged semantic-stale for RetryStale.
func (p *Pipeline) embedBatch(ctx context.Context, items []*catalog.Item) {
	if len(items) == 0 {
		return
	}

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.EmbeddableText()
	}

	var vecs [][]float32
	err := embed.WithRetry(ctx, p.cfg.Retry, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.EmbedTimeout)
		defer cancel()
		var embedErr error
		vecs, embedErr = p.embedder.EmbedBatch(attemptCtx, texts)
		return embedErr
	})
	if err == nil && len(vecs) != len(items) {
		err = errs.New(errs.ErrCodeEmbeddingMalformed, "embedding batch size mismatch", nil).
			WithDetail("expected", strconv.Itoa(len(items))).
			WithDetail("got", strconv.Itoa(len(vecs)))
	}
	if err != nil {
		for _, item := range items {
			p.markStale(item.ID)
		}
		p.logger.Warn("batch embedding failed, items indexed lexically only",
			slog.Int("items", len(items)),
			slog.String("error", err.Error()))
		return
	}

	for i, item := range items {
		if err := p.commitVector(ctx, item.ID, vecs[i], item.EmbedHash()); err != nil {
			p.markStale(item.ID)
			p.logger.Warn("could not commit embedding, item flagged stale",
				slog.String("id", item.ID),
				slog.String("error", err.Error()))
		}
	}
}

// Delete removes the item from both indexes and the store. Index removal is
// in-memory and cannot fail; a store failure afterwards flags the item
// inconsistent so Repair (or redelivery) reconciles it.
//
// A retryable store error is returned as-is: the change feed must keep the
// delete event for redelivery, otherwise a rebuild resurrects the item from
// the still-present store row and the delete is lost.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	p.lexical.Delete(id)
	p.vectors.Delete(id)
	p.clearStale(id)

	if err := p.store.DeleteItem(ctx, id); err != nil {
		p.markInconsistent(id)
		if errs.IsRetryable(err) {
			return err
		}
		return errs.Wrap(err, errs.ErrCodeIndexInconsistency, "item removed from indexes but not from store").
			WithDetail("id", id).
			WithSuggestion("run a repair pass or redeliver the delete")
	}
	p.clearInconsistent(id)
	return nil
}

// RetryStale re-embeds every semantic-stale item. Items deleted in the
// meantime just lose their flag.
func (p *Pipeline) RetryStale(ctx context.Context) error {
	for _, id := range p.StaleIDs() {
		item, err := p.store.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			p.clearStale(id)
			continue
		}
		if err := p.embedAndStore(ctx, id, item.EmbeddableText(), item.EmbedHash()); err != nil {
			p.logger.Warn("stale item still not embeddable",
				slog.String("id", id),
				slog.String("error", err.Error()))
			continue
		}
		p.logger.Info("stale item re-embedded", slog.String("id", id))
	}
	return nil
}

// Rebuild reconstructs both indexes from the store. The lexical index is
// in-memory only and always rebuilt in full; vectors are re-embedded only
// when missing or fingerprint-stale, batched into one provider round trip,
// so a warm snapshot makes this cheap.
func (p *Pipeline) Rebuild(ctx context.Context) error {
	items, err := p.store.ListItems(ctx)
	if err != nil {
		return err
	}

	live := make(map[string]struct{}, len(items))
	var pending []*catalog.Item
	for _, item := range items {
		live[item.ID] = struct{}{}
		p.lexical.Put(item.ID, item.Name, item.Vendor, item.SKU, item.Category, item.Description)

		if p.vectors.Has(item.ID) {
			hash, err := p.store.GetEmbedHash(ctx, item.ID)
			if err != nil {
				return err
			}
			if hash == item.EmbedHash() {
				continue
			}
		}
		pending = append(pending, item)
	}
	p.embedBatch(ctx, pending)

	// Drop index entries whose store row is gone.
	for _, id := range p.lexical.IDs() {
		if _, ok := live[id]; !ok {
			p.lexical.Delete(id)
			p.vectors.Delete(id)
			p.clearStale(id)
		}
	}

	p.mu.Lock()
	p.inconsistent = make(map[string]struct{})
	p.mu.Unlock()

	p.logger.Info("indexes rebuilt",
		slog.Int("items", len(items)),
		slog.Int("stale", len(p.StaleIDs())))
	return nil
}

// Repair reconciles all cross-index drift by rebuilding from the store.
func (p *Pipeline) Repair(ctx context.Context) error {
	return p.Rebuild(ctx)
}

// StaleIDs returns the semantic-stale item IDs in ascending order.
func (p *Pipeline) StaleIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.stale))
	for id := range p.stale {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InconsistentIDs returns items flagged after a partial delete failure.
func (p *Pipeline) InconsistentIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.inconsistent))
	for id := range p.inconsistent {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Pipeline) isStale(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.stale[id]
	return ok
}

func (p *Pipeline) markStale(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stale[id] = struct{}{}
}

func (p *Pipeline) clearStale(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.stale, id)
}

func (p *Pipeline) markInconsistent(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inconsistent[id] = struct{}{}
}

func (p *Pipeline) clearInconsistent(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inconsistent, id)
}
