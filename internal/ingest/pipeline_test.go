package ingest

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restocker/invsearch/internal/catalog"
	"github.com/restocker/invsearch/internal/embed"
	errs "github.com/restocker/invsearch/internal/errors"
	"github.com/restocker/invsearch/internal/index"
)

// flakyEmbedder counts calls and fails while failing is set.
type flakyEmbedder struct {
	*embed.StaticEmbedder
	calls   atomic.Int64
	failing atomic.Bool
}

func newFlakyEmbedder() *flakyEmbedder {
	return &flakyEmbedder{StaticEmbedder: embed.NewStaticEmbedder()}
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.failing.Load() {
		return nil, errs.New(errs.ErrCodeEmbeddingTimeout, "embedding timed out", nil)
	}
	return f.StaticEmbedder.Embed(ctx, text)
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.failing.Load() {
		return nil, errs.New(errs.ErrCodeEmbeddingTimeout, "embedding timed out", nil)
	}
	return f.StaticEmbedder.EmbedBatch(ctx, texts)
}

type pipelineFixture struct {
	store    *catalog.SQLiteStore
	lexical  *index.LexicalIndex
	vectors  index.VectorIndex
	embedder *flakyEmbedder
	pipeline *Pipeline
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	store, err := catalog.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &pipelineFixture{
		store:    store,
		lexical:  index.NewLexicalIndex(),
		vectors:  index.NewFlatIndex(),
		embedder: newFlakyEmbedder(),
	}
	f.pipeline = NewPipeline(store, f.lexical, f.vectors, f.embedder, Config{
		EmbedTimeout: time.Second,
		Retry: embed.RetryConfig{
			MaxRetries:   1,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1,
		},
	}, nil)
	return f
}

func romaine() *catalog.Item {
	return &catalog.Item{
		ID:        "inv_123",
		Name:      "Romaine Hearts (carton)",
		Vendor:    "FreshCo",
		Unit:      "ctn",
		OnHandQty: 4,
		LastCost:  16.25,
	}
}

func TestIngestCreated(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.pipeline.Ingest(ctx, romaine(), ChangeCreated))

	hits := f.lexical.Lookup("romaine", 5)
	require.Len(t, hits, 1)
	assert.Equal(t, "inv_123", hits[0].ID)
	assert.True(t, f.vectors.Has("inv_123"))

	hash, err := f.store.GetEmbedHash(ctx, "inv_123")
	require.NoError(t, err)
	assert.Equal(t, romaine().EmbedHash(), hash)
	assert.Empty(t, f.pipeline.StaleIDs())
}

func TestIngestIdempotent(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.pipeline.Ingest(ctx, romaine(), ChangeUpdated))
	firstHits := f.lexical.Lookup("romaine", 5)

	require.NoError(t, f.pipeline.Ingest(ctx, romaine(), ChangeUpdated))

	assert.Equal(t, firstHits, f.lexical.Lookup("romaine", 5))
	assert.Equal(t, 1, f.lexical.Len())
	assert.Equal(t, 1, f.vectors.Len())
}

func TestIngestSkipsEmbedWhenTextUnchanged(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.pipeline.Ingest(ctx, romaine(), ChangeCreated))
	callsAfterCreate := f.embedder.calls.Load()

	// Quantity and cost churn changes no embeddable text.
	updated := romaine()
	updated.OnHandQty = 99
	updated.LastCost = 12.00
	require.NoError(t, f.pipeline.Ingest(ctx, updated, ChangeUpdated))
	assert.Equal(t, callsAfterCreate, f.embedder.calls.Load())

	// A name change does.
	renamed := romaine()
	renamed.Name = "Romaine Hearts Jumbo"
	require.NoError(t, f.pipeline.Ingest(ctx, renamed, ChangeUpdated))
	assert.Greater(t, f.embedder.calls.Load(), callsAfterCreate)
}

func TestIngestEmbedFailureFallsBackToLexical(t *testing.T) {
	f := newPipelineFixture(t)
	f.embedder.failing.Store(true)
	ctx := context.Background()

	// The fallback is not an error: the item must be keyword-searchable now.
	require.NoError(t, f.pipeline.Ingest(ctx, romaine(), ChangeCreated))

	require.Len(t, f.lexical.Lookup("romaine", 5), 1)
	assert.False(t, f.vectors.Has("inv_123"))
	assert.Equal(t, []string{"inv_123"}, f.pipeline.StaleIDs())
}

func TestRetryStaleRecovers(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	f.embedder.failing.Store(true)
	require.NoError(t, f.pipeline.Ingest(ctx, romaine(), ChangeCreated))
	require.Equal(t, []string{"inv_123"}, f.pipeline.StaleIDs())

	f.embedder.failing.Store(false)
	require.NoError(t, f.pipeline.RetryStale(ctx))

	assert.Empty(t, f.pipeline.StaleIDs())
	assert.True(t, f.vectors.Has("inv_123"))

	hash, err := f.store.GetEmbedHash(ctx, "inv_123")
	require.NoError(t, err)
	assert.Equal(t, romaine().EmbedHash(), hash)
}

func TestRetryStaleDropsDeletedItems(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	f.embedder.failing.Store(true)
	require.NoError(t, f.pipeline.Ingest(ctx, romaine(), ChangeCreated))
	require.NoError(t, f.store.DeleteItem(ctx, "inv_123"))

	f.embedder.failing.Store(false)
	require.NoError(t, f.pipeline.RetryStale(ctx))
	assert.Empty(t, f.pipeline.StaleIDs())
	assert.False(t, f.vectors.Has("inv_123"))
}

func TestIngestDeleted(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.pipeline.Ingest(ctx, romaine(), ChangeCreated))
	require.NoError(t, f.pipeline.Ingest(ctx, &catalog.Item{ID: "inv_123"}, ChangeDeleted))

	assert.Empty(t, f.lexical.Lookup("romaine", 5))
	assert.False(t, f.vectors.Has("inv_123"))

	item, err := f.store.GetItem(ctx, "inv_123")
	require.NoError(t, err)
	assert.Nil(t, item)

	// Redelivered delete is a no-op.
	require.NoError(t, f.pipeline.Ingest(ctx, &catalog.Item{ID: "inv_123"}, ChangeDeleted))
}

func TestIngestUnknownChangeKind(t *testing.T) {
	f := newPipelineFixture(t)

	err := f.pipeline.Ingest(context.Background(), romaine(), ChangeKind("archived"))
	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeUnknownChangeKind, errs.GetCode(err))
}

func TestIngestInvalidItem(t *testing.T) {
	f := newPipelineFixture(t)

	err := f.pipeline.Ingest(context.Background(), &catalog.Item{ID: "inv_1"}, ChangeCreated)
	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeInvalidItem, errs.GetCode(err))
	assert.Zero(t, f.lexical.Len())
}

// failingDeleteStore simulates a store failure during delete.
type failingDeleteStore struct {
	catalog.Store
	err error
}

func (s *failingDeleteStore) DeleteItem(ctx context.Context, id string) error {
	return s.err
}

func TestDeleteStoreOutageStaysRetryable(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.pipeline.Ingest(ctx, romaine(), ChangeCreated))

	down := &failingDeleteStore{Store: f.store, err: errs.New(errs.ErrCodeStoreUnavailable, "store down", nil)}
	broken := NewPipeline(down, f.lexical, f.vectors, f.embedder, Config{}, nil)
	err := broken.Delete(ctx, "inv_123")
	require.Error(t, err)

	// A transient outage must surface retryable so the change feed keeps the
	// delete event for redelivery instead of quarantining it.
	assert.True(t, errs.IsRetryable(err))
	assert.Equal(t, errs.ErrCodeStoreUnavailable, errs.GetCode(err))
	assert.Equal(t, []string{"inv_123"}, broken.InconsistentIDs())

	// Indexes no longer serve the item even though the store still has it.
	assert.Empty(t, f.lexical.Lookup("romaine", 5))
}

func TestDeleteStoreCorruptionFlagsInconsistency(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.pipeline.Ingest(ctx, romaine(), ChangeCreated))

	corrupt := &failingDeleteStore{Store: f.store, err: errs.New(errs.ErrCodeStoreCorrupt, "database disk image is malformed", nil)}
	broken := NewPipeline(corrupt, f.lexical, f.vectors, f.embedder, Config{}, nil)
	err := broken.Delete(ctx, "inv_123")
	require.Error(t, err)
	assert.False(t, errs.IsRetryable(err))
	assert.Equal(t, errs.ErrCodeIndexInconsistency, errs.GetCode(err))
	assert.Equal(t, []string{"inv_123"}, broken.InconsistentIDs())
}

func TestRebuildFromStore(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.PutItem(ctx, romaine()))
	require.NoError(t, f.store.PutItem(ctx, &catalog.Item{ID: "inv_2", Name: "Iceberg Lettuce", OnHandQty: 1, LastCost: 3}))

	// A lexical entry with no store row must be pruned.
	f.lexical.Put("inv_gone", "Ghost Item")

	require.NoError(t, f.pipeline.Rebuild(ctx))

	assert.Equal(t, 2, f.lexical.Len())
	assert.True(t, f.vectors.Has("inv_123"))
	assert.True(t, f.vectors.Has("inv_2"))
	assert.False(t, f.lexical.Has("inv_gone"))
	assert.Empty(t, f.pipeline.InconsistentIDs())
}

func TestRebuildEmbedsPendingItemsInOneBatch(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.PutItem(ctx, romaine()))
	require.NoError(t, f.store.PutItem(ctx, &catalog.Item{ID: "inv_2", Name: "Iceberg Lettuce", OnHandQty: 1, LastCost: 3}))
	require.NoError(t, f.store.PutItem(ctx, &catalog.Item{ID: "inv_3", Name: "Green Cabbage", OnHandQty: 2, LastCost: 2}))

	require.NoError(t, f.pipeline.Rebuild(ctx))

	// All missing vectors travel in a single provider round trip.
	assert.Equal(t, int64(1), f.embedder.calls.Load())
	assert.True(t, f.vectors.Has("inv_123"))
	assert.True(t, f.vectors.Has("inv_2"))
	assert.True(t, f.vectors.Has("inv_3"))
	assert.Empty(t, f.pipeline.StaleIDs())
}

func TestRebuildBatchFailureFlagsAllPendingStale(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.PutItem(ctx, romaine()))
	require.NoError(t, f.store.PutItem(ctx, &catalog.Item{ID: "inv_2", Name: "Iceberg Lettuce", OnHandQty: 1, LastCost: 3}))

	f.embedder.failing.Store(true)
	require.NoError(t, f.pipeline.Rebuild(ctx))

	// Lexical search keeps working; the vectors wait for RetryStale.
	assert.Equal(t, 2, f.lexical.Len())
	assert.False(t, f.vectors.Has("inv_123"))
	assert.Equal(t, []string{"inv_123", "inv_2"}, f.pipeline.StaleIDs())

	f.embedder.failing.Store(false)
	require.NoError(t, f.pipeline.RetryStale(ctx))
	assert.Empty(t, f.pipeline.StaleIDs())
	assert.True(t, f.vectors.Has("inv_123"))
	assert.True(t, f.vectors.Has("inv_2"))
}

func TestRebuildSkipsFreshEmbeddings(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.pipeline.Ingest(ctx, romaine(), ChangeCreated))
	calls := f.embedder.calls.Load()

	require.NoError(t, f.pipeline.Rebuild(ctx))
	assert.Equal(t, calls, f.embedder.calls.Load())
}
