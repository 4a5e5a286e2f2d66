package index

import (
	"math"
	"math/rand"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/restocker/invsearch/internal/errors"
)

func TestFlatLookupOrdersBySimilarity(t *testing.T) {
	idx := NewFlatIndex()
	require.NoError(t, idx.Put("inv_far", []float32{0, 1, 0}))
	require.NoError(t, idx.Put("inv_near", []float32{1, 0.1, 0}))
	require.NoError(t, idx.Put("inv_exact", []float32{2, 0, 0}))

	hits, err := idx.Lookup([]float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "inv_exact", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, "inv_near", hits[1].ID)
	assert.Equal(t, "inv_far", hits[2].ID)
	assert.InDelta(t, 0.0, hits[2].Similarity, 1e-6)
}

func TestFlatLookupTieBreakByID(t *testing.T) {
	idx := NewFlatIndex()
	// Identical vectors produce identical similarities.
	require.NoError(t, idx.Put("inv_b", []float32{1, 1}))
	require.NoError(t, idx.Put("inv_a", []float32{1, 1}))
	require.NoError(t, idx.Put("inv_c", []float32{2, 2}))

	hits, err := idx.Lookup([]float32{1, 1}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "inv_a", hits[0].ID)
	assert.Equal(t, "inv_b", hits[1].ID)
	assert.Equal(t, "inv_c", hits[2].ID)
}

func TestFlatDimensionMismatch(t *testing.T) {
	idx := NewFlatIndex()
	require.NoError(t, idx.Put("inv_1", []float32{1, 0, 0}))

	err := idx.Put("inv_2", []float32{1, 0})
	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeDimensionMismatch, errs.GetCode(err))

	_, err = idx.Lookup([]float32{1, 0}, 5)
	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeDimensionMismatch, errs.GetCode(err))
}

func TestFlatZeroNormExcluded(t *testing.T) {
	idx := NewFlatIndex()
	require.NoError(t, idx.Put("inv_zero", []float32{0, 0, 0}))
	require.NoError(t, idx.Put("inv_ok", []float32{1, 0, 0}))

	hits, err := idx.Lookup([]float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "inv_ok", hits[0].ID)

	// A zero query cannot be ranked against anything.
	hits, err = idx.Lookup([]float32{0, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFlatPutReplacesAndDelete(t *testing.T) {
	idx := NewFlatIndex()
	require.NoError(t, idx.Put("inv_1", []float32{0, 1}))
	require.NoError(t, idx.Put("inv_1", []float32{1, 0}))
	assert.Equal(t, 1, idx.Len())

	hits, err := idx.Lookup([]float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)

	idx.Delete("inv_1")
	assert.Zero(t, idx.Len())
	assert.False(t, idx.Has("inv_1"))
	idx.Delete("inv_1") // no-op
}

func TestFlatSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.idx")

	idx := NewFlatIndex()
	require.NoError(t, idx.Put("inv_1", []float32{1, 0, 0}))
	require.NoError(t, idx.Put("inv_2", []float32{0, 1, 0}))
	require.NoError(t, idx.Save(path))

	restored := NewFlatIndex()
	require.NoError(t, restored.Load(path))
	assert.Equal(t, 2, restored.Len())

	want, err := idx.Lookup([]float32{1, 0.2, 0}, 10)
	require.NoError(t, err)
	got, err := restored.Lookup([]float32{1, 0.2, 0}, 10)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHNSWBasicLookup(t *testing.T) {
	idx := NewHNSWIndex(HNSWConfig{})
	require.NoError(t, idx.Put("inv_x", []float32{1, 0, 0}))
	require.NoError(t, idx.Put("inv_y", []float32{0, 1, 0}))

	hits, err := idx.Lookup([]float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "inv_x", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-5)
}

func TestHNSWDeleteIsLazy(t *testing.T) {
	idx := NewHNSWIndex(HNSWConfig{})
	require.NoError(t, idx.Put("inv_1", []float32{1, 0}))
	require.NoError(t, idx.Put("inv_2", []float32{0, 1}))

	idx.Delete("inv_1")
	assert.False(t, idx.Has("inv_1"))
	assert.Equal(t, 1, idx.Len())

	hits, err := idx.Lookup([]float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "inv_2", hits[0].ID)
}

func TestHNSWEmptyLookup(t *testing.T) {
	idx := NewHNSWIndex(HNSWConfig{})
	hits, err := idx.Lookup([]float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestHNSWSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	idx := NewHNSWIndex(HNSWConfig{})
	require.NoError(t, idx.Put("inv_1", []float32{1, 0, 0}))
	require.NoError(t, idx.Put("inv_2", []float32{0, 1, 0}))
	require.NoError(t, idx.Save(path))

	restored := NewHNSWIndex(HNSWConfig{})
	require.NoError(t, restored.Load(path))
	assert.Equal(t, 2, restored.Len())

	hits, err := restored.Lookup([]float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "inv_1", hits[0].ID)
}

// TestHNSWRecallAgainstExhaustive holds the approximate backend to a recall
// floor of 0.95 against the exhaustive flat index.
func TestHNSWRecallAgainstExhaustive(t *testing.T) {
	const (
		dims    = 16
		items   = 300
		queries = 20
		k       = 10
	)
	rng := rand.New(rand.NewSource(42))
	randVec := func() []float32 {
		v := make([]float32, dims)
		for i := range v {
			v[i] = float32(rng.NormFloat64())
		}
		return v
	}

	flat := NewFlatIndex()
	approx := NewHNSWIndex(HNSWConfig{M: 16, EfSearch: 64})
	for i := 0; i < items; i++ {
		id := "inv_" + strconv.Itoa(i)
		vec := randVec()
		require.NoError(t, flat.Put(id, vec))
		require.NoError(t, approx.Put(id, vec))
	}

	var found, total int
	for q := 0; q < queries; q++ {
		query := randVec()

		truth, err := flat.Lookup(query, k)
		require.NoError(t, err)
		got, err := approx.Lookup(query, k)
		require.NoError(t, err)

		truthSet := make(map[string]bool, len(truth))
		for _, h := range truth {
			truthSet[h.ID] = true
		}
		for _, h := range got {
			if truthSet[h.ID] {
				found++
			}
		}
		total += len(truth)
	}

	recall := float64(found) / float64(total)
	assert.GreaterOrEqual(t, recall, 0.95, "recall %f below floor", recall)
}

func TestVectorNorm(t *testing.T) {
	assert.InDelta(t, 5.0, vectorNorm([]float32{3, 4}), 1e-9)
	assert.Zero(t, vectorNorm([]float32{0, 0}))
	assert.InDelta(t, math.Sqrt(3), vectorNorm([]float32{1, 1, 1}), 1e-6)
}
