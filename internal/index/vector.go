package index

import (
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	errs "github.com/restocker/invsearch/internal/errors"
)

type vectorEntry struct {
	vector []float32
	norm   float64
}

// FlatIndex is an exhaustive-scan vector index. Every lookup computes the
// exact cosine similarity against all stored embeddings, so results are the
// ground truth the approximate backend is measured against. Norms are cached
// at insert time.
type FlatIndex struct {
	mu      sync.RWMutex
	entries map[string]*vectorEntry
	dims    int
}

var _ VectorIndex = (*FlatIndex)(nil)

// NewFlatIndex returns an empty exhaustive index. Dimensionality is fixed by
// the first inserted vector.
func NewFlatIndex() *FlatIndex {
	return &FlatIndex{entries: make(map[string]*vectorEntry)}
}

func (f *FlatIndex) Put(id string, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dims == 0 {
		f.dims = len(vector)
	} else if len(vector) != f.dims {
		return errs.New(errs.ErrCodeDimensionMismatch, "embedding dimension mismatch", nil).
			WithDetail("id", id).
			WithDetail("expected", strconv.Itoa(f.dims)).
			WithDetail("got", strconv.Itoa(len(vector)))
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	f.entries[id] = &vectorEntry{vector: vec, norm: vectorNorm(vec)}
	return nil
}

func (f *FlatIndex) Delete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, id)
}

func (f *FlatIndex) Has(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.entries[id]
	return ok
}

func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Lookup returns up to k items by descending cosine similarity, ties broken
// by ascending ID. Zero-norm embeddings are excluded rather than producing
// NaN scores.
func (f *FlatIndex) Lookup(query []float32, k int) ([]VectorHit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.dims != 0 && len(query) != f.dims {
		return nil, errs.New(errs.ErrCodeDimensionMismatch, "query dimension mismatch", nil).
			WithDetail("expected", strconv.Itoa(f.dims)).
			WithDetail("got", strconv.Itoa(len(query)))
	}

	qNorm := vectorNorm(query)
	if qNorm == 0 {
		return nil, nil
	}

	hits := make([]VectorHit, 0, len(f.entries))
	for id, e := range f.entries {
		if e.norm == 0 {
			continue
		}
		hits = append(hits, VectorHit{
			ID:         id,
			Similarity: dotProduct(query, e.vector) / (qNorm * e.norm),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})

	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

type flatSnapshot struct {
	Dims    int
	Vectors map[string][]float32
}

// Save writes the index to path via a temp file and rename.
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	snap := flatSnapshot{Dims: f.dims, Vectors: make(map[string][]float32, len(f.entries))}
	for id, e := range f.entries {
		snap.Vectors[id] = e.vector
	}
	f.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "create snapshot directory")
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "create snapshot file")
	}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		file.Close()
		os.Remove(tmp)
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "encode vector snapshot")
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "close snapshot file")
	}
	return os.Rename(tmp, path)
}

// Load replaces the index contents with the snapshot at path.
func (f *FlatIndex) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "open vector snapshot")
	}
	defer file.Close()

	var snap flatSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return errs.Wrap(err, errs.ErrCodeStoreCorrupt, "decode vector snapshot").
			WithSuggestion("delete the snapshot and rebuild the index")
	}

	entries := make(map[string]*vectorEntry, len(snap.Vectors))
	for id, vec := range snap.Vectors {
		entries[id] = &vectorEntry{vector: vec, norm: vectorNorm(vec)}
	}

	f.mu.Lock()
	f.entries = entries
	f.dims = snap.Dims
	f.mu.Unlock()
	return nil
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
