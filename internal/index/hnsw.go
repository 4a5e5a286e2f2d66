package index

import (
	"bufio"
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/coder/hnsw"

	errs "github.com/restocker/invsearch/internal/errors"
)

// HNSWConfig tunes the approximate backend. Zero values take the library's
// recommended defaults.
type HNSWConfig struct {
	M        int
	EfSearch int
}

// HNSWIndex is an approximate nearest-neighbor vector index over coder/hnsw.
// It trades exactness for sub-linear lookups on large catalogs; recall
// against the exhaustive FlatIndex is held above a floor by test.
//
// Deletions are lazy: the graph node stays behind but its ID mapping is
// dropped, so it can never surface in results. Deleting nodes outright can
// corrupt the graph when the last node is removed.
type HNSWIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	cfg   HNSWConfig
	dims  int

	idToKey map[string]uint64
	keyToID map[uint64]string
	nextKey uint64
}

var _ VectorIndex = (*HNSWIndex)(nil)

type hnswMeta struct {
	Dims    int
	IDToKey map[string]uint64
	NextKey uint64
	Config  HNSWConfig
}

// NewHNSWIndex returns an empty approximate index.
func NewHNSWIndex(cfg HNSWConfig) *HNSWIndex {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:   graph,
		cfg:     cfg,
		idToKey: make(map[string]uint64),
		keyToID: make(map[uint64]string),
	}
}

func (h *HNSWIndex) Put(id string, vector []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.dims == 0 {
		h.dims = len(vector)
	} else if len(vector) != h.dims {
		return errs.New(errs.ErrCodeDimensionMismatch, "embedding dimension mismatch", nil).
			WithDetail("id", id).
			WithDetail("expected", strconv.Itoa(h.dims)).
			WithDetail("got", strconv.Itoa(len(vector)))
	}

	if oldKey, ok := h.idToKey[id]; ok {
		delete(h.keyToID, oldKey)
		delete(h.idToKey, id)
	}

	key := h.nextKey
	h.nextKey++

	vec := make([]float32, len(vector))
	copy(vec, vector)
	h.graph.Add(hnsw.MakeNode(key, vec))

	h.idToKey[id] = key
	h.keyToID[key] = id
	return nil
}

func (h *HNSWIndex) Delete(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if key, ok := h.idToKey[id]; ok {
		delete(h.keyToID, key)
		delete(h.idToKey, id)
	}
}

func (h *HNSWIndex) Has(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.idToKey[id]
	return ok
}

func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToKey)
}

// Lookup returns up to k items by descending cosine similarity. The graph
// search is widened by the current orphan count so lazy-deleted nodes cannot
// crowd live items out of the result.
func (h *HNSWIndex) Lookup(query []float32, k int) ([]VectorHit, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.dims != 0 && len(query) != h.dims {
		return nil, errs.New(errs.ErrCodeDimensionMismatch, "query dimension mismatch", nil).
			WithDetail("expected", strconv.Itoa(h.dims)).
			WithDetail("got", strconv.Itoa(len(query)))
	}
	if len(h.idToKey) == 0 || h.graph.Len() == 0 {
		return nil, nil
	}

	orphans := h.graph.Len() - len(h.idToKey)
	nodes := h.graph.Search(query, k+orphans)

	hits := make([]VectorHit, 0, len(nodes))
	for _, node := range nodes {
		id, ok := h.keyToID[node.Key]
		if !ok {
			continue
		}
		// CosineDistance is 1 - cos, so similarity recovers exactly.
		hits = append(hits, VectorHit{
			ID:         id,
			Similarity: 1 - float64(h.graph.Distance(query, node.Value)),
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

// Save writes the graph and the ID mappings next to it (path and path.meta),
// both via temp file + rename.
func (h *HNSWIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "create snapshot directory")
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "create graph file")
	}
	if err := h.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmp)
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "export graph")
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "close graph file")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "rename graph file")
	}

	meta := hnswMeta{Dims: h.dims, IDToKey: h.idToKey, NextKey: h.nextKey, Config: h.cfg}
	metaTmp := path + ".meta.tmp"
	mf, err := os.Create(metaTmp)
	if err != nil {
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "create graph metadata file")
	}
	if err := gob.NewEncoder(mf).Encode(meta); err != nil {
		mf.Close()
		os.Remove(metaTmp)
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "encode graph metadata")
	}
	if err := mf.Close(); err != nil {
		os.Remove(metaTmp)
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "close graph metadata file")
	}
	return os.Rename(metaTmp, path+".meta")
}

// Load restores the graph and ID mappings written by Save.
func (h *HNSWIndex) Load(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	mf, err := os.Open(path + ".meta")
	if err != nil {
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "open graph metadata")
	}
	var meta hnswMeta
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		mf.Close()
		return errs.Wrap(err, errs.ErrCodeStoreCorrupt, "decode graph metadata").
			WithSuggestion("delete the snapshot and rebuild the index")
	}
	mf.Close()

	file, err := os.Open(path)
	if err != nil {
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "open graph file")
	}
	defer file.Close()

	// Import needs an io.ByteReader.
	if err := h.graph.Import(bufio.NewReader(file)); err != nil {
		return errs.Wrap(err, errs.ErrCodeStoreCorrupt, "import graph").
			WithSuggestion("delete the snapshot and rebuild the index")
	}

	h.dims = meta.Dims
	h.cfg = meta.Config
	h.idToKey = meta.IDToKey
	h.nextKey = meta.NextKey
	h.keyToID = make(map[uint64]string, len(meta.IDToKey))
	for id, key := range meta.IDToKey {
		h.keyToID[key] = id
	}
	return nil
}
