package index

// LexicalHit is one lexical match. RawScore is in (0,1] when at least one
// query token matched; the fusion layer normalizes it per batch.
type LexicalHit struct {
	ID       string
	RawScore float64
}

// VectorHit is one vector match with its raw cosine similarity in [-1,1].
type VectorHit struct {
	ID         string
	Similarity float64
}

// VectorIndex ranks items by cosine similarity to a query embedding.
// Implementations must return hits in descending similarity order with ties
// broken by ascending ID, and must be safe for concurrent use.
type VectorIndex interface {
	// Put inserts or replaces the embedding for an item. The dimensionality
	// is fixed by the first vector inserted.
	Put(id string, vector []float32) error

	// Delete removes an item. Deleting an absent item is a no-op.
	Delete(id string)

	// Lookup returns up to k nearest items to the query vector.
	Lookup(query []float32, k int) ([]VectorHit, error)

	// Has reports whether an embedding exists for the item.
	Has(id string) bool

	// Len returns the number of indexed embeddings.
	Len() int

	// Save persists the index to path, Load restores it. Both are atomic
	// with respect to crashes (temp file + rename).
	Save(path string) error
	Load(path string) error
}
