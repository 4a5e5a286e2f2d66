package index

import (
	"sort"
	"strings"
	"sync"
)

// Field weights. A token from the item name counts fully; tokens from the
// other structured fields (vendor, SKU, category, description) count less so
// that name matches dominate ranking.
const (
	weightName  = 1.0
	weightOther = 0.6

	// fuzzyDiscount applies when a query token only matched the vocabulary
	// by bounded edit distance instead of exactly or by prefix.
	fuzzyDiscount = 0.7
)

type fieldClass uint8

const (
	classOther fieldClass = iota
	className
)

func (c fieldClass) weight() float64 {
	if c == className {
		return weightName
	}
	return weightOther
}

type lexicalEntry struct {
	// tokens records which posting lists this item currently appears in,
	// so a re-index can remove stale associations first.
	tokens  map[string]fieldClass
	nameLen int
}

// LexicalIndex maps normalized tokens to the items that contain them.
// A single writer (the ingestion pipeline) and many readers (query handlers)
// may operate concurrently; each Put or Delete is atomic, so readers never
// observe a half-updated token set.
type LexicalIndex struct {
	mu       sync.RWMutex
	postings map[string]map[string]fieldClass
	items    map[string]*lexicalEntry
}

// NewLexicalIndex returns an empty lexical index.
func NewLexicalIndex() *LexicalIndex {
	return &LexicalIndex{
		postings: make(map[string]map[string]fieldClass),
		items:    make(map[string]*lexicalEntry),
	}
}

// Put indexes an item, replacing any previous version atomically. Name tokens
// are weighted above tokens from the remaining fields.
func (idx *LexicalIndex) Put(id, name string, otherFields ...string) {
	tokens := make(map[string]fieldClass)
	for _, t := range Tokenize(name) {
		tokens[t] = className
	}
	for _, field := range otherFields {
		for _, t := range Tokenize(field) {
			if _, isName := tokens[t]; !isName {
				tokens[t] = classOther
			}
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(id)

	for t, cls := range tokens {
		posting := idx.postings[t]
		if posting == nil {
			posting = make(map[string]fieldClass)
			idx.postings[t] = posting
		}
		posting[id] = cls
	}
	idx.items[id] = &lexicalEntry{tokens: tokens, nameLen: len(name)}
}

// Delete removes an item from all posting lists. Absent items are a no-op.
func (idx *LexicalIndex) Delete(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *LexicalIndex) removeLocked(id string) {
	entry, ok := idx.items[id]
	if !ok {
		return
	}
	for t := range entry.tokens {
		posting := idx.postings[t]
		delete(posting, id)
		if len(posting) == 0 {
			delete(idx.postings, t)
		}
	}
	delete(idx.items, id)
}

// Has reports whether the item is currently indexed.
func (idx *LexicalIndex) Has(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.items[id]
	return ok
}

// Len returns the number of indexed items.
func (idx *LexicalIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.items)
}

// Tokens returns the vocabulary size.
func (idx *LexicalIndex) Tokens() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.postings)
}

// IDs returns all indexed item IDs in ascending order.
func (idx *LexicalIndex) IDs() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := make([]string, 0, len(idx.items))
	for id := range idx.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup scores the indexed items against the query and returns up to limit
// hits. The raw score for an item is the sum of its per-token weights divided
// by the number of query tokens, so a full match on every token scores 1.0.
//
// Per query token the weight is the best of: 1.0 for an exact or prefix match
// on a name token, 0.6 for an exact or prefix match elsewhere, and 70% of
// either when only a fuzzy match (bounded edit distance) was found. Fuzzy
// matching is attempted only for query tokens with no exact or prefix hit
// anywhere in the vocabulary.
//
// Ordering is deterministic: score descending, then shorter item name, then
// ascending ID. A limit <= 0 means unbounded.
func (idx *LexicalIndex) Lookup(query string, limit int) []LexicalHit {
	qTokens := Tokenize(query)
	if len(qTokens) == 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	scores := make(map[string]float64)
	for _, qt := range qTokens {
		best := make(map[string]float64)
		matched := false

		for vocab, posting := range idx.postings {
			if vocab != qt && !strings.HasPrefix(vocab, qt) {
				continue
			}
			matched = true
			for id, cls := range posting {
				if w := cls.weight(); w > best[id] {
					best[id] = w
				}
			}
		}

		if !matched {
			bound := 1
			if len(qt) > 4 {
				bound = 2
			}
			for vocab, posting := range idx.postings {
				if !withinEditDistance(qt, vocab, bound) {
					continue
				}
				for id, cls := range posting {
					if w := cls.weight() * fuzzyDiscount; w > best[id] {
						best[id] = w
					}
				}
			}
		}

		for id, w := range best {
			scores[id] += w
		}
	}

	hits := make([]LexicalHit, 0, len(scores))
	for id, sum := range scores {
		hits = append(hits, LexicalHit{ID: id, RawScore: sum / float64(len(qTokens))})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].RawScore != hits[j].RawScore {
			return hits[i].RawScore > hits[j].RawScore
		}
		li, lj := idx.items[hits[i].ID].nameLen, idx.items[hits[j].ID].nameLen
		if li != lj {
			return li < lj
		}
		return hits[i].ID < hits[j].ID
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// withinEditDistance reports whether the Levenshtein distance between a and b
// is at most bound. The length pre-check and row-minimum cutoff keep the scan
// over the vocabulary cheap.
func withinEditDistance(a, b string, bound int) bool {
	la, lb := len(a), len(b)
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	if diff > bound {
		return false
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			d := prev[j-1] + cost
			if v := prev[j] + 1; v < d {
				d = v
			}
			if v := curr[j-1] + 1; v < d {
				d = v
			}
			curr[j] = d
			if d < rowMin {
				rowMin = d
			}
		}
		if rowMin > bound {
			return false
		}
		prev, curr = curr, prev
	}
	return prev[lb] <= bound
}
