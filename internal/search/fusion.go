package search

import (
	"sort"

	"github.com/restocker/invsearch/internal/index"
)

// fusedHit is an intermediate scored item before catalog enrichment.
type fusedHit struct {
	id      string
	score   float64
	origins []string
}

// fuser combines lexical and semantic hits into one deterministic ranking.
type fuser struct {
	alpha float64
}

// normalizeLexical maps raw lexical scores to [0,1] by dividing by the batch
// maximum, so the best keyword hit anchors at 1.0 regardless of query length.
func normalizeLexical(hits []index.LexicalHit) map[string]float64 {
	if len(hits) == 0 {
		return nil
	}
	max := hits[0].RawScore
	for _, h := range hits[1:] {
		if h.RawScore > max {
			max = h.RawScore
		}
	}
	if max <= 0 {
		max = 1
	}
	out := make(map[string]float64, len(hits))
	for _, h := range hits {
		out[h.ID] = h.RawScore / max
	}
	return out
}

// normalizeSemantic rescales cosine similarity from [-1,1] to [0,1].
func normalizeSemantic(sim float64) float64 {
	s := (sim + 1) / 2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// fuse ranks the hits for the given mode and truncates to limit. An item
// present in only one source keeps its weighted single-source score rather
// than being excluded. Ordering is fully deterministic: combined score
// descending, then ID ascending.
//
// Keyword mode preserves the lexical index's own ordering (which additionally
// tie-breaks on name length) and only rescales the scores.
func (f fuser) fuse(lex []index.LexicalHit, sem []index.VectorHit, mode Mode, limit int) []fusedHit {
	switch mode {
	case ModeKeyword:
		norm := normalizeLexical(lex)
		out := make([]fusedHit, 0, len(lex))
		for _, h := range lex {
			out = append(out, fusedHit{id: h.ID, score: norm[h.ID], origins: []string{"lexical"}})
		}
		return truncate(out, limit)

	case ModeSemantic:
		out := make([]fusedHit, 0, len(sem))
		for _, h := range sem {
			out = append(out, fusedHit{id: h.ID, score: normalizeSemantic(h.Similarity), origins: []string{"semantic"}})
		}
		sortHits(out)
		return truncate(out, limit)

	default: // ModeHybrid
		lexNorm := normalizeLexical(lex)

		combined := make(map[string]*fusedHit, len(lex)+len(sem))
		for id, score := range lexNorm {
			combined[id] = &fusedHit{
				id:      id,
				score:   f.alpha * score,
				origins: []string{"lexical"},
			}
		}
		for _, h := range sem {
			semScore := (1 - f.alpha) * normalizeSemantic(h.Similarity)
			if hit, ok := combined[h.ID]; ok {
				hit.score += semScore
				hit.origins = append(hit.origins, "semantic")
			} else {
				combined[h.ID] = &fusedHit{
					id:      h.ID,
					score:   semScore,
					origins: []string{"semantic"},
				}
			}
		}

		out := make([]fusedHit, 0, len(combined))
		for _, hit := range combined {
			out = append(out, *hit)
		}
		sortHits(out)
		return truncate(out, limit)
	}
}

func sortHits(hits []fusedHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
}

func truncate(hits []fusedHit, limit int) []fusedHit {
	if limit > 0 && len(hits) > limit {
		return hits[:limit]
	}
	return hits
}
