package search

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/restocker/invsearch/internal/catalog"
	"github.com/restocker/invsearch/internal/embed"
	errs "github.com/restocker/invsearch/internal/errors"
	"github.com/restocker/invsearch/internal/index"
)

// candidateFactor widens the per-index candidate pool beyond the requested
// limit so fusion can reorder across sources before truncating.
const candidateFactor = 2

// Engine executes search requests against the shared indexes. It holds
// read-only access; only the ingestion pipeline mutates index state.
type Engine struct {
	store    catalog.Store
	lexical  *index.LexicalIndex
	vectors  index.VectorIndex
	embedder embed.Embedder
	fuser    fuser
	cfg      Config
	logger   *slog.Logger
}

// NewEngine wires the query engine. The logger may be nil.
func NewEngine(store catalog.Store, lexical *index.LexicalIndex, vectors index.VectorIndex, embedder embed.Embedder, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = DefaultConfig().Alpha
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultConfig().MaxLimit
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = DefaultConfig().EmbedTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		lexical:  lexical,
		vectors:  vectors,
		embedder: embedder,
		fuser:    fuser{alpha: cfg.Alpha},
		cfg:      cfg,
		logger:   logger,
	}
}

// Search validates the request, runs the selected index lookups, fuses, and
// enriches the ranked hits from the catalog.
//
// Embedding failures never fail the request: semantic and hybrid queries
// degrade to keyword-only, reported via EffectiveMode and Degraded. An
// over-large limit is clamped and reported via EffectiveLimit.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errs.New(errs.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	mode, err := ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		return nil, errs.New(errs.ErrCodeInvalidLimit, "limit must be positive", nil).
			WithDetail("limit", strconv.Itoa(req.Limit))
	}
	limit := req.Limit
	if limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}

	effectiveMode := mode
	depth := limit * candidateFactor

	var (
		lexHits []index.LexicalHit
		semHits []index.VectorHit
	)

	switch mode {
	case ModeKeyword:
		lexHits = e.lexical.Lookup(req.Query, depth)

	case ModeSemantic, ModeHybrid:
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			lexHits = e.lexical.Lookup(req.Query, depth)
			return nil
		})

		var semErr error
		g.Go(func() error {
			semHits, semErr = e.semanticLookup(gctx, req.Query, depth)
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if semErr != nil {
			e.logger.Warn("semantic lookup unavailable, degrading to keyword",
				slog.String("mode", string(mode)),
				slog.String("error", semErr.Error()))
			effectiveMode = ModeKeyword
			semHits = nil
		}
	}

	fused := e.fuser.fuse(lexHits, semHits, effectiveMode, limit)

	results, err := e.enrich(ctx, fused)
	if err != nil {
		return nil, err
	}

	return &Response{
		Results:        results,
		EffectiveMode:  effectiveMode,
		EffectiveLimit: limit,
		Degraded:       effectiveMode != mode,
	}, nil
}

// semanticLookup embeds the query under the configured timeout and reads the
// vector index.
func (e *Engine) semanticLookup(ctx context.Context, query string, depth int) ([]index.VectorHit, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.EmbedTimeout)
	defer cancel()

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return e.vectors.Lookup(vec, depth)
}

// enrich resolves ranked IDs to response rows. Items deleted since the index
// read are skipped rather than failing the request.
func (e *Engine) enrich(ctx context.Context, hits []fusedHit) ([]Result, error) {
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		item, err := e.store.GetItem(ctx, h.id)
		if err != nil {
			return nil, err
		}
		if item == nil {
			e.logger.Debug("dropping hit for deleted item", slog.String("id", h.id))
			continue
		}
		results = append(results, Result{
			ID:        item.ID,
			Name:      item.Name,
			Unit:      item.Unit,
			OnHandQty: item.OnHandQty,
			LastCost:  item.LastCost,
			Score:     h.score,
			Origins:   h.origins,
		})
	}
	return results, nil
}

// Stats aggregates catalog totals with current index sizes.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	catStats, err := e.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		ItemCount:     catStats.ItemCount,
		VendorCount:   catStats.VendorCount,
		TotalValue:    catStats.TotalValue,
		Categories:    catStats.Categories,
		IndexedItems:  e.lexical.Len(),
		EmbeddedItems: e.vectors.Len(),
	}, nil
}
