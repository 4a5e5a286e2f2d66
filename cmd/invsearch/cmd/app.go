package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/restocker/invsearch/internal/catalog"
	"github.com/restocker/invsearch/internal/config"
	"github.com/restocker/invsearch/internal/embed"
	"github.com/restocker/invsearch/internal/index"
	"github.com/restocker/invsearch/internal/ingest"
	"github.com/restocker/invsearch/internal/logging"
	"github.com/restocker/invsearch/internal/search"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *catalog.SQLiteStore
	lexical  *index.LexicalIndex
	vectors  index.VectorIndex
	embedder embed.Embedder
	pipeline *ingest.Pipeline
	engine   *search.Engine

	lock       *embed.DataLock
	logCleanup func()
}

// openApp loads config, sets up logging, locks the data directory, opens the
// catalog, restores the vector snapshot, and rebuilds the in-memory lexical
// index from the store.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, logCleanup, err := logging.Setup(logging.Config{
		Level:    cfg.Logging.Level,
		FilePath: cfg.Logging.FilePath,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, logCleanup: logCleanup}

	a.lock = embed.NewDataLock(cfg.Paths.DataDir)
	acquired, err := a.lock.TryLock()
	if err != nil {
		a.close()
		return nil, err
	}
	if !acquired {
		a.close()
		return nil, errors.New("data directory is locked by another invsearch process")
	}

	a.store, err = catalog.OpenSQLite(cfg.CatalogPath())
	if err != nil {
		a.close()
		return nil, err
	}

	a.lexical = index.NewLexicalIndex()
	switch cfg.Vector.Backend {
	case config.VectorBackendHNSW:
		a.vectors = index.NewHNSWIndex(index.HNSWConfig{M: cfg.Vector.M, EfSearch: cfg.Vector.EfSearch})
	default:
		a.vectors = index.NewFlatIndex()
	}
	if _, statErr := os.Stat(cfg.VectorSnapshotPath()); statErr == nil {
		if err := a.vectors.Load(cfg.VectorSnapshotPath()); err != nil {
			logger.Warn("vector snapshot unusable, re-embedding from catalog",
				slog.String("path", cfg.VectorSnapshotPath()),
				slog.String("error", err.Error()))
		}
	}

	a.embedder = newEmbedder(cfg)

	retry := embed.DefaultRetryConfig()
	retry.MaxRetries = cfg.Embeddings.MaxRetries
	a.pipeline = ingest.NewPipeline(a.store, a.lexical, a.vectors, a.embedder, ingest.Config{
		EmbedTimeout: cfg.Embeddings.Timeout.Std(),
		Retry:        retry,
	}, logger)

	if err := a.pipeline.Rebuild(ctx); err != nil {
		a.close()
		return nil, err
	}

	a.engine = search.NewEngine(a.store, a.lexical, a.vectors, a.embedder, search.Config{
		Alpha:        cfg.Search.Alpha,
		MaxLimit:     cfg.Search.MaxLimit,
		EmbedTimeout: cfg.Search.EmbedTimeout.Std(),
	}, logger)

	return a, nil
}

func newEmbedder(cfg *config.Config) embed.Embedder {
	var inner embed.Embedder
	switch cfg.Embeddings.Provider {
	case config.ProviderHTTP:
		inner = embed.NewHTTPEmbedder(embed.HTTPConfig{
			Host:       cfg.Embeddings.Host,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			Timeout:    cfg.Embeddings.Timeout.Std(),
		})
	default:
		inner = embed.NewStaticEmbedder()
	}
	return embed.NewCachedEmbedder(inner, cfg.Embeddings.CacheSize)
}

// close releases everything openApp acquired, persisting the vector snapshot
// first so the next start skips re-embedding.
func (a *app) close() {
	if a.vectors != nil && a.vectors.Len() > 0 {
		if err := a.vectors.Save(a.cfg.VectorSnapshotPath()); err != nil {
			a.logger.Warn("save vector snapshot failed", slog.String("error", err.Error()))
		}
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.lock != nil {
		_ = a.lock.Unlock()
	}
	if a.logCleanup != nil {
		a.logCleanup()
	}
}
