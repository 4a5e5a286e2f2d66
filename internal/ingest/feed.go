package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/panjf2000/ants/v2"

	"github.com/restocker/invsearch/internal/catalog"
	errs "github.com/restocker/invsearch/internal/errors"
)

// Event is one change-feed entry as dropped into the spool directory by the
// upstream webhook layer: a JSON file holding the item and the change kind.
type Event struct {
	Kind ChangeKind    `json:"kind"`
	Item *catalog.Item `json:"item"`
}

// FeedConfig tunes the spool watcher.
type FeedConfig struct {
	// Dir is the spool directory to watch for event files.
	Dir string

	// Workers is the size of the ingestion worker pool.
	Workers int

	// DebounceWindow coalesces rapid writes to the same spool file.
	DebounceWindow time.Duration
}

// Feed watches a spool directory and applies event files through the
// pipeline. Delivery is at-least-once: a file is removed only after its event
// applied cleanly; files that fail with retryable errors stay in the spool
// and are replayed on the next start. Malformed files are renamed aside so
// they cannot wedge the feed.
type Feed struct {
	cfg       FeedConfig
	pipeline  *Pipeline
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	pool      *ants.Pool
	logger    *slog.Logger

	wg      sync.WaitGroup
	stopped sync.Once
}

// NewFeed creates the spool feed. Start must be called to begin processing.
func NewFeed(pipeline *Pipeline, cfg FeedConfig, logger *slog.Logger) (*Feed, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrCodeInternal, "create ingestion worker pool")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		pool.Release()
		return nil, errs.Wrap(err, errs.ErrCodeInternal, "create spool watcher")
	}

	return &Feed{
		cfg:       cfg,
		pipeline:  pipeline,
		watcher:   watcher,
		debouncer: NewDebouncer(cfg.DebounceWindow),
		pool:      pool,
		logger:    logger,
	}, nil
}

// Start begins watching the spool directory. Events already present are
// replayed first, which is what makes restart-after-crash safe.
func (f *Feed) Start(ctx context.Context) error {
	if err := os.MkdirAll(f.cfg.Dir, 0o755); err != nil {
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "create spool directory")
	}
	if err := f.watcher.Add(f.cfg.Dir); err != nil {
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "watch spool directory")
	}

	entries, err := os.ReadDir(f.cfg.Dir)
	if err != nil {
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "scan spool directory")
	}
	for _, entry := range entries {
		if isEventFile(entry.Name()) {
			f.debouncer.Add(fileEvent{Path: filepath.Join(f.cfg.Dir, entry.Name()), Op: opWrite})
		}
	}

	f.wg.Add(2)
	go f.watchLoop(ctx)
	go f.dispatchLoop(ctx)
	return nil
}

func (f *Feed) watchLoop(ctx context.Context) {
	defer f.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if !isEventFile(filepath.Base(ev.Name)) {
				continue
			}
			switch {
			case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
				f.debouncer.Add(fileEvent{Path: ev.Name, Op: opWrite})
			case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
				f.debouncer.Add(fileEvent{Path: ev.Name, Op: opRemove})
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("spool watcher error", slog.String("error", err.Error()))
		}
	}
}

func (f *Feed) dispatchLoop(ctx context.Context) {
	defer f.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.debouncer.Done():
			return
		case batch, ok := <-f.debouncer.Events():
			if !ok {
				return
			}
			for _, path := range batch {
				path := path
				if err := f.pool.Submit(func() { f.process(ctx, path) }); err != nil {
					f.logger.Warn("submit to worker pool failed",
						slog.String("path", path),
						slog.String("error", err.Error()))
				}
			}
		}
	}
}

// process applies one spool file. The file is removed on success, renamed
// aside when its content can never apply, and left in place when the failure
// is retryable.
func (f *Feed) process(ctx context.Context, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return // already handled by another worker or withdrawn
		}
		f.logger.Warn("read spool file failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		f.logger.Error("malformed spool file", slog.String("path", path), slog.String("error", err.Error()))
		f.reject(path)
		return
	}

	if err := f.pipeline.Ingest(ctx, event.Item, event.Kind); err != nil {
		// A context error means shutdown or a timeout interrupted the apply, not
		// that the event is bad. Keep the file so the next start replays it.
		if errs.IsRetryable(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			f.logger.Warn("ingest failed, leaving event for redelivery",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return
		}
		f.logger.Error("ingest rejected event",
			slog.String("path", path),
			slog.String("error", err.Error()))
		f.reject(path)
		return
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		f.logger.Warn("remove applied spool file failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

func (f *Feed) reject(path string) {
	if err := os.Rename(path, path+".rejected"); err != nil {
		f.logger.Warn("quarantine spool file failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// Close stops watching and waits for in-flight workers.
func (f *Feed) Close() error {
	var err error
	f.stopped.Do(func() {
		err = f.watcher.Close()
		f.debouncer.Stop()
		f.wg.Wait()
		f.pool.Release()
	})
	return err
}

func isEventFile(name string) bool {
	return strings.HasSuffix(name, ".json")
}
