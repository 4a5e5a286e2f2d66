// Package config loads and validates invsearch configuration.
//
// Configuration sources, in increasing priority:
//  1. Built-in defaults
//  2. YAML config file (default: <data_dir>/config.yaml)
//  3. Environment variables (INVSEARCH_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	errs "github.com/restocker/invsearch/internal/errors"
)

// Vector index backends.
const (
	VectorBackendFlat = "flat"
	VectorBackendHNSW = "hnsw"
)

// Embedding providers.
const (
	ProviderHTTP   = "http"
	ProviderStatic = "static"
)

// Duration is a time.Duration that additionally unmarshals from YAML strings
// like "2s" or "500ms".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Config represents the complete invsearch configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Paths      PathsConfig      `yaml:"paths"`
	Search     SearchConfig     `yaml:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Vector     VectorConfig     `yaml:"vector"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PathsConfig configures on-disk locations.
type PathsConfig struct {
	// DataDir holds the catalog database and vector snapshot.
	DataDir string `yaml:"data_dir"`

	// SpoolDir is the change-feed spool directory watched for item events.
	SpoolDir string `yaml:"spool_dir"`
}

// SearchConfig configures hybrid search parameters.
type SearchConfig struct {
	// Alpha is the lexical weight in hybrid fusion (0.0-1.0).
	// score = alpha*lexical + (1-alpha)*semantic. Default: 0.5.
	Alpha float64 `yaml:"alpha"`

	// DefaultLimit is the result limit when the caller does not set one.
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit caps the result limit; larger requests are clamped and the
	// effective limit is reported in the response.
	MaxLimit int `yaml:"max_limit"`

	// EmbedTimeout bounds the query-time embedding call. On timeout the
	// request degrades to keyword-only results.
	EmbedTimeout Duration `yaml:"embed_timeout"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "http" (Ollama-compatible API) or
	// "static" (deterministic hash embedder, offline fallback).
	Provider string `yaml:"provider"`

	Host       string   `yaml:"host"`
	Model      string   `yaml:"model"`
	Dimensions int      `yaml:"dimensions"`
	Timeout    Duration `yaml:"timeout"`
	MaxRetries int      `yaml:"max_retries"`
	CacheSize  int      `yaml:"cache_size"`
}

// VectorConfig configures the vector index backend.
type VectorConfig struct {
	// Backend selects "flat" (exhaustive scan, reference behavior) or
	// "hnsw" (approximate, recall-tested against flat).
	Backend string `yaml:"backend"`

	// M is HNSW max connections per layer.
	M int `yaml:"m"`

	// EfSearch is HNSW query-time search width.
	EfSearch int `yaml:"ef_search"`
}

// IngestConfig configures the change-feed consumer.
type IngestConfig struct {
	// Workers is the size of the ingestion worker pool.
	Workers int `yaml:"workers"`

	// DebounceWindow coalesces rapid spool events for the same file.
	DebounceWindow Duration `yaml:"debounce_window"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// New returns a Config populated with defaults.
func New() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".invsearch")

	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir:  dataDir,
			SpoolDir: filepath.Join(dataDir, "spool"),
		},
		Search: SearchConfig{
			Alpha:        0.5,
			DefaultLimit: 20,
			MaxLimit:     100,
			EmbedTimeout: Duration(5 * time.Second),
		},
		Embeddings: EmbeddingsConfig{
			Provider:   ProviderStatic,
			Host:       "http://localhost:11434",
			Model:      "nomic-embed-text",
			Timeout:    Duration(30 * time.Second),
			MaxRetries: 3,
			CacheSize:  1000,
		},
		Vector: VectorConfig{
			Backend:  VectorBackendFlat,
			M:        16,
			EfSearch: 48,
		},
		Ingest: IngestConfig{
			Workers:        4,
			DebounceWindow: Duration(200 * time.Millisecond),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the config file location used when no --config flag is
// given: config.yaml inside the data directory, honoring the same
// INVSEARCH_DATA_DIR override that applyEnv applies.
func DefaultPath() string {
	dataDir := os.Getenv("INVSEARCH_DATA_DIR")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".invsearch")
	}
	return filepath.Join(dataDir, "config.yaml")
}

// Load reads configuration from the given YAML file, applying defaults for
// missing fields and environment overrides on top. An empty path falls back
// to DefaultPath. A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errs.Wrap(err, errs.ErrCodeConfigNotFound, "read config file")
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.New(errs.ErrCodeConfigInvalid,
			fmt.Sprintf("parse %s: %v", path, err), err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv applies INVSEARCH_* environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("INVSEARCH_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("INVSEARCH_SPOOL_DIR"); v != "" {
		c.Paths.SpoolDir = v
	}
	if v := os.Getenv("INVSEARCH_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.Alpha = f
		}
	}
	if v := os.Getenv("INVSEARCH_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("INVSEARCH_EMBED_HOST"); v != "" {
		c.Embeddings.Host = v
	}
	if v := os.Getenv("INVSEARCH_VECTOR_BACKEND"); v != "" {
		c.Vector.Backend = v
	}
	if v := os.Getenv("INVSEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Search.Alpha < 0 || c.Search.Alpha > 1 {
		return errs.New(errs.ErrCodeConfigInvalid,
			fmt.Sprintf("search.alpha must be in [0,1], got %v", c.Search.Alpha), nil)
	}
	if c.Search.DefaultLimit <= 0 {
		return errs.New(errs.ErrCodeConfigInvalid, "search.default_limit must be positive", nil)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return errs.New(errs.ErrCodeConfigInvalid, "search.max_limit must be >= search.default_limit", nil)
	}
	switch c.Embeddings.Provider {
	case ProviderHTTP, ProviderStatic:
	default:
		return errs.New(errs.ErrCodeConfigInvalid,
			fmt.Sprintf("embeddings.provider must be %q or %q, got %q",
				ProviderHTTP, ProviderStatic, c.Embeddings.Provider), nil)
	}
	switch c.Vector.Backend {
	case VectorBackendFlat, VectorBackendHNSW:
	default:
		return errs.New(errs.ErrCodeConfigInvalid,
			fmt.Sprintf("vector.backend must be %q or %q, got %q",
				VectorBackendFlat, VectorBackendHNSW, c.Vector.Backend), nil)
	}
	if c.Ingest.Workers <= 0 {
		return errs.New(errs.ErrCodeConfigInvalid, "ingest.workers must be positive", nil)
	}
	return nil
}

// CatalogPath returns the path to the catalog SQLite database.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Paths.DataDir, "catalog.db")
}

// VectorSnapshotPath returns the path to the vector index snapshot.
func (c *Config) VectorSnapshotPath() string {
	return filepath.Join(c.Paths.DataDir, "vectors.idx")
}
