package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, 0.5, cfg.Search.Alpha)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, 100, cfg.Search.MaxLimit)
	assert.Equal(t, VectorBackendFlat, cfg.Vector.Backend)
	assert.Equal(t, ProviderStatic, cfg.Embeddings.Provider)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Search.Alpha)
}

func TestLoad_YAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
version: 1
search:
  alpha: 0.7
  default_limit: 10
  max_limit: 50
  embed_timeout: 2s
vector:
  backend: hnsw
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.Search.Alpha)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 50, cfg.Search.MaxLimit)
	assert.Equal(t, 2*time.Second, cfg.Search.EmbedTimeout.Std())
	assert.Equal(t, VectorBackendHNSW, cfg.Vector.Backend)
	// Untouched fields keep defaults
	assert.Equal(t, ProviderStatic, cfg.Embeddings.Provider)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("INVSEARCH_DATA_DIR", t.TempDir())
	t.Setenv("INVSEARCH_ALPHA", "0.25")
	t.Setenv("INVSEARCH_VECTOR_BACKEND", "hnsw")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.25, cfg.Search.Alpha)
	assert.Equal(t, VectorBackendHNSW, cfg.Vector.Backend)
}

func TestDefaultPath_HonorsDataDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("INVSEARCH_DATA_DIR", dir)

	assert.Equal(t, filepath.Join(dir, "config.yaml"), DefaultPath())
}

func TestLoad_EmptyPathReadsDataDirConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("INVSEARCH_DATA_DIR", dir)
	content := "search:\n  alpha: 0.8\n  default_limit: 15\n  max_limit: 60\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.Search.Alpha)
	assert.Equal(t, 15, cfg.Search.DefaultLimit)
	// The data_dir override still applies to paths.
	assert.Equal(t, dir, cfg.Paths.DataDir)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"alpha above one", func(c *Config) { c.Search.Alpha = 1.5 }},
		{"alpha negative", func(c *Config) { c.Search.Alpha = -0.1 }},
		{"zero default limit", func(c *Config) { c.Search.DefaultLimit = 0 }},
		{"max below default", func(c *Config) { c.Search.MaxLimit = 5 }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "quantum" }},
		{"unknown backend", func(c *Config) { c.Vector.Backend = "kdtree" }},
		{"zero workers", func(c *Config) { c.Ingest.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  embed_timeout: soon\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
