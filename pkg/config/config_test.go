package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "fallback", cfg.Embedding.Provider)
	assert.Equal(t, 8, cfg.Index.ReducedDims)
	assert.Equal(t, 16, cfg.Index.Bits)
	assert.Equal(t, 72*time.Hour, cfg.Memory.HalfLife)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  backend: memory
  node_cache_size: 128
index:
  reduced_dims: 4
  bits: 16
suggest:
  semantic_threshold: 0.9
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 128, cfg.Storage.NodeCacheSize)
	assert.Equal(t, 4, cfg.Index.ReducedDims)
	assert.Equal(t, 0.9, cfg.Suggest.SemanticThreshold)
	// Unset sections keep defaults.
	assert.Equal(t, 0.7, cfg.Memory.Alpha)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: memory\n"), 0o644))

	t.Setenv("YGGDRASIL_STORAGE_BACKEND", "badger")
	t.Setenv("YGGDRASIL_DATA_DIR", "/tmp/ygg-test")
	t.Setenv("YGGDRASIL_SEARCH_OVERSCAN", "9")
	t.Setenv("YGGDRASIL_MEMORY_HALF_LIFE", "24h")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/ygg-test", cfg.Storage.DataDir)
	assert.Equal(t, 9, cfg.Search.Overscan)
	assert.Equal(t, 24*time.Hour, cfg.Memory.HalfLife)
}

func TestEnvBadValuesKeepDefaults(t *testing.T) {
	t.Setenv("YGGDRASIL_SEARCH_OVERSCAN", "not-a-number")
	t.Setenv("YGGDRASIL_SYNC_WRITES", "maybe")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Search.Overscan)
	assert.False(t, cfg.Storage.SyncWrites)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "grpc" }},
		{"http without base url", func(c *Config) { c.Embedding.Provider = "http" }},
		{"geometry overflow", func(c *Config) { c.Index.ReducedDims = 16; c.Index.Bits = 16 }},
		{"zero dims", func(c *Config) { c.Index.ReducedDims = 0 }},
		{"stale fraction out of range", func(c *Config) { c.Index.StaleFraction = 1.5 }},
		{"negative memory weight", func(c *Config) { c.Memory.Alpha = -1 }},
		{"zero half-life", func(c *Config) { c.Memory.HalfLife = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestStringRedactsAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Embedding.APIKey = "sk-secret"
	out := cfg.String()
	assert.NotContains(t, out, "sk-secret")
	assert.Contains(t, out, "api_key=****")
}

func TestValidateHTTPWithBaseURL(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Provider = "http"
	cfg.Embedding.BaseURL = "http://localhost:11434/v1"
	assert.NoError(t, cfg.Validate())
}
