// Package config loads engine configuration from environment variables
// (YGGDRASIL_* prefix) or a YAML file, with environment taking precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Suggest   SuggestConfig   `yaml:"suggest"`
	Memory    MemoryConfig    `yaml:"memory"`
}

// StorageConfig selects and tunes the persistence backend.
type StorageConfig struct {
	// Backend is "badger" or "memory".
	Backend string `yaml:"backend"`
	// DataDir is the badger database directory.
	DataDir string `yaml:"data_dir"`
	// SyncWrites forces fsync on every write.
	SyncWrites bool `yaml:"sync_writes"`
	// NodeCacheSize bounds the hot-node LRU cache.
	NodeCacheSize int `yaml:"node_cache_size"`
}

// EmbeddingConfig selects the provider.
type EmbeddingConfig struct {
	// Provider is "http" or "fallback".
	Provider   string        `yaml:"provider"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	EmbedModel string        `yaml:"embed_model"`
	GenModel   string        `yaml:"gen_model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

// IndexConfig tunes the spatial index geometry.
type IndexConfig struct {
	ReducedDims   int     `yaml:"reduced_dims"`
	Bits          int     `yaml:"bits"`
	MinSampleSize int     `yaml:"min_sample_size"`
	StaleFraction float64 `yaml:"stale_fraction"`
}

// SearchConfig tunes retrieval.
type SearchConfig struct {
	Overscan      int `yaml:"overscan"`
	MaxConcurrent int `yaml:"max_concurrent"`
}

// SuggestConfig tunes link suggestion.
type SuggestConfig struct {
	SemanticThreshold float64 `yaml:"semantic_threshold"`
	ContextWindow     int     `yaml:"context_window"`
}

// MemoryConfig tunes the interaction memory.
type MemoryConfig struct {
	Alpha           float64       `yaml:"alpha"`
	Beta            float64       `yaml:"beta"`
	HalfLife        time.Duration `yaml:"half_life"`
	MaxInteractions int           `yaml:"max_interactions"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:       "badger",
			DataDir:       "./data",
			NodeCacheSize: 4096,
		},
		Embedding: EmbeddingConfig{
			Provider:   "fallback",
			Dimensions: 512,
			Timeout:    10 * time.Second,
		},
		Index: IndexConfig{
			ReducedDims:   8,
			Bits:          16,
			MinSampleSize: 8,
			StaleFraction: 0.2,
		},
		Search: SearchConfig{
			Overscan:      4,
			MaxConcurrent: 8,
		},
		Suggest: SuggestConfig{
			SemanticThreshold: 0.78,
			ContextWindow:     50,
		},
		Memory: MemoryConfig{
			Alpha:           0.7,
			Beta:            0.3,
			HalfLife:        72 * time.Hour,
			MaxInteractions: 1000,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then YGGDRASIL_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv builds the configuration from defaults plus environment only.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("YGGDRASIL_CONFIG"))
}

func (c *Config) applyEnv() {
	c.Storage.Backend = getEnv("YGGDRASIL_STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.DataDir = getEnv("YGGDRASIL_DATA_DIR", c.Storage.DataDir)
	c.Storage.SyncWrites = getEnvBool("YGGDRASIL_SYNC_WRITES", c.Storage.SyncWrites)
	c.Storage.NodeCacheSize = getEnvInt("YGGDRASIL_NODE_CACHE_SIZE", c.Storage.NodeCacheSize)

	c.Embedding.Provider = getEnv("YGGDRASIL_EMBED_PROVIDER", c.Embedding.Provider)
	c.Embedding.BaseURL = getEnv("YGGDRASIL_EMBED_BASE_URL", c.Embedding.BaseURL)
	c.Embedding.APIKey = getEnv("YGGDRASIL_EMBED_API_KEY", c.Embedding.APIKey)
	c.Embedding.EmbedModel = getEnv("YGGDRASIL_EMBED_MODEL", c.Embedding.EmbedModel)
	c.Embedding.GenModel = getEnv("YGGDRASIL_GEN_MODEL", c.Embedding.GenModel)
	c.Embedding.Dimensions = getEnvInt("YGGDRASIL_EMBED_DIMENSIONS", c.Embedding.Dimensions)
	c.Embedding.Timeout = getEnvDuration("YGGDRASIL_EMBED_TIMEOUT", c.Embedding.Timeout)

	c.Index.ReducedDims = getEnvInt("YGGDRASIL_INDEX_REDUCED_DIMS", c.Index.ReducedDims)
	c.Index.Bits = getEnvInt("YGGDRASIL_INDEX_BITS", c.Index.Bits)
	c.Index.MinSampleSize = getEnvInt("YGGDRASIL_INDEX_MIN_SAMPLE", c.Index.MinSampleSize)
	c.Index.StaleFraction = getEnvFloat("YGGDRASIL_INDEX_STALE_FRACTION", c.Index.StaleFraction)

	c.Search.Overscan = getEnvInt("YGGDRASIL_SEARCH_OVERSCAN", c.Search.Overscan)
	c.Search.MaxConcurrent = getEnvInt("YGGDRASIL_SEARCH_MAX_CONCURRENT", c.Search.MaxConcurrent)

	c.Suggest.SemanticThreshold = getEnvFloat("YGGDRASIL_SUGGEST_THRESHOLD", c.Suggest.SemanticThreshold)
	c.Suggest.ContextWindow = getEnvInt("YGGDRASIL_SUGGEST_CONTEXT_WINDOW", c.Suggest.ContextWindow)

	c.Memory.Alpha = getEnvFloat("YGGDRASIL_MEMORY_ALPHA", c.Memory.Alpha)
	c.Memory.Beta = getEnvFloat("YGGDRASIL_MEMORY_BETA", c.Memory.Beta)
	c.Memory.HalfLife = getEnvDuration("YGGDRASIL_MEMORY_HALF_LIFE", c.Memory.HalfLife)
	c.Memory.MaxInteractions = getEnvInt("YGGDRASIL_MEMORY_MAX_INTERACTIONS", c.Memory.MaxInteractions)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "badger", "memory":
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Embedding.Provider {
	case "http", "fallback":
	default:
		return fmt.Errorf("config: unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "http" && c.Embedding.BaseURL == "" {
		return fmt.Errorf("config: http embedding provider needs a base URL")
	}
	if c.Index.ReducedDims <= 0 || c.Index.Bits <= 0 {
		return fmt.Errorf("config: index geometry must be positive")
	}
	if c.Index.ReducedDims*c.Index.Bits > 128 {
		return fmt.Errorf("config: index geometry %dx%d exceeds 128 key bits",
			c.Index.ReducedDims, c.Index.Bits)
	}
	if c.Index.StaleFraction <= 0 || c.Index.StaleFraction >= 1 {
		return fmt.Errorf("config: stale fraction must be in (0, 1)")
	}
	if c.Memory.Alpha < 0 || c.Memory.Beta < 0 {
		return fmt.Errorf("config: memory weights must be non-negative")
	}
	if c.Memory.HalfLife <= 0 {
		return fmt.Errorf("config: memory half-life must be positive")
	}
	return nil
}

// String renders the configuration for logs, with the API key redacted.
func (c *Config) String() string {
	key := c.Embedding.APIKey
	if key != "" {
		key = "****"
	}
	return fmt.Sprintf(
		"storage=%s data_dir=%s provider=%s base_url=%s api_key=%s dims=%d index=%dx%d",
		c.Storage.Backend, c.Storage.DataDir,
		c.Embedding.Provider, c.Embedding.BaseURL, key,
		c.Embedding.Dimensions, c.Index.ReducedDims, c.Index.Bits)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
