package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Provider kinds understood by the model loader.
const (
	ProviderOpenAI  = "openai"
	ProviderHashing = "hashing"
)

// Config holds the cvcontext service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StoreConfig holds the default vector store target and index settings.
type StoreConfig struct {
	Target           string `yaml:"target"` // redis://, rediss://, valkey://, memory://
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`
	Distance         string `yaml:"distance"` // cosine (default), l2, ip
	HNSWM            int    `yaml:"hnsw_m"`
	HNSWEFConstruct  int    `yaml:"hnsw_ef_construction"`
	HNSWEFRuntime    int    `yaml:"hnsw_ef_runtime"` // 0 keeps the index default
}

// EmbeddingConfig holds the model catalog.
type EmbeddingConfig struct {
	DefaultModel string                    `yaml:"default_model"`
	Providers    map[string]ProviderConfig `yaml:"providers"`
	Models       map[string]ModelConfig    `yaml:"models"`
	Cache        EmbeddingCacheConfig      `yaml:"cache"`
}

// ProviderConfig describes where a model family is served from.
type ProviderConfig struct {
	Kind       string `yaml:"kind"` // openai | hashing
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
	MaxRetries int    `yaml:"max_retries"` // extra attempts after 429 or 5xx
}

// ModelConfig maps a catalog model name onto a provider.
type ModelConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`      // remote model id, defaults to the catalog name
	Dimensions int    `yaml:"dimensions"` // 0 = learn from the probe embedding
}

// EmbeddingCacheConfig enables the store-backed text->vector cache.
type EmbeddingCacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Target  string `yaml:"target"` // defaults to store.target
	TTLSec  int    `yaml:"ttl_sec"` // 0 keeps entries forever
}

// RetrievalConfig holds the retrieval layer tunables.
type RetrievalConfig struct {
	DefaultCollection  string   `yaml:"default_collection"`
	DefaultK           int      `yaml:"default_k"`
	QueryCacheSize     int      `yaml:"query_cache_size"`
	InvalidateOnInsert bool     `yaml:"invalidate_on_insert"`
	CallTimeoutMs      int      `yaml:"call_timeout_ms"`
	Workers            int      `yaml:"workers"`
	QueueSize          int      `yaml:"queue_size"`
	PrewarmOnStart     bool     `yaml:"prewarm_on_start"`
	PrewarmModels      []string `yaml:"prewarm_models"`
}

// CallTimeout returns the per-call timeout; zero means none.
func (r RetrievalConfig) CallTimeout() time.Duration {
	return time.Duration(r.CallTimeoutMs) * time.Millisecond
}

// Default values for the retrieval layer.
const (
	DefaultCollection     = "cv_documents"
	DefaultModel          = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultK              = 5
	DefaultQueryCacheSize = 10000
)

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Store.ReadinessTimeout <= 0 {
		c.Store.ReadinessTimeout = 10
	}
	if c.Store.Distance == "" {
		c.Store.Distance = "cosine"
	}
	if c.Store.HNSWM <= 0 {
		c.Store.HNSWM = 16
	}
	if c.Store.HNSWEFConstruct <= 0 {
		c.Store.HNSWEFConstruct = 200
	}
	if c.Embedding.DefaultModel == "" {
		c.Embedding.DefaultModel = DefaultModel
	}
	if c.Embedding.Cache.Target == "" {
		c.Embedding.Cache.Target = c.Store.Target
	}
	if c.Retrieval.DefaultCollection == "" {
		c.Retrieval.DefaultCollection = DefaultCollection
	}
	if c.Retrieval.DefaultK <= 0 {
		c.Retrieval.DefaultK = DefaultK
	}
	if c.Retrieval.QueryCacheSize <= 0 {
		c.Retrieval.QueryCacheSize = DefaultQueryCacheSize
	}
	if c.Retrieval.Workers <= 0 {
		c.Retrieval.Workers = 4
	}
	if c.Retrieval.QueueSize <= 0 {
		c.Retrieval.QueueSize = 256
	}
}

// Validate checks the configuration for correctness and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		fail("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Store.Target == "" {
		fail("store.target is required")
	}
	switch c.Store.Distance {
	case "cosine", "l2", "ip":
	default:
		fail("store.distance must be cosine, l2 or ip, got %q", c.Store.Distance)
	}
	if c.Store.HNSWEFRuntime < 0 {
		fail("store.hnsw_ef_runtime must not be negative, got %d", c.Store.HNSWEFRuntime)
	}
	if c.Embedding.Cache.TTLSec < 0 {
		fail("embedding.cache.ttl_sec must not be negative, got %d", c.Embedding.Cache.TTLSec)
	}
	for _, name := range sortedKeys(c.Embedding.Providers) {
		switch kind := c.Embedding.Providers[name].Kind; kind {
		case ProviderOpenAI, ProviderHashing:
		default:
			fail("embedding.providers.%s.kind must be %q or %q, got %q", name, ProviderOpenAI, ProviderHashing, kind)
		}
	}
	for _, name := range sortedKeys(c.Embedding.Models) {
		m := c.Embedding.Models[name]
		p, ok := c.Embedding.Providers[m.Provider]
		switch {
		case !ok:
			fail("embedding.models.%s.provider %q is not configured", name, m.Provider)
		case p.Kind == ProviderHashing && m.Dimensions <= 0:
			fail("embedding.models.%s.dimensions is required for hashing models", name)
		}
	}
	if _, ok := c.Embedding.Models[c.Embedding.DefaultModel]; !ok {
		fail("embedding.default_model %q is not in embedding.models", c.Embedding.DefaultModel)
	}
	for _, name := range c.Retrieval.PrewarmModels {
		if _, ok := c.Embedding.Models[name]; !ok {
			fail("retrieval.prewarm_models: %q is not in embedding.models", name)
		}
	}
	if c.Retrieval.CallTimeoutMs < 0 {
		fail("retrieval.call_timeout_ms must not be negative")
	}
	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
