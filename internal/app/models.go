package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cvcontext/internal/config"
	"github.com/kailas-cloud/cvcontext/internal/db"
	"github.com/kailas-cloud/cvcontext/internal/domain"
	"github.com/kailas-cloud/cvcontext/internal/metrics"
	"github.com/kailas-cloud/cvcontext/internal/repository/embcache"
	"github.com/kailas-cloud/cvcontext/internal/transport/hashing"
	openaiEmb "github.com/kailas-cloud/cvcontext/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/cvcontext/internal/usecase/embedding"
)

// dialer opens the embedding cache store.
type dialer interface {
	Open(ctx context.Context, target string) (db.Store, error)
}

// Catalog builds embedder chains from the configured model catalog.
// It implements embedding.Loader.
type Catalog struct {
	cfg    config.EmbeddingConfig
	dialer dialer
	logger *zap.Logger

	mu         sync.Mutex
	cacheStore db.Store
}

var _ embeddinguc.Loader = (*Catalog)(nil)

// NewCatalog creates a Catalog. dialer is only used when the embedding cache is enabled.
func NewCatalog(cfg config.EmbeddingConfig, dialer dialer, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{cfg: cfg, dialer: dialer, logger: logger}
}

// Load assembles the decorator chain: provider -> Instrumented -> Cached.
func (c *Catalog) Load(ctx context.Context, name string) (embeddinguc.Loaded, error) {
	modelCfg, ok := c.cfg.Models[name]
	if !ok {
		return embeddinguc.Loaded{}, fmt.Errorf("%w: %q", domain.ErrUnknownModel, name)
	}
	provCfg, ok := c.cfg.Providers[modelCfg.Provider]
	if !ok {
		return embeddinguc.Loaded{}, fmt.Errorf("model %q: unknown provider %q", name, modelCfg.Provider)
	}
	remote := modelCfg.Model
	if remote == "" {
		remote = name
	}

	var (
		base   domain.Embedder
		health domain.HealthChecker
	)
	switch provCfg.Kind {
	case config.ProviderOpenAI:
		e := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     provCfg.APIKey,
			BaseURL:    provCfg.BaseURL,
			Model:      remote,
			Dimensions: modelCfg.Dimensions,
			Provider:   modelCfg.Provider,
			Timeout:    time.Duration(provCfg.TimeoutSec) * time.Second,
			MaxRetries: provCfg.MaxRetries,
			Logger:     c.logger,
		})
		base, health = e, e
	case config.ProviderHashing:
		e, err := hashing.New(modelCfg.Dimensions)
		if err != nil {
			return embeddinguc.Loaded{}, fmt.Errorf("model %q: %w", name, err)
		}
		base, health = e, e
	default:
		return embeddinguc.Loaded{}, fmt.Errorf("model %q: unsupported provider kind %q", name, provCfg.Kind)
	}

	var embedder domain.Embedder = embeddinguc.NewInstrumentedEmbedder(base, modelCfg.Provider, remote, 0, c.logger)

	if c.cfg.Cache.Enabled {
		s, err := c.cache(ctx)
		if err != nil {
			return embeddinguc.Loaded{}, err
		}
		embedder = embcache.New(embedder, name, s, metrics.EmbeddingCacheTotal, c.logger,
			embcache.WithTTL(time.Duration(c.cfg.Cache.TTLSec)*time.Second),
			embcache.WithDimensions(modelCfg.Dimensions))
	}

	return embeddinguc.Loaded{
		Embedder:   embedder,
		Dimensions: modelCfg.Dimensions,
		Health:     health,
	}, nil
}

// cache opens the embedding cache store once; a failed open is retried on the next load.
func (c *Catalog) cache(ctx context.Context) (db.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cacheStore != nil {
		return c.cacheStore, nil
	}
	s, err := c.dialer.Open(ctx, c.cfg.Cache.Target)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache %s: %w", c.cfg.Cache.Target, err)
	}
	c.cacheStore = s
	c.logger.Info("Embedding cache connected", zap.String("target", c.cfg.Cache.Target))
	return s, nil
}

// Close releases the embedding cache store.
func (c *Catalog) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cacheStore != nil {
		c.cacheStore.Close()
		c.cacheStore = nil
	}
}
