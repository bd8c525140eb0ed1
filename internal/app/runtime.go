// Package app wires the retrieval layer into one explicitly constructed runtime.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cvcontext/internal/config"
	"github.com/kailas-cloud/cvcontext/internal/db"
	"github.com/kailas-cloud/cvcontext/internal/db/dial"
	"github.com/kailas-cloud/cvcontext/internal/metrics"
	"github.com/kailas-cloud/cvcontext/internal/repository/collection"
	"github.com/kailas-cloud/cvcontext/internal/repository/querycache"
	embeddinguc "github.com/kailas-cloud/cvcontext/internal/usecase/embedding"
	"github.com/kailas-cloud/cvcontext/internal/usecase/fetch"
	healthuc "github.com/kailas-cloud/cvcontext/internal/usecase/health"
	"github.com/kailas-cloud/cvcontext/internal/usecase/ingest"
	"github.com/kailas-cloud/cvcontext/internal/usecase/prewarm"
	"github.com/kailas-cloud/cvcontext/internal/usecase/sections"
)

// Runtime owns the four process caches (models, clients, query results, prewarm
// flag) and the services built on them.
type Runtime struct {
	Config config.Config

	Models   *embeddinguc.Registry
	Clients  *collection.Registry
	Queries  *querycache.Cache
	Prewarm  *prewarm.Coordinator
	Fetcher  *fetch.Fetcher
	Sections *sections.Extractor
	Ingest   *ingest.Service
	Health   *healthuc.Service

	catalog *Catalog
	logger  *zap.Logger
}

// New builds a Runtime from validated configuration. Nothing connects until first use.
func New(cfg config.Config, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := dial.New(time.Duration(cfg.Store.ReadinessTimeout)*time.Second, logger)
	catalog := NewCatalog(cfg.Embedding, dialer, logger)
	models := embeddinguc.NewRegistry(catalog, cfg.Embedding.DefaultModel, logger)
	queries := querycache.New(cfg.Retrieval.QueryCacheSize, metrics.QueryCacheTotal)
	// validated by config; an unknown value falls back to cosine
	distance, _ := db.ParseDistanceMetric(cfg.Store.Distance)

	clients := collection.NewRegistry(models, dialer, queries, collection.RegistryConfig{
		DefaultTarget: cfg.Store.Target,
		Client: collection.Options{
			Distance:           distance,
			HNSWM:              cfg.Store.HNSWM,
			HNSWEFConstruct:    cfg.Store.HNSWEFConstruct,
			EFRuntime:          cfg.Store.HNSWEFRuntime,
			CallTimeout:        cfg.Retrieval.CallTimeout(),
			InvalidateOnInsert: cfg.Retrieval.InvalidateOnInsert,
		},
	}, logger)

	coll := cfg.Retrieval.DefaultCollection
	fetcher := fetch.New(clients, fetch.Config{
		Collection: coll,
		K:          cfg.Retrieval.DefaultK,
		Workers:    cfg.Retrieval.Workers,
		QueueSize:  cfg.Retrieval.QueueSize,
	}, logger)
	coord := prewarm.New(models, clients, prewarm.Config{
		DefaultModel:  cfg.Embedding.DefaultModel,
		Collection:    coll,
		DefaultTarget: cfg.Store.Target,
	}, logger)

	return &Runtime{
		Config:   cfg,
		Models:   models,
		Clients:  clients,
		Queries:  queries,
		Prewarm:  coord,
		Fetcher:  fetcher,
		Sections: sections.New(fetcher, logger),
		Ingest:   ingest.New(clients, ingest.Config{Collection: coll}, logger),
		Health: healthuc.New(
			&storeCheck{clients: clients, collection: coll},
			&modelCheck{models: models},
			coord.Prewarmed,
		),
		catalog: catalog,
		logger:  logger,
	}
}

// Collection returns the client for name at the default target; "" is the default collection.
func (rt *Runtime) Collection(ctx context.Context, name string) (*collection.Client, error) {
	if name == "" {
		name = rt.Config.Retrieval.DefaultCollection
	}
	return rt.Clients.Get(ctx, name, "") //nolint:wrapcheck // registry errors propagate unchanged
}

// PrewarmDefaults prewarms the configured prewarm models, or the default model.
func (rt *Runtime) PrewarmDefaults(ctx context.Context) error {
	return rt.Prewarm.Prewarm(ctx, rt.Config.Retrieval.PrewarmModels, "") //nolint:wrapcheck // propagated unchanged
}

// Reset clears models, clients, cached query results and the prewarm flag.
func (rt *Runtime) Reset() {
	rt.Queries.Clear()
	rt.Clients.Clear()
	rt.Models.Clear()
	rt.Prewarm.Reset()
	rt.logger.Info("Retrieval caches reset")
}

// Start launches background workers.
func (rt *Runtime) Start(ctx context.Context) error {
	return rt.Fetcher.Start(ctx) //nolint:wrapcheck // already wrapped
}

// Close stops workers and releases every connection.
func (rt *Runtime) Close(timeout time.Duration) error {
	err := rt.Fetcher.Stop(timeout)
	rt.Clients.Clear()
	rt.catalog.Close()
	if err != nil {
		return fmt.Errorf("close runtime: %w", err)
	}
	return nil
}

// storeCheck pings the default collection's store once its client exists.
type storeCheck struct {
	clients    *collection.Registry
	collection string
}

func (s *storeCheck) Ping(ctx context.Context) error {
	c, ok := s.clients.Lookup(s.collection, "")
	if !ok {
		return healthuc.ErrNotChecked
	}
	if err := c.Ping(ctx); err != nil {
		return fmt.Errorf("store health check: %w", err)
	}
	return nil
}

// modelCheck probes the default model's provider without loading it.
type modelCheck struct {
	models *embeddinguc.Registry
}

func (m *modelCheck) HealthCheck(ctx context.Context) error {
	model, ok := m.models.Cached("")
	if !ok || !model.HasHealthCheck() {
		return healthuc.ErrNotChecked
	}
	if err := model.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding health check: %w", err)
	}
	return nil
}
