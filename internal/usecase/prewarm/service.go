// Package prewarm loads models and connects the default collection ahead of traffic.
package prewarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/cvcontext/internal/domain"
	"github.com/kailas-cloud/cvcontext/internal/repository/collection"
)

// WarmupQuery is embedded once per model during prewarm.
const WarmupQuery = "warmup query"

// models is the consumer interface for the model registry (ISP).
type models interface {
	Model(ctx context.Context, name string) (domain.EmbeddingModel, error)
}

// clients is the consumer interface for the client registry (ISP).
type clients interface {
	Get(ctx context.Context, collectionName, target string) (*collection.Client, error)
}

// Config supplies the defaults used when Prewarm gets empty arguments.
type Config struct {
	DefaultModel  string
	Collection    string
	DefaultTarget string
}

// Coordinator runs prewarm at most once until Reset.
type Coordinator struct {
	models  models
	clients clients
	cfg     Config
	logger  *zap.Logger

	mu        sync.Mutex
	prewarmed bool
}

// New creates a Coordinator.
func New(models models, clients clients, cfg Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{models: models, clients: clients, cfg: cfg, logger: logger}
}

// Prewarm loads every model, embeds one warmup query each, then connects the
// default collection at target. Empty arguments fall back to the configured
// defaults. The prewarmed flag is set only when every step succeeded.
func (c *Coordinator) Prewarm(ctx context.Context, modelNames []string, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.prewarmed {
		c.logger.Info("Already prewarmed, skipping")
		return nil
	}
	if len(modelNames) == 0 {
		modelNames = []string{c.cfg.DefaultModel}
	}
	if target == "" {
		target = c.cfg.DefaultTarget
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range modelNames {
		g.Go(func() error {
			m, err := c.models.Model(gctx, name)
			if err != nil {
				return err //nolint:wrapcheck // ModelLoadError propagates unchanged
			}
			if _, err := m.Embed(gctx, WarmupQuery); err != nil {
				return fmt.Errorf("warmup embed %q: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Error("Prewarm failed", zap.Strings("models", modelNames), zap.Error(err))
		return err //nolint:wrapcheck // propagated unchanged
	}

	client, err := c.clients.Get(ctx, c.cfg.Collection, target)
	if err != nil {
		c.logger.Error("Prewarm failed", zap.String("collection", c.cfg.Collection), zap.Error(err))
		return err //nolint:wrapcheck // propagated unchanged
	}
	if err := client.Connect(ctx); err != nil {
		c.logger.Error("Prewarm failed", zap.String("collection", c.cfg.Collection), zap.Error(err))
		return err //nolint:wrapcheck // StoreConnectionError propagates unchanged
	}

	c.prewarmed = true
	c.logger.Info("Prewarm complete",
		zap.Strings("models", modelNames),
		zap.String("collection", c.cfg.Collection),
		zap.String("target", target),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Prewarmed reports whether a Prewarm has fully succeeded since the last Reset.
func (c *Coordinator) Prewarmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prewarmed
}

// Reset clears the prewarmed flag.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prewarmed = false
}
