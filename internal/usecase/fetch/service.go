// Package fetch runs batched similarity fetches against the default collection.
package fetch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cvcontext/internal/domain"
	"github.com/kailas-cloud/cvcontext/internal/repository/collection"
	"github.com/kailas-cloud/cvcontext/internal/worker"
)

// DefaultK is the number of neighbours per query when none is given.
const DefaultK = 5

// clients is the consumer interface for the client registry (ISP).
type clients interface {
	Get(ctx context.Context, collectionName, target string) (*collection.Client, error)
}

// Config selects the collection fetches run against and sizes the async pool.
type Config struct {
	Collection string
	Target     string
	K          int
	Workers    int
	QueueSize  int
}

// Result is what FetchAsync delivers.
type Result struct {
	Fragments []domain.Fragment
	Err       error
}

type task struct {
	ctx     context.Context
	queries []string
	k       int
	out     chan<- Result
}

// Fetcher runs query batches synchronously or through a bounded pool.
type Fetcher struct {
	clients clients
	cfg     Config
	pool    *worker.Pool[task]
	logger  *zap.Logger
}

// New creates a Fetcher. The async pool is idle until Start.
func New(clients clients, cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{clients: clients, cfg: cfg, logger: logger}
	f.pool = worker.NewPool(cfg.Workers, cfg.QueueSize, f.process, worker.WithName[task]("fetch"))
	return f
}

// DefaultK returns the k used by Fetch.
func (f *Fetcher) DefaultK() int { return f.cfg.K }

// Fetch is FetchTopK with the configured default k.
func (f *Fetcher) Fetch(ctx context.Context, queries []string) ([]domain.Fragment, error) {
	return f.FetchTopK(ctx, queries, f.cfg.K)
}

// FetchTopK returns the concatenated top-k results for every query, in query order.
// An empty batch returns an empty slice without touching any cache or store.
func (f *Fetcher) FetchTopK(ctx context.Context, queries []string, k int) ([]domain.Fragment, error) {
	if len(queries) == 0 {
		return []domain.Fragment{}, nil
	}

	client, err := f.clients.Get(ctx, f.cfg.Collection, f.cfg.Target)
	if err != nil {
		return nil, err //nolint:wrapcheck // registry errors propagate unchanged
	}

	start := time.Now()
	results, err := client.QueryBatch(ctx, queries, k)
	if err != nil {
		return nil, err //nolint:wrapcheck // query errors propagate unchanged
	}

	f.logger.Debug("Context fetched",
		zap.String("collection", f.cfg.Collection),
		zap.Int("queries", len(queries)),
		zap.Int("k", k),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return results, nil
}

// FetchAsync submits the fetch to the worker pool. The channel receives exactly one
// Result. A full or stopped pool is reported immediately.
func (f *Fetcher) FetchAsync(ctx context.Context, queries []string) (<-chan Result, error) {
	out := make(chan Result, 1)
	if err := f.pool.Submit(task{ctx: ctx, queries: queries, k: f.cfg.K, out: out}); err != nil {
		return nil, fmt.Errorf("submit fetch: %w", err)
	}
	return out, nil
}

// Start launches the async pool.
func (f *Fetcher) Start(ctx context.Context) error {
	if err := f.pool.Start(ctx); err != nil {
		return fmt.Errorf("start fetch pool: %w", err)
	}
	return nil
}

// Stop drains the async pool.
func (f *Fetcher) Stop(timeout time.Duration) error {
	if err := f.pool.Stop(timeout); err != nil {
		return fmt.Errorf("stop fetch pool: %w", err)
	}
	return nil
}

// Stats exposes pool counters.
func (f *Fetcher) Stats() worker.Stats { return f.pool.Stats() }

// process answers every task exactly once. Tasks left in the queue after the
// pool context is done get that context's error instead of a fetch.
func (f *Fetcher) process(ctx context.Context, t task) error {
	defer close(t.out)
	if err := ctx.Err(); err != nil {
		t.out <- Result{Err: fmt.Errorf("fetch pool stopped: %w", err)}
		return err //nolint:wrapcheck // counted as failed by the pool
	}
	res, err := f.FetchTopK(t.ctx, t.queries, t.k)
	t.out <- Result{Fragments: res, Err: err}
	return err
}
