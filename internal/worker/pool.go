// Package worker provides a bounded generic worker pool.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kailas-cloud/cvcontext/internal/metrics"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

// Pool runs a fixed number of workers over a bounded queue of T.
type Pool[T any] struct {
	name      string
	workers   int
	queueSize int
	processor func(context.Context, T) error

	work chan T
	wg   sync.WaitGroup
	ctx  context.Context
	quit chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
	stopped bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithName sets the "pool" label on the pool's metrics.
func WithName[T any](name string) Option[T] {
	return func(p *Pool[T]) {
		p.name = name
	}
}

// NewPool creates a stopped pool. Non-positive sizes fall back to defaults.
// Panics with ErrNilProcessor if processor is nil.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}

	p := &Pool[T]{
		name:      "default",
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		work:      make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit enqueues work without blocking.
func (p *Pool[T]) Submit(work T) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.closed || p.ctx.Err() != nil {
		return ErrPoolStopped
	}

	select {
	case p.work <- work:
		p.submitted.Add(1)
		metrics.WorkerItemsTotal.WithLabelValues(p.name, "submitted").Inc()
		metrics.WorkerQueueDepth.WithLabelValues(p.name).Set(float64(len(p.work)))
		return nil
	default:
		p.dropped.Add(1)
		metrics.WorkerItemsTotal.WithLabelValues(p.name, "dropped").Inc()
		return ErrQueueFull
	}
}

// Start launches the workers. Once ctx is done the queue closes: Submit
// returns ErrPoolStopped and workers hand every queued item to the processor
// with the cancelled ctx before exiting, so no accepted item is lost.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	p.ctx = ctx
	p.quit = make(chan struct{})
	for range p.workers {
		p.wg.Add(1)
		go p.run(ctx)
	}
	go p.watch(ctx)
	p.started = true
	return nil
}

// watch closes the queue when ctx is done before Stop.
func (p *Pool[T]) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		p.mu.Lock()
		p.closeLocked()
		p.mu.Unlock()
	case <-p.quit:
	}
}

func (p *Pool[T]) closeLocked() {
	if !p.closed {
		close(p.work)
		close(p.quit)
		p.closed = true
	}
}

// Stop closes the queue and waits up to timeout for queued work to drain.
// Stopping a pool that never started, or stopping twice, is a no-op.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.closeLocked()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		metrics.WorkerQueueDepth.WithLabelValues(p.name).Set(0)
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats is a point-in-time view of pool counters.
type Stats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

// Stats returns current pool statistics.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.work),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

func (p *Pool[T]) run(ctx context.Context) {
	defer p.wg.Done()

	for item := range p.work {
		p.process(ctx, item)
	}
}

func (p *Pool[T]) process(ctx context.Context, item T) {
	start := time.Now()
	err := p.processor(ctx, item)

	p.processed.Add(1)
	status := "success"
	if err != nil {
		p.failed.Add(1)
		status = "error"
	}
	metrics.WorkerItemsTotal.WithLabelValues(p.name, status).Inc()
	metrics.WorkerProcessingDuration.WithLabelValues(p.name, status).Observe(time.Since(start).Seconds())
	metrics.WorkerQueueDepth.WithLabelValues(p.name).Set(float64(len(p.work)))
}
