package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cvcontext/internal/domain"
)

// countingLoader counts Load calls per name and serves plainEmbedder-style models.
type countingLoader struct {
	mu    sync.Mutex
	calls map[string]int
	delay time.Duration
	fail  map[string]error
	dims  int
}

func newCountingLoader() *countingLoader {
	return &countingLoader{calls: make(map[string]int), fail: make(map[string]error)}
}

func (l *countingLoader) Load(_ context.Context, name string) (Loaded, error) {
	l.mu.Lock()
	l.calls[name]++
	err := l.fail[name]
	l.mu.Unlock()

	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{Embedder: &plainEmbedder{}, Dimensions: l.dims}, nil
}

func (l *countingLoader) count(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[name]
}

func TestRegistry_IdempotentLoad(t *testing.T) {
	loader := newCountingLoader()
	r := NewRegistry(loader, "mini", zap.NewNop())
	ctx := context.Background()

	first, err := r.GetOrLoad(ctx, "mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.GetOrLoad(ctx, "mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Error("expected the identical handle on the second call")
	}
	if loader.count("mini") != 1 {
		t.Errorf("expected 1 load, got %d", loader.count("mini"))
	}
	if first.Name() != "mini" || first.Dimensions() != 2 {
		t.Errorf("unexpected handle: name=%s dims=%d", first.Name(), first.Dimensions())
	}
}

func TestRegistry_DefaultModel(t *testing.T) {
	loader := newCountingLoader()
	r := NewRegistry(loader, "mini", zap.NewNop())

	m, err := r.GetOrLoad(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name() != "mini" {
		t.Errorf("expected default model, got %s", m.Name())
	}
	if _, ok := r.Cached(""); !ok {
		t.Error("default model should be cached")
	}
}

func TestRegistry_ConcurrentFirstLoadSharesOneLoad(t *testing.T) {
	loader := newCountingLoader()
	loader.delay = 20 * time.Millisecond
	r := NewRegistry(loader, "mini", zap.NewNop())

	var wg sync.WaitGroup
	handles := make([]*Model, 16)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := r.GetOrLoad(context.Background(), "mini")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			handles[i] = m
		}(i)
	}
	wg.Wait()

	if loader.count("mini") != 1 {
		t.Errorf("expected 1 load across concurrent callers, got %d", loader.count("mini"))
	}
	for i := range handles {
		if handles[i] != handles[0] {
			t.Fatal("all callers must observe the same handle")
		}
	}
}

func TestRegistry_FailureNotCached(t *testing.T) {
	loader := newCountingLoader()
	loader.fail["broken"] = domain.ErrUnknownModel
	r := NewRegistry(loader, "mini", zap.NewNop())
	ctx := context.Background()

	_, err := r.GetOrLoad(ctx, "broken")
	var mle *domain.ModelLoadError
	if !errors.As(err, &mle) {
		t.Fatalf("expected *ModelLoadError, got %T: %v", err, err)
	}
	if mle.Model != "broken" {
		t.Errorf("Model = %q", mle.Model)
	}
	if !errors.Is(err, domain.ErrModelLoad) || !errors.Is(err, domain.ErrUnknownModel) {
		t.Errorf("error should match both sentinel and cause: %v", err)
	}

	if _, err := r.GetOrLoad(ctx, "broken"); err == nil {
		t.Fatal("expected second failure")
	}
	if loader.count("broken") != 2 {
		t.Errorf("failed load must be retried, got %d loads", loader.count("broken"))
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestRegistry_DimensionMismatch(t *testing.T) {
	loader := newCountingLoader()
	loader.dims = 384
	r := NewRegistry(loader, "mini", zap.NewNop())

	_, err := r.GetOrLoad(context.Background(), "mini")
	if !errors.Is(err, domain.ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad for dimension mismatch, got %v", err)
	}
}

func TestRegistry_ProbeFailure(t *testing.T) {
	r := NewRegistry(LoaderFunc(func(context.Context, string) (Loaded, error) {
		return Loaded{Embedder: &mockEmbedder{err: errors.New("unreachable")}}, nil
	}), "mini", nil)

	_, err := r.GetOrLoad(context.Background(), "mini")
	if !errors.Is(err, domain.ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad for failed probe, got %v", err)
	}
}

func TestRegistry_NamesAreIsolated(t *testing.T) {
	loader := newCountingLoader()
	r := NewRegistry(loader, "a", zap.NewNop())
	ctx := context.Background()

	a, _ := r.GetOrLoad(ctx, "a")
	b, _ := r.GetOrLoad(ctx, "b")
	if a == b {
		t.Error("different names must map to different handles")
	}
	if got := r.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Names = %v", got)
	}
}

func TestRegistry_ClearForcesReload(t *testing.T) {
	loader := newCountingLoader()
	r := NewRegistry(loader, "mini", zap.NewNop())
	ctx := context.Background()

	first, _ := r.GetOrLoad(ctx, "mini")
	r.Clear()
	if r.Len() != 0 {
		t.Fatalf("Len after Clear = %d", r.Len())
	}
	second, _ := r.GetOrLoad(ctx, "mini")

	if first == second {
		t.Error("expected a fresh handle after Clear")
	}
	if loader.count("mini") != 2 {
		t.Errorf("expected 2 loads, got %d", loader.count("mini"))
	}
}

func TestRegistry_ModelAdapter(t *testing.T) {
	r := NewRegistry(newCountingLoader(), "mini", zap.NewNop())

	m, err := r.Model(context.Background(), "mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := m.BatchEmbed(context.Background(), []string{"abc", "de"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Embeddings[0][0] != 3 || res.Embeddings[1][0] != 2 {
		t.Errorf("unexpected embeddings: %v", res.Embeddings)
	}
}

func TestModel_HealthCheck(t *testing.T) {
	var probed atomic.Bool
	r := NewRegistry(LoaderFunc(func(context.Context, string) (Loaded, error) {
		return Loaded{
			Embedder: &plainEmbedder{},
			Health:   healthFunc(func(context.Context) error { probed.Store(true); return nil }),
		}, nil
	}), "mini", nil)

	m, err := r.GetOrLoad(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.HasHealthCheck() {
		t.Fatal("expected a health check")
	}
	if err := m.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !probed.Load() {
		t.Error("health check did not reach the provider")
	}

	plain := &Model{name: "x", embedder: &plainEmbedder{}}
	if err := plain.HealthCheck(context.Background()); err == nil {
		t.Error("expected error for a model without health check")
	}
}

type healthFunc func(context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// gatedLoader blocks every Load until release is closed and fails if its ctx ended first.
type gatedLoader struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (l *gatedLoader) Load(ctx context.Context, _ string) (Loaded, error) {
	if l.calls.Add(1) == 1 {
		close(l.started)
	}
	<-l.release
	if err := ctx.Err(); err != nil {
		return Loaded{}, err
	}
	return Loaded{Embedder: &plainEmbedder{}}, nil
}

func TestRegistry_CancelledCallerDoesNotFailWaiters(t *testing.T) {
	loader := &gatedLoader{started: make(chan struct{}), release: make(chan struct{})}
	r := NewRegistry(loader, "mini", zap.NewNop())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.GetOrLoad(firstCtx, "mini")
		firstErr <- err
	}()
	<-loader.started

	second := make(chan error, 1)
	go func() {
		_, err := r.GetOrLoad(context.Background(), "mini")
		second <- err
	}()

	cancelFirst()
	var mle *domain.ModelLoadError
	if err := <-firstErr; !errors.As(err, &mle) || !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: expected ModelLoadError{Canceled}, got %v", err)
	}

	close(loader.release)
	select {
	case err := <-second:
		if err != nil {
			t.Fatalf("waiter with a live context must get the model, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never returned")
	}
	if loader.calls.Load() != 1 {
		t.Errorf("expected one shared load, got %d", loader.calls.Load())
	}
	if _, ok := r.Cached("mini"); !ok {
		t.Error("the shared load should be cached")
	}
}
