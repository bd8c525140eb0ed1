package prewarm

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/kailas-cloud/cvcontext/internal/db/dial"
	"github.com/kailas-cloud/cvcontext/internal/domain"
	"github.com/kailas-cloud/cvcontext/internal/metrics"
	"github.com/kailas-cloud/cvcontext/internal/repository/collection"
	"github.com/kailas-cloud/cvcontext/internal/repository/querycache"
	"github.com/kailas-cloud/cvcontext/internal/transport/hashing"
	"github.com/kailas-cloud/cvcontext/internal/usecase/embedding"
)

func TestMain(m *testing.M) {
	metrics.RegisterRetrievalMetrics()
	os.Exit(m.Run())
}

// loaderStub counts loads per model name and fails names in fail.
type loaderStub struct {
	mu    sync.Mutex
	loads map[string]int
	fail  map[string]error
}

func (l *loaderStub) Load(_ context.Context, name string) (embedding.Loaded, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads[name]++
	if err := l.fail[name]; err != nil {
		return embedding.Loaded{}, err
	}
	e, err := hashing.New(32)
	if err != nil {
		return embedding.Loaded{}, err
	}
	return embedding.Loaded{Embedder: e}, nil
}

func (l *loaderStub) count(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[name]
}

type fixture struct {
	coord   *Coordinator
	loader  *loaderStub
	models  *embedding.Registry
	clients *collection.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loader := &loaderStub{loads: map[string]int{}, fail: map[string]error{}}
	models := embedding.NewRegistry(loader, "MiniLM", nil)
	clients := collection.NewRegistry(models, dial.New(0, nil), querycache.New(10, nil),
		collection.RegistryConfig{DefaultTarget: "memory://prewarm"}, nil)
	coord := New(models, clients, Config{
		DefaultModel:  "MiniLM",
		Collection:    "cv_documents",
		DefaultTarget: "memory://prewarm",
	}, nil)
	return &fixture{coord: coord, loader: loader, models: models, clients: clients}
}

func TestPrewarm_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.coord.Prewarm(ctx, nil, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.coord.Prewarmed() {
		t.Fatal("flag should be set")
	}
	if err := f.coord.Prewarm(ctx, []string{"MiniLM", "bge"}, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.loader.count("MiniLM") != 1 {
		t.Errorf("MiniLM loads = %d, want 1", f.loader.count("MiniLM"))
	}
	if f.loader.count("bge") != 0 {
		t.Error("second prewarm must be a no-op")
	}

	c, err := f.clients.Get(ctx, "cv_documents", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Ready() {
		t.Error("default collection should be connected")
	}
}

func TestPrewarm_LoadsEveryModel(t *testing.T) {
	f := newFixture(t)

	if err := f.coord.Prewarm(context.Background(), []string{"MiniLM", "bge", "e5"}, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.models.Len() != 3 {
		t.Errorf("expected 3 cached models, got %v", f.models.Names())
	}
}

func TestPrewarm_ModelFailureLeavesFlagUnset(t *testing.T) {
	f := newFixture(t)
	f.loader.fail["broken"] = errors.New("weights not found")

	err := f.coord.Prewarm(context.Background(), []string{"MiniLM", "broken"}, "")
	var mle *domain.ModelLoadError
	if !errors.As(err, &mle) || mle.Model != "broken" {
		t.Fatalf("expected ModelLoadError for broken, got %v", err)
	}
	if f.coord.Prewarmed() {
		t.Fatal("failed prewarm must not set the flag")
	}

	delete(f.loader.fail, "broken")
	if err := f.coord.Prewarm(context.Background(), []string{"MiniLM", "broken"}, ""); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
	if !f.coord.Prewarmed() {
		t.Error("flag should be set after retry")
	}
}

func TestPrewarm_StoreFailurePropagates(t *testing.T) {
	f := newFixture(t)

	err := f.coord.Prewarm(context.Background(), nil, "ftp://nowhere")
	var sce *domain.StoreConnectionError
	if !errors.As(err, &sce) {
		t.Fatalf("expected StoreConnectionError, got %T: %v", err, err)
	}
	if !errors.Is(err, domain.ErrUnsupportedTarget) {
		t.Errorf("expected ErrUnsupportedTarget cause, got %v", err)
	}
	if f.coord.Prewarmed() {
		t.Error("failed prewarm must not set the flag")
	}
}

func TestPrewarm_ResetAllowsRerun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.coord.Prewarm(ctx, nil, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.coord.Reset()
	if f.coord.Prewarmed() {
		t.Fatal("Reset should clear the flag")
	}

	f.models.Clear()
	if err := f.coord.Prewarm(ctx, nil, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.loader.count("MiniLM") != 2 {
		t.Errorf("expected a reload after Clear, got %d loads", f.loader.count("MiniLM"))
	}
}

func TestPrewarm_ConcurrentCallsRunOnce(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.coord.Prewarm(context.Background(), nil, ""); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if f.loader.count("MiniLM") != 1 {
		t.Errorf("MiniLM loads = %d, want 1", f.loader.count("MiniLM"))
	}
}
