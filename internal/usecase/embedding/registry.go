package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/cvcontext/internal/domain"
	"github.com/kailas-cloud/cvcontext/internal/metrics"
)

// SharedLoadTimeout bounds a load that concurrent callers wait on together.
const SharedLoadTimeout = 2 * time.Minute

// ProbeText is embedded once per load to verify the model and learn its dimension.
const ProbeText = "dimension probe"

// Loaded is what a Loader hands back for a model name.
type Loaded struct {
	Embedder domain.Embedder
	// Dimensions is the configured vector length; 0 accepts whatever the probe returns.
	Dimensions int
	// Health is optional.
	Health domain.HealthChecker
}

// Loader builds the embedder chain for a model name.
type Loader interface {
	Load(ctx context.Context, name string) (Loaded, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, name string) (Loaded, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, name string) (Loaded, error) { return f(ctx, name) }

// Registry caches loaded models by name. Each name is loaded at most once while
// it stays cached; failed loads are not cached.
type Registry struct {
	loader       Loader
	defaultModel string
	logger       *zap.Logger

	mu         sync.RWMutex
	models     map[string]*Model
	generation uint64

	group singleflight.Group
}

// NewRegistry creates an empty model registry.
func NewRegistry(loader Loader, defaultModel string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		loader:       loader,
		defaultModel: defaultModel,
		logger:       logger,
		models:       make(map[string]*Model),
	}
}

// DefaultModel returns the name used when callers pass "".
func (r *Registry) DefaultModel() string { return r.defaultModel }

// GetOrLoad returns the cached model or loads it. Concurrent first requests share one load.
func (r *Registry) GetOrLoad(ctx context.Context, name string) (*Model, error) {
	if name == "" {
		name = r.defaultModel
	}

	r.mu.RLock()
	m, ok := r.models[name]
	gen := r.generation
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	// generation в ключе: загрузка после Clear не присоединяется к старой
	key := strconv.FormatUint(gen, 10) + "/" + name
	// общая загрузка не зависит от отмены первого вызывающего
	flight := r.group.DoChan(key, func() (any, error) {
		r.mu.RLock()
		cached, ok := r.models[name]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SharedLoadTimeout)
		defer cancel()
		loaded, err := r.load(loadCtx, name)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.generation != gen {
			// cleared mid-load: hand the model to this caller but don't cache it
			return loaded, nil
		}
		if existing, ok := r.models[name]; ok {
			return existing, nil
		}
		r.models[name] = loaded
		return loaded, nil
	})

	select {
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err //nolint:wrapcheck // already a *domain.ModelLoadError
		}
		return res.Val.(*Model), nil
	case <-ctx.Done():
		return nil, &domain.ModelLoadError{Model: name, Err: ctx.Err()}
	}
}

// Model is GetOrLoad returning the domain interface.
func (r *Registry) Model(ctx context.Context, name string) (domain.EmbeddingModel, error) {
	m, err := r.GetOrLoad(ctx, name)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Cached returns an already loaded model without loading.
func (r *Registry) Cached(name string) (*Model, bool) {
	if name == "" {
		name = r.defaultModel
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Names returns loaded model names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of loaded models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Clear drops every loaded model. The next GetOrLoad reloads.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = make(map[string]*Model)
	r.generation++
}

func (r *Registry) load(ctx context.Context, name string) (*Model, error) {
	start := time.Now()
	m, err := r.build(ctx, name)
	duration := time.Since(start)

	metrics.ModelLoadDuration.WithLabelValues(name).Observe(duration.Seconds())
	if err != nil {
		metrics.ModelLoadsTotal.WithLabelValues(name, "error").Inc()
		r.logger.Error("Model load failed",
			zap.String("model", name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, &domain.ModelLoadError{Model: name, Err: err}
	}

	metrics.ModelLoadsTotal.WithLabelValues(name, "success").Inc()
	r.logger.Info("Model loaded",
		zap.String("model", name),
		zap.Int("dimensions", m.dims),
		zap.Duration("duration", duration),
	)
	return m, nil
}

func (r *Registry) build(ctx context.Context, name string) (*Model, error) {
	if r.loader == nil {
		return nil, errors.New("no model loader configured")
	}
	loaded, err := r.loader.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	if loaded.Embedder == nil {
		return nil, errors.New("loader returned no embedder")
	}

	probe, err := loaded.Embedder.Embed(ctx, ProbeText)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}
	dims := len(probe.Embedding)
	if dims == 0 {
		return nil, errors.New("probe returned an empty vector")
	}
	if loaded.Dimensions > 0 && loaded.Dimensions != dims {
		return nil, fmt.Errorf("configured dimensions %d, model returned %d", loaded.Dimensions, dims)
	}

	return &Model{
		name:     name,
		dims:     dims,
		embedder: loaded.Embedder,
		health:   loaded.Health,
	}, nil
}
