package collection

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/cvcontext/internal/db"
	"github.com/kailas-cloud/cvcontext/internal/domain"
	"github.com/kailas-cloud/cvcontext/internal/repository/querycache"
)

// ModelSource resolves the embedding model a new client is bound to.
type ModelSource interface {
	Model(ctx context.Context, name string) (domain.EmbeddingModel, error)
}

// RegistryConfig holds what every client built by a Registry shares.
type RegistryConfig struct {
	// Model is the catalog name clients embed with; "" means the source's default.
	Model string
	// DefaultTarget is used when Get is called with an empty target.
	DefaultTarget string
	Client        Options
}

type clientKey struct {
	collection string
	target     string
}

// Registry keeps one Client per (collection, target) pair.
type Registry struct {
	models ModelSource
	dialer Dialer
	cache  *querycache.Cache
	cfg    RegistryConfig
	logger *zap.Logger

	mu         sync.RWMutex
	clients    map[clientKey]*Client
	generation uint64

	group singleflight.Group
}

// NewRegistry creates an empty client registry.
func NewRegistry(
	models ModelSource,
	dialer Dialer,
	cache *querycache.Cache,
	cfg RegistryConfig,
	logger *zap.Logger,
) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		models:  models,
		dialer:  dialer,
		cache:   cache,
		cfg:     cfg,
		logger:  logger,
		clients: make(map[clientKey]*Client),
	}
}

// DefaultTarget returns the target used for an empty Get target.
func (r *Registry) DefaultTarget() string { return r.cfg.DefaultTarget }

// Get returns the client for the pair, constructing it on first use.
// Construction loads the embedding model but does not connect.
func (r *Registry) Get(ctx context.Context, collectionName, target string) (*Client, error) {
	if !db.IsValidIdentifier(collectionName) {
		return nil, fmt.Errorf("%w: invalid collection name %q", domain.ErrInvalidArgument, collectionName)
	}
	if target == "" {
		target = r.cfg.DefaultTarget
	}
	key := clientKey{collection: collectionName, target: target}

	r.mu.RLock()
	c, ok := r.clients[key]
	gen := r.generation
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	flight := strconv.FormatUint(gen, 10) + "\x00" + collectionName + "\x00" + target
	ch := r.group.DoChan(flight, func() (any, error) {
		r.mu.RLock()
		existing, ok := r.clients[key]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		model, err := r.models.Model(context.WithoutCancel(ctx), r.cfg.Model)
		if err != nil {
			return nil, err //nolint:wrapcheck // ModelLoadError propagates unchanged
		}
		client := NewClient(collectionName, target, model, r.dialer, r.cache, r.cfg.Client, r.logger)

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.generation != gen {
			return client, nil
		}
		if existing, ok := r.clients[key]; ok {
			return existing, nil
		}
		r.clients[key] = client
		return client, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err //nolint:wrapcheck // ModelLoadError propagates unchanged
		}
		return res.Val.(*Client), nil
	case <-ctx.Done():
		return nil, &domain.ModelLoadError{Model: r.cfg.Model, Err: ctx.Err()}
	}
}

// Lookup returns an already constructed client without constructing one.
func (r *Registry) Lookup(collectionName, target string) (*Client, bool) {
	if target == "" {
		target = r.cfg.DefaultTarget
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientKey{collection: collectionName, target: target}]
	return c, ok
}

// Clients returns a snapshot of the registered clients.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Clear closes and drops every client.
func (r *Registry) Clear() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[clientKey]*Client)
	r.generation++
	r.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	r.logger.Debug("Collection clients cleared", zap.Int("count", len(clients)))
}
