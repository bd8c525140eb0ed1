package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cvcontext/internal/db"
	"github.com/kailas-cloud/cvcontext/internal/domain"
	"github.com/kailas-cloud/cvcontext/internal/metrics"
	"github.com/kailas-cloud/cvcontext/internal/repository/querycache"
)

// store is the consumer interface for a collection client (ISP).
type store interface {
	Ping(ctx context.Context) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	Close()
}

// Dialer opens a store for a connection target.
type Dialer interface {
	Open(ctx context.Context, target string) (db.Store, error)
}

// Options tune index creation and per-call behaviour.
type Options struct {
	Distance        db.DistanceMetric
	HNSWM           int
	HNSWEFConstruct int
	// EFRuntime overrides the HNSW search width per query; 0 keeps the index default.
	EFRuntime int
	// CallTimeout bounds Connect, InsertDocuments and Query; 0 disables it.
	CallTimeout time.Duration
	// InvalidateOnInsert bumps the query cache generation after every insert.
	InvalidateOnInsert bool
}

func (o Options) withDefaults() Options {
	if o.Distance == "" {
		o.Distance = db.DistanceCosine
	}
	if o.HNSWM <= 0 {
		o.HNSWM = defaultHNSWM
	}
	if o.HNSWEFConstruct <= 0 {
		o.HNSWEFConstruct = defaultHNSWEFConstruct
	}
	return o
}

type state int

const (
	stateUninitialized state = iota
	stateReady
)

// Client is a lazily connected handle on one named collection at one target.
type Client struct {
	name   string
	target string
	model  domain.EmbeddingModel
	dialer Dialer
	cache  *querycache.Cache
	opts   Options
	logger *zap.Logger

	mu    sync.Mutex
	state state
	store store
}

// NewClient creates a client. No I/O happens until the first Connect, Query or insert.
func NewClient(
	name, target string,
	model domain.EmbeddingModel,
	dialer Dialer,
	cache *querycache.Cache,
	opts Options,
	logger *zap.Logger,
) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		name:   name,
		target: target,
		model:  model,
		dialer: dialer,
		cache:  cache,
		opts:   opts.withDefaults(),
		logger: logger.With(zap.String("collection", name)),
	}
}

// Name returns the collection name.
func (c *Client) Name() string { return c.name }

// Target returns the connection target.
func (c *Client) Target() string { return c.target }

// Model returns the embedding model bound to the collection.
func (c *Client) Model() domain.EmbeddingModel { return c.model }

// Ready reports whether the client has connected.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateReady
}

// Connect dials the target and ensures the collection index exists.
// It is a no-op once the client is ready. On failure the client stays
// uninitialized and the next call retries.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err := c.connected(ctx)
	return err
}

func (c *Client) connected(ctx context.Context) (store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateReady {
		return c.store, nil
	}

	start := time.Now()
	s, err := c.dial(ctx)
	if err != nil {
		metrics.ClientConnectsTotal.WithLabelValues(c.name, "error").Inc()
		c.logger.Warn("Collection connect failed",
			zap.String("target", c.target),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, &domain.StoreConnectionError{Collection: c.name, Target: c.target, Err: err}
	}

	metrics.ClientConnectsTotal.WithLabelValues(c.name, "success").Inc()
	c.logger.Info("Collection connected",
		zap.String("target", c.target),
		zap.String("index", indexName(c.name)),
		zap.Duration("duration", time.Since(start)),
	)
	c.store = s
	c.state = stateReady
	return s, nil
}

func (c *Client) dial(ctx context.Context) (store, error) {
	if c.dialer == nil {
		return nil, errors.New("no dialer configured")
	}
	s, err := c.dialer.Open(ctx, c.target)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if err := s.Ping(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := c.ensureIndex(ctx, s); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (c *Client) ensureIndex(ctx context.Context, s store) error {
	name := indexName(c.name)
	exists, err := s.IndexExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", name, err)
	}
	if exists {
		return nil
	}

	def, err := buildIndex(c.name, c.model.Dimensions(), c.opts)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := s.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", name, err)
	}
	c.logger.Info("Index created", zap.Stringer("index", def))
	return nil
}

// InsertDocuments embeds and stores docs, returning the ids used.
// ids == nil generates random ids; otherwise len(ids) must equal len(docs).
// The query cache is only touched when InvalidateOnInsert is set.
func (c *Client) InsertDocuments(ctx context.Context, docs []domain.Document, ids []string) ([]string, error) {
	if len(docs) == 0 {
		return []string{}, nil
	}

	ids, err := resolveIDs(docs, ids)
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	s, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(docs))
	for i := range docs {
		texts[i] = docs[i].Content
	}
	emb, err := c.model.BatchEmbed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents for %s: %w", c.name, err)
	}
	if len(emb.Embeddings) != len(docs) {
		return nil, fmt.Errorf("embed documents for %s: got %d vectors for %d documents: %w",
			c.name, len(emb.Embeddings), len(docs), domain.ErrEmbeddingProviderError)
	}

	items := make([]db.HashSetItem, len(docs))
	for i := range docs {
		meta, err := marshalMetadata(docs[i].Metadata)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", ids[i], err)
		}
		items[i] = db.HashSetItem{
			Key: documentKey(c.name, ids[i]),
			Fields: map[string]string{
				fieldContent:  docs[i].Content,
				fieldVector:   db.EncodeVector(emb.Embeddings[i]),
				fieldMetadata: meta,
			},
		}
	}

	if err := s.HSetMulti(ctx, items); err != nil {
		return nil, fmt.Errorf("insert documents into %s: %w", c.name, err)
	}

	metrics.DocumentsInsertedTotal.WithLabelValues(c.name).Add(float64(len(items)))
	if c.opts.InvalidateOnInsert && c.cache != nil {
		c.cache.Invalidate(c.name)
	}

	c.logger.Debug("Documents inserted",
		zap.Int("count", len(items)),
		zap.Int("total_tokens", emb.TotalTokens),
	)
	return ids, nil
}

// Query returns the k fragments nearest to text, serving repeats from the query cache.
func (c *Client) Query(ctx context.Context, text string, k int) ([]domain.Fragment, error) {
	if k <= 0 {
		return nil, &domain.QueryError{
			Collection: c.name, Query: text,
			Err: fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidArgument, k),
		}
	}

	var key querycache.Key
	if c.cache != nil {
		key = c.cache.KeyFor(c.name, text, k)
		if cached, ok := c.cache.Lookup(key); ok {
			return slices.Clone(cached), nil
		}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	s, err := c.connected(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := c.search(ctx, s, text, k)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StoreQueryDuration.WithLabelValues(c.name, status).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &domain.QueryError{Collection: c.name, Query: text, Err: err}
	}

	if c.cache != nil {
		c.cache.Store(key, results)
	}
	return slices.Clone(results), nil
}

func (c *Client) search(ctx context.Context, s store, text string, k int) ([]domain.Fragment, error) {
	emb, err := c.model.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	res, err := s.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    indexName(c.name),
		Metric:       c.opts.Distance,
		Vector:       emb.Embedding,
		K:            k,
		EFRuntime:    c.opts.EFRuntime,
		ReturnFields: []string{fieldContent, fieldMetadata},
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	fragments := make([]domain.Fragment, 0, len(res.Entries))
	for _, e := range res.Entries {
		meta, err := unmarshalMetadata(e.Fields[fieldMetadata])
		if err != nil {
			c.logger.Warn("Skipping malformed metadata", zap.String("key", e.Key), zap.Error(err))
		}
		fragments = append(fragments, domain.Fragment{
			ID:       documentID(c.name, e.Key),
			Content:  e.Fields[fieldContent],
			Metadata: meta,
			Score:    e.Score,
		})
	}
	return fragments, nil
}

// QueryBatch runs Query for each text and concatenates the results in input order.
// The first failure aborts the batch and is returned as is.
func (c *Client) QueryBatch(ctx context.Context, queries []string, k int) ([]domain.Fragment, error) {
	out := []domain.Fragment{}
	for _, q := range queries {
		results, err := c.Query(ctx, q, k)
		if err != nil {
			return nil, err
		}
		out = append(out, results...)
	}
	return out, nil
}

// Ping connects if needed and checks the store.
func (c *Client) Ping(ctx context.Context) error {
	s, err := c.connected(ctx)
	if err != nil {
		return err
	}
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", c.target, err)
	}
	return nil
}

// Close releases the store. A later call reconnects.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil {
		c.store.Close()
		c.store = nil
	}
	c.state = stateUninitialized
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opts.CallTimeout)
}

func resolveIDs(docs []domain.Document, ids []string) ([]string, error) {
	if ids == nil {
		ids = make([]string, len(docs))
		for i := range ids {
			ids[i] = uuid.NewString()
		}
		return ids, nil
	}
	if len(ids) != len(docs) {
		return nil, fmt.Errorf("%w: %d ids for %d documents", domain.ErrInvalidArgument, len(ids), len(docs))
	}
	for i, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("%w: empty id at %d", domain.ErrInvalidArgument, i)
		}
	}
	return ids, nil
}

func marshalMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(raw string) (map[string]any, error) {
	m := map[string]any{}
	if raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return m, nil
}
