package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cvcontext/internal/db"
	"github.com/kailas-cloud/cvcontext/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "emb_cache:"

// store is the slice of db.KVStore the cache needs.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithTTL expires cached vectors after ttl; 0 keeps them until the store evicts them.
func WithTTL(ttl time.Duration) Option {
	return func(e *Embedder) { e.ttl = ttl }
}

// WithDimensions treats cached vectors of any other length as corrupt.
func WithDimensions(dim int) Option {
	return func(e *Embedder) { e.dim = dim }
}

// Embedder puts a text->vector cache in front of another embedder.
// Keys are sha256(text) scoped by model, so models never share vectors.
// Store failures degrade to misses and never fail a call.
type Embedder struct {
	inner      domain.Embedder
	model      string
	store      store
	ttl        time.Duration
	dim        int
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New wraps inner. cacheTotal is labelled by result (hit, miss) and may be nil.
func New(
	inner domain.Embedder,
	model string,
	s store,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
	opts ...Option,
) *Embedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Embedder{
		inner:      inner,
		model:      model,
		store:      s,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed serves text from the cache, or embeds and stores it.
// A hit reports zero tokens.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := e.key(text)
	if vec := e.get(ctx, key); vec != nil {
		e.count("hit", 1)
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	e.count("miss", 1)

	res, err := e.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	e.put(ctx, key, res.Embedding)
	return res, nil
}

// BatchEmbed resolves all texts with one MGet and embeds each distinct miss
// once. Token usage covers the misses only.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = e.key(text)
	}
	vecs := e.getMany(ctx, keys)

	// pending maps a missing key to every position waiting on it
	pending := make(map[string][]int)
	var missKeys, missTexts []string
	for i, vec := range vecs {
		if vec != nil {
			continue
		}
		if _, seen := pending[keys[i]]; !seen {
			missKeys = append(missKeys, keys[i])
			missTexts = append(missTexts, texts[i])
		}
		pending[keys[i]] = append(pending[keys[i]], i)
	}
	e.count("hit", len(texts)-len(missTexts))
	e.count("miss", len(missTexts))

	out := domain.BatchEmbeddingResult{Embeddings: vecs}
	if len(missTexts) == 0 {
		return out, nil
	}

	res, err := domain.EmbedAll(ctx, e.inner, missTexts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed %d uncached texts: %w", len(missTexts), err)
	}
	if len(res.Embeddings) != len(missTexts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("inner embedder returned %d vectors for %d texts: %w",
			len(res.Embeddings), len(missTexts), domain.ErrEmbeddingProviderError)
	}

	for j, key := range missKeys {
		for _, i := range pending[key] {
			vecs[i] = res.Embeddings[j]
		}
		e.put(ctx, key, res.Embeddings[j])
	}
	out.PromptTokens = res.PromptTokens
	out.TotalTokens = res.TotalTokens
	return out, nil
}

func (e *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + e.model + ":" + hex.EncodeToString(sum[:])
}

func (e *Embedder) count(result string, n int) {
	if e.cacheTotal != nil && n > 0 {
		e.cacheTotal.WithLabelValues(result).Add(float64(n))
	}
}

func (e *Embedder) get(ctx context.Context, key string) []float32 {
	data, err := e.store.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return nil
	case err != nil:
		e.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		return nil
	}
	return e.decode(key, data)
}

// getMany returns one slot per key; nil marks a miss.
func (e *Embedder) getMany(ctx context.Context, keys []string) [][]float32 {
	out := make([][]float32, len(keys))
	values, err := e.store.MGet(ctx, keys)
	if err != nil {
		e.logger.Warn("Failed to get cached embeddings", zap.Int("keys", len(keys)), zap.Error(err))
		return out
	}
	for i := range min(len(values), len(out)) {
		if values[i] != nil {
			out[i] = e.decode(keys[i], values[i])
		}
	}
	return out
}

func (e *Embedder) decode(key string, data []byte) []float32 {
	vec, err := decodeVector(data, e.dim)
	if err != nil {
		e.logger.Warn("Discarding corrupt cached embedding", zap.String("key", key), zap.Error(err))
		return nil
	}
	return vec
}

func (e *Embedder) put(ctx context.Context, key string, vec []float32) {
	if err := e.store.Set(ctx, key, encodeVector(vec), e.ttl); err != nil {
		e.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}
