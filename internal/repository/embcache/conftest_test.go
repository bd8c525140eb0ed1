package embcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cvcontext/internal/db"
	"github.com/kailas-cloud/cvcontext/internal/domain"
)

// fakeEmbedder returns vec = [len(text), calls] and counts invocations.
type fakeEmbedder struct {
	mu         sync.Mutex
	err        error
	tokens     int
	embedCalls int
	batchCalls int
	batchSizes []int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	return domain.EmbeddingResult{
		Embedding:    []float32{float32(len(text)), float32(f.embedCalls)},
		PromptTokens: f.tokens,
		TotalTokens:  f.tokens,
	}, nil
}

func (f *fakeEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	f.batchSizes = append(f.batchSizes, len(texts))
	if f.err != nil {
		return domain.BatchEmbeddingResult{}, f.err
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, text := range texts {
		out.Embeddings[i] = []float32{float32(len(text)), float32(f.batchCalls)}
		out.PromptTokens += f.tokens
		out.TotalTokens += f.tokens
	}
	return out, nil
}

// mockKVStore implements the consumer interface for tests.
// MGet falls back to getFn per key when mgetFn is unset.
type mockKVStore struct {
	getFn  func(ctx context.Context, key string) ([]byte, error)
	mgetFn func(ctx context.Context, keys []string) ([][]byte, error)
	setFn  func(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKVStore) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if m.mgetFn != nil {
		return m.mgetFn(ctx, keys)
	}
	out := make([][]byte, len(keys))
	for i, key := range keys {
		if data, err := m.Get(ctx, key); err == nil {
			out[i] = data
		}
	}
	return out, nil
}

func (m *mockKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	return nil
}

func newTestEmbedder(t *testing.T, inner domain.Embedder) (*Embedder, *mockKVStore) {
	t.Helper()
	ms := &mockKVStore{}
	return New(inner, "test-model", ms, nil, zap.NewNop()), ms
}
