package domain

import (
	"context"
	"errors"
	"testing"
)

type stubEmbedder struct {
	result EmbeddingResult
	err    error
	got    []string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	s.got = append(s.got, text)
	return s.result, s.err
}

type stubBatchEmbedder struct {
	stubEmbedder
	batchCalls int
}

func (s *stubBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (BatchEmbeddingResult, error) {
	s.batchCalls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.result.Embedding
	}
	return BatchEmbeddingResult{Embeddings: out}, nil
}

func TestEmbedEach_SumsUsage(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{Embedding: []float32{1}, PromptTokens: 2, TotalTokens: 3}}

	res, err := EmbedEach(context.Background(), inner, []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(res.Embeddings))
	}
	if res.PromptTokens != 4 || res.TotalTokens != 6 {
		t.Errorf("unexpected usage: prompt=%d total=%d", res.PromptTokens, res.TotalTokens)
	}
	if len(inner.got) != 2 || inner.got[0] != "a" || inner.got[1] != "b" {
		t.Errorf("unexpected texts: %v", inner.got)
	}
}

func TestEmbedEach_StopsOnError(t *testing.T) {
	innerErr := errors.New("provider down")
	inner := &stubEmbedder{err: innerErr}

	_, err := EmbedEach(context.Background(), inner, []string{"a", "b"})
	if !errors.Is(err, innerErr) {
		t.Errorf("expected wrapped inner error, got %v", err)
	}
	if len(inner.got) != 1 {
		t.Errorf("expected to stop after the first failure, got %d calls", len(inner.got))
	}
}

func TestEmbedAll_PrefersNativeBatch(t *testing.T) {
	inner := &stubBatchEmbedder{stubEmbedder: stubEmbedder{result: EmbeddingResult{Embedding: []float32{1}}}}

	res, err := EmbedAll(context.Background(), inner, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.batchCalls != 1 {
		t.Errorf("expected 1 batch call, got %d", inner.batchCalls)
	}
	if len(inner.got) != 0 {
		t.Errorf("expected no single Embed calls, got %d", len(inner.got))
	}
	if len(res.Embeddings) != 3 {
		t.Errorf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
}

func TestTypedErrors_MatchSentinelAndCause(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"model_load", &ModelLoadError{Model: "m", Err: cause}, ErrModelLoad},
		{"store_connection", &StoreConnectionError{Collection: "c", Target: "memory://x", Err: cause}, ErrStoreConnection},
		{"query", &QueryError{Collection: "c", Query: "q", Err: cause}, ErrQuery},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, tc.sentinel) {
				t.Errorf("expected %v to match sentinel %v", tc.err, tc.sentinel)
			}
			if !errors.Is(tc.err, cause) {
				t.Errorf("expected %v to match cause", tc.err)
			}
		})
	}
}

func TestFragment_Source(t *testing.T) {
	f := Fragment{Metadata: map[string]any{"source": "cv.pdf"}}
	if s, ok := f.Source(); !ok || s != "cv.pdf" {
		t.Errorf("Source() = %q, %v", s, ok)
	}
	if _, ok := (Fragment{}).Source(); ok {
		t.Error("expected no source on empty metadata")
	}
	if _, ok := (Fragment{Metadata: map[string]any{"source": 42}}).Source(); ok {
		t.Error("expected non-string source to be ignored")
	}
}

func TestEmbeddingUsage(t *testing.T) {
	if UsageFromContext(context.Background()) != nil {
		t.Fatal("expected nil usage without collector")
	}
	var nilUsage *EmbeddingUsage
	nilUsage.AddTokens(5)
	if nilUsage.Used() || nilUsage.TotalTokens() != 0 {
		t.Error("nil usage must stay empty")
	}

	ctx, u := NewContextWithUsage(context.Background())
	if UsageFromContext(ctx) != u {
		t.Fatal("collector not found in context")
	}
	if u.Used() {
		t.Error("fresh collector should be unused")
	}
	u.AddTokens(0)
	u.AddTokens(7)
	if !u.Used() || u.TotalTokens() != 7 {
		t.Errorf("got used=%v tokens=%d", u.Used(), u.TotalTokens())
	}
}
