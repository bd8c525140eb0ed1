package embedding

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cvcontext/internal/domain"
)

// DefaultMaxAPIBatchSize ограничивает размер батча одного API-запроса.
const DefaultMaxAPIBatchSize = 256

// InstrumentedEmbedder logs every call, splits batches into API-sized chunks
// and adds consumed tokens to the request's domain.EmbeddingUsage.
// Transport metrics live in transport/openai.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	maxBatch int
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps inner. maxBatch <= 0 means DefaultMaxAPIBatchSize.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	maxBatch int, logger *zap.Logger,
) *InstrumentedEmbedder {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxAPIBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedEmbedder{
		inner:    inner,
		maxBatch: maxBatch,
		logger:   logger.With(zap.String("provider", provider), zap.String("model", model)),
	}
}

// Embed delegates to the inner embedder.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()
	res, err := p.inner.Embed(ctx, text)
	if err != nil {
		p.logger.Error("Embedding request failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)
	p.logger.Debug("Embedding request completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("dimensions", len(res.Embedding)),
		zap.Int("total_tokens", res.TotalTokens))
	return res, nil
}

// BatchEmbed sends texts in chunks of at most maxBatch. Vectors keep input
// order; the first failing chunk fails the whole call.
func (p *InstrumentedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	usage := domain.UsageFromContext(ctx)
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}

	offset := 0
	for chunk := range slices.Chunk(texts, p.maxBatch) {
		res, err := domain.EmbedAll(ctx, p.inner, chunk)
		if err == nil && len(res.Embeddings) != len(chunk) {
			err = fmt.Errorf("got %d vectors for %d texts: %w",
				len(res.Embeddings), len(chunk), domain.ErrEmbeddingProviderError)
		}
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err))
			return domain.BatchEmbeddingResult{}, fmt.Errorf("chunk at %d: %w", offset, err)
		}

		usage.AddTokens(res.TotalTokens)
		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
		offset += len(chunk)
	}

	p.logger.Debug("Batch embedding completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("chunks", (len(texts)+p.maxBatch-1)/p.maxBatch),
		zap.Int("total_tokens", out.TotalTokens))
	return out, nil
}
