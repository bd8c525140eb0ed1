package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cvcontext/internal/domain"
	"github.com/kailas-cloud/cvcontext/internal/metrics"
)

const defaultRetryBackoff = 200 * time.Millisecond

// Config holds the settings of one OpenAI-compatible endpoint (Nebius AI Studio, OpenAI, vLLM).
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Dimensions is sent as "dimensions" when positive.
	Dimensions int
	User       string
	// Provider is the metrics label.
	Provider string
	// Timeout bounds one HTTP attempt; 0 keeps the go-openai default client.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after a 429 or 5xx.
	MaxRetries int
	// RetryBackoff is the first retry delay, doubled per attempt.
	RetryBackoff time.Duration
	Logger       *zap.Logger
}

// Embedder implements domain.Embedder and domain.BatchEmbedder over /embeddings.
type Embedder struct {
	client   *openai.Client
	model    openai.EmbeddingModel
	dims     int
	user     string
	provider string
	retries  int
	backoff  time.Duration
	logger   *zap.Logger
}

// NewEmbedder creates an embedder for cfg.
func NewEmbedder(cfg *Config) *Embedder {
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	e := &Embedder{
		client:   openai.NewClientWithConfig(cc),
		model:    openai.EmbeddingModel(cfg.Model),
		dims:     cfg.Dimensions,
		user:     cfg.User,
		provider: cfg.Provider,
		retries:  max(0, cfg.MaxRetries),
		backoff:  cfg.RetryBackoff,
		logger:   cfg.Logger,
	}
	if e.backoff <= 0 {
		e.backoff = defaultRetryBackoff
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Embed embeds a single text.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	vecs, usage, err := e.embed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    vecs[0],
		PromptTokens: usage.PromptTokens,
		TotalTokens:  usage.TotalTokens,
	}, nil
}

// BatchEmbed embeds texts in one request. Vectors come back in input order
// whatever order the API lists them in.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	vecs, usage, err := e.embed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   vecs,
		PromptTokens: usage.PromptTokens,
		TotalTokens:  usage.TotalTokens,
	}, nil
}

// HealthCheck calls ListModels, which costs no tokens.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (e *Embedder) embed(ctx context.Context, input []string) ([][]float32, openai.Usage, error) {
	resp, err := e.create(ctx, input)
	if err != nil {
		return nil, openai.Usage{}, err
	}

	if len(resp.Data) == 0 {
		e.failed("empty_response")
		return nil, openai.Usage{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}
	if len(resp.Data) != len(input) {
		e.failed("count_mismatch")
		return nil, openai.Usage{}, fmt.Errorf("embedding response has %d vectors for %d inputs: %w",
			len(resp.Data), len(input), domain.ErrEmbeddingProviderError)
	}

	vecs := make([][]float32, len(input))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) || vecs[d.Index] != nil {
			e.failed("bad_index")
			return nil, openai.Usage{}, fmt.Errorf("embedding response has bad index %d: %w",
				d.Index, domain.ErrEmbeddingProviderError)
		}
		vecs[d.Index] = d.Embedding
	}

	e.succeeded(resp.Usage)
	return vecs, resp.Usage, nil
}

// create sends the request, retrying 429 and 5xx with exponential backoff.
func (e *Embedder) create(ctx context.Context, input []string) (openai.EmbeddingResponse, error) {
	req := openai.EmbeddingRequest{
		Input:          input,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if e.dims > 0 {
		req.Dimensions = e.dims
	}

	delay := e.backoff
	for attempt := 0; ; attempt++ {
		start := time.Now()
		resp, err := e.client.CreateEmbeddings(ctx, req)
		metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, string(e.model)).
			Observe(time.Since(start).Seconds())
		if err == nil {
			return resp, nil
		}

		status := statusCode(err)
		if attempt >= e.retries || !retryable(status) {
			e.failed(errorType(status))
			e.logger.Debug("Embedding request failed",
				zap.String("provider", e.provider),
				zap.String("model", string(e.model)),
				zap.Int("inputs", len(input)),
				zap.Int("attempts", attempt+1),
				zap.Error(err))
			return openai.EmbeddingResponse{}, apiError(err)
		}

		metrics.EmbeddingRetriesTotal.WithLabelValues(e.provider, string(e.model), strconv.Itoa(status)).Inc()
		e.logger.Debug("Retrying embedding request",
			zap.String("model", string(e.model)),
			zap.Int("status", status),
			zap.Duration("backoff", delay))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			e.failed(errorType(status))
			return openai.EmbeddingResponse{}, apiError(ctx.Err())
		case <-t.C:
		}
		delay *= 2
	}
}

func (e *Embedder) succeeded(usage openai.Usage) {
	model := string(e.model)
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "success").Inc()
	if usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "prompt").Add(float64(usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "total").Add(float64(usage.TotalTokens))
	}
}

func (e *Embedder) failed(errType string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, string(e.model), errType).Inc()
}

// statusCode is the HTTP status behind err, or 0 for transport failures.
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func errorType(status int) string {
	if status == http.StatusTooManyRequests {
		return "rate_limited"
	}
	return "api_error"
}

// apiError turns a client error into a readable message wrapping
// domain.ErrEmbeddingProviderError.
func apiError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, domain.ErrEmbeddingProviderError)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("embedding API error %d: %s: %w",
			reqErr.HTTPStatusCode, detail, domain.ErrEmbeddingProviderError)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("embedding request: %w: %w", err, domain.ErrEmbeddingProviderError)
	}
	return fmt.Errorf("embedding request failed: %w", domain.ErrEmbeddingProviderError)
}

// extractDetail reads the Nebius-style {"detail": "..."} error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	return parsed.Detail
}
