package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/cvcontext/internal/domain"
)

var errNoHealthCheck = errors.New("model has no health check")

// Model is a loaded embedding model handle. Immutable after load.
type Model struct {
	name     string
	dims     int
	embedder domain.Embedder
	health   domain.HealthChecker
}

// Name returns the catalog name the model was loaded under.
func (m *Model) Name() string { return m.name }

// Dimensions returns the vector length learned from the load probe.
func (m *Model) Dimensions() int { return m.dims }

// Embed vectorizes a single text.
func (m *Model) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("model %s: %w", m.name, err)
	}
	return res, nil
}

// BatchEmbed vectorizes texts, preserving order.
func (m *Model) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	res, err := domain.EmbedAll(ctx, m.embedder, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("model %s: %w", m.name, err)
	}
	return res, nil
}

// HealthCheck probes the provider behind the model, if it exposes one.
func (m *Model) HealthCheck(ctx context.Context) error {
	if m.health == nil {
		return errNoHealthCheck
	}
	if err := m.health.HealthCheck(ctx); err != nil {
		return fmt.Errorf("model %s: %w", m.name, err)
	}
	return nil
}

// HasHealthCheck reports whether HealthCheck reaches a real provider.
func (m *Model) HasHealthCheck() bool { return m.health != nil }

var _ domain.EmbeddingModel = (*Model)(nil)
