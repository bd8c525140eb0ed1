// Package ingest inserts pre-chunked CV text into the default collection.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cvcontext/internal/domain"
	"github.com/kailas-cloud/cvcontext/internal/repository/collection"
)

// clients is the consumer interface for the client registry (ISP).
type clients interface {
	Get(ctx context.Context, collectionName, target string) (*collection.Client, error)
}

// Config names the collection chunks are written to.
type Config struct {
	Collection string
	Target     string
}

// Service turns text chunks into collection documents.
type Service struct {
	clients clients
	cfg     Config
	logger  *zap.Logger
}

// New creates an ingest Service.
func New(clients clients, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{clients: clients, cfg: cfg, logger: logger}
}

// Ingest stores every non-blank chunk with {"source", "chunk"} metadata and
// returns how many were written.
func (s *Service) Ingest(ctx context.Context, source string, chunks []string) (int, error) {
	if strings.TrimSpace(source) == "" {
		return 0, fmt.Errorf("%w: source is required", domain.ErrInvalidArgument)
	}

	docs := make([]domain.Document, 0, len(chunks))
	for _, c := range chunks {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		docs = append(docs, domain.Document{
			Content:  c,
			Metadata: map[string]any{"source": source, "chunk": len(docs)},
		})
	}
	if len(docs) == 0 {
		return 0, nil
	}

	client, err := s.clients.Get(ctx, s.cfg.Collection, s.cfg.Target)
	if err != nil {
		return 0, err //nolint:wrapcheck // registry errors propagate unchanged
	}
	if _, err := client.InsertDocuments(ctx, docs, nil); err != nil {
		return 0, err //nolint:wrapcheck // insert errors propagate unchanged
	}

	s.logger.Info("CV ingested",
		zap.String("source", source),
		zap.String("collection", s.cfg.Collection),
		zap.Int("chunks", len(docs)),
	)
	return len(docs), nil
}

// SplitParagraphs splits plain text on blank lines.
func SplitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
