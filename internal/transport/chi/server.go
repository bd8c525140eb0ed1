package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cvcontext/internal/domain"
	"github.com/kailas-cloud/cvcontext/internal/logger"
	"github.com/kailas-cloud/cvcontext/internal/repository/collection"
	healthuc "github.com/kailas-cloud/cvcontext/internal/usecase/health"
	"github.com/kailas-cloud/cvcontext/internal/usecase/sections"
)

const headerEmbeddingTokens = "X-Embedding-Tokens"

const (
	maxQueries   = 100
	maxK         = 100
	maxDocuments = 500
	maxBodyBytes = 8 << 20
)

// Fetcher runs batched context fetches.
type Fetcher interface {
	FetchTopK(ctx context.Context, queries []string, k int) ([]domain.Fragment, error)
	DefaultK() int
}

// Collections resolves collection clients at the default target.
type Collections interface {
	Collection(ctx context.Context, name string) (*collection.Client, error)
}

// Ingester stores CV chunks.
type Ingester interface {
	Ingest(ctx context.Context, source string, chunks []string) (int, error)
}

// SectionExtractor condenses resume sections.
type SectionExtractor interface {
	Extract(ctx context.Context, source string) map[string]string
	ExtractOne(ctx context.Context, section, source string) (string, error)
}

// Admin exposes cache lifecycle operations.
type Admin interface {
	PrewarmDefaults(ctx context.Context) error
	Reset()
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Deps are the use cases the HTTP API serves.
type Deps struct {
	Fetcher     Fetcher
	Collections Collections
	Ingest      Ingester
	Sections    SectionExtractor
	Admin       Admin
	Health      HealthChecker
	// Prewarmed reports the prewarm flag for admin responses.
	Prewarmed func() bool
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers.
type Server struct {
	deps          Deps
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(deps Deps, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{deps: deps, logger: log}
	// порядок важен: QueryError оборачивает ErrInvalidArgument и ошибки провайдера
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, ErrorCodeValidationFailed),
		sentinelHandler(sections.ErrUnknownSection, http.StatusBadRequest, ErrorCodeUnknownSection),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, ErrorCodeEmbeddingProviderError),
		sentinelHandler(domain.ErrModelLoad, http.StatusServiceUnavailable, ErrorCodeModelUnavailable),
		sentinelHandler(domain.ErrStoreConnection, http.StatusServiceUnavailable, ErrorCodeStoreUnavailable),
		sentinelHandler(domain.ErrQuery, http.StatusBadGateway, ErrorCodeQueryFailed),
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/context/query", s.QueryContext)
		r.Post("/collections/{name}/documents", s.InsertDocuments)
		r.Post("/cv/ingest", s.IngestCV)
		r.Get("/cv/sections", s.GetSections)
		r.Post("/admin/prewarm", s.Prewarm)
		r.Post("/admin/reset", s.Reset)
	})
}

// QueryContext handles POST /v1/context/query.
func (s *Server) QueryContext(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Queries) > maxQueries {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "too many queries")
		return
	}
	k := s.deps.Fetcher.DefaultK()
	if req.K != nil {
		k = *req.K
	}
	if k <= 0 || k > maxK {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "k must be between 1 and 100")
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	results, err := s.deps.Fetcher.FetchTopK(ctx, req.Queries, k)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, QueryResponse{Results: results, Total: len(results)})
}

// InsertDocuments handles POST /v1/collections/{name}/documents.
func (s *Server) InsertDocuments(w http.ResponseWriter, r *http.Request) {
	var req InsertDocumentsRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "documents are required")
		return
	}
	if len(req.Documents) > maxDocuments {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "too many documents")
		return
	}

	client, err := s.deps.Collections.Collection(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	ctx, usage := domain.NewContextWithUsage(r.Context())
	ids, err := client.InsertDocuments(ctx, req.Documents, req.IDs)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusCreated, InsertDocumentsResponse{IDs: ids, Inserted: len(ids)})
}

// IngestCV handles POST /v1/cv/ingest.
func (s *Server) IngestCV(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, usage := domain.NewContextWithUsage(r.Context())
	n, err := s.deps.Ingest.Ingest(ctx, req.Source, req.Chunks)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, IngestResponse{ChunksProcessed: n})
}

// GetSections handles GET /v1/cv/sections?source=&section=.
func (s *Server) GetSections(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "source is required")
		return
	}

	section := r.URL.Query().Get("section")
	if section == "" {
		writeJSON(w, http.StatusOK, SectionsResponse{
			Source:   source,
			Sections: s.deps.Sections.Extract(r.Context(), source),
		})
		return
	}

	text, err := s.deps.Sections.ExtractOne(r.Context(), section, source)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SectionsResponse{
		Source:   source,
		Sections: map[string]string{section: text},
	})
}

// Prewarm handles POST /v1/admin/prewarm.
func (s *Server) Prewarm(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Admin.PrewarmDefaults(r.Context()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PrewarmResponse{Prewarmed: s.prewarmed()})
}

// Reset handles POST /v1/admin/reset.
func (s *Server) Reset(w http.ResponseWriter, _ *http.Request) {
	s.deps.Admin.Reset()
	writeJSON(w, http.StatusOK, PrewarmResponse{Prewarmed: s.prewarmed()})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
		logger.FromContextOr(r.Context(), s.logger).
			Warn("Health check degraded", zap.Strings("failed", report.Failed()))
	}
	writeJSON(w, status, report)
}

func (s *Server) prewarmed() bool {
	if s.deps.Prewarmed == nil {
		return false
	}
	return s.deps.Prewarmed()
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// setEmbeddingHeaders reports provider tokens spent on the request; omitted when
// everything was served from cache.
func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage.Used() {
		w.Header().Set(headerEmbeddingTokens, strconv.Itoa(usage.TotalTokens()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidArgument,
		sections.ErrUnknownSection,
		domain.ErrEmbeddingProviderError,
		domain.ErrUnknownModel,
		domain.ErrModelLoad,
		domain.ErrUnsupportedTarget,
		domain.ErrStoreConnection,
		domain.ErrQuery,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContextOr(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
