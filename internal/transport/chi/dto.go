package chi

import "github.com/kailas-cloud/cvcontext/internal/domain"

// ErrorCode is the machine-readable error identifier in ErrorResponse.
type ErrorCode string

const (
	ErrorCodeBadRequest             ErrorCode = "bad_request"
	ErrorCodeUnauthorized           ErrorCode = "unauthorized"
	ErrorCodeValidationFailed       ErrorCode = "validation_failed"
	ErrorCodeUnknownSection         ErrorCode = "unknown_section"
	ErrorCodeModelUnavailable       ErrorCode = "model_unavailable"
	ErrorCodeStoreUnavailable       ErrorCode = "store_unavailable"
	ErrorCodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	ErrorCodeQueryFailed            ErrorCode = "query_failed"
	ErrorCodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// QueryRequest is the body of POST /v1/context/query.
type QueryRequest struct {
	Queries []string `json:"queries"`
	K       *int     `json:"k,omitempty"`
}

// QueryResponse lists fragments in query order.
type QueryResponse struct {
	Results []domain.Fragment `json:"results"`
	Total   int               `json:"total"`
}

// InsertDocumentsRequest is the body of POST /v1/collections/{name}/documents.
type InsertDocumentsRequest struct {
	Documents []domain.Document `json:"documents"`
	IDs       []string          `json:"ids,omitempty"`
}

// InsertDocumentsResponse returns the ids the documents were stored under.
type InsertDocumentsResponse struct {
	IDs      []string `json:"ids"`
	Inserted int      `json:"inserted"`
}

// IngestRequest is the body of POST /v1/cv/ingest.
type IngestRequest struct {
	Source string   `json:"source"`
	Chunks []string `json:"chunks"`
}

// IngestResponse reports how many chunks were stored.
type IngestResponse struct {
	ChunksProcessed int `json:"chunks_processed"`
}

// SectionsResponse maps section names to extracted text.
type SectionsResponse struct {
	Source   string            `json:"source"`
	Sections map[string]string `json:"sections"`
}

// PrewarmResponse reports the prewarm flag after the call.
type PrewarmResponse struct {
	Prewarmed bool `json:"prewarmed"`
}
