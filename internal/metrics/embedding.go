package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace          = "cvcontext"
	embeddingSubsystem = "embedding"
)

var providerLabels = []string{"provider", "model"}

func embeddingCounter(name, help string, extra ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: embeddingSubsystem,
		Name:      name,
		Help:      help,
	}, append(append([]string{}, providerLabels...), extra...))
}

// Provider-side embedding metrics. Every series carries provider and model.
var (
	// EmbeddingRequestsTotal counts finished requests by outcome (success / error).
	EmbeddingRequestsTotal = embeddingCounter("requests_total",
		"Embedding API requests by final outcome", "status")

	// EmbeddingRequestDuration observes every attempt, retries included.
	EmbeddingRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: embeddingSubsystem,
		Name:      "request_duration_seconds",
		Help:      "Latency of a single embedding API attempt",
		Buckets:   prometheus.ExponentialBucketsRange(0.005, 10, 10),
	}, providerLabels)

	// EmbeddingTokensTotal splits billed tokens into prompt and total.
	EmbeddingTokensTotal = embeddingCounter("tokens_total",
		"Tokens billed by the embedding provider", "type")

	EmbeddingErrorsTotal = embeddingCounter("errors_total",
		"Failed embedding requests by cause", "error_type")

	EmbeddingRetriesTotal = embeddingCounter("retries_total",
		"Embedding attempts repeated after 429 or 5xx", "status")
)

// EmbeddingCacheTotal counts store-backed vector cache lookups, result=hit|miss.
var EmbeddingCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: embeddingSubsystem,
	Name:      "cache_total",
	Help:      "Store-backed embedding cache lookups",
}, []string{"result"})

var embOnce sync.Once

// RegisterEmbeddingMetrics registers embedding metrics with the default registry once.
func RegisterEmbeddingMetrics() {
	embOnce.Do(func() {
		prometheus.MustRegister(
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			EmbeddingRetriesTotal,
			EmbeddingCacheTotal,
		)
	})
}
