package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Retrieval layer metrics: model registry, collection clients, query cache.
var (
	ModelLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_loads_total",
			Help:      "Embedding model load attempts",
		},
		[]string{"model", "result"},
	)

	ModelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_load_duration_seconds",
			Help:      "Time to construct and probe an embedding model",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"model"},
	)

	ClientConnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_connects_total",
			Help:      "Vector collection connection attempts",
		},
		[]string{"collection", "result"},
	)

	QueryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_total",
			Help:      "Query result cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	StoreQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_query_duration_seconds",
			Help:      "Similarity search latency on cache misses, embedding included",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"collection", "status"},
	)

	DocumentsInsertedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_inserted_total",
			Help:      "Documents written to vector collections",
		},
		[]string{"collection"},
	)
)

var retrievalOnce sync.Once

// RegisterRetrievalMetrics registers retrieval metrics with the default registry.
// Safe to call more than once.
func RegisterRetrievalMetrics() {
	retrievalOnce.Do(func() {
		prometheus.MustRegister(
			ModelLoadsTotal,
			ModelLoadDuration,
			ClientConnectsTotal,
			QueryCacheTotal,
			StoreQueryDuration,
			DocumentsInsertedTotal,
		)
	})
}
