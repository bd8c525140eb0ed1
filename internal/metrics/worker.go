package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Worker pool metrics, labelled by pool name.
var (
	WorkerQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_queue_depth",
			Help:      "Current worker pool queue depth",
		},
		[]string{"pool"},
	)

	WorkerItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_items_total",
			Help:      "Work items by outcome",
		},
		[]string{"pool", "outcome"}, // submitted / dropped / success / error
	)

	WorkerProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_processing_duration_seconds",
			Help:      "Time spent processing work items",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
		[]string{"pool", "status"},
	)
)

var workerOnce sync.Once

// RegisterWorkerMetrics registers worker pool metrics with the default registry.
func RegisterWorkerMetrics() {
	workerOnce.Do(func() {
		prometheus.MustRegister(WorkerQueueDepth, WorkerItemsTotal, WorkerProcessingDuration)
	})
}
