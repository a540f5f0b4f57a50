package metrics

import "github.com/prometheus/client_golang/prometheus"

// Segmenter and chunk store Prometheus metrics.
var (
	SegmenterChunksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ragstore",
		Name:      "segmenter_chunks_total",
		Help:      "Chunks produced by the segmenter",
	})

	SegmenterDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ragstore",
		Name:      "segmenter_dropped_chunks_total",
		Help:      "Raw chunks dropped for being below the minimum size",
	})

	SegmenterHardCutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ragstore",
		Name:      "segmenter_hard_cuts_total",
		Help:      "Unbreakable words cut at the character limit (lossy)",
	})

	StoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragstore",
			Name:      "chunkstore_operations_total",
			Help:      "Chunk store operations by outcome",
		},
		[]string{"op", "status"},
	)

	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragstore",
			Name:      "chunkstore_operation_duration_seconds",
			Help:      "Chunk store operation duration including limiter wait",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"op"},
	)

	StoreInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ragstore",
		Name:      "chunkstore_inflight_calls",
		Help:      "Operations currently holding a limiter slot",
	})

	StoreLimiterWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ragstore",
		Name:      "chunkstore_limiter_wait_seconds",
		Help:      "Time spent waiting for a limiter slot",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	StoreDeletesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragstore",
			Name:      "chunkstore_file_deletes_total",
			Help:      "File deletions by reconciliation method",
		},
		[]string{"method"},
	)
)

var storeMetricsRegistered bool

// RegisterStoreMetrics registers segmenter and chunk store metrics. Must be called once from main.
func RegisterStoreMetrics() {
	if storeMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		SegmenterChunksTotal,
		SegmenterDroppedTotal,
		SegmenterHardCutsTotal,
		StoreOperationsTotal,
		StoreOperationDuration,
		StoreInFlight,
		StoreLimiterWait,
		StoreDeletesTotal,
	)
	storeMetricsRegistered = true
}
