package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GenAICallsTotal tracks model calls per key and outcome
	GenAICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagematch_genai_calls_total",
			Help: "Total number of model calls",
		},
		[]string{"key", "outcome"},
	)

	// GenAIFailuresTotal tracks failed model calls by failure class
	GenAIFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagematch_genai_failures_total",
			Help: "Total number of failed model calls",
		},
		[]string{"key", "class"},
	)

	// GenAILatency tracks model call latency
	GenAILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imagematch_genai_latency_seconds",
			Help:    "Model call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"key"},
	)

	// KeyRotationsTotal tracks API key switches
	KeyRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagematch_key_rotations_total",
			Help: "Total number of API key rotations",
		},
		[]string{"reason"},
	)

	// KeysExhaustedTotal tracks rotations that found no usable key
	KeysExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imagematch_keys_exhausted_total",
			Help: "Total number of times every API key was exhausted",
		},
	)

	// ActiveKeyIndex is the index of the key currently in use
	ActiveKeyIndex = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imagematch_active_key_index",
			Help: "Index of the active API key",
		},
	)

	// KeyFailureCount is the failure counter of each key
	KeyFailureCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "imagematch_key_failure_count",
			Help: "Current failure count per API key",
		},
		[]string{"key"},
	)

	// ItemsRatedTotal tracks batch items by how they were resolved
	ItemsRatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagematch_items_rated_total",
			Help: "Total number of batch items resolved",
		},
		[]string{"result"},
	)

	// BatchDuration tracks how long RateBatch takes
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "imagematch_batch_duration_seconds",
			Help:    "RateBatch duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// DBConnectionPoolUsage tracks the percentage of used DB connections
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imagematch_db_connection_pool_usage_percent",
			Help: "Percentage of database connection pool currently in use",
		},
	)
)
