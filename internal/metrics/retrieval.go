package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval and usage accounting metrics.
var (
	// RetrievalTotal counts answered requests by kind (retrieve/places) and the tier that produced the hits.
	RetrievalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_total",
			Help:      "Retrieval requests by winning tier",
		},
		[]string{"kind", "tier"},
	)

	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "End-to-end retrieval duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)

	RetrievalTierErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_tier_errors_total",
			Help:      "Store failures swallowed by a cascade tier",
		},
		[]string{"tier"},
	)

	// UsageRecordsTotal status: ok, error, dropped.
	UsageRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_records_total",
			Help:      "Usage records delivered to sinks",
		},
		[]string{"sink", "status"},
	)
)
