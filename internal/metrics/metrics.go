// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ctxdex"

var registerOnce sync.Once

// Register adds every collector to the default registry. Must be called from main;
// repeated calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestDuration,
			httpRequestsTotal,
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			EmbeddingFallbackTotal,
			EmbeddingBudgetTokensRemaining,
			EmbeddingCacheTotal,
			RetrievalTotal,
			RetrievalDuration,
			RetrievalTierErrorsTotal,
			UsageRecordsTotal,
		)
	})
}
