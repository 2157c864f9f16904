package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding backend metrics, labelled by provider and model.
var (
	EmbeddingRequestsTotal = counterVec("embedding_requests_total",
		"Embedding calls by outcome", "provider", "model", "status")

	EmbeddingRequestDuration = histogramVec("embedding_request_duration_seconds",
		"Latency of one embedding call (a single text or one batch)",
		[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}, "provider", "model")

	// type is "prompt" or "total".
	EmbeddingTokensTotal = counterVec("embedding_tokens_total",
		"Embedding tokens reported by the backend", "provider", "model", "type")

	EmbeddingErrorsTotal = counterVec("embedding_errors_total",
		"Failed embedding calls by cause", "provider", "model", "error_type")

	// period is "daily" or "monthly". Unlimited budgets are not exported.
	EmbeddingBudgetTokensRemaining = gaugeVec("embedding_budget_tokens_remaining",
		"Tokens left before the embedding budget is exhausted", "provider", "period")
)

var embeddingFamily = family{collectors: func() []prometheus.Collector {
	return []prometheus.Collector{
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingTokensTotal,
		EmbeddingErrorsTotal,
		EmbeddingBudgetTokensRemaining,
	}
}}

// RegisterEmbeddingMetrics registers the embedding family.
func RegisterEmbeddingMetrics() { embeddingFamily.register() }
