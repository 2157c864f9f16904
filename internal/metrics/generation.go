package metrics

import "github.com/prometheus/client_golang/prometheus"

// Generation backend and provider lifecycle metrics.
var (
	// mode is "generate" or "stream".
	GenerationRequestsTotal = counterVec("generation_requests_total",
		"Generation calls by outcome", "provider", "model", "mode", "status")

	GenerationRequestDuration = histogramVec("generation_request_duration_seconds",
		"Generation latency, up to the last fragment when streaming",
		[]float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}, "provider", "model", "mode")

	GenerationTokensTotal = counterVec("generation_tokens_total",
		"Prompt and completion tokens reported by the backend", "provider", "model", "type")

	GenerationTimeoutsTotal = counterVec("generation_timeouts_total",
		"Generation calls abandoned at the deadline", "provider", "model")

	// kind is "embedding" or "generation".
	ProviderReinitializationsTotal = counterVec("provider_reinitializations_total",
		"Explicit provider re-initializations", "kind")

	ProviderInitFailuresTotal = counterVec("provider_init_failures_total",
		"Provider constructions that failed", "kind")
)

var generationFamily = family{collectors: func() []prometheus.Collector {
	return []prometheus.Collector{
		GenerationRequestsTotal,
		GenerationRequestDuration,
		GenerationTokensTotal,
		GenerationTimeoutsTotal,
		ProviderReinitializationsTotal,
		ProviderInitFailuresTotal,
	}
}}

// RegisterGenerationMetrics registers generation and provider metrics.
func RegisterGenerationMetrics() { generationFamily.register() }
