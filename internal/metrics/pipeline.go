package metrics

import "github.com/prometheus/client_golang/prometheus"

// Question answering pipeline and index cache metrics.
var (
	// stage is load, chunk, embed_or_cache, retrieve or generate.
	PipelineStageDuration = histogramVec("pipeline_stage_duration_seconds",
		"Duration of one pipeline stage",
		[]float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60}, "stage")

	PipelineRequestsTotal = counterVec("pipeline_requests_total",
		"Questions answered by outcome", "status")

	// result is hit, miss or shared.
	IndexCacheRequestsTotal = counterVec("index_cache_requests_total",
		"Vector index cache lookups", "result")

	IndexCacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "index_cache_entries",
		Help:      "Vector indexes currently cached",
	})

	IndexCacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "index_cache_evictions_total",
		Help:      "Vector indexes removed by the eviction policy",
	})

	IndexBuildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "index_build_duration_seconds",
		Help:      "Time to embed and index a document on a cache miss",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})
)

var pipelineFamily = family{collectors: func() []prometheus.Collector {
	return []prometheus.Collector{
		PipelineStageDuration,
		PipelineRequestsTotal,
		IndexCacheRequestsTotal,
		IndexCacheEntries,
		IndexCacheEvictionsTotal,
		IndexBuildDuration,
	}
}}

// RegisterPipelineMetrics registers pipeline and cache metrics.
func RegisterPipelineMetrics() { pipelineFamily.register() }
