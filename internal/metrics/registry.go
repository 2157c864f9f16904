// Package metrics holds the docqa Prometheus collectors. Families are
// created at package init and registered on the default registry by RegisterAll.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docqa"

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

func histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

func gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

// family registers its collectors at most once.
type family struct {
	once       sync.Once
	collectors func() []prometheus.Collector
}

func (f *family) register() {
	f.once.Do(func() { prometheus.MustRegister(f.collectors()...) })
}

// RegisterAll registers every docqa metric family. Safe to call repeatedly.
func RegisterAll() {
	RegisterHTTPMetrics()
	RegisterEmbeddingMetrics()
	RegisterGenerationMetrics()
	RegisterPipelineMetrics()
}
