package qa

import (
	"sync"
	"time"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// stageTimer records per-stage wall time for one request.
type stageTimer struct {
	mu        sync.Mutex
	durations map[domain.Stage]time.Duration
}

func newStageTimer() *stageTimer {
	return &stageTimer{durations: make(map[domain.Stage]time.Duration, len(domain.Stages))}
}

func (t *stageTimer) run(stage domain.Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	t.record(stage, time.Since(start))
	return err
}

func (t *stageTimer) record(stage domain.Stage, d time.Duration) {
	t.mu.Lock()
	t.durations[stage] += d
	t.mu.Unlock()
	metrics.PipelineStageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// snapshot lists every stage in order. Stages that did not run report zero.
func (t *stageTimer) snapshot() []domain.StageMetric {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.StageMetric, len(domain.Stages))
	for i, s := range domain.Stages {
		out[i] = domain.StageMetric{Stage: s, Duration: t.durations[s]}
	}
	return out
}
