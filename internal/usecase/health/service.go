package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the budget store is down; answers still work.
	Degraded Status = "degraded"
	// Unhealthy indicates a model provider is down; answers fail.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names used as Report keys.
const (
	ComponentDatabase   = "database"
	ComponentEmbedding  = "embedding"
	ComponentGeneration = "generation"
)

// DefaultTimeout bounds each component check.
const DefaultTimeout = 5 * time.Second

// Report aggregates health check results. Messages holds a user-safe
// explanation for each failing component.
type Report struct {
	Status   Status
	Checks   map[string]CheckResult
	Messages map[string]string
}

// Service coordinates health checks.
type Service struct {
	db         Store
	embedding  Provider
	generation Provider
	timeout    time.Duration
	logger     *zap.Logger
}

// New creates a Service. Any checker can be nil and is then skipped.
func New(db Store, embedding, generation Provider, timeout time.Duration, logger *zap.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		db:         db,
		embedding:  embedding,
		generation: generation,
		timeout:    timeout,
		logger:     logger,
	}
}

// Check runs all component checks concurrently.
func (s *Service) Check(ctx context.Context) Report {
	r := Report{
		Checks:   make(map[string]CheckResult),
		Messages: make(map[string]string),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	run := func(name string, probe func(context.Context) error) {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()

			err := probe(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("Health check failed", zap.String("component", name), zap.Error(err))
				r.Checks[name] = CheckError
				r.Messages[name] = domain.UserMessage(err)
				return nil
			}
			r.Checks[name] = CheckOK
			return nil
		})
	}

	if s.db != nil {
		run(ComponentDatabase, s.db.Ping)
	}
	if s.embedding != nil {
		run(ComponentEmbedding, s.embedding.HealthCheck)
	}
	if s.generation != nil {
		run(ComponentGeneration, s.generation.HealthCheck)
	}
	_ = g.Wait()

	r.Status = Healthy
	if r.Checks[ComponentDatabase] == CheckError {
		r.Status = Degraded
	}
	if r.Checks[ComponentEmbedding] == CheckError || r.Checks[ComponentGeneration] == CheckError {
		r.Status = Unhealthy
	}
	return r
}
