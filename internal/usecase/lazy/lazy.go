// Package lazy holds provider instances that are built on first use and
// rebuilt only on explicit request.
package lazy

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Factory builds the instance. It reads its configuration from the closure and
// runs at most once per generation.
type Factory[T any] func(ctx context.Context) (T, error)

// Event describes an explicit re-initialization.
type Event struct {
	Kind       string
	Reason     string
	Generation uint64
}

// Observer is notified after every Reinitialize.
type Observer func(Event)

// Metrics are the optional counters a Singleton reports to.
type Metrics struct {
	Reinitializations *prometheus.CounterVec // label "kind"
	InitFailures      *prometheus.CounterVec // label "kind"
}

type slot[T any] struct {
	value      T
	generation uint64
}

// Singleton is a lazily built, process-wide instance. Concurrent first calls
// block on a single build. A failed build is not cached: the next call retries
// with the same configuration.
type Singleton[T any] struct {
	kind    string
	factory Factory[T]
	metrics Metrics
	logger  *zap.Logger

	ready atomic.Pointer[slot[T]]

	mu         sync.Mutex
	generation uint64
	observers  []Observer
}

// New creates a singleton that builds with factory on first Get.
func New[T any](kind string, factory func(ctx context.Context) (T, error), m Metrics, logger *zap.Logger) *Singleton[T] {
	return &Singleton[T]{
		kind:    kind,
		factory: factory,
		metrics: m,
		logger:  logger,
	}
}

// Get returns the instance, building it if needed. Build failures are returned
// as *domain.ConfigurationError.
func (s *Singleton[T]) Get(ctx context.Context) (T, error) {
	if sl := s.ready.Load(); sl != nil {
		return sl.value, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sl := s.ready.Load(); sl != nil {
		return sl.value, nil
	}

	v, err := s.factory(ctx)
	if err != nil {
		var zero T
		if s.metrics.InitFailures != nil {
			s.metrics.InitFailures.WithLabelValues(s.kind).Inc()
		}
		s.logger.Error("Provider initialization failed",
			zap.String("kind", s.kind),
			zap.Uint64("generation", s.generation),
			zap.Error(err),
		)
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) {
			return zero, err
		}
		return zero, domain.NewConfigurationError(s.kind, err)
	}

	s.ready.Store(&slot[T]{value: v, generation: s.generation})
	s.logger.Info("Provider initialized",
		zap.String("kind", s.kind),
		zap.Uint64("generation", s.generation),
	)
	return v, nil
}

// Initialized reports whether an instance is currently built.
func (s *Singleton[T]) Initialized() bool {
	return s.ready.Load() != nil
}

// Generation returns how many times the singleton has been re-initialized.
func (s *Singleton[T]) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// OnReinitialize registers an observer for Reinitialize events.
func (s *Singleton[T]) OnReinitialize(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Reinitialize drops the current instance; the next Get rebuilds it. Instances
// implementing io.Closer are closed. The event is logged, counted and
// delivered to observers.
func (s *Singleton[T]) Reinitialize(_ context.Context, reason string) Event {
	s.mu.Lock()
	old := s.ready.Swap(nil)
	s.generation++
	ev := Event{Kind: s.kind, Reason: reason, Generation: s.generation}
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	if old != nil {
		if c, ok := any(old.value).(io.Closer); ok {
			if err := c.Close(); err != nil {
				s.logger.Warn("Failed to close provider instance",
					zap.String("kind", s.kind), zap.Error(err))
			}
		}
	}

	if s.metrics.Reinitializations != nil {
		s.metrics.Reinitializations.WithLabelValues(s.kind).Inc()
	}
	s.logger.Info("Provider re-initialization requested",
		zap.String("kind", s.kind),
		zap.String("reason", reason),
		zap.Uint64("generation", ev.Generation),
		zap.Bool("was_initialized", old != nil),
	)

	for _, fn := range observers {
		fn(ev)
	}
	return ev
}
