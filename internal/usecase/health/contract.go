package health

import (
	"context"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Store is the budget store probe. db.Store satisfies it.
type Store interface {
	Ping(ctx context.Context) error
}

// Provider is a model provider that reports readiness.
type Provider = domain.HealthChecker
