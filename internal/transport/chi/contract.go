package chi

import (
	"context"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/fingerprint"
	domusage "github.com/kailas-cloud/docqa/internal/domain/usage"
	"github.com/kailas-cloud/docqa/internal/repository/indexcache"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
	"github.com/kailas-cloud/docqa/internal/usecase/lazy"
	"github.com/kailas-cloud/docqa/internal/usecase/qa"
)

// QA answers questions about uploaded documents.
type QA interface {
	Ask(ctx context.Context, req qa.Request) (domain.AnswerResult, error)
	Answer(ctx context.Context, req qa.Request) (string, error)
	AskStream(ctx context.Context, req qa.Request) (*qa.Stream, error)
}

// IndexCache exposes cache administration.
type IndexCache interface {
	Entries() []indexcache.Entry
	Get(fp fingerprint.Fingerprint) (indexcache.Entry, bool)
	Remove(fp fingerprint.Fingerprint) bool
	Clear() int
}

// Reinitializer drops a lazily built provider.
type Reinitializer interface {
	Initialized() bool
	Reinitialize(ctx context.Context, reason string) lazy.Event
}

// UsageReporter builds embedding usage reports.
type UsageReporter interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
