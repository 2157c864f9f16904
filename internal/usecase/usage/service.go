package usage

import (
	"context"
	"time"

	"github.com/kailas-cloud/docqa/internal/domain"
	domusage "github.com/kailas-cloud/docqa/internal/domain/usage"
)

// Service handles usage reporting.
type Service struct {
	br       BudgetReader
	identity domain.ProviderIdentity
	now      func() time.Time
}

// New creates a Service for the embedding provider identified by identity.
func New(br BudgetReader, identity domain.ProviderIdentity) *Service {
	return &Service{br: br, identity: identity, now: time.Now}
}

// GetReport builds a usage report for the given period. PeriodTotal reports the
// current month, the longest window the budget store retains.
func (s *Service) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	now := s.now().UTC()
	snap := s.br.Snapshot()

	r := domusage.Report{
		Period:   period,
		Provider: s.identity.Provider,
		Model:    s.identity.Model,
	}

	var limit, remaining int64
	var resetsAt time.Time

	switch period {
	case domusage.PeriodDay:
		r.Start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		r.End = r.Start.Add(24 * time.Hour)
		r.TokensUsed = snap.DailyUsed
		limit, remaining, resetsAt = snap.DailyLimit, snap.RemainingDaily, r.End
	case domusage.PeriodMonth:
		r.Start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		r.End = r.Start.AddDate(0, 1, 0)
		r.TokensUsed = snap.MonthlyUsed
		limit, remaining, resetsAt = snap.MonthlyLimit, snap.RemainingMonthly, r.End
	default:
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		r.TokensUsed = snap.MonthlyUsed
		limit, remaining, resetsAt = snap.MonthlyLimit, snap.RemainingMonthly, monthStart.AddDate(0, 1, 0)
	}

	r.Budget = domusage.Budget{
		Limit:     limit,
		Remaining: remaining,
		Exhausted: limit > 0 && remaining <= 0,
		Action:    string(snap.Action),
	}
	if limit > 0 {
		r.Budget.ResetsAt = resetsAt
	}
	return r
}
