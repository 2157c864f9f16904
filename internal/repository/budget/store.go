// Package budget persists embedding token counters in the key-value store so
// the daily and monthly budgets survive restarts.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/docqa/internal/db"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/usage"
)

// Default counter lifetimes. A counter outlives its window so usage stays
// readable for a while after the window closes.
const (
	DefaultDailyTTL   = 48 * time.Hour
	DefaultMonthlyTTL = 62 * 24 * time.Hour
)

// ErrUnsupportedPeriod is returned for periods without a counter.
var ErrUnsupportedPeriod = errors.New("budget: period has no counter")

// Store keeps one counter per provider and window:
//
//	docqa:budget:{provider}:day:{2006-01-02}
//	docqa:budget:{provider}:month:{2006-01}
type Store struct {
	kv   db.KVStore
	ttls map[usage.Period]time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides the lifetime of counters for one period.
func WithTTL(p usage.Period, ttl time.Duration) Option {
	return func(s *Store) { s.ttls[p] = ttl }
}

// New creates a Store on top of kv.
func New(kv db.KVStore, opts ...Option) *Store {
	s := &Store{
		kv: kv,
		ttls: map[usage.Period]time.Duration{
			usage.PeriodDay:   DefaultDailyTTL,
			usage.PeriodMonth: DefaultMonthlyTTL,
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Add increments the counter for the window containing at. The expiry is set
// once, when the counter is created.
func (s *Store) Add(ctx context.Context, provider string, p usage.Period, at time.Time, tokens int64) error {
	key, err := counterKey(provider, p, at)
	if err != nil {
		return err
	}
	if err := s.kv.AddWithTTL(ctx, key, tokens, s.ttls[p]); err != nil {
		return fmt.Errorf("increment %s: %w", key, err)
	}
	return nil
}

// Load reads the counter for the window containing at. A missing counter is zero.
func (s *Store) Load(ctx context.Context, provider string, p usage.Period, at time.Time) (int64, error) {
	key, err := counterKey(provider, p, at)
	if err != nil {
		return 0, err
	}
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func counterKey(provider string, p usage.Period, at time.Time) (string, error) {
	at = at.UTC()
	var window string
	switch p {
	case usage.PeriodDay:
		window = at.Format("2006-01-02")
	case usage.PeriodMonth:
		window = at.Format("2006-01")
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPeriod, p)
	}
	return fmt.Sprintf("%sbudget:%s:%s:%s", domain.KeyPrefix, provider, p, window), nil
}
