// Package indexcache keeps built vector indexes keyed by document fingerprint.
package indexcache

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/fingerprint"
	"github.com/kailas-cloud/docqa/internal/index"
)

// BuildFunc embeds chunks and builds their index. Called on cache miss only.
type BuildFunc func(ctx context.Context, chunks []domain.Chunk) (*index.Index, error)

// Clock abstracts time for CreatedAt stamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Entry is a cached index and its bookkeeping.
type Entry struct {
	Fingerprint fingerprint.Fingerprint
	Index       *index.Index
	CreatedAt   time.Time
	Chunks      int
}

// Metrics are the optional collectors the cache reports to.
type Metrics struct {
	Requests      *prometheus.CounterVec // label "result": hit / miss / shared
	Entries       prometheus.Gauge
	Evictions     prometheus.Counter
	BuildDuration prometheus.Observer
}

// Cache maps fingerprints to indexes. Lookups share a read lock; builds are
// deduplicated per fingerprint, so unrelated documents build in parallel.
type Cache struct {
	mu      sync.RWMutex
	entries map[fingerprint.Fingerprint]Entry

	flights singleflight.Group
	policy  EvictionPolicy
	clock   Clock
	metrics Metrics
	logger  *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithPolicy installs an eviction policy. The default never evicts.
func WithPolicy(p EvictionPolicy) Option {
	return func(c *Cache) {
		if p != nil {
			c.policy = p
		}
	}
}

// WithClock overrides the clock used for CreatedAt.
func WithClock(clk Clock) Option {
	return func(c *Cache) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates an empty cache.
func New(logger *zap.Logger, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[fingerprint.Fingerprint]Entry),
		policy:  NoEviction{},
		clock:   systemClock{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrBuild returns the index for fp, building it with build on a miss.
// hit is true when this call did not run build. Concurrent callers for the same
// fingerprint wait for a single build and share its result or error. A failed
// build leaves no entry behind. A caller whose ctx ends stops waiting with
// ctx.Err(); the build itself runs on and still fills the cache.
func (c *Cache) GetOrBuild(
	ctx context.Context,
	fp fingerprint.Fingerprint,
	chunks []domain.Chunk,
	build BuildFunc,
) (*index.Index, bool, error) {
	if e, ok := c.lookup(fp); ok {
		c.incRequests("hit")
		c.logger.Debug("Index cache hit", zap.String("fingerprint", fp.Short()))
		return e.Index, true, nil
	}

	// The build outlives any single caller: a cancelled caller returns early
	// while the others keep waiting on the same flight.
	buildCtx := context.WithoutCancel(ctx)
	var built atomic.Bool
	ch := c.flights.DoChan(fp.String(), func() (any, error) {
		// A build that finished between lookup and DoChan already stored the entry.
		if e, ok := c.lookup(fp); ok {
			return e.Index, nil
		}
		built.Store(true)

		c.logger.Info("Building vector index",
			zap.String("fingerprint", fp.Short()),
			zap.Int("chunks", len(chunks)),
		)

		start := time.Now()
		idx, err := build(buildCtx, chunks)
		if err != nil {
			return nil, err
		}
		if idx == nil {
			return nil, fmt.Errorf("index build for %s returned no index", fp.Short())
		}
		if c.metrics.BuildDuration != nil {
			c.metrics.BuildDuration.Observe(time.Since(start).Seconds())
		}

		c.store(fp, idx, len(chunks))
		return idx, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		c.logger.Debug("Caller left index build early",
			zap.String("fingerprint", fp.Short()), zap.Error(ctx.Err()))
		return nil, false, ctx.Err()
	}

	if built.Load() {
		c.incRequests("miss")
	} else {
		c.incRequests("shared")
	}
	if res.Err != nil {
		return nil, false, res.Err
	}
	return res.Val.(*index.Index), !built.Load(), nil
}

// Get returns the entry for fp without building.
func (c *Cache) Get(fp fingerprint.Fingerprint) (Entry, bool) {
	return c.lookup(fp)
}

// Len returns the number of cached indexes.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a snapshot of all entries, oldest first.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entry) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return slices.Compare(a.Fingerprint[:], b.Fingerprint[:])
	})
	return out
}

// Remove drops fp. Returns false when it was not cached.
func (c *Cache) Remove(fp fingerprint.Fingerprint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[fp]; !ok {
		return false
	}
	delete(c.entries, fp)
	c.policy.Removed(fp)
	c.setEntriesGauge()
	return true
}

// Clear drops every entry and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	for fp := range c.entries {
		c.policy.Removed(fp)
	}
	clear(c.entries)
	c.setEntriesGauge()

	c.logger.Info("Index cache cleared", zap.Int("removed", n))
	return n
}

func (c *Cache) lookup(fp fingerprint.Fingerprint) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[fp]
	c.mu.RUnlock()
	if ok {
		c.policy.Touched(fp)
	}
	return e, ok
}

func (c *Cache) store(fp fingerprint.Fingerprint, idx *index.Index, chunks int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fp] = Entry{
		Fingerprint: fp,
		Index:       idx,
		CreatedAt:   c.clock.Now(),
		Chunks:      chunks,
	}
	c.policy.Added(fp)

	for _, victim := range c.policy.Victims() {
		if victim == fp {
			continue
		}
		if _, ok := c.entries[victim]; !ok {
			continue
		}
		delete(c.entries, victim)
		c.policy.Removed(victim)
		if c.metrics.Evictions != nil {
			c.metrics.Evictions.Inc()
		}
		c.logger.Info("Evicted vector index", zap.String("fingerprint", victim.Short()))
	}
	c.setEntriesGauge()
}

func (c *Cache) setEntriesGauge() {
	if c.metrics.Entries != nil {
		c.metrics.Entries.Set(float64(len(c.entries)))
	}
}

func (c *Cache) incRequests(result string) {
	if c.metrics.Requests != nil {
		c.metrics.Requests.WithLabelValues(result).Inc()
	}
}
