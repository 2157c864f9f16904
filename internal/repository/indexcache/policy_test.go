package indexcache

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	evictions := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_index_cache_evictions_total"})
	c := New(zap.NewNop(), WithPolicy(NewLRU(2)), WithMetrics(Metrics{Evictions: evictions}))
	b := &countingBuilder{}
	ctx := context.Background()

	chunksA, fpA := docChunks("a")
	chunksB, fpB := docChunks("b")
	chunksC, fpC := docChunks("c")

	_, _, _ = c.GetOrBuild(ctx, fpA, chunksA, b.build)
	_, _, _ = c.GetOrBuild(ctx, fpB, chunksB, b.build)
	// Touch A so B becomes the oldest.
	if _, hit, _ := c.GetOrBuild(ctx, fpA, chunksA, b.build); !hit {
		t.Fatal("expected hit on A")
	}
	_, _, _ = c.GetOrBuild(ctx, fpC, chunksC, b.build)

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if _, ok := c.Get(fpB); ok {
		t.Error("B should have been evicted")
	}
	for name, fp := range map[string][32]byte{"A": fpA, "C": fpC} {
		if _, ok := c.Get(fp); !ok {
			t.Errorf("%s should still be cached", name)
		}
	}
	if v := testutil.ToFloat64(evictions); v != 1 {
		t.Errorf("evictions = %f, want 1", v)
	}
}

func TestLRU_Victims(t *testing.T) {
	l := NewLRU(1)
	_, fpA := docChunks("a")
	_, fpB := docChunks("b")

	l.Added(fpA)
	if v := l.Victims(); len(v) != 0 {
		t.Fatalf("expected no victims, got %d", len(v))
	}
	l.Added(fpB)
	v := l.Victims()
	if len(v) != 1 || v[0] != fpA {
		t.Fatalf("expected A as victim, got %v", v)
	}
	l.Removed(fpA)
	if v := l.Victims(); len(v) != 0 {
		t.Errorf("expected no victims after removal, got %d", len(v))
	}
}

func TestNoEviction_NeverEvicts(t *testing.T) {
	c := New(zap.NewNop())
	b := &countingBuilder{}
	for _, text := range []string{"a", "b", "c", "d", "e"} {
		chunks, fp := docChunks(text)
		_, _, _ = c.GetOrBuild(context.Background(), fp, chunks, b.build)
	}
	if c.Len() != 5 {
		t.Errorf("Len() = %d, want 5", c.Len())
	}
}
