package indexcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/fingerprint"
	"github.com/kailas-cloud/docqa/internal/index"
)

var testIdentity = domain.ProviderIdentity{Provider: "stub", Model: "unit"}

// countingBuilder embeds each chunk as a 2-d vector and counts invocations.
type countingBuilder struct {
	calls   atomic.Int32
	err     error
	release chan struct{} // when non-nil, builds block until closed
}

func (b *countingBuilder) build(ctx context.Context, chunks []domain.Chunk) (*index.Index, error) {
	b.calls.Add(1)
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.err != nil {
		return nil, b.err
	}
	vectors := make([][]float32, len(chunks))
	for i := range chunks {
		vectors[i] = []float32{float32(i + 1), 1}
	}
	return index.New(testIdentity, chunks, vectors)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func docChunks(texts ...string) ([]domain.Chunk, fingerprint.Fingerprint) {
	chunks := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = domain.Chunk{Text: t, Page: i + 1}
	}
	return chunks, fingerprint.Of(chunks)
}
