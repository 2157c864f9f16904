package domain

import (
	"context"
	"sync"
)

type requestUsageKey struct{}

// RequestUsage accumulates embedding tokens spent while serving one question.
// Index builds on a cache miss and the query embedding both add to it.
type RequestUsage struct {
	mu     sync.Mutex
	tokens int
	calls  int
}

// WithRequestUsage returns a context carrying a fresh usage collector.
func WithRequestUsage(ctx context.Context) (context.Context, *RequestUsage) {
	u := &RequestUsage{}
	return context.WithValue(ctx, requestUsageKey{}, u), u
}

// RequestUsageFrom returns the collector stored in ctx, or nil.
func RequestUsageFrom(ctx context.Context) *RequestUsage {
	u, _ := ctx.Value(requestUsageKey{}).(*RequestUsage)
	return u
}

// Add records one embedding call. Safe on a nil receiver.
func (u *RequestUsage) Add(tokens int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.tokens += tokens
	u.calls++
	u.mu.Unlock()
}

// Tokens reports the total so far.
func (u *RequestUsage) Tokens() int {
	if u == nil {
		return 0
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tokens
}

// Calls reports how many embedding requests were made. A cache hit with a
// local model can cost zero tokens and still count one call.
func (u *RequestUsage) Calls() int {
	if u == nil {
		return 0
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}
