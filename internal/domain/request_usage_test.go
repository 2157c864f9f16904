package domain

import (
	"context"
	"sync"
	"testing"
)

func TestRequestUsage_ConcurrentAdd(t *testing.T) {
	ctx, u := WithRequestUsage(context.Background())
	if RequestUsageFrom(ctx) != u {
		t.Fatal("collector not found in context")
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			RequestUsageFrom(ctx).Add(5)
		}()
	}
	wg.Wait()

	if u.Tokens() != 40 || u.Calls() != 8 {
		t.Errorf("got %d tokens over %d calls, want 40 over 8", u.Tokens(), u.Calls())
	}
}

func TestRequestUsage_NilSafe(t *testing.T) {
	u := RequestUsageFrom(context.Background())
	u.Add(3)
	if u.Tokens() != 0 || u.Calls() != 0 {
		t.Error("nil collector must report zero")
	}
}
