package generation

import (
	"context"
	"errors"
	"iter"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterGenerationMetrics()
	os.Exit(m.Run())
}

type mockBackend struct {
	generateFn func(ctx context.Context, prompt string, opts domain.GenerateOptions) (domain.Generation, error)
	fragments  []string
	streamErr  error
	sent       int
}

func (m *mockBackend) Generate(
	ctx context.Context, prompt string, opts domain.GenerateOptions,
) (domain.Generation, error) {
	return m.generateFn(ctx, prompt, opts)
}

func (m *mockBackend) Stream(_ context.Context, _ string, _ domain.GenerateOptions) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, f := range m.fragments {
			m.sent++
			if !yield(f, nil) {
				return
			}
		}
		if m.streamErr != nil {
			yield("", m.streamErr)
		}
	}
}

func TestInstrumentedGenerator_Success(t *testing.T) {
	backend := &mockBackend{
		generateFn: func(_ context.Context, prompt string, _ domain.GenerateOptions) (domain.Generation, error) {
			return domain.Generation{Text: "answer to " + prompt, CompletionTokens: 7}, nil
		},
	}
	g := NewInstrumentedGenerator(backend, "success-prov", "m", 0, zap.NewNop())

	out, err := g.Generate(context.Background(), "q", domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Text != "answer to q" {
		t.Errorf("Text = %q", out.Text)
	}
	if v := testutil.ToFloat64(metrics.GenerationRequestsTotal.WithLabelValues("success-prov", "m", "sync", "success")); v != 1 {
		t.Errorf("success requests = %v, want 1", v)
	}
	if v := testutil.ToFloat64(metrics.GenerationTokensTotal.WithLabelValues("success-prov", "m", "completion")); v != 7 {
		t.Errorf("completion tokens = %v, want 7", v)
	}
}

func TestInstrumentedGenerator_Timeout(t *testing.T) {
	backend := &mockBackend{
		generateFn: func(ctx context.Context, _ string, _ domain.GenerateOptions) (domain.Generation, error) {
			<-ctx.Done()
			return domain.Generation{}, ctx.Err()
		},
	}
	g := NewInstrumentedGenerator(backend, "slow-prov", "m", time.Hour, zap.NewNop())

	start := time.Now()
	_, err := g.Generate(context.Background(), "q", domain.GenerateOptions{Timeout: 20 * time.Millisecond})
	if time.Since(start) > 5*time.Second {
		t.Fatal("per-call timeout did not override the default")
	}

	var genErr *domain.GenerationError
	if !errors.As(err, &genErr) || !genErr.Timeout {
		t.Fatalf("expected timeout GenerationError, got %v", err)
	}
	if v := testutil.ToFloat64(metrics.GenerationTimeoutsTotal.WithLabelValues("slow-prov", "m")); v != 1 {
		t.Errorf("timeouts = %v, want 1", v)
	}
	if v := testutil.ToFloat64(metrics.GenerationRequestsTotal.WithLabelValues("slow-prov", "m", "sync", "timeout")); v != 1 {
		t.Errorf("timeout requests = %v, want 1", v)
	}
}

func TestInstrumentedGenerator_BackendError(t *testing.T) {
	backend := &mockBackend{
		generateFn: func(context.Context, string, domain.GenerateOptions) (domain.Generation, error) {
			return domain.Generation{}, errors.New("connection refused")
		},
	}
	g := NewInstrumentedGenerator(backend, "err-prov", "m", 0, zap.NewNop())

	_, err := g.Generate(context.Background(), "q", domain.GenerateOptions{})
	var genErr *domain.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %T", err)
	}
	if genErr.Timeout {
		t.Error("plain backend failure must not be reported as timeout")
	}
	if genErr.Provider != "err-prov" {
		t.Errorf("Provider = %q", genErr.Provider)
	}
}

func TestInstrumentedGenerator_ConfigurationErrorPassesThrough(t *testing.T) {
	backend := &mockBackend{
		generateFn: func(context.Context, string, domain.GenerateOptions) (domain.Generation, error) {
			return domain.Generation{}, domain.NewConfigurationError("llm", errors.New("model not found"))
		},
	}
	g := NewInstrumentedGenerator(backend, "cfg-prov", "m", 0, zap.NewNop())

	_, err := g.Generate(context.Background(), "q", domain.GenerateOptions{})
	if !errors.Is(err, domain.ErrConfiguration) || errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected configuration error only, got %v", err)
	}
}

func TestInstrumentedGenerator_StreamEarlyBreakCancels(t *testing.T) {
	backend := &mockBackend{fragments: []string{"a", "b", "c", "d"}}
	g := NewInstrumentedGenerator(backend, "stream-prov", "m", 0, zap.NewNop())

	var got []string
	for frag, err := range g.Stream(context.Background(), "q", domain.GenerateOptions{}) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, frag)
		if len(got) == 2 {
			break
		}
	}

	if len(got) != 2 || backend.sent != 2 {
		t.Errorf("got %v, backend sent %d", got, backend.sent)
	}
	if v := testutil.ToFloat64(metrics.GenerationRequestsTotal.WithLabelValues("stream-prov", "m", "stream", "success")); v != 1 {
		t.Errorf("stream requests = %v, want 1", v)
	}
}

func TestInstrumentedGenerator_StreamError(t *testing.T) {
	backend := &mockBackend{fragments: []string{"a"}, streamErr: errors.New("reset by peer")}
	g := NewInstrumentedGenerator(backend, "stream-err", "m", 0, zap.NewNop())

	var (
		text string
		last error
	)
	for frag, err := range g.Stream(context.Background(), "q", domain.GenerateOptions{}) {
		if err != nil {
			last = err
			break
		}
		text += frag
	}

	if text != "a" {
		t.Errorf("text = %q, want %q", text, "a")
	}
	if !errors.Is(last, domain.ErrGeneration) {
		t.Fatalf("expected GenerationError, got %v", last)
	}
	if v := testutil.ToFloat64(metrics.GenerationRequestsTotal.WithLabelValues("stream-err", "m", "stream", "error")); v != 1 {
		t.Errorf("stream error requests = %v, want 1", v)
	}
}
