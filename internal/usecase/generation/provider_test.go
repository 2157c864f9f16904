package generation

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/usecase/lazy"
)

func TestProvider_StreamBuildsOnce(t *testing.T) {
	builds := 0
	factory := func(context.Context) (Backend, error) {
		builds++
		return &mockBackend{fragments: []string{"x", "y"}}, nil
	}
	p := NewProvider(lazy.New("llm", factory, lazy.Metrics{}, zap.NewNop()))

	for range 2 {
		var text string
		for frag, err := range p.Stream(context.Background(), "q", domain.GenerateOptions{}) {
			if err != nil {
				t.Fatalf("Stream: %v", err)
			}
			text += frag
		}
		if text != "xy" {
			t.Errorf("text = %q, want %q", text, "xy")
		}
	}
	if builds != 1 {
		t.Errorf("factory ran %d times, want 1", builds)
	}
}

func TestProvider_InitFailure(t *testing.T) {
	factory := func(context.Context) (Backend, error) {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	p := NewProvider(lazy.New("llm", factory, lazy.Metrics{}, zap.NewNop()))

	_, err := p.Generate(context.Background(), "q", domain.GenerateOptions{})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("Generate: expected ConfigurationError, got %v", err)
	}

	var streamErr error
	n := 0
	for _, err := range p.Stream(context.Background(), "q", domain.GenerateOptions{}) {
		n++
		streamErr = err
	}
	if n != 1 || !errors.Is(streamErr, domain.ErrConfiguration) {
		t.Fatalf("Stream: n=%d err=%v", n, streamErr)
	}
}

func TestProvider_Reinitialize(t *testing.T) {
	builds := 0
	factory := func(context.Context) (Backend, error) {
		builds++
		return &mockBackend{generateFn: func(context.Context, string, domain.GenerateOptions) (domain.Generation, error) {
			return domain.Generation{Text: "ok"}, nil
		}}, nil
	}
	p := NewProvider(lazy.New("llm", factory, lazy.Metrics{}, zap.NewNop()))

	if _, err := p.Generate(context.Background(), "q", domain.GenerateOptions{}); err != nil {
		t.Fatal(err)
	}
	ev := p.Reinitialize(context.Background(), "switch model")
	if ev.Generation != 1 || ev.Kind != "llm" {
		t.Errorf("event = %+v", ev)
	}
	if p.Initialized() {
		t.Error("expected provider to be dropped")
	}
	if _, err := p.Generate(context.Background(), "q", domain.GenerateOptions{}); err != nil {
		t.Fatal(err)
	}
	if builds != 2 {
		t.Errorf("builds = %d, want 2", builds)
	}
}
