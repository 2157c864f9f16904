package generation

import (
	"context"
	"fmt"
	"iter"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/usecase/lazy"
)

// Provider is the process-wide generation adapter. The backend is built on the
// first call and kept until Reinitialize.
type Provider struct {
	instance *lazy.Singleton[Backend]
}

// NewProvider creates a lazily initialized generation adapter.
func NewProvider(instance *lazy.Singleton[Backend]) *Provider {
	return &Provider{instance: instance}
}

// Generate returns the complete answer for prompt.
func (p *Provider) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (domain.Generation, error) {
	b, err := p.instance.Get(ctx)
	if err != nil {
		return domain.Generation{}, err
	}
	return b.Generate(ctx, prompt, opts)
}

// Stream yields answer fragments. Initialization errors are yielded as the only element.
func (p *Provider) Stream(ctx context.Context, prompt string, opts domain.GenerateOptions) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		b, err := p.instance.Get(ctx)
		if err != nil {
			yield("", err)
			return
		}
		for frag, err := range b.Stream(ctx, prompt, opts) {
			if !yield(frag, err) || err != nil {
				return
			}
		}
	}
}

// HealthCheck initializes the backend if needed and probes it.
func (p *Provider) HealthCheck(ctx context.Context) error {
	b, err := p.instance.Get(ctx)
	if err != nil {
		return err
	}
	if hc, ok := b.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("generation health: %w", err)
		}
	}
	return nil
}

// Initialized reports whether the backend has been built.
func (p *Provider) Initialized() bool { return p.instance.Initialized() }

// Reinitialize drops the backend so the next call rebuilds it.
func (p *Provider) Reinitialize(ctx context.Context, reason string) lazy.Event {
	return p.instance.Reinitialize(ctx, reason)
}

// OnReinitialize registers fn to run after every Reinitialize.
func (p *Provider) OnReinitialize(fn lazy.Observer) { p.instance.OnReinitialize(fn) }
