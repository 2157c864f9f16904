package embedding

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/usecase/lazy"
)

// Provider is the process-wide embedding adapter. The backend is built on the
// first Embed call and kept until Reinitialize.
type Provider struct {
	identity domain.ProviderIdentity
	instance *lazy.Singleton[domain.Embedder]
}

// NewProvider creates a lazily initialized embedding adapter. identity is taken
// from configuration and is fixed for the provider's lifetime.
func NewProvider(identity domain.ProviderIdentity, instance *lazy.Singleton[domain.Embedder]) *Provider {
	return &Provider{identity: identity, instance: instance}
}

// Identity returns the configured embedding space.
func (p *Provider) Identity() domain.ProviderIdentity { return p.identity }

// Embed vectorizes one text.
func (p *Provider) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	e, err := p.instance.Get(ctx)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return e.Embed(ctx, text)
}

// BatchEmbed vectorizes texts, one backend call per batch when supported.
func (p *Provider) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	e, err := p.instance.Get(ctx)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	if be, ok := e.(domain.BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts)
	}
	return domain.BatchFallback(ctx, e, texts)
}

// HealthCheck initializes the backend if needed and probes it.
func (p *Provider) HealthCheck(ctx context.Context) error {
	e, err := p.instance.Get(ctx)
	if err != nil {
		return err
	}
	if hc, ok := e.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health: %w", err)
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
