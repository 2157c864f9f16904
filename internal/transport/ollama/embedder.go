package ollama

import (
	"context"
	"fmt"

	"github.com/ollama/ollama/api"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Embedder is an embedding backend served by Ollama.
type Embedder struct {
	client     *Client
	model      string
	dimensions int
}

// NewEmbedder creates an Ollama embedding backend. dimensions may be zero when
// the model's width is not known up front.
func NewEmbedder(client *Client, model string, dimensions int) *Embedder {
	return &Embedder{client: client, model: model, dimensions: dimensions}
}

// Identity reports the embedding space of this backend.
func (e *Embedder) Identity() domain.ProviderIdentity {
	return domain.ProviderIdentity{Provider: Provider, Model: e.model, Dimensions: e.dimensions}
}

// Embed vectorizes a single text.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed vectorizes texts with a single /api/embed call.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	resp, err := e.client.api.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		if isNotFound(err) {
			return domain.BatchEmbeddingResult{}, domain.NewConfigurationError("embedding",
				fmt.Errorf("model %q is not available", e.model))
		}
		return domain.BatchEmbeddingResult{}, fmt.Errorf("ollama embed: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("expected %d embeddings, got %d: %w",
			len(texts), len(resp.Embeddings), domain.ErrEmbeddingProviderError)
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   resp.Embeddings,
		PromptTokens: resp.PromptEvalCount,
		TotalTokens:  resp.PromptEvalCount,
	}, nil
}

// HealthCheck verifies the server answers and the model is pulled.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if err := e.client.HealthCheck(ctx); err != nil {
		return err
	}
	return e.client.EnsureModel(ctx, "embedding", e.model)
}
