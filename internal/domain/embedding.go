package domain

import (
	"context"
	"fmt"
)

// KeyPrefix namespaces every key docqa writes to the KV store.
const KeyPrefix = "docqa:"

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single API call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Identifier exposes the embedding space an embedder produces vectors in.
type Identifier interface {
	Identity() ProviderIdentity
}

// ProviderIdentity names an embedding space. Vectors from different identities
// must never be compared.
type ProviderIdentity struct {
	Provider   string
	Model      string
	Dimensions int
}

func (p ProviderIdentity) String() string {
	if p.Dimensions > 0 {
		return fmt.Sprintf("%s/%s@%d", p.Provider, p.Model, p.Dimensions)
	}
	return fmt.Sprintf("%s/%s", p.Provider, p.Model)
}

// Compatible reports whether vectors of p and other live in the same space.
// A zero dimension means "not yet known" and matches any dimension.
func (p ProviderIdentity) Compatible(other ProviderIdentity) bool {
	if p.Provider != other.Provider || p.Model != other.Model {
		return false
	}
	return p.Dimensions == 0 || other.Dimensions == 0 || p.Dimensions == other.Dimensions
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// BatchFallback calls Embed once per text for providers without a native batch call.
func BatchFallback(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	embeddings := make([][]float32, len(texts))
	var totalPrompt, totalTokens int

	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("fallback embed [%d]: %w", i, err)
		}
		embeddings[i] = res.Embedding
		totalPrompt += res.PromptTokens
		totalTokens += res.TotalTokens
	}

	return BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}
