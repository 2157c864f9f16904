package retrieval

import (
	"context"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// QueryEmbedder vectorizes questions in a known embedding space.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
	Identity() domain.ProviderIdentity
}
