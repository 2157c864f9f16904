package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/index"
)

// Service finds the chunks of an index most relevant to a question.
type Service struct {
	embed  QueryEmbedder
	logger *zap.Logger
}

// New creates a retrieval service.
func New(embed QueryEmbedder, logger *zap.Logger) *Service {
	return &Service{embed: embed, logger: logger}
}

// Retrieve embeds query and returns the k best hits from idx. The index must
// have been built by the same embedding provider.
func (s *Service) Retrieve(ctx context.Context, idx *index.Index, query string, k int) ([]index.Hit, error) {
	if idx == nil {
		return nil, errors.New("retrieve: nil index")
	}

	want, got := idx.Identity(), s.embed.Identity()
	if !want.Compatible(got) {
		s.logger.Warn("Index queried with a different embedding provider",
			zap.Stringer("index_provider", want),
			zap.Stringer("query_provider", got),
		)
		return nil, &domain.CacheConsistencyError{Want: want, Got: got}
	}

	res, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if len(res.Embedding) != idx.Dimensions() {
		got.Dimensions = len(res.Embedding)
		return nil, &domain.CacheConsistencyError{Want: want, Got: got}
	}

	hits, err := idx.Search(res.Embedding, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	s.logger.Debug("Retrieved chunks",
		zap.Int("k", k),
		zap.Int("hits", len(hits)),
		zap.Int("indexed", idx.Len()),
	)
	return hits, nil
}
