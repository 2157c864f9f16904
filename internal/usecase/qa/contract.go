package qa

import (
	"context"
	"iter"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/fingerprint"
	"github.com/kailas-cloud/docqa/internal/index"
	"github.com/kailas-cloud/docqa/internal/repository/indexcache"
)

// Loader reads the pages of a document.
type Loader interface {
	Load(ctx context.Context, path string) ([]domain.Page, error)
}

// Splitter cuts pages into chunks.
type Splitter interface {
	Split(pages []domain.Page) ([]domain.Chunk, error)
}

// IndexCache resolves a vector index by content fingerprint.
type IndexCache interface {
	GetOrBuild(
		ctx context.Context, fp fingerprint.Fingerprint,
		chunks []domain.Chunk, build indexcache.BuildFunc,
	) (*index.Index, bool, error)
}

// DocumentEmbedder vectorizes chunk texts for a new index.
type DocumentEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
	Identity() domain.ProviderIdentity
}

// Retriever finds the chunks most relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, idx *index.Index, query string, k int) ([]index.Hit, error)
}

// Generator produces answers from prompts.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (domain.Generation, error)
	Stream(ctx context.Context, prompt string, opts domain.GenerateOptions) iter.Seq2[string, error]
}
