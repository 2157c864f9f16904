// Package index holds an immutable in-memory vector index over document chunks.
package index

import (
	"fmt"
	"math"
	"slices"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Hit is a chunk matched by a query together with its cosine similarity.
type Hit struct {
	Chunk    domain.Chunk
	Score    float64
	Position int
}

// Index is a flat cosine-similarity index. It is never mutated after New, so
// concurrent Search calls need no locking.
type Index struct {
	identity domain.ProviderIdentity
	chunks   []domain.Chunk
	vectors  [][]float32
	norms    []float64
	dim      int
}

// New builds an index from chunks and their embeddings. vectors[i] belongs to chunks[i].
func New(identity domain.ProviderIdentity, chunks []domain.Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("index: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	dim := identity.Dimensions
	norms := make([]float64, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("index: empty vector for chunk %d", i)
		}
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, want %d",
				domain.ErrVectorDimMismatch, i, len(v), dim)
		}
		norms[i] = norm(v)
	}

	identity.Dimensions = dim
	return &Index{
		identity: identity,
		chunks:   slices.Clone(chunks),
		vectors:  vectors,
		norms:    norms,
		dim:      dim,
	}, nil
}

// Identity returns the embedding space the index was built in.
func (x *Index) Identity() domain.ProviderIdentity { return x.identity }

// Len returns the number of indexed chunks.
func (x *Index) Len() int { return len(x.chunks) }

// Dimensions returns the vector width.
func (x *Index) Dimensions() int { return x.dim }

// Search returns the k chunks most similar to query, best first. Equal scores
// keep document order. k larger than Len returns every chunk.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("index: k must be positive, got %d", k)
	}
	if len(x.chunks) == 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrVectorDimMismatch, len(query), x.dim)
	}

	qNorm := norm(query)
	hits := make([]Hit, len(x.chunks))
	for i, v := range x.vectors {
		hits[i] = Hit{
			Chunk:    x.chunks[i],
			Score:    cosine(query, v, qNorm, x.norms[i]),
			Position: i,
		}
	}

	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}
