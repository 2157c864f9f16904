package qa

import (
	"context"
	"iter"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/document"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/repository/indexcache"
	"github.com/kailas-cloud/docqa/internal/usecase/retrieval"
)

var vocabulary = []string{"retention", "period", "years", "audit", "logs", "reviewed", "quarterly"}

// keywordEmbedder embeds text as vocabulary term counts.
type keywordEmbedder struct {
	identity   domain.ProviderIdentity
	batchCalls atomic.Int32
	queryCalls atomic.Int32
	batchErr   func(call int32) error
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{identity: domain.ProviderIdentity{Provider: "stub", Model: "keywords"}}
}

func (e *keywordEmbedder) vector(text string) []float32 {
	v := make([]float32, len(vocabulary))
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!")
		for i, term := range vocabulary {
			if w == term {
				v[i]++
			}
		}
	}
	return v
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	e.queryCalls.Add(1)
	return domain.EmbeddingResult{Embedding: e.vector(text)}, nil
}

func (e *keywordEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	call := e.batchCalls.Add(1)
	if e.batchErr != nil {
		if err := e.batchErr(call); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

func (e *keywordEmbedder) Identity() domain.ProviderIdentity { return e.identity }

type mockLoader struct {
	pages []domain.Page
	err   error
	calls atomic.Int32
}

func (m *mockLoader) Load(_ context.Context, _ string) ([]domain.Page, error) {
	m.calls.Add(1)
	return m.pages, m.err
}

type mockGenerator struct {
	generateFn func(ctx context.Context, prompt string, opts domain.GenerateOptions) (domain.Generation, error)
	fragments  []string
	calls      atomic.Int32
	prompts    []string
}

func (m *mockGenerator) Generate(
	ctx context.Context, prompt string, opts domain.GenerateOptions,
) (domain.Generation, error) {
	m.calls.Add(1)
	m.prompts = append(m.prompts, prompt)
	if m.generateFn != nil {
		return m.generateFn(ctx, prompt, opts)
	}
	return domain.Generation{Text: "The retention period is 7 years (page 1)."}, nil
}

func (m *mockGenerator) Stream(_ context.Context, prompt string, _ domain.GenerateOptions) iter.Seq2[string, error] {
	m.calls.Add(1)
	m.prompts = append(m.prompts, prompt)
	return func(yield func(string, error) bool) {
		for _, f := range m.fragments {
			if !yield(f, nil) {
				return
			}
		}
	}
}

func retentionPages() []domain.Page {
	return []domain.Page{
		{Number: 1, Text: "The retention period is 7 years."},
		{Number: 2, Text: "Audit logs must be reviewed quarterly."},
	}
}

type fixture struct {
	svc      *Service
	loader   *mockLoader
	embedder *keywordEmbedder
	gen      *mockGenerator
	cache    *indexcache.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		loader:   &mockLoader{pages: retentionPages()},
		embedder: newKeywordEmbedder(),
		gen:      &mockGenerator{},
		cache:    indexcache.New(zap.NewNop()),
	}
	f.svc = f.build(Config{TopK: 1})
	return f
}

// build wires a service over the fixture's collaborators. Tests swap fields
// before calling it.
func (f *fixture) build(cfg Config) *Service {
	return New(
		f.loader,
		document.NewSplitter(),
		f.cache,
		f.embedder,
		retrieval.New(f.embedder, zap.NewNop()),
		f.gen,
		cfg,
		zap.NewNop(),
	)
}

func request(query string) Request {
	return Request{Path: "/docs/policy.pdf", Query: query}
}
