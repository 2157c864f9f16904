package mcp

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/usecase/qa"
)

// AskInput is the input schema for the ask_document tool.
type AskInput struct {
	Path        string   `json:"path" jsonschema:"absolute path to a local PDF file"`
	Question    string   `json:"question" jsonschema:"question about the document"`
	TopK        int      `json:"top_k,omitempty" jsonschema:"number of passages to retrieve (server default when omitted)"`
	Temperature *float64 `json:"temperature,omitempty" jsonschema:"sampling temperature between 0 and 2"`
}

// AskOutput is the output schema for the ask_document tool.
type AskOutput struct {
	RequestID string         `json:"request_id"`
	Answer    string         `json:"answer"`
	Sources   []SourceOutput `json:"sources"`
	CacheHit  bool           `json:"cache_hit"`
	Pages     int            `json:"pages"`
	Chunks    int            `json:"chunks"`
	Metrics   []StageOutput  `json:"metrics"`

	EmbeddingTokens int `json:"embedding_tokens"`
}

// SourceOutput is one cited passage.
type SourceOutput struct {
	Page    int     `json:"page"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}

// StageOutput is the duration of one pipeline stage.
type StageOutput struct {
	Stage      string  `json:"stage"`
	DurationMs float64 `json:"duration_ms"`
}

// CacheInput is the empty input of the list_indexed_documents tool.
type CacheInput struct{}

// CacheOutput lists cached document indexes, newest first.
type CacheOutput struct {
	Documents []CachedDocument `json:"documents"`
	Count     int              `json:"count"`
}

// CachedDocument is one cached index.
type CachedDocument struct {
	Fingerprint string    `json:"fingerprint"`
	Chunks      int       `json:"chunks"`
	Model       string    `json:"model"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask_document",
		Description: "Answer a question using only the content of a local PDF, citing the pages used",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_indexed_documents",
		Description: "List documents whose embeddings are cached in memory",
	}, s.handleListCache)
}

func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	if strings.TrimSpace(input.Path) == "" {
		return nil, AskOutput{}, errors.New(domain.UserMessage(domain.ErrMissingDocument))
	}
	if input.TopK < 0 {
		return nil, AskOutput{}, errors.New("top_k must not be negative")
	}

	ctx, usage := domain.WithRequestUsage(ctx)
	res, err := s.asker.Ask(ctx, qa.Request{
		Path:    input.Path,
		Query:   input.Question,
		TopK:    input.TopK,
		Options: domain.GenerateOptions{Temperature: input.Temperature},
	})
	if err != nil {
		s.logger.Error("ask_document failed",
			zap.String("path", input.Path),
			zap.String("request_id", res.RequestID),
			zap.Error(err),
		)
		return nil, AskOutput{}, errors.New(domain.UserMessage(err))
	}

	out := AskOutput{
		RequestID: res.RequestID,
		Answer:    res.Answer,
		Sources:   make([]SourceOutput, len(res.Sources)),
		CacheHit:  res.CacheHit,
		Pages:     res.Pages,
		Chunks:    res.Chunks,
		Metrics:   make([]StageOutput, len(res.Metrics)),

		EmbeddingTokens: usage.Tokens(),
	}
	for i, src := range res.Sources {
		out.Sources[i] = SourceOutput{Page: src.Page, Excerpt: src.Excerpt, Score: src.Score}
	}
	for i, m := range res.Metrics {
		out.Metrics[i] = StageOutput{Stage: string(m.Stage), DurationMs: float64(m.Duration.Microseconds()) / 1000}
	}
	return nil, out, nil
}

func (s *Server) handleListCache(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ CacheInput,
) (*mcp.CallToolResult, CacheOutput, error) {
	entries := s.cache.Entries()
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })

	out := CacheOutput{Documents: make([]CachedDocument, len(entries)), Count: len(entries)}
	for i, e := range entries {
		out.Documents[i] = CachedDocument{
			Fingerprint: e.Fingerprint.String(),
			Chunks:      e.Chunks,
			Model:       e.Index.Identity().String(),
			CreatedAt:   e.CreatedAt,
		}
	}
	return nil, out, nil
}
