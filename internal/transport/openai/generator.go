package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
)

var errCompletion = errors.New("chat completion failed")

// Generator answers prompts with the chat completions API.
type Generator struct {
	client   *openai.Client
	model    string
	provider string
	maxRetry time.Duration
	logger   *zap.Logger
}

// NewGenerator creates an OpenAI-compatible chat backend.
func NewGenerator(cfg *Config) *Generator {
	return &Generator{
		client:   newClient(cfg),
		model:    cfg.Model,
		provider: cfg.provider(),
		maxRetry: cfg.RetryMaxElapsed,
		logger:   cfg.Logger,
	}
}

// Generate returns the complete answer for prompt.
func (g *Generator) Generate(
	ctx context.Context, prompt string, opts domain.GenerateOptions,
) (domain.Generation, error) {
	req := g.request(prompt, opts)

	resp, err := withRetry(ctx, g.maxRetry, g.logger, func() (openai.ChatCompletionResponse, error) {
		return g.client.CreateChatCompletion(ctx, req)
	})
	if err != nil {
		return domain.Generation{}, g.wrap(err)
	}
	if len(resp.Choices) == 0 {
		return domain.Generation{}, &domain.GenerationError{
			Provider: g.provider, Err: errors.New("empty completion response"),
		}
	}

	return domain.Generation{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Stream yields answer fragments as the API produces them. The response body
// is closed when iteration ends, including on early break.
func (g *Generator) Stream(ctx context.Context, prompt string, opts domain.GenerateOptions) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req := g.request(prompt, opts)
		req.Stream = true

		stream, err := g.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", g.wrap(err))
			return
		}
		defer stream.Close()

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", g.wrap(err))
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(chunk.Choices[0].Delta.Content, nil) {
				return
			}
		}
	}
}

// HealthCheck verifies API availability via ListModels.
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (g *Generator) request(prompt string, opts domain.GenerateOptions) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	return req
}

func (g *Generator) wrap(err error) error {
	wrapped := parseAPIError("llm", err, errCompletion)
	if errors.Is(wrapped, domain.ErrConfiguration) {
		return wrapped
	}
	return &domain.GenerationError{
		Provider: g.provider,
		Timeout:  errors.Is(err, context.DeadlineExceeded),
		Err:      wrapped,
	}
}
