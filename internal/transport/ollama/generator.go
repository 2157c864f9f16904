package ollama

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/kailas-cloud/docqa/internal/domain"
)

var errStopped = errors.New("stream stopped by consumer")

// Generator answers prompts with /api/generate.
type Generator struct {
	client *Client
	model  string
}

// NewGenerator creates an Ollama generation backend.
func NewGenerator(client *Client, model string) *Generator {
	return &Generator{client: client, model: model}
}

// Generate returns the complete answer for prompt.
func (g *Generator) Generate(
	ctx context.Context, prompt string, opts domain.GenerateOptions,
) (domain.Generation, error) {
	var (
		out  domain.Generation
		text strings.Builder
	)
	err := g.client.api.Generate(ctx, g.request(prompt, opts), func(resp api.GenerateResponse) error {
		text.WriteString(resp.Response)
		if resp.Done {
			out.PromptTokens = resp.PromptEvalCount
			out.CompletionTokens = resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return domain.Generation{}, g.wrap(ctx, err)
	}
	out.Text = text.String()
	return out, nil
}

// Stream yields response fragments as Ollama produces them. Breaking out of
// the loop aborts the request.
func (g *Generator) Stream(ctx context.Context, prompt string, opts domain.GenerateOptions) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		err := g.client.api.Generate(ctx, g.request(prompt, opts), func(resp api.GenerateResponse) error {
			if resp.Response == "" {
				return nil
			}
			if !yield(resp.Response, nil) {
				return errStopped
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopped) {
			yield("", g.wrap(ctx, err))
		}
	}
}

// HealthCheck verifies the server answers.
func (g *Generator) HealthCheck(ctx context.Context) error {
	return g.client.HealthCheck(ctx)
}

func (g *Generator) request(prompt string, opts domain.GenerateOptions) *api.GenerateRequest {
	stream := true
	options := map[string]any{}
	if opts.Temperature != nil {
		options["temperature"] = *opts.Temperature
	}
	if opts.ContextWindow > 0 {
		options["num_ctx"] = opts.ContextWindow
	}
	if opts.AcceleratorLayers > 0 {
		options["num_gpu"] = opts.AcceleratorLayers
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	return &api.GenerateRequest{
		Model:   g.model,
		Prompt:  prompt,
		Stream:  &stream,
		Options: options,
	}
}

func (g *Generator) wrap(ctx context.Context, err error) error {
	if isNotFound(err) {
		return domain.NewConfigurationError("llm", fmt.Errorf("model %q is not available", g.model))
	}
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	return &domain.GenerationError{Provider: Provider, Timeout: timeout, Err: err}
}
