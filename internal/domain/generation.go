package domain

import (
	"context"
	"iter"
	"time"
)

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (Generation, error)
}

// StreamGenerator yields the answer incrementally. The sequence is lazy, finite and
// single-use; the concatenation of all fragments equals the Generate result.
// Breaking out of the range loop releases the backend connection.
type StreamGenerator interface {
	Stream(ctx context.Context, prompt string, opts GenerateOptions) iter.Seq2[string, error]
}

// GenerateOptions are per-call overrides. Zero values fall back to the provider config.
type GenerateOptions struct {
	Temperature       *float64
	ContextWindow     int
	AcceleratorLayers int
	MaxTokens         int
	// Timeout bounds the backend call. Zero means no deadline beyond ctx.
	Timeout time.Duration
}

// Generation is a completed answer with token usage when the backend reports it.
type Generation struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}
