package domain

import (
	"context"
	"fmt"
	"strings"
)

// Instructions are the prefixes an embedding model expects on documents and queries.
// Asymmetric retrieval models are trained with them; symmetric ones take none.
type Instructions struct {
	Document string
	Query    string
}

// DefaultInstructions returns the prefixes for well-known embedding model families.
// Unknown models get no prefixes.
func DefaultInstructions(model string) Instructions {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "nomic-embed"):
		return Instructions{Document: "search_document: ", Query: "search_query: "}
	case strings.Contains(m, "e5-"):
		return Instructions{Document: "passage: ", Query: "query: "}
	case strings.Contains(m, "bge-") && strings.Contains(m, "-en"):
		return Instructions{Query: "Represent this sentence for searching relevant passages: "}
	case strings.Contains(m, "mxbai-embed"):
		return Instructions{Query: "Represent this sentence for searching relevant passages: "}
	default:
		return Instructions{}
	}
}

// Override replaces each prefix that is set in o.
func (i Instructions) Override(o Instructions) Instructions {
	if o.Document != "" {
		i.Document = o.Document
	}
	if o.Query != "" {
		i.Query = o.Query
	}
	return i
}

// InstructionEmbedder prefixes every text with a fixed instruction before
// delegating. It is used twice per pipeline: once with Instructions.Document
// for chunks and once with Instructions.Query for the question.
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// NewInstructionEmbedder wraps inner. An empty instruction passes texts through.
func NewInstructionEmbedder(inner Embedder, instruction string) *InstructionEmbedder {
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

// Embed embeds instruction+text.
func (e *InstructionEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	res, err := e.inner.Embed(ctx, e.instruction+text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: %w", err)
	}
	return res, nil
}

// BatchEmbed embeds every text with the instruction, in one call when inner
// supports batches.
func (e *InstructionEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	if e.instruction != "" {
		prefixed := make([]string, len(texts))
		for i, t := range texts {
			prefixed[i] = e.instruction + t
		}
		texts = prefixed
	}

	var (
		res BatchEmbeddingResult
		err error
	)
	if be, ok := e.inner.(BatchEmbedder); ok {
		res, err = be.BatchEmbed(ctx, texts)
	} else {
		res, err = BatchFallback(ctx, e.inner, texts)
	}
	if err != nil {
		return BatchEmbeddingResult{}, fmt.Errorf("instruction batch embed: %w", err)
	}
	return res, nil
}

// Identity is the inner identity: the prefix does not change the embedding space.
func (e *InstructionEmbedder) Identity() ProviderIdentity {
	if id, ok := e.inner.(Identifier); ok {
		return id.Identity()
	}
	return ProviderIdentity{}
}
