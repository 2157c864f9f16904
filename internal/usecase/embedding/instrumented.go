package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// DefaultMaxAPIBatchSize is the largest batch sent in one backend request.
const DefaultMaxAPIBatchSize = 256

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// InstrumentedEmbedder wraps a backend embedder with budget enforcement,
// Prometheus metrics and logging. Every failure leaves as *domain.EmbeddingError.
type InstrumentedEmbedder struct {
	inner     domain.Embedder
	identity  domain.ProviderIdentity
	budget    BudgetChecker
	batchSize int
	logger    *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with budget and observability.
// budget may be nil.
func NewInstrumentedEmbedder(
	inner domain.Embedder, identity domain.ProviderIdentity,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:     inner,
		identity:  identity,
		budget:    budget,
		batchSize: DefaultMaxAPIBatchSize,
		logger:    logger,
	}
}

// Identity returns the embedding space of the wrapped backend.
func (p *InstrumentedEmbedder) Identity() domain.ProviderIdentity { return p.identity }

// Embed checks budget, delegates to the inner embedder, and records usage.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	if err := p.checkBudget(ctx, 1); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	duration := time.Since(start)
	p.observe(duration, err)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.identity.Provider),
			zap.String("model", p.identity.Model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, p.wrap(err)
	}
	if err := p.checkDimensions(result.Embedding); err != nil {
		return domain.EmbeddingResult{}, p.wrap(err)
	}

	p.recordUsage(ctx, result.PromptTokens, result.TotalTokens)

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.identity.Provider),
		zap.String("model", p.identity.Model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// BatchEmbed checks budget, splits texts into backend-sized batches and
// delegates to the inner embedder.
func (p *InstrumentedEmbedder) BatchEmbed(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	if err := p.checkBudget(ctx, len(texts)); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.embedChunked(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, p.wrap(err)
	}
	if len(result.Embeddings) != len(texts) {
		return domain.BatchEmbeddingResult{}, p.wrap(fmt.Errorf(
			"backend returned %d embeddings for %d texts", len(result.Embeddings), len(texts)))
	}

	p.recordUsage(ctx, result.PromptTokens, result.TotalTokens)

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.identity.Provider),
		zap.String("model", p.identity.Model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// embedChunked sends texts in batches of batchSize, re-checking the budget between batches.
func (p *InstrumentedEmbedder) embedChunked(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	all := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}

	for offset := 0; offset < len(texts); offset += p.batchSize {
		if p.budget != nil && offset > 0 {
			if err := p.budget.Check(ctx); err != nil {
				return domain.BatchEmbeddingResult{}, fmt.Errorf("budget check (chunk %d): %w", offset, err)
			}
		}

		end := min(offset+p.batchSize, len(texts))
		batch := texts[offset:end]

		start := time.Now()
		res, err := p.embedInner(ctx, batch)
		p.observe(time.Since(start), err)
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.String("provider", p.identity.Provider),
				zap.String("model", p.identity.Model),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(batch)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		for _, v := range res.Embeddings {
			if err := p.checkDimensions(v); err != nil {
				return domain.BatchEmbeddingResult{}, err
			}
		}

		all.Embeddings = append(all.Embeddings, res.Embeddings...)
		all.PromptTokens += res.PromptTokens
		all.TotalTokens += res.TotalTokens
	}
	return all, nil
}

// HealthCheck probes the wrapped backend when it supports it.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Close releases the wrapped backend when it holds resources.
func (p *InstrumentedEmbedder) Close() error {
	if c, ok := p.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (p *InstrumentedEmbedder) embedInner(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	if be, ok := p.inner.(domain.BatchEmbedder); ok {
		res, err := be.BatchEmbed(ctx, texts)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("inner batch embed: %w", err)
		}
		return res, nil
	}
	res, err := domain.BatchFallback(ctx, p.inner, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("inner batch fallback: %w", err)
	}
	return res, nil
}

func (p *InstrumentedEmbedder) checkBudget(ctx context.Context, batchSize int) error {
	if p.budget == nil {
		return nil
	}
	if err := p.budget.Check(ctx); err != nil {
		p.logger.Error("Budget exceeded",
			zap.String("provider", p.identity.Provider),
			zap.String("model", p.identity.Model),
			zap.Int("batch_size", batchSize),
			zap.Error(err),
		)
		return p.wrap(fmt.Errorf("budget check: %w", err))
	}
	return nil
}

func (p *InstrumentedEmbedder) checkDimensions(v []float32) error {
	if p.identity.Dimensions > 0 && len(v) != p.identity.Dimensions {
		return fmt.Errorf("%w: got %d, configured %d",
			domain.ErrVectorDimMismatch, len(v), p.identity.Dimensions)
	}
	return nil
}

func (p *InstrumentedEmbedder) recordUsage(ctx context.Context, promptTokens, totalTokens int) {
	domain.RequestUsageFrom(ctx).Add(totalTokens)

	if promptTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(p.identity.Provider, p.identity.Model, "prompt").
			Add(float64(promptTokens))
	}
	if totalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(p.identity.Provider, p.identity.Model, "total").
			Add(float64(totalTokens))
	}

	if p.budget != nil && totalTokens > 0 {
		p.budget.Record(int64(totalTokens))
		remaining := metrics.EmbeddingBudgetTokensRemaining
		remaining.WithLabelValues(p.identity.Provider, "daily").Set(float64(p.budget.RemainingDaily()))
		remaining.WithLabelValues(p.identity.Provider, "monthly").Set(float64(p.budget.RemainingMonthly()))
	}
}

func (p *InstrumentedEmbedder) observe(d time.Duration, err error) {
	provider, model := p.identity.Provider, p.identity.Model
	metrics.EmbeddingRequestDuration.WithLabelValues(provider, model).Observe(d.Seconds())
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(provider, model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(provider, model, errorType(err)).Inc()
		return
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, model, "success").Inc()
}

func (p *InstrumentedEmbedder) wrap(err error) error {
	var (
		embErr *domain.EmbeddingError
		cfgErr *domain.ConfigurationError
	)
	if errors.As(err, &embErr) || errors.As(err, &cfgErr) {
		return err
	}
	return &domain.EmbeddingError{Provider: p.identity.Provider, Err: err}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, domain.ErrVectorDimMismatch):
		return "dimension_mismatch"
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		return "provider"
	default:
		return "unknown"
	}
}
