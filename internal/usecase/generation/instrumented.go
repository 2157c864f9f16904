package generation

import (
	"context"
	"errors"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// InstrumentedGenerator wraps a backend with deadlines, metrics and logging.
// Backend failures leave as *domain.GenerationError; configuration errors pass through.
type InstrumentedGenerator struct {
	inner    Backend
	provider string
	model    string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewInstrumentedGenerator wraps inner. defaultTimeout applies when a call sets none.
func NewInstrumentedGenerator(
	inner Backend, provider, model string,
	defaultTimeout time.Duration, logger *zap.Logger,
) *InstrumentedGenerator {
	return &InstrumentedGenerator{
		inner:    inner,
		provider: provider,
		model:    model,
		timeout:  defaultTimeout,
		logger:   logger,
	}
}

// Generate returns the complete answer for prompt.
func (g *InstrumentedGenerator) Generate(
	ctx context.Context, prompt string, opts domain.GenerateOptions,
) (domain.Generation, error) {
	ctx, cancel := g.withDeadline(ctx, opts)
	defer cancel()

	start := time.Now()
	out, err := g.inner.Generate(ctx, prompt, opts)
	duration := time.Since(start)

	if err != nil {
		wrapped := g.wrap(ctx, err)
		g.observe("sync", duration, wrapped)
		g.logger.Error("Generation request failed",
			zap.String("provider", g.provider),
			zap.String("model", g.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.Generation{}, wrapped
	}

	g.observe("sync", duration, nil)
	g.recordTokens(out)
	g.logger.Debug("Generation request completed",
		zap.String("provider", g.provider),
		zap.String("model", g.model),
		zap.Duration("duration", duration),
		zap.Int("answer_chars", len(out.Text)),
		zap.Int("completion_tokens", out.CompletionTokens),
	)
	return out, nil
}

// Stream yields answer fragments. The backend call is cancelled when the
// consumer stops iterating or the deadline passes.
func (g *InstrumentedGenerator) Stream(
	ctx context.Context, prompt string, opts domain.GenerateOptions,
) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := g.withDeadline(ctx, opts)
		defer cancel()

		start := time.Now()
		fragments := 0
		var streamErr error
		abandoned := false

		defer func() {
			g.observe("stream", time.Since(start), streamErr)
			g.logger.Debug("Generation stream finished",
				zap.String("provider", g.provider),
				zap.String("model", g.model),
				zap.Int("fragments", fragments),
				zap.Bool("abandoned", abandoned),
				zap.Duration("duration", time.Since(start)),
			)
		}()

		for frag, err := range g.inner.Stream(ctx, prompt, opts) {
			if err != nil {
				streamErr = g.wrap(ctx, err)
				g.logger.Error("Generation stream failed",
					zap.String("provider", g.provider),
					zap.String("model", g.model),
					zap.Int("fragments", fragments),
					zap.Error(err),
				)
				yield("", streamErr)
				return
			}
			fragments++
			if !yield(frag, nil) {
				abandoned = true
				return
			}
		}
	}
}

// HealthCheck probes the wrapped backend when it supports it.
func (g *InstrumentedGenerator) HealthCheck(ctx context.Context) error {
	if hc, ok := g.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (g *InstrumentedGenerator) withDeadline(
	ctx context.Context, opts domain.GenerateOptions,
) (context.Context, context.CancelFunc) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = g.timeout
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (g *InstrumentedGenerator) wrap(ctx context.Context, err error) error {
	var (
		cfgErr *domain.ConfigurationError
		genErr *domain.GenerationError
	)
	if errors.As(err, &cfgErr) {
		return err
	}
	if errors.As(err, &genErr) {
		return err
	}
	timeout := errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded)
	return &domain.GenerationError{Provider: g.provider, Timeout: timeout, Err: err}
}

func (g *InstrumentedGenerator) observe(mode string, d time.Duration, err error) {
	metrics.GenerationRequestDuration.WithLabelValues(g.provider, g.model, mode).Observe(d.Seconds())

	status := "success"
	var genErr *domain.GenerationError
	switch {
	case err == nil:
	case errors.As(err, &genErr) && genErr.Timeout:
		status = "timeout"
		metrics.GenerationTimeoutsTotal.WithLabelValues(g.provider, g.model).Inc()
	default:
		status = "error"
	}
	metrics.GenerationRequestsTotal.WithLabelValues(g.provider, g.model, mode, status).Inc()
}

func (g *InstrumentedGenerator) recordTokens(out domain.Generation) {
	if out.PromptTokens > 0 {
		metrics.GenerationTokensTotal.WithLabelValues(g.provider, g.model, "prompt").Add(float64(out.PromptTokens))
	}
	if out.CompletionTokens > 0 {
		metrics.GenerationTokensTotal.WithLabelValues(g.provider, g.model, "completion").
			Add(float64(out.CompletionTokens))
	}
}
