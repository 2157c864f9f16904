package qa

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/fingerprint"
	"github.com/kailas-cloud/docqa/internal/index"
	logpkg "github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultTopK         = 4
	DefaultExcerptChars = 160
)

// Config holds the orchestrator's per-process settings.
type Config struct {
	TopK         int
	ExcerptChars int
	Generate     domain.GenerateOptions
}

// Request is one question about one document.
type Request struct {
	Path  string
	Query string
	// TopK overrides Config.TopK when positive.
	TopK int
	// Options override the non-zero fields of Config.Generate.
	Options domain.GenerateOptions
}

// Service answers questions about PDF documents: load, chunk, index (cached by
// content), retrieve, generate.
type Service struct {
	loader    Loader
	splitter  Splitter
	cache     IndexCache
	embedder  DocumentEmbedder
	retriever Retriever
	generator Generator
	cfg       Config
	logger    *zap.Logger
}

// New creates a question answering service.
func New(
	loader Loader, splitter Splitter, cache IndexCache,
	embedder DocumentEmbedder, retriever Retriever, generator Generator,
	cfg Config, logger *zap.Logger,
) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.ExcerptChars <= 0 {
		cfg.ExcerptChars = DefaultExcerptChars
	}
	return &Service{
		loader:    loader,
		splitter:  splitter,
		cache:     cache,
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// prepared is the outcome of stages load through retrieve.
type prepared struct {
	query       string
	pages       int
	chunks      int
	fingerprint fingerprint.Fingerprint
	cacheHit    bool
	hits        []index.Hit
}

// Ask runs the full pipeline. On failure the returned result still carries
// metrics for every stage, zero for stages that were not reached.
func (s *Service) Ask(ctx context.Context, req Request) (domain.AnswerResult, error) {
	start := time.Now()
	timer := newStageTimer()
	res := domain.AnswerResult{RequestID: uuid.NewString()}
	log := logpkg.FromContextOr(ctx, s.logger).With(zap.String("qa_request_id", res.RequestID))

	r, err := s.retrieve(ctx, req, timer, log)
	if r != nil {
		s.fill(&res, r)
	}
	if err == nil {
		var gen domain.Generation
		err = timer.run(domain.StageGenerate, func() error {
			var genErr error
			gen, genErr = s.generate(ctx, req, r)
			return genErr
		})
		res.Answer = gen.Text
	}

	res.Metrics = timer.snapshot()
	res.Total = time.Since(start)
	s.finish(log, res, err)
	return res, err
}

// Answer runs the same stages as Ask and returns only the answer text.
func (s *Service) Answer(ctx context.Context, req Request) (string, error) {
	res, err := s.Ask(ctx, req)
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

// ErrStreamConsumed is yielded when Stream.Fragments is ranged over again.
var ErrStreamConsumed = errors.New("answer stream already consumed")

// Stream is an answer being generated. Everything but the answer text is
// known before the first fragment.
type Stream struct {
	RequestID   string
	Sources     []domain.Source
	CacheHit    bool
	Fingerprint string
	Pages       int
	Chunks      int

	// Fragments yields answer text. Only the first range runs generation;
	// later ranges yield ErrStreamConsumed. Breaking out cancels generation.
	Fragments iter.Seq2[string, error]

	timer *stageTimer
}

// Metrics returns the stage timings recorded so far. Generate is filled in
// once Fragments has been drained.
func (st *Stream) Metrics() []domain.StageMetric {
	if st.timer == nil {
		return nil
	}
	return st.timer.snapshot()
}

// AskStream runs stages up to retrieval eagerly and returns the generation as
// a lazy fragment sequence. On failure the returned Stream carries metrics only.
func (s *Service) AskStream(ctx context.Context, req Request) (*Stream, error) {
	start := time.Now()
	timer := newStageTimer()
	st := &Stream{RequestID: uuid.NewString(), timer: timer}
	log := logpkg.FromContextOr(ctx, s.logger).With(zap.String("qa_request_id", st.RequestID))

	r, err := s.retrieve(ctx, req, timer, log)
	if err != nil {
		res := domain.AnswerResult{RequestID: st.RequestID, Metrics: timer.snapshot(), Total: time.Since(start)}
		s.finish(log, res, err)
		return st, err
	}

	var res domain.AnswerResult
	s.fill(&res, r)
	st.Sources = res.Sources
	st.CacheHit = res.CacheHit
	st.Fingerprint = res.Fingerprint
	st.Pages = res.Pages
	st.Chunks = res.Chunks

	prompt := buildPrompt(r.hits, r.query)
	opts := s.options(req)

	var consumed atomic.Bool
	st.Fragments = func(yield func(string, error) bool) {
		if consumed.Swap(true) {
			yield("", ErrStreamConsumed)
			return
		}
		genStart := time.Now()
		var (
			text    strings.Builder
			genErr  error
			stopped bool
		)
		for frag, err := range s.generator.Stream(ctx, prompt, opts) {
			if err != nil {
				genErr = generationError(err)
				yield("", genErr)
				break
			}
			text.WriteString(frag)
			if !yield(frag, nil) {
				stopped = true
				break
			}
		}
		timer.record(domain.StageGenerate, time.Since(genStart))

		res.Answer = text.String()
		res.Metrics = timer.snapshot()
		res.Total = time.Since(start)
		if stopped {
			log.Info("Answer stream abandoned by consumer", zap.Int("answer_chars", text.Len()))
		}
		s.finish(log, res, genErr)
	}
	return st, nil
}

// retrieve runs load, chunk and embed_or_cache. The returned value is
// non-nil once chunking succeeded.
func (s *Service) retrieve(
	ctx context.Context, req Request, timer *stageTimer, log *zap.Logger,
) (*prepared, error) {
	query, err := validate(req)
	if err != nil {
		return nil, err
	}

	var pages []domain.Page
	err = timer.run(domain.StageLoad, func() error {
		var loadErr error
		pages, loadErr = s.loader.Load(ctx, req.Path)
		if loadErr != nil && !errors.Is(loadErr, domain.ErrDocument) && !errors.Is(loadErr, domain.ErrConfiguration) {
			return domain.NewDocumentError(req.Path, "failed to load document", loadErr)
		}
		return loadErr
	})
	if err != nil {
		return nil, err
	}

	var chunks []domain.Chunk
	err = timer.run(domain.StageChunk, func() error {
		var splitErr error
		chunks, splitErr = s.splitter.Split(pages)
		if splitErr == nil && len(chunks) == 0 {
			splitErr = domain.NewDocumentError(req.Path, "document produced no chunks", nil)
		}
		if splitErr != nil && !errors.Is(splitErr, domain.ErrDocument) {
			return domain.NewDocumentError(req.Path, "failed to split document", splitErr)
		}
		return splitErr
	})
	if err != nil {
		return nil, err
	}

	r := &prepared{
		query:       query,
		pages:       len(pages),
		chunks:      len(chunks),
		fingerprint: fingerprint.Of(chunks),
	}

	k := s.cfg.TopK
	if req.TopK > 0 {
		k = req.TopK
	}

	err = timer.run(domain.StageEmbedOrCache, func() error {
		idx, hit, buildErr := s.cache.GetOrBuild(ctx, r.fingerprint, chunks, s.buildIndex)
		if buildErr != nil {
			return buildErr
		}
		r.cacheHit = hit

		hits, retrieveErr := s.retriever.Retrieve(ctx, idx, query, k)
		if retrieveErr != nil {
			return retrieveErr
		}
		r.hits = hits
		return nil
	})

	log.Debug("Document indexed",
		zap.String("fingerprint", r.fingerprint.Short()),
		zap.Int("pages", r.pages),
		zap.Int("chunks", r.chunks),
		zap.Bool("cache_hit", r.cacheHit),
		zap.Int("hits", len(r.hits)),
	)
	return r, err
}

func (s *Service) buildIndex(ctx context.Context, chunks []domain.Chunk) (*index.Index, error) {
	id := s.embedder.Identity()

	res, err := s.embedder.BatchEmbed(ctx, domain.ChunkTexts(chunks))
	if err != nil {
		if errors.Is(err, domain.ErrEmbedding) || errors.Is(err, domain.ErrConfiguration) {
			return nil, err
		}
		return nil, &domain.EmbeddingError{Provider: id.Provider, Err: err}
	}

	idx, err := index.New(id, chunks, res.Embeddings)
	if err != nil {
		return nil, &domain.EmbeddingError{Provider: id.Provider, Err: err}
	}
	return idx, nil
}

func (s *Service) generate(ctx context.Context, req Request, r *prepared) (domain.Generation, error) {
	gen, err := s.generator.Generate(ctx, buildPrompt(r.hits, r.query), s.options(req))
	if err != nil {
		return domain.Generation{}, generationError(err)
	}
	return gen, nil
}

func (s *Service) options(req Request) domain.GenerateOptions {
	opts := s.cfg.Generate
	o := req.Options
	if o.Temperature != nil {
		opts.Temperature = o.Temperature
	}
	if o.ContextWindow > 0 {
		opts.ContextWindow = o.ContextWindow
	}
	if o.AcceleratorLayers > 0 {
		opts.AcceleratorLayers = o.AcceleratorLayers
	}
	if o.MaxTokens > 0 {
		opts.MaxTokens = o.MaxTokens
	}
	if o.Timeout > 0 {
		opts.Timeout = o.Timeout
	}
	return opts
}

func (s *Service) fill(res *domain.AnswerResult, r *prepared) {
	res.Pages = r.pages
	res.Chunks = r.chunks
	res.Fingerprint = r.fingerprint.String()
	res.CacheHit = r.cacheHit
	res.Sources = sources(r.hits, s.cfg.ExcerptChars)
}

func (s *Service) finish(log *zap.Logger, res domain.AnswerResult, err error) {
	status := outcome(err)
	metrics.PipelineRequestsTotal.WithLabelValues(status).Inc()

	fields := []zap.Field{
		zap.String("status", status),
		zap.Duration("total", res.Total),
		zap.Int("pages", res.Pages),
		zap.Int("chunks", res.Chunks),
		zap.Int("sources", len(res.Sources)),
		zap.Bool("cache_hit", res.CacheHit),
	}
	for _, m := range res.Metrics {
		fields = append(fields, zap.Duration(string(m.Stage), m.Duration))
	}

	if err != nil {
		log.Warn("Question answering failed", append(fields, zap.Error(err))...)
		return
	}
	log.Info("Question answered", fields...)
}

func validate(req Request) (string, error) {
	if strings.TrimSpace(req.Path) == "" {
		return "", domain.NewDocumentError("", "no file provided", domain.ErrMissingDocument)
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return "", domain.ErrEmptyQuery
	}
	if n := utf8.RuneCountInString(query); n > domain.MaxQueryLength {
		return "", fmt.Errorf("%w: %d characters", domain.ErrQueryTooLong, n)
	}
	return query, nil
}

func generationError(err error) error {
	if errors.Is(err, domain.ErrGeneration) || errors.Is(err, domain.ErrConfiguration) {
		return err
	}
	return &domain.GenerationError{Timeout: errors.Is(err, context.DeadlineExceeded), Err: err}
}

// outcome is the pipeline_requests_total status label for err.
func outcome(err error) string {
	var genErr *domain.GenerationError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidQuery):
		return "invalid_query"
	case errors.Is(err, domain.ErrDocument):
		return "document_error"
	case errors.Is(err, domain.ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, domain.ErrCacheConsistency):
		return "cache_consistency_error"
	case errors.Is(err, domain.ErrEmbedding):
		return "embedding_error"
	case errors.As(err, &genErr) && genErr.Timeout:
		return "generation_timeout"
	case errors.Is(err, domain.ErrGeneration):
		return "generation_error"
	default:
		return "error"
	}
}
