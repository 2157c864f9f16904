package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/config"
	"github.com/kailas-cloud/docqa/internal/db"
	dbMemory "github.com/kailas-cloud/docqa/internal/db/memory"
	dbRedis "github.com/kailas-cloud/docqa/internal/db/redis"
	"github.com/kailas-cloud/docqa/internal/document"
	"github.com/kailas-cloud/docqa/internal/domain"
	logpkg "github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/metrics"
	budgetrepo "github.com/kailas-cloud/docqa/internal/repository/budget"
	"github.com/kailas-cloud/docqa/internal/repository/indexcache"
	hugotTransport "github.com/kailas-cloud/docqa/internal/transport/hugot"
	ollamaTransport "github.com/kailas-cloud/docqa/internal/transport/ollama"
	openaiTransport "github.com/kailas-cloud/docqa/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/docqa/internal/usecase/embedding"
	generationuc "github.com/kailas-cloud/docqa/internal/usecase/generation"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
	"github.com/kailas-cloud/docqa/internal/usecase/lazy"
	"github.com/kailas-cloud/docqa/internal/usecase/qa"
	"github.com/kailas-cloud/docqa/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/docqa/internal/usecase/usage"
)

// app is the composition root shared by every subcommand.
type app struct {
	env    string
	cfg    config.Config
	logger *zap.Logger
	store  db.Store

	embedding  *embeddinguc.Provider
	generation *generationuc.Provider
	cache      *indexcache.Cache
	qa         *qa.Service
	health     *healthuc.Service
	usage      *usageuc.Service
}

// newApp loads configuration and wires every component. Providers are not
// contacted here: they initialize on first use.
func newApp(ctx context.Context, env string) (*app, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	metrics.RegisterAll()

	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	a := &app{env: env, cfg: cfg, logger: logger, store: store}

	// Single BudgetTracker shared by the embedder chain and the usage report.
	// Zero limits are unlimited; usage is still counted.
	budget := embeddinguc.NewBudgetTracker(
		cfg.Embedding.Provider,
		cfg.Embedding.Budget.DailyTokenLimit,
		cfg.Embedding.Budget.MonthlyTokenLimit,
		embeddinguc.BudgetAction(cfg.Embedding.Budget.Action),
		logger,
	).WithStore(ctx, budgetrepo.New(store))

	lazyMetrics := lazy.Metrics{
		Reinitializations: metrics.ProviderReinitializationsTotal,
		InitFailures:      metrics.ProviderInitFailuresTotal,
	}

	identity := domain.ProviderIdentity{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
	}
	a.embedding = embeddinguc.NewProvider(identity, lazy.New[domain.Embedder](
		"embedding", embeddingFactory(&cfg, identity, budget, logger), lazyMetrics, logger,
	))
	a.generation = generationuc.NewProvider(lazy.New[generationuc.Backend](
		"generation", generationFactory(&cfg, logger), lazyMetrics, logger,
	))

	cacheOpts := []indexcache.Option{indexcache.WithMetrics(indexcache.Metrics{
		Requests:      metrics.IndexCacheRequestsTotal,
		Entries:       metrics.IndexCacheEntries,
		Evictions:     metrics.IndexCacheEvictionsTotal,
		BuildDuration: metrics.IndexBuildDuration,
	})}
	if cfg.Cache.MaxEntries > 0 {
		cacheOpts = append(cacheOpts, indexcache.WithPolicy(indexcache.NewLRU(cfg.Cache.MaxEntries)))
	}
	a.cache = indexcache.New(logger, cacheOpts...)

	// Indexes built by the old backend live in another embedding space.
	a.embedding.OnReinitialize(func(ev lazy.Event) {
		n := a.cache.Clear()
		logger.Info("Index cache cleared after embedding reinitialization",
			zap.String("reason", ev.Reason),
			zap.Uint64("generation", ev.Generation),
			zap.Int("removed", n),
		)
	})

	instr := domain.DefaultInstructions(cfg.Embedding.Model).Override(domain.Instructions{
		Document: cfg.Embedding.DocumentInstruction,
		Query:    cfg.Embedding.QueryInstruction,
	})
	docEmbedder := domain.NewInstructionEmbedder(a.embedding, instr.Document)
	queryEmbedder := domain.NewInstructionEmbedder(a.embedding, instr.Query)

	splitterOpts := []document.Option{document.WithChunkSize(cfg.Chunking.Size)}
	if cfg.Chunking.Overlap != nil {
		splitterOpts = append(splitterOpts, document.WithOverlap(*cfg.Chunking.Overlap))
	}

	a.qa = qa.New(
		document.NewPDFLoader(logger),
		document.NewSplitter(splitterOpts...),
		a.cache,
		docEmbedder,
		retrieval.New(queryEmbedder, logger),
		a.generation,
		qa.Config{
			TopK:         cfg.Retrieval.K,
			ExcerptChars: cfg.Retrieval.ExcerptChars,
			Generate: domain.GenerateOptions{
				Temperature:       cfg.LLM.Temperature,
				ContextWindow:     cfg.LLM.NumCtx,
				AcceleratorLayers: cfg.LLM.NumGPU,
				MaxTokens:         cfg.LLM.MaxTokens,
				Timeout:           cfg.GenerationTimeout(),
			},
		},
		logger,
	)

	a.health = healthuc.New(store, a.embedding, a.generation, healthuc.DefaultTimeout, logger)
	a.usage = usageuc.New(budget, identity)

	logger.Info("docqa wired",
		zap.String("env", env),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("embedding", identity.String()),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Int("cache_max_entries", cfg.Cache.MaxEntries),
	)
	return a, nil
}

// close releases provider instances and the store.
func (a *app) close() {
	ctx := context.Background()
	if a.embedding.Initialized() {
		a.embedding.Reinitialize(ctx, "shutdown")
	}
	if a.generation.Initialized() {
		a.generation.Reinitialize(ctx, "shutdown")
	}
	a.store.Close()
	_ = a.logger.Sync()
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (db.Store, error) {
	var (
		store db.Store
		err   error
	)
	switch cfg.Driver {
	case db.DriverMemory:
		store = dbMemory.NewStore()
	case db.DriverRedis:
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("create database store: %w", err)
	}

	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database", zap.String("driver", cfg.Driver), zap.Strings("addrs", cfg.Addrs))
	return store, nil
}

// embeddingFactory builds the configured backend wrapped with budget and metrics.
func embeddingFactory(
	cfg *config.Config, identity domain.ProviderIdentity,
	budget embeddinguc.BudgetChecker, logger *zap.Logger,
) lazy.Factory[domain.Embedder] {
	ec := cfg.Embedding
	return func(ctx context.Context) (domain.Embedder, error) {
		var backend domain.Embedder
		switch ec.Provider {
		case config.ProviderOpenAI:
			backend = openaiTransport.NewEmbedder(&openaiTransport.Config{
				APIKey:          ec.APIKey,
				BaseURL:         ec.BaseURL,
				Model:           ec.Model,
				Dimensions:      ec.Dimensions,
				Provider:        ec.Provider,
				RetryMaxElapsed: cfg.RetryMaxElapsed(),
				Logger:          logger,
			})
		case config.ProviderOllama:
			client, err := readyOllama(ctx, ec.BaseURL, cfg.LLM.ReadinessTimeoutSec, "embedding", ec.Model, logger)
			if err != nil {
				return nil, err
			}
			backend = ollamaTransport.NewEmbedder(client, ec.Model, ec.Dimensions)
		case config.ProviderLocal:
			e, err := hugotTransport.NewEmbedder(ctx, hugotTransport.Config{
				Model:        ec.Model,
				ModelDir:     ec.ModelDir,
				OnnxFilePath: ec.OnnxFile,
				HFToken:      ec.HFToken,
				Device:       ec.Device,
				Dimensions:   ec.Dimensions,
				Normalize:    ec.Normalize == nil || *ec.Normalize,
				Logger:       logger,
			})
			if err != nil {
				return nil, err
			}
			backend = e
		default:
			return nil, fmt.Errorf("unknown embedding provider %q", ec.Provider)
		}
		return embeddinguc.NewInstrumentedEmbedder(backend, identity, budget, logger), nil
	}
}

// generationFactory builds the configured chat backend wrapped with deadlines and metrics.
func generationFactory(cfg *config.Config, logger *zap.Logger) lazy.Factory[generationuc.Backend] {
	lc := cfg.LLM
	return func(ctx context.Context) (generationuc.Backend, error) {
		var backend generationuc.Backend
		switch lc.Provider {
		case config.ProviderOllama:
			client, err := readyOllama(ctx, lc.BaseURL, lc.ReadinessTimeoutSec, "generation", lc.Model, logger)
			if err != nil {
				return nil, err
			}
			backend = ollamaTransport.NewGenerator(client, lc.Model)
		case config.ProviderOpenAI:
			backend = openaiTransport.NewGenerator(&openaiTransport.Config{
				APIKey:          lc.APIKey,
				BaseURL:         lc.BaseURL,
				Model:           lc.Model,
				Provider:        lc.Provider,
				RetryMaxElapsed: cfg.RetryMaxElapsed(),
				Logger:          logger,
			})
		default:
			return nil, fmt.Errorf("unknown llm provider %q", lc.Provider)
		}
		return generationuc.NewInstrumentedGenerator(
			backend, lc.Provider, lc.Model, cfg.GenerationTimeout(), logger,
		), nil
	}
}

// readyOllama waits for the server and checks that model is pulled.
func readyOllama(
	ctx context.Context, host string, readinessSec int,
	component, model string, logger *zap.Logger,
) (*ollamaTransport.Client, error) {
	client, err := ollamaTransport.NewClient(host, nil, logger)
	if err != nil {
		return nil, err
	}
	if err := client.WaitReady(ctx, time.Duration(readinessSec)*time.Second); err != nil {
		return nil, err
	}
	if err := client.EnsureModel(ctx, component, model); err != nil {
		return nil, err
	}
	if v, err := client.Version(ctx); err == nil {
		logger.Info("Ollama ready",
			zap.String("component", component),
			zap.String("host", host),
			zap.String("model", model),
			zap.String("version", v),
		)
	}
	return client, nil
}
