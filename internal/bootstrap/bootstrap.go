package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/kirillkom/inbox-triage/internal/config"
	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/core/ports"
	"github.com/kirillkom/inbox-triage/internal/core/usecase"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/llm/openai"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/lock"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/queue/nats"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/repository/memory"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/resilience"
)

type App struct {
	Config config.Config

	// Queue is nil when NATS_URL is empty.
	Queue ports.BackfillQueue

	Search   ports.EmailSearcher
	Backfill ports.EmbeddingBackfiller
	Buckets  ports.BucketManager
	Messages ports.MessageManager
	Insights ports.InsightsProvider

	closers []func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg}
	interactiveCfg, backgroundCfg := resilienceConfigs(cfg)
	interactive := resilience.NewExecutor(interactiveCfg)
	background := resilience.NewExecutor(backgroundCfg)

	messages, buckets, err := app.openStores(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	searchEmbedder, parser, err := newProviders(cfg, interactive)
	if err != nil {
		app.Close()
		return nil, err
	}
	backfillEmbedder, _, err := newProviders(cfg, background)
	if err != nil {
		app.Close()
		return nil, err
	}

	var queue *nats.Queue
	if strings.TrimSpace(cfg.NATSURL) != "" {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: background})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init backfill queue: %w", err)
		}
		app.Queue = queue
		app.closers = append(app.closers, queue.Close)
	}

	locker := app.newLocker(cfg)

	app.Search = usecase.NewSearchUseCase(messages, buckets, searchEmbedder, parser, searchLimits(cfg))
	app.Backfill = usecase.NewBackfillUseCase(messages, backfillEmbedder, locker, cfg.EmbeddingBatchSize)
	app.Buckets = usecase.NewBucketUseCase(buckets)
	app.Insights = usecase.NewInsightsUseCase(messages, buckets)
	if queue != nil {
		app.Messages = usecase.NewMessageUseCase(messages, buckets, queue, cfg.SyncBackfillBatch)
	} else {
		app.Messages = usecase.NewMessageUseCase(messages, buckets, nil, cfg.SyncBackfillBatch)
	}

	log.Info().
		Str("store", cfg.StoreBackend).
		Str("llm_provider", cfg.LLMProvider).
		Bool("queue", queue != nil).
		Bool("redis_lock", cfg.RedisAddr != "").
		Msg("app_bootstrapped")
	return app, nil
}

func (a *App) openStores(ctx context.Context, cfg config.Config) (ports.MessageStore, ports.BucketStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreBackend)) {
	case "memory":
		store := memory.NewStore()
		return store, store, nil
	case "postgres", "":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { closeDB(db) })
		if err := postgres.EnsureSchema(ctx, db, cfg.EmbeddingDimensions); err != nil {
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return postgres.NewMessageRepository(db), postgres.NewBucketRepository(db), nil
	default:
		return nil, nil, fmt.Errorf("unsupported STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func newProviders(cfg config.Config, executor *resilience.Executor) (ports.Embedder, ports.QueryParser, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "openai", "":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" && strings.TrimSpace(cfg.OpenAIBaseURL) == "" {
			return nil, nil, fmt.Errorf("LLM_PROVIDER=openai requires OPENAI_API_KEY")
		}
		client := openai.New(openai.Config{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			ChatModel:   cfg.OpenAIChatModel,
			EmbedModel:  cfg.OpenAIEmbedModel,
			Dimensions:  cfg.EmbeddingDimensions,
			Temperature: float32(cfg.QueryParseTemperature),
			MaxTokens:   cfg.QueryParseMaxTokens,
			Timeout:     cfg.ProviderTimeout,
		}, executor)
		return openai.NewEmbedder(client), openai.NewQueryParser(client), nil
	case "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel,
			ollama.WithExecutor(executor),
			ollama.WithTimeout(cfg.ProviderTimeout),
			ollama.WithTemperature(cfg.QueryParseTemperature),
		)
		return ollama.NewEmbedder(client), ollama.NewQueryParser(client), nil
	default:
		return nil, nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

// newLocker returns a Redis lease when REDIS_ADDR is set. Without it backfill
// runs are only serialized inside this process.
func (a *App) newLocker(cfg config.Config) ports.BackfillLocker {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return lock.NewLocalLocker()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	a.closers = append(a.closers, func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("redis_close_failed")
		}
	})
	return lock.NewRedisLocker(client, cfg.BackfillLeaseTTL)
}

// resilienceConfigs derives the search-path and backfill-path policies from
// the provider settings. Retry overrides only ever shorten the search path.
func resilienceConfigs(cfg config.Config) (interactive, background resilience.Config) {
	interactive = resilience.Interactive(cfg.ProviderTimeout)
	background = resilience.Background(cfg.ProviderTimeout)

	if cfg.RetryMaxAttempts > 0 {
		background.RetryMaxAttempts = cfg.RetryMaxAttempts
		interactive.RetryMaxAttempts = min(interactive.RetryMaxAttempts, cfg.RetryMaxAttempts)
	}
	if cfg.RetryInitialBackoff > 0 {
		background.RetryInitialBackoff = cfg.RetryInitialBackoff
	}
	interactive.BreakerEnabled = cfg.BreakerEnabled
	background.BreakerEnabled = cfg.BreakerEnabled
	return interactive, background
}

func searchLimits(cfg config.Config) domain.SearchLimits {
	return domain.SearchLimits{
		PageSize:            cfg.SearchPageSize,
		VectorCandidates:    cfg.SearchVectorCandidates,
		HybridCandidates:    cfg.SearchHybridCandidates,
		HybridRerankLimit:   cfg.SearchHybridRerankLimit,
		DisplayLimit:        cfg.SearchDisplayLimit,
		SimilarityThreshold: cfg.SearchSimilarityThreshold,
	}
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		log.Warn().Err(err).Msg("postgres_close_failed")
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
