package main

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/catalog"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/config"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/logging"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/memory"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/repository"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/service"
)

// app holds everything a long-running command needs
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *repository.Store
	catalog  *catalog.Catalog
	engine   *service.ReservationEngine
	memory   *memory.Manager
	orch     *service.Orchestrator
}

// setup loads configuration and builds the logger
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	for _, w := range cfg.Warnings {
		logger.Warn("configuration", zap.String("warning", w))
	}
	return cfg, logger, nil
}

func openStore(cfg *config.Config, logger *zap.Logger) (*repository.Store, error) {
	store, err := repository.Open(cfg.Database.Driver, cfg.GetDatabaseDSN(), cfg.Database.MaxConnections, cfg.Database.MaxIdleConnections)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database", zap.String("driver", cfg.Database.Driver))
	return store, nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog.Path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(cfg.Catalog.Path)
}

// newApp wires the full turn pipeline
func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, cfg.OpenAI.EmbeddingDimensions); err != nil {
		store.Close()
		return nil, err
	}

	c, err := loadCatalog(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	aiClient := service.NewOpenAIClient(&cfg.OpenAI, logger)
	var embedder service.Embedder
	if aiClient.IsEnabled() {
		embedder = aiClient
		logger.Info("OpenAI client initialized",
			zap.String("api_base", cfg.OpenAI.APIBase),
			zap.String("chat_model", cfg.OpenAI.ChatModel),
			zap.String("embedding_model", cfg.OpenAI.EmbeddingModel))
	} else {
		logger.Warn("OpenAI is disabled; using keyword retrieval and rule-based parsing")
	}

	rules := service.NewRulePlanner(c, service.SystemClock)
	var planner service.Planner = rules
	if aiClient.IsEnabled() && cfg.OpenAI.PlannerEnabled {
		llm, err := openai.New(
			openai.WithToken(cfg.OpenAI.APIKey),
			openai.WithBaseURL(cfg.OpenAI.APIBase),
			openai.WithModel(cfg.OpenAI.ChatModel),
		)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create planner model: %w", err)
		}
		planner = service.NewLLMPlanner(llm, rules, service.SystemClock, logger)
	}

	var memStore memory.Store
	if cfg.Redis.URL != "" {
		redisStore, err := memory.NewRedisStore(cfg.Redis.URL, cfg.Redis.TTL, cfg.Redis.MaxMessages)
		if err != nil {
			store.Close()
			return nil, err
		}
		memStore = redisStore
		logger.Info("conversation memory in redis")
	} else {
		memStore = memory.NewLocalStore(cfg.Redis.MaxMessages)
		logger.Warn("REDIS_URL not set; conversation memory is kept in process")
	}
	mem := memory.NewManager(memStore)

	pricer := service.NewPricer(c)
	engine := service.NewReservationEngine(store, c, pricer, cfg.Booking, service.SystemClock, logger)
	retriever := service.NewRetriever(embedder, repository.NewKnowledgeRepository(store), cfg.Retrieval, logger)

	orch := service.NewOrchestrator(service.Deps{
		Catalog:    c,
		Planner:    planner,
		Retriever:  retriever,
		Translator: service.NewTranslator(c, service.NewLLMSlotExtractor(aiClient, c, logger), service.SystemClock, logger),
		Validator:  service.NewValidator(c, cfg.Booking, service.SystemClock),
		Engine:     engine,
		Pricer:     pricer,
		History:    mem,
		TurnLog:    store,
	}, cfg.Orchestrator, retriever.DefaultTopK(), logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		catalog:  c,
		engine:   engine,
		memory:   mem,
		orch:     orch,
	}, nil
}

// Close waits for background work and releases connections
func (a *app) Close() {
	a.orch.Close()
	if err := a.memory.Close(); err != nil {
		a.logger.Warn("failed to close memory store", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
