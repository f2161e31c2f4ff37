package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ctxdex/internal/config"
	dbRedis "github.com/kailas-cloud/ctxdex/internal/db/redis"
	"github.com/kailas-cloud/ctxdex/internal/domain"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/request"
	domusage "github.com/kailas-cloud/ctxdex/internal/domain/usage"
	"github.com/kailas-cloud/ctxdex/internal/metrics"
	budgetrepo "github.com/kailas-cloud/ctxdex/internal/repository/budget"
	"github.com/kailas-cloud/ctxdex/internal/repository/corpus"
	"github.com/kailas-cloud/ctxdex/internal/repository/embcache"
	"github.com/kailas-cloud/ctxdex/internal/repository/sqlite"
	usagerepo "github.com/kailas-cloud/ctxdex/internal/repository/usage"
	ollamaEmb "github.com/kailas-cloud/ctxdex/internal/transport/ollama"
	openaiEmb "github.com/kailas-cloud/ctxdex/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/ctxdex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/ctxdex/internal/usecase/health"
	"github.com/kailas-cloud/ctxdex/internal/usecase/ingest"
	"github.com/kailas-cloud/ctxdex/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/ctxdex/internal/usecase/usage"
)

// corpusStore is what both retrieval and ingest need from a backend.
type corpusStore interface {
	retrieval.CorpusStore
	ingest.Repository
	Ping(ctx context.Context) error
}

// app is the composition root shared by every subcommand.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	retrieval  *retrieval.Service
	ingest     *ingest.Service
	usage      *usageuc.Service
	health     *healthuc.Service
	accountant *usageuc.Accountant

	closers []func()
}

// newApp opens the configured store and assembles the services on top of it.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (a *app, err error) {
	metrics.Register()

	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeStores()
		}
	}()

	var (
		store     corpusStore
		redis     *dbRedis.Store
		usageLog  *sqlite.UsageLog
		sqliteDB  *sqlite.Store
		dims      = cfg.Embedding.Dimensions
		readiness = time.Duration(cfg.Database.ReadinessTimeout) * time.Second
	)

	switch cfg.Database.Driver {
	case config.DriverRedis:
		redis, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		a.closers = append(a.closers, redis.Close)

		if err := redis.WaitForReady(ctx, readiness); err != nil {
			return nil, fmt.Errorf("redis not ready: %w", err)
		}
		repo := corpus.New(redis, dims)
		if err := repo.EnsureIndex(ctx); err != nil {
			return nil, fmt.Errorf("ensure corpus index: %w", err)
		}
		store = &redisCorpus{Repo: repo, pinger: redis}
		logger.Info("Connected to Redis", zap.Strings("addrs", cfg.Database.Addrs))
	case config.DriverSQLite:
		if sqliteDB, err = openSQLite(cfg.Database.SQLitePath); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = sqliteDB.Close() })
		store = sqliteDB
		logger.Info("Opened SQLite corpus", zap.String("path", cfg.Database.SQLitePath))
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	// Usage sinks; the sqlite sink works next to a redis corpus too.
	var (
		sinks    []usageuc.Sink
		counters *usagerepo.Counters
	)
	for _, name := range cfg.Usage.Sinks {
		switch name {
		case config.SinkLog:
			sinks = append(sinks, usageuc.NewLogSink(logger))
		case config.SinkSQLite:
			if sqliteDB == nil {
				if sqliteDB, err = openSQLite(cfg.Database.SQLitePath); err != nil {
					return nil, err
				}
				db := sqliteDB
				a.closers = append(a.closers, func() { _ = db.Close() })
			}
			usageLog = sqliteDB.Usage()
			sinks = append(sinks, usageLog)
		case config.SinkRedis:
			counters = usagerepo.NewCounters(redis, time.Duration(cfg.Usage.MonthlyTTLDay)*24*time.Hour)
			sinks = append(sinks, counters)
		}
	}

	a.accountant, err = usageuc.NewAccountant(cfg.Usage.PoolSize, sinks, usageuc.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create usage accountant: %w", err)
	}

	budget := newBudget(ctx, &cfg, redis, logger)
	// A typed nil *BudgetTracker inside the interface would not compare equal to nil.
	var budgetChecker embeddinguc.BudgetChecker
	var budgetReader usageuc.BudgetReader
	if budget != nil {
		budgetChecker = budget
		budgetReader = budget
	}

	chain, err := buildEmbedder(&cfg.Embedding, redis, budgetChecker, logger)
	if err != nil {
		return nil, err
	}
	pricing := domusage.NewPricing(cfg.Usage.Currency, cfg.Pricing)
	newProvider := func(instruction string) *embeddinguc.Provider {
		inner := chain
		if inner != nil && instruction != "" {
			inner = domain.NewInstructionEmbedder(inner, instruction)
		}
		return embeddinguc.NewProvider(inner, dims,
			embeddinguc.WithTimeout(cfg.Embedding.Timeout()),
			embeddinguc.WithPricing(pricing),
			embeddinguc.WithRecorder(a.accountant),
			embeddinguc.WithLogger(logger),
		)
	}
	queryProvider := newProvider(cfg.Embedding.QueryInstruction)
	docProvider := newProvider(cfg.Embedding.DocumentInstruction)

	logger.Info("Embedding chain ready",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", dims),
		zap.Bool("cache", cfg.Embedding.Cache && redis != nil),
	)

	a.retrieval = retrieval.New(store, queryProvider,
		retrieval.WithCandidatePool(cfg.Retrieval.CandidatePool),
		retrieval.WithLogger(logger),
	)
	a.ingest = ingest.New(store, docProvider, dims, logger)

	var summaries usageuc.SummaryReader = emptySummaries{}
	switch {
	case usageLog != nil:
		summaries = usageLog
	case counters != nil:
		summaries = counters
	}
	a.usage = usageuc.New(summaries, budgetReader)
	a.health = healthuc.New(store, queryProvider)

	return a, nil
}

// Close drains pending usage records, then releases the stores.
func (a *app) Close(ctx context.Context) {
	if a.accountant != nil {
		if err := a.accountant.Close(ctx); err != nil {
			a.logger.Warn("Usage records not fully drained", zap.Error(err))
		}
	}
	a.closeStores()
}

func (a *app) closeStores() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) weights() (request.Weights, request.Weights) {
	w := a.cfg.Retrieval.DefaultWeights
	p := a.cfg.Retrieval.DefaultPlaceWeights
	return request.Weights{Semantic: w.Semantic, Fulltext: w.Fulltext, Distance: w.Distance},
		request.Weights{Semantic: p.Semantic, Fulltext: p.Fulltext, Distance: p.Distance}
}

func openSQLite(path string) (*sqlite.Store, error) {
	s, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return s, nil
}

// newBudget returns nil when no limit is configured. Counters persist only on Redis.
func newBudget(ctx context.Context, cfg *config.Config, redis *dbRedis.Store, logger *zap.Logger) *embeddinguc.BudgetTracker {
	b := cfg.Embedding.Budget
	if b.DailyTokenLimit <= 0 && b.MonthlyTokenLimit <= 0 {
		return nil
	}
	action := embeddinguc.BudgetActionWarn
	if b.Action == string(embeddinguc.BudgetActionReject) {
		action = embeddinguc.BudgetActionReject
	}
	tracker := embeddinguc.NewBudgetTracker(
		cfg.Embedding.Provider, b.DailyTokenLimit, b.MonthlyTokenLimit, action, logger,
	)
	if redis != nil {
		tracker.WithStore(ctx, budgetrepo.New(
			redis,
			time.Duration(cfg.Usage.DailyTTLHours)*time.Hour,
			time.Duration(cfg.Usage.MonthlyTTLDay)*24*time.Hour,
		))
	}
	return tracker
}

// buildEmbedder assembles transport -> cache -> budget. Provider "none" yields nil,
// which leaves every call to the hash embedder.
func buildEmbedder(
	cfg *config.EmbeddingConfig,
	redis *dbRedis.Store,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) (domain.Embedder, error) {
	var base domain.Embedder
	switch cfg.Provider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderOpenAI:
		base = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Provider:   cfg.Provider,
			Logger:     logger,
		})
	case config.ProviderOllama:
		emb, err := ollamaEmb.NewEmbedder(&ollamaEmb.Config{
			ServerURL: cfg.BaseURL,
			Model:     cfg.Model,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}
		base = emb
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	embedder := base
	if cfg.Cache && redis != nil {
		embedder = embcache.New(base, redis, cfg.Model, cfg.Provider, metrics.EmbeddingCacheTotal, logger)
	}
	return embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, cfg.Model, budget, logger), nil
}

// redisCorpus adds the connection probe to the Redis repository.
type redisCorpus struct {
	*corpus.Repo
	pinger interface{ Ping(ctx context.Context) error }
}

func (r *redisCorpus) Ping(ctx context.Context) error {
	return r.pinger.Ping(ctx) //nolint:wrapcheck // probe result is reported as-is
}

// emptySummaries backs the usage report when no queryable sink is configured.
type emptySummaries struct{}

func (emptySummaries) Summarize(_ context.Context, tenantID string, from, to time.Time) (domusage.Summary, error) {
	return domusage.Summary{TenantID: tenantID, From: from, To: to}, nil
}
