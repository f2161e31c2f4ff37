package ctxdex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	dbRedis "github.com/kailas-cloud/ctxdex/internal/db/redis"
	"github.com/kailas-cloud/ctxdex/internal/domain"
	dombatch "github.com/kailas-cloud/ctxdex/internal/domain/batch"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/request"
	"github.com/kailas-cloud/ctxdex/internal/repository/corpus"
	"github.com/kailas-cloud/ctxdex/internal/repository/sqlite"
	embeddinguc "github.com/kailas-cloud/ctxdex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/ctxdex/internal/usecase/health"
	"github.com/kailas-cloud/ctxdex/internal/usecase/ingest"
	"github.com/kailas-cloud/ctxdex/internal/usecase/retrieval"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultDimensions       = 384
)

// Внутренние интерфейсы для подмены в тестах.
type retrievalUseCase interface {
	Retrieve(ctx context.Context, req *request.Retrieve) (retrieval.Result, error)
	RetrievePlaces(ctx context.Context, req *request.Places) (retrieval.Result, error)
}

type ingestUseCase interface {
	Upsert(ctx context.Context, attrs knowledge.Attrs) (bool, error)
	Get(ctx context.Context, tenantID, id string) (knowledge.Context, error)
	Delete(ctx context.Context, tenantID, id string) error
	Load(ctx context.Context, items []knowledge.Attrs) []dombatch.Result
}

// corpusStore is the backend shared by retrieval and ingest.
type corpusStore interface {
	retrieval.CorpusStore
	ingest.Repository
	Ping(ctx context.Context) error
}

// Client is the ctxdex SDK entry point.
type Client struct {
	closer       func()
	retrievalSvc retrievalUseCase
	ingestSvc    ingestUseCase
	healthSvc    healthUseCase
	obs          *observer
}

// New creates a Client and opens its store.
// The provided context bounds the Redis readiness check and index creation.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{vectorDimensions: defaultDimensions}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.driver == "" {
		return nil, errors.New("ctxdex: store required (use WithSQLite or WithRedis)")
	}
	if cfg.vectorDimensions <= 0 {
		return nil, fmt.Errorf("ctxdex: vector dimensions must be positive, got %d", cfg.vectorDimensions)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	store, closer, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return wireClient(store, closer, cfg, obs), nil
}

func openStore(ctx context.Context, cfg *clientConfig) (corpusStore, func(), error) {
	switch cfg.driver {
	case driverSQLite:
		s, err := sqlite.Open(cfg.sqlitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("ctxdex: open sqlite: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case driverRedis:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("ctxdex: create redis store: %w", err)
		}
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("ctxdex: database not ready: %w", err)
		}
		repo := corpus.New(s, cfg.vectorDimensions)
		if err := repo.EnsureIndex(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("ctxdex: ensure index: %w", err)
		}
		return &redisCorpus{Repo: repo, store: s}, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("ctxdex: unknown driver %q", cfg.driver)
	}
}

func wireClient(store corpusStore, closer func(), cfg *clientConfig, obs *observer) *Client {
	// nil inner: every vector comes from the hash embedder
	var inner domain.Embedder
	if cfg.embedder != nil {
		inner = &embedderAdapter{inner: cfg.embedder}
	}
	provider := embeddinguc.NewProvider(inner, cfg.vectorDimensions)

	var retrievalOpts []retrieval.Option
	if cfg.candidatePool > 0 {
		retrievalOpts = append(retrievalOpts, retrieval.WithCandidatePool(cfg.candidatePool))
	}

	ingestSvc := ingest.New(store, provider, cfg.vectorDimensions, zap.NewNop())
	if cfg.maxBatchSize > 0 {
		ingestSvc = ingestSvc.WithMaxBatchSize(cfg.maxBatchSize)
	}

	return &Client{
		closer:       closer,
		retrievalSvc: retrieval.New(store, provider, retrievalOpts...),
		ingestSvc:    ingestSvc,
		healthSvc:    healthuc.New(store, provider),
		obs:          obs,
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
		c.closer = nil
	}
}

// redisCorpus adds the connection probe to the Redis repository.
type redisCorpus struct {
	*corpus.Repo
	store *dbRedis.Store
}

func (r *redisCorpus) Ping(ctx context.Context) error {
	return r.store.Ping(ctx) //nolint:wrapcheck // probe result is reported as-is
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		Model:        r.Model,
		Provider:     "sdk",
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}
