package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ctxdex/internal/domain"
	"github.com/kailas-cloud/ctxdex/internal/domain/geo"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/hit"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/request"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/tier"
	"github.com/kailas-cloud/ctxdex/internal/metrics"
)

// DefaultCandidatePool is K in the per-query candidate limit max(2K, 2·topK).
const DefaultCandidatePool = 20

var tracer = otel.Tracer("github.com/kailas-cloud/ctxdex/internal/usecase/retrieval")

// Usage is the embedding accounting attached to a retrieval result.
type Usage struct {
	InputTokens int
	TotalTokens int
	Latency     time.Duration
	CostUSD     float64
	Fallback    bool
	RecordID    string
}

// Result is a ranked hit list plus the embedding call that produced the query vector.
type Result struct {
	Hits     []hit.Hit
	Tier     tier.Tier
	Model    string
	Provider string
	Usage    Usage
}

// Service runs the retrieval cascade. It holds no per-request state.
type Service struct {
	store         CorpusStore
	embed         QueryEmbedder
	candidatePool int
	logger        *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCandidatePool overrides K.
func WithCandidatePool(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.candidatePool = k
		}
	}
}

// WithLogger sets the logger used for swallowed tier failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a retrieval service.
func New(store CorpusStore, embed QueryEmbedder, opts ...Option) *Service {
	s := &Service{
		store:         store,
		embed:         embed,
		candidatePool: DefaultCandidatePool,
		logger:        zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Retrieve embeds the query and walks hybrid → substring → ngram → recency until a tier has hits.
// Store failures never surface: an empty hit list is a valid answer.
func (s *Service) Retrieve(ctx context.Context, req *request.Retrieve) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.RetrievalDuration.WithLabelValues("retrieve").Observe(time.Since(start).Seconds())
	}()

	ctx, span := tracer.Start(ctx, "retrieval.Retrieve")
	defer span.End()

	res, vector, err := s.embedQuery(ctx, req)
	if err != nil {
		return Result{}, err
	}

	hits, winner := s.runTier(ctx, tier.Hybrid, func(ctx context.Context) ([]hit.Hit, error) {
		cands, err := s.hybridCandidates(ctx, req, vector)
		if err != nil {
			return nil, err
		}
		return rankHybrid(cands, req.Weights(), req.MinScore(), req.TopK()), nil
	})
	if len(hits) == 0 {
		hits, winner = s.fallback(ctx, req, nil)
	}

	res.Hits, res.Tier = hits, winner
	metrics.RetrievalTotal.WithLabelValues("retrieve", string(winner)).Inc()
	return res, nil
}

// RetrievePlaces is Retrieve with a hard radius and a proximity dimension.
// Nothing outside the radius is ever returned, including from fallback tiers.
func (s *Service) RetrievePlaces(ctx context.Context, req *request.Places) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.RetrievalDuration.WithLabelValues("places").Observe(time.Since(start).Seconds())
	}()

	ctx, span := tracer.Start(ctx, "retrieval.RetrievePlaces")
	defer span.End()

	coords := req.Coordinates()
	if err := coords.Validate(); err != nil {
		return Result{}, err
	}

	res, vector, err := s.embedQuery(ctx, &req.Retrieve)
	if err != nil {
		return Result{}, err
	}

	var cands []*candidate
	hits, winner := s.runTier(ctx, tier.Hybrid, func(ctx context.Context) ([]hit.Hit, error) {
		union, err := s.hybridCandidates(ctx, &req.Retrieve, vector)
		if err != nil {
			return nil, err
		}
		withDistance(union, coords.Point(), coords.MaxKm)
		cands = union
		return rankPlaces(cands, req.Weights(), req.MinScore(), req.TopK()), nil
	})

	switch {
	case len(hits) > 0:
	case len(cands) > 0:
		hits, winner = rankProximity(cands, req.TopK()), tier.Proximity
	default:
		hits, winner = s.fallback(ctx, &req.Retrieve, &coords)
	}

	res.Hits, res.Tier = hits, winner
	metrics.RetrievalTotal.WithLabelValues("places", string(winner)).Inc()
	return res, nil
}

func (s *Service) embedQuery(ctx context.Context, req *request.Retrieve) (Result, []float32, error) {
	emb, err := s.embed.Embed(ctx, req.Query(), domain.EmbedOptions{
		Operation: domain.OperationEmbedQuery,
		TenantID:  req.TenantID(),
	})
	if err != nil {
		return Result{}, nil, fmt.Errorf("vectorize query: %w", err)
	}
	domain.UsageFromContext(ctx).Add(emb)

	return Result{
		Model:    emb.Model,
		Provider: emb.Provider,
		Usage: Usage{
			InputTokens: emb.PromptTokens,
			TotalTokens: emb.TotalTokens,
			Latency:     emb.Latency,
			CostUSD:     emb.CostUSD,
			Fallback:    emb.Fallback,
			RecordID:    emb.UsageID,
		},
	}, emb.Embedding, nil
}

// candidateLimit is max(2K, 2·topK).
func (s *Service) candidateLimit(topK int) int {
	return 2 * max(s.candidatePool, topK)
}

// fallback runs tiers 2–4. With coords set every hit is annotated with its distance.
func (s *Service) fallback(ctx context.Context, req *request.Retrieve, coords *request.Coordinates) ([]hit.Hit, tier.Tier) {
	expr, topK := req.Filters(), req.TopK()
	var center *geo.Point
	if coords != nil {
		p := coords.Point()
		center = &p
	}

	tiers := []struct {
		name tier.Tier
		run  func(ctx context.Context) ([]hit.Hit, error)
	}{
		{tier.Substring, func(ctx context.Context) ([]hit.Hit, error) {
			term := knowledge.Fold(strings.TrimSpace(req.Query()))
			if term == "" {
				return nil, nil
			}
			rows, err := s.store.SubstringQuery(ctx, expr, []string{term}, topK)
			return toHits(rows, tier.MatchScore, tier.Substring, center), err
		}},
		{tier.NGram, func(ctx context.Context) ([]hit.Hit, error) {
			grams := ngrams(req.Query())
			if len(grams) == 0 {
				return nil, nil
			}
			rows, err := s.store.SubstringQuery(ctx, expr, grams, topK)
			return toHits(rows, tier.MatchScore, tier.NGram, center), err
		}},
		{tier.Recency, func(ctx context.Context) ([]hit.Hit, error) {
			rows, err := s.store.RecencyQuery(ctx, expr, topK)
			return toHits(rows, tier.RecencyScore, tier.Recency, center), err
		}},
	}

	for _, t := range tiers {
		if hits, _ := s.runTier(ctx, t.name, t.run); len(hits) > 0 {
			return hits, t.name
		}
	}
	return []hit.Hit{}, tier.None
}

// runTier executes one tier under its own span. A failing tier counts as empty.
func (s *Service) runTier(
	ctx context.Context, name tier.Tier,
	run func(ctx context.Context) ([]hit.Hit, error),
) ([]hit.Hit, tier.Tier) {
	ctx, span := tracer.Start(ctx, "retrieval.tier."+string(name))
	defer span.End()

	hits, err := run(ctx)
	if err != nil {
		span.RecordError(err)
		metrics.RetrievalTierErrorsTotal.WithLabelValues(string(name)).Inc()
		s.logger.Warn("Retrieval tier failed, escalating",
			zap.String("tier", string(name)),
			zap.Error(err),
		)
		return nil, name
	}
	return hits, name
}
