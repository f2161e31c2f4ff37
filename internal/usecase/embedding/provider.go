package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ctxdex/internal/domain"
	"github.com/kailas-cloud/ctxdex/internal/domain/usage"
	"github.com/kailas-cloud/ctxdex/internal/metrics"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 5 * time.Second

// Fallback reasons, used as metric labels.
const (
	reasonNotConfigured = "not_configured"
	reasonTimeout       = "timeout"
	reasonQuota         = "quota"
	reasonError         = "error"
	reasonEmpty         = "empty"
)

var tracer = otel.Tracer("github.com/kailas-cloud/ctxdex/internal/usecase/embedding")

// UsageRecorder accepts one usage record per embedding call and returns its id,
// or "" when the record was dropped. It must not block.
type UsageRecorder interface {
	Record(rec usage.Record) string
}

// Provider turns text into a corpus-sized vector and never fails because of the remote model.
// Without a configured transport, or when it errors or times out, the hash embedder answers.
type Provider struct {
	inner      domain.Embedder
	fallback   domain.Embedder
	dimensions int
	timeout    time.Duration
	pricing    usage.Pricing
	recorder   UsageRecorder
	logger     *zap.Logger
	now        func() time.Time
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithTimeout sets the provider call timeout.
func WithTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithPricing sets the read-only price table used for cost snapshots.
func WithPricing(pr usage.Pricing) ProviderOption {
	return func(p *Provider) { p.pricing = pr }
}

// WithRecorder sets the usage sink.
func WithRecorder(r UsageRecorder) ProviderOption {
	return func(p *Provider) { p.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// NewProvider creates a Provider. inner may be nil when no remote model is configured.
func NewProvider(inner domain.Embedder, dimensions int, opts ...ProviderOption) *Provider {
	p := &Provider{
		inner:      inner,
		fallback:   HashEmbedder{},
		dimensions: dimensions,
		timeout:    DefaultTimeout,
		pricing:    usage.NewPricing("", nil),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Dimensions returns the corpus vector size every result is resized to.
func (p *Provider) Dimensions() int { return p.dimensions }

// Embed returns a vector of exactly Dimensions() floats. The only error is an empty text.
func (p *Provider) Embed(ctx context.Context, text string, opts domain.EmbedOptions) (domain.EmbeddingResult, error) {
	if text == "" {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: empty embedding input", domain.ErrInvalidQuery)
	}

	ctx, span := tracer.Start(ctx, "embedding.Embed", trace.WithAttributes(
		attribute.String("operation", opts.Operation),
		attribute.String("tenant_id", opts.TenantID),
	))
	defer span.End()

	start := p.now()
	res, reason := p.embedRemote(ctx, text)
	if reason != "" {
		// hash embedder cannot fail
		res, _ = p.fallback.Embed(ctx, text) //nolint:errcheck // deterministic, error-free
		metrics.EmbeddingFallbackTotal.WithLabelValues(reason).Inc()
		span.AddEvent("fallback", trace.WithAttributes(attribute.String("reason", reason)))
	}
	res.Embedding = Resize(res.Embedding, p.dimensions)
	res.Latency = p.now().Sub(start)

	cost := p.pricing.CostFor(res.Model, res.TotalTokens)
	res.CostUSD = cost.Amount
	res.UsageID = p.record(res, cost, opts)

	span.SetAttributes(
		attribute.String("provider", res.Provider),
		attribute.String("model", res.Model),
		attribute.Bool("fallback", res.Fallback),
	)
	return res, nil
}

// embedRemote returns a non-empty reason when the fallback must answer instead.
func (p *Provider) embedRemote(ctx context.Context, text string) (domain.EmbeddingResult, string) {
	if p.inner == nil {
		return domain.EmbeddingResult{}, reasonNotConfigured
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res, err := p.inner.Embed(callCtx, text)
	switch {
	case err == nil && len(res.Embedding) == 0:
		p.logger.Warn("Embedding provider returned an empty vector, using hash fallback")
		return domain.EmbeddingResult{}, reasonEmpty
	case err == nil:
		return res, ""
	}

	reason := reasonError
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		reason = reasonTimeout
	case errors.Is(err, domain.ErrEmbeddingQuotaExceeded):
		reason = reasonQuota
	}
	trace.SpanFromContext(ctx).SetStatus(codes.Error, err.Error())
	p.logger.Warn("Embedding provider failed, using hash fallback",
		zap.String("reason", reason),
		zap.Error(err),
	)
	return domain.EmbeddingResult{}, reason
}

func (p *Provider) record(res domain.EmbeddingResult, cost usage.Cost, opts domain.EmbedOptions) string {
	if p.recorder == nil {
		return ""
	}
	return p.recorder.Record(usage.Record{
		Operation: opts.Operation,
		Provider:  res.Provider,
		Model:     res.Model,
		Latency:   res.Latency,
		Tokens:    usage.Tokens{Input: res.PromptTokens, Total: res.TotalTokens},
		Cost:      cost,
		TenantID:  opts.TenantID,
		ContextID: opts.ContextID,
		Fallback:  res.Fallback,
		CreatedAt: p.now().UTC(),
	})
}

// HealthCheck reports the remote provider state. An unconfigured provider is healthy.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if p.inner == nil {
		return nil
	}
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}
