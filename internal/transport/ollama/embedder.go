// Package ollama embeds text with a local Ollama server through langchaingo.
package ollama

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ctxdex/internal/domain"
	"github.com/kailas-cloud/ctxdex/internal/metrics"
)

const provider = "ollama"

// Config holds the Ollama connection settings.
type Config struct {
	ServerURL string
	Model     string
	Logger    *zap.Logger
}

// Embedder implements domain.Embedder on top of a langchaingo embedder.
type Embedder struct {
	embedder embeddings.Embedder
	model    string
	logger   *zap.Logger
}

// NewEmbedder creates an Ollama-backed embedder. No request is made until Embed.
func NewEmbedder(cfg *Config) (*Embedder, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.ServerURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}

	emb, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}

	return &Embedder{embedder: emb, model: cfg.Model, logger: cfg.Logger}, nil
}

// Embed implements domain.Embedder. Ollama reports no usage, so tokens are estimated.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()
	vectors, err := e.embedder.EmbedDocuments(ctx, []string{text})
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(provider, e.model, "api_error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("ollama embed: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(provider, e.model, "empty_response").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(provider, e.model).Observe(duration.Seconds())

	tokens := (utf8.RuneCountInString(text) + 3) / 4
	metrics.EmbeddingTokensTotal.WithLabelValues(provider, e.model, "estimated").Add(float64(tokens))

	e.logger.Debug("Ollama embedding completed",
		zap.String("model", e.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(vectors[0])),
	)

	return domain.EmbeddingResult{
		Embedding:    vectors[0],
		Model:        e.model,
		Provider:     provider,
		PromptTokens: tokens,
		TotalTokens:  tokens,
		Latency:      duration,
	}, nil
}
