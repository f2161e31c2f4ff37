package domain

import (
	"context"
	"time"
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and its accounting data through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	Model        string
	Provider     string
	PromptTokens int
	TotalTokens  int
	Latency      time.Duration
	// CostUSD is zero when the model has no configured price.
	CostUSD float64
	// Fallback is true when the vector came from the local hash embedder.
	Fallback bool
	// UsageID is the accepted usage record id, empty when the record was dropped.
	UsageID string
}

// Dimension returns the vector length.
func (r EmbeddingResult) Dimension() int { return len(r.Embedding) }

// EmbedOptions carries per-call metadata used for usage accounting only.
type EmbedOptions struct {
	Operation string
	TenantID  string
	ContextID string
}

// Embedding operations recorded in usage logs.
const (
	OperationEmbedQuery   = "embed_query"
	OperationEmbedContext = "embed_context"
)

// InstructionEmbedder is a domain decorator that prepends instruction text before embedding.
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// NewInstructionEmbedder creates a decorator that prepends instruction text.
func NewInstructionEmbedder(inner Embedder, instruction string) *InstructionEmbedder {
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

// Embed prepends instruction and delegates to inner embedder.
func (e *InstructionEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return e.inner.Embed(ctx, e.instruction+text) //nolint:wrapcheck // transparent decorator
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (e *InstructionEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}
