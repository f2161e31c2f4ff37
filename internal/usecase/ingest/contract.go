package ingest

import (
	"context"

	"github.com/kailas-cloud/ctxdex/internal/domain"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
)

// Repository is the write side of the context corpus.
type Repository interface {
	Upsert(ctx context.Context, c *knowledge.Context) (created bool, err error)
	Get(ctx context.Context, tenantID, id string) (knowledge.Context, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// Embedder vectorizes record text with usage accounting.
type Embedder interface {
	Embed(ctx context.Context, text string, opts domain.EmbedOptions) (domain.EmbeddingResult, error)
}
