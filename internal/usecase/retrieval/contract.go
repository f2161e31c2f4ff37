package retrieval

import (
	"context"

	"github.com/kailas-cloud/ctxdex/internal/domain"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/filter"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/hit"
)

// CorpusStore is the tenant-scoped read side of the context corpus.
// Every query receives a filter.Expression, which always carries the tenant predicate
// and, for place searches, the hard radius.
type CorpusStore interface {
	// VectorQuery returns rows with an embedding, scored by cosine similarity (higher is better).
	VectorQuery(ctx context.Context, expr filter.Expression, vector []float32, limit int) ([]hit.Candidate, error)
	// TextQuery returns full-text matches scored by a relevance rank (higher is better).
	TextQuery(ctx context.Context, expr filter.Expression, text string, limit int) ([]hit.Candidate, error)
	// SubstringQuery returns rows whose folded title or body contains any of terms, newest first.
	SubstringQuery(ctx context.Context, expr filter.Expression, terms []string, limit int) ([]knowledge.Context, error)
	// RecencyQuery returns the most recently updated rows in scope.
	RecencyQuery(ctx context.Context, expr filter.Expression, limit int) ([]knowledge.Context, error)
}

// QueryEmbedder vectorizes query text. It falls back internally and only rejects empty input.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string, opts domain.EmbedOptions) (domain.EmbeddingResult, error)
}
