package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ctxdex/internal/domain"
	dombatch "github.com/kailas-cloud/ctxdex/internal/domain/batch"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
)

// MaxBatchSize is the maximum number of records per Load call.
const MaxBatchSize = 500

// Service stores context records with automatic vectorization.
type Service struct {
	repo         Repository
	embedder     Embedder
	dimensions   int
	maxBatchSize int
	logger       *zap.Logger
}

// New creates an ingest service. dimensions is the corpus vector size (0 disables the check).
func New(repo Repository, embedder Embedder, dimensions int, logger *zap.Logger) *Service {
	return &Service{
		repo:         repo,
		embedder:     embedder,
		dimensions:   dimensions,
		maxBatchSize: MaxBatchSize,
		logger:       logger,
	}
}

// WithMaxBatchSize configures the maximum batch size.
func (s *Service) WithMaxBatchSize(size int) *Service {
	if size > 0 {
		s.maxBatchSize = size
	}
	return s
}

// Upsert validates, embeds and stores a record.
// Returns true if the record was created, false if it replaced an existing one.
func (s *Service) Upsert(ctx context.Context, attrs knowledge.Attrs) (bool, error) {
	if attrs.TenantID == "" {
		return false, domain.ErrTenantRequired
	}
	rec, err := knowledge.New(attrs)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrInvalidContext, err)
	}

	result, err := s.embedder.Embed(ctx, embeddingText(&rec), domain.EmbedOptions{
		Operation: domain.OperationEmbedContext,
		TenantID:  rec.TenantID(),
		ContextID: rec.ID(),
	})
	if err != nil {
		return false, fmt.Errorf("vectorize context: %w", err)
	}
	domain.UsageFromContext(ctx).Add(result)

	if s.dimensions > 0 && len(result.Embedding) != s.dimensions {
		return false, fmt.Errorf(
			"vector dimension mismatch: got %d, want %d: %w",
			len(result.Embedding), s.dimensions, domain.ErrVectorDimMismatch,
		)
	}
	if result.Fallback {
		s.logger.Warn("Context stored with fallback embedding",
			zap.String("tenant_id", rec.TenantID()),
			zap.String("context_id", rec.ID()),
		)
	}

	rec = rec.WithEmbedding(result.Embedding)
	created, err := s.repo.Upsert(ctx, &rec)
	if err != nil {
		return false, fmt.Errorf("upsert context: %w", err)
	}
	return created, nil
}

// Get retrieves a record by tenant and id.
func (s *Service) Get(ctx context.Context, tenantID, id string) (knowledge.Context, error) {
	if tenantID == "" {
		return knowledge.Context{}, domain.ErrTenantRequired
	}
	c, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return knowledge.Context{}, fmt.Errorf("get context: %w", err)
	}
	return c, nil
}

// Delete removes a record.
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	if tenantID == "" {
		return domain.ErrTenantRequired
	}
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return fmt.Errorf("delete context: %w", err)
	}
	return nil
}

// Load upserts records one by one and reports a result per item.
// A failed item does not stop the batch; a cancelled context fails the remaining items.
func (s *Service) Load(ctx context.Context, items []knowledge.Attrs) []dombatch.Result {
	results := make([]dombatch.Result, len(items))

	if len(items) > s.maxBatchSize {
		for i, item := range items {
			results[i] = dombatch.NewError(i+1, item.ID,
				fmt.Errorf("batch size exceeds %d: %w", s.maxBatchSize, domain.ErrInvalidContext))
		}
		return results
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(items); j++ {
				results[j] = dombatch.NewError(j+1, items[j].ID, err)
			}
			return results
		}

		created, err := s.Upsert(ctx, item)
		if err != nil {
			results[i] = dombatch.NewError(i+1, item.ID, err)
			continue
		}
		results[i] = dombatch.NewOK(i+1, item.ID, created)
	}
	return results
}

// embeddingText prefixes the record instruction, when present, to the embedding input.
func embeddingText(c *knowledge.Context) string {
	text := knowledge.EmbeddingInput(c)
	if instr := strings.TrimSpace(c.Instruction()); instr != "" {
		return instr + "\n" + text
	}
	return text
}
