// Package corpus stores context records as Redis hashes under one FT index
// and answers the retrieval queries with FT.SEARCH.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/ctxdex/internal/db"
	"github.com/kailas-cloud/ctxdex/internal/domain"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/filter"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/hit"
)

// store is the consumer interface for the corpus (ISP).
//
//nolint:interfacebloat // corpus repo needs hash, index and search operations
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	SearchFilter(ctx context.Context, q *db.FilterQuery) (*db.SearchResult, error)
}

// Repo implements retrieval.CorpusStore and ingest.Repository on Redis.
type Repo struct {
	store     store
	vectorDim int
	hnsw      HNSWConfig
}

// New creates a corpus repository for vectors of vectorDim floats.
func New(s store, vectorDim int) *Repo {
	return &Repo{store: s, vectorDim: vectorDim, hnsw: HNSWConfig{M: 16, EFConstruct: 200}}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// EnsureIndex creates the corpus index unless it already exists.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, IndexName())
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def, err := buildIndex(r.vectorDim, r.hnsw)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Upsert replaces a context record. Returns true if the record did not exist before.
// Archived records are moved out of the indexed key space.
func (r *Repo) Upsert(ctx context.Context, c *knowledge.Context) (bool, error) {
	active := contextKey(c.TenantID(), c.ID())
	archived := archiveKey(c.TenantID(), c.ID())

	existed, err := r.exists(ctx, active, archived)
	if err != nil {
		return false, err
	}

	fields, err := buildHashFields(c)
	if err != nil {
		return false, err
	}

	target, stale := active, archived
	if c.Status() == knowledge.StatusArchived {
		target, stale = archived, active
	}

	// HSET merges; drop the previous hash so removed fields (vector, location) do not linger
	for _, key := range []string{target, stale} {
		if err := r.store.Del(ctx, key); err != nil {
			return false, fmt.Errorf("del %s: %w", key, err)
		}
	}
	if err := r.store.HSet(ctx, target, fields); err != nil {
		return false, fmt.Errorf("hset %s: %w", target, err)
	}
	return !existed, nil
}

// Get returns a context by tenant and id, archived or not.
func (r *Repo) Get(ctx context.Context, tenantID, id string) (knowledge.Context, error) {
	for _, key := range []string{contextKey(tenantID, id), archiveKey(tenantID, id)} {
		m, err := r.store.HGetAll(ctx, key)
		if err != nil {
			return knowledge.Context{}, fmt.Errorf("hgetall %s: %w", key, err)
		}
		if len(m) > 0 {
			return parseHashFields(m), nil
		}
	}
	return knowledge.Context{}, domain.ErrNotFound
}

// Delete removes a context record.
func (r *Repo) Delete(ctx context.Context, tenantID, id string) error {
	active := contextKey(tenantID, id)
	archived := archiveKey(tenantID, id)

	exists, err := r.exists(ctx, active, archived)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	for _, key := range []string{active, archived} {
		if err := r.store.Del(ctx, key); err != nil {
			return fmt.Errorf("del %s: %w", key, err)
		}
	}
	return nil
}

// VectorQuery runs a pre-filtered KNN query. Scores are cosine similarities.
func (r *Repo) VectorQuery(
	ctx context.Context, expr filter.Expression, vector []float32, limit int,
) ([]hit.Candidate, error) {
	if expr.IsZero() {
		return nil, domain.ErrTenantRequired
	}
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    IndexName(),
		VectorField:  fieldEmbedding,
		Filters:      expr,
		Vector:       vector,
		K:            limit,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("search knn: %w", err)
	}
	return toCandidates(sr), nil
}

// TextQuery runs a BM25 query over title and body. Scores are raw BM25 values.
func (r *Repo) TextQuery(
	ctx context.Context, expr filter.Expression, text string, limit int,
) ([]hit.Candidate, error) {
	if expr.IsZero() {
		return nil, domain.ErrTenantRequired
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	sr, err := r.store.SearchBM25(ctx, &db.TextQuery{
		IndexName:    IndexName(),
		Query:        text,
		TextFields:   textFields,
		Filters:      expr,
		TopK:         limit,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("search bm25: %w", err)
	}
	return toCandidates(sr), nil
}

// SubstringQuery returns records whose title or body contains any term, newest first.
// Matching is per indexed token: a term spanning a token boundary does not match.
func (r *Repo) SubstringQuery(
	ctx context.Context, expr filter.Expression, terms []string, limit int,
) ([]knowledge.Context, error) {
	if expr.IsZero() {
		return nil, domain.ErrTenantRequired
	}
	contains := make([]string, 0, len(terms))
	for _, t := range terms {
		if strings.TrimSpace(t) != "" {
			contains = append(contains, t)
		}
	}
	if len(contains) == 0 {
		return nil, nil
	}
	sr, err := r.store.SearchFilter(ctx, &db.FilterQuery{
		IndexName:    IndexName(),
		Filters:      expr,
		TextFields:   textFields,
		Contains:     contains,
		SortBy:       fieldUpdatedAt,
		SortDesc:     true,
		Limit:        limit,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("search substring: %w", err)
	}
	return toContexts(sr), nil
}

// RecencyQuery returns the most recently updated records in scope.
func (r *Repo) RecencyQuery(ctx context.Context, expr filter.Expression, limit int) ([]knowledge.Context, error) {
	if expr.IsZero() {
		return nil, domain.ErrTenantRequired
	}
	sr, err := r.store.SearchFilter(ctx, &db.FilterQuery{
		IndexName:    IndexName(),
		Filters:      expr,
		SortBy:       fieldUpdatedAt,
		SortDesc:     true,
		Limit:        limit,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("search recency: %w", err)
	}
	return toContexts(sr), nil
}

func (r *Repo) exists(ctx context.Context, keys ...string) (bool, error) {
	for _, key := range keys {
		ok, err := r.store.Exists(ctx, key)
		if err != nil {
			return false, fmt.Errorf("check exists %s: %w", key, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func toCandidates(sr *db.SearchResult) []hit.Candidate {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}
	out := make([]hit.Candidate, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		out = append(out, hit.Candidate{Context: parseHashFields(e.Fields), Score: e.Score})
	}
	return out
}

func toContexts(sr *db.SearchResult) []knowledge.Context {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}
	out := make([]knowledge.Context, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		out = append(out, parseHashFields(e.Fields))
	}
	return out
}
