package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/ctxdex/internal/domain"
	"github.com/kailas-cloud/ctxdex/internal/domain/geo"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/filter"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/hit"
)

const contextColumns = `c.tenant_id, c.id, c.title, c.body, c.instruction, c.keywords,
	c.latitude, c.longitude, c.status, c.updated_at`

// Upsert replaces a context record with its tags and full-text row.
// Returns true if the record did not exist before.
func (s *Store) Upsert(ctx context.Context, c *knowledge.Context) (bool, error) {
	keywords, err := json.Marshal(c.Keywords())
	if err != nil {
		return false, fmt.Errorf("marshal keywords: %w", err)
	}
	var embedding any
	if c.HasEmbedding() {
		embedding = encodeVector(c.Embedding())
	}
	var lat, lon sql.NullFloat64
	if loc := c.Location(); loc != nil {
		lat = sql.NullFloat64{Float64: loc.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: loc.Lon, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM contexts WHERE tenant_id = ? AND id = ?", c.TenantID(), c.ID(),
	).Scan(&existing); err != nil {
		return false, fmt.Errorf("check exists %s: %w", c.ID(), err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO contexts (tenant_id, id, title, body, instruction, keywords, embedding,
			latitude, longitude, status, updated_at, search_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			title = excluded.title, body = excluded.body, instruction = excluded.instruction,
			keywords = excluded.keywords, embedding = excluded.embedding,
			latitude = excluded.latitude, longitude = excluded.longitude,
			status = excluded.status, updated_at = excluded.updated_at,
			search_text = excluded.search_text`,
		c.TenantID(), c.ID(), c.Title(), c.Body(), c.Instruction(), string(keywords), embedding,
		lat, lon, string(c.Status()), c.UpdatedAt().UnixMilli(), knowledge.SearchText(c),
	); err != nil {
		return false, fmt.Errorf("upsert context %s: %w", c.ID(), err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM context_tags WHERE tenant_id = ? AND context_id = ?", c.TenantID(), c.ID(),
	); err != nil {
		return false, fmt.Errorf("clear tags %s: %w", c.ID(), err)
	}
	for field, values := range map[filter.Field][]string{
		filter.FieldIntentScopes:  c.IntentScopes(),
		filter.FieldIntentActions: c.IntentActions(),
		filter.FieldCategories:    c.Categories(),
	} {
		for pos, v := range values {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO context_tags (tenant_id, context_id, field, value, position)
				VALUES (?, ?, ?, ?, ?)`, c.TenantID(), c.ID(), string(field), v, pos,
			); err != nil {
				return false, fmt.Errorf("insert tag %s=%s: %w", field, v, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM contexts_fts WHERE tenant_id = ? AND context_id = ?", c.TenantID(), c.ID(),
	); err != nil {
		return false, fmt.Errorf("clear fts %s: %w", c.ID(), err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO contexts_fts (title, body, tenant_id, context_id) VALUES (?, ?, ?, ?)",
		c.Title(), c.Body(), c.TenantID(), c.ID(),
	); err != nil {
		return false, fmt.Errorf("index fts %s: %w", c.ID(), err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit upsert %s: %w", c.ID(), err)
	}
	return existing == 0, nil
}

// Get returns a context by tenant and id, archived or not, including its embedding.
func (s *Store) Get(ctx context.Context, tenantID, id string) (knowledge.Context, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+contextColumns+", c.embedding FROM contexts c WHERE c.tenant_id = ? AND c.id = ?",
		tenantID, id)

	var embedding []byte
	a, err := scanAttrs(row, &embedding)
	if errors.Is(err, sql.ErrNoRows) {
		return knowledge.Context{}, domain.ErrNotFound
	}
	if err != nil {
		return knowledge.Context{}, fmt.Errorf("get context %s: %w", id, err)
	}

	tags, err := s.loadTags(ctx, tenantID, []string{id})
	if err != nil {
		return knowledge.Context{}, err
	}
	applyTags(&a, tags[id])

	var vector []float32
	if len(embedding) > 0 {
		vector = decodeVector(embedding)
	}
	return knowledge.Reconstruct(a, vector), nil
}

// Delete removes a context record, its tags and its full-text row.
func (s *Store) Delete(ctx context.Context, tenantID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "DELETE FROM contexts WHERE tenant_id = ? AND id = ?", tenantID, id)
	if err != nil {
		return fmt.Errorf("delete context %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	for _, q := range []string{
		"DELETE FROM context_tags WHERE tenant_id = ? AND context_id = ?",
		"DELETE FROM contexts_fts WHERE tenant_id = ? AND context_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, tenantID, id); err != nil {
			return fmt.Errorf("delete context %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// VectorQuery scores every embedded row in scope by cosine similarity, best first.
func (s *Store) VectorQuery(
	ctx context.Context, expr filter.Expression, vector []float32, limit int,
) ([]hit.Candidate, error) {
	where, args, err := compileFilter(expr)
	if err != nil {
		return nil, err
	}
	q := "SELECT " + contextColumns + ", cosine_similarity(c.embedding, ?) AS score" +
		" FROM contexts c WHERE " + where + " AND c.embedding IS NOT NULL" +
		" ORDER BY score DESC, c.updated_at DESC LIMIT ?"
	args = append([]any{encodeVector(vector)}, args...)
	args = append(args, limit)

	return s.queryCandidates(ctx, expr.Tenant(), q, args)
}

// TextQuery ranks FTS5 matches of any query word by BM25 (higher is better).
func (s *Store) TextQuery(
	ctx context.Context, expr filter.Expression, text string, limit int,
) ([]hit.Candidate, error) {
	where, args, err := compileFilter(expr)
	if err != nil {
		return nil, err
	}
	match := ftsQuery(text)
	if match == "" {
		return nil, nil
	}
	q := "SELECT " + contextColumns + ", -bm25(contexts_fts) AS score" +
		" FROM contexts_fts f JOIN contexts c ON c.tenant_id = f.tenant_id AND c.id = f.context_id" +
		" WHERE contexts_fts MATCH ? AND " + where +
		" ORDER BY score DESC LIMIT ?"
	args = append([]any{match}, args...)
	args = append(args, limit)

	return s.queryCandidates(ctx, expr.Tenant(), q, args)
}

// SubstringQuery returns rows whose folded title or body contains any term, newest first.
func (s *Store) SubstringQuery(
	ctx context.Context, expr filter.Expression, terms []string, limit int,
) ([]knowledge.Context, error) {
	where, args, err := compileFilter(expr)
	if err != nil {
		return nil, err
	}
	var ors []string
	for _, t := range terms {
		if t = knowledge.Fold(t); strings.TrimSpace(t) != "" {
			ors = append(ors, "instr(c.search_text, ?) > 0")
			args = append(args, t)
		}
	}
	if len(ors) == 0 {
		return nil, nil
	}
	q := "SELECT " + contextColumns + " FROM contexts c WHERE " + where +
		" AND (" + strings.Join(ors, " OR ") + ")" +
		" ORDER BY c.updated_at DESC, c.id LIMIT ?"
	args = append(args, limit)

	return s.queryContexts(ctx, expr.Tenant(), q, args)
}

// RecencyQuery returns the most recently updated rows in scope.
func (s *Store) RecencyQuery(ctx context.Context, expr filter.Expression, limit int) ([]knowledge.Context, error) {
	where, args, err := compileFilter(expr)
	if err != nil {
		return nil, err
	}
	q := "SELECT " + contextColumns + " FROM contexts c WHERE " + where +
		" ORDER BY c.updated_at DESC, c.id LIMIT ?"
	args = append(args, limit)

	return s.queryContexts(ctx, expr.Tenant(), q, args)
}

func (s *Store) queryCandidates(ctx context.Context, tenantID, q string, args []any) ([]hit.Candidate, error) {
	attrs, scores, err := s.scanRows(ctx, q, args, true)
	if err != nil {
		return nil, err
	}

	ctxs, err := s.hydrate(ctx, tenantID, attrs)
	if err != nil {
		return nil, err
	}
	out := make([]hit.Candidate, len(ctxs))
	for i := range ctxs {
		out[i] = hit.Candidate{Context: ctxs[i], Score: scores[i]}
	}
	return out, nil
}

func (s *Store) queryContexts(ctx context.Context, tenantID, q string, args []any) ([]knowledge.Context, error) {
	attrs, _, err := s.scanRows(ctx, q, args, false)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, tenantID, attrs)
}

// scanRows reads every row before returning: the single connection must be free for loadTags.
// withScore reads a trailing score column.
func (s *Store) scanRows(
	ctx context.Context, q string, args []any, withScore bool,
) ([]knowledge.Attrs, []float64, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query contexts: %w", err)
	}
	defer rows.Close()

	var (
		attrs  []knowledge.Attrs
		scores []float64
	)
	for rows.Next() {
		var (
			a     knowledge.Attrs
			score float64
		)
		if withScore {
			a, err = scanAttrs(rows, &score)
		} else {
			a, err = scanAttrs(rows)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("scan context: %w", err)
		}
		attrs = append(attrs, a)
		scores = append(scores, score)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate contexts: %w", err)
	}
	return attrs, scores, nil
}

// hydrate attaches tag sets and builds contexts. Vectors are not read back by queries.
func (s *Store) hydrate(ctx context.Context, tenantID string, attrs []knowledge.Attrs) ([]knowledge.Context, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(attrs))
	for i := range attrs {
		ids[i] = attrs[i].ID
	}
	tags, err := s.loadTags(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	out := make([]knowledge.Context, len(attrs))
	for i := range attrs {
		applyTags(&attrs[i], tags[attrs[i].ID])
		out[i] = knowledge.Reconstruct(attrs[i], nil)
	}
	return out, nil
}

// loadTags returns context id → field → values in insertion order.
func (s *Store) loadTags(ctx context.Context, tenantID string, ids []string) (map[string]map[string][]string, error) {
	args := make([]any, 0, len(ids)+1)
	args = append(args, tenantID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := s.db.QueryContext(ctx,
		"SELECT context_id, field, value FROM context_tags WHERE tenant_id = ? AND context_id IN ("+
			placeholders+") ORDER BY context_id, field, position", args...)
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string][]string, len(ids))
	for rows.Next() {
		var id, field, value string
		if err := rows.Scan(&id, &field, &value); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		if out[id] == nil {
			out[id] = make(map[string][]string, 3)
		}
		out[id][field] = append(out[id][field], value)
	}
	return out, rows.Err()
}

func applyTags(a *knowledge.Attrs, tags map[string][]string) {
	a.IntentScopes = tags[string(filter.FieldIntentScopes)]
	a.IntentActions = tags[string(filter.FieldIntentActions)]
	a.Categories = tags[string(filter.FieldCategories)]
}

type scanner interface {
	Scan(dest ...any) error
}

// scanAttrs reads contextColumns followed by extra destinations.
func scanAttrs(row scanner, extra ...any) (knowledge.Attrs, error) {
	var (
		a         knowledge.Attrs
		keywords  string
		lat, lon  sql.NullFloat64
		status    string
		updatedAt int64
	)
	dest := append([]any{
		&a.TenantID, &a.ID, &a.Title, &a.Body, &a.Instruction, &keywords,
		&lat, &lon, &status, &updatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return knowledge.Attrs{}, err
	}

	// Matching runs on search_text, so a keywords column that does not decode
	// yields a row without keywords instead of failing the whole query.
	if keywords != "" {
		if err := json.Unmarshal([]byte(keywords), &a.Keywords); err != nil {
			a.Keywords = nil
		}
	}
	if lat.Valid && lon.Valid {
		a.Location = &geo.Point{Lat: lat.Float64, Lon: lon.Float64}
	}
	a.Status = knowledge.Status(status)
	a.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return a, nil
}
