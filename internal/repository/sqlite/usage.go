package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domusage "github.com/kailas-cloud/ctxdex/internal/domain/usage"
)

// UsageLog persists usage records and aggregates them per tenant.
type UsageLog struct {
	db *sql.DB
}

// Usage returns the usage log backed by this database.
func (s *Store) Usage() *UsageLog {
	return &UsageLog{db: s.db}
}

// Name identifies the sink in metrics and logs.
func (u *UsageLog) Name() string { return "sqlite" }

// Write appends one record. A duplicate id is ignored.
func (u *UsageLog) Write(ctx context.Context, rec domusage.Record) error {
	fallback := 0
	if rec.Fallback {
		fallback = 1
	}
	_, err := u.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO usage_records (id, tenant_id, context_id, operation, provider, model,
			latency_ms, input_tokens, total_tokens, cost_amount, cost_currency, price_per_million,
			fallback, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TenantID, rec.ContextID, rec.Operation, rec.Provider, rec.Model,
		rec.Latency.Milliseconds(), rec.Tokens.Input, rec.Tokens.Total,
		rec.Cost.Amount, rec.Cost.Currency, rec.Cost.PricePerMillion,
		fallback, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert usage record %s: %w", rec.ID, err)
	}
	return nil
}

// Summarize totals the records of tenantID created in [from, to].
func (u *UsageLog) Summarize(ctx context.Context, tenantID string, from, to time.Time) (domusage.Summary, error) {
	sum := domusage.Summary{TenantID: tenantID, From: from, To: to}
	err := u.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(fallback), 0), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost_amount), 0)
		FROM usage_records
		WHERE tenant_id = ? AND created_at >= ? AND created_at <= ?`,
		tenantID, from.UnixMilli(), to.UnixMilli(),
	).Scan(&sum.Requests, &sum.Fallbacks, &sum.Tokens, &sum.CostUSD)
	if err != nil {
		return domusage.Summary{}, fmt.Errorf("summarize usage %s: %w", tenantID, err)
	}
	return sum, nil
}
