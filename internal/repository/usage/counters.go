package usage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/kailas-cloud/ctxdex/internal/db"
	"github.com/kailas-cloud/ctxdex/internal/domain"
	domusage "github.com/kailas-cloud/ctxdex/internal/domain/usage"
)

const dayLayout = "2006-01-02"

// Counter fields kept per tenant and day.
const (
	fieldRequests  = "requests"
	fieldFallbacks = "fallbacks"
	fieldTokens    = "tokens"
	fieldCostNano  = "cost_nusd"
)

// store is the consumer interface for usage counters (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Counters aggregates usage records into per-tenant daily counters.
// Counters expire after the retention window, so summaries only reach that far back.
type Counters struct {
	store     store
	retention time.Duration
}

// NewCounters creates a counters sink. retention must cover at least one month
// for monthly summaries to be complete (recommended: 62 days).
func NewCounters(s store, retention time.Duration) *Counters {
	return &Counters{store: s, retention: retention}
}

// Name identifies the sink in metrics and logs.
func (c *Counters) Name() string { return "redis" }

// Write adds one record to the counters of its tenant and day.
func (c *Counters) Write(ctx context.Context, rec domusage.Record) error {
	if rec.TenantID == "" {
		return nil
	}
	day := rec.CreatedAt.UTC()

	deltas := []struct {
		field string
		val   int64
	}{
		{fieldRequests, 1},
		{fieldFallbacks, boolToInt(rec.Fallback)},
		{fieldTokens, int64(rec.Tokens.Total)},
		{fieldCostNano, toNano(rec.Cost.Amount)},
	}
	for _, d := range deltas {
		if d.val == 0 {
			continue
		}
		key := counterKey(rec.TenantID, day, d.field)
		if err := c.store.IncrBy(ctx, key, d.val); err != nil {
			return fmt.Errorf("usage INCRBY %s: %w", key, err)
		}
		if err := c.store.Expire(ctx, key, c.retention, true); err != nil {
			return fmt.Errorf("usage EXPIRE %s: %w", key, err)
		}
	}
	return nil
}

// Summarize totals the daily counters of tenantID between from and to.
// Days older than the retention window are skipped.
func (c *Counters) Summarize(ctx context.Context, tenantID string, from, to time.Time) (domusage.Summary, error) {
	sum := domusage.Summary{TenantID: tenantID, From: from, To: to}

	first := truncateDay(from)
	if oldest := truncateDay(to.Add(-c.retention)); first.Before(oldest) {
		first = oldest
	}
	for day := first; !day.After(to); day = day.AddDate(0, 0, 1) {
		requests, err := c.get(ctx, counterKey(tenantID, day, fieldRequests))
		if err != nil {
			return domusage.Summary{}, err
		}
		if requests == 0 {
			continue
		}
		fallbacks, err := c.get(ctx, counterKey(tenantID, day, fieldFallbacks))
		if err != nil {
			return domusage.Summary{}, err
		}
		tokens, err := c.get(ctx, counterKey(tenantID, day, fieldTokens))
		if err != nil {
			return domusage.Summary{}, err
		}
		cost, err := c.get(ctx, counterKey(tenantID, day, fieldCostNano))
		if err != nil {
			return domusage.Summary{}, err
		}

		sum.Requests += int(requests)
		sum.Fallbacks += int(fallbacks)
		sum.Tokens += int(tokens)
		sum.CostUSD += float64(cost) / 1e9
	}
	return sum, nil
}

func (c *Counters) get(ctx context.Context, key string) (int64, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("usage GET %s: %w", key, err)
	}
	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("usage GET %s parse: %w", key, err)
	}
	return val, nil
}

// counterKey: ctxdex:usage:{tenant}:day:YYYY-MM-DD:{field}
func counterKey(tenantID string, day time.Time, field string) string {
	return domain.KeyPrefix + "usage:" + tenantID + ":day:" + day.UTC().Format(dayLayout) + ":" + field
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func toNano(usd float64) int64 {
	return int64(math.Round(usd * 1e9))
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
