package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domusage "github.com/kailas-cloud/ctxdex/internal/domain/usage"
)

func usageRecord(id, tenant string, at time.Time, tokens int, fallback bool) domusage.Record {
	return domusage.Record{
		ID:        id,
		Operation: "embed_query",
		Provider:  "openai",
		Model:     "text-embedding-3-small",
		Latency:   120 * time.Millisecond,
		Tokens:    domusage.Tokens{Input: tokens, Total: tokens},
		Cost:      domusage.Cost{Amount: float64(tokens) * 0.02 / 1e6, Currency: "USD", PricePerMillion: 0.02, Known: true},
		TenantID:  tenant,
		Fallback:  fallback,
		CreatedAt: at,
	}
}

func TestUsageLog_WriteAndSummarize(t *testing.T) {
	s := openTestStore(t)
	log := s.Usage()
	ctx := context.Background()
	day := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)

	for _, rec := range []domusage.Record{
		usageRecord("u1", "acme", day.Add(time.Hour), 1000, false),
		usageRecord("u2", "acme", day.Add(2*time.Hour), 500, true),
		usageRecord("u3", "acme", day.Add(-time.Hour), 9999, false), // previous day
		usageRecord("u4", "globex", day.Add(time.Hour), 7777, false),
	} {
		require.NoError(t, log.Write(ctx, rec))
	}

	sum, err := log.Summarize(ctx, "acme", day, day.Add(24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "acme", sum.TenantID)
	assert.Equal(t, 2, sum.Requests)
	assert.Equal(t, 1, sum.Fallbacks)
	assert.Equal(t, 1500, sum.Tokens)
	assert.InDelta(t, 1500*0.02/1e6, sum.CostUSD, 1e-12)
}

func TestUsageLog_DuplicateIgnored(t *testing.T) {
	s := openTestStore(t)
	log := s.Usage()
	ctx := context.Background()
	at := time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC)

	require.NoError(t, log.Write(ctx, usageRecord("dup", "acme", at, 10, false)))
	require.NoError(t, log.Write(ctx, usageRecord("dup", "acme", at, 10, false)))

	sum, err := log.Summarize(ctx, "acme", at.Add(-time.Minute), at.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Requests)
}

func TestUsageLog_EmptySummary(t *testing.T) {
	s := openTestStore(t)

	sum, err := s.Usage().Summarize(context.Background(), "nobody", time.Unix(0, 0), time.Now())
	require.NoError(t, err)
	assert.Zero(t, sum.Requests)
	assert.Zero(t, sum.Tokens)
	assert.Equal(t, "sqlite", s.Usage().Name())
}
