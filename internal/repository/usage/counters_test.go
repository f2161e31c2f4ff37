package usage

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/ctxdex/internal/db"
	domusage "github.com/kailas-cloud/ctxdex/internal/domain/usage"
)

type memStore struct {
	vals    map[string]int64
	ttls    map[string]time.Duration
	incrErr error
}

func newMemStore() *memStore {
	return &memStore{vals: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.vals[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return []byte(strconv.FormatInt(v, 10)), nil
}

func (m *memStore) IncrBy(_ context.Context, key string, val int64) error {
	if m.incrErr != nil {
		return m.incrErr
	}
	m.vals[key] += val
	return nil
}

func (m *memStore) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	if _, ok := m.ttls[key]; ok && nx {
		return nil
	}
	m.ttls[key] = ttl
	return nil
}

func record(tenant string, at time.Time, tokens int, cost float64, fallback bool) domusage.Record {
	return domusage.Record{
		ID:        "r",
		Operation: "embed_query",
		TenantID:  tenant,
		Tokens:    domusage.Tokens{Input: tokens, Total: tokens},
		Cost:      domusage.Cost{Amount: cost, Currency: "USD", Known: true},
		Fallback:  fallback,
		CreatedAt: at,
	}
}

func TestCounters_WriteAndSummarize(t *testing.T) {
	ms := newMemStore()
	c := NewCounters(ms, 62*24*time.Hour)
	ctx := context.Background()
	day := time.Date(2026, 3, 17, 10, 0, 0, 0, time.UTC)

	require.NoError(t, c.Write(ctx, record("acme", day, 1000, 0.00002, false)))
	require.NoError(t, c.Write(ctx, record("acme", day.Add(time.Hour), 0, 0, true)))
	require.NoError(t, c.Write(ctx, record("acme", day.AddDate(0, 0, -1), 500, 0.00001, false)))
	require.NoError(t, c.Write(ctx, record("globex", day, 7777, 0.1, false)))

	sum, err := c.Summarize(ctx, "acme", time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC), day.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Requests)
	assert.Equal(t, 1, sum.Fallbacks)
	assert.Equal(t, 1000, sum.Tokens)
	assert.InDelta(t, 0.00002, sum.CostUSD, 1e-12)

	month, err := c.Summarize(ctx, "acme", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), day)
	require.NoError(t, err)
	assert.Equal(t, 3, month.Requests)
	assert.Equal(t, 1500, month.Tokens)
}

func TestCounters_KeysAndTTL(t *testing.T) {
	ms := newMemStore()
	c := NewCounters(ms, 48*time.Hour)
	at := time.Date(2026, 3, 17, 23, 30, 0, 0, time.UTC)

	require.NoError(t, c.Write(context.Background(), record("acme", at, 10, 0, false)))

	key := "ctxdex:usage:acme:day:2026-03-17:requests"
	assert.Equal(t, int64(1), ms.vals[key])
	assert.Equal(t, 48*time.Hour, ms.ttls[key])
	_, hasFallbacks := ms.vals["ctxdex:usage:acme:day:2026-03-17:fallbacks"]
	assert.False(t, hasFallbacks, "zero deltas are not written")
}

func TestCounters_RetentionBoundsSummary(t *testing.T) {
	ms := newMemStore()
	c := NewCounters(ms, 3*24*time.Hour)
	now := time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC)

	require.NoError(t, c.Write(context.Background(), record("acme", now, 5, 0, false)))
	// Expired days would be absent in Redis; the summary must not walk back to the epoch either way.
	sum, err := c.Summarize(context.Background(), "acme", time.Unix(0, 0), now)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Requests)
	assert.Len(t, ms.vals, 2)
}

func TestCounters_SkipsAnonymous(t *testing.T) {
	ms := newMemStore()
	c := NewCounters(ms, time.Hour)

	require.NoError(t, c.Write(context.Background(), record("", time.Now(), 10, 0, false)))
	assert.Empty(t, ms.vals)
}

func TestCounters_StoreError(t *testing.T) {
	ms := newMemStore()
	ms.incrErr = errors.New("connection refused")
	c := NewCounters(ms, time.Hour)

	err := c.Write(context.Background(), record("acme", time.Now(), 10, 0, false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage INCRBY")
	assert.Equal(t, "redis", c.Name())
}
