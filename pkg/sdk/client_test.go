package ctxdex

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/ctxdex/internal/repository/sqlite"
)

func TestNew_NoStore(t *testing.T) {
	_, err := New(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store required")
}

func TestNew_InvalidDimensions(t *testing.T) {
	_, err := New(context.Background(), WithSQLite(sqlite.MemoryPath), WithVectorDimensions(0))
	require.Error(t, err)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, _, err := openStore(context.Background(), &clientConfig{driver: "unknown"})
	require.Error(t, err)
}

func TestClientOptions(t *testing.T) {
	cfg := &clientConfig{}
	reg := prometheus.NewRegistry()
	logger := slog.Default()
	emb := &mockEmbedder{}

	for _, o := range []Option{
		WithRedis("localhost:6379", "secret"),
		WithEmbedder(emb),
		WithVectorDimensions(768),
		WithCandidatePool(50),
		WithMaxBatchSize(10),
		WithLogger(logger),
		WithPrometheus(reg),
	} {
		o.apply(cfg)
	}

	assert.Equal(t, driverRedis, cfg.driver)
	assert.Equal(t, []string{"localhost:6379"}, cfg.addrs)
	assert.Equal(t, "secret", cfg.password)
	assert.Same(t, emb, cfg.embedder)
	assert.Equal(t, 768, cfg.vectorDimensions)
	assert.Equal(t, 50, cfg.candidatePool)
	assert.Equal(t, 10, cfg.maxBatchSize)
	assert.Same(t, logger, cfg.logger)
	assert.Equal(t, reg, cfg.metricsReg)

	WithSQLite("/tmp/ctx.db").apply(cfg)
	assert.Equal(t, driverSQLite, cfg.driver)
	assert.Equal(t, "/tmp/ctx.db", cfg.sqlitePath)
}

func TestEmbedderAdapter(t *testing.T) {
	adapter := &embedderAdapter{inner: &mockEmbedder{
		fn: func(_ context.Context, _ string) (EmbeddingResult, error) {
			return EmbeddingResult{Embedding: []float32{1, 2, 3}, Model: "m", PromptTokens: 5, TotalTokens: 10}, nil
		},
	}}

	res, err := adapter.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, res.Embedding, 3)
	assert.Equal(t, 10, res.TotalTokens)
	assert.Equal(t, "m", res.Model)
	assert.Equal(t, "sdk", res.Provider)
}

func TestEmbedderAdapter_Error(t *testing.T) {
	adapter := &embedderAdapter{inner: &mockEmbedder{
		fn: func(_ context.Context, _ string) (EmbeddingResult, error) {
			return EmbeddingResult{}, errors.New("provider down")
		},
	}}

	_, err := adapter.Embed(context.Background(), "hello")
	require.Error(t, err)
}

func TestObserver_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := newObserver(nil, reg)
	require.NoError(t, err)

	obs.observe("retrieve", time.Now(), nil)
	obs.observe("retrieve", time.Now(), errors.New("boom"))
	obs.observeTier("retrieve", "ngram")

	assert.InDelta(t, 1, testutil.ToFloat64(obs.metrics.operations.WithLabelValues("retrieve", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(obs.metrics.operations.WithLabelValues("retrieve", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(obs.metrics.tiers.WithLabelValues("retrieve", "ngram")), 0)

	// a second client on the same registry reuses the collectors
	again, err := newObserver(nil, reg)
	require.NoError(t, err)
	assert.Same(t, obs.metrics.operations, again.metrics.operations)
}

func TestObserver_Nil(t *testing.T) {
	var obs *observer
	assert.NotPanics(t, func() {
		obs.observe("retrieve", time.Now(), nil)
		obs.observeTier("retrieve", "hybrid")
	})
}
