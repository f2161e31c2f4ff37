package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/hit"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/request"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/tier"
	"github.com/kailas-cloud/ctxdex/internal/usecase/retrieval"
)

type mockRetriever struct {
	retrieveFn func(ctx context.Context, req *request.Retrieve) (retrieval.Result, error)
	placesFn   func(ctx context.Context, req *request.Places) (retrieval.Result, error)
}

func (m *mockRetriever) Retrieve(ctx context.Context, req *request.Retrieve) (retrieval.Result, error) {
	if m.retrieveFn != nil {
		return m.retrieveFn(ctx, req)
	}
	return retrieval.Result{}, nil
}

func (m *mockRetriever) RetrievePlaces(ctx context.Context, req *request.Places) (retrieval.Result, error) {
	if m.placesFn != nil {
		return m.placesFn(ctx, req)
	}
	return retrieval.Result{}, nil
}

func sampleHit(t *testing.T, id string) hit.Hit {
	t.Helper()
	c, err := knowledge.New(knowledge.Attrs{TenantID: "acme", ID: id, Title: "Flat white", Body: "Espresso with microfoam"})
	if err != nil {
		t.Fatalf("knowledge.New: %v", err)
	}
	return hit.New(&c, 0.82, tier.Hybrid)
}

func callTool(args map[string]interface{}) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{Arguments: args},
	}
}

func resultText(t *testing.T, res *mcpgo.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("expected content")
	}
	tc, ok := res.Content[0].(mcpgo.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", res.Content[0])
	}
	return tc.Text
}

func TestRetrieveContext(t *testing.T) {
	var got *request.Retrieve
	r := &mockRetriever{retrieveFn: func(_ context.Context, req *request.Retrieve) (retrieval.Result, error) {
		got = req
		return retrieval.Result{
			Hits:     []hit.Hit{sampleHit(t, "c1")},
			Tier:     tier.Hybrid,
			Model:    "text-embedding-3-small",
			Provider: "openai",
			Usage:    retrieval.Usage{TotalTokens: 3},
		}, nil
	}}
	handler := retrieveContext(Deps{Retriever: r, Tenant: "acme", Weights: request.DefaultWeights})

	res, err := handler(context.Background(), callTool(map[string]interface{}{
		"query":    "coffee",
		"top_k":    float64(3),
		"category": "drinks",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	if got == nil {
		t.Fatal("retriever not called")
	}
	if got.TenantID() != "acme" {
		t.Errorf("tenant = %q, want default acme", got.TenantID())
	}
	if got.TopK() != 3 {
		t.Errorf("top_k = %d, want 3", got.TopK())
	}
	if got.Weights() != request.DefaultWeights {
		t.Errorf("weights = %+v, want defaults", got.Weights())
	}

	var out toolResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(out.Hits) != 1 || out.Hits[0].ID != "c1" {
		t.Fatalf("hits = %+v", out.Hits)
	}
	if out.Tier != "hybrid" || out.EmbeddingProvider != "openai" || out.EmbeddingTokens != 3 {
		t.Errorf("unexpected envelope: %+v", out)
	}
}

func TestRetrieveContext_TenantOverride(t *testing.T) {
	var tenant string
	r := &mockRetriever{retrieveFn: func(_ context.Context, req *request.Retrieve) (retrieval.Result, error) {
		tenant = req.TenantID()
		return retrieval.Result{Tier: tier.Recency}, nil
	}}
	handler := retrieveContext(Deps{Retriever: r, Tenant: "acme", Weights: request.DefaultWeights})

	res, _ := handler(context.Background(), callTool(map[string]interface{}{
		"query":     "coffee",
		"tenant_id": "globex",
	}))
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if tenant != "globex" {
		t.Errorf("tenant = %q, want globex", tenant)
	}
	if !strings.Contains(resultText(t, res), `"hits":[]`) {
		t.Errorf("empty hits must encode as [], got %s", resultText(t, res))
	}
}

func TestRetrieveContext_Validation(t *testing.T) {
	r := &mockRetriever{retrieveFn: func(context.Context, *request.Retrieve) (retrieval.Result, error) {
		t.Fatal("retriever must not be called")
		return retrieval.Result{}, nil
	}}

	tests := []struct {
		name   string
		tenant string
		args   map[string]interface{}
		want   string
	}{
		{"missing query", "acme", map[string]interface{}{}, "query is required"},
		{"blank query", "acme", map[string]interface{}{"query": "   "}, "query is required"},
		{"no tenant", "", map[string]interface{}{"query": "coffee"}, "tenant"},
		{"bad min_score", "acme", map[string]interface{}{"query": "coffee", "min_score": 1.5}, "min_score"},
		{"negative weight", "acme", map[string]interface{}{"query": "coffee", "semantic_weight": -1.0}, "semantic_weight"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := retrieveContext(Deps{Retriever: r, Tenant: tc.tenant, Weights: request.DefaultWeights})
			res, err := handler(context.Background(), callTool(tc.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.IsError {
				t.Fatal("expected tool error")
			}
			if text := resultText(t, res); !strings.Contains(text, tc.want) {
				t.Errorf("error %q does not mention %q", text, tc.want)
			}
		})
	}
}

func TestRetrieveContext_InternalErrorHidden(t *testing.T) {
	r := &mockRetriever{retrieveFn: func(context.Context, *request.Retrieve) (retrieval.Result, error) {
		return retrieval.Result{}, errors.New("redis: connection refused")
	}}
	handler := retrieveContext(Deps{Retriever: r, Tenant: "acme", Weights: request.DefaultWeights})

	res, _ := handler(context.Background(), callTool(map[string]interface{}{"query": "coffee"}))
	if !res.IsError {
		t.Fatal("expected tool error")
	}
	if text := resultText(t, res); strings.Contains(text, "redis") {
		t.Errorf("internal error leaked: %q", text)
	}
}

func TestRetrieveContext_InternalErrorLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	r := &mockRetriever{retrieveFn: func(context.Context, *request.Retrieve) (retrieval.Result, error) {
		return retrieval.Result{}, errors.New("redis: connection refused")
	}}
	handler := retrieveContext(Deps{Retriever: r, Tenant: "acme", Logger: zap.New(core)})

	res, _ := handler(context.Background(), callTool(map[string]interface{}{"query": "coffee"}))
	if text := resultText(t, res); text != "retrieve_context failed: internal error" {
		t.Errorf("text = %q", text)
	}
	entries := logs.FilterMessage("MCP tool failed").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}
	if tool := entries[0].ContextMap()["tool"]; tool != "retrieve_context" {
		t.Errorf("tool field = %v", tool)
	}
}

func TestRetrievePlaces_InternalErrorWithoutLogger(t *testing.T) {
	r := &mockRetriever{placesFn: func(context.Context, *request.Places) (retrieval.Result, error) {
		return retrieval.Result{}, errors.New("sqlite: disk I/O error")
	}}
	handler := retrievePlaces(Deps{Retriever: r, Tenant: "acme"})

	res, err := handler(context.Background(), callTool(map[string]interface{}{
		"query": "coffee", "lat": 1.0, "lon": 2.0, "max_distance_km": 3.0,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError || resultText(t, res) != "retrieve_places failed: internal error" {
		t.Errorf("result = %+v", res)
	}
}

func TestRetrievePlaces(t *testing.T) {
	var got *request.Places
	r := &mockRetriever{placesFn: func(_ context.Context, req *request.Places) (retrieval.Result, error) {
		got = req
		h := sampleHit(t, "p1").WithDistance(1.25)
		return retrieval.Result{Hits: []hit.Hit{h}, Tier: tier.Hybrid}, nil
	}}
	handler := retrievePlaces(Deps{Retriever: r, Tenant: "acme", PlaceWeights: request.DefaultPlaceWeights})

	res, err := handler(context.Background(), callTool(map[string]interface{}{
		"query":           "coffee",
		"lat":             40.7128,
		"lon":             -74.006,
		"max_distance_km": 5.0,
		"distance_weight": 0.9,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	coords := got.Coordinates()
	if coords.Lat != 40.7128 || coords.Lon != -74.006 || coords.MaxKm != 5 {
		t.Errorf("coords = %+v", coords)
	}
	w := got.Weights()
	if w.Distance != 0.9 || w.Semantic != request.DefaultPlaceWeights.Semantic {
		t.Errorf("weights = %+v, want distance override over place defaults", w)
	}

	var out toolResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(out.Hits) != 1 || out.Hits[0].DistanceKm == nil || *out.Hits[0].DistanceKm != 1.25 {
		t.Fatalf("hits = %+v", out.Hits)
	}
}

func TestRetrievePlaces_Validation(t *testing.T) {
	r := &mockRetriever{}
	handler := retrievePlaces(Deps{Retriever: r, Tenant: "acme", PlaceWeights: request.DefaultPlaceWeights})

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing coordinates", map[string]interface{}{"query": "coffee"}, "lat, lon and max_distance_km"},
		{"lat out of range", map[string]interface{}{"query": "coffee", "lat": 91.0, "lon": 0.0, "max_distance_km": 1.0}, "lat"},
		{"zero radius", map[string]interface{}{"query": "coffee", "lat": 0.0, "lon": 0.0, "max_distance_km": 0.0}, "max_distance_km"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, _ := handler(context.Background(), callTool(tc.args))
			if !res.IsError {
				t.Fatal("expected tool error")
			}
			if text := resultText(t, res); !strings.Contains(text, tc.want) {
				t.Errorf("error %q does not mention %q", text, tc.want)
			}
		})
	}
}

func TestNewServer_RegistersTools(t *testing.T) {
	s := NewServer(Deps{Retriever: &mockRetriever{}, Tenant: "acme"})
	if s == nil {
		t.Fatal("expected server")
	}
	tools := s.ListTools()
	for _, name := range []string{"retrieve_context", "retrieve_places"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %q not registered", name)
		}
	}
}
