package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWideEvent_CanonicalLine(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	ts := newTestServer(t)
	srv := NewServer(ts.retriever, ts.ingest, ts.usage, ts.health, logger)
	handler := NewRouter(srv, RouterConfig{}, logger)

	req := httptest.NewRequest("POST", "/v1/tenants/acme/retrieve", strings.NewReader(`{"query":"q"}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one canonical line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["tenant_id"] != "acme" {
		t.Errorf("tenant_id = %v", fields["tenant_id"])
	}
	if fields["status"] != int64(http.StatusOK) {
		t.Errorf("status = %v", fields["status"])
	}
	if id, _ := fields["request_id"].(string); id == "" {
		t.Error("request_id missing")
	}
}

func TestJSONRecoverer(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	panicky := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("boom")
	})

	rr := httptest.NewRecorder()
	JSONRecoverer(zap.New(core))(panicky).ServeHTTP(rr, httptest.NewRequest("GET", "/", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	var e ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Code != CodeInternalError {
		t.Errorf("code = %s", e.Code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Error("panic must be logged")
	}
}
