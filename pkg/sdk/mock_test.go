package ctxdex

import (
	"context"

	dombatch "github.com/kailas-cloud/ctxdex/internal/domain/batch"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/request"
	healthuc "github.com/kailas-cloud/ctxdex/internal/usecase/health"
	"github.com/kailas-cloud/ctxdex/internal/usecase/retrieval"
)

// --- retrievalUseCase mock ---

type mockRetrievalUC struct {
	retrieveFn func(ctx context.Context, req *request.Retrieve) (retrieval.Result, error)
	placesFn   func(ctx context.Context, req *request.Places) (retrieval.Result, error)
}

func (m *mockRetrievalUC) Retrieve(ctx context.Context, req *request.Retrieve) (retrieval.Result, error) {
	return m.retrieveFn(ctx, req)
}

func (m *mockRetrievalUC) RetrievePlaces(ctx context.Context, req *request.Places) (retrieval.Result, error) {
	return m.placesFn(ctx, req)
}

// --- ingestUseCase mock ---

type mockIngestUC struct {
	upsertFn func(ctx context.Context, attrs knowledge.Attrs) (bool, error)
	getFn    func(ctx context.Context, tenantID, id string) (knowledge.Context, error)
	deleteFn func(ctx context.Context, tenantID, id string) error
	loadFn   func(ctx context.Context, items []knowledge.Attrs) []dombatch.Result
}

func (m *mockIngestUC) Upsert(ctx context.Context, attrs knowledge.Attrs) (bool, error) {
	return m.upsertFn(ctx, attrs)
}

func (m *mockIngestUC) Get(ctx context.Context, tenantID, id string) (knowledge.Context, error) {
	return m.getFn(ctx, tenantID, id)
}

func (m *mockIngestUC) Delete(ctx context.Context, tenantID, id string) error {
	return m.deleteFn(ctx, tenantID, id)
}

func (m *mockIngestUC) Load(ctx context.Context, items []knowledge.Attrs) []dombatch.Result {
	return m.loadFn(ctx, items)
}

// --- healthUseCase mock ---

type mockHealthUC struct {
	report healthuc.Report
}

func (m *mockHealthUC) Check(context.Context) healthuc.Report { return m.report }

// --- Embedder mock ---

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

// --- helpers ---

func testClient(r retrievalUseCase, i ingestUseCase, h healthUseCase) *Client {
	return &Client{
		retrievalSvc: r,
		ingestSvc:    i,
		healthSvc:    h,
	}
}
