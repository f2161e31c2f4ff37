package chi

import (
	"time"

	"github.com/kailas-cloud/ctxdex/internal/domain/geo"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/hit"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/request"
	"github.com/kailas-cloud/ctxdex/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/ctxdex/internal/usecase/usage"
)

// ErrorCode is the machine-readable error kind in API responses.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeValidationFailed  ErrorCode = "validation_failed"
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeNotFound          ErrorCode = "not_found"
	CodeVectorDimMismatch ErrorCode = "vector_dim_mismatch"
	CodeQuotaExceeded     ErrorCode = "embedding_quota_exceeded"
	CodeProviderError     ErrorCode = "embedding_provider_error"
	CodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// FiltersRequest holds optional categorical predicates.
type FiltersRequest struct {
	IntentScope  string `json:"intent_scope,omitempty"`
	IntentAction string `json:"intent_action,omitempty"`
	Category     string `json:"category,omitempty"`
}

func (f *FiltersRequest) toDomain() request.Filters {
	if f == nil {
		return request.Filters{}
	}
	return request.Filters{IntentScope: f.IntentScope, IntentAction: f.IntentAction, Category: f.Category}
}

// RetrieveRequest is the body of POST /v1/tenants/{tenant}/retrieve.
type RetrieveRequest struct {
	Query          string          `json:"query"`
	TopK           int             `json:"top_k,omitempty"`
	MinScore       float64         `json:"min_score,omitempty"`
	SemanticWeight *float64        `json:"semantic_weight,omitempty"`
	FulltextWeight *float64        `json:"fulltext_weight,omitempty"`
	Filters        *FiltersRequest `json:"filters,omitempty"`
}

// PlacesRequest is the body of POST /v1/tenants/{tenant}/places.
type PlacesRequest struct {
	RetrieveRequest
	Lat            *float64 `json:"lat"`
	Lon            *float64 `json:"lon"`
	MaxDistanceKm  float64  `json:"max_distance_km"`
	DistanceWeight *float64 `json:"distance_weight,omitempty"`
}

// weights overrides defaults with the weights present in the request.
func weights(def request.Weights, semantic, fulltext, distance *float64) request.Weights {
	w := def
	if semantic != nil {
		w.Semantic = *semantic
	}
	if fulltext != nil {
		w.Fulltext = *fulltext
	}
	if distance != nil {
		w.Distance = *distance
	}
	return w
}

// HitResponse is one ranked record.
type HitResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title,omitempty"`
	Body        string   `json:"body,omitempty"`
	Instruction string   `json:"instruction,omitempty"`
	Score       float64  `json:"score"`
	Tier        string   `json:"tier"`
	DistanceKm  *float64 `json:"distance_km,omitempty"`
}

// EmbeddingUsageResponse reports the cost of the query embedding.
type EmbeddingUsageResponse struct {
	InputTokens int     `json:"input_tokens"`
	TotalTokens int     `json:"total_tokens"`
	LatencyMs   int64   `json:"latency_ms"`
	CostUSD     float64 `json:"cost_usd"`
	Fallback    bool    `json:"fallback"`
	RecordID    string  `json:"record_id,omitempty"`
}

// RetrieveResponse is the body of a successful retrieval.
type RetrieveResponse struct {
	Hits              []HitResponse          `json:"hits"`
	Tier              string                 `json:"tier"`
	EmbeddingModel    string                 `json:"embedding_model"`
	EmbeddingProvider string                 `json:"embedding_provider"`
	EmbeddingUsage    EmbeddingUsageResponse `json:"embedding_usage"`
}

func retrieveResponse(res *retrieval.Result) RetrieveResponse {
	hits := make([]HitResponse, len(res.Hits))
	for i := range res.Hits {
		hits[i] = hitResponse(&res.Hits[i])
	}
	return RetrieveResponse{
		Hits:              hits,
		Tier:              string(res.Tier),
		EmbeddingModel:    res.Model,
		EmbeddingProvider: res.Provider,
		EmbeddingUsage: EmbeddingUsageResponse{
			InputTokens: res.Usage.InputTokens,
			TotalTokens: res.Usage.TotalTokens,
			LatencyMs:   res.Usage.Latency.Milliseconds(),
			CostUSD:     res.Usage.CostUSD,
			Fallback:    res.Usage.Fallback,
			RecordID:    res.Usage.RecordID,
		},
	}
}

func hitResponse(h *hit.Hit) HitResponse {
	return HitResponse{
		ID:          h.ID(),
		Title:       h.Title(),
		Body:        h.Body(),
		Instruction: h.Instruction(),
		Score:       h.Score(),
		Tier:        string(h.Tier()),
		DistanceKm:  h.DistanceKm(),
	}
}

// LocationDTO is a coordinate pair.
type LocationDTO struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ContextRequest is the body of PUT /v1/tenants/{tenant}/contexts/{id}.
type ContextRequest struct {
	Title         string       `json:"title"`
	Body          string       `json:"body"`
	Instruction   string       `json:"instruction,omitempty"`
	Keywords      []string     `json:"keywords,omitempty"`
	Location      *LocationDTO `json:"location,omitempty"`
	IntentScopes  []string     `json:"intent_scopes,omitempty"`
	IntentActions []string     `json:"intent_actions,omitempty"`
	Categories    []string     `json:"categories,omitempty"`
	Status        string       `json:"status,omitempty"`
}

func (c *ContextRequest) toAttrs(tenantID, id string) knowledge.Attrs {
	var loc *geo.Point
	if c.Location != nil {
		loc = &geo.Point{Lat: c.Location.Lat, Lon: c.Location.Lon}
	}
	return knowledge.Attrs{
		ID:            id,
		TenantID:      tenantID,
		Title:         c.Title,
		Body:          c.Body,
		Instruction:   c.Instruction,
		Keywords:      c.Keywords,
		Location:      loc,
		IntentScopes:  c.IntentScopes,
		IntentActions: c.IntentActions,
		Categories:    c.Categories,
		Status:        knowledge.Status(c.Status),
	}
}

// ContextResponse is a stored record without its vector.
type ContextResponse struct {
	ID            string       `json:"id"`
	Title         string       `json:"title,omitempty"`
	Body          string       `json:"body,omitempty"`
	Instruction   string       `json:"instruction,omitempty"`
	Keywords      []string     `json:"keywords,omitempty"`
	Location      *LocationDTO `json:"location,omitempty"`
	IntentScopes  []string     `json:"intent_scopes,omitempty"`
	IntentActions []string     `json:"intent_actions,omitempty"`
	Categories    []string     `json:"categories,omitempty"`
	Status        string       `json:"status"`
	HasEmbedding  bool         `json:"has_embedding"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func contextResponse(c *knowledge.Context) ContextResponse {
	var loc *LocationDTO
	if p := c.Location(); p != nil {
		loc = &LocationDTO{Lat: p.Lat, Lon: p.Lon}
	}
	return ContextResponse{
		ID:            c.ID(),
		Title:         c.Title(),
		Body:          c.Body(),
		Instruction:   c.Instruction(),
		Keywords:      c.Keywords(),
		Location:      loc,
		IntentScopes:  c.IntentScopes(),
		IntentActions: c.IntentActions(),
		Categories:    c.Categories(),
		Status:        string(c.Status()),
		HasEmbedding:  c.HasEmbedding(),
		UpdatedAt:     c.UpdatedAt().UTC(),
	}
}

// UsageResponse is the body of GET /v1/tenants/{tenant}/usage.
type UsageResponse struct {
	TenantID  string          `json:"tenant_id"`
	Period    string          `json:"period"`
	From      time.Time       `json:"period_start_at"`
	To        time.Time       `json:"period_end_at"`
	Requests  int             `json:"embedding_requests"`
	Fallbacks int             `json:"fallbacks"`
	Tokens    int             `json:"tokens"`
	CostUSD   float64         `json:"cost_usd"`
	Budget    *BudgetResponse `json:"budget,omitempty"`
}

// BudgetResponse is the shared embedding token budget.
type BudgetResponse struct {
	TokensLimit     int64     `json:"tokens_limit"`
	TokensRemaining int64     `json:"tokens_remaining"`
	IsExhausted     bool      `json:"is_exhausted"`
	ResetsAt        time.Time `json:"resets_at"`
}

func usageResponse(r *usageuc.Report) UsageResponse {
	resp := UsageResponse{
		TenantID:  r.Summary.TenantID,
		Period:    string(r.Summary.Period),
		From:      r.Summary.From.UTC(),
		To:        r.Summary.To.UTC(),
		Requests:  r.Summary.Requests,
		Fallbacks: r.Summary.Fallbacks,
		Tokens:    r.Summary.Tokens,
		CostUSD:   r.Summary.CostUSD,
	}
	if r.Budget != nil {
		resp.Budget = &BudgetResponse{
			TokensLimit:     r.Budget.TokensLimit,
			TokensRemaining: r.Budget.TokensRemaining,
			IsExhausted:     r.Budget.IsExhausted,
			ResetsAt:        r.Budget.ResetsAt.UTC(),
		}
	}
	return resp
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
