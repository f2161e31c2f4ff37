package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ctxdex/internal/domain"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/request"
	domusage "github.com/kailas-cloud/ctxdex/internal/domain/usage"
	logpkg "github.com/kailas-cloud/ctxdex/internal/logger"
	healthuc "github.com/kailas-cloud/ctxdex/internal/usecase/health"
	"github.com/kailas-cloud/ctxdex/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/ctxdex/internal/usecase/usage"
)

// maxBodyBytes bounds request bodies; the largest is a context record.
const maxBodyBytes = 1 << 20

// Retriever runs tenant-scoped retrieval.
type Retriever interface {
	Retrieve(ctx context.Context, req *request.Retrieve) (retrieval.Result, error)
	RetrievePlaces(ctx context.Context, req *request.Places) (retrieval.Result, error)
}

// Ingester stores and reads context records.
type Ingester interface {
	Upsert(ctx context.Context, attrs knowledge.Attrs) (bool, error)
	Get(ctx context.Context, tenantID, id string) (knowledge.Context, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// UsageReporter builds tenant usage reports.
type UsageReporter interface {
	GetReport(ctx context.Context, tenantID string, period domusage.Period) (usageuc.Report, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the HTTP API.
type Server struct {
	retriever     Retriever
	ingest        Ingester
	usage         UsageReporter
	health        HealthChecker
	weights       request.Weights
	placeWeights  request.Weights
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithDefaultWeights sets the fusion weights used when a request omits them.
func WithDefaultWeights(retrieve, places request.Weights) ServerOption {
	return func(s *Server) {
		s.weights = retrieve
		s.placeWeights = places
	}
}

// NewServer creates an HTTP API server.
func NewServer(
	retriever Retriever,
	ingest Ingester,
	usage UsageReporter,
	health HealthChecker,
	logger *zap.Logger,
	opts ...ServerOption,
) *Server {
	s := &Server{
		retriever:    retriever,
		ingest:       ingest,
		usage:        usage,
		health:       health,
		weights:      request.DefaultWeights,
		placeWeights: request.DefaultPlaceWeights,
		logger:       logger,
	}
	for _, o := range opts {
		o(s)
	}
	s.errorHandlers = []errorHandler{
		validationHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeVectorDimMismatch),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, CodeQuotaExceeded),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeProviderError),
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1/tenants/{tenant}", func(r chi.Router) {
		r.Use(tenantLogger)
		r.Post("/retrieve", s.Retrieve)
		r.Post("/places", s.RetrievePlaces)
		r.Put("/contexts/{id}", s.UpsertContext)
		r.Get("/contexts/{id}", s.GetContext)
		r.Delete("/contexts/{id}", s.DeleteContext)
		r.Get("/usage", s.GetUsage)
	})
}

// Retrieve handles POST /v1/tenants/{tenant}/retrieve.
func (s *Server) Retrieve(w http.ResponseWriter, r *http.Request) {
	var body RetrieveRequest
	if !decodeBody(w, r, &body) {
		return
	}

	req, err := request.NewRetrieve(
		chi.URLParam(r, "tenant"),
		body.Query,
		body.Filters.toDomain(),
		body.TopK,
		weights(s.weights, body.SemanticWeight, body.FulltextWeight, nil),
		body.MinScore,
	)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.retriever.Retrieve(ctx, &req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, retrieveResponse(&res))
}

// RetrievePlaces handles POST /v1/tenants/{tenant}/places.
func (s *Server) RetrievePlaces(w http.ResponseWriter, r *http.Request) {
	var body PlacesRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Lat == nil || body.Lon == nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "lat and lon are required")
		return
	}

	req, err := request.NewPlaces(
		chi.URLParam(r, "tenant"),
		body.Query,
		body.Filters.toDomain(),
		request.Coordinates{Lat: *body.Lat, Lon: *body.Lon, MaxKm: body.MaxDistanceKm},
		body.TopK,
		weights(s.placeWeights, body.SemanticWeight, body.FulltextWeight, body.DistanceWeight),
		body.MinScore,
	)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.retriever.RetrievePlaces(ctx, &req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, retrieveResponse(&res))
}

// UpsertContext handles PUT /v1/tenants/{tenant}/contexts/{id}.
func (s *Server) UpsertContext(w http.ResponseWriter, r *http.Request) {
	var body ContextRequest
	if !decodeBody(w, r, &body) {
		return
	}

	tenantID, id := chi.URLParam(r, "tenant"), chi.URLParam(r, "id")
	ctx, usage := domain.NewContextWithUsage(r.Context())
	created, err := s.ingest.Upsert(ctx, body.toAttrs(tenantID, id))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	stored, err := s.ingest.Get(ctx, tenantID, id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		w.Header().Set("Location", fmt.Sprintf("/v1/tenants/%s/contexts/%s", tenantID, id))
	}
	setEmbeddingHeaders(w, usage)
	writeJSON(w, status, contextResponse(&stored))
}

// GetContext handles GET /v1/tenants/{tenant}/contexts/{id}.
func (s *Server) GetContext(w http.ResponseWriter, r *http.Request) {
	c, err := s.ingest.Get(r.Context(), chi.URLParam(r, "tenant"), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contextResponse(&c))
}

// DeleteContext handles DELETE /v1/tenants/{tenant}/contexts/{id}.
func (s *Server) DeleteContext(w http.ResponseWriter, r *http.Request) {
	if err := s.ingest.Delete(r.Context(), chi.URLParam(r, "tenant"), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUsage handles GET /v1/tenants/{tenant}/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period := domusage.PeriodMonth
	if p := r.URL.Query().Get("period"); p != "" {
		period = domusage.Period(p)
	}

	report, err := s.usage.GetReport(r.Context(), chi.URLParam(r, "tenant"), period)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usageResponse(&report))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage == nil || !usage.Used {
		return
	}
	w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	if usage.Provider != "" {
		w.Header().Set("X-Embedding-Provider", usage.Provider)
	}
	if usage.Fallback {
		w.Header().Set("X-Embedding-Fallback", "true")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// validationHandler maps caller-side validation errors to 400 with their message.
// Validation messages never carry internals, so they are returned verbatim.
func validationHandler(w http.ResponseWriter, err error) bool {
	if !domain.IsValidation(err) {
		return false
	}
	writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
	return true
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	s.logger.Error("internal error",
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
