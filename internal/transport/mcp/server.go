package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ctxdex/internal/domain"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/hit"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/request"
	"github.com/kailas-cloud/ctxdex/internal/usecase/retrieval"
	"github.com/kailas-cloud/ctxdex/internal/version"
)

// Retriever runs tenant-scoped retrieval.
type Retriever interface {
	Retrieve(ctx context.Context, req *request.Retrieve) (retrieval.Result, error)
	RetrievePlaces(ctx context.Context, req *request.Places) (retrieval.Result, error)
}

// Deps holds dependencies for the MCP server.
type Deps struct {
	Retriever Retriever
	// Tenant is used when a tool call omits tenant_id; empty makes tenant_id mandatory.
	Tenant       string
	Weights      request.Weights
	PlaceWeights request.Weights
	Logger       *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Weights == (request.Weights{}) {
		d.Weights = request.DefaultWeights
	}
	if d.PlaceWeights == (request.Weights{}) {
		d.PlaceWeights = request.DefaultPlaceWeights
	}
	return d
}

// NewServer creates an MCP server with the retrieval tools registered.
func NewServer(deps Deps) *server.MCPServer {
	deps = deps.withDefaults()

	s := server.NewMCPServer(
		"ctxdex",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithInstructions("ctxdex: tenant-scoped context retrieval with a fallback cascade."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcpgo.NewTool("retrieve_context",
			mcpgo.WithDescription("Retrieve the most relevant context records for a query. "+
				"Falls back to substring, n-gram and recency matching when nothing scores."),
			mcpgo.WithString("query", mcpgo.Description("Search query"), mcpgo.Required()),
			tenantParam(deps.Tenant),
			mcpgo.WithNumber("top_k", mcpgo.Description("Maximum number of hits (default 5)")),
			mcpgo.WithNumber("min_score", mcpgo.Description("Relevance floor in [0,1]")),
			mcpgo.WithNumber("semantic_weight", mcpgo.Description("Weight of vector similarity")),
			mcpgo.WithNumber("fulltext_weight", mcpgo.Description("Weight of full-text rank")),
			mcpgo.WithString("intent_scope", mcpgo.Description("Only records with this intent scope")),
			mcpgo.WithString("intent_action", mcpgo.Description("Only records with this intent action")),
			mcpgo.WithString("category", mcpgo.Description("Only records in this category")),
		),
		retrieveContext(deps),
	)

	s.AddTool(
		mcpgo.NewTool("retrieve_places",
			mcpgo.WithDescription("Retrieve places within a hard radius, ranked by relevance and proximity."),
			mcpgo.WithString("query", mcpgo.Description("Search query"), mcpgo.Required()),
			tenantParam(deps.Tenant),
			mcpgo.WithNumber("lat", mcpgo.Description("Latitude of the query point"), mcpgo.Required()),
			mcpgo.WithNumber("lon", mcpgo.Description("Longitude of the query point"), mcpgo.Required()),
			mcpgo.WithNumber("max_distance_km", mcpgo.Description("Hard search radius in km"), mcpgo.Required()),
			mcpgo.WithNumber("top_k", mcpgo.Description("Maximum number of hits (default 5)")),
			mcpgo.WithNumber("min_score", mcpgo.Description("Relevance floor for the text score in [0,1]")),
			mcpgo.WithNumber("semantic_weight", mcpgo.Description("Weight of vector similarity")),
			mcpgo.WithNumber("fulltext_weight", mcpgo.Description("Weight of full-text rank")),
			mcpgo.WithNumber("distance_weight", mcpgo.Description("Weight of proximity")),
			mcpgo.WithString("intent_scope", mcpgo.Description("Only places with this intent scope")),
			mcpgo.WithString("intent_action", mcpgo.Description("Only places with this intent action")),
			mcpgo.WithString("category", mcpgo.Description("Only places in this category")),
		),
		retrievePlaces(deps),
	)

	return s
}

func tenantParam(def string) mcpgo.ToolOption {
	if def == "" {
		return mcpgo.WithString("tenant_id", mcpgo.Description("Tenant scope"), mcpgo.Required())
	}
	return mcpgo.WithString("tenant_id", mcpgo.Description("Tenant scope (default "+def+")"))
}

func retrieveContext(deps Deps) server.ToolHandlerFunc {
	deps = deps.withDefaults()
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return toolError("query is required"), nil
		}

		r, err := request.NewRetrieve(
			req.GetString("tenant_id", deps.Tenant),
			query,
			filtersFrom(req),
			req.GetInt("top_k", 0),
			weightsFrom(req, deps.Weights),
			req.GetFloat("min_score", 0),
		)
		if err != nil {
			return toolError(err.Error()), nil
		}

		res, err := deps.Retriever.Retrieve(ctx, &r)
		if err != nil {
			return failure(ctx, deps.Logger, "retrieve_context", err), nil
		}
		return resultJSON(&res)
	}
}

func retrievePlaces(deps Deps) server.ToolHandlerFunc {
	deps = deps.withDefaults()
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return toolError("query is required"), nil
		}
		lat, errLat := req.RequireFloat("lat")
		lon, errLon := req.RequireFloat("lon")
		maxKm, errKm := req.RequireFloat("max_distance_km")
		if err := errors.Join(errLat, errLon, errKm); err != nil {
			return toolError("lat, lon and max_distance_km are required"), nil
		}

		r, err := request.NewPlaces(
			req.GetString("tenant_id", deps.Tenant),
			query,
			filtersFrom(req),
			request.Coordinates{Lat: lat, Lon: lon, MaxKm: maxKm},
			req.GetInt("top_k", 0),
			weightsFrom(req, deps.PlaceWeights),
			req.GetFloat("min_score", 0),
		)
		if err != nil {
			return toolError(err.Error()), nil
		}

		res, err := deps.Retriever.RetrievePlaces(ctx, &r)
		if err != nil {
			return failure(ctx, deps.Logger, "retrieve_places", err), nil
		}
		return resultJSON(&res)
	}
}

func filtersFrom(req mcpgo.CallToolRequest) request.Filters {
	return request.Filters{
		IntentScope:  req.GetString("intent_scope", ""),
		IntentAction: req.GetString("intent_action", ""),
		Category:     req.GetString("category", ""),
	}
}

func weightsFrom(req mcpgo.CallToolRequest, def request.Weights) request.Weights {
	return request.Weights{
		Semantic: req.GetFloat("semantic_weight", def.Semantic),
		Fulltext: req.GetFloat("fulltext_weight", def.Fulltext),
		Distance: req.GetFloat("distance_weight", def.Distance),
	}
}

type hitResult struct {
	ID          string   `json:"id"`
	Title       string   `json:"title,omitempty"`
	Body        string   `json:"body,omitempty"`
	Instruction string   `json:"instruction,omitempty"`
	Score       float64  `json:"score"`
	Tier        string   `json:"tier"`
	DistanceKm  *float64 `json:"distance_km,omitempty"`
}

type toolResult struct {
	Hits              []hitResult `json:"hits"`
	Tier              string      `json:"tier"`
	EmbeddingModel    string      `json:"embedding_model"`
	EmbeddingProvider string      `json:"embedding_provider"`
	EmbeddingTokens   int         `json:"embedding_tokens"`
	Fallback          bool        `json:"fallback"`
}

func resultJSON(res *retrieval.Result) (*mcpgo.CallToolResult, error) {
	out := toolResult{
		Hits:              make([]hitResult, len(res.Hits)),
		Tier:              string(res.Tier),
		EmbeddingModel:    res.Model,
		EmbeddingProvider: res.Provider,
		EmbeddingTokens:   res.Usage.TotalTokens,
		Fallback:          res.Usage.Fallback,
	}
	for i := range res.Hits {
		out.Hits[i] = toHitResult(&res.Hits[i])
	}

	b, err := json.Marshal(out)
	if err != nil {
		return toolError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return toolText(string(b)), nil
}

func toHitResult(h *hit.Hit) hitResult {
	return hitResult{
		ID:          h.ID(),
		Title:       h.Title(),
		Body:        h.Body(),
		Instruction: h.Instruction(),
		Score:       h.Score(),
		Tier:        string(h.Tier()),
		DistanceKm:  h.DistanceKm(),
	}
}

// failure reports validation errors verbatim and hides everything else.
func failure(ctx context.Context, logger *zap.Logger, tool string, err error) *mcpgo.CallToolResult {
	if domain.IsValidation(err) {
		return toolError(err.Error())
	}
	logger.Error("MCP tool failed", zap.String("tool", tool), zap.Error(err), zap.Bool("cancelled", ctx.Err() != nil))
	return toolError(tool + " failed: internal error")
}

func toolText(text string) *mcpgo.CallToolResult {
	return &mcpgo.CallToolResult{
		Content: []mcpgo.Content{
			mcpgo.TextContent{Type: "text", Text: text},
		},
	}
}

func toolError(msg string) *mcpgo.CallToolResult {
	return &mcpgo.CallToolResult{
		Content: []mcpgo.Content{
			mcpgo.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
