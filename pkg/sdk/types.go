package ctxdex

import (
	"time"

	"github.com/kailas-cloud/ctxdex/internal/domain/geo"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/hit"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/request"
	"github.com/kailas-cloud/ctxdex/internal/usecase/retrieval"
)

// Context is a tenant-scoped knowledge record.
type Context struct {
	ID            string
	Title         string
	Body          string
	Instruction   string
	Keywords      []string
	Location      *Location
	IntentScopes  []string
	IntentActions []string
	Categories    []string
	// Archived records are kept but never retrieved.
	Archived  bool
	UpdatedAt time.Time
}

// Location is a WGS84 point.
type Location struct {
	Lat float64
	Lon float64
}

// Filters restrict retrieval to records carrying the given tags. Empty fields match everything.
type Filters struct {
	IntentScope  string
	IntentAction string
	Category     string
}

// Weights are relative fusion weights; nil fields in a request take the defaults.
type Weights struct {
	Semantic float64
	Fulltext float64
	Distance float64
}

// RetrieveRequest is a text retrieval.
type RetrieveRequest struct {
	Tenant   string
	Query    string
	TopK     int     // default 5, max 100
	MinScore float64 // relevance floor in [0,1]
	Weights  *Weights
	Filters  Filters
}

// PlacesRequest is a place search inside a hard radius.
type PlacesRequest struct {
	RetrieveRequest
	Lat           float64
	Lon           float64
	MaxDistanceKm float64
}

// Hit is one ranked record.
type Hit struct {
	ID          string
	Title       string
	Body        string
	Instruction string
	Score       float64
	// Tier is the cascade stage that produced the hit: hybrid, substring, ngram or recency.
	Tier       string
	DistanceKm *float64
}

// Result is a ranked hit list with the embedding call that produced the query vector.
type Result struct {
	Hits     []Hit
	Tier     string
	Model    string
	Provider string
	Tokens   int
	Fallback bool
}

// LoadResult is the outcome of one record in a Load call.
type LoadResult struct {
	ID      string
	Created bool
	Err     error
}

func (c *Context) toAttrs(tenant string) knowledge.Attrs {
	a := knowledge.Attrs{
		ID:            c.ID,
		TenantID:      tenant,
		Title:         c.Title,
		Body:          c.Body,
		Instruction:   c.Instruction,
		Keywords:      c.Keywords,
		IntentScopes:  c.IntentScopes,
		IntentActions: c.IntentActions,
		Categories:    c.Categories,
		UpdatedAt:     c.UpdatedAt,
	}
	if c.Location != nil {
		a.Location = &geo.Point{Lat: c.Location.Lat, Lon: c.Location.Lon}
	}
	if c.Archived {
		a.Status = knowledge.StatusArchived
	}
	return a
}

func contextFromDomain(c *knowledge.Context) Context {
	out := Context{
		ID:            c.ID(),
		Title:         c.Title(),
		Body:          c.Body(),
		Instruction:   c.Instruction(),
		Keywords:      c.Keywords(),
		IntentScopes:  c.IntentScopes(),
		IntentActions: c.IntentActions(),
		Categories:    c.Categories(),
		Archived:      c.Status() == knowledge.StatusArchived,
		UpdatedAt:     c.UpdatedAt(),
	}
	if p := c.Location(); p != nil {
		out.Location = &Location{Lat: p.Lat, Lon: p.Lon}
	}
	return out
}

func (f Filters) toDomain() request.Filters {
	return request.Filters{IntentScope: f.IntentScope, IntentAction: f.IntentAction, Category: f.Category}
}

func (w *Weights) orDefault(def request.Weights) request.Weights {
	if w == nil {
		return def
	}
	return request.Weights{Semantic: w.Semantic, Fulltext: w.Fulltext, Distance: w.Distance}
}

func resultFromDomain(res *retrieval.Result) Result {
	out := Result{
		Hits:     make([]Hit, len(res.Hits)),
		Tier:     string(res.Tier),
		Model:    res.Model,
		Provider: res.Provider,
		Tokens:   res.Usage.TotalTokens,
		Fallback: res.Usage.Fallback,
	}
	for i := range res.Hits {
		out.Hits[i] = hitFromDomain(&res.Hits[i])
	}
	return out
}

func hitFromDomain(h *hit.Hit) Hit {
	return Hit{
		ID:          h.ID(),
		Title:       h.Title(),
		Body:        h.Body(),
		Instruction: h.Instruction(),
		Score:       h.Score(),
		Tier:        string(h.Tier()),
		DistanceKm:  h.DistanceKm(),
	}
}
