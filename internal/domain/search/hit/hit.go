package hit

import (
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/tier"
)

// Candidate is a store row with its raw, unnormalized score.
type Candidate struct {
	Context knowledge.Context
	Score   float64
}

// Hit is a single ranked retrieval result.
type Hit struct {
	id          string
	title       string
	body        string
	instruction string
	score       float64
	distanceKm  *float64
	tier        tier.Tier
}

// New creates a hit from a context record.
func New(c *knowledge.Context, score float64, t tier.Tier) Hit {
	return Hit{
		id:          c.ID(),
		title:       c.Title(),
		body:        c.Body(),
		instruction: c.Instruction(),
		score:       score,
		tier:        t,
	}
}

// WithDistance returns a copy annotated with the distance to the query point.
func (h Hit) WithDistance(km float64) Hit {
	h.distanceKm = &km
	return h
}

// ID returns the context identifier.
func (h *Hit) ID() string { return h.id }

// Title returns the context title.
func (h *Hit) Title() string { return h.title }

// Body returns the context body.
func (h *Hit) Body() string { return h.body }

// Instruction returns the context instruction.
func (h *Hit) Instruction() string { return h.instruction }

// Score returns the ranking score in [0,1].
func (h *Hit) Score() float64 { return h.score }

// DistanceKm returns the distance to the query point, nil for non-geo hits.
func (h *Hit) DistanceKm() *float64 { return h.distanceKm }

// Tier returns the cascade tier that produced the hit.
func (h *Hit) Tier() tier.Tier { return h.tier }
