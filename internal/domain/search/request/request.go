package request

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/ctxdex/internal/domain"
	"github.com/kailas-cloud/ctxdex/internal/domain/geo"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/filter"
)

// Retrieval parameter limits.
const (
	// MaxQueryLength is the maximum allowed query length in characters.
	MaxQueryLength = 4096
	DefaultTopK    = 5
	MaxTopK        = 100
)

// DefaultWeights favours semantic similarity and ignores distance.
var DefaultWeights = Weights{Semantic: 0.7, Fulltext: 0.3, Distance: 0}

// DefaultPlaceWeights splits place ranking between relevance and proximity.
var DefaultPlaceWeights = Weights{Semantic: 0.4, Fulltext: 0.2, Distance: 0.4}

// Weights are relative fusion weights. They are not required to sum to 1.
type Weights struct {
	Semantic float64
	Fulltext float64
	Distance float64
}

// Validate rejects negative or non-finite weights.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"semantic_weight": w.Semantic,
		"fulltext_weight": w.Fulltext,
		"distance_weight": w.Distance,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be a non-negative number", domain.ErrInvalidWeights, name)
		}
	}
	return nil
}

// Filters are the optional categorical predicates of a request.
type Filters struct {
	IntentScope  string
	IntentAction string
	Category     string
}

// Coordinates describe the query point and the hard search radius.
type Coordinates struct {
	Lat   float64
	Lon   float64
	MaxKm float64
}

// Point returns the query point.
func (c Coordinates) Point() geo.Point { return geo.Point{Lat: c.Lat, Lon: c.Lon} }

// Validate rejects out-of-range coordinates and non-positive radii.
func (c Coordinates) Validate() error {
	if !geo.ValidateCoordinates(c.Lat, c.Lon) {
		return fmt.Errorf("%w: lat must be in [-90,90] and lon in [-180,180]", domain.ErrInvalidCoordinates)
	}
	if c.MaxKm <= 0 || math.IsNaN(c.MaxKm) || math.IsInf(c.MaxKm, 0) {
		return fmt.Errorf("%w: max_distance_km must be positive", domain.ErrInvalidCoordinates)
	}
	return nil
}

// Retrieve is a validated text retrieval request.
type Retrieve struct {
	tenantID string
	query    string
	filters  filter.Expression
	topK     int
	weights  Weights
	minScore float64
}

// NewRetrieve validates and normalizes retrieval parameters.
// topK <= 0 falls back to DefaultTopK and is capped at MaxTopK.
func NewRetrieve(tenantID, query string, f Filters, topK int, w Weights, minScore float64) (Retrieve, error) {
	expr, err := baseFilter(tenantID, f).Build()
	if err != nil {
		return Retrieve{}, wrapFilterErr(tenantID, err)
	}
	if err := validateCommon(query, w, minScore); err != nil {
		return Retrieve{}, err
	}
	return Retrieve{
		tenantID: tenantID,
		query:    query,
		filters:  expr,
		topK:     clampTopK(topK),
		weights:  w,
		minScore: minScore,
	}, nil
}

// TenantID returns the tenant scope.
func (r *Retrieve) TenantID() string { return r.tenantID }

// Query returns the raw query text.
func (r *Retrieve) Query() string { return r.query }

// Filters returns the compiled predicate list (tenant included).
func (r *Retrieve) Filters() filter.Expression { return r.filters }

// TopK returns the maximum number of hits.
func (r *Retrieve) TopK() int { return r.topK }

// Weights returns the fusion weights.
func (r *Retrieve) Weights() Weights { return r.weights }

// MinScore returns the relevance floor.
func (r *Retrieve) MinScore() float64 { return r.minScore }

// Places is a validated place search request with a hard radius.
type Places struct {
	Retrieve
	coords Coordinates
}

// NewPlaces validates a place search. Coordinates are checked before anything else
// so a malformed point never reaches the store.
func NewPlaces(
	tenantID, query string,
	f Filters,
	coords Coordinates,
	topK int,
	w Weights,
	minScore float64,
) (Places, error) {
	if err := coords.Validate(); err != nil {
		return Places{}, err
	}
	expr, err := baseFilter(tenantID, f).Within(coords.Point(), coords.MaxKm).Build()
	if err != nil {
		return Places{}, wrapFilterErr(tenantID, err)
	}
	if err := validateCommon(query, w, minScore); err != nil {
		return Places{}, err
	}
	return Places{
		Retrieve: Retrieve{
			tenantID: tenantID,
			query:    query,
			filters:  expr,
			topK:     clampTopK(topK),
			weights:  w,
			minScore: minScore,
		},
		coords: coords,
	}, nil
}

// Coordinates returns the query point and radius.
func (p *Places) Coordinates() Coordinates { return p.coords }

func baseFilter(tenantID string, f Filters) *filter.Builder {
	return filter.ForTenant(tenantID).
		Match(filter.FieldIntentScopes, f.IntentScope).
		Match(filter.FieldIntentActions, f.IntentAction).
		Match(filter.FieldCategories, f.Category)
}

func wrapFilterErr(tenantID string, err error) error {
	if tenantID == "" {
		return fmt.Errorf("%w: %w", domain.ErrTenantRequired, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidFilter, err)
}

func validateCommon(query string, w Weights, minScore float64) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: query is required", domain.ErrInvalidQuery)
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidQuery, MaxQueryLength)
	}
	if err := w.Validate(); err != nil {
		return err
	}
	if minScore < 0 || minScore > 1 || math.IsNaN(minScore) {
		return fmt.Errorf("%w: min_score must be between 0 and 1", domain.ErrInvalidQuery)
	}
	return nil
}

func clampTopK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}
