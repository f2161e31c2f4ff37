package ctxdex

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/ctxdex/internal/domain/search/request"
)

// Retrieve runs the retrieval cascade for one tenant.
// Nothing matching is not an error: the recency tier answers with the newest records.
func (c *Client) Retrieve(ctx context.Context, req RetrieveRequest) (_ Result, err error) {
	start := time.Now()
	defer func() { c.obs.observe("retrieve", start, err, "tenant", req.Tenant) }()

	r, err := request.NewRetrieve(
		req.Tenant, req.Query, req.Filters.toDomain(), req.TopK,
		req.Weights.orDefault(request.DefaultWeights), req.MinScore,
	)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve: %w", err)
	}

	res, err := c.retrievalSvc.Retrieve(ctx, &r)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve: %w", err)
	}
	c.obs.observeTier("retrieve", string(res.Tier))
	return resultFromDomain(&res), nil
}

// RetrievePlaces ranks records within MaxDistanceKm of the point by relevance and proximity.
// Records without a location or outside the radius are never returned.
func (c *Client) RetrievePlaces(ctx context.Context, req PlacesRequest) (_ Result, err error) {
	start := time.Now()
	defer func() { c.obs.observe("retrieve_places", start, err, "tenant", req.Tenant) }()

	r, err := request.NewPlaces(
		req.Tenant, req.Query, req.Filters.toDomain(),
		request.Coordinates{Lat: req.Lat, Lon: req.Lon, MaxKm: req.MaxDistanceKm},
		req.TopK, req.Weights.orDefault(request.DefaultPlaceWeights), req.MinScore,
	)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve places: %w", err)
	}

	res, err := c.retrievalSvc.RetrievePlaces(ctx, &r)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve places: %w", err)
	}
	c.obs.observeTier("retrieve_places", string(res.Tier))
	return resultFromDomain(&res), nil
}
