package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/ctxdex/internal/domain/geo"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/hit"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/request"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/tier"
)

// hybridCandidates runs the vector and text queries concurrently and unions the rows.
// Either query failing fails the whole tier.
func (s *Service) hybridCandidates(
	ctx context.Context, req *request.Retrieve, vector []float32,
) ([]*candidate, error) {
	limit := s.candidateLimit(req.TopK())
	expr := req.Filters()

	var vecRows, textRows []hit.Candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.store.VectorQuery(gctx, expr, vector, limit)
		if err != nil {
			return fmt.Errorf("vector query: %w", err)
		}
		vecRows = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.store.TextQuery(gctx, expr, req.Query(), limit)
		if err != nil {
			return fmt.Errorf("text query: %w", err)
		}
		textRows = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck // already wrapped per query
	}

	return union(vecRows, textRows), nil
}

// toHits assigns a sentinel score to store rows. With center set, hits carry their distance.
func toHits(rows []knowledge.Context, score float64, t tier.Tier, center *geo.Point) []hit.Hit {
	hits := make([]hit.Hit, 0, len(rows))
	for i := range rows {
		h := hit.New(&rows[i], score, t)
		if center != nil {
			if loc := rows[i].Location(); loc != nil {
				h = h.WithDistance(geo.HaversineKm(*center, *loc))
			}
		}
		hits = append(hits, h)
	}
	return hits
}
