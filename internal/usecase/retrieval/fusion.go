package retrieval

import (
	"sort"

	"github.com/kailas-cloud/ctxdex/internal/domain/geo"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/hit"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/request"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/tier"
)

// candidate is one record of the hybrid union with its partial scores.
// Raw scores are batch-relative and become meaningful only after normalize.
type candidate struct {
	ctx              knowledge.Context
	vecRaw, ftsRaw   float64
	hasVec, hasFts   bool
	vecNorm, ftsNorm float64

	// geo dimension, place searches only
	hasDist    bool
	distanceKm float64
	distNorm   float64
}

// union merges vector and text rows by id, keeping first-seen order (vector rows first).
func union(vector, text []hit.Candidate) []*candidate {
	byID := make(map[string]*candidate, len(vector)+len(text))
	out := make([]*candidate, 0, len(vector)+len(text))

	get := func(c *hit.Candidate) *candidate {
		if cur, ok := byID[c.Context.ID()]; ok {
			return cur
		}
		cur := &candidate{ctx: c.Context}
		byID[c.Context.ID()] = cur
		out = append(out, cur)
		return cur
	}

	for i := range vector {
		c := get(&vector[i])
		c.vecRaw, c.hasVec = vector[i].Score, true
	}
	for i := range text {
		c := get(&text[i])
		c.ftsRaw, c.hasFts = text[i].Score, true
	}
	return out
}

// normalize divides every raw score by the batch maximum of its dimension.
func normalize(cands []*candidate) {
	var maxVec, maxFts float64
	for _, c := range cands {
		if c.hasVec && c.vecRaw > maxVec {
			maxVec = c.vecRaw
		}
		if c.hasFts && c.ftsRaw > maxFts {
			maxFts = c.ftsRaw
		}
	}
	for _, c := range cands {
		if c.hasVec {
			c.vecNorm = ratio(c.vecRaw, maxVec)
		}
		if c.hasFts {
			c.ftsNorm = ratio(c.ftsRaw, maxFts)
		}
	}
}

// ratio returns raw/max clamped to [0,1], 0 when max is not positive.
func ratio(raw, maxRaw float64) float64 {
	if maxRaw <= 0 {
		return 0
	}
	return clamp01(raw / maxRaw)
}

// withDistance attaches the proximity dimension relative to center.
// Candidates without a location keep hasDist=false and score 0 on it.
func withDistance(cands []*candidate, center geo.Point, maxKm float64) {
	for _, c := range cands {
		loc := c.ctx.Location()
		if loc == nil {
			continue
		}
		c.hasDist = true
		c.distanceKm = geo.HaversineKm(center, *loc)
		c.distNorm = geo.ProximityScore(c.distanceKm, maxKm)
	}
}

// textScore fuses the semantic and full-text dimensions.
func textScore(c *candidate, w request.Weights) float64 {
	return weighted(
		[]float64{w.Semantic, w.Fulltext},
		[]float64{c.vecNorm, c.ftsNorm},
		[]bool{c.hasVec, c.hasFts},
	)
}

// geoScore fuses semantic, full-text and proximity.
func geoScore(c *candidate, w request.Weights) float64 {
	return weighted(
		[]float64{w.Semantic, w.Fulltext, w.Distance},
		[]float64{c.vecNorm, c.ftsNorm, c.distNorm},
		[]bool{c.hasVec, c.hasFts, c.hasDist},
	)
}

// weighted computes sum(w·s)/sum(w). With every weight at zero the denominator is 1
// and the best present normalized score passes through unchanged.
func weighted(weights, scores []float64, present []bool) float64 {
	var num, den float64
	for i := range weights {
		num += weights[i] * scores[i]
		den += weights[i]
	}
	if den == 0 {
		var best float64
		for i := range scores {
			if present[i] && scores[i] > best {
				best = scores[i]
			}
		}
		return best
	}
	return clamp01(num / den)
}

// rankHybrid scores, filters by minScore, sorts and truncates the text-only union.
func rankHybrid(cands []*candidate, w request.Weights, minScore float64, topK int) []hit.Hit {
	normalize(cands)
	hits := make([]hit.Hit, 0, len(cands))
	for _, c := range cands {
		s := textScore(c, w)
		if s < minScore {
			continue
		}
		hits = append(hits, hit.New(&c.ctx, s, tier.Hybrid))
	}
	return sortTruncate(hits, topK)
}

// rankPlaces applies minScore to the text-only sub-score and ranks survivors by the
// three-way score. Proximity must not be gated by a relevance floor, hence the two formulas.
func rankPlaces(cands []*candidate, w request.Weights, minScore float64, topK int) []hit.Hit {
	normalize(cands)
	hits := make([]hit.Hit, 0, len(cands))
	for _, c := range cands {
		if textScore(c, w) < minScore {
			continue
		}
		h := hit.New(&c.ctx, geoScore(c, w), tier.Hybrid)
		if c.hasDist {
			h = h.WithDistance(c.distanceKm)
		}
		hits = append(hits, h)
	}
	return sortTruncate(hits, topK)
}

// rankProximity orders every radius candidate by ascending distance, ignoring relevance.
func rankProximity(cands []*candidate, topK int) []hit.Hit {
	located := make([]*candidate, 0, len(cands))
	for _, c := range cands {
		if c.hasDist {
			located = append(located, c)
		}
	}
	sort.SliceStable(located, func(i, j int) bool {
		return located[i].distanceKm < located[j].distanceKm
	})
	if len(located) > topK {
		located = located[:topK]
	}

	hits := make([]hit.Hit, 0, len(located))
	for _, c := range located {
		hits = append(hits, hit.New(&c.ctx, c.distNorm, tier.Proximity).WithDistance(c.distanceKm))
	}
	return hits
}

func sortTruncate(hits []hit.Hit, topK int) []hit.Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score() > hits[j].Score()
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
