package tier

// Tier is the cascade level that produced a result list.
type Tier string

// Cascade tiers in evaluation order, plus the place-search proximity re-rank.
const (
	// Hybrid fuses vector similarity and full-text relevance.
	Hybrid    Tier = "hybrid"
	Substring Tier = "substring"
	// NGram matches letter n-grams for languages without word boundaries.
	NGram   Tier = "ngram"
	Recency Tier = "recency"
	// Proximity orders radius matches by distance when no hit passes min_score.
	Proximity Tier = "proximity"
	// None means every tier came back empty.
	None Tier = "none"
)

// Sentinel scores assigned by tiers that do not rank by relevance.
const (
	MatchScore   = 1.0
	RecencyScore = 0.5
)

// Cascade lists the text tiers in strict evaluation order.
var Cascade = []Tier{Hybrid, Substring, NGram, Recency}

// IsFallback reports whether hits of this tier carry sentinel or distance scores.
func (t Tier) IsFallback() bool {
	return t != Hybrid && t != None
}
