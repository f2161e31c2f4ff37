package db

import "github.com/kailas-cloud/ctxdex/internal/domain/search/filter"

// Index attribute names the filter compiler relies on.
const (
	FieldTenant   = "tenant_id"
	FieldLocation = "location"
)

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string
	Filters      filter.Expression
	Vector       []float32
	K            int
	ReturnFields []string
}

// TextQuery is the input for BM25 text search. Query words are ORed.
type TextQuery struct {
	IndexName    string
	Query        string
	TextFields   []string
	Filters      filter.Expression
	TopK         int
	ReturnFields []string
}

// FilterQuery lists documents matching Filters. With Contains set, a document must also
// contain any of the terms as an infix of a TextFields token.
type FilterQuery struct {
	IndexName    string
	Filters      filter.Expression
	TextFields   []string
	Contains     []string
	SortBy       string
	SortDesc     bool
	Limit        int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
