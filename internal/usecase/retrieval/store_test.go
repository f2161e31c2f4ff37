package retrieval

import (
	"context"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/kailas-cloud/ctxdex/internal/domain"
	"github.com/kailas-cloud/ctxdex/internal/domain/geo"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/filter"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/hit"
)

// memStore is an in-memory CorpusStore that counts calls and records every expression.
type memStore struct {
	mu    sync.Mutex
	rows  []knowledge.Context
	calls map[string]int
	exprs []filter.Expression
	fail  map[string]error
}

func newMemStore(rows ...knowledge.Context) *memStore {
	return &memStore{rows: rows, calls: map[string]int{}, fail: map[string]error{}}
}

func (m *memStore) track(op string, expr filter.Expression) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	m.exprs = append(m.exprs, expr)
	return m.fail[op]
}

func (m *memStore) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *memStore) inScope(expr filter.Expression) []knowledge.Context {
	var out []knowledge.Context
	for i := range m.rows {
		if matches(expr, &m.rows[i]) {
			out = append(out, m.rows[i])
		}
	}
	return out
}

func matches(expr filter.Expression, c *knowledge.Context) bool {
	if c.TenantID() != expr.Tenant() {
		return false
	}
	for _, cond := range expr.Conditions() {
		var set []string
		switch cond.Field() {
		case filter.FieldIntentScopes:
			set = c.IntentScopes()
		case filter.FieldIntentActions:
			set = c.IntentActions()
		case filter.FieldCategories:
			set = c.Categories()
		}
		if !slices.Contains(set, cond.Value()) {
			return false
		}
	}
	if r := expr.Radius(); r != nil {
		loc := c.Location()
		if loc == nil || geo.HaversineKm(r.Center(), *loc) > r.Km() {
			return false
		}
	}
	return true
}

func (m *memStore) VectorQuery(_ context.Context, expr filter.Expression, vector []float32, limit int) ([]hit.Candidate, error) {
	if err := m.track("vector", expr); err != nil {
		return nil, err
	}
	var out []hit.Candidate
	for _, c := range m.inScope(expr) {
		if !c.HasEmbedding() {
			continue
		}
		if len(c.Embedding()) != len(vector) {
			return nil, domain.ErrVectorDimMismatch
		}
		out = append(out, hit.Candidate{Context: c, Score: math.Max(0, cosine(c.Embedding(), vector))})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return head(out, limit), nil
}

// TextQuery scores by the number of query tokens present as whole words.
func (m *memStore) TextQuery(_ context.Context, expr filter.Expression, text string, limit int) ([]hit.Candidate, error) {
	if err := m.track("text", expr); err != nil {
		return nil, err
	}
	terms := strings.Fields(knowledge.Fold(text))
	var out []hit.Candidate
	for _, c := range m.inScope(expr) {
		words := strings.Fields(knowledge.SearchText(&c))
		var n float64
		for _, t := range terms {
			if slices.Contains(words, t) {
				n++
			}
		}
		if n > 0 {
			out = append(out, hit.Candidate{Context: c, Score: n})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return head(out, limit), nil
}

func (m *memStore) SubstringQuery(_ context.Context, expr filter.Expression, terms []string, limit int) ([]knowledge.Context, error) {
	if err := m.track("substring", expr); err != nil {
		return nil, err
	}
	var out []knowledge.Context
	for _, c := range m.inScope(expr) {
		text := knowledge.SearchText(&c)
		if slices.ContainsFunc(terms, func(t string) bool { return strings.Contains(text, t) }) {
			out = append(out, c)
		}
	}
	byRecency(out)
	return head(out, limit), nil
}

func (m *memStore) RecencyQuery(_ context.Context, expr filter.Expression, limit int) ([]knowledge.Context, error) {
	if err := m.track("recency", expr); err != nil {
		return nil, err
	}
	out := m.inScope(expr)
	byRecency(out)
	return head(out, limit), nil
}

func byRecency(rows []knowledge.Context) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].UpdatedAt().After(rows[j].UpdatedAt()) })
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// fixedEmbedder returns a preset vector per query text.
type fixedEmbedder struct {
	vectors map[string][]float32
	dim     int
}

func (f fixedEmbedder) Embed(_ context.Context, text string, _ domain.EmbedOptions) (domain.EmbeddingResult, error) {
	v, ok := f.vectors[text]
	if !ok {
		v = make([]float32, f.dim)
	}
	return domain.EmbeddingResult{Embedding: v, Model: "fixed", Provider: "test", TotalTokens: 3}, nil
}
