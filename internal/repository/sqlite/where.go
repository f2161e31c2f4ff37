package sqlite

import (
	"strings"

	"github.com/kailas-cloud/ctxdex/internal/domain"
	"github.com/kailas-cloud/ctxdex/internal/domain/geo"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/filter"
)

// compileFilter renders expr as a parameterized WHERE fragment over the contexts table aliased c.
// Only active records match; the radius uses a bounding box to narrow rows before haversine_km.
func compileFilter(expr filter.Expression) (string, []any, error) {
	if expr.IsZero() {
		return "", nil, domain.ErrTenantRequired
	}

	parts := []string{"c.tenant_id = ?", "c.status = ?"}
	args := []any{expr.Tenant(), string(knowledge.StatusActive)}

	for _, cond := range expr.Conditions() {
		parts = append(parts, `EXISTS (SELECT 1 FROM context_tags t
			WHERE t.tenant_id = c.tenant_id AND t.context_id = c.id AND t.field = ? AND t.value = ?)`)
		args = append(args, string(cond.Field()), cond.Value())
	}

	if r := expr.Radius(); r != nil {
		c := r.Center()
		box := geo.BoundingBox(c, r.Km())
		parts = append(parts,
			"c.latitude IS NOT NULL AND c.longitude IS NOT NULL",
			"c.latitude BETWEEN ? AND ? AND c.longitude BETWEEN ? AND ?",
			"haversine_km(c.latitude, c.longitude, ?, ?) <= ?",
		)
		args = append(args, box.MinLat, box.MaxLat, box.MinLon, box.MaxLon, c.Lat, c.Lon, r.Km())
	}

	return strings.Join(parts, " AND "), args, nil
}

// ftsQuery ORs the quoted words of text, so FTS5 operators in user input are literals.
func ftsQuery(text string) string {
	words := strings.Fields(text)
	terms := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ReplaceAll(w, `"`, `""`)
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}
