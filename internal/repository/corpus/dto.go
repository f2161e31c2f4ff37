package corpus

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/ctxdex/internal/db"
	"github.com/kailas-cloud/ctxdex/internal/domain/geo"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
)

// buildHashFields converts a context into a flat map for HSET.
// Records without an embedding carry no vector field and stay out of KNN results.
func buildHashFields(c *knowledge.Context) (map[string]string, error) {
	keywords, err := json.Marshal(c.Keywords())
	if err != nil {
		return nil, fmt.Errorf("marshal keywords: %w", err)
	}

	m := map[string]string{
		fieldID:            c.ID(),
		db.FieldTenant:     c.TenantID(),
		fieldTitle:         c.Title(),
		fieldBody:          c.Body(),
		fieldInstruction:   c.Instruction(),
		fieldKeywords:      string(keywords),
		fieldIntentScopes:  joinTags(c.IntentScopes()),
		fieldIntentActions: joinTags(c.IntentActions()),
		fieldCategories:    joinTags(c.Categories()),
		fieldStatus:        string(c.Status()),
		fieldUpdatedAt:     strconv.FormatInt(c.UpdatedAt().UnixMilli(), 10),
	}
	if loc := c.Location(); loc != nil {
		// GEO fields take "lon,lat"
		m[db.FieldLocation] = strconv.FormatFloat(loc.Lon, 'f', -1, 64) + "," +
			strconv.FormatFloat(loc.Lat, 'f', -1, 64)
	}
	if c.HasEmbedding() {
		m[fieldEmbedding] = vectorToBytes(c.Embedding())
	}
	return m, nil
}

// parseHashFields hydrates a context from HGETALL or FT.SEARCH fields.
func parseHashFields(m map[string]string) knowledge.Context {
	a := knowledge.Attrs{
		ID:            m[fieldID],
		TenantID:      m[db.FieldTenant],
		Title:         m[fieldTitle],
		Body:          m[fieldBody],
		Instruction:   m[fieldInstruction],
		IntentScopes:  splitTags(m[fieldIntentScopes]),
		IntentActions: splitTags(m[fieldIntentActions]),
		Categories:    splitTags(m[fieldCategories]),
		Status:        knowledge.Status(m[fieldStatus]),
	}
	if raw := m[fieldKeywords]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &a.Keywords) //nolint:errcheck // tolerate legacy rows
	}
	if ms, err := strconv.ParseInt(m[fieldUpdatedAt], 10, 64); err == nil {
		a.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	if p, ok := parseLocation(m[db.FieldLocation]); ok {
		a.Location = &p
	}

	var vector []float32
	if raw, ok := m[fieldEmbedding]; ok {
		vector = bytesToVector(raw)
	}
	return knowledge.Reconstruct(a, vector)
}

func parseLocation(s string) (geo.Point, bool) {
	lonStr, latStr, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Point{}, false
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return geo.Point{}, false
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: lat, Lon: lon}, true
}

func joinTags(tags []string) string {
	clean := make([]string, 0, len(tags))
	for _, t := range tags {
		// the separator cannot appear inside a tag
		if t = strings.TrimSpace(strings.ReplaceAll(t, tagSeparator, " ")); t != "" {
			clean = append(clean, t)
		}
	}
	return strings.Join(clean, tagSeparator)
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, tagSeparator)
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
