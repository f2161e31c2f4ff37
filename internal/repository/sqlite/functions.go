package sqlite

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	msqlite "modernc.org/sqlite"

	"github.com/kailas-cloud/ctxdex/internal/domain/geo"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// registerFunctions installs the SQL functions used by corpus queries.
// Registration is process-wide and must happen before the first connection opens.
func registerFunctions() error {
	registerOnce.Do(func() {
		if err := msqlite.RegisterDeterministicScalarFunction("haversine_km", 4, haversineKm); err != nil {
			registerErr = fmt.Errorf("register haversine_km: %w", err)
			return
		}
		if err := msqlite.RegisterDeterministicScalarFunction("cosine_similarity", 2, cosineSimilarity); err != nil {
			registerErr = fmt.Errorf("register cosine_similarity: %w", err)
		}
	})
	return registerErr
}

// haversineKm(lat1, lon1, lat2, lon2) is the great-circle distance in km; NULL in, NULL out.
func haversineKm(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	vals := make([]float64, len(args))
	for i, a := range args {
		f, ok := toFloat(a)
		if !ok {
			return nil, nil
		}
		vals[i] = f
	}
	return geo.HaversineKm(
		geo.Point{Lat: vals[0], Lon: vals[1]},
		geo.Point{Lat: vals[2], Lon: vals[3]},
	), nil
}

// cosineSimilarity(a, b) compares two little-endian float32 blobs, clamped to [0,1].
// Mismatched or empty vectors score 0.
func cosineSimilarity(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, okA := args[0].([]byte)
	b, okB := args[1].([]byte)
	if !okA || !okB || len(a) == 0 || len(a) != len(b) || len(a)%4 != 0 {
		return 0.0, nil
	}

	var dot, na, nb float64
	for i := 0; i < len(a); i += 4 {
		x := float64(math.Float32frombits(binary.LittleEndian.Uint32(a[i:])))
		y := float64(math.Float32frombits(binary.LittleEndian.Uint32(b[i:])))
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0.0, nil
	}
	return max(0, dot/(math.Sqrt(na)*math.Sqrt(nb))), nil
}

func toFloat(v driver.Value) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

// encodeVector serializes []float32 to a little-endian blob.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
