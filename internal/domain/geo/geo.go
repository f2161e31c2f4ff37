package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean radius of Earth used for haversine distance.
const EarthRadiusKm = 6371.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// ValidateCoordinates checks that latitude is in [-90,90] and longitude in [-180,180].
func ValidateCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Validate rejects out-of-range or non-finite coordinates.
func (p Point) Validate() error {
	if !ValidateCoordinates(p.Lat, p.Lon) {
		return fmt.Errorf("lat %v / lon %v out of range", p.Lat, p.Lon)
	}
	return nil
}

// HaversineKm returns the great-circle distance in kilometres between two points.
func HaversineKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// Box is a lat/lon bounding rectangle.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// BoundingBox returns a rectangle that contains every point within radiusKm of center.
// The longitude half-width is taken at the circle's widest latitude, not at the center's.
// Near the poles or across the antimeridian the longitude span widens to the full range.
func BoundingBox(center Point, radiusKm float64) Box {
	angular := radiusKm / EarthRadiusKm
	dLat := angular * 180 / math.Pi
	box := Box{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
		MinLon: -180,
		MaxLon: 180,
	}

	sinR := math.Sin(angular)
	cosLat := math.Cos(center.Lat * math.Pi / 180)
	if box.MinLat <= -90 || box.MaxLat >= 90 || sinR >= cosLat {
		return box
	}
	dLon := math.Asin(sinR/cosLat) * 180 / math.Pi
	if center.Lon-dLon < -180 || center.Lon+dLon > 180 {
		return box
	}
	box.MinLon = center.Lon - dLon
	box.MaxLon = center.Lon + dLon
	return box
}

// ProximityScore maps a distance to [0,1]: 1 at the center, 0 at or beyond maxKm.
func ProximityScore(distanceKm, maxKm float64) float64 {
	if maxKm <= 0 {
		return 0
	}
	return math.Max(0, 1-math.Min(distanceKm, maxKm)/maxKm)
}
