package geo

import (
	"math"
	"testing"
)

func almost(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}

func TestHaversineKm_SamePoint(t *testing.T) {
	p := Point{Lat: 13.7563, Lon: 100.5018}
	if d := HaversineKm(p, p); d != 0 {
		t.Fatalf("want 0, got %f", d)
	}
}

func TestHaversineKm_NewYork_London(t *testing.T) {
	// NYC to London: ~5,570 km
	d := HaversineKm(Point{40.7128, -74.0060}, Point{51.5074, -0.1278})
	if !almost(d, 5570, 30) {
		t.Fatalf("want ~5570km, got %.0fkm", d)
	}
}

func TestHaversineKm_Antipodal(t *testing.T) {
	d := HaversineKm(Point{0, 0}, Point{0, 180})
	if !almost(d, math.Pi*EarthRadiusKm, 0.001) {
		t.Fatalf("want half circumference, got %f", d)
	}
}

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		lat, lon float64
		want     bool
	}{
		{0, 0, true},
		{90, 180, true},
		{-90, -180, true},
		{90.0001, 0, false},
		{0, -180.5, false},
		{math.NaN(), 0, false},
		{0, math.Inf(1), false},
	}
	for _, tc := range tests {
		if got := ValidateCoordinates(tc.lat, tc.lon); got != tc.want {
			t.Errorf("ValidateCoordinates(%v, %v) = %v, want %v", tc.lat, tc.lon, got, tc.want)
		}
	}
}

func TestBoundingBox_ContainsRadius(t *testing.T) {
	center := Point{Lat: 13.7563, Lon: 100.5018}
	box := BoundingBox(center, 10)

	// points 9.9 km due north and due east must be inside
	north := Point{Lat: center.Lat + 9.9/EarthRadiusKm*180/math.Pi, Lon: center.Lon}
	if north.Lat > box.MaxLat {
		t.Errorf("north point %f outside box max %f", north.Lat, box.MaxLat)
	}
	east := Point{Lat: center.Lat, Lon: center.Lon + 0.09}
	if HaversineKm(center, east) < 10 && east.Lon > box.MaxLon {
		t.Errorf("east point %f outside box max %f", east.Lon, box.MaxLon)
	}
}

// destination walks km from p along bearing (degrees clockwise from north).
func destination(p Point, bearing, km float64) Point {
	lat1 := p.Lat * math.Pi / 180
	lon1 := p.Lon * math.Pi / 180
	brg := bearing * math.Pi / 180
	d := km / EarthRadiusKm

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(math.Sin(brg)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))
	return Point{Lat: lat2 * 180 / math.Pi, Lon: lon2 * 180 / math.Pi}
}

func TestBoundingBox_HighLatitudeCircle(t *testing.T) {
	tests := []struct {
		name   string
		center Point
		km     float64
	}{
		{"arctic large radius", Point{Lat: 70, Lon: 10}, 2000},
		{"antarctic large radius", Point{Lat: -65, Lon: -40}, 1500},
		{"mid latitude", Point{Lat: 52.52, Lon: 13.405}, 300},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			box := BoundingBox(tc.center, tc.km)
			if box.MinLon == -180 && box.MaxLon == 180 {
				t.Fatalf("box should not widen to full longitude range: %+v", box)
			}
			for bearing := 0.0; bearing < 360; bearing += 0.5 {
				p := destination(tc.center, bearing, tc.km*0.999)
				if p.Lat < box.MinLat || p.Lat > box.MaxLat || p.Lon < box.MinLon || p.Lon > box.MaxLon {
					t.Fatalf("bearing %.1f: point %+v outside box %+v", bearing, p, box)
				}
			}
		})
	}
}

func TestBoundingBox_HighLatitudeEdgePoint(t *testing.T) {
	center := Point{Lat: 70, Lon: 10}
	edge := Point{Lat: 81.0057, Lon: 74.2455}
	if d := HaversineKm(center, edge); d > 2000 {
		t.Fatalf("edge point is %.2f km away, want inside 2000", d)
	}
	box := BoundingBox(center, 2000)
	if edge.Lon > box.MaxLon {
		t.Errorf("edge lon %f beyond box max %f", edge.Lon, box.MaxLon)
	}
}

func TestBoundingBox_NearPoleSpansAllLongitudes(t *testing.T) {
	box := BoundingBox(Point{Lat: 89.99, Lon: 10}, 50)
	if box.MinLon != -180 || box.MaxLon != 180 {
		t.Fatalf("expected full longitude span, got [%f, %f]", box.MinLon, box.MaxLon)
	}
}

func TestProximityScore(t *testing.T) {
	tests := []struct {
		d, maxKm, want float64
	}{
		{0, 5, 1},
		{2.5, 5, 0.5},
		{5, 5, 0},
		{12, 5, 0},
		{1, 0, 0},
	}
	for _, tc := range tests {
		if got := ProximityScore(tc.d, tc.maxKm); !almost(got, tc.want, 1e-9) {
			t.Errorf("ProximityScore(%v, %v) = %v, want %v", tc.d, tc.maxKm, got, tc.want)
		}
	}
}
