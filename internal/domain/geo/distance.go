package geo

import "math"

const (
	// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
	EarthRadiusMeters = 6_371_000.0

	// MetersPerDegree converts equirectangular degree offsets to metres.
	// Latitude and longitude degrees are scaled the same way (no cos(lat)
	// correction), so the result drifts from the true distance away from the
	// equator.
	MetersPerDegree = 111_000.0

	// DefaultDeviationThresholdMeters is the off-route tolerance used when
	// none is configured. Tuned for car-scale GPS noise.
	DefaultDeviationThresholdMeters = 50.0
)

// Distance returns the great-circle distance in metres between a and b.
func Distance(a, b Coordinate) float64 {
	lat1 := degreesToRadians(a.Lat)
	lat2 := degreesToRadians(b.Lat)
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// DistanceToSegment returns the approximate distance in metres from p to the
// segment ab. The projection runs in raw degree space and is clamped to the
// segment ends.
func DistanceToSegment(p, a, b Coordinate) float64 {
	return segmentDegrees(p, a, b) * MetersPerDegree
}

// segmentDegrees is the planar distance from p to ab, in degrees.
func segmentDegrees(p, a, b Coordinate) float64 {
	dx := b.Lng - a.Lng
	dy := b.Lat - a.Lat
	if dx == 0 && dy == 0 {
		return math.Hypot(p.Lng-a.Lng, p.Lat-a.Lat)
	}

	t := ((p.Lng-a.Lng)*dx + (p.Lat-a.Lat)*dy) / (dx*dx + dy*dy)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	return math.Hypot(p.Lng-(a.Lng+t*dx), p.Lat-(a.Lat+t*dy))
}

// MinDistanceToPolyline returns the smallest DistanceToSegment from p to any
// consecutive pair of line. It returns +Inf when line has fewer than 2 points.
func MinDistanceToPolyline(p Coordinate, line Polyline) float64 {
	best := math.Inf(1)
	for i := 0; i < len(line)-1; i++ {
		if d := DistanceToSegment(p, line[i], line[i+1]); d < best {
			best = d
		}
	}
	return best
}

// IsOffRoute reports whether p lies farther than thresholdMeters from line.
func IsOffRoute(p Coordinate, line Polyline, thresholdMeters float64) bool {
	return MinDistanceToPolyline(p, line) > thresholdMeters
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
