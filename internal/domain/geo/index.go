package geo

import (
	"math"

	"github.com/tidwall/rtree"
)

// SegmentIndex is an R-tree over the segments of one polyline. It answers the
// same questions as MinDistanceToPolyline and IsOffRoute without scanning
// every segment. The index is immutable once built and safe for concurrent
// readers.
type SegmentIndex struct {
	line Polyline
	tree rtree.RTreeG[int]
}

// NewSegmentIndex indexes the bounding box of every segment of line.
func NewSegmentIndex(line Polyline) *SegmentIndex {
	idx := &SegmentIndex{line: line}
	for i := 0; i < len(line)-1; i++ {
		a, b := line[i], line[i+1]
		idx.tree.Insert(
			[2]float64{math.Min(a.Lng, b.Lng), math.Min(a.Lat, b.Lat)},
			[2]float64{math.Max(a.Lng, b.Lng), math.Max(a.Lat, b.Lat)},
			i,
		)
	}
	return idx
}

// Line returns the indexed polyline.
func (x *SegmentIndex) Line() Polyline {
	return x.line
}

// Len returns the number of indexed segments.
func (x *SegmentIndex) Len() int {
	return x.tree.Len()
}

// Within reports whether p is no farther than radiusMeters from the polyline.
//
// A segment within r metres of p always has its bounding box inside the
// square of half-width r/MetersPerDegree degrees around p, because
// DistanceToSegment is the planar degree distance scaled by a constant. The
// search window therefore never misses a candidate.
func (x *SegmentIndex) Within(p Coordinate, radiusMeters float64) bool {
	if radiusMeters < 0 || x.tree.Len() == 0 {
		return false
	}
	r := radiusMeters / MetersPerDegree
	found := false
	x.tree.Search(
		[2]float64{p.Lng - r, p.Lat - r},
		[2]float64{p.Lng + r, p.Lat + r},
		func(_, _ [2]float64, i int) bool {
			if DistanceToSegment(p, x.line[i], x.line[i+1]) <= radiusMeters {
				found = true
				return false
			}
			return true
		},
	)
	return found
}

// IsOffRoute is the indexed equivalent of the package-level IsOffRoute.
func (x *SegmentIndex) IsOffRoute(p Coordinate, thresholdMeters float64) bool {
	return !x.Within(p, thresholdMeters)
}

// MinDistance returns the distance from p to the nearest indexed segment,
// growing the search window until a hit is confirmed. It returns +Inf for an
// empty index.
func (x *SegmentIndex) MinDistance(p Coordinate) float64 {
	if x.tree.Len() == 0 {
		return math.Inf(1)
	}
	r := 0.001
	for {
		best := math.Inf(1)
		x.tree.Search(
			[2]float64{p.Lng - r, p.Lat - r},
			[2]float64{p.Lng + r, p.Lat + r},
			func(_, _ [2]float64, i int) bool {
				if d := segmentDegrees(p, x.line[i], x.line[i+1]); d < best {
					best = d
				}
				return true
			},
		)
		// Only a hit inside the window radius is guaranteed to be the minimum.
		if best <= r {
			return best * MetersPerDegree
		}
		if r > 360 {
			return MinDistanceToPolyline(p, x.line)
		}
		r *= 4
	}
}
