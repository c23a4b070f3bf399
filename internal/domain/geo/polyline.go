package geo

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Polyline is an ordered sequence of coordinates describing a path.
// It serializes as a GeoJSON LineString.
type Polyline []Coordinate

// PolylineFromLineString converts an orb line string to a Polyline.
func PolylineFromLineString(ls orb.LineString) Polyline {
	line := make(Polyline, len(ls))
	for i, p := range ls {
		line[i] = FromPoint(p)
	}
	return line
}

// LineString returns the polyline as an orb line string.
func (l Polyline) LineString() orb.LineString {
	ls := make(orb.LineString, len(l))
	for i, c := range l {
		ls[i] = c.Point()
	}
	return ls
}

// Length returns the summed great-circle length of the polyline in metres.
func (l Polyline) Length() float64 {
	total := 0.0
	for i := 0; i < len(l)-1; i++ {
		total += Distance(l[i], l[i+1])
	}
	return total
}

// Equal reports whether both polylines hold the same points in the same order.
func (l Polyline) Equal(other Polyline) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if l[i] != other[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the polyline as a GeoJSON LineString.
func (l Polyline) MarshalJSON() ([]byte, error) {
	return json.Marshal(geojson.NewGeometry(l.LineString()))
}

// UnmarshalJSON decodes a GeoJSON LineString.
func (l *Polyline) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return fmt.Errorf("decode geometry: %w", err)
	}
	ls, ok := g.Geometry().(orb.LineString)
	if !ok {
		return fmt.Errorf("expected LineString geometry, got %s", g.Type)
	}
	*l = PolylineFromLineString(ls)
	return nil
}
