package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Coordinate is a WGS-84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewCoordinate creates a Coordinate.
func NewCoordinate(lat, lng float64) Coordinate {
	return Coordinate{Lat: lat, Lng: lng}
}

// FromPoint converts an orb point ([lng, lat]) to a Coordinate.
func FromPoint(p orb.Point) Coordinate {
	return Coordinate{Lat: p.Lat(), Lng: p.Lon()}
}

// Point returns the coordinate as an orb point ([lng, lat]).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// Validate reports whether the coordinate is finite and inside the lat/lng ranges.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return errors.New("coordinates must be finite numbers")
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
		return errors.New("coordinates out of range")
	}
	return nil
}

// String renders the coordinate as "lat,lng".
func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}
