// Package geo holds the coordinate type shared by venues, the map surface
// and the geocoder.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Position is a WGS 84 coordinate. Either component may be NaN when the
// source had no usable value; NaN is carried through, never defaulted.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ParseCoordinate converts a source string to a float. Empty or malformed
// input yields NaN.
func ParseCoordinate(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Parse builds a Position from latitude/longitude strings.
func Parse(lat, lng string) Position {
	return Position{Lat: ParseCoordinate(lat), Lng: ParseCoordinate(lng)}
}

// Valid reports whether both components are finite and in range.
func (p Position) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p Position) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}
