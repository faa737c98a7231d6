package model

import (
	"errors"
	"math"
	"strconv"
)

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate lies within the WGS84 ranges.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// ViewportRequest is the bounding box currently visible on the map.
type ViewportRequest struct {
	NorthEast Coordinate `json:"north_east"`
	SouthWest Coordinate `json:"south_west"`
}

// canonicalPrecision is the number of decimals kept when comparing viewports (~0.1m).
const canonicalPrecision = 6

var ErrInvalidViewport = errors.New("invalid viewport")

// Canonical returns the string form used to decide whether two viewport
// requests are equivalent.
func (v ViewportRequest) Canonical() string {
	buf := make([]byte, 0, 64)
	buf = append(buf, "ne:"...)
	buf = appendCanonical(buf, v.NorthEast.Lat)
	buf = append(buf, ',')
	buf = appendCanonical(buf, v.NorthEast.Lng)
	buf = append(buf, "|sw:"...)
	buf = appendCanonical(buf, v.SouthWest.Lat)
	buf = append(buf, ',')
	buf = appendCanonical(buf, v.SouthWest.Lng)
	return string(buf)
}

func appendCanonical(buf []byte, f float64) []byte {
	scale := math.Pow10(canonicalPrecision)
	r := math.Round(f*scale) / scale
	if r == 0 {
		r = 0 // drop negative zero so -0.0000001 and 0.0000001 match
	}
	return strconv.AppendFloat(buf, r, 'f', canonicalPrecision, 64)
}

// Validate checks both corners and their ordering on the latitude axis.
// Longitudes may wrap (SouthWest.Lng > NorthEast.Lng), which means the box
// crosses the antimeridian.
func (v ViewportRequest) Validate() error {
	if !v.NorthEast.Valid() || !v.SouthWest.Valid() {
		return ErrInvalidViewport
	}
	if v.SouthWest.Lat > v.NorthEast.Lat {
		return ErrInvalidViewport
	}
	return nil
}

// CrossesAntimeridian reports whether the box wraps around longitude ±180.
func (v ViewportRequest) CrossesAntimeridian() bool {
	return v.SouthWest.Lng > v.NorthEast.Lng
}
