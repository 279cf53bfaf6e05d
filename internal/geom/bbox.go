// Package geom provides the geometry primitives used by the ingestion
// engine: WGS84 bounding boxes, time-of-interest periods, and the
// polygon-vs-rectangle clipper the coastline cache is built on.
package geom

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// ErrNoEPSGCode indicates an envelope in a coordinate system other than
// WGS84 (EPSG:4326), the only one supported here.
var ErrNoEPSGCode = errors.New("unsupported EPSG code")

// EPSG4326 is the WGS84 geographic CRS identifier.
const EPSG4326 = 4326

// Bbox is an axis-aligned geographic bounding box in WGS84 degrees.
// Points are (easting, northing), i.e. (longitude, latitude).
type Bbox struct {
	LL orb.Point // lower-left corner
	UR orb.Point // upper-right corner
}

// NewBbox builds a bbox from two corners given as (easting, northing).
func NewBbox(ll, ur orb.Point) Bbox {
	return Bbox{LL: ll, UR: ur}
}

// BboxFromStrings parses two whitespace-separated corner strings.
// When xFirst is true the coordinate order is "easting northing",
// otherwise "northing easting" (the GML lat-long convention).
func BboxFromStrings(lc, uc string, xFirst bool) (Bbox, error) {
	ll, err := parseCorner(lc, xFirst)
	if err != nil {
		return Bbox{}, fmt.Errorf("lower corner %q: %w", lc, err)
	}
	ur, err := parseCorner(uc, xFirst)
	if err != nil {
		return Bbox{}, fmt.Errorf("upper corner %q: %w", uc, err)
	}
	return Bbox{LL: ll, UR: ur}, nil
}

func parseCorner(s string, xFirst bool) (orb.Point, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return orb.Point{}, fmt.Errorf("expected 2 coordinates, got %d", len(fields))
	}
	a, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return orb.Point{}, err
	}
	b, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return orb.Point{}, err
	}
	if xFirst {
		return orb.Point{a, b}, nil
	}
	return orb.Point{b, a}, nil
}

// ToWGS84 converts the bbox from the given EPSG code to WGS84.
// Only EPSG:4326 input is supported; anything else returns ErrNoEPSGCode.
func (b Bbox) ToWGS84(epsg int) (Bbox, error) {
	if epsg != EPSG4326 {
		return Bbox{}, fmt.Errorf("%w: EPSG:%d", ErrNoEPSGCode, epsg)
	}
	return b, nil
}

// Overlaps reports whether the two boxes share any point (closed intervals).
func (b Bbox) Overlaps(o Bbox) bool {
	if o.LL[0] > b.UR[0] || o.UR[0] < b.LL[0] {
		return false
	}
	if o.LL[1] > b.UR[1] || o.UR[1] < b.LL[1] {
		return false
	}
	return true
}

// Contains reports whether pt lies inside or on the boundary of the box.
func (b Bbox) Contains(pt orb.Point) bool {
	return pt[0] >= b.LL[0] && pt[0] <= b.UR[0] &&
		pt[1] >= b.LL[1] && pt[1] <= b.UR[1]
}

// Ring returns the box outline as a closed ring, counter-clockwise from LL.
func (b Bbox) Ring() orb.Ring {
	return orb.Ring{
		{b.LL[0], b.LL[1]},
		{b.UR[0], b.LL[1]},
		{b.UR[0], b.UR[1]},
		{b.LL[0], b.UR[1]},
		{b.LL[0], b.LL[1]},
	}
}

// String returns a human-readable representation of the box.
func (b Bbox) String() string {
	return fmt.Sprintf("bb((%g,%g),(%g,%g))", b.LL[0], b.LL[1], b.UR[0], b.UR[1])
}
