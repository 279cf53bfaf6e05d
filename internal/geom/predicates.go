package geom

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// orientation returns >0 when the triple (a,b,c) turns counter-clockwise,
// <0 for clockwise, 0 for collinear.
func orientation(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return p[0] >= min(a[0], b[0]) && p[0] <= max(a[0], b[0]) &&
		p[1] >= min(a[1], b[1]) && p[1] <= max(a[1], b[1])
}

// segmentsCross reports whether the closed segments (a1,a2) and (b1,b2)
// share at least one point.
func segmentsCross(a1, a2, b1, b2 orb.Point) bool {
	d1 := orientation(b1, b2, a1)
	d2 := orientation(b1, b2, a2)
	d3 := orientation(a1, a2, b1)
	d4 := orientation(a1, a2, b2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	switch {
	case d1 == 0 && onSegment(b1, b2, a1):
		return true
	case d2 == 0 && onSegment(b1, b2, a2):
		return true
	case d3 == 0 && onSegment(a1, a2, b1):
		return true
	case d4 == 0 && onSegment(a1, a2, b2):
		return true
	}
	return false
}

// RingContainsRing reports whether every vertex of inner lies inside or on
// the boundary of outer. Only the rings themselves participate; callers
// pass outer rings of polygons.
func RingContainsRing(outer, inner orb.Ring) bool {
	if len(inner) == 0 || len(outer) == 0 {
		return false
	}
	for _, pt := range inner {
		if !planar.RingContains(outer, pt) {
			return false
		}
	}
	return true
}

// RingsIntersect reports whether the two rings share any point: a vertex
// of one inside the other, or any pair of edges crossing. Containment in
// either direction therefore also reports true.
func RingsIntersect(a, b orb.Ring) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for _, pt := range a {
		if planar.RingContains(b, pt) {
			return true
		}
	}
	for _, pt := range b {
		if planar.RingContains(a, pt) {
			return true
		}
	}
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if segmentsCross(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}
