package geom

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// nearZeroTol guards divisions when a segment is (almost) parallel to a
// box edge.
const nearZeroTol = 2.0e-9

// Isection is an intersection of a segment's carrier line with one of the
// four lines forming a bounding box. OnBoundary is true only when the
// point lies on the actual box edge, not merely on the infinite
// constant-easting or constant-northing line beyond the box corners.
type Isection struct {
	Pt         orb.Point
	OnBoundary bool
}

// calcXi returns the easting on segment (p0,p1) at northing n. The caller
// guarantees the segment straddles n; near-horizontal segments get the
// midpoint easting.
func calcXi(p0, p1 orb.Point, n float64) float64 {
	dy := p1[1] - p0[1]
	if math.Abs(dy) < nearZeroTol {
		return (p1[0] + p0[0]) / 2.0
	}
	dx := p1[0] - p0[0]
	return p0[0] + (n-p0[1])*(dx/dy)
}

// calcYi returns the northing on segment (p0,p1) at easting e.
func calcYi(p0, p1 orb.Point, e float64) float64 {
	dx := p1[0] - p0[0]
	if math.Abs(dx) < nearZeroTol {
		return (p1[1] + p0[1]) / 2.0
	}
	dy := p1[1] - p0[1]
	return p0[1] + (e-p0[0])*(dy/dx)
}

func insertOrderedEastInc(target []Isection, ipt Isection) []Isection {
	for i, item := range target {
		if ipt.Pt[0] < item.Pt[0] {
			target = append(target, Isection{})
			copy(target[i+1:], target[i:])
			target[i] = ipt
			return target
		}
	}
	return append(target, ipt)
}

func insertOrderedEastDec(target []Isection, ipt Isection) []Isection {
	for i, item := range target {
		if ipt.Pt[0] > item.Pt[0] {
			target = append(target, Isection{})
			copy(target[i+1:], target[i:])
			target[i] = ipt
			return target
		}
	}
	return append(target, ipt)
}

// FindIntersections returns the intersections of segment (p0,p1) with the
// four boundary lines of bb, ordered by increasing distance from p0.
// There may be up to four; at most two have OnBoundary set.
func FindIntersections(bb Bbox, p0, p1 orb.Point) []Isection {
	var ipoints []Isection

	minE, minN := bb.LL[0], bb.LL[1]
	maxE, maxN := bb.UR[0], bb.UR[1]

	isectWithConstN := func(n float64) {
		if !((p0[1] < n && p1[1] > n) || (p0[1] > n && p1[1] < n)) {
			return
		}
		xi := calcXi(p0, p1, n)
		in := Isection{Pt: orb.Point{xi, n}, OnBoundary: xi >= minE && xi <= maxE}
		// keep the intersections ordered by distance from p0
		if len(ipoints) == 0 ||
			math.Abs(p0[0]-xi) > math.Abs(p0[0]-ipoints[0].Pt[0]) {
			ipoints = append(ipoints, in)
		} else {
			ipoints = append([]Isection{in}, ipoints...)
		}
	}

	isectWithConstN(minN)
	isectWithConstN(maxN)

	for _, e := range [2]float64{minE, maxE} {
		if !((p0[0] < e && p1[0] > e) || (p0[0] > e && p1[0] < e)) {
			continue
		}
		yi := calcYi(p0, p1, e)
		ipt := Isection{Pt: orb.Point{e, yi}, OnBoundary: yi >= minN && yi <= maxN}

		if p0[0] < p0[1] {
			ipoints = insertOrderedEastInc(ipoints, ipt)
		} else {
			ipoints = insertOrderedEastDec(ipoints, ipt)
		}
	}

	return ipoints
}

// nearestCorner returns the box corner closest to the intersection point,
// choosing the nearer easting and northing independently.
func nearestCorner(bb Bbox, ipt Isection) orb.Point {
	closest := func(p, lo, hi float64) float64 {
		if math.Abs(p-lo) < math.Abs(p-hi) {
			return lo
		}
		return hi
	}
	return orb.Point{
		closest(ipt.Pt[0], bb.LL[0], bb.UR[0]),
		closest(ipt.Pt[1], bb.LL[1], bb.UR[1]),
	}
}

func samePoint(p0, p1 orb.Point) bool {
	return p0[0] == p1[0] && p0[1] == p1[1]
}

// appendIfNotSame appends pt unless it equals either of the last two
// points already emitted.
func appendIfNotSame(clipped orb.Ring, pt orb.Point) orb.Ring {
	switch len(clipped) {
	case 0:
		return append(clipped, pt)
	case 1:
		if samePoint(clipped[0], pt) {
			return clipped
		}
		return append(clipped, pt)
	default:
		if samePoint(clipped[len(clipped)-1], pt) ||
			samePoint(clipped[len(clipped)-2], pt) {
			return clipped
		}
		return append(clipped, pt)
	}
}

// ClipRing clips the outer ring of poly against bb and returns the
// resulting closed ring. Inner holes are ignored; the coastline domain
// does not need them. An empty ring is returned when poly does not
// intersect bb. A polygon that fully encloses bb clips to the four box
// corners.
func ClipRing(bb Bbox, poly orb.Polygon) orb.Ring {
	var clipped orb.Ring
	if len(poly) == 0 {
		return clipped
	}

	ring := poly[0]
	if len(ring) == 0 {
		return clipped
	}

	p0 := ring[0]
	p0Inside := bb.Contains(p0)
	if p0Inside {
		clipped = appendIfNotSame(clipped, p0)
	}

	for i := 1; i < len(ring); i++ {
		p1 := ring[i]
		if samePoint(p0, p1) {
			continue
		}
		p1Inside := bb.Contains(p1)

		if p0Inside && p1Inside {
			clipped = appendIfNotSame(clipped, p1)
		} else {
			// one or both endpoints are outside; walk the
			// intersections in order of distance from p0
			for _, ipt := range FindIntersections(bb, p0, p1) {
				if ipt.OnBoundary {
					clipped = appendIfNotSame(clipped, ipt.Pt)
					continue
				}
				// The segment crosses only the infinite carrier line,
				// beyond the box extent: a box corner may belong to
				// the clipped polygon. It qualifies when it lies
				// inside the source polygon.
				corner := nearestCorner(bb, ipt)
				if planar.RingContains(ring, corner) {
					clipped = appendIfNotSame(clipped, corner)
				}
			}
		}

		p0 = p1
		p0Inside = p1Inside
	}

	if len(clipped) > 1 && !samePoint(clipped[0], clipped[len(clipped)-1]) {
		clipped = append(clipped, clipped[0])
	}

	return clipped
}
