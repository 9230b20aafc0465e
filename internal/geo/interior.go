package geo

import "math"

// InteriorPoint picks a representative point for containment matching.
//
// Preference order: the outer ring's area-weighted centroid when it falls
// inside the polygon, then the bounding-box center when that is inside, and
// finally the first outer vertex. Concave and multi-lobed shapes often have a
// centroid outside themselves, hence the fallbacks. Only an empty polygon
// yields false.
func InteriorPoint(p Polygon) (Coordinate, bool) {
	if p.IsEmpty() {
		return Coordinate{}, false
	}

	if c, ok := Centroid(p.Outer()); ok && PointInPolygon(c, p) {
		return c, true
	}

	if b, ok := BoundsOf(p); ok {
		if c := b.Center(); PointInPolygon(c, p) {
			return c, true
		}
	}

	return p.Outer()[0], true
}

// Centroid returns the shoelace-weighted centroid of a ring. Degenerate rings
// (fewer than three points or zero area) have no centroid.
func Centroid(r Ring) (Coordinate, bool) {
	n := len(r)
	if n < 3 {
		return Coordinate{}, false
	}

	var area2, cx, cy float64
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		f := r[j].Lon*r[i].Lat - r[i].Lon*r[j].Lat
		area2 += f
		cx += (r[j].Lon + r[i].Lon) * f
		cy += (r[j].Lat + r[i].Lat) * f
	}
	if math.Abs(area2) < edgeEpsilon {
		return Coordinate{}, false
	}

	return Coordinate{Lat: cy / (3 * area2), Lon: cx / (3 * area2)}, true
}

// Area returns the planar area of the polygon in square degrees: the outer
// ring minus its holes.
func Area(p Polygon) float64 {
	if p.IsEmpty() {
		return 0
	}
	a := ringArea(p.Outer())
	for _, h := range p.Holes() {
		a -= ringArea(h)
	}
	return math.Max(a, 0)
}

func ringArea(r Ring) float64 {
	n := len(r)
	if n < 3 {
		return 0
	}
	var s float64
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		s += r[j].Lon*r[i].Lat - r[i].Lon*r[j].Lat
	}
	return math.Abs(s) / 2
}
