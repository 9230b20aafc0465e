package geo

import "math"

// edgeEpsilon absorbs floating point noise in the on-edge test.
const edgeEpsilon = 1e-12

// PointInPolygon reports whether pt lies inside the outer ring of p and not
// strictly inside any of its holes. Points on an edge count as inside, so a
// point on a hole's edge is on the polygon boundary and is inside too.
//
// The test is planar (even-odd ray cast on lon/lat), which is accurate enough
// for administrative boundaries that do not cross the antimeridian.
func PointInPolygon(pt Coordinate, p Polygon) bool {
	if p.IsEmpty() {
		return false
	}
	if !ringContains(pt, p[0], true) {
		return false
	}
	for _, hole := range p.Holes() {
		if ringContains(pt, hole, false) {
			return false
		}
	}
	return true
}

// ringContains runs the even-odd rule. edgeInside controls how points lying
// exactly on the ring are classified.
func ringContains(pt Coordinate, ring Ring, edgeInside bool) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	if onRing(pt, ring) {
		return edgeInside
	}

	x, y := pt.Lon, pt.Lat
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lon, ring[i].Lat
		xj, yj := ring[j].Lon, ring[j].Lat
		if (yi > y) != (yj > y) {
			cross := (xj-xi)*(y-yi)/(yj-yi) + xi
			if x < cross {
				inside = !inside
			}
		}
	}
	return inside
}

func onRing(pt Coordinate, ring Ring) bool {
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		if onSegment(pt, ring[j], ring[i]) {
			return true
		}
	}
	return false
}

func onSegment(pt, a, b Coordinate) bool {
	cross := (b.Lon-a.Lon)*(pt.Lat-a.Lat) - (b.Lat-a.Lat)*(pt.Lon-a.Lon)
	if math.Abs(cross) > edgeEpsilon {
		return false
	}
	return pt.Lon >= math.Min(a.Lon, b.Lon)-edgeEpsilon &&
		pt.Lon <= math.Max(a.Lon, b.Lon)+edgeEpsilon &&
		pt.Lat >= math.Min(a.Lat, b.Lat)-edgeEpsilon &&
		pt.Lat <= math.Max(a.Lat, b.Lat)+edgeEpsilon
}
