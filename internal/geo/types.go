package geo

// Coordinate is a WGS84 point in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Ring is an ordered sequence of coordinates. It may or may not repeat its
// first point at the end; containment tests accept both forms.
type Ring []Coordinate

// IsClosed reports whether the first and last points are identical.
func (r Ring) IsClosed() bool {
	return len(r) > 0 && r[0] == r[len(r)-1]
}

// Closed returns the ring with its first point appended when it is not
// already closed. Used before serialization only.
func (r Ring) Closed() Ring {
	if len(r) == 0 || r.IsClosed() {
		return r
	}
	out := make(Ring, len(r), len(r)+1)
	copy(out, r)
	return append(out, r[0])
}

// IsDegenerate reports whether the ring has fewer than 3 distinct points and
// so encloses no area.
func (r Ring) IsDegenerate() bool {
	seen := make(map[Coordinate]struct{}, 3)
	for _, pt := range r {
		seen[pt] = struct{}{}
		if len(seen) >= 3 {
			return false
		}
	}
	return true
}

// Polygon is a polygon with holes: ring 0 is the outer boundary, the rest are holes.
type Polygon []Ring

// Outer returns the outer ring, or nil for an empty polygon.
func (p Polygon) Outer() Ring {
	if len(p) == 0 {
		return nil
	}
	return p[0]
}

// Holes returns the hole rings.
func (p Polygon) Holes() []Ring {
	if len(p) < 2 {
		return nil
	}
	return p[1:]
}

// IsEmpty reports whether the polygon has no usable outer ring.
func (p Polygon) IsEmpty() bool {
	return len(p) == 0 || len(p[0]) == 0
}

// BoundingBox is an axis-aligned box in degrees.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether pt lies inside the box, edges included.
func (b BoundingBox) Contains(pt Coordinate) bool {
	return pt.Lon >= b.MinLon && pt.Lon <= b.MaxLon && pt.Lat >= b.MinLat && pt.Lat <= b.MaxLat
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Coordinate {
	return Coordinate{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// BoundsOf computes the bounding box over every ring of the polygon.
// The second return value is false when the polygon has no points.
func BoundsOf(p Polygon) (BoundingBox, bool) {
	var b BoundingBox
	found := false
	for _, ring := range p {
		for _, pt := range ring {
			if !found {
				b = BoundingBox{MinLat: pt.Lat, MinLon: pt.Lon, MaxLat: pt.Lat, MaxLon: pt.Lon}
				found = true
				continue
			}
			if pt.Lat < b.MinLat {
				b.MinLat = pt.Lat
			}
			if pt.Lon < b.MinLon {
				b.MinLon = pt.Lon
			}
			if pt.Lat > b.MaxLat {
				b.MaxLat = pt.Lat
			}
			if pt.Lon > b.MaxLon {
				b.MaxLon = pt.Lon
			}
		}
	}
	return b, found
}
