package boundaries

import "github.com/EmpoweredVote/EV-Geo/internal/geo"

// Region is a pre-persistence administrative region built from one boundary
// shape. BBoxes holds one box per polygon, in the same order, as a cheap
// filter ahead of the ray cast.
type Region struct {
	ID       string
	Name     string
	ISOCode  string
	Polygons []geo.Polygon
	BBoxes   []geo.BoundingBox
	Center   *geo.Coordinate
}

// Contains reports whether pt falls inside any polygon of the region. The
// bounding box is checked first; the polygon test is authoritative.
func (r *Region) Contains(pt geo.Coordinate) bool {
	for i, p := range r.Polygons {
		if i < len(r.BBoxes) && !r.BBoxes[i].Contains(pt) {
			continue
		}
		if geo.PointInPolygon(pt, p) {
			return true
		}
	}
	return false
}

// Adm1Region is a first-level region (prefecture, state, province).
// Children is filled by LinkChildren.
type Adm1Region struct {
	Region
	Children []*Adm2Region
}

// Adm2Region is a second-level region (municipality, county). InteriorPoint
// stands in for the whole shape when looking for its parent.
type Adm2Region struct {
	Region
	InteriorPoint geo.Coordinate
}

// TaggedElement is one result of the administrative tag query service: an
// element id, its center and its raw tags.
type TaggedElement struct {
	ID     int64
	Center geo.Coordinate
	Tags   map[string]string
}

// Tag returns the value of the first present, non-empty tag among keys.
func (e TaggedElement) Tag(keys ...string) string {
	for _, k := range keys {
		if v := e.Tags[k]; v != "" {
			return v
		}
	}
	return ""
}

// Adm1Base returns the embedded regions of adm1s, in order.
func Adm1Base(adm1s []*Adm1Region) []*Region {
	out := make([]*Region, len(adm1s))
	for i, r := range adm1s {
		out[i] = &r.Region
	}
	return out
}

// Adm2Base returns the embedded regions of adm2s, in order.
func Adm2Base(adm2s []*Adm2Region) []*Region {
	out := make([]*Region, len(adm2s))
	for i, r := range adm2s {
		out[i] = &r.Region
	}
	return out
}
