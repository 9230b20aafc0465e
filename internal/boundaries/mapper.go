package boundaries

import (
	"log"
	"sort"

	"github.com/EmpoweredVote/EV-Geo/internal/geo"
)

// Property keys used by geoBoundaries shapes, with common fallbacks.
var (
	idKeys   = []string{"shapeID", "shapeId", "id"}
	nameKeys = []string{"shapeName", "name"}
	isoKeys  = []string{"shapeISO", "iso"}
)

// MapAdm1Regions turns boundary shapes into first-level regions. Shapes with
// no identity, no name, no parseable polygons or no computable bounding box
// are skipped.
func MapAdm1Regions(features []geo.Feature) []*Adm1Region {
	out := make([]*Adm1Region, 0, len(features))
	skipped := 0
	for _, f := range features {
		r, ok := mapRegion(f)
		if !ok {
			skipped++
			continue
		}
		if c, ok := representativePoint(r.Polygons); ok {
			r.Center = &c
		}
		out = append(out, &Adm1Region{Region: r})
	}
	if skipped > 0 {
		log.Printf("[boundaries] skipped %d of %d ADM1 shapes", skipped, len(features))
	}
	return out
}

// MapAdm2Regions is MapAdm1Regions for second-level shapes, which must also
// yield an interior point. Shapes without one are data-quality skips.
func MapAdm2Regions(features []geo.Feature) []*Adm2Region {
	out := make([]*Adm2Region, 0, len(features))
	skipped := 0
	for _, f := range features {
		r, ok := mapRegion(f)
		if !ok {
			skipped++
			continue
		}
		pt, ok := representativePoint(r.Polygons)
		if !ok {
			skipped++
			continue
		}
		r.Center = &pt
		out = append(out, &Adm2Region{Region: r, InteriorPoint: pt})
	}
	if skipped > 0 {
		log.Printf("[boundaries] skipped %d of %d ADM2 shapes", skipped, len(features))
	}
	return out
}

func mapRegion(f geo.Feature) (Region, bool) {
	id := f.StringProperty(idKeys...)
	name := f.StringProperty(nameKeys...)
	if id == "" || name == "" {
		return Region{}, false
	}

	polys, err := geo.ParseGeometry(f.Geometry)
	if err != nil {
		return Region{}, false
	}

	boxes := make([]geo.BoundingBox, 0, len(polys))
	kept := make([]geo.Polygon, 0, len(polys))
	for _, p := range polys {
		b, ok := geo.BoundsOf(p)
		if !ok {
			continue
		}
		boxes = append(boxes, b)
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return Region{}, false
	}

	return Region{
		ID:       id,
		Name:     name,
		ISOCode:  f.StringProperty(isoKeys...),
		Polygons: kept,
		BBoxes:   boxes,
	}, true
}

// representativePoint tries polygons largest first so that a region made of a
// main landmass and small islands is represented by the landmass.
func representativePoint(polys []geo.Polygon) (geo.Coordinate, bool) {
	order := make([]int, len(polys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return geo.Area(polys[order[a]]) > geo.Area(polys[order[b]])
	})

	for _, i := range order {
		if pt, ok := geo.InteriorPoint(polys[i]); ok {
			return pt, true
		}
	}
	return geo.Coordinate{}, false
}
