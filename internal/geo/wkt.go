package geo

import (
	"strconv"
	"strings"
)

// MultiPolygonWKT serializes polygons as a WKT MULTIPOLYGON, closing every
// ring on the way out. Polygons with a degenerate outer ring and degenerate
// holes are left out. Empty input yields an empty string.
func MultiPolygonWKT(polys []Polygon) string {
	var b strings.Builder
	wrote := false
	for _, p := range polys {
		if p.IsEmpty() || p.Outer().IsDegenerate() {
			continue
		}
		if !wrote {
			b.WriteString("MULTIPOLYGON(")
			wrote = true
		} else {
			b.WriteByte(',')
		}
		b.WriteByte('(')
		for ri, ring := range p {
			if ri > 0 {
				if ring.IsDegenerate() {
					continue
				}
				b.WriteByte(',')
			}
			b.WriteByte('(')
			for i, pt := range ring.Closed() {
				if i > 0 {
					b.WriteByte(',')
				}
				b.WriteString(strconv.FormatFloat(pt.Lon, 'f', -1, 64))
				b.WriteByte(' ')
				b.WriteString(strconv.FormatFloat(pt.Lat, 'f', -1, 64))
			}
			b.WriteByte(')')
		}
		b.WriteByte(')')
	}
	if !wrote {
		return ""
	}
	b.WriteByte(')')
	return b.String()
}
