package geo

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// c builds a coordinate from planar x (lon) / y (lat).
func c(x, y float64) Coordinate { return Coordinate{Lat: y, Lon: x} }

func square(x0, y0, x1, y1 float64) Ring {
	return Ring{c(x0, y0), c(x1, y0), c(x1, y1), c(x0, y1)}
}

func TestPointInPolygon_Basic(t *testing.T) {
	poly := Polygon{square(0, 0, 10, 10)}

	assert.True(t, PointInPolygon(c(5, 5), poly))
	assert.False(t, PointInPolygon(c(15, 5), poly))
	assert.False(t, PointInPolygon(c(-0.001, 5), poly))
}

func TestPointInPolygon_OnEdgeIsInside(t *testing.T) {
	poly := Polygon{square(0, 0, 10, 10)}

	for _, pt := range []Coordinate{c(0, 5), c(10, 3), c(4, 0), c(7, 10), c(0, 0), c(10, 10)} {
		assert.True(t, PointInPolygon(pt, poly), "edge point %+v", pt)
	}
}

func TestPointInPolygon_Holes(t *testing.T) {
	poly := Polygon{square(0, 0, 10, 10), square(4, 4, 6, 6)}

	assert.False(t, PointInPolygon(c(5, 5), poly), "inside hole")
	assert.True(t, PointInPolygon(c(2, 2), poly), "between outer and hole")
	assert.True(t, PointInPolygon(c(4, 5), poly), "hole edge is polygon boundary")
}

func TestPointInPolygon_Degenerate(t *testing.T) {
	assert.False(t, PointInPolygon(c(0, 0), nil))
	assert.False(t, PointInPolygon(c(0, 0), Polygon{}))
	assert.False(t, PointInPolygon(c(0, 0), Polygon{Ring{}}))
	assert.False(t, PointInPolygon(c(1, 0), Polygon{Ring{c(0, 0), c(2, 0)}}))
}

func TestPointInPolygon_RotationInvariant(t *testing.T) {
	// U shape: concave, with a notch open to the top.
	u := Ring{c(0, 0), c(10, 0), c(10, 10), c(7, 10), c(7, 3), c(3, 3), c(3, 10), c(0, 10)}
	points := []Coordinate{
		c(5, 5), c(5, 1), c(1, 9), c(8, 9), c(3, 5), c(7, 3), c(11, 1), c(5, 3), c(0, 10), c(2.999, 3.001),
	}

	want := make([]bool, len(points))
	for i, pt := range points {
		want[i] = PointInPolygon(pt, Polygon{u})
	}

	for shift := 1; shift < len(u); shift++ {
		rotated := append(append(Ring{}, u[shift:]...), u[:shift]...)
		for i, pt := range points {
			assert.Equal(t, want[i], PointInPolygon(pt, Polygon{rotated}), "shift %d point %+v", shift, pt)
		}
	}
}

func TestPointInPolygon_ClosedAndOpenRingsAgree(t *testing.T) {
	open := square(0, 0, 10, 10)
	closed := open.Closed()
	require.Len(t, closed, 5)

	for _, pt := range []Coordinate{c(5, 5), c(0, 5), c(11, 5), c(10, 10)} {
		assert.Equal(t, PointInPolygon(pt, Polygon{open}), PointInPolygon(pt, Polygon{closed}))
	}
}

func TestBoundsOf(t *testing.T) {
	_, ok := BoundsOf(nil)
	assert.False(t, ok)

	b, ok := BoundsOf(Polygon{Ring{c(-3, 2), c(4, -1), c(1, 8)}})
	require.True(t, ok)
	assert.Equal(t, BoundingBox{MinLat: -1, MinLon: -3, MaxLat: 8, MaxLon: 4}, b)
	assert.True(t, b.Contains(c(4, 8)))
	assert.False(t, b.Contains(c(4.1, 8)))
}

func TestInteriorPoint_CentroidInside(t *testing.T) {
	pt, ok := InteriorPoint(Polygon{square(0, 0, 10, 10)})
	require.True(t, ok)
	assert.InDelta(t, 5, pt.Lon, 1e-9)
	assert.InDelta(t, 5, pt.Lat, 1e-9)
}

func TestInteriorPoint_FallsBackToBoundingBoxCenter(t *testing.T) {
	// The outer ring's centroid (~4.57, ~4.10) lies in the hole; the bbox
	// center (6, 6) does not.
	poly := Polygon{
		Ring{c(0, 0), c(12, 0), c(12, 2), c(0, 12)},
		square(3.5, 3, 5.5, 5),
	}

	pt, ok := InteriorPoint(poly)
	require.True(t, ok)
	assert.InDelta(t, 6, pt.Lon, 1e-9)
	assert.InDelta(t, 6, pt.Lat, 1e-9)
	assert.True(t, PointInPolygon(pt, poly))
}

func TestInteriorPoint_FallsBackToFirstVertex(t *testing.T) {
	// Centroid (5, ~4.42) and bbox center (5, 5) both fall in the notch.
	u := Polygon{Ring{c(0, 0), c(10, 0), c(10, 10), c(7, 10), c(7, 3), c(3, 3), c(3, 10), c(0, 10)}}

	pt, ok := InteriorPoint(u)
	require.True(t, ok)
	assert.Equal(t, c(0, 0), pt)
}

func TestInteriorPoint_AlwaysInsideOrFirstVertex(t *testing.T) {
	polys := []Polygon{
		{square(0, 0, 1, 1)},
		{Ring{c(0, 0), c(10, 0), c(10, 2), c(2, 2), c(2, 10), c(0, 10)}},
		{square(-5, -5, 5, 5), square(-1, -1, 1, 1)},
		{Ring{c(135, 35), c(140, 35), c(140, 40), c(139.5, 36), c(135, 40)}},
	}
	for i, p := range polys {
		pt, ok := InteriorPoint(p)
		require.True(t, ok, "polygon %d", i)
		assert.True(t, PointInPolygon(pt, p) || pt == p.Outer()[0], "polygon %d -> %+v", i, pt)
	}

	_, ok := InteriorPoint(Polygon{})
	assert.False(t, ok)
}

func TestArea(t *testing.T) {
	assert.InDelta(t, 96, Area(Polygon{square(0, 0, 10, 10), square(4, 4, 6, 6)}), 1e-9)
	assert.Zero(t, Area(nil))
}

func TestParseGeometry(t *testing.T) {
	raw := json.RawMessage(`{"type":"MultiPolygon","coordinates":[
		[[[139.0,35.0],[140.0,35.0],[140.0,36.0],[139.0,35.0]]],
		[[[130.0,33.0],[131.0,33.0],[131.0,34.0],[130.0,33.0]],[[130.2,33.1],[130.3,33.1],[130.3,33.2],[130.2,33.1]]]
	]}`)

	polys, err := ParseGeometry(raw)
	require.NoError(t, err)
	require.Len(t, polys, 2)
	assert.Equal(t, Coordinate{Lat: 35, Lon: 139}, polys[0].Outer()[0])
	assert.Len(t, polys[1].Holes(), 1)

	_, err = ParseGeometry(json.RawMessage(`{"type":"Point","coordinates":[1,2]}`))
	assert.ErrorIs(t, err, ErrUnsupportedGeometry)

	_, err = ParseGeometry(json.RawMessage(`null`))
	assert.ErrorIs(t, err, ErrEmptyGeometry)

	_, err = ParseGeometry(json.RawMessage(`{"type":"Polygon","coordinates":[[[1]]]}`))
	assert.Error(t, err)
}

func TestParseGeometry_DropsDegenerateRings(t *testing.T) {
	polys, err := ParseGeometry(json.RawMessage(`{"type":"Polygon","coordinates":[
		[[0,0],[4,0],[4,4],[0,4],[0,0]],[],[[1,1],[2,2],[1,1]]
	]}`))
	require.NoError(t, err)
	require.Len(t, polys, 1)
	assert.Empty(t, polys[0].Holes())
	assert.Equal(t, "MULTIPOLYGON(((0 0,4 0,4 4,0 4,0 0)))", MultiPolygonWKT(polys))

	polys, err = ParseGeometry(json.RawMessage(`{"type":"MultiPolygon","coordinates":[
		[[[0,0],[1,1],[0,0]]],
		[[[5,5],[6,5],[6,6],[5,5]]]
	]}`))
	require.NoError(t, err)
	require.Len(t, polys, 1)
	assert.Equal(t, Coordinate{Lat: 5, Lon: 5}, polys[0].Outer()[0])

	_, err = ParseGeometry(json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[1,1]]]}`))
	assert.ErrorIs(t, err, ErrEmptyGeometry)
}

func TestDecodeFeatureCollection(t *testing.T) {
	body := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"shapeName":" Tokyo ","shapeID":"JPN-ADM1-1"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
		{"type":"Feature","properties":{"shapeName":""},"geometry":null}
	]}`

	features, err := DecodeFeatureCollection(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Equal(t, "Tokyo", features[0].StringProperty("shapeName"))
	assert.Equal(t, "", features[1].StringProperty("shapeName", "name"))

	_, err = DecodeFeatureCollection(strings.NewReader(`{"type":"Topology"}`))
	assert.Error(t, err)
}

func TestMultiPolygonWKT(t *testing.T) {
	wkt := MultiPolygonWKT([]Polygon{{Ring{c(0, 0), c(1, 0), c(1, 1)}}})
	assert.Equal(t, "MULTIPOLYGON(((0 0,1 0,1 1,0 0)))", wkt)

	wkt = MultiPolygonWKT([]Polygon{{square(0, 0, 2, 2).Closed(), square(0.5, 0.5, 1, 1)}})
	assert.Equal(t, "MULTIPOLYGON(((0 0,2 0,2 2,0 2,0 0),(0.5 0.5,1 0.5,1 1,0.5 1,0.5 0.5)))", wkt)

	wkt = MultiPolygonWKT([]Polygon{{square(0, 0, 4, 4), Ring{}, Ring{c(1, 1), c(1, 1), c(2, 2)}}})
	assert.Equal(t, "MULTIPOLYGON(((0 0,4 0,4 4,0 4,0 0)))", wkt)

	wkt = MultiPolygonWKT([]Polygon{{Ring{c(0, 0), c(1, 1)}}, {square(5, 5, 6, 6)}})
	assert.Equal(t, "MULTIPOLYGON(((5 5,6 5,6 6,5 6,5 5)))", wkt)

	assert.Equal(t, "", MultiPolygonWKT(nil))
	assert.Equal(t, "", MultiPolygonWKT([]Polygon{{Ring{c(0, 0)}}}))
}
