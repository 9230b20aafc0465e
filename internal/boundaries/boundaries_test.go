package boundaries

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmpoweredVote/EV-Geo/internal/geo"
)

func squareGeometry(x0, y0, x1, y1 float64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"type":"Polygon","coordinates":[[[%g,%g],[%g,%g],[%g,%g],[%g,%g],[%g,%g]]]}`,
		x0, y0, x1, y0, x1, y1, x0, y1, x0, y0))
}

func feature(id, name string, geom json.RawMessage) geo.Feature {
	props := map[string]any{}
	if id != "" {
		props["shapeID"] = id
	}
	if name != "" {
		props["shapeName"] = name
	}
	props["shapeISO"] = "JP-" + id
	return geo.Feature{Properties: props, Geometry: geom}
}

func TestMapAdm1Regions_SkipsIncompleteShapes(t *testing.T) {
	features := []geo.Feature{
		feature("A", "Alpha", squareGeometry(0, 0, 10, 10)),
		feature("", "No ID", squareGeometry(0, 0, 1, 1)),
		feature("C", "", squareGeometry(0, 0, 1, 1)),
		feature("D", "Pointy", json.RawMessage(`{"type":"Point","coordinates":[1,1]}`)),
		feature("E", "Nothing", json.RawMessage(`null`)),
	}

	regions := MapAdm1Regions(features)
	require.Len(t, regions, 1)
	assert.Equal(t, "A", regions[0].ID)
	assert.Equal(t, "Alpha", regions[0].Name)
	assert.Equal(t, "JP-A", regions[0].ISOCode)
	require.Len(t, regions[0].BBoxes, 1)
	require.NotNil(t, regions[0].Center)
	assert.InDelta(t, 5, regions[0].Center.Lat, 1e-9)
}

func TestMapAdm2Regions_InteriorPointPrefersLargestPolygon(t *testing.T) {
	geom := json.RawMessage(`{"type":"MultiPolygon","coordinates":[
		[[[50,50],[51,50],[51,51],[50,51],[50,50]]],
		[[[0,0],[10,0],[10,10],[0,10],[0,0]]]
	]}`)

	regions := MapAdm2Regions([]geo.Feature{feature("X", "Island town", geom)})
	require.Len(t, regions, 1)
	assert.InDelta(t, 5, regions[0].InteriorPoint.Lon, 1e-9)
	assert.InDelta(t, 5, regions[0].InteriorPoint.Lat, 1e-9)
	assert.True(t, regions[0].Contains(regions[0].InteriorPoint))
	assert.True(t, regions[0].Contains(geo.Coordinate{Lat: 50.5, Lon: 50.5}))
}

func TestRegionContains_BoundingBoxFilter(t *testing.T) {
	regions := MapAdm1Regions([]geo.Feature{feature("A", "Alpha", squareGeometry(0, 0, 10, 10))})
	require.Len(t, regions, 1)

	assert.True(t, regions[0].Contains(geo.Coordinate{Lat: 10, Lon: 10}))
	assert.False(t, regions[0].Contains(geo.Coordinate{Lat: 10.0001, Lon: 5}))
}

func TestLinkChildren(t *testing.T) {
	adm1s := MapAdm1Regions([]geo.Feature{
		feature("W", "West", squareGeometry(0, 0, 10, 10)),
		feature("E", "East", squareGeometry(10, 0, 20, 10)),
	})
	adm2s := MapAdm2Regions([]geo.Feature{
		feature("w1", "West One", squareGeometry(1, 1, 3, 3)),
		feature("e1", "East One", squareGeometry(12, 2, 14, 4)),
		feature("w2", "West Two", squareGeometry(5, 5, 9, 9)),
		feature("x1", "Offshore", squareGeometry(40, 40, 41, 41)),
	})
	require.Len(t, adm2s, 4)

	unmatched := LinkChildren(adm1s, adm2s)

	require.Len(t, unmatched, 1)
	assert.Equal(t, "x1", unmatched[0].ID)

	require.Len(t, adm1s[0].Children, 2)
	assert.Equal(t, "w1", adm1s[0].Children[0].ID)
	assert.Equal(t, "w2", adm1s[0].Children[1].ID)
	require.Len(t, adm1s[1].Children, 1)
	assert.Equal(t, "e1", adm1s[1].Children[0].ID)
}

func TestLinkChildren_SharedEdgeGoesToFirstParent(t *testing.T) {
	adm1s := MapAdm1Regions([]geo.Feature{
		feature("W", "West", squareGeometry(0, 0, 10, 10)),
		feature("E", "East", squareGeometry(10, 0, 20, 10)),
	})
	// Interior point (10, 5) sits on the shared border.
	adm2s := MapAdm2Regions([]geo.Feature{feature("b", "Border", squareGeometry(9, 4, 11, 6))})
	require.Len(t, adm2s, 1)

	LinkChildren(adm1s, adm2s)

	assert.Len(t, adm1s[0].Children, 1)
	assert.Empty(t, adm1s[1].Children)
}

func TestMatchTagQueryResults(t *testing.T) {
	adm1s := MapAdm1Regions([]geo.Feature{
		feature("W", "West", squareGeometry(0, 0, 10, 10)),
		feature("E", "East", squareGeometry(10, 0, 20, 10)),
		feature("N", "North", squareGeometry(0, 20, 10, 30)),
	})

	elements := []TaggedElement{
		{ID: 1, Center: geo.Coordinate{Lat: 5, Lon: 5}, Tags: map[string]string{"name:en": "West"}},
		{ID: 2, Center: geo.Coordinate{Lat: 6, Lon: 6}, Tags: map[string]string{"name:en": "Also west"}},
		{ID: 3, Center: geo.Coordinate{Lat: 5, Lon: 15}, Tags: map[string]string{"name:en": "East"}},
		{ID: 4, Center: geo.Coordinate{Lat: -50, Lon: -50}, Tags: map[string]string{"name:en": "Nowhere"}},
	}

	matched := MatchTagQueryResults(Adm1Base(adm1s), elements)

	require.Len(t, matched, 2)
	assert.Equal(t, int64(1), matched["W"].ID, "first match is never overwritten")
	assert.Equal(t, int64(3), matched["E"].ID)
	_, ok := matched["N"]
	assert.False(t, ok)
}

func TestTaggedElementTag(t *testing.T) {
	el := TaggedElement{Tags: map[string]string{"name:ja": "", "name": "東京都"}}
	assert.Equal(t, "東京都", el.Tag("name:ja", "name"))
	assert.Equal(t, "", el.Tag("wikipedia"))
}
