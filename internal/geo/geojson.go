package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrUnsupportedGeometry = errors.New("unsupported geometry type")
	ErrEmptyGeometry       = errors.New("geometry has no polygons")
)

// Feature is one GeoJSON feature with its geometry left undecoded. Mapping
// code decides whether a feature's geometry is worth parsing.
type Feature struct {
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// StringProperty returns the first non-empty string property among keys.
func (f Feature) StringProperty(keys ...string) string {
	for _, k := range keys {
		if v, ok := f.Properties[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// DecodeFeatureCollection reads a FeatureCollection (or a single Feature).
func DecodeFeatureCollection(r io.Reader) ([]Feature, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	var fc featureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	switch strings.ToLower(fc.Type) {
	case "featurecollection":
		return fc.Features, nil
	case "feature":
		var f Feature
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode geojson feature: %w", err)
		}
		return []Feature{f}, nil
	default:
		return nil, fmt.Errorf("decode geojson: unexpected type %q", fc.Type)
	}
}

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// ParseGeometry converts a GeoJSON Polygon or MultiPolygon into polygons.
// GeoJSON positions are [lon, lat].
func ParseGeometry(raw json.RawMessage) ([]Polygon, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrEmptyGeometry
	}

	var g geometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}

	var polys []Polygon
	switch strings.ToLower(g.Type) {
	case "polygon":
		var coords [][][]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("decode polygon coordinates: %w", err)
		}
		p, err := toPolygon(coords)
		if err != nil {
			return nil, err
		}
		polys = append(polys, p)
	case "multipolygon":
		var coords [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("decode multipolygon coordinates: %w", err)
		}
		for _, part := range coords {
			p, err := toPolygon(part)
			if err != nil {
				return nil, err
			}
			polys = append(polys, p)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, g.Type)
	}

	out := polys[:0]
	for _, p := range polys {
		if !p.IsEmpty() {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptyGeometry
	}
	return out, nil
}

// toPolygon converts GeoJSON rings. A degenerate outer ring yields an empty
// polygon; degenerate holes are dropped.
func toPolygon(rings [][][]float64) (Polygon, error) {
	p := make(Polygon, 0, len(rings))
	for i, ring := range rings {
		r := make(Ring, 0, len(ring))
		for _, pos := range ring {
			if len(pos) < 2 {
				return nil, fmt.Errorf("position has %d values, want at least 2", len(pos))
			}
			r = append(r, Coordinate{Lat: pos[1], Lon: pos[0]})
		}
		if r.IsDegenerate() {
			if i == 0 {
				return nil, nil
			}
			continue
		}
		p = append(p, r)
	}
	return p, nil
}
