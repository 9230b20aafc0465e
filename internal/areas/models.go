package areas

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/EmpoweredVote/EV-Geo/internal/geo"
)

// Area is one administrative area at any level, from country (0) down.
// AdmID + CountryCode is the natural key used by upserts.
type Area struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	AdmID        string     `gorm:"size:100;not null;uniqueIndex:areas_adm_country_unique" json:"adm_id"`
	CountryCode  string     `gorm:"size:2;not null;uniqueIndex:areas_adm_country_unique;index" json:"country_code"`
	Level        int        `gorm:"not null;index" json:"level"`
	ParentID     *uuid.UUID `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	Name         string     `gorm:"not null" json:"name"`
	NameEn       *string    `json:"name_en"`
	NameJa       *string    `json:"name_ja"`
	ISOCode      *string    `gorm:"size:20" json:"iso_code,omitempty"`
	Wikipedia    *string    `json:"wikipedia,omitempty"`
	ThumbnailURL *string    `json:"thumbnail_url,omitempty"`
	CenterLat    *float64   `json:"center_lat,omitempty"`
	CenterLon    *float64   `json:"center_lon,omitempty"`

	// Stored as PostGIS MULTIPOLYGON in WGS84 (SRID 4326). Read back
	// through FetchPolygons.
	Geometry Geometry `gorm:"type:geometry(MultiPolygon,4326)" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Parent *Area `gorm:"foreignKey:ParentID;references:ID;constraint:OnDelete:CASCADE" json:"-"`

	// Populated only on request, never persisted.
	Polygons []geo.Polygon `gorm:"-" json:"polygons,omitempty"`
	Children []Area        `gorm:"-" json:"children,omitempty"`
}

func (Area) TableName() string {
	return "geo.areas"
}

// NameUpdate is a partial name write. Nil fields are left alone, and a
// non-nil field never replaces an existing value.
type NameUpdate struct {
	ID     uuid.UUID
	NameEn *string
	NameJa *string
}

// Empty reports whether u writes nothing.
func (u NameUpdate) Empty() bool {
	return u.NameEn == nil && u.NameJa == nil
}

// Geometry holds polygons on the way into PostGIS. The column is written
// from WKT and never scanned back; use FetchPolygons to read shapes.
type Geometry struct {
	Polygons []geo.Polygon
}

// GormValue writes the polygons as a MultiPolygon, or NULL when empty.
func (g Geometry) GormValue(ctx context.Context, db *gorm.DB) clause.Expr {
	wkt := geo.MultiPolygonWKT(g.Polygons)
	if wkt == "" {
		return clause.Expr{SQL: "NULL"}
	}
	return clause.Expr{SQL: "ST_Multi(ST_GeomFromText(?, 4326))", Vars: []interface{}{wkt}}
}

// Scan discards the stored value.
func (g *Geometry) Scan(value interface{}) error {
	g.Polygons = nil
	return nil
}

// readColumns are the columns loaded by every read, leaving out geometry.
var readColumns = []string{
	"id", "adm_id", "country_code", "level", "parent_id", "name", "name_en", "name_ja",
	"iso_code", "wikipedia", "thumbnail_url", "center_lat", "center_lon", "created_at", "updated_at",
}

// StrPtr returns nil for an empty string.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
