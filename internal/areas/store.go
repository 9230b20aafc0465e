package areas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/EmpoweredVote/EV-Geo/internal/geo"
)

var (
	// ErrParentMissing is returned when an area references a parent that
	// has not been stored.
	ErrParentMissing = errors.New("areas: parent area does not exist")

	ErrInvalidArea = errors.New("areas: invalid area")
)

const upsertBatchSize = 500

// Store is the PostGIS-backed area store.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open connection.
func NewStore(d *gorm.DB) *Store {
	return &Store{db: d}
}

// upsertClause updates by natural key. Localized names already present are
// kept; optional metadata is only replaced by non-null values.
func upsertClause() clause.OnConflict {
	return clause.OnConflict{
		Columns: []clause.Column{{Name: "adm_id"}, {Name: "country_code"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"level":         gorm.Expr("excluded.level"),
			"parent_id":     gorm.Expr("excluded.parent_id"),
			"name":          gorm.Expr("excluded.name"),
			"name_en":       gorm.Expr("COALESCE(areas.name_en, excluded.name_en)"),
			"name_ja":       gorm.Expr("COALESCE(areas.name_ja, excluded.name_ja)"),
			"iso_code":      gorm.Expr("COALESCE(excluded.iso_code, areas.iso_code)"),
			"wikipedia":     gorm.Expr("COALESCE(excluded.wikipedia, areas.wikipedia)"),
			"thumbnail_url": gorm.Expr("COALESCE(excluded.thumbnail_url, areas.thumbnail_url)"),
			"center_lat":    gorm.Expr("COALESCE(excluded.center_lat, areas.center_lat)"),
			"center_lon":    gorm.Expr("COALESCE(excluded.center_lon, areas.center_lon)"),
			"geometry":      gorm.Expr("COALESCE(excluded.geometry, areas.geometry)"),
			"updated_at":    gorm.Expr("excluded.updated_at"),
		}),
	}
}

func validate(a *Area) error {
	switch {
	case a.AdmID == "" || a.CountryCode == "" || a.Name == "":
		return fmt.Errorf("%w: adm_id, country_code and name are required", ErrInvalidArea)
	case a.Level < 0 || a.Level > 5:
		return fmt.Errorf("%w: level %d out of range", ErrInvalidArea, a.Level)
	case a.Level == 0 && a.ParentID != nil:
		return fmt.Errorf("%w: country %s cannot have a parent", ErrInvalidArea, a.AdmID)
	case a.Level > 0 && a.ParentID == nil:
		return fmt.Errorf("%w: %s at level %d has no parent", ErrInvalidArea, a.AdmID, a.Level)
	}
	return nil
}

// UpsertArea inserts or updates one area and returns its id.
func (s *Store) UpsertArea(ctx context.Context, a *Area) (uuid.UUID, error) {
	if err := validate(a); err != nil {
		return uuid.Nil, err
	}
	err := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(upsertClause(), clause.Returning{Columns: []clause.Column{{Name: "id"}}}).
		Create(a).Error
	if err != nil {
		return uuid.Nil, translate(err, "upsert area "+a.AdmID)
	}
	return a.ID, nil
}

// UpsertAreasBatch upserts areas in the given order and returns adm_id → id
// for every stored area. Callers pass parents before children. A repeated
// adm_id keeps its first occurrence.
func (s *Store) UpsertAreasBatch(ctx context.Context, areas []*Area) (map[string]uuid.UUID, error) {
	if len(areas) == 0 {
		return map[string]uuid.UUID{}, nil
	}

	type key struct{ country, adm string }
	seen := make(map[key]bool, len(areas))
	rows := make([]*Area, 0, len(areas))
	byCountry := make(map[string][]string)
	for _, a := range areas {
		if err := validate(a); err != nil {
			return nil, err
		}
		k := key{a.CountryCode, a.AdmID}
		if seen[k] {
			log.Printf("[areas] duplicate adm_id %s/%s in batch, keeping first", a.CountryCode, a.AdmID)
			continue
		}
		seen[k] = true
		rows = append(rows, a)
		byCountry[a.CountryCode] = append(byCountry[a.CountryCode], a.AdmID)
	}

	start := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).
			Clauses(upsertClause()).
			CreateInBatches(rows, upsertBatchSize).Error
	})
	if err != nil {
		return nil, translate(err, "upsert areas batch")
	}

	ids := make(map[string]uuid.UUID, len(rows))
	for country, admIDs := range byCountry {
		var found []struct {
			ID    uuid.UUID
			AdmID string
		}
		if err := s.db.WithContext(ctx).
			Model(&Area{}).
			Select("id", "adm_id").
			Where("country_code = ? AND adm_id = ANY(?)", country, pq.Array(admIDs)).
			Scan(&found).Error; err != nil {
			return nil, fmt.Errorf("resolve upserted ids: %w", err)
		}
		for _, f := range found {
			ids[f.AdmID] = f.ID
		}
	}
	log.Printf("[areas] upserted %d records in %dms", len(rows), time.Since(start).Milliseconds())
	return ids, nil
}

// FetchAreasWithMissingNames returns areas of a country lacking an English
// or Japanese name, optionally at one level only.
func (s *Store) FetchAreasWithMissingNames(ctx context.Context, countryCode string, level *int) ([]Area, error) {
	q := s.db.WithContext(ctx).
		Select(readColumns).
		Where("country_code = ?", countryCode).
		Where("(name_en IS NULL OR name_ja IS NULL)")
	if level != nil {
		q = q.Where("level = ?", *level)
	}

	var out []Area
	if err := q.Order("level, name, adm_id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("fetch areas with missing names: %w", err)
	}
	return out, nil
}

// FetchAreaByID returns the area or nil when it does not exist.
func (s *Store) FetchAreaByID(ctx context.Context, id uuid.UUID) (*Area, error) {
	var a Area
	err := s.db.WithContext(ctx).Select(readColumns).Where("id = ?", id).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch area %s: %w", id, err)
	}
	return &a, nil
}

// FetchAreasByIDs loads many areas in one query. Missing ids are ignored.
func (s *Store) FetchAreasByIDs(ctx context.Context, ids []uuid.UUID) ([]Area, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}

	var out []Area
	if err := s.db.WithContext(ctx).
		Select(readColumns).
		Where("id = ANY(?::uuid[])", pq.Array(strs)).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("fetch areas by ids: %w", err)
	}
	return out, nil
}

// FetchChildren returns the direct children of an area ordered by name.
func (s *Store) FetchChildren(ctx context.Context, parentID uuid.UUID) ([]Area, error) {
	var out []Area
	if err := s.db.WithContext(ctx).
		Select(readColumns).
		Where("parent_id = ?", parentID).
		Order("name").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("fetch children of %s: %w", parentID, err)
	}
	return out, nil
}

// FindAreasByPoint performs a PostGIS point-in-polygon query and returns
// every stored area containing the coordinate, country first.
func (s *Store) FindAreasByPoint(ctx context.Context, pt geo.Coordinate) ([]Area, error) {
	var out []Area
	if err := s.db.WithContext(ctx).
		Select(readColumns).
		Where("ST_Contains(geometry, ST_SetSRID(ST_MakePoint(?, ?), 4326))", pt.Lon, pt.Lat).
		Order("level").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("area lookup at %.5f,%.5f: %w", pt.Lat, pt.Lon, err)
	}
	return out, nil
}

// UpdateAreaNamesBatch writes every update in one transaction and returns
// the number of rows touched. Existing names are never overwritten.
func (s *Store) UpdateAreaNamesBatch(ctx context.Context, updates []NameUpdate) (int64, error) {
	var touched int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			if u.Empty() {
				continue
			}
			set := map[string]interface{}{}
			if u.NameEn != nil {
				set["name_en"] = gorm.Expr("COALESCE(name_en, ?)", *u.NameEn)
			}
			if u.NameJa != nil {
				set["name_ja"] = gorm.Expr("COALESCE(name_ja, ?)", *u.NameJa)
			}
			res := tx.Model(&Area{}).Where("id = ?", u.ID).Updates(set)
			if res.Error != nil {
				return res.Error
			}
			touched += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("update area names: %w", err)
	}
	return touched, nil
}

// FetchPolygons reads an area's stored geometry. An area without geometry
// yields nil.
func (s *Store) FetchPolygons(ctx context.Context, id uuid.UUID) ([]geo.Polygon, error) {
	var raw sql.NullString
	err := s.db.WithContext(ctx).
		Raw(`SELECT ST_AsGeoJSON(geometry) FROM geo.areas WHERE id = ?`, id).
		Row().Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch polygons %s: %w", id, err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	polys, err := geo.ParseGeometry([]byte(raw.String))
	if errors.Is(err, geo.ErrEmptyGeometry) {
		return nil, nil
	}
	return polys, err
}

// translate maps Postgres errors onto package errors.
func translate(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			return fmt.Errorf("%s: %w (%s)", op, ErrParentMissing, pgErr.ConstraintName)
		case "23514", "22023":
			return fmt.Errorf("%s: %w: %s", op, ErrInvalidArea, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
