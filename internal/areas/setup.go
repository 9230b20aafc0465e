package areas

import (
	"log"

	"github.com/EmpoweredVote/EV-Geo/internal/db"
)

// Init prepares the geo schema and returns a store over db.DB.
func Init() *Store {
	if err := db.EnsureSchema(db.DB, "geo"); err != nil {
		log.Fatal("Failed to ensure schema geo: ", err)
	}

	if err := db.DB.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		log.Fatal("Failed to enable uuid-ossp extension:", err)
	}
	if err := db.DB.Exec(`CREATE EXTENSION IF NOT EXISTS postgis`).Error; err != nil {
		log.Fatal("Failed to enable postgis extension:", err)
	}

	if err := db.DB.AutoMigrate(&Area{}); err != nil {
		log.Fatal("Failed to auto-migrate tables", err)
	}

	// Spatial index for containment queries
	if err := db.DB.Exec(`
        CREATE INDEX IF NOT EXISTS areas_geometry_gist
        ON geo.areas USING GIST (geometry);
    `).Error; err != nil {
		log.Fatal("Failed to create areas_geometry_gist", err)
	}

	// Partial index for the enrichment scan
	if err := db.DB.Exec(`
        CREATE INDEX IF NOT EXISTS areas_missing_names
        ON geo.areas (country_code, level)
        WHERE name_en IS NULL OR name_ja IS NULL;
    `).Error; err != nil {
		log.Fatal("Failed to create areas_missing_names", err)
	}

	log.Printf("[areas] schema ready")
	return NewStore(db.DB)
}
