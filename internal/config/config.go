package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/EmpoweredVote/EV-Geo/internal/middleware"
	"github.com/EmpoweredVote/EV-Geo/internal/upstream/gemini"
	"github.com/EmpoweredVote/EV-Geo/internal/upstream/geoboundaries"
	"github.com/EmpoweredVote/EV-Geo/internal/upstream/overpass"
	"github.com/EmpoweredVote/EV-Geo/internal/upstream/wikipedia"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingGeminiKey   = errors.New("GEMINI_API_KEY is required for enrichment")
	ErrInvalidRedisDB     = errors.New("REDIS_DB must be a non-negative integer")
)

// Config holds the service configuration.
type Config struct {
	DatabaseURL string
	DBVerbose   bool
	Port        string

	GeminiAPIKey   string
	GeminiModel    string
	GeminiEndpoint string

	GeoBoundariesURL  string
	OverpassEndpoint  string
	WikipediaTemplate string

	// Redis caches boundary downloads. Empty RedisAddr uses an in-memory cache.
	RedisAddr string
	RedisPass string
	RedisDB   int

	CronAPIKeyHash string
	AllowedOrigins []string
}

// LoadFromEnv loads configuration from environment variables.
//
// Environment variables:
//   - DATABASE_URL: Postgres DSN (required)
//   - DB_VERBOSE: log every SQL statement (default: false)
//   - PORT: listen port (default: 5050)
//   - GEMINI_API_KEY: key for the naming model (required for enrichment)
//   - GEMINI_MODEL: model name (default: gemini-2.0-flash)
//   - GEMINI_ENDPOINT, GEOBOUNDARIES_URL, OVERPASS_ENDPOINT, WIKIPEDIA_ENDPOINT: upstream overrides
//   - REDIS_ADDR, REDIS_PASS, REDIS_DB: download cache (default: in-memory)
//   - CRON_API_KEY_HASH: bcrypt hash of the admin/cron API key
//   - ALLOWED_ORIGINS: comma-separated CORS origins
func LoadFromEnv() (Config, error) {
	c := Config{
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Port:              envOr("PORT", "5050"),
		GeminiAPIKey:      strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:       envOr("GEMINI_MODEL", gemini.DefaultModel),
		GeminiEndpoint:    envOr("GEMINI_ENDPOINT", gemini.DefaultEndpoint),
		GeoBoundariesURL:  envOr("GEOBOUNDARIES_URL", geoboundaries.DefaultBaseURL),
		OverpassEndpoint:  envOr("OVERPASS_ENDPOINT", overpass.DefaultEndpoint),
		WikipediaTemplate: envOr("WIKIPEDIA_ENDPOINT", wikipedia.DefaultEndpointTemplate),
		RedisAddr:         strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPass:         os.Getenv("REDIS_PASS"),
		CronAPIKeyHash:    strings.TrimSpace(os.Getenv("CRON_API_KEY_HASH")),
		AllowedOrigins:    middleware.DefaultOrigins,
	}

	c.DBVerbose, _ = strconv.ParseBool(os.Getenv("DB_VERBOSE"))

	if v := strings.TrimSpace(os.Getenv("REDIS_DB")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c, fmt.Errorf("%w: %q", ErrInvalidRedisDB, v)
		}
		c.RedisDB = n
	}

	if v := os.Getenv("ALLOWED_ORIGINS"); strings.TrimSpace(v) != "" {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	return c, nil
}

// Validate checks what every entrypoint needs.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	return nil
}

// ValidateEnrichment additionally requires the naming model key.
func (c Config) ValidateEnrichment() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.GeminiAPIKey == "" {
		return ErrMissingGeminiKey
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
