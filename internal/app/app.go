package app

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/EmpoweredVote/EV-Geo/internal/areas"
	"github.com/EmpoweredVote/EV-Geo/internal/batch"
	"github.com/EmpoweredVote/EV-Geo/internal/config"
	"github.com/EmpoweredVote/EV-Geo/internal/countries"
	"github.com/EmpoweredVote/EV-Geo/internal/enrichment"
	"github.com/EmpoweredVote/EV-Geo/internal/ingest"
	"github.com/EmpoweredVote/EV-Geo/internal/upstream/gemini"
	"github.com/EmpoweredVote/EV-Geo/internal/upstream/geoboundaries"
	"github.com/EmpoweredVote/EV-Geo/internal/upstream/overpass"
	"github.com/EmpoweredVote/EV-Geo/internal/upstream/wikipedia"
)

// Services are the runtime components shared by the server and the CLI.
type Services struct {
	Store        *areas.Store
	Countries    *countries.Registry
	Enricher     batch.Enricher
	Ingester     batch.Ingestor
	Orchestrator *batch.Orchestrator

	redis *redis.Client
}

// OpenRedis connects to Redis when an address is configured. It returns nil
// when none is set or the server does not answer.
func OpenRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		log.Printf("[app] redis %s unavailable, using in-memory download cache: %v", cfg.RedisAddr, err)
		_ = rc.Close()
		return nil
	}
	log.Printf("[app] redis download cache at %s db=%d", cfg.RedisAddr, cfg.RedisDB)
	return rc
}

// NewServices wires the upstream clients, the enrichment engine and the
// ingester over store. Enrichment is left unconfigured without a model key.
func NewServices(cfg config.Config, store *areas.Store) *Services {
	s := &Services{Store: store, Countries: countries.Default()}

	var cache geoboundaries.Cache
	if s.redis = OpenRedis(cfg); s.redis != nil {
		cache = geoboundaries.NewRedisCache(s.redis)
	} else {
		cache = geoboundaries.NewMemoryCache()
	}

	gb := geoboundaries.NewClient(cfg.GeoBoundariesURL, cache)
	op := overpass.NewClient(cfg.OverpassEndpoint)
	wiki := wikipedia.NewClient(cfg.WikipediaTemplate)
	s.Ingester = ingest.NewIngester(gb, op, wiki, store, s.Countries)

	if cfg.GeminiAPIKey != "" {
		namer := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiEndpoint)
		s.Enricher = enrichment.NewEngine(store, namer, s.Countries)
	} else {
		log.Println("[app] GEMINI_API_KEY not set, enrichment disabled")
	}

	s.Orchestrator = batch.NewOrchestrator(s.Enricher, s.Ingester)
	return s
}

// Close releases the Redis connection, if any.
func (s *Services) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
}
