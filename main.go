package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/EmpoweredVote/EV-Geo/internal/app"
	"github.com/EmpoweredVote/EV-Geo/internal/areas"
	"github.com/EmpoweredVote/EV-Geo/internal/batch"
	"github.com/EmpoweredVote/EV-Geo/internal/config"
	"github.com/EmpoweredVote/EV-Geo/internal/db"
	"github.com/EmpoweredVote/EV-Geo/internal/metrics"
	"github.com/EmpoweredVote/EV-Geo/internal/middleware"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	response := "Server is up!"
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, response)
}

func main() {
	_ = godotenv.Load(".env.local")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	db.Connect(cfg.DatabaseURL, cfg.DBVerbose)
	store := areas.Init()

	services := app.NewServices(cfg, store)
	defer services.Close()

	if cfg.CronAPIKeyHash == "" {
		log.Println("[main] CRON_API_KEY_HASH not set, admin and cron routes will reject every request")
	}
	handlers := batch.NewHandlers(services.Orchestrator, services.Enricher, services.Ingester, services.Countries, batch.NewJobs())
	apiKey := middleware.APIKeyMiddleware(cfg.CronAPIKeyHash)

	r := chi.NewRouter()
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(metrics.Middleware)
	r.Get("/", RootHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/areas", areas.SetupRoutes(areas.NewHandlers(store)))
	r.Group(func(r chi.Router) {
		r.Use(apiKey)
		r.Mount("/admin", batch.SetupAdminRoutes(handlers))
		r.Mount("/cron", batch.SetupCronRoutes(handlers))
	})

	fmt.Printf("Server listening on port :%s...\n", cfg.Port)

	if err := http.ListenAndServe("0.0.0.0:"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}
