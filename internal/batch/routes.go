package batch

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupAdminRoutes mounts the streaming and job endpoints.
func SetupAdminRoutes(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Get("/enrich/{country}", h.StreamEnrichment)
	r.Get("/ingest/{country}", h.StreamIngestion)

	r.Get("/jobs", h.ListJobs)
	r.Post("/jobs/enrich", h.StartEnrichmentJob)
	r.Post("/jobs/ingest", h.StartIngestionJob)
	r.Get("/jobs/{jobID}", h.GetJob)

	return r
}

// SetupCronRoutes mounts the scheduled endpoints.
func SetupCronRoutes(h *Handlers) http.Handler {
	r := chi.NewRouter()
	r.Post("/enrich", h.CronEnrich)
	return r
}
