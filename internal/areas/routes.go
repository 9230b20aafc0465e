package areas

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes(h *Handlers) http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Get("/lookup", h.LookupPoint)
	r.Get("/{id}", h.GetArea)

	return r
}
