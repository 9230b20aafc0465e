package areas

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/EmpoweredVote/EV-Geo/internal/geo"
)

// Reader is the read side of the store used by the HTTP handlers.
type Reader interface {
	FetchAreaByID(ctx context.Context, id uuid.UUID) (*Area, error)
	FetchChildren(ctx context.Context, parentID uuid.UUID) ([]Area, error)
	FetchPolygons(ctx context.Context, id uuid.UUID) ([]geo.Polygon, error)
	FindAreasByPoint(ctx context.Context, pt geo.Coordinate) ([]Area, error)
}

// Handlers serves area lookups.
type Handlers struct {
	store Reader
}

func NewHandlers(store Reader) *Handlers {
	return &Handlers{store: store}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func boolParam(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// GetArea returns one area. children=true adds direct children and
// polygons=true adds the decoded geometry.
func (h *Handlers) GetArea(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}

	parsedID, err := uuid.Parse(id)
	if err != nil {
		http.Error(w, "Invalid id format", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	area, err := h.store.FetchAreaByID(ctx, parsedID)
	if err != nil {
		log.Printf("[areas] GetArea %s: %v", parsedID, err)
		http.Error(w, "Failed to load area", http.StatusInternalServerError)
		return
	}
	if area == nil {
		http.Error(w, "Area not found", http.StatusNotFound)
		return
	}

	if boolParam(r, "children") {
		children, err := h.store.FetchChildren(ctx, parsedID)
		if err != nil {
			log.Printf("[areas] GetArea %s children: %v", parsedID, err)
			http.Error(w, "Failed to load children", http.StatusInternalServerError)
			return
		}
		area.Children = children
		if area.Children == nil {
			area.Children = []Area{}
		}
	}

	if boolParam(r, "polygons") {
		polys, err := h.store.FetchPolygons(ctx, parsedID)
		if err != nil {
			log.Printf("[areas] GetArea %s polygons: %v", parsedID, err)
			http.Error(w, "Failed to load polygons", http.StatusInternalServerError)
			return
		}
		area.Polygons = polys
	}

	writeJSON(w, area)
}

// LookupPoint returns every area containing ?lat=&lon=, country first.
func (h *Handlers) LookupPoint(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		http.Error(w, "lat and lon must be valid coordinates", http.StatusBadRequest)
		return
	}

	found, err := h.store.FindAreasByPoint(r.Context(), geo.Coordinate{Lat: lat, Lon: lon})
	if err != nil {
		log.Printf("[areas] LookupPoint %.5f,%.5f: %v", lat, lon, err)
		http.Error(w, "Failed to look up areas", http.StatusInternalServerError)
		return
	}
	if found == nil {
		found = []Area{}
	}
	writeJSON(w, found)
}
