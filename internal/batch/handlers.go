package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/EmpoweredVote/EV-Geo/internal/countries"
	"github.com/EmpoweredVote/EV-Geo/internal/enrichment"
	"github.com/EmpoweredVote/EV-Geo/internal/ingest"
	"github.com/EmpoweredVote/EV-Geo/internal/progress"
)

const maxBatchSize = 50

// Handlers serves the admin streaming endpoints, background jobs and the
// cron summary.
type Handlers struct {
	orch      *Orchestrator
	enricher  Enricher
	ingester  Ingestor
	countries *countries.Registry
	jobs      *Jobs
}

// NewHandlers wires handlers. A nil registry uses the embedded default.
func NewHandlers(orch *Orchestrator, e Enricher, i Ingestor, registry *countries.Registry, jobs *Jobs) *Handlers {
	if registry == nil {
		registry = countries.Default()
	}
	if jobs == nil {
		jobs = NewJobs()
	}
	return &Handlers{orch: orch, enricher: e, ingester: i, countries: registry, jobs: jobs}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// enrichOptions reads batchSize, dryRun and level from the query string.
func enrichOptions(r *http.Request) (enrichment.Options, error) {
	q := r.URL.Query()
	opts := enrichment.Options{BatchSize: enrichment.DefaultBatchSize}

	if v := q.Get("batchSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxBatchSize {
			return opts, fmt.Errorf("batchSize must be between 1 and %d", maxBatchSize)
		}
		opts.BatchSize = n
	}
	if v := q.Get("dryRun"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errors.New("dryRun must be a boolean")
		}
		opts.DryRun = b
	}
	if v := q.Get("level"); v != "" && v != "all" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 5 {
			return opts, errors.New("level must be between 0 and 5")
		}
		opts.Level = &n
	}
	return opts, nil
}

// ingestOptions reads tags (default true), thumbnails and simplified.
func ingestOptions(r *http.Request) (ingest.Options, error) {
	q := r.URL.Query()
	opts := ingest.Options{WithTags: true}
	for name, dst := range map[string]*bool{
		"tags":       &opts.WithTags,
		"thumbnails": &opts.WithThumbnails,
		"simplified": &opts.Simplified,
	} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("%s must be a boolean", name)
		}
		*dst = b
	}
	return opts, nil
}

// target resolves the {country} path parameter. "all" selects every
// supported country.
func (h *Handlers) target(r *http.Request) (codes []string, all bool, err error) {
	param := strings.TrimSpace(chi.URLParam(r, "country"))
	if strings.EqualFold(param, "all") {
		return h.countries.Codes(), true, nil
	}
	codes, err = h.countries.Resolve([]string{param}, false)
	if err == nil && len(codes) == 0 {
		err = errors.New("missing country parameter")
	}
	return codes, false, err
}

// StreamEnrichment handles GET /admin/enrich/{country} and
// GET /admin/enrich/all as a server-sent event stream.
func (h *Handlers) StreamEnrichment(w http.ResponseWriter, r *http.Request) {
	opts, err := enrichOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	codes, all, err := h.target(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.enricher == nil {
		http.Error(w, "Enrichment is not configured", http.StatusServiceUnavailable)
		return
	}

	sink, ok := newSSESink(w, r)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	log.Printf("[batch] enrichment stream countries=%v batchSize=%d dryRun=%v", codes, opts.BatchSize, opts.DryRun)
	if all {
		h.orch.RunEnrichment(r.Context(), codes, opts, sink)
		return
	}
	h.enricher.Enrich(r.Context(), codes[0], opts, sink)
}

// StreamIngestion handles GET /admin/ingest/{country} and
// GET /admin/ingest/all as a server-sent event stream.
func (h *Handlers) StreamIngestion(w http.ResponseWriter, r *http.Request) {
	opts, err := ingestOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	codes, all, err := h.target(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.ingester == nil {
		http.Error(w, "Ingestion is not configured", http.StatusServiceUnavailable)
		return
	}

	sink, ok := newSSESink(w, r)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	log.Printf("[batch] ingestion stream countries=%v tags=%v thumbnails=%v", codes, opts.WithTags, opts.WithThumbnails)
	if all {
		h.orch.RunIngestion(r.Context(), codes, opts, sink)
		return
	}
	h.ingester.Ingest(r.Context(), codes[0], opts, sink)
}

// runRequest is the body of job and cron requests.
type runRequest struct {
	Countries []string `json:"countries"`
	All       bool     `json:"all"`
	BatchSize int      `json:"batchSize"`
	DryRun    bool     `json:"dryRun"`
	Level     *int     `json:"level"`

	WithTags       *bool `json:"tags"`
	WithThumbnails bool  `json:"thumbnails"`
}

// decodeRunRequest reads an optional JSON body. An empty body or an empty
// country list selects every country.
func (h *Handlers) decodeRunRequest(r *http.Request) (runRequest, []string, error) {
	var body runRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return body, nil, errors.New("invalid request body")
		}
	}
	if body.BatchSize == 0 {
		body.BatchSize = enrichment.DefaultBatchSize
	}
	if body.BatchSize < 1 || body.BatchSize > maxBatchSize {
		return body, nil, fmt.Errorf("batchSize must be between 1 and %d", maxBatchSize)
	}
	if body.Level != nil && (*body.Level < 0 || *body.Level > 5) {
		return body, nil, errors.New("level must be between 0 and 5")
	}
	codes, err := h.countries.Resolve(body.Countries, body.All || len(body.Countries) == 0)
	return body, codes, err
}

func (b runRequest) enrichOptions() enrichment.Options {
	return enrichment.Options{BatchSize: b.BatchSize, DryRun: b.DryRun, Level: b.Level}
}

func (b runRequest) ingestOptions() ingest.Options {
	opts := ingest.Options{WithTags: true, WithThumbnails: b.WithThumbnails}
	if b.WithTags != nil {
		opts.WithTags = *b.WithTags
	}
	return opts
}

// StartEnrichmentJob handles POST /admin/jobs/enrich.
// Accepts {"countries": ["JP", ...], "batchSize": 10, "dryRun": false}.
func (h *Handlers) StartEnrichmentJob(w http.ResponseWriter, r *http.Request) {
	body, codes, err := h.decodeRunRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts := body.enrichOptions()
	job := h.jobs.Start(KindEnrichment, codes, func(ctx context.Context, sink progress.Sink) Result {
		return h.orch.RunEnrichment(ctx, codes, opts, sink)
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": job.Status})
}

// StartIngestionJob handles POST /admin/jobs/ingest.
func (h *Handlers) StartIngestionJob(w http.ResponseWriter, r *http.Request) {
	body, codes, err := h.decodeRunRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts := body.ingestOptions()
	job := h.jobs.Start(KindIngestion, codes, func(ctx context.Context, sink progress.Sink) Result {
		return h.orch.RunIngestion(ctx, codes, opts, sink)
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": job.Status})
}

// GetJob handles GET /admin/jobs/{jobID}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.jobs.Get(chi.URLParam(r, "jobID"))
	if !ok {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /admin/jobs.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.jobs.List())
}

// CronEnrich handles POST /cron/enrich: a blocking run over the requested
// countries (default all) that answers with the summary.
func (h *Handlers) CronEnrich(w http.ResponseWriter, r *http.Request) {
	body, codes, err := h.decodeRunRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Printf("[cron] enrichment over %d countries", len(codes))
	summary := h.orch.EnrichmentSummary(r.Context(), codes, body.enrichOptions())
	writeJSON(w, http.StatusOK, summary)
}
