package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evgeo",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evgeo",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"method", "path"})

	// Upstream metrics
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evgeo",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Total upstream calls by service and outcome",
	}, []string{"service", "outcome"})

	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evgeo",
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Duration of single upstream calls",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"service"})

	UpstreamRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evgeo",
		Subsystem: "upstream",
		Name:      "retries_total",
		Help:      "Total upstream retry attempts",
	}, []string{"service"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evgeo",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total boundary download cache hits",
	}, []string{"backend"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evgeo",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total boundary download cache misses",
	}, []string{"backend"})

	// Enrichment metrics
	EnrichmentDispositions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evgeo",
		Subsystem: "enrichment",
		Name:      "dispositions_total",
		Help:      "Naming results by country and disposition",
	}, []string{"country", "disposition"})

	EnrichmentBatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evgeo",
		Subsystem: "enrichment",
		Name:      "batch_duration_seconds",
		Help:      "Duration of one naming batch including persistence",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"country"})

	// Ingestion metrics
	AreasUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evgeo",
		Subsystem: "ingest",
		Name:      "areas_upserted_total",
		Help:      "Total areas upserted by country and level",
	}, []string{"country", "level"})

	RegionsUnlinked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evgeo",
		Subsystem: "ingest",
		Name:      "regions_unlinked_total",
		Help:      "Second-level regions with no containing parent",
	}, []string{"country"})

	ActiveRuns = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "evgeo",
		Subsystem: "batch",
		Name:      "active_runs",
		Help:      "Multi-country runs currently in progress",
	}, []string{"kind"})
)

// ObserveUpstream records one finished upstream call.
func ObserveUpstream(service string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	UpstreamRequests.WithLabelValues(service, outcome).Inc()
	UpstreamDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
}

// Middleware records request count and latency per route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
