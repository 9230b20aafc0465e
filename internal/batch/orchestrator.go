package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/EmpoweredVote/EV-Geo/internal/enrichment"
	"github.com/EmpoweredVote/EV-Geo/internal/ingest"
	"github.com/EmpoweredVote/EV-Geo/internal/metrics"
	"github.com/EmpoweredVote/EV-Geo/internal/progress"
)

// Run kinds, used for job records and metrics.
const (
	KindEnrichment = "enrichment"
	KindIngestion  = "ingestion"
)

// Enricher runs name enrichment for one country.
type Enricher interface {
	Enrich(ctx context.Context, countryCode string, opts enrichment.Options, sink progress.Sink) enrichment.Outcome
}

// Ingestor runs boundary ingestion for one country.
type Ingestor interface {
	Ingest(ctx context.Context, countryCode string, opts ingest.Options, sink progress.Sink) ingest.Outcome
}

// CountryResult is the outcome of one country within a run.
type CountryResult struct {
	CountryCode string          `json:"countryCode"`
	Success     bool            `json:"success"`
	Error       string          `json:"error,omitempty"`
	Counts      progress.Counts `json:"counts"`
	ElapsedMs   int64           `json:"elapsedMs"`
}

// Result is the outcome of a multi-country run. Interrupted is set when the
// run stopped before visiting every country.
type Result struct {
	Countries    []CountryResult `json:"countries"`
	SuccessCount int             `json:"successCount"`
	FailCount    int             `json:"failCount"`
	ElapsedMs    int64           `json:"elapsedMs"`
	Interrupted  bool            `json:"interrupted,omitempty"`
}

// Orchestrator runs enrichment or ingestion over several countries, one
// at a time, relabelling every per-country event.
type Orchestrator struct {
	enricher Enricher
	ingester Ingestor
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator. Either runner may be nil when
// the caller never starts that kind of run.
func NewOrchestrator(e Enricher, i Ingestor) *Orchestrator {
	return &Orchestrator{enricher: e, ingester: i, now: time.Now}
}

// countryFunc runs one country and reports its counts and top-level error.
type countryFunc func(ctx context.Context, code string, sink progress.Sink) (progress.Counts, error)

// RunEnrichment enriches every country in codes. A country succeeds when
// it finished without a top-level error and either nothing failed or at
// least one name was applied or validated.
func (o *Orchestrator) RunEnrichment(ctx context.Context, codes []string, opts enrichment.Options, sink progress.Sink) Result {
	if o.enricher == nil {
		return o.unavailable(ctx, KindEnrichment, codes, sink)
	}
	return o.run(ctx, KindEnrichment, codes, sink, func(ctx context.Context, code string, s progress.Sink) (progress.Counts, error) {
		out := o.enricher.Enrich(ctx, code, opts, s)
		if out.Err != nil {
			return out.Counts, out.Err
		}
		if !out.Counts.Succeeded() {
			return out.Counts, fmt.Errorf("%d of %d areas failed", out.Counts.Failed, out.Counts.Processed)
		}
		return out.Counts, nil
	})
}

// RunIngestion ingests every country in codes. A country succeeds when it
// finished without a top-level error.
func (o *Orchestrator) RunIngestion(ctx context.Context, codes []string, opts ingest.Options, sink progress.Sink) Result {
	if o.ingester == nil {
		return o.unavailable(ctx, KindIngestion, codes, sink)
	}
	return o.run(ctx, KindIngestion, codes, sink, func(ctx context.Context, code string, s progress.Sink) (progress.Counts, error) {
		out := o.ingester.Ingest(ctx, code, opts, s)
		return out.Counts, out.Err
	})
}

func (o *Orchestrator) unavailable(ctx context.Context, kind string, codes []string, sink progress.Sink) Result {
	return o.run(ctx, kind, codes, sink, func(context.Context, string, progress.Sink) (progress.Counts, error) {
		return progress.Counts{}, fmt.Errorf("%s is not configured", kind)
	})
}

func (o *Orchestrator) run(ctx context.Context, kind string, codes []string, sink progress.Sink, fn countryFunc) (res Result) {
	start := o.now()
	ctx, cancel := progress.Bind(ctx, sink)
	defer cancel()

	metrics.ActiveRuns.WithLabelValues(kind).Inc()
	defer metrics.ActiveRuns.WithLabelValues(kind).Dec()

	log.Printf("[batch] %s run over %d countries", kind, len(codes))

	for i, code := range codes {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		if err := sink.Send(ctx, progress.CountryStarted{CountryCode: code, CountryIndex: i, TotalCountries: len(codes)}); err != nil {
			res.Interrupted = true
			break
		}

		cr := o.runCountry(ctx, code, progress.Relabel{Sink: sink, CountryCode: code, CountryIndex: i}, fn)
		res.Countries = append(res.Countries, cr)
		if cr.Success {
			res.SuccessCount++
		} else {
			res.FailCount++
		}

		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		if err := sink.Send(ctx, progress.CountryCompleted{
			CountryCode:  code,
			CountryIndex: i,
			Success:      cr.Success,
			ErrorMessage: cr.Error,
			Counts:       cr.Counts,
			ElapsedMs:    cr.ElapsedMs,
		}); err != nil {
			res.Interrupted = true
			break
		}
	}

	res.ElapsedMs = o.now().Sub(start).Milliseconds()
	if res.Interrupted {
		log.Printf("[batch] %s run interrupted after %d of %d countries", kind, len(res.Countries), len(codes))
		return res
	}

	log.Printf("[batch] %s run finished success=%d failed=%d", kind, res.SuccessCount, res.FailCount)
	_ = sink.Send(ctx, progress.AllCompleted{SuccessCount: res.SuccessCount, FailCount: res.FailCount, ElapsedMs: res.ElapsedMs})
	return res
}

// runCountry isolates one country so that a panic or error only fails that
// country.
func (o *Orchestrator) runCountry(ctx context.Context, code string, sink progress.Sink, fn countryFunc) (cr CountryResult) {
	start := o.now()
	cr.CountryCode = code
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[batch] %s: panic: %v", code, r)
			cr.Success = false
			cr.Error = fmt.Sprintf("panic: %v", r)
		}
		cr.ElapsedMs = o.now().Sub(start).Milliseconds()
	}()

	counts, err := fn(ctx, code, sink)
	cr.Counts = counts
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("[batch] %s: %v", code, err)
		}
		cr.Error = err.Error()
		return cr
	}
	cr.Success = true
	return cr
}
