package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/EmpoweredVote/EV-Geo/internal/areas"
	"github.com/EmpoweredVote/EV-Geo/internal/countries"
	"github.com/EmpoweredVote/EV-Geo/internal/metrics"
	"github.com/EmpoweredVote/EV-Geo/internal/progress"
	"github.com/EmpoweredVote/EV-Geo/internal/upstream/gemini"
)

// DefaultBatchSize is the number of areas sent to the model per call.
const DefaultBatchSize = 10

// Store is the slice of the area store the engine needs.
type Store interface {
	FetchAreasWithMissingNames(ctx context.Context, countryCode string, level *int) ([]areas.Area, error)
	FetchAreasByIDs(ctx context.Context, ids []uuid.UUID) ([]areas.Area, error)
	UpdateAreaNamesBatch(ctx context.Context, updates []areas.NameUpdate) (int64, error)
}

// Namer produces localized names for one batch.
type Namer interface {
	GenerateNames(ctx context.Context, req gemini.BatchRequest) ([]gemini.NameResult, error)
}

// Options control one country run.
type Options struct {
	BatchSize int
	DryRun    bool
	// Level restricts the run to one admin level. Nil means all levels.
	Level *int
}

// Outcome is the result of one country run. Err is set only for
// top-level failures; failed batches are reflected in Counts.
type Outcome struct {
	Counts  progress.Counts
	Batches int
	Err     error
}

// Engine runs name enrichment for one country at a time.
type Engine struct {
	store     Store
	namer     Namer
	countries *countries.Registry
	now       func() time.Time
}

// NewEngine creates an engine. A nil registry uses the embedded default.
func NewEngine(store Store, namer Namer, registry *countries.Registry) *Engine {
	if registry == nil {
		registry = countries.Default()
	}
	return &Engine{store: store, namer: namer, countries: registry, now: time.Now}
}

// errSinkClosed stops a run once the consumer has gone away.
var errSinkClosed = errors.New("enrichment: consumer disconnected")

// Enrich fills missing English and Japanese names for one country. Events
// are sent to sink in order: started, then item events and batch_progress
// per batch, then completed. A top-level failure ends the stream with a
// single error event instead.
func (e *Engine) Enrich(ctx context.Context, countryCode string, opts Options, sink progress.Sink) (out Outcome) {
	start := e.now()
	ctx, cancel := progress.Bind(ctx, sink)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[enrichment] %s: panic: %v", countryCode, r)
			out.Err = fmt.Errorf("enrichment %s: panic: %v", countryCode, r)
			if !progress.Closed(sink) {
				_ = sink.Send(context.WithoutCancel(ctx), progress.Error{Message: out.Err.Error()})
			}
		}
	}()

	fail := func(err error) Outcome {
		out.Err = err
		if !errors.Is(err, errSinkClosed) && !progress.Closed(sink) {
			log.Printf("[enrichment] %s: %v", countryCode, err)
			_ = sink.Send(context.WithoutCancel(ctx), progress.Error{Message: err.Error()})
		}
		return out
	}

	country, err := e.countries.Lookup(countryCode)
	if err != nil {
		return fail(err)
	}

	pending, err := e.loadAreas(ctx, country.Code, opts.Level)
	if err != nil {
		return fail(err)
	}

	if len(pending) == 0 {
		log.Printf("[enrichment] %s: no areas with missing names", country.Code)
		if err := e.send(ctx, sink, progress.Completed{ElapsedMs: e.since(start)}); err != nil {
			return fail(err)
		}
		return out
	}

	batches := planBatches(pending, opts.BatchSize)
	out.Batches = len(batches)
	log.Printf("[enrichment] %s: %d areas in %d batches (dryRun=%v)", country.Code, len(pending), len(batches), opts.DryRun)

	if err := e.send(ctx, sink, progress.Started{
		CountryCode:  country.Code,
		TotalAreas:   len(pending),
		TotalBatches: len(batches),
		DryRun:       opts.DryRun,
	}); err != nil {
		return fail(err)
	}

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		batchCounts, batchErr, err := e.runBatch(ctx, country, i+1, batch, opts.DryRun, sink)
		if err != nil {
			return fail(err)
		}
		out.Counts = out.Counts.Add(batchCounts)

		bp := progress.BatchProgress{
			BatchIndex:   i + 1,
			TotalBatches: len(batches),
			BatchSize:    len(batch),
			Counts:       out.Counts,
		}
		if batchErr != nil {
			bp.Error = batchErr.Error()
		}
		if err := e.send(ctx, sink, bp); err != nil {
			return fail(err)
		}
	}

	log.Printf("[enrichment] %s: done processed=%d applied=%d validated=%d skipped=%d failed=%d",
		country.Code, out.Counts.Processed, out.Counts.Applied, out.Counts.Validated, out.Counts.Skipped, out.Counts.Failed)
	if err := e.send(ctx, sink, progress.Completed{Counts: out.Counts, ElapsedMs: e.since(start)}); err != nil {
		return fail(err)
	}
	return out
}

// loadAreas fetches the areas missing a name and resolves their parent
// names with a single lookup.
func (e *Engine) loadAreas(ctx context.Context, countryCode string, level *int) ([]MissingNameArea, error) {
	rows, err := e.store.FetchAreasWithMissingNames(ctx, countryCode, level)
	if err != nil {
		return nil, fmt.Errorf("fetch areas with missing names: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	seen := make(map[uuid.UUID]bool)
	var parentIDs []uuid.UUID
	for _, a := range rows {
		if a.ParentID != nil && !seen[*a.ParentID] {
			seen[*a.ParentID] = true
			parentIDs = append(parentIDs, *a.ParentID)
		}
	}

	parentNames := make(map[uuid.UUID]string, len(parentIDs))
	if len(parentIDs) > 0 {
		parents, err := e.store.FetchAreasByIDs(ctx, parentIDs)
		if err != nil {
			return nil, fmt.Errorf("fetch parent areas: %w", err)
		}
		for _, p := range parents {
			parentNames[p.ID] = p.Name
		}
	}

	out := make([]MissingNameArea, 0, len(rows))
	for _, a := range rows {
		var parent string
		if a.ParentID != nil {
			parent = parentNames[*a.ParentID]
		}
		out = append(out, fromArea(a, parent))
	}
	return out, nil
}

// runBatch names, decides and persists one batch. batchErr reports a
// failed batch whose items all count as failed; err aborts the run.
func (e *Engine) runBatch(ctx context.Context, country countries.Country, index int, batch []MissingNameArea, dryRun bool, sink progress.Sink) (counts progress.Counts, batchErr, err error) {
	start := e.now()
	defer func() {
		metrics.EnrichmentBatchDuration.WithLabelValues(country.Code).Observe(time.Since(start).Seconds())
	}()

	failed := progress.Counts{Processed: len(batch), Failed: len(batch)}

	results, nameErr := e.namer.GenerateNames(ctx, batchRequest(country, batch))
	if ctx.Err() != nil {
		return counts, nil, ctx.Err()
	}
	if nameErr != nil {
		log.Printf("[enrichment] %s: batch %d failed: %v", country.Code, index, nameErr)
		e.countDisposition(country.Code, Errored, len(batch))
		return failed, fmt.Errorf("batch %d: %w", index, nameErr), nil
	}

	byAdm := make(map[string]MissingNameArea, len(batch))
	for _, a := range batch {
		byAdm[a.AdmID] = a
	}

	answered := make(map[string]bool, len(results))
	var updates []areas.NameUpdate
	for _, res := range results {
		area, ok := byAdm[res.AdmID]
		var d Decision
		switch {
		case !ok:
			d = Decision{Errored, "unknown area"}
		case answered[res.AdmID]:
			continue
		default:
			answered[res.AdmID] = true
			d = Decide(area, res)
		}

		switch d.Disposition {
		case Applied:
			counts.Applied++
		case Validated:
			counts.Validated++
		case Skipped:
			counts.Skipped++
		case Errored:
			counts.Failed++
		}
		e.countDisposition(country.Code, d.Disposition, 1)

		if ok && d.Persisted() {
			if u := buildUpdate(area, res.NameEn, res.NameJa); !u.Empty() {
				updates = append(updates, u)
			}
		}

		if err := e.send(ctx, sink, itemEvent(index, area, res, d)); err != nil {
			return counts, nil, err
		}
	}

	for _, a := range batch {
		if answered[a.AdmID] {
			continue
		}
		counts.Skipped++
		e.countDisposition(country.Code, Skipped, 1)
		ev := progress.Item{
			BatchIndex:  index,
			AreaID:      a.ID.String(),
			AdmID:       a.AdmID,
			Name:        a.Name,
			Disposition: string(Skipped),
			Reason:      "no result returned",
		}
		if err := e.send(ctx, sink, ev); err != nil {
			return counts, nil, err
		}
	}
	counts.Processed = len(batch)

	if dryRun || len(updates) == 0 {
		return counts, nil, nil
	}
	if err := ctx.Err(); err != nil {
		return counts, nil, err
	}
	n, err := e.store.UpdateAreaNamesBatch(ctx, updates)
	if err != nil {
		if ctx.Err() != nil {
			return counts, nil, ctx.Err()
		}
		log.Printf("[enrichment] %s: batch %d persist failed: %v", country.Code, index, err)
		return failed, fmt.Errorf("batch %d: persist names: %w", index, err), nil
	}
	log.Printf("[enrichment] %s: batch %d updated %d areas", country.Code, index, n)
	return counts, nil, nil
}

func batchRequest(country countries.Country, batch []MissingNameArea) gemini.BatchRequest {
	req := gemini.BatchRequest{
		CountryCode: country.Code,
		CountryName: country.Name,
		Rules:       country.Rules,
		Areas:       make([]gemini.Area, 0, len(batch)),
	}
	for _, a := range batch {
		req.Areas = append(req.Areas, gemini.Area{
			AdmID:      a.AdmID,
			Name:       a.Name,
			Level:      a.Level,
			ParentName: a.ParentName,
			NameEn:     deref(a.NameEn),
			NameJa:     deref(a.NameJa),
		})
	}
	return req
}

func itemEvent(index int, area MissingNameArea, res gemini.NameResult, d Decision) progress.Item {
	conf := res.Confidence
	if math.IsNaN(conf) || math.IsInf(conf, 0) {
		conf = 0
	}
	ev := progress.Item{
		BatchIndex:  index,
		AdmID:       res.AdmID,
		Name:        area.Name,
		NameEn:      res.NameEn,
		NameJa:      res.NameJa,
		Confidence:  conf,
		Disposition: string(d.Disposition),
		Reason:      d.Reason,
	}
	if area.ID != uuid.Nil {
		ev.AreaID = area.ID.String()
	}
	return ev
}

// send delivers one event, reporting a closed consumer as errSinkClosed.
func (e *Engine) send(ctx context.Context, sink progress.Sink, ev progress.Event) error {
	err := sink.Send(ctx, ev)
	if errors.Is(err, progress.ErrClosed) {
		return errSinkClosed
	}
	return err
}

func (e *Engine) countDisposition(country string, d Disposition, n int) {
	metrics.EnrichmentDispositions.WithLabelValues(country, string(d)).Add(float64(n))
}

func (e *Engine) since(start time.Time) int64 {
	return e.now().Sub(start).Milliseconds()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
