package batch

import (
	"context"
	"sync"

	"github.com/EmpoweredVote/EV-Geo/internal/enrichment"
	"github.com/EmpoweredVote/EV-Geo/internal/ingest"
	"github.com/EmpoweredVote/EV-Geo/internal/progress"
)

// Summary is a multi-country run folded from its event stream.
type Summary struct {
	Kind         string          `json:"kind"`
	Countries    []CountryResult `json:"countries"`
	SuccessCount int             `json:"successCount"`
	FailCount    int             `json:"failCount"`
	ElapsedMs    int64           `json:"elapsedMs"`
	Completed    bool            `json:"completed"`
}

// folder is a sink that keeps only what a summary needs.
type folder struct {
	mu sync.Mutex
	s  Summary
}

func (f *folder) Send(_ context.Context, e progress.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch ev := e.(type) {
	case progress.CountryCompleted:
		f.s.Countries = append(f.s.Countries, CountryResult{
			CountryCode: ev.CountryCode,
			Success:     ev.Success,
			Error:       ev.ErrorMessage,
			Counts:      ev.Counts,
			ElapsedMs:   ev.ElapsedMs,
		})
	case progress.AllCompleted:
		f.s.SuccessCount = ev.SuccessCount
		f.s.FailCount = ev.FailCount
		f.s.ElapsedMs = ev.ElapsedMs
		f.s.Completed = true
	}
	return nil
}

func (f *folder) Done() <-chan struct{} { return nil }

func (f *folder) summary() Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.s
	out.Countries = append([]CountryResult(nil), f.s.Countries...)
	return out
}

// EnrichmentSummary runs enrichment over codes and returns the folded
// summary instead of a stream.
func (o *Orchestrator) EnrichmentSummary(ctx context.Context, codes []string, opts enrichment.Options) Summary {
	f := &folder{s: Summary{Kind: KindEnrichment}}
	o.RunEnrichment(ctx, codes, opts, f)
	return f.summary()
}

// IngestionSummary is EnrichmentSummary for ingestion.
func (o *Orchestrator) IngestionSummary(ctx context.Context, codes []string, opts ingest.Options) Summary {
	f := &folder{s: Summary{Kind: KindIngestion}}
	o.RunIngestion(ctx, codes, opts, f)
	return f.summary()
}
