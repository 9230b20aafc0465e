package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmpoweredVote/EV-Geo/internal/enrichment"
	"github.com/EmpoweredVote/EV-Geo/internal/ingest"
	"github.com/EmpoweredVote/EV-Geo/internal/progress"
)

// scriptedEnricher answers each country from a table.
type scriptedEnricher struct {
	mu       sync.Mutex
	outcomes map[string]enrichment.Outcome
	panics   map[string]bool
	calls    []string
	onCall   func(code string)
}

func (s *scriptedEnricher) Enrich(ctx context.Context, code string, _ enrichment.Options, sink progress.Sink) enrichment.Outcome {
	s.mu.Lock()
	s.calls = append(s.calls, code)
	s.mu.Unlock()
	if s.onCall != nil {
		s.onCall(code)
	}
	if s.panics[code] {
		panic("boom")
	}
	out := s.outcomes[code]
	if out.Err != nil {
		_ = sink.Send(ctx, progress.Error{Message: out.Err.Error()})
		return out
	}
	_ = sink.Send(ctx, progress.Started{CountryCode: code})
	_ = sink.Send(ctx, progress.Completed{Counts: out.Counts})
	return out
}

type scriptedIngester struct {
	errs map[string]error
}

func (s *scriptedIngester) Ingest(ctx context.Context, code string, _ ingest.Options, sink progress.Sink) ingest.Outcome {
	if err := s.errs[code]; err != nil {
		return ingest.Outcome{Err: err}
	}
	_ = sink.Send(ctx, progress.Step{Name: ingest.StepUpsert})
	return ingest.Outcome{Counts: progress.Counts{Processed: 3, Applied: 3}}
}

func TestRunEnrichment_SuccessRule(t *testing.T) {
	cases := []struct {
		name    string
		outcome enrichment.Outcome
		want    bool
	}{
		{"clean", enrichment.Outcome{Counts: progress.Counts{Processed: 5, Applied: 5}}, true},
		{"nothing to do", enrichment.Outcome{}, true},
		{"partial failure with progress", enrichment.Outcome{Counts: progress.Counts{Processed: 20, Applied: 1, Failed: 10}}, true},
		{"validated only", enrichment.Outcome{Counts: progress.Counts{Processed: 2, Validated: 1, Failed: 1}}, true},
		{"all failed", enrichment.Outcome{Counts: progress.Counts{Processed: 10, Failed: 10}}, false},
		{"skipped and failed", enrichment.Outcome{Counts: progress.Counts{Processed: 4, Skipped: 3, Failed: 1}}, false},
		{"top level error", enrichment.Outcome{Err: errors.New("db down")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := &scriptedEnricher{outcomes: map[string]enrichment.Outcome{"JP": tc.outcome}}
			res := NewOrchestrator(e, nil).RunEnrichment(context.Background(), []string{"JP"}, enrichment.Options{}, &progress.Recorder{})
			require.Len(t, res.Countries, 1)
			assert.Equal(t, tc.want, res.Countries[0].Success)
		})
	}
}

func TestRunEnrichment_EventOrder(t *testing.T) {
	e := &scriptedEnricher{
		outcomes: map[string]enrichment.Outcome{
			"JP": {Counts: progress.Counts{Processed: 1, Applied: 1}},
			"KR": {Err: errors.New("gemini down")},
		},
		panics: map[string]bool{"TW": true},
	}
	rec := &progress.Recorder{}
	res := NewOrchestrator(e, nil).RunEnrichment(context.Background(), []string{"JP", "KR", "TW", "US"}, enrichment.Options{}, rec)

	assert.Equal(t, []string{"JP", "KR", "TW", "US"}, e.calls)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 2, res.FailCount)
	assert.Contains(t, res.Countries[2].Error, "panic")

	events := rec.Events()
	assert.Equal(t, []progress.EventType{
		progress.TypeCountryStarted, progress.TypeCountryProgress, progress.TypeCountryProgress, progress.TypeCountryCompleted,
		progress.TypeCountryStarted, progress.TypeCountryProgress, progress.TypeCountryCompleted,
		progress.TypeCountryStarted, progress.TypeCountryCompleted,
		progress.TypeCountryStarted, progress.TypeCountryProgress, progress.TypeCountryProgress, progress.TypeCountryCompleted,
		progress.TypeAllCompleted,
	}, rec.Types())

	inner := events[1].(progress.CountryProgress)
	assert.Equal(t, "JP", inner.CountryCode)
	assert.Equal(t, 0, inner.CountryIndex)
	assert.Equal(t, progress.TypeStarted, inner.Inner.Type())

	kr := events[6].(progress.CountryCompleted)
	assert.False(t, kr.Success)
	assert.Equal(t, "gemini down", kr.ErrorMessage)
	assert.Equal(t, 1, kr.CountryIndex)

	all := events[len(events)-1].(progress.AllCompleted)
	assert.Equal(t, 2, all.SuccessCount)
	assert.Equal(t, 2, all.FailCount)
}

func TestRunEnrichment_StopsWhenSinkCloses(t *testing.T) {
	sink := progress.NewChannelSink(64)
	e := &scriptedEnricher{onCall: func(code string) {
		if code == "KR" {
			sink.Close()
		}
	}}

	res := NewOrchestrator(e, nil).RunEnrichment(context.Background(), []string{"JP", "KR", "TW"}, enrichment.Options{}, sink)
	sink.Finish()

	assert.True(t, res.Interrupted)
	assert.Equal(t, []string{"JP", "KR"}, e.calls)

	var last progress.Event
	for ev := range sink.Events() {
		last = ev
	}
	require.NotNil(t, last)
	assert.NotEqual(t, progress.TypeAllCompleted, last.Type())
}

func TestRunIngestion(t *testing.T) {
	i := &scriptedIngester{errs: map[string]error{"KR": errors.New("no ADM2")}}
	rec := &progress.Recorder{}
	res := NewOrchestrator(nil, i).RunIngestion(context.Background(), []string{"JP", "KR"}, ingest.Options{}, rec)

	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 1, res.FailCount)
	assert.Equal(t, 3, res.Countries[0].Counts.Processed)

	res = NewOrchestrator(nil, nil).RunEnrichment(context.Background(), []string{"JP"}, enrichment.Options{}, rec)
	assert.Equal(t, 1, res.FailCount)
}

func TestEnrichmentSummary(t *testing.T) {
	e := &scriptedEnricher{outcomes: map[string]enrichment.Outcome{
		"JP": {Counts: progress.Counts{Processed: 4, Applied: 3, Skipped: 1}},
		"KR": {Counts: progress.Counts{Processed: 2, Failed: 2}},
	}}
	s := NewOrchestrator(e, nil).EnrichmentSummary(context.Background(), []string{"JP", "KR"}, enrichment.Options{})

	assert.Equal(t, KindEnrichment, s.Kind)
	assert.True(t, s.Completed)
	assert.Equal(t, 1, s.SuccessCount)
	assert.Equal(t, 1, s.FailCount)
	require.Len(t, s.Countries, 2)
	assert.Equal(t, 3, s.Countries[0].Counts.Applied)
	assert.False(t, s.Countries[1].Success)
}

func waitForJob(t *testing.T, jobs *Jobs, id string) Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := jobs.Get(id)
		require.True(t, ok)
		if job.Status != JobRunning {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s still running", id)
	return Job{}
}

func TestJobs(t *testing.T) {
	e := &scriptedEnricher{outcomes: map[string]enrichment.Outcome{
		"JP": {Counts: progress.Counts{Processed: 2, Applied: 2}},
		"KR": {Err: errors.New("boom")},
	}}
	orch := NewOrchestrator(e, nil)
	jobs := NewJobs()

	job := jobs.Start(KindEnrichment, []string{"JP", "KR"}, func(ctx context.Context, sink progress.Sink) Result {
		return orch.RunEnrichment(ctx, []string{"JP", "KR"}, enrichment.Options{}, sink)
	})
	assert.Equal(t, JobRunning, job.Status)

	done := waitForJob(t, jobs, job.ID)
	assert.Equal(t, JobCompletedWithErrors, done.Status)
	assert.Equal(t, 1, done.Completed)
	assert.Equal(t, 1, done.Failed)
	assert.Equal(t, []string{"KR"}, done.FailedCountries)
	assert.Equal(t, 2, done.Counts.Applied)
	require.NotNil(t, done.CompletedAt)

	assert.Len(t, jobs.List(), 1)
	_, ok := jobs.Get("missing")
	assert.False(t, ok)
}

func newTestHandlers(e Enricher, i Ingestor) (*Handlers, http.Handler) {
	h := NewHandlers(NewOrchestrator(e, i), e, i, nil, nil)
	r := http.NewServeMux()
	r.Handle("/admin/", http.StripPrefix("/admin", SetupAdminRoutes(h)))
	r.Handle("/cron/", http.StripPrefix("/cron", SetupCronRoutes(h)))
	return h, r
}

// readSSE returns the event names of a recorded stream.
func readSSE(t *testing.T, body string) []string {
	t.Helper()
	var names []string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			names = append(names, name)
		}
	}
	return names
}

func TestStreamEnrichment(t *testing.T) {
	e := &scriptedEnricher{outcomes: map[string]enrichment.Outcome{"JP": {Counts: progress.Counts{Processed: 1, Applied: 1}}}}
	_, h := newTestHandlers(e, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/enrich/jp?batchSize=5&dryRun=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, []string{"started", "completed"}, readSSE(t, rec.Body.String()))
	assert.Contains(t, rec.Body.String(), `"type":"started"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/enrich/all", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	names := readSSE(t, rec.Body.String())
	assert.Equal(t, "country_started", names[0])
	assert.Equal(t, "all_completed", names[len(names)-1])
}

func TestStreamEnrichment_BadRequests(t *testing.T) {
	_, h := newTestHandlers(&scriptedEnricher{}, nil)

	for _, path := range []string{
		"/admin/enrich/JP?batchSize=0",
		"/admin/enrich/JP?batchSize=abc",
		"/admin/enrich/JP?dryRun=maybe",
		"/admin/enrich/JP?level=9",
		"/admin/enrich/XX",
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}

	_, h = newTestHandlers(nil, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/ingest/JP", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStreamIngestion(t *testing.T) {
	_, h := newTestHandlers(nil, &scriptedIngester{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/ingest/JP?tags=false", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"step"}, readSSE(t, rec.Body.String()))
}

func TestCronEnrich(t *testing.T) {
	e := &scriptedEnricher{outcomes: map[string]enrichment.Outcome{
		"JP": {Counts: progress.Counts{Processed: 1, Applied: 1}},
	}}
	_, h := newTestHandlers(e, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cron/enrich", strings.NewReader(`{"countries":["jp","KR"]}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var s Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, []string{"JP", "KR"}, e.calls)
	assert.Equal(t, 2, s.SuccessCount)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cron/enrich", strings.NewReader(`{"countries":["ZZ"]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobHandlers(t *testing.T) {
	e := &scriptedEnricher{}
	handlers, h := newTestHandlers(e, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/jobs/enrich", strings.NewReader(`{"countries":["JP"]}`)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	id := started["job_id"]
	require.NotEmpty(t, id)

	waitForJob(t, handlers.jobs, id)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/jobs/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var job Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, JobCompleted, job.Status)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/jobs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
