package batch

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EmpoweredVote/EV-Geo/internal/progress"
)

// Job tracks a background multi-country run.
type Job struct {
	ID              string          `json:"id"`
	Kind            string          `json:"kind"`
	Status          string          `json:"status"` // "running", "completed", "completed_with_errors", "interrupted"
	TotalCountries  int             `json:"total_countries"`
	Completed       int             `json:"completed"`
	Failed          int             `json:"failed"`
	CurrentCountry  string          `json:"current_country,omitempty"`
	FailedCountries []string        `json:"failed_countries,omitempty"`
	Counts          progress.Counts `json:"counts"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Job statuses.
const (
	JobRunning             = "running"
	JobCompleted           = "completed"
	JobCompletedWithErrors = "completed_with_errors"
	JobInterrupted         = "interrupted"
)

// Jobs is an in-memory registry of background runs.
type Jobs struct {
	mu   sync.Mutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewJobs() *Jobs {
	return &Jobs{jobs: make(map[string]*Job), now: time.Now}
}

// runner is one multi-country run reporting into sink.
type runner func(ctx context.Context, sink progress.Sink) Result

// Start registers a job and runs it in the background. The run is detached
// from any request context.
func (j *Jobs) Start(kind string, codes []string, run runner) Job {
	job := &Job{
		ID:             uuid.New().String(),
		Kind:           kind,
		Status:         JobRunning,
		TotalCountries: len(codes),
		StartedAt:      j.now(),
	}

	j.mu.Lock()
	j.jobs[job.ID] = job
	snapshot := job.snapshot()
	j.mu.Unlock()

	go j.run(job, run)
	return snapshot
}

func (j *Jobs) run(job *Job, run runner) {
	log.Printf("[jobs] job=%s starting %s of %d countries", job.ID, job.Kind, job.TotalCountries)

	sink := progress.Func(func(e progress.Event) {
		j.mu.Lock()
		defer j.mu.Unlock()
		switch ev := e.(type) {
		case progress.CountryStarted:
			job.CurrentCountry = ev.CountryCode
		case progress.CountryCompleted:
			job.Counts = job.Counts.Add(ev.Counts)
			if ev.Success {
				job.Completed++
			} else {
				job.Failed++
				job.FailedCountries = append(job.FailedCountries, ev.CountryCode)
			}
		}
	})

	res := run(context.Background(), sink)

	now := j.now()
	j.mu.Lock()
	job.CurrentCountry = ""
	job.CompletedAt = &now
	switch {
	case res.Interrupted:
		job.Status = JobInterrupted
	case job.Failed > 0:
		job.Status = JobCompletedWithErrors
	default:
		job.Status = JobCompleted
	}
	j.mu.Unlock()

	log.Printf("[jobs] job=%s finished: completed=%d failed=%d", job.ID, res.SuccessCount, res.FailCount)
}

// Get returns a snapshot of one job.
func (j *Jobs) Get(id string) (Job, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.snapshot(), true
}

// List returns snapshots of every job, newest first.
func (j *Jobs) List() []Job {
	j.mu.Lock()
	out := make([]Job, 0, len(j.jobs))
	for _, job := range j.jobs {
		out = append(out, job.snapshot())
	}
	j.mu.Unlock()

	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.After(out[b].StartedAt) })
	return out
}

// snapshot copies the job. Callers hold the registry lock.
func (job *Job) snapshot() Job {
	cp := *job
	if job.FailedCountries != nil {
		cp.FailedCountries = append([]string(nil), job.FailedCountries...)
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}
