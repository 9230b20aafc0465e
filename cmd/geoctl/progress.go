package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/EmpoweredVote/EV-Geo/internal/progress"
)

// barSink renders a run on the terminal: one progress bar per enrichment
// country and a line per ingestion step or country result.
type barSink struct {
	mu      sync.Mutex
	w       io.Writer
	bar     *progressbar.ProgressBar
	country string
}

func newBarSink(w io.Writer) *barSink {
	return &barSink{w: w}
}

func (s *barSink) Done() <-chan struct{} { return nil }

func (s *barSink) Send(_ context.Context, e progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle(e)
	return nil
}

func (s *barSink) handle(e progress.Event) {
	switch ev := e.(type) {
	case progress.CountryStarted:
		s.country = ev.CountryCode
		fmt.Fprintf(s.w, "[%d/%d] %s\n", ev.CountryIndex+1, ev.TotalCountries, ev.CountryCode)
	case progress.CountryProgress:
		s.handle(ev.Inner)
	case progress.Started:
		s.bar = newBar(s.w, ev.TotalAreas, fmt.Sprintf("%s %d batches", ev.CountryCode, ev.TotalBatches))
	case progress.BatchProgress:
		if s.bar != nil {
			_ = s.bar.Set(ev.Processed)
			s.bar.Describe(fmt.Sprintf("%s batch %d/%d", s.country, ev.BatchIndex, ev.TotalBatches))
		}
		if ev.Error != "" {
			s.clearBar()
			fmt.Fprintf(s.w, "  batch %d failed: %s\n", ev.BatchIndex, ev.Error)
		}
	case progress.Step:
		fmt.Fprintf(s.w, "  %-14s %s\n", ev.Name, ev.Message)
	case progress.Completed:
		s.finishBar()
		fmt.Fprintf(s.w, "  done: processed=%d applied=%d validated=%d skipped=%d failed=%d (%s)\n",
			ev.Processed, ev.Applied, ev.Validated, ev.Skipped, ev.Failed, time.Duration(ev.ElapsedMs)*time.Millisecond)
	case progress.Error:
		s.clearBar()
		fmt.Fprintf(s.w, "  error: %s\n", ev.Message)
	case progress.CountryCompleted:
		s.finishBar()
		if !ev.Success {
			fmt.Fprintf(s.w, "  %s failed: %s\n", ev.CountryCode, ev.ErrorMessage)
		}
	case progress.AllCompleted:
		fmt.Fprintf(s.w, "\n%d succeeded, %d failed in %s\n", ev.SuccessCount, ev.FailCount, time.Duration(ev.ElapsedMs)*time.Millisecond)
	}
}

// finish closes any bar left open by an interrupted run.
func (s *barSink) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishBar()
}

func (s *barSink) finishBar() {
	if s.bar != nil {
		_ = s.bar.Finish()
		s.bar = nil
	}
}

func (s *barSink) clearBar() {
	if s.bar != nil {
		_ = s.bar.Clear()
	}
}

func newBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
		progressbar.OptionSpinnerType(14),
	)
}
