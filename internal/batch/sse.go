package batch

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/EmpoweredVote/EV-Geo/internal/progress"
)

// sseSink streams events as server-sent events. It reports closed once the
// client disconnects or a write fails.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	done    <-chan struct{}
	broken  bool
}

func newSSESink(w http.ResponseWriter, r *http.Request) (*sseSink, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseSink{w: w, flusher: flusher, done: r.Context().Done()}, true
}

func (s *sseSink) Send(_ context.Context, e progress.Event) error {
	select {
	case <-s.done:
		return progress.ErrClosed
	default:
	}

	data, err := progress.Encode(e)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return progress.ErrClosed
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", e.Type(), data); err != nil {
		log.Printf("[sse] write failed: %v", err)
		s.broken = true
		return progress.ErrClosed
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Done() <-chan struct{} { return s.done }
