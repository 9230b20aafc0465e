package progress

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Send once the consumer has closed the sink.
var ErrClosed = errors.New("progress: sink closed")

// Sink receives an ordered stream of events. Done is closed when the
// consumer goes away; producers must stop sending at that point.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Done() <-chan struct{}
}

// ChannelSink delivers events over a channel. The consumer calls Close to
// go away; the producer calls Finish when it has nothing more to send.
type ChannelSink struct {
	events chan Event
	done   chan struct{}

	closeOnce  sync.Once
	finishOnce sync.Once
}

// NewChannelSink creates a sink with the given channel buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

// Events is the consumer side. It is closed after Finish.
func (s *ChannelSink) Events() <-chan Event { return s.events }

func (s *ChannelSink) Done() <-chan struct{} { return s.done }

// Send blocks until the event is buffered, the sink is closed or ctx ends.
func (s *ChannelSink) Send(ctx context.Context, e Event) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.events <- e:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close is called by the consumer. Further sends fail with ErrClosed.
func (s *ChannelSink) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Finish is called by the producer after its last Send.
func (s *ChannelSink) Finish() {
	s.finishOnce.Do(func() { close(s.events) })
}

// Func adapts a function to a Sink that is never closed by its consumer.
type Func func(e Event)

func (f Func) Send(_ context.Context, e Event) error {
	f(e)
	return nil
}

func (f Func) Done() <-chan struct{} { return nil }

// Closed reports whether the consumer of s has gone away.
func Closed(s Sink) bool {
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}

// Bind returns a context that is cancelled when the sink closes, so that
// upstream calls observe consumer disconnects.
func Bind(ctx context.Context, s Sink) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	done := s.Done()
	if done == nil {
		return ctx, cancel
	}
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Relabel wraps every event sent through it as CountryProgress.
type Relabel struct {
	Sink         Sink
	CountryCode  string
	CountryIndex int
}

func (r Relabel) Send(ctx context.Context, e Event) error {
	return r.Sink.Send(ctx, CountryProgress{CountryCode: r.CountryCode, CountryIndex: r.CountryIndex, Inner: e})
}

func (r Relabel) Done() <-chan struct{} { return r.Sink.Done() }

// Recorder keeps every event in memory. Used by summaries and tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Send(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Done() <-chan struct{} { return nil }

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []EventType {
	events := r.Events()
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type()
	}
	return out
}
