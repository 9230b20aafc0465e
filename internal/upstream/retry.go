package upstream

import (
	"context"
	"errors"
	"time"

	"github.com/EmpoweredVote/EV-Geo/internal/metrics"
)

// Policy is an exponential backoff retry policy. The delay starts at Initial,
// doubles after every failed attempt and never exceeds Max.
type Policy struct {
	Service  string
	Initial  time.Duration
	Max      time.Duration
	Attempts int
	// Retryable decides whether a failed attempt is retried. Nil retries
	// every error not marked Permanent.
	Retryable func(error) bool
	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NoRetry runs a call exactly once.
var NoRetry = Policy{Attempts: 1}

// Do runs call through the limiter under the policy. A limiter slot is held
// only while call runs, never across a backoff sleep.
func (p Policy) Do(ctx context.Context, lim *Limiter, call func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Initial

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return errors.Join(ctxErr, err)
			}
			return ctxErr
		}

		err = p.once(ctx, lim, call)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !p.retryable(err) || attempt == attempts {
			break
		}

		wait := delay
		if p.Max > 0 && wait > p.Max {
			wait = p.Max
		}
		LogRetry(p.Service, attempt, wait, err)
		metrics.UpstreamRetries.WithLabelValues(p.Service).Inc()
		if sleepErr := p.sleep(ctx, wait); sleepErr != nil {
			return errors.Join(sleepErr, err)
		}
		delay *= 2
		if p.Max > 0 && delay > p.Max {
			delay = p.Max
		}
	}
	return err
}

func (p Policy) once(ctx context.Context, lim *Limiter, call func(ctx context.Context) error) error {
	if lim == nil {
		return call(ctx)
	}
	release, err := lim.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return call(ctx)
}

func (p Policy) retryable(err error) bool {
	if IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
