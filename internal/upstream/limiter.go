package upstream

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// LimitConfig describes the gate in front of one upstream service.
type LimitConfig struct {
	// MaxConcurrent is the number of calls allowed in flight. Zero or less
	// means unbounded.
	MaxConcurrent int64
	// MinInterval is the minimum spacing between call dispatches. Zero
	// disables spacing.
	MinInterval time.Duration
}

// Limiter gates calls to one upstream: a concurrency slot first, then the
// minimum interval. Each client owns its own Limiter.
type Limiter struct {
	sem     *semaphore.Weighted
	spacing *rate.Limiter
}

// NewLimiter creates a limiter for cfg.
func NewLimiter(cfg LimitConfig) *Limiter {
	l := &Limiter{}
	if cfg.MaxConcurrent > 0 {
		l.sem = semaphore.NewWeighted(cfg.MaxConcurrent)
	}
	if cfg.MinInterval > 0 {
		l.spacing = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	} else {
		l.spacing = rate.NewLimiter(rate.Inf, 1)
	}
	return l
}

// Acquire blocks until a slot is free and the minimum interval since the
// previous dispatch has passed. The returned release func must be called
// once the call completes. On error no slot is held.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	if err := l.spacing.Wait(ctx); err != nil {
		if l.sem != nil {
			l.sem.Release(1)
		}
		return nil, err
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		if l.sem != nil {
			l.sem.Release(1)
		}
	}, nil
}
