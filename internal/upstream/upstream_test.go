package upstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordSleep returns a Sleep func that records delays without waiting.
func recordSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestPolicy_RateLimitedTwiceThenSucceeds(t *testing.T) {
	var delays []time.Duration
	p := Policy{Service: "test", Initial: 5 * time.Second, Max: 30 * time.Second, Attempts: 5, Sleep: recordSleep(&delays)}

	calls := 0
	err := p.Do(context.Background(), NewLimiter(LimitConfig{MaxConcurrent: 5}), func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return fmt.Errorf("generate: %w", ErrRateLimited)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, delays)
}

func TestPolicy_DelayIsCapped(t *testing.T) {
	var delays []time.Duration
	p := Policy{Initial: 2 * time.Second, Max: 15 * time.Second, Attempts: 6, Sleep: recordSleep(&delays)}

	boom := errors.New("boom")
	err := p.Do(context.Background(), nil, func(ctx context.Context) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 15 * time.Second, 15 * time.Second}, delays)
}

func TestPolicy_PermanentIsNotRetried(t *testing.T) {
	var delays []time.Duration
	p := Policy{Initial: time.Second, Attempts: 5, Sleep: recordSleep(&delays)}

	blocked := errors.New("blocked")
	calls := 0
	err := p.Do(context.Background(), nil, func(ctx context.Context) error {
		calls++
		return Permanent(blocked)
	})

	assert.ErrorIs(t, err, blocked)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestPolicy_RetryablePredicate(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		Initial:   2 * time.Second,
		Max:       15 * time.Second,
		Attempts:  3,
		Retryable: func(err error) bool { return errors.Is(err, ErrUnexpectedContentType) },
		Sleep:     recordSleep(&delays),
	}

	calls := 0
	err := p.Do(context.Background(), nil, func(ctx context.Context) error {
		calls++
		return ErrUnexpectedContentType
	})
	assert.ErrorIs(t, err, ErrUnexpectedContentType)
	assert.Equal(t, 3, calls)
	assert.Len(t, delays, 2)

	calls = 0
	err = p.Do(context.Background(), nil, func(ctx context.Context) error {
		calls++
		return &StatusError{Service: "x", StatusCode: 400}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Initial: time.Second, Attempts: 5, Sleep: func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}}

	calls := 0
	err := p.Do(ctx, nil, func(ctx context.Context) error {
		calls++
		return ErrRateLimited
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestLimiter_BoundsConcurrency(t *testing.T) {
	lim := NewLimiter(LimitConfig{MaxConcurrent: 2})

	var inFlight, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := lim.Acquire(context.Background())
			require.NoError(t, err)
			defer release()

			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestLimiter_EnforcesMinInterval(t *testing.T) {
	lim := NewLimiter(LimitConfig{MaxConcurrent: 1, MinInterval: 30 * time.Millisecond})

	start := time.Now()
	for i := 0; i < 3; i++ {
		release, err := lim.Acquire(context.Background())
		require.NoError(t, err)
		release()
	}

	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestLimiter_AcquireHonoursContext(t *testing.T) {
	lim := NewLimiter(LimitConfig{MaxConcurrent: 1})
	release, err := lim.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = lim.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
