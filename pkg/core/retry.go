package core

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Sleeper abstracts time.Sleep for deterministic tests.
type Sleeper interface {
	Sleep(time.Duration)
}

// FuncSleeper wraps a function to satisfy Sleeper.
type FuncSleeper func(time.Duration)

// Sleep implements the Sleeper interface.
func (f FuncSleeper) Sleep(d time.Duration) { f(d) }

// BackoffStrategy holds retry parameters.
type BackoffStrategy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	Jitter      float64
	Sleeper     Sleeper
	Rand        func() float64
}

// DefaultBackoff returns a conservative exponential backoff configuration for
// in-run retries of transient cluster and source failures.
func DefaultBackoff() BackoffStrategy {
	return BackoffStrategy{
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    3 * time.Second,
		MaxAttempts: 5,
		Jitter:      0.2,
	}
}

// RequeueBackoff returns the backoff used between whole reconciliation
// attempts of one Application. Longer and capped higher than the in-run
// strategy since a full pass includes source fetches.
func RequeueBackoff() BackoffStrategy {
	return BackoffStrategy{
		BaseDelay:   2 * time.Second,
		MaxDelay:    2 * time.Minute,
		MaxAttempts: 0, // unbounded; the cap limits the interval, not the count
		Jitter:      0.1,
	}
}

// Retry executes fn with exponential backoff. The function stops retrying when
// fn returns nil, when shouldRetry returns false, when ctx is done, or after
// MaxAttempts have been exhausted. It returns the number of attempts executed
// and the last error from fn, if any.
func (b BackoffStrategy) Retry(ctx context.Context, fn func() error, shouldRetry func(error) bool) (int, error) {
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = 1
	}
	sleeper := b.Sleeper
	if sleeper == nil {
		sleeper = FuncSleeper(time.Sleep)
	}
	for attempt := 1; attempt <= b.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt, err
		}
		err := fn()
		if err == nil {
			return attempt, nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return attempt, err
		}
		if attempt == b.MaxAttempts {
			return attempt, err
		}
		sleeper.Sleep(b.DelayFor(attempt))
	}
	return b.MaxAttempts, nil
}

// DelayFor returns the jittered delay to wait after the given 1-based attempt.
func (b BackoffStrategy) DelayFor(attempt int) time.Duration {
	base := b.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	if b.Jitter > 0 {
		rnd := b.Rand
		if rnd == nil {
			rnd = rand.Float64
		}
		delay += delay * b.Jitter * rnd()
	}
	return time.Duration(delay)
}
