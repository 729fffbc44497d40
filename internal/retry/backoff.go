// Package retry holds the two resilience helpers the agent uses: an
// exponential backoff for the interactive client's dial, and a circuit
// breaker that stops hammering a host actuator that keeps failing.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// PermanentError stops a Backoff loop on the first occurrence.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying.  Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Backoff retries an operation with exponentially growing delays.
// Zero fields take the defaults noted beside them.
type Backoff struct {
	InitialDelay time.Duration // 250ms
	MaxDelay     time.Duration // 5s
	Multiplier   float64       // 2
	MaxAttempts  int           // 0 retries until ctx is done
	Jitter       bool          // ±25%

	// OnRetry, when set, is told about each failure that will be retried.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DialBackoff is the policy used when connecting to an agent.
func DialBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		MaxAttempts:  5,
		Jitter:       true,
	}
}

// Do calls fn until it returns nil, returns a Permanent error, runs out
// of attempts, or ctx ends.  attempt is 1-based.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	delay, maxDelay, mult := b.InitialDelay, b.MaxDelay, b.Multiplier
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	if mult <= 1 {
		mult = 2
	}

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return errors.Unwrap(err)
		case b.MaxAttempts > 0 && attempt >= b.MaxAttempts:
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		wait := delay
		if b.Jitter {
			wait = jitter(delay)
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}

		if delay = time.Duration(float64(delay) * mult); delay > maxDelay {
			delay = maxDelay
		}
	}
}

func jitter(d time.Duration) time.Duration {
	spread := float64(d) / 2
	out := time.Duration(float64(d) - spread/2 + rand.Float64()*spread)
	if out < time.Millisecond {
		return time.Millisecond
	}
	return out
}
