package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kaerrors "keyagent/internal/errors"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls are refused
	StateHalfOpen              // probing for recovery
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig configures a CircuitBreaker.  Zero fields take the
// defaults noted beside them.
type BreakerConfig struct {
	MaxFailures  int           // consecutive failures that open it, 3
	ResetTimeout time.Duration // open period before a probe, 10s
	HalfOpenMax  int           // probe successes that close it, 1

	// OnStateChange runs under the breaker's lock.
	OnStateChange func(from, to State)
}

// CircuitBreaker refuses calls after repeated consecutive failures and
// lets a probe through once ResetTimeout has passed.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	now         func() time.Time
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 10 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the circuit is open, in which case an error
// wrapping ErrCircuitOpen is returned and fn is not called.  A
// cancelled or expired context says nothing about the guarded
// resource, so such errors are not counted either way.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	cb.record(err)
	return err
}

// CurrentState returns the breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the circuit and clears the counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures, cb.successes = 0, 0
	cb.moveTo(StateClosed)
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	since := cb.now().Sub(cb.lastFailure)
	if since >= cb.cfg.ResetTimeout {
		cb.moveTo(StateHalfOpen)
		return nil
	}
	return fmt.Errorf("%w after %d failures, retry in %v",
		kaerrors.ErrCircuitOpen, cb.failures, (cb.cfg.ResetTimeout - since).Truncate(time.Millisecond))
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.successes = 0
		cb.lastFailure = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.MaxFailures {
			cb.moveTo(StateOpen)
		}
		return
	}

	cb.successes++
	if cb.state == StateHalfOpen && cb.successes < cb.cfg.HalfOpenMax {
		return
	}
	cb.failures = 0
	cb.moveTo(StateClosed)
}

func (cb *CircuitBreaker) moveTo(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}
