package actuator

import (
	"context"
	"time"

	"keyagent/internal/retry"
	"keyagent/util"
)

// Guarded wraps an Actuator with a circuit breaker so a broken host
// display fails fast instead of stalling every session.  Sleep is not
// guarded.
type Guarded struct {
	inner   Actuator
	breaker *retry.CircuitBreaker
}

// NewGuarded wraps inner.  State changes are logged as warnings.
func NewGuarded(inner Actuator, cfg retry.BreakerConfig, logger *util.Logger) *Guarded {
	if cfg.OnStateChange == nil && logger != nil {
		cfg.OnStateChange = func(from, to retry.State) {
			logger.Warn("actuator circuit %s -> %s", from, to)
		}
	}
	return &Guarded{inner: inner, breaker: retry.NewCircuitBreaker(cfg)}
}

// State returns the breaker state.
func (g *Guarded) State() retry.State { return g.breaker.CurrentState() }

func (g *Guarded) TypeText(ctx context.Context, text string) error {
	return g.breaker.Execute(func() error { return g.inner.TypeText(ctx, text) })
}

func (g *Guarded) PressKey(ctx context.Context, key Key) error {
	return g.breaker.Execute(func() error { return g.inner.PressKey(ctx, key) })
}

func (g *Guarded) Sleep(ctx context.Context, d time.Duration) error {
	return g.inner.Sleep(ctx, d)
}

func (g *Guarded) ToggleFocus(ctx context.Context) error {
	return g.breaker.Execute(func() error { return g.inner.ToggleFocus(ctx) })
}
