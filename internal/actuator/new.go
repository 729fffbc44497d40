package actuator

import (
	"fmt"

	"keyagent/internal/retry"
	"keyagent/util"
)

// New returns the actuator named kind, wrapped in a circuit breaker.
func New(kind string, logger *util.Logger) (Actuator, error) {
	var inner Actuator
	switch kind {
	case KindLog, "":
		inner = NewRecorder(logger)
	case KindXdotool:
		x := NewXdotool(logger)
		if err := x.Available(); err != nil {
			return nil, err
		}
		inner = x
	default:
		return nil, fmt.Errorf("unknown actuator %q", kind)
	}
	return NewGuarded(inner, retry.BreakerConfig{}, logger), nil
}
