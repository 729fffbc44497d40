package engine

// Idle budget constants.  The counter advances once per idle tick.
const (
	TicksPerMinute = 120
	WarnEvery      = 1000
)

// IdleBudget decides when an idle session is warned and when it expires.
type IdleBudget struct {
	Max int // ticks before expiry
}

// NewIdleBudget derives the tick budget from a timeout in minutes.
func NewIdleBudget(minutes int) IdleBudget {
	return IdleBudget{Max: minutes * TicksPerMinute}
}

// IdleState is what a single Tick decided.
type IdleState int

const (
	IdleOK IdleState = iota
	IdleWarn
	IdleExpired
)

// Tick advances *ticks by one idle poll.  Once the budget is reached
// the counter resets to zero and IdleExpired is returned, exactly once
// per breach.
func (b IdleBudget) Tick(ticks *int) IdleState {
	if *ticks >= b.Max {
		*ticks = 0
		return IdleExpired
	}
	*ticks++
	if *ticks > 1 && *ticks%WarnEvery == 1 {
		return IdleWarn
	}
	return IdleOK
}

// Remaining returns the ticks left before expiry.
func (b IdleBudget) Remaining(ticks int) int {
	if r := b.Max - ticks; r > 0 {
		return r
	}
	return 0
}
