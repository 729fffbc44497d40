// Package metrics provides lock-free counters and gauges describing
// the agent's sessions: how many are open, how much they typed, how
// often they signed in, and what was dispatched to the host.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one server instance.
type Collector struct {
	sessionsActive   atomic.Int64
	sessionsTotal    atomic.Int64
	sessionsRejected atomic.Int64
	bytesIn          atomic.Int64
	bytesOut         atomic.Int64
	loginsOK         atomic.Int64
	loginsFailed     atomic.Int64
	commandsResolved atomic.Int64
	dispatches       atomic.Int64
	idleExpiries     atomic.Int64
	errorsTotal      atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// SessionRejected records a connection turned away because the live
// session limit was reached.
func (c *Collector) SessionRejected() {
	if c == nil {
		return
	}
	c.sessionsRejected.Add(1)
}

// ActiveSessions returns the current number of open sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// RejectedSessions returns how many connections were turned away.
func (c *Collector) RejectedSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsRejected.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the network.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to the network.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Request metrics ──────────────────────────────────────────────────

// Login records a sign-in attempt.
func (c *Collector) Login(ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.loginsOK.Add(1)
		return
	}
	c.loginsFailed.Add(1)
}

// Logins returns successful and failed sign-in counts.
func (c *Collector) Logins() (ok, failed int64) {
	if c == nil {
		return 0, 0
	}
	return c.loginsOK.Load(), c.loginsFailed.Load()
}

// CommandResolved records a line translated through the command tree.
func (c *Collector) CommandResolved() {
	if c == nil {
		return
	}
	c.commandsResolved.Add(1)
}

// CommandsResolved returns how many lines were translated.
func (c *Collector) CommandsResolved() int64 {
	if c == nil {
		return 0
	}
	return c.commandsResolved.Load()
}

// Dispatched records text handed to the actuator.
func (c *Collector) Dispatched() {
	if c == nil {
		return
	}
	c.dispatches.Add(1)
}

// Dispatches returns how many requests reached the actuator.
func (c *Collector) Dispatches() int64 {
	if c == nil {
		return 0
	}
	return c.dispatches.Load()
}

// IdleExpired records a session closed by the idle timeout.
func (c *Collector) IdleExpired() {
	if c == nil {
		return
	}
	c.idleExpiries.Add(1)
}

// IdleExpiries returns how many sessions expired.
func (c *Collector) IdleExpiries() int64 {
	if c == nil {
		return 0
	}
	return c.idleExpiries.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	SessionsRejected int64  `json:"sessions_rejected"`
	BytesIn          int64  `json:"bytes_in"`
	BytesOut         int64  `json:"bytes_out"`
	LoginsOK         int64  `json:"logins_ok"`
	LoginsFailed     int64  `json:"logins_failed"`
	CommandsResolved int64  `json:"commands_resolved"`
	Dispatches       int64  `json:"dispatches"`
	IdleExpiries     int64  `json:"idle_expiries"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:           time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive:   c.sessionsActive.Load(),
		SessionsTotal:    c.sessionsTotal.Load(),
		SessionsRejected: c.sessionsRejected.Load(),
		BytesIn:          c.bytesIn.Load(),
		BytesOut:         c.bytesOut.Load(),
		LoginsOK:         c.loginsOK.Load(),
		LoginsFailed:     c.loginsFailed.Load(),
		CommandsResolved: c.commandsResolved.Load(),
		Dispatches:       c.dispatches.Load(),
		IdleExpiries:     c.idleExpiries.Load(),
		ErrorsTotal:      c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
