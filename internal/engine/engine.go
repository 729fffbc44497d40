// Package engine drives one session over the byte-at-a-time wire
// protocol.  The Engine owns framing, the flush pipeline and idle
// supervision; a Hooks implementation decides what each line means and
// what the client is told.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"keyagent/internal/broadcast"
	kaerrors "keyagent/internal/errors"
	"keyagent/internal/metrics"
	"keyagent/internal/session"
	"keyagent/util"
)

// Control bytes recognised on the wire.
const (
	KeyEOT   byte = 4  // end of transmission
	KeyEnter byte = 13 // submit the buffered line
	KeyQuit  byte = 17 // Ctrl+Q
)

// DefaultIdleTick is how long one idle poll waits for input.
const DefaultIdleTick = 500 * time.Millisecond

// Engine runs sessions against a fixed set of hooks.  One Engine is
// shared by every session of a server; Run is safe to call
// concurrently.
type Engine struct {
	Hooks    Hooks
	State    *broadcast.RunState
	IdleTick time.Duration
	Logger   *util.Logger
	Metrics  *metrics.Collector
	Registry *session.Registry
}

// New returns an Engine with the default idle tick.
func New(hooks Hooks, state *broadcast.RunState, logger *util.Logger) *Engine {
	return &Engine{
		Hooks:    hooks,
		State:    state,
		IdleTick: DefaultIdleTick,
		Logger:   logger,
	}
}

// Run drives s until the client quits, the session expires, the server
// stops, or the connection fails.  The socket is always closed on
// return.  Transport failures and hook panics are returned; clean ends
// (quit, expiry, shutdown, peer hang-up) return nil.
func (e *Engine) Run(ctx context.Context, s *session.Session) (err error) {
	if e.Registry != nil {
		e.Registry.Add(s)
	}
	e.Metrics.SessionOpened()
	s.Logger.Info("session opened from %s", s.RemoteAddr())

	defer func() {
		s.Close() //nolint:errcheck
		e.Metrics.SessionClosed()
		if err != nil {
			e.Metrics.RecordError(err.Error())
			s.Logger.Warn("session ended: %v", err)
			return
		}
		s.Logger.Info("session closed")
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", kaerrors.ErrHookPanic, r)
		}
	}()

	for {
		if ctx.Err() != nil || !e.running() {
			s.Logger.Verbose("stopping: %v", kaerrors.ErrNotRunning)
			e.Hooks.Terminate(s)
			return nil
		}

		if !s.WelcomeShown {
			e.Hooks.Intro(s)
			s.WelcomeShown = true
		}

		if err := s.Err(); err != nil {
			return ended(err)
		}

		ready, err := s.Poll(e.tick())
		if err != nil {
			return ended(err)
		}
		if !ready {
			if !e.Hooks.Valid(s) {
				return nil
			}
			continue
		}

		s.IdleTicks = 0
		more, err := e.step(ctx, s)
		if err != nil {
			return ended(err)
		}
		if !more {
			return nil
		}
	}
}

// step consumes one byte.  It reports false when the session should end.
func (e *Engine) step(ctx context.Context, s *session.Session) (bool, error) {
	b, err := s.ReadByte()
	if err != nil {
		return false, err
	}

	switch b {
	case KeyQuit, KeyEOT:
		e.Hooks.Terminate(s)
		// A trailing line is still dispatched on quit.
		e.flush(ctx, s)
		s.Logger.Debug("quit received")
		return false, nil

	case KeyEnter:
		o, ok := e.flush(ctx, s)
		if !ok {
			// Empty lines are dropped without a reply.
			return true, nil
		}
		if !s.SignedIn() && !o.Successful {
			return e.Hooks.RenderUnauthenticated(s, o), nil
		}
		e.Hooks.RenderAuthenticated(s, o)
		if o.Abort {
			e.Hooks.Terminate(s)
			return false, nil
		}
		return true, nil

	default:
		if s.Append(b) {
			s.Logger.Warn("line longer than %d bytes, discarding it", session.MaxLine)
		}
		return true, nil
	}
}

// flush turns the buffered line into a request.  The buffer is cleared
// on every path.  It reports false when there was nothing to process.
func (e *Engine) flush(ctx context.Context, s *session.Session) (Outcome, bool) {
	input := s.Line()
	defer s.ResetBuffer()

	isCommand := false
	if s.SignedIn() {
		input, isCommand = e.Hooks.Translate(s, input)
		if isCommand {
			e.Metrics.CommandResolved()
		}
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return Failed(true), false
	}
	s.Logger.Debug("request %q (command=%v)", input, isCommand)
	return e.Hooks.Process(ctx, s, input, isCommand), true
}

func (e *Engine) running() bool {
	return e.State == nil || e.State.Running()
}

func (e *Engine) tick() time.Duration {
	if e.IdleTick <= 0 {
		return DefaultIdleTick
	}
	return e.IdleTick
}

// ended filters errors that only mean the peer went away.
func ended(err error) error {
	if kaerrors.IsClosed(err) {
		return nil
	}
	return err
}
