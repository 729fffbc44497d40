// Package capability defines what a session can do once connected.
// Each profile is a set of engine hooks: the authenticated Shell with
// the full in-band command surface, and the anonymous Relay that types
// whatever it receives.
package capability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"keyagent/internal/actuator"
	"keyagent/internal/broadcast"
	"keyagent/internal/command"
	"keyagent/internal/engine"
	kaerrors "keyagent/internal/errors"
	"keyagent/internal/metrics"
	"keyagent/internal/session"
)

// Profile names accepted by New.
const (
	ProfileShell = "shell"
	ProfileRelay = "relay"
)

// Profiles lists the accepted profile names.
func Profiles() []string { return []string{ProfileShell, ProfileRelay} }

// In-band command prefixes and words.
const (
	loginPrefix   = "$LOGIN:"
	setNamePrefix = "$USER_NAME:SET:"
	getName       = "$USER_NAME:GET"
	execPrefix    = "./"
	quitWord      = ":quit"
	whoWord       = "who"
	shutdownWord  = "system.shutdown"
	toggleWord    = "toggleConsole"
)

// DefaultSettle is the pause that lets the host console catch up
// between injected steps.
const DefaultSettle = 500 * time.Millisecond

// Options carries everything a profile needs from the server.
type Options struct {
	Tree     *command.Tree
	Secret   string // decoded shared secret
	Actuator actuator.Actuator
	State    *broadcast.RunState
	Registry *session.Registry
	Metrics  *metrics.Collector
	Timeout  int // idle timeout in minutes
	Settle   time.Duration
	Version  string
}

// New returns the hooks for the named profile.
func New(profile string, opts Options) (engine.Hooks, error) {
	b := newBase(opts)
	switch profile {
	case ProfileShell, "":
		return &Shell{base: b, secret: opts.Secret, state: opts.State, registry: opts.Registry}, nil
	case ProfileRelay:
		return &Relay{base: b}, nil
	}
	return nil, fmt.Errorf("unknown profile %q", profile)
}

// base holds the behaviour both profiles share: prompting, command
// translation, dispatch to the actuator, goodbye and idle supervision.
type base struct {
	tree    *command.Tree
	act     actuator.Actuator
	metrics *metrics.Collector
	idle    engine.IdleBudget
	settle  time.Duration
	version string
}

func newBase(opts Options) base {
	settle := opts.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	act := opts.Actuator
	if act == nil {
		act = &actuator.Recorder{Limit: 256}
	}
	return base{
		tree:    opts.Tree,
		act:     act,
		metrics: opts.Metrics,
		idle:    engine.NewIdleBudget(opts.Timeout),
		settle:  settle,
		version: opts.Version,
	}
}

func prompt(s *session.Session) string {
	if name := s.UserName(); name != "" {
		return "$" + name + ": "
	}
	return "$guest: "
}

// Translate resolves input against the command tree.
func (b *base) Translate(_ *session.Session, input string) (string, bool) {
	m, ok := b.tree.Resolve(input)
	if !ok || m.Text == "" {
		return input, false
	}
	return m.Text, true
}

func (b *base) RenderAuthenticated(s *session.Session, o engine.Outcome) {
	if o.Successful {
		s.Print("Message received.\r\n")
	}
	s.Print(prompt(s))
}

func (b *base) Terminate(s *session.Session) {
	s.Print("\r\nOK, Bye!\r\n")
}

// Valid advances the idle counter, warning the client periodically and
// reporting false once the budget is spent.
func (b *base) Valid(s *session.Session) bool {
	switch b.idle.Tick(&s.IdleTicks) {
	case engine.IdleWarn:
		s.Printf("Session has been idle for %d ticks and will be terminated after %d ticks\r\n\r\n%s",
			s.IdleTicks, b.idle.Remaining(s.IdleTicks), prompt(s))
		s.Logger.Warn("idle for %d ticks", s.IdleTicks)
	case engine.IdleExpired:
		b.metrics.IdleExpired()
		s.Logger.Info("%v: expired after %d idle ticks", kaerrors.ErrTimeout, b.idle.Max)
		s.Printf("Session has been idle for %d ticks and will be terminated.\r\n", b.idle.Max)
		return false
	}
	return true
}

// dispatch hands input to the actuator.  A resolved command is typed
// into the host console and confirmed; literal input is typed where the
// focus already is, and confirmed only when it carries the exec prefix.
func (b *base) dispatch(ctx context.Context, s *session.Session, input string, isCommand bool) engine.Outcome {
	var err error
	if isCommand {
		err = b.run(ctx,
			b.act.ToggleFocus,
			b.pause,
			func(ctx context.Context) error { return b.act.TypeText(ctx, input) },
			b.pause,
			b.enter,
			b.pause,
			b.act.ToggleFocus,
		)
	} else {
		text, executable := strings.CutPrefix(input, execPrefix)
		if strings.TrimSpace(text) == "" {
			s.Logger.Verbose("nothing to type after %q", execPrefix)
			return engine.Failed(true)
		}
		steps := []func(context.Context) error{
			func(ctx context.Context) error { return b.act.TypeText(ctx, text) },
		}
		if executable {
			steps = append(steps, b.pause, b.enter)
		}
		err = b.run(ctx, steps...)
	}

	if err != nil {
		b.metrics.RecordError(err.Error())
		s.Logger.Error("dispatch failed: %v", err)
		s.Printf("Unable to send input: %v\r\n", err)
		return engine.Failed(true)
	}
	b.metrics.Dispatched()
	s.Logger.Verbose("dispatched %q (command=%v)", input, isCommand)
	return engine.Success(false)
}

func (b *base) run(ctx context.Context, steps ...func(context.Context) error) error {
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *base) pause(ctx context.Context) error { return b.act.Sleep(ctx, b.settle) }
func (b *base) enter(ctx context.Context) error { return b.act.PressKey(ctx, actuator.KeyEnter) }
