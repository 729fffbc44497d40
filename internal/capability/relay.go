package capability

import (
	"context"

	"keyagent/internal/engine"
	"keyagent/internal/session"
)

// Relay is the anonymous profile: every session is signed in on
// connect, and everything except :quit goes to the host.
type Relay struct {
	base
}

func (r *Relay) Intro(s *session.Session) {
	s.SignIn()
	s.Printf("\t======Key Agent relay %s======\t\r\n", r.version)
	s.Print("Lines are typed on the host; prefix with " + execPrefix + " to press Enter.\r\n")
	s.Print("(CTRL + Q or " + quitWord + " to close current session)\r\n")
	s.Print(prompt(s))
}

func (r *Relay) Process(ctx context.Context, s *session.Session, input string, isCommand bool) engine.Outcome {
	if input == quitWord {
		return engine.Success(true)
	}
	return r.dispatch(ctx, s, input, isCommand)
}

// RenderUnauthenticated is only reachable if Intro has not run.
func (r *Relay) RenderUnauthenticated(s *session.Session, _ engine.Outcome) bool {
	s.Print(prompt(s))
	return true
}
