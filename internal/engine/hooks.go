package engine

import (
	"context"

	"keyagent/internal/session"
)

// Outcome is the result of processing one submitted line.
type Outcome struct {
	Processed  bool
	Successful bool
	Abort      bool // end the session after rendering
}

// Success reports a handled request.  abort asks the engine to end the
// session once the result has been rendered.
func Success(abort bool) Outcome {
	return Outcome{Processed: true, Successful: true, Abort: abort}
}

// Failed reports a request that was not honoured.
func Failed(processed bool) Outcome {
	return Outcome{Processed: processed}
}

// Hooks are the decision points a deployment profile supplies to the
// engine.  The engine owns the byte loop, the flush pipeline and the
// idle supervision; everything the user sees comes from here.
//
// All methods are called from the session's own goroutine.
type Hooks interface {
	// Intro emits the one-time banner.
	Intro(s *session.Session)

	// Translate maps an authenticated line to the text to dispatch.
	// It returns the input unchanged and false when nothing matched.
	Translate(s *session.Session, input string) (string, bool)

	// Process runs the request: credential checks, meta-commands, or
	// dispatch to the host.
	Process(ctx context.Context, s *session.Session, input string, isCommand bool) Outcome

	// RenderAuthenticated writes feedback for a signed-in session, or
	// for any successful request.
	RenderAuthenticated(s *session.Session, o Outcome)

	// RenderUnauthenticated writes feedback for a failed request from a
	// session that has not signed in.  It returns false to drop the
	// connection.
	RenderUnauthenticated(s *session.Session, o Outcome) bool

	// Terminate emits the goodbye notice.
	Terminate(s *session.Session)

	// Valid is asked once per idle tick and returns false when the
	// session has expired.
	Valid(s *session.Session) bool
}
