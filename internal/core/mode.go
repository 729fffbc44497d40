// Package core is the orchestration layer.  It composes the acceptor,
// the session engine, profiles and transports into complete modes of
// operation and provides a builder that selects one from a Config.
//
// Architecture layers (bottom → top):
//
//	command, session  →  engine  →  capability  →  core  →  cmd (CLI)
package core

import "context"

// Mode is a complete way of running keyagent: serving sessions, or
// connecting to an agent as an interactive client.  Each mode owns its
// full lifecycle.
type Mode interface {
	Run(ctx context.Context) error
}
