package capability

import (
	"context"
	"crypto/subtle"
	"strconv"
	"strings"

	"keyagent/internal/broadcast"
	"keyagent/internal/engine"
	kaerrors "keyagent/internal/errors"
	"keyagent/internal/session"
)

const sep = "\t|\t"

// Shell is the authenticated profile.  A session must present the
// shared secret with $LOGIN: before anything reaches the host.
type Shell struct {
	base
	secret   string
	state    *broadcast.RunState
	registry *session.Registry
}

func (sh *Shell) Intro(s *session.Session) {
	s.Print("\t======Key Agent======\t\r\n")
	s.Printf("\t======Version %s======\t\r\n", sh.version)
	s.Print("Welcome!\r\n")
	s.Print("\t* Sign in with " + loginPrefix + "[password]\r\n")
	s.Print("\t* Set session user name with " + setNamePrefix + "[username]\r\n")
	s.Print("\t* Get current session user name with " + getName + "\r\n")
	s.Print("\t* Send executable commands with " + execPrefix + "[command]\r\n")
	s.Print("(CTRL + Q or " + quitWord + " to close current session)\r\n")
	s.Print(prompt(s))
}

func (sh *Shell) Process(ctx context.Context, s *session.Session, input string, isCommand bool) engine.Outcome {
	switch {
	case input == quitWord:
		return engine.Success(true)

	case strings.HasPrefix(input, setNamePrefix):
		s.SetUserName(strings.TrimPrefix(input, setNamePrefix))
		s.Printf("User name has been set to %s, this will be reset on session termination.\r\n", s.UserName())
		return engine.Success(false)

	case strings.HasPrefix(input, getName):
		if strings.TrimSpace(s.UserName()) == "" {
			s.Print("User name has not been set, you can set the user name at any time with " + setNamePrefix + "\r\n")
			return engine.Success(false)
		}
		s.Printf("User name has been set to %s\r\n", s.UserName())
		return engine.Success(false)

	case strings.HasPrefix(input, loginPrefix):
		return sh.login(s, strings.TrimPrefix(input, loginPrefix))
	}

	if !s.SignedIn() {
		s.Logger.Verbose("rejected request from anonymous session")
		return engine.Failed(true)
	}

	switch input {
	case whoWord:
		sh.who(s)
		return engine.Success(false)

	case shutdownWord:
		s.Logger.Warn("shutdown requested")
		sh.state.Publish(false)
		return engine.Success(true)

	case toggleWord:
		if err := sh.act.ToggleFocus(ctx); err != nil {
			sh.metrics.RecordError(err.Error())
			s.Logger.Error("toggle console: %v", err)
			s.Printf("Unable to toggle console: %v\r\n", err)
			return engine.Failed(true)
		}
		return engine.Success(false)
	}

	return sh.dispatch(ctx, s, input, isCommand)
}

func (sh *Shell) login(s *session.Session, password string) engine.Outcome {
	s.Print("Please wait...\r\n")
	ok := sh.secret != "" && subtle.ConstantTimeCompare([]byte(password), []byte(sh.secret)) == 1
	if ok {
		s.SignIn()
	}
	s.Print("Done! If the password was valid you should have access to all areas.\r\n")

	sh.metrics.Login(ok)
	if !ok {
		s.Logger.Warn("sign-in from %s: %v", s.RemoteAddr(), kaerrors.ErrAuthFailed)
		return engine.Failed(true)
	}
	s.Logger.Info("sign-in successful")
	return engine.Success(false)
}

// who lists every registered session, closed ones included.
func (sh *Shell) who(s *session.Session) {
	var b strings.Builder
	b.WriteString("Id" + sep + "User Name" + sep + "Connected" + sep + "Is Current\r\n")
	for _, info := range sh.registry.List() {
		name := info.UserName
		if name == "" {
			name = "Guest"
		}
		b.WriteString(strconv.FormatInt(info.ID, 10) + sep + name + sep +
			strconv.FormatBool(info.Connected) + sep + strconv.FormatBool(info.ID == s.ID) + "\r\n")
	}
	s.Print(b.String())
}

func (sh *Shell) RenderUnauthenticated(s *session.Session, _ engine.Outcome) bool {
	s.Print("\r\n\r\nAccess Denied: You must be signed in to use this utility.\r\n\t")
	s.Print("To sign in type " + loginPrefix + "[password]\r\n")
	s.Print(prompt(s))
	return true
}
