package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"keyagent/internal/transport"
	"keyagent/util"
)

// ConnectMode dials an agent and wires it to the local terminal: typed
// keys go out as protocol bytes, replies come back with the per-byte
// zero acknowledgements removed.
type ConnectMode struct {
	Dialer  transport.Dialer
	Address string
	Logger  *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run dials the agent and relays until either side closes.  When stdin
// is a terminal it is switched to raw mode for the duration, so Enter,
// Ctrl+Q and Ctrl+D reach the agent as single bytes.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	m.Logger.Verbose("connecting to %s", m.Address)
	conn, err := m.Dialer.Dial(ctx, m.Address)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", m.Address, err)
	}
	defer conn.Close()
	m.Logger.Verbose("connected to %s", conn.RemoteAddr())

	out := m.stdout()
	in := &keyReader{r: m.stdin()}

	if f, ok := in.r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("raw terminal: %w", err)
		}
		defer term.Restore(int(f.Fd()), state) //nolint:errcheck
		in.echo = out
	}

	return util.BidirectionalCopy(ctx, conn, in, &ackStripper{w: out})
}

// keyReader turns line feeds into the carriage return the agent treats
// as submit, and echoes typed characters when the terminal is raw.
type keyReader struct {
	r    io.Reader
	echo io.Writer
}

func (k *keyReader) Read(p []byte) (int, error) {
	n, err := k.r.Read(p)
	for i := 0; i < n; i++ {
		if p[i] == '\n' {
			p[i] = '\r'
		}
	}
	if k.echo != nil && n > 0 {
		k.echo.Write(echoBytes(p[:n])) //nolint:errcheck
	}
	return n, err
}

// echoBytes renders typed bytes for local display: Enter becomes a
// newline and other control codes are not shown.
func echoBytes(p []byte) []byte {
	out := make([]byte, 0, len(p)+1)
	for _, b := range p {
		switch {
		case b == '\r':
			out = append(out, '\r', '\n')
		case b >= 32 && b != 127:
			out = append(out, b)
		}
	}
	return out
}

// ackStripper drops the zero bytes the agent writes after every byte it
// reads.
type ackStripper struct {
	w io.Writer
}

func (a *ackStripper) Write(p []byte) (int, error) {
	if bytes.IndexByte(p, 0) < 0 {
		return a.w.Write(p)
	}
	if _, err := a.w.Write(bytes.ReplaceAll(p, []byte{0}, nil)); err != nil {
		return 0, err
	}
	return len(p), nil
}
