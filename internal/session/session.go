// Package session represents one accepted connection: its socket, the
// line buffer being typed, and the authentication and idle state the
// protocol engine drives.
//
// Everything except the display name and the connected flag is owned
// by the session's own goroutine.  Those two are read concurrently by
// the registry when another session asks who is connected.
package session

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	kaerrors "keyagent/internal/errors"
	"keyagent/internal/metrics"
	"keyagent/util"
)

// ack is written back after every byte read.  Existing clients expect
// it and discard it.
var ack = []byte{0}

// Session encapsulates the runtime state of a single connection.
type Session struct {
	ID      int64
	Trace   string // correlation id for logs
	Opened  time.Time
	Logger  *util.Logger
	Metrics *metrics.Collector

	// IdleTicks counts idle polls since the last received byte.
	IdleTicks int
	// WelcomeShown is set once the intro text has been sent.
	WelcomeShown bool

	conn     net.Conn
	reader   *bufio.Reader
	buffer   []byte
	overlong bool
	signedIn bool
	err      error // first write/read failure, sticky

	mu        sync.RWMutex
	userName  string
	connected atomic.Bool
	closeOnce sync.Once
}

// New creates a Session bound to conn.
func New(id int64, trace string, conn net.Conn, logger *util.Logger, m *metrics.Collector) *Session {
	s := &Session{
		ID:      id,
		Trace:   trace,
		Opened:  time.Now(),
		Logger:  logger,
		Metrics: m,
		conn:    conn,
		reader:  bufio.NewReader(conn),
	}
	s.connected.Store(true)
	return s
}

// ── byte I/O ─────────────────────────────────────────────────────────

// Poll waits up to wait for at least one byte to become readable.  A
// deadline expiry is not an error: it reports false so the caller can
// account an idle tick.
func (s *Session) Poll(wait time.Duration) (bool, error) {
	if s.reader.Buffered() > 0 {
		return true, nil
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return false, s.fail(fmt.Errorf("set deadline: %w", err))
	}
	_, err := s.reader.Peek(1)
	s.conn.SetReadDeadline(time.Time{}) //nolint:errcheck
	switch {
	case err == nil:
		return true, nil
	case kaerrors.IsTimeout(err):
		return false, nil
	default:
		return false, s.fail(fmt.Errorf("poll: %w", err))
	}
}

// ReadByte reads exactly one byte and answers it with a zero byte.
func (s *Session) ReadByte() (byte, error) {
	b, err := s.reader.ReadByte()
	if err != nil {
		return 0, s.fail(fmt.Errorf("read byte: %w", err))
	}
	s.Metrics.BytesReceived(1)
	if _, err := s.Write(ack); err != nil {
		return b, err
	}
	return b, nil
}

// Write sends p unchanged.  The first failure is remembered and
// returned by every later Write and by Err.
func (s *Session) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	n, err := s.conn.Write(p)
	s.Metrics.BytesSent(int64(n))
	if err != nil {
		return n, s.fail(fmt.Errorf("write: %w", err))
	}
	return n, nil
}

// Print writes text as ASCII; runes outside the ASCII range become '?'.
// Failures are recorded, see Err.
func (s *Session) Print(text string) {
	s.Write(asciiBytes(text)) //nolint:errcheck
}

// Printf formats according to a format specifier and writes the result
// with Print.
func (s *Session) Printf(format string, args ...interface{}) {
	s.Print(fmt.Sprintf(format, args...))
}

// Err returns the first transport error seen by this session.
func (s *Session) Err() error { return s.err }

func (s *Session) fail(err error) error {
	if s.err == nil {
		s.err = err
	}
	return err
}

func asciiBytes(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		if r > 127 {
			r = '?'
		}
		out = append(out, byte(r))
	}
	return out
}

// ── line buffer ──────────────────────────────────────────────────────

// MaxLine bounds the line buffer.
const MaxLine = 4096

// Append adds one received character to the line buffer.  A line that
// grows past MaxLine is discarded: its characters are dropped until
// ResetBuffer, and Line reports it as empty.  Append returns true only
// for the character that overflowed the line.
func (s *Session) Append(b byte) bool {
	if s.overlong {
		return false
	}
	if len(s.buffer) >= MaxLine {
		s.overlong = true
		s.buffer = s.buffer[:0]
		return true
	}
	s.buffer = append(s.buffer, b)
	return false
}

// Line returns the buffered characters as a string.
func (s *Session) Line() string { return string(s.buffer) }

// BufferLen returns the number of buffered characters.
func (s *Session) BufferLen() int { return len(s.buffer) }

// ResetBuffer empties the line buffer.
func (s *Session) ResetBuffer() {
	s.buffer = s.buffer[:0]
	s.overlong = false
}

// ── authentication and identity ──────────────────────────────────────

// SignIn marks the session authenticated.  There is no way back.
func (s *Session) SignIn() { s.signedIn = true }

// SignedIn reports whether a valid credential has been presented.
func (s *Session) SignedIn() bool { return s.signedIn }

// UserName returns the display name, empty until set.
func (s *Session) UserName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userName
}

// SetUserName sets the display name for the life of the session.
func (s *Session) SetUserName(name string) {
	s.mu.Lock()
	s.userName = name
	s.mu.Unlock()
}

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// ── lifecycle ────────────────────────────────────────────────────────

// Connected reports whether the socket is still open.
func (s *Session) Connected() bool { return s.connected.Load() }

// Close closes the socket.  It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.connected.Store(false)
		err = s.conn.Close()
	})
	return err
}
