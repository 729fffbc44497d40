package core

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyagent/internal/actuator"
	"keyagent/internal/broadcast"
	"keyagent/internal/capability"
	"keyagent/internal/command"
	"keyagent/internal/engine"
	kaerrors "keyagent/internal/errors"
	"keyagent/internal/metrics"
	"keyagent/internal/session"
	"keyagent/util"
)

const secret = "hunter2"

type server struct {
	acceptor *Acceptor
	state    *broadcast.RunState
	rec      *actuator.Recorder
	metrics  *metrics.Collector
	addr     string
	loopDone chan error
	cancel   context.CancelFunc
}

func startServer(t *testing.T, backlog, timeoutMinutes int, tick time.Duration) *server {
	t.Helper()

	state := broadcast.New()
	m := metrics.New()
	registry := session.NewRegistry()
	rec := &actuator.Recorder{}

	hooks, err := capability.New(capability.ProfileShell, capability.Options{
		Tree: command.MustBuild([]command.Definition{
			{Name: "open", CommandText: "launch", Children: []command.Definition{
				{Name: "browser", CommandText: "chrome.exe"},
			}},
		}),
		Secret:   secret,
		Actuator: rec,
		State:    state,
		Registry: registry,
		Metrics:  m,
		Timeout:  timeoutMinutes,
		Settle:   time.Millisecond,
		Version:  "test",
	})
	require.NoError(t, err)

	eng := engine.New(hooks, state, util.NewNopLogger())
	eng.IdleTick = tick
	eng.Metrics = m
	eng.Registry = registry

	a := &Acceptor{Host: "127.0.0.1", Engine: eng, State: state, Logger: util.NewNopLogger(), Metrics: m}
	require.NoError(t, a.Start(0, backlog))

	ctx, cancel := context.WithCancel(context.Background())
	srv := &server{
		acceptor: a,
		state:    state,
		rec:      rec,
		metrics:  m,
		addr:     a.Addr().String(),
		loopDone: make(chan error, 1),
		cancel:   cancel,
	}
	go func() { srv.loopDone <- a.AcceptLoop(ctx) }()
	t.Cleanup(func() {
		cancel()
		a.Stop()
		a.Wait(2 * time.Second)
	})
	return srv
}

// client is one test connection that reads with the acks removed.
type client struct {
	t    *testing.T
	conn net.Conn
	seen bytes.Buffer
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line))
	require.NoError(c.t, err)
}

// until reads until want appears and returns everything read since the
// previous call.
func (c *client) until(want string) string {
	c.t.Helper()
	buf := make([]byte, 1024)
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(c.seen.String(), want) {
		c.conn.SetReadDeadline(deadline) //nolint:errcheck
		n, err := c.conn.Read(buf)
		c.seen.Write(bytes.ReplaceAll(buf[:n], []byte{0}, nil))
		if err != nil {
			require.Failf(c.t, "did not see expected text", "want %q, have %q: %v", want, c.seen.String(), err)
		}
	}
	out := c.seen.String()
	c.seen.Reset()
	return out
}

// closed waits for the server to close the connection.
func (c *client) closed() string {
	c.t.Helper()
	buf := make([]byte, 1024)
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	for {
		n, err := c.conn.Read(buf)
		c.seen.Write(bytes.ReplaceAll(buf[:n], []byte{0}, nil))
		if err != nil {
			require.False(c.t, kaerrors.IsTimeout(err), "connection still open")
			return c.seen.String()
		}
	}
}

func TestAcceptor_AccessDeniedThenWho(t *testing.T) {
	srv := startServer(t, 10, 5, 10*time.Millisecond)
	c := dial(t, srv.addr)
	c.until("$guest: ")

	c.send("who\r")
	out := c.until("To sign in type $LOGIN:[password]")
	assert.Contains(t, out, "Access Denied")
	assert.NotContains(t, out, "Is Current")

	c.send("$LOGIN:" + secret + "\r")
	c.until("Message received.")

	c.send("who\r")
	out = c.until("Message received.")
	assert.Contains(t, out, "Id\t|\tUser Name\t|\tConnected\t|\tIs Current\r\n")
	assert.Contains(t, out, "1\t|\tGuest\t|\ttrue\t|\ttrue\r\n")
}

func TestAcceptor_ResolvesAndDispatches(t *testing.T) {
	srv := startServer(t, 10, 5, 10*time.Millisecond)
	c := dial(t, srv.addr)
	c.until("$guest: ")

	c.send("$LOGIN:" + secret + "\r")
	c.until("Message received.")
	c.send("open browser now\r")
	c.until("Message received.")
	c.send("close browser\r")
	c.until("Message received.")

	assert.Equal(t, []string{"launch chrome.exe", "close browser"}, srv.rec.Typed())
	assert.Equal(t, int64(2), srv.metrics.Dispatches())
}

func TestAcceptor_ShutdownCascades(t *testing.T) {
	srv := startServer(t, 10, 5, 20*time.Millisecond)

	admin := dial(t, srv.addr)
	admin.until("$guest: ")
	other := dial(t, srv.addr)
	other.until("$guest: ")

	admin.send("$LOGIN:" + secret + "\r")
	admin.until("Message received.")
	admin.send("system.shutdown\r")

	assert.Contains(t, admin.closed(), "OK, Bye!")
	start := time.Now()
	assert.Contains(t, other.closed(), "OK, Bye!")
	assert.Less(t, time.Since(start), time.Second)

	select {
	case err := <-srv.loopDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop still running")
	}
	assert.False(t, srv.state.Running())

	_, err := net.DialTimeout("tcp", srv.addr, 200*time.Millisecond)
	assert.Error(t, err, "listener should be closed")
}

func TestAcceptor_IdleSessionShowsDisconnected(t *testing.T) {
	// One minute of 2ms ticks expires in about a quarter second.
	srv := startServer(t, 10, 1, 2*time.Millisecond)

	watcher := dial(t, srv.addr)
	watcher.until("$guest: ")
	watcher.send("$LOGIN:" + secret + "\r")
	watcher.until("Message received.")

	idle := dial(t, srv.addr)
	idle.until("$guest: ")

	// Keep the watcher alive while the idle session runs out.
	deadline := time.Now().Add(5 * time.Second)
	var out string
	for time.Now().Before(deadline) {
		watcher.send("who\r")
		out = watcher.until("Message received.")
		if strings.Contains(out, "2\t|\tGuest\t|\tfalse\t|\tfalse") {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	assert.Contains(t, out, "2\t|\tGuest\t|\tfalse\t|\tfalse")
	assert.Contains(t, idle.closed(), "will be terminated.")
	assert.Equal(t, int64(1), srv.metrics.IdleExpiries())
}

func TestAcceptor_BacklogLimitsLiveSessions(t *testing.T) {
	srv := startServer(t, 1, 5, 10*time.Millisecond)

	first := dial(t, srv.addr)
	first.until("$guest: ")

	second := dial(t, srv.addr)
	assert.Contains(t, second.closed(), "Server busy")
	assert.Equal(t, int64(1), srv.metrics.RejectedSessions())

	first.send("\x11")
	first.closed()

	require.True(t, srv.acceptor.Wait(2*time.Second), "slot not released")
	third := dial(t, srv.addr)
	third.until("$guest: ")
}

func TestAcceptor_SessionIDsIncrease(t *testing.T) {
	srv := startServer(t, 10, 5, 10*time.Millisecond)

	for i := 0; i < 3; i++ {
		c := dial(t, srv.addr)
		c.until("$guest: ")
		c.send("\x11")
		c.closed()
	}
	assert.Equal(t, int64(3), srv.acceptor.nextID.Load())
}

func TestAcceptor_CancelStopsLoop(t *testing.T) {
	srv := startServer(t, 10, 5, 10*time.Millisecond)
	c := dial(t, srv.addr)
	c.until("$guest: ")

	srv.cancel()
	select {
	case err := <-srv.loopDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop still running")
	}
	assert.Contains(t, c.closed(), "OK, Bye!")
}

func TestAcceptLoop_NotRunningReturnsImmediately(t *testing.T) {
	state := broadcast.New()
	a := &Acceptor{State: state, Logger: util.NewNopLogger()}
	assert.NoError(t, a.AcceptLoop(context.Background()))

	state.Publish(true)
	assert.ErrorIs(t, a.AcceptLoop(context.Background()), kaerrors.ErrListenerAbsent)
}

func TestAcceptor_StartFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	a := &Acceptor{Host: "127.0.0.1", State: broadcast.New(), Logger: util.NewNopLogger()}
	err = a.Start(ln.Addr().(*net.TCPAddr).Port, 1)
	require.Error(t, err)
	var ne *kaerrors.NetworkError
	assert.ErrorAs(t, err, &ne)
	assert.False(t, a.State.Running())
}

func TestNextDelay(t *testing.T) {
	assert.Equal(t, 5*time.Millisecond, nextDelay(0))
	assert.Equal(t, 10*time.Millisecond, nextDelay(5*time.Millisecond))
	assert.Equal(t, time.Second, nextDelay(800*time.Millisecond))
}
