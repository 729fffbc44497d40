package core

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"keyagent/internal/broadcast"
	"keyagent/internal/engine"
	kaerrors "keyagent/internal/errors"
	"keyagent/internal/metrics"
	"keyagent/internal/session"
	"keyagent/util"
)

const busyNotice = "Server busy: too many live sessions, try again later.\r\n"

// Acceptor owns the listening socket.  It hands every accepted
// connection to the engine on its own goroutine and stops accepting
// when the context ends or the run state turns false.
type Acceptor struct {
	Host    string // interface to bind; empty means all
	Engine  *engine.Engine
	State   *broadcast.RunState
	Logger  *util.Logger
	Metrics *metrics.Collector

	mu          sync.Mutex
	ln          net.Listener
	slots       *semaphore.Weighted
	unsubscribe func()

	nextID atomic.Int64
	wg     sync.WaitGroup
}

// Start binds host:port and publishes that the server is running.  At
// most backlog sessions are live at once.
func (a *Acceptor) Start(port, backlog int) error {
	addr := net.JoinHostPort(a.Host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return kaerrors.Wrap("listen", addr, err)
	}
	if backlog < 1 {
		backlog = 1
	}

	a.mu.Lock()
	a.ln = ln
	a.slots = semaphore.NewWeighted(int64(backlog))
	a.mu.Unlock()

	a.State.Publish(true)
	unsubscribe := a.State.Subscribe(func(running bool) {
		if !running {
			a.closeListener()
		}
	})
	a.mu.Lock()
	a.unsubscribe = unsubscribe
	a.mu.Unlock()

	a.Logger.Info("listening on %s (backlog %d)", ln.Addr(), backlog)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (a *Acceptor) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

// AcceptLoop accepts connections until ctx ends, the run state turns
// false, or the listener fails.  It returns nil immediately when the
// server is not running.  Sessions are launched with ctx and are not
// waited for; see Wait.
func (a *Acceptor) AcceptLoop(ctx context.Context) error {
	if ctx.Err() != nil || !a.State.Running() {
		return nil
	}

	a.mu.Lock()
	ln := a.ln
	a.mu.Unlock()
	if ln == nil {
		return kaerrors.ErrListenerAbsent
	}

	stop := context.AfterFunc(ctx, a.closeListener)
	defer stop()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || !a.State.Running() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if !kaerrors.IsRetryable(err) {
				return kaerrors.Wrap("accept", ln.Addr().String(), err)
			}
			delay = nextDelay(delay)
			a.Logger.Warn("accept: %v; retrying in %v", err, delay)
			a.Metrics.RecordError(err.Error())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		delay = 0
		a.launch(ctx, conn)
	}
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		return time.Second
	}
	return d
}

func (a *Acceptor) launch(ctx context.Context, conn net.Conn) {
	if !a.slots.TryAcquire(1) {
		a.Metrics.SessionRejected()
		a.Logger.Warn("rejecting %s: %v", conn.RemoteAddr(), kaerrors.ErrServerBusy)
		conn.Write([]byte(busyNotice)) //nolint:errcheck
		conn.Close()
		return
	}

	id := a.nextID.Add(1)
	trace := uuid.NewString()
	logger := a.Logger.With("session", id).With("trace", trace)
	s := session.New(id, trace, conn, logger, a.Metrics)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.slots.Release(1)
		a.Engine.Run(ctx, s) //nolint:errcheck // logged by the engine
	}()
}

// Stop closes the listening socket.  Live sessions are left to notice
// the run state or their context and end themselves.
func (a *Acceptor) Stop() {
	a.closeListener()
	a.mu.Lock()
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Wait blocks until every launched session has returned or timeout
// passes.  It reports whether all sessions finished.
func (a *Acceptor) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (a *Acceptor) closeListener() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln != nil {
		if err := a.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			a.Logger.Debug("close listener: %v", err)
		}
	}
}
