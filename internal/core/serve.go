package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"keyagent/internal/broadcast"
	"keyagent/internal/metrics"
	"keyagent/util"
)

// ServeMode runs the agent: the acceptor and, when MetricsAddr is set,
// an HTTP endpoint exposing the metrics collector.  It returns once
// the context ends or a session publishes a shutdown, after live
// sessions have had GracePeriod to say goodbye.
type ServeMode struct {
	Acceptor    *Acceptor
	Port        int
	Backlog     int
	MetricsAddr string
	GracePeriod time.Duration
	State       *broadcast.RunState
	Metrics     *metrics.Collector
	Logger      *util.Logger

	// OnListening, when set, is called with the bound address once the
	// acceptor is up.
	OnListening func(net.Addr)
}

// Run starts serving and blocks until shutdown.
func (m *ServeMode) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe := m.State.Subscribe(func(running bool) {
		if !running {
			cancel()
		}
	})
	defer unsubscribe()

	if err := m.Acceptor.Start(m.Port, m.Backlog); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer m.Acceptor.Stop()

	var metricsLn net.Listener
	if m.MetricsAddr != "" {
		ln, err := net.Listen("tcp", m.MetricsAddr)
		if err != nil {
			m.State.Publish(false)
			return fmt.Errorf("metrics listener: %w", err)
		}
		metricsLn = ln
	}

	if m.OnListening != nil {
		m.OnListening(m.Acceptor.Addr())
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		err := m.Acceptor.AcceptLoop(gctx)
		// However the loop ended, the server is no longer running.
		cancel()
		return err
	})
	if metricsLn != nil {
		srv := &http.Server{
			Handler:           metrics.Handler(m.Metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}
		m.Logger.Info("metrics on http://%s/metrics", metricsLn.Addr())
		g.Go(func() error {
			if err := srv.Serve(metricsLn); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()

	if m.State.Running() {
		m.State.Publish(false)
	}
	m.Acceptor.Stop()
	grace := m.GracePeriod
	if grace <= 0 {
		grace = 5 * time.Second
	}
	if !m.Acceptor.Wait(grace) {
		m.Logger.Warn("sessions still open after %v", grace)
	}
	m.Logger.Info("server stopped (%d sessions served)", m.Metrics.TotalSessions())
	return err
}
