package transport

import (
	"context"
	"net"
	"time"

	kaerrors "keyagent/internal/errors"
	"keyagent/internal/retry"
	"keyagent/util"
)

// TCPDialer establishes plain TCP connections with Nagle disabled, so
// every keystroke leaves as soon as it is typed.
type TCPDialer struct {
	Timeout   time.Duration
	KeepAlive time.Duration
}

// Dial connects to address over TCP.  Failures come back as
// *errors.NetworkError with retryability classified.
func (d *TCPDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, kaerrors.Wrap("dial", address, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true) //nolint:errcheck
	}
	return conn, nil
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }

// RetryDialer retries retryable dial failures with a backoff.
type RetryDialer struct {
	Dialer  Dialer
	Backoff *retry.Backoff
	Logger  *util.Logger
}

// Dial connects through the wrapped Dialer.  Errors that are not
// retryable end the loop on the first attempt.
func (d *RetryDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	b := d.Backoff
	if b == nil {
		b = retry.DialBackoff()
	}
	if d.Logger != nil && b.OnRetry == nil {
		cp := *b
		cp.OnRetry = func(attempt int, wait time.Duration, err error) {
			d.Logger.Warn("attempt %d failed: %v; retrying in %v", attempt, err, wait.Truncate(time.Millisecond))
		}
		b = &cp
	}

	var conn net.Conn
	err := b.Do(ctx, func(int) error {
		c, err := d.Dialer.Dial(ctx, address)
		if err != nil {
			if !kaerrors.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		conn = c
		return nil
	})
	return conn, err
}

// Close closes the wrapped Dialer.
func (d *RetryDialer) Close() error { return d.Dialer.Close() }
