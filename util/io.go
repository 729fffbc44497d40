package util

import (
	"context"
	"io"
	"net"
	"sync"

	kaerrors "keyagent/internal/errors"
)

// DefaultBufSize is the standard buffer size for network I/O (32 KiB).
const DefaultBufSize = 32 * 1024

// BidirectionalCopy shuffles data between a network connection and a
// local reader/writer pair (the interactive terminal in client mode)
// until either side reaches EOF or the context is cancelled.
//
// The reader goroutine is not waited for: a terminal read cannot be
// interrupted, so it may outlive the call until its next read fails
// against the closed connection.
func BidirectionalCopy(ctx context.Context, conn net.Conn, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	// network → writer.  The agent closes its side on quit, idle
	// expiry or shutdown, which is what normally ends the copy.
	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- pooledCopy(w, conn)
		cancel()
	}()

	// reader → network
	go func() {
		err := pooledCopy(conn, r)
		// Half-close so the agent sees EOF, but keep reading until it
		// has flushed its goodbye text.
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.CloseWrite() //nolint:errcheck
		}
		errCh <- err
		if err != nil {
			cancel()
		}
	}()

	<-ctx.Done()
	conn.Close() // unblock any pending reads/writes
	wg.Wait()

	for {
		select {
		case err := <-errCh:
			if !kaerrors.IsClosed(err) {
				return err
			}
		default:
			return nil
		}
	}
}

func pooledCopy(dst io.Writer, src io.Reader) error {
	buf := GetBuf()
	defer PutBuf(buf)
	_, err := io.CopyBuffer(dst, src, *buf)
	return err
}
