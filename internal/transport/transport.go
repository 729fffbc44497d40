// Package transport opens the outbound connection used by the
// interactive client.  What travels over it is the engine's business.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound connections.
type Dialer interface {
	// Dial connects to address.
	Dial(ctx context.Context, address string) (net.Conn, error)

	// Close releases resources held by the dialer.  Stateless dialers
	// return nil.
	Close() error
}
