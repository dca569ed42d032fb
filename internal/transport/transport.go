// Package transport connects a chat session to the remote messaging endpoint.
//
// A Dialer performs the handshake and yields a Conn. The Conn delivers
// inbound frames in the order the remote side sent them and closes its
// Frames channel exactly once, when the connection is gone for any reason.
package transport

import (
	"context"
	"errors"

	"github.com/atelierdesign/site-chat/internal/model/chat"
)

// ErrClosed is returned by Send after the connection has been closed.
var ErrClosed = errors.New("transport closed")

// Dialer opens connections to the remote endpoint.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is one open connection.
type Conn interface {
	// Send writes a frame. It returns once the frame has been handed to the
	// network, not when the remote side has processed it.
	Send(ctx context.Context, frame chat.Frame) error
	// Frames yields inbound frames and is closed on disconnect.
	Frames() <-chan chat.Frame
	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}
