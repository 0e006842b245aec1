package transport

import (
	"context"
	"net"
)

// RelayServer accepts relay clients.
// Implemented by Server.
type RelayServer interface {
	// Start opens the listeners and begins accepting connections.
	Start(ctx context.Context) error

	// Stop closes the listeners and all connections.
	Stop() error

	// Addr returns the TCP listen address.
	Addr() net.Addr

	// ConnectionCount returns the number of open connections.
	ConnectionCount() int
}

// MessageSender sends encoded messages to one peer.
// Implemented by ServerConn.
type MessageSender interface {
	Send(data []byte) error
	Done() <-chan struct{}
}

// FrameReadWriter provides whole-message I/O.
// Implemented by Framer and by every Conn.
type FrameReadWriter interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
}

// Compile-time interface satisfaction checks.
var (
	_ RelayServer     = (*Server)(nil)
	_ MessageSender   = (*ServerConn)(nil)
	_ FrameReadWriter = (*Framer)(nil)
	_ Conn            = (*streamConn)(nil)
	_ Conn            = (*wsConn)(nil)
)
