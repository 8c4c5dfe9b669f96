package transport

import (
	"net"
	"time"
)

// Client is the byte-stream contract the engine runs on. Both plain TCP and
// terminated TLS connections satisfy it; the engine itself never cares which.
type Client interface {
	// Read returns a piece of data of arbitrary length, blocking until at least
	// one byte arrives or the armed read timeout fires.
	Read() ([]byte, error)
	// Unread preserves a chunk of data from the previous read and makes the next
	// Read return it. Used to hand leftovers between the head parser, the body
	// reader and pipelined requests.
	Unread([]byte)
	Write([]byte) error
	// SetReadTimeout arms the timeout applied to all subsequent Reads. Zero
	// disables the deadline.
	SetReadTimeout(timeout time.Duration)
	Conn() net.Conn
	Remote() net.Addr
	Close() error
}
