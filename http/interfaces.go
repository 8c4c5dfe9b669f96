package http

import (
	"github.com/indigo-web/h1/transport"
)

// Handler is the downstream application service. It is invoked once per
// decoded request and must be safe for concurrent use from many connection
// goroutines. A nil response or an error terminates the connection after a
// best-effort error response.
type Handler func(*Request) (*Response, error)

// ErrorHandler produces the response for protocol-level failures (malformed
// heads, violated limits, timeouts). The error is always a status.HTTPError
// for wire-originated problems. Returning nil falls back to a bare coded
// response.
type ErrorHandler func(*Request, error) *Response

// ExpectHandler is consulted when a request declares Expect: 100-continue,
// before any body byte is read. Returning nil approves the body upload and an
// interim 100 Continue is written; an error rejects it, the body is discarded
// and the main Handler is never invoked for this request.
type ExpectHandler func(*Request) error

// UpgradeHandler takes over the raw connection after a successful upgrade
// negotiation. Invoked at most once per connection; when it returns, the
// connection is closed. No HTTP framing happens past the handoff.
type UpgradeHandler func(*Request, transport.Client) error

// OnDisconnect is called when the peer disconnects or the connection is about
// to be torn down, giving one last chance to produce a response. May be nil.
type OnDisconnect func(*Request) *Response
