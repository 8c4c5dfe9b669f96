package http1

import (
	"strings"

	"github.com/indigo-web/h1/http"
	"github.com/indigo-web/h1/http/method"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/utils/strcomp"
)

// ConnectionType is what happens to the connection after the current exchange.
type ConnectionType uint8

const (
	// ConnectionClose shuts the connection down after the response.
	ConnectionClose ConnectionType = iota
	// ConnectionKeepAlive leaves the connection open for the next request.
	ConnectionKeepAlive
	// ConnectionUpgrade hands the connection over to another protocol.
	ConnectionUpgrade
)

func (c ConnectionType) String() string {
	switch c {
	case ConnectionClose:
		return "close"
	case ConnectionKeepAlive:
		return "keep-alive"
	case ConnectionUpgrade:
		return "upgrade"
	default:
		return "unknown"
	}
}

// Codec glues the parser and the serializer together, carrying the state both
// of them must agree upon: whether the request was HEAD, what happens to the
// connection afterwards, and whether a body is still in flight. Misusing the
// halves out of order is a bug in the caller and panics loudly.
type Codec struct {
	*Parser
	*Serializer

	request          *http.Request
	keepAliveEnabled bool
	upgradeEnabled   bool

	head      bool
	streaming bool
	upgraded  bool
	ctype     ConnectionType
}

func NewCodec(
	parser *Parser, serializer *Serializer, request *http.Request, keepAliveEnabled, upgradeEnabled bool,
) *Codec {
	return &Codec{
		Parser:           parser,
		Serializer:       serializer,
		request:          request,
		keepAliveEnabled: keepAliveEnabled,
		upgradeEnabled:   upgradeEnabled,
		ctype:            ConnectionClose,
	}
}

// Parse feeds raw bytes into the head parser. Once the head completes, the
// connection disposition and the head-request flag are derived from it and
// pinned until the response is written.
func (c *Codec) Parse(data []byte) (done bool, extra []byte, err error) {
	if c.upgraded {
		panic("BUG: codec: parsing a request on an upgraded connection")
	}

	if c.streaming {
		panic("BUG: codec: parsing a request while the previous body is still in flight")
	}

	done, extra, err = c.Parser.Parse(data)
	if !done || err != nil {
		return done, extra, err
	}

	c.head = c.request.Method == method.HEAD
	c.ctype = c.resolveConnection()
	c.streaming = c.request.Chunked || c.request.ContentLength > 0

	return true, extra, nil
}

// Write serializes the response under the framing pinned by the last parsed
// request. A body of unknown size on a connection that isn't a kept-alive
// HTTP/1.1 one can only be delimited by closing it, so the disposition is
// demoted to close on the spot.
func (c *Codec) Write(response *http.Response, writer Writer) error {
	fields := response.Reveal()

	if fields.Attachment.Content != nil && fields.Attachment.Size <= 0 &&
		c.ctype == ConnectionKeepAlive && c.request.Proto != proto.HTTP11 {
		c.ctype = ConnectionClose
	}

	return c.Serializer.Write(c.request.Proto, fields, c.ctype, c.head, writer)
}

// ConnectionType reports the disposition pinned by the last parsed request.
func (c *Codec) ConnectionType() ConnectionType {
	return c.ctype
}

// EndStream marks the in-flight request body fully drained, unblocking the
// parsing of the next head.
func (c *Codec) EndStream() {
	c.streaming = false
}

// MarkUpgraded seals the codec once the connection leaves the protocol. Any
// further parsing attempt is a bug.
func (c *Codec) MarkUpgraded() {
	c.upgraded = true
}

// resolveConnection derives the disposition from the request. An upgrade
// request wins over everything, given upgrades are enabled at all. The peer
// asking to close always wins over keep-alive; the peer asking to keep alive
// is honored only when keep-alive is enabled locally. Without an explicit ask,
// HTTP/1.1 defaults to keep-alive and older protocols to close.
func (c *Codec) resolveConnection() ConnectionType {
	conn := c.request.Connection

	if c.upgradeEnabled && c.request.Upgrade != "" && hasToken(conn, "upgrade") {
		return ConnectionUpgrade
	}

	switch {
	case hasToken(conn, "close"):
		return ConnectionClose
	case hasToken(conn, "keep-alive"):
		if c.keepAliveEnabled {
			return ConnectionKeepAlive
		}

		return ConnectionClose
	}

	if c.request.Proto == proto.HTTP11 && c.keepAliveEnabled {
		return ConnectionKeepAlive
	}

	return ConnectionClose
}

// hasToken searches for the token in a comma-separated list, ignoring case.
func hasToken(list, token string) bool {
	for len(list) > 0 {
		var current string
		comma := strings.IndexByte(list, ',')
		if comma == -1 {
			current, list = list, ""
		} else {
			current, list = list[:comma], list[comma+1:]
		}

		if strcomp.EqualFold(strings.TrimSpace(current), token) {
			return true
		}
	}

	return false
}
