package dummy

import (
	"io"
	"net"
	"time"

	"github.com/indigo-web/h1/transport"
)

var _ transport.Client = new(Client)

// Client replays the pieces of data it was initialized with, one piece per
// Read, then reports io.EOF. Everything written is accumulated for inspection.
type Client struct {
	data    [][]byte
	pending []byte
	pointer int
	closed  bool
	Written []byte
}

func NewClient(data ...[]byte) *Client {
	return &Client{data: data}
}

func (c *Client) Read() ([]byte, error) {
	if len(c.pending) > 0 {
		pending := c.pending
		c.pending = nil

		return pending, nil
	}

	if c.closed || c.pointer >= len(c.data) {
		return nil, io.EOF
	}

	piece := c.data[c.pointer]
	c.pointer++

	return piece, nil
}

func (c *Client) Unread(b []byte) {
	if len(b) > 0 {
		c.pending = b
	}
}

func (c *Client) Write(b []byte) error {
	c.Written = append(c.Written, b...)
	return nil
}

func (c *Client) SetReadTimeout(time.Duration) {}

func (c *Client) Conn() net.Conn {
	return nil
}

func (c *Client) Remote() net.Addr {
	return nil
}

func (c *Client) Close() error {
	c.closed = true
	return nil
}

var _ transport.Client = new(NopClient)

// NopClient never yields any data and swallows everything written. Used where
// a client is demanded but never actually exercised.
type NopClient struct{}

func NewNopClient() *NopClient {
	return new(NopClient)
}

func (NopClient) Read() ([]byte, error)        { return nil, io.EOF }
func (NopClient) Unread([]byte)                {}
func (NopClient) Write(b []byte) error         { return nil }
func (NopClient) SetReadTimeout(time.Duration) {}
func (NopClient) Conn() net.Conn               { return nil }
func (NopClient) Remote() net.Addr             { return nil }
func (NopClient) Close() error                 { return nil }
