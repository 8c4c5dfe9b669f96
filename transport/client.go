package transport

import (
	"net"
	"time"
)

type client struct {
	conn    net.Conn
	buff    []byte
	pending []byte
	timeout time.Duration
}

func NewClient(conn net.Conn, timeout time.Duration, buff []byte) Client {
	return &client{
		conn:    conn,
		buff:    buff,
		timeout: timeout,
	}
}

func (c *client) Read() ([]byte, error) {
	if len(c.pending) > 0 {
		pending := c.pending
		c.pending = nil

		return pending, nil
	}

	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, err
		}
	} else {
		if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, err
		}
	}

	n, err := c.conn.Read(c.buff)

	return c.buff[:n], err
}

func (c *client) Unread(b []byte) {
	if len(b) > 0 {
		c.pending = b
	}
}

func (c *client) Write(b []byte) error {
	_, err := c.conn.Write(b)

	return err
}

func (c *client) SetReadTimeout(timeout time.Duration) {
	c.timeout = timeout
}

func (c *client) Conn() net.Conn {
	return c.conn
}

func (c *client) Remote() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *client) Close() error {
	return c.conn.Close()
}
