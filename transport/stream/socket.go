package stream

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

type connWithTimeout struct {
	net.Conn
	timeout time.Duration
}

func (c *connWithTimeout) Read(b []byte) (int, error) {
	c.Conn.SetReadDeadline(time.Now().Add(c.timeout))
	return c.Conn.Read(b)
}

func (c *connWithTimeout) Write(b []byte) (int, error) {
	c.Conn.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.Conn.Write(b)
}

// Dial connects to a stream peer over TCP. Every read and write gets its own
// deadline of timeout; read deadlines only pace the receive loop.
func Dial(addr string, timeout time.Duration, mtu int) (*Stream, error) {
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "can't dial %s", addr)
	}
	return FromConn(c, timeout, mtu), nil
}

// FromConn wraps an accepted or dialed connection.
func FromConn(c net.Conn, timeout time.Duration, mtu int) *Stream {
	if timeout <= 0 {
		return New(c, mtu)
	}
	return New(&connWithTimeout{Conn: c, timeout: timeout}, mtu)
}
