// Package datagram owns the unreliable UDP socket beneath an RDT endpoint,
// the way source/server/server.go in the teacher owns its *net.UDPConn:
// one socket, a blocking read loop, and an idempotent close that wakes it.
package datagram

import (
	"errors"
	"net"
	"sync"

	"github.com/harlanmills/rdtgo/internal/rdtlog"
)

// ErrClosed is returned by Recv and SendTo once the socket has been closed.
var ErrClosed = errors.New("datagram: socket closed")

var log = rdtlog.New("datagram")

// Conn wraps a single *net.UDPConn for fire-and-forget sends and a blocking
// receive loop that a listener goroutine drains.
type Conn struct {
	conn *net.UDPConn

	mu     sync.Mutex
	closed bool
}

// Listen binds a UDP socket to localAddr (port 0 permitted) and returns a
// Conn ready for SendTo/Recv.
func Listen(localAddr string) (*Conn, error) {
	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, err
	}
	c, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: c}, nil
}

// LocalAddr returns the address the socket is bound to.
func (c *Conn) LocalAddr() *net.UDPAddr {
	return c.conn.LocalAddr().(*net.UDPAddr)
}

// SendTo is fire-and-forget: errors are logged, not surfaced, unless the
// socket is already closed.
func (c *Conn) SendTo(peer *net.UDPAddr, b []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if _, err := c.conn.WriteToUDP(b, peer); err != nil {
		log.WithError(err).WithField("peer", peer).Warn("send failed")
	}
	return nil
}

// Recv blocks until a datagram arrives or the socket is closed, in which
// case it returns ErrClosed.
func (c *Conn) Recv(maxLen int) ([]byte, *net.UDPAddr, error) {
	buf := make([]byte, maxLen)
	n, addr, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, nil, ErrClosed
		}
		return nil, nil, err
	}
	return buf[:n], addr, nil
}

// Close is idempotent; it wakes any blocked Recv with ErrClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}
