package transport

import (
	"net"
	"sync"
	"time"

	"github.com/chronologos/photobooth/internal/protocol"
)

// Conn is a framed TCP connection. Every ReadFrame and WriteFrame call arms
// a fresh deadline on the socket, so no protocol I/O can block forever.
//
// Conn does not serialize callers; the session loop owns its Conn, and the
// client guards its Conn with a per-link mutex.
type Conn struct {
	nc        net.Conn
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established net.Conn.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// ReadFrame reads one frame, failing if it does not fully arrive within
// timeout. A zero timeout means no deadline and is only used in tests.
func (c *Conn) ReadFrame(timeout time.Duration) ([]byte, error) {
	if err := c.nc.SetReadDeadline(deadline(timeout)); err != nil {
		return nil, err
	}
	return protocol.ReadFrame(c.nc)
}

// WriteFrame writes one frame, failing if it cannot be flushed within timeout.
func (c *Conn) WriteFrame(payload []byte, timeout time.Duration) error {
	if err := c.nc.SetWriteDeadline(deadline(timeout)); err != nil {
		return err
	}
	return protocol.WriteFrame(c.nc, payload)
}

// WriteCommand writes cmd as a request frame within timeout.
func (c *Conn) WriteCommand(cmd protocol.Command, timeout time.Duration) error {
	if err := c.nc.SetWriteDeadline(deadline(timeout)); err != nil {
		return err
	}
	return protocol.WriteCommand(c.nc, cmd)
}

// ReadCommand reads one request frame within timeout and returns the decoded
// command with its raw payload. Requests longer than protocol.MaxCommandSize
// fail with protocol.ErrFrameTooLarge without reading the payload.
func (c *Conn) ReadCommand(timeout time.Duration) (protocol.Command, []byte, error) {
	if err := c.nc.SetReadDeadline(deadline(timeout)); err != nil {
		return protocol.CmdUnrecognized, nil, err
	}
	return protocol.ReadCommand(c.nc)
}

// WriteResult writes a capture response within timeout. A nil image sends
// the zero-length failure frame.
func (c *Conn) WriteResult(image []byte, timeout time.Duration) error {
	if err := c.nc.SetWriteDeadline(deadline(timeout)); err != nil {
		return err
	}
	return protocol.WriteResult(c.nc, image)
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// Close closes the socket, unblocking any pending read or write. Safe to
// call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}

func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
