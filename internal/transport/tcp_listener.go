package transport

import (
	"context"
	"fmt"
	"net"
)

// DefaultListenAddr is where the camera device accepts controllers.
const DefaultListenAddr = "0.0.0.0:8888"

// Listener accepts framed connections from controllers.
type Listener struct {
	ln   net.Listener
	port int
}

// Listen binds a TCP listener on addr ("host:port", port 0 for random).
// The socket is created with SO_REUSEADDR so a restarted server can rebind
// while old connections sit in TIME_WAIT.
func Listen(ctx context.Context, addr string) (*Listener, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	ln, err := lc.Listen(ctx, "tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("TCP listen %s: %w", addr, err)
	}
	return &Listener{
		ln:   ln,
		port: ln.Addr().(*net.TCPAddr).Port,
	}, nil
}

// Port returns the TCP port the listener is bound to.
func (l *Listener) Port() int {
	return l.port
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept blocks until a controller connects or the listener is closed.
// Closing the listener is the only way to unblock it.
func (l *Listener) Accept() (*Conn, error) {
	nc, err := l.ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("accept TCP connection: %w", err)
	}
	return NewConn(nc), nil
}

// Close shuts down the listener.
func (l *Listener) Close() error {
	return l.ln.Close()
}
