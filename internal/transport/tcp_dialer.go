package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Dial resolves host (a name such as "raspberrypi.local" or an IP literal)
// and opens a TCP connection to it. timeout bounds resolution and connect
// together.
func Dial(ctx context.Context, host string, port int, timeout time.Duration) (*Conn, error) {
	if host == "" {
		return nil, fmt.Errorf("dial: host is empty")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ip, err := resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp4", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("TCP dial: %w", err)
	}
	if tc, ok := nc.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return NewConn(nc), nil
}

// resolve returns the first IPv4 address for host.
func resolve(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return "", fmt.Errorf("resolve %s: no IPv4 address", host)
}
