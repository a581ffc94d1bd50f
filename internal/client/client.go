// Package client is the controller side of the capture protocol: it connects
// to a camera device, requests images, and keeps the link alive between
// requests.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chronologos/photobooth/internal/protocol"
	"github.com/chronologos/photobooth/internal/transport"
)

const (
	defaultTimeout           = 10 * time.Second
	defaultCaptureTimeout    = 60 * time.Second
	defaultHeartbeatInterval = 1 * time.Second
	defaultIdleThreshold     = 5 * time.Second

	// closeJoinTimeout bounds how long Close waits for the heartbeat to exit.
	closeJoinTimeout = 1 * time.Second
)

var (
	// ErrNotConnected is returned by requests made without a live link.
	ErrNotConnected = errors.New("not connected")
	// ErrCaptureFailed means the device answered but could not produce an
	// image. The link is still usable.
	ErrCaptureFailed = errors.New("capture failed on device")
	// ErrConnectionLost means the link failed mid-exchange. The link has been
	// torn down and the lost-connection callback fired.
	ErrConnectionLost = errors.New("connection lost")
)

// State is the client's connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Lost
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Lost:
		return "lost"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds client timeouts. Zero values take defaults.
type Config struct {
	// Timeout bounds connecting and every non-capture exchange.
	Timeout time.Duration
	// CaptureTimeout bounds waiting for a capture response. Full-resolution
	// captures take several seconds on the device.
	CaptureTimeout time.Duration
	// HeartbeatInterval is how often the monitor checks for idleness.
	HeartbeatInterval time.Duration
	// IdleThreshold is how long the link may carry no traffic before a
	// KEEPALIVE probe is sent.
	IdleThreshold time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = defaultCaptureTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = defaultIdleThreshold
	}
	return c
}

// Client talks to one camera device at a time. Safe for concurrent use;
// concurrent requests on one link are serialized.
type Client struct {
	cfg Config
	log *zap.Logger

	mu     sync.Mutex // guards state, link, onLost
	state  State
	link   *link
	onLost func(error)
}

// New creates a disconnected client.
func New(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		cfg: cfg.withDefaults(),
		log: logger.With(zap.String("component", "client")),
	}
}

// OnLostConnection registers fn to be called when a live link fails. It is
// called at most once per link, from whichever goroutine detects the loss,
// and never for links ended by Close. A later call replaces fn.
func (c *Client) OnLostConnection(fn func(error)) {
	c.mu.Lock()
	c.onLost = fn
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the client has a live link.
func (c *Client) Connected() bool {
	return c.State() == Connected
}

// Connect closes any existing link and connects to host:port. On failure
// the client is left Disconnected.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	c.Close()

	c.mu.Lock()
	c.state = Connecting
	c.mu.Unlock()

	log := c.log.With(zap.String("host", host), zap.Int("port", port))
	log.Info("connecting")

	conn, err := transport.Dial(ctx, host, port, c.cfg.Timeout)
	if err != nil {
		c.mu.Lock()
		if c.state == Connecting {
			c.state = Disconnected
		}
		c.mu.Unlock()
		log.Warn("connect failed", zap.Error(err))
		return fmt.Errorf("connect %s:%d: %w", host, port, err)
	}

	l := newLink(conn)
	c.mu.Lock()
	if c.state != Connecting {
		// Close or another Connect won the race.
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("connect %s:%d: %w", host, port, ErrNotConnected)
	}
	c.link = l
	c.state = Connected
	c.mu.Unlock()

	go c.heartbeat(l)
	log.Info("connected", zap.Stringer("remote", conn.RemoteAddr()))
	return nil
}

// RequestCapture asks the device for one image of the given kind.
//
// The error distinguishes the outcomes: ErrCaptureFailed if the device
// could not capture (the link stays up), ErrConnectionLost if the exchange
// failed (the link is torn down), and ErrNotConnected if there is no link.
func (c *Client) RequestCapture(ctx context.Context, kind protocol.Kind) ([]byte, error) {
	cmd := protocol.CaptureCommand(kind)
	if cmd == protocol.CmdUnrecognized {
		return nil, fmt.Errorf("unknown capture kind %v", kind)
	}

	l, err := c.current()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	payload, err := l.exchange(ctx, cmd, c.cfg.Timeout, c.cfg.CaptureTimeout)
	if err != nil {
		c.lose(l, err)
		return nil, fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}

	img, ok := protocol.DecodeResult(payload)
	if !ok {
		c.log.Warn("device reported capture failure", zap.Stringer("kind", kind))
		return nil, ErrCaptureFailed
	}
	c.log.Debug("capture received",
		zap.Stringer("kind", kind),
		zap.Int("bytes", len(img)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return img, nil
}

// PowerOff asks the device to shut down. The request is sent without
// waiting for a reply, and the client then closes its link.
func (c *Client) PowerOff(ctx context.Context) error {
	l, err := c.current()
	if err != nil {
		return err
	}
	if err := l.send(ctx, protocol.CmdPowerOff, c.cfg.Timeout); err != nil {
		c.lose(l, err)
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	c.log.Info("power off sent")
	return c.Close()
}

// Close stops the heartbeat, closes the link and leaves the client
// Disconnected. Safe to call in any state.
func (c *Client) Close() error {
	c.mu.Lock()
	l := c.link
	c.link = nil
	c.state = Disconnected
	c.mu.Unlock()

	if l == nil {
		return nil
	}
	l.shutdown()
	select {
	case <-l.done:
	case <-time.After(closeJoinTimeout):
		c.log.Warn("heartbeat did not stop in time")
	}
	c.log.Info("disconnected")
	return nil
}

func (c *Client) current() (*link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil {
		return nil, ErrNotConnected
	}
	return c.link, nil
}

// lose tears down l after a failed exchange. Only the first caller for a
// given link changes state and fires the callback; later callers, and links
// already replaced or closed, are ignored.
func (c *Client) lose(l *link, err error) {
	c.mu.Lock()
	if c.link != l {
		c.mu.Unlock()
		return
	}
	c.link = nil
	c.state = Lost
	fn := c.onLost
	c.mu.Unlock()

	l.shutdown()
	c.log.Warn("connection lost", zap.Error(err))
	if fn != nil {
		fn(err)
	}
}

// link is one live connection. mu serializes every exchange on it so a
// heartbeat probe and a request can never interleave frames.
type link struct {
	conn *transport.Conn
	mu   sync.Mutex

	born time.Time
	last atomic.Int64 // nanoseconds from born to the last exchange

	stopOnce sync.Once
	stop     chan struct{} // closed by shutdown
	done     chan struct{} // closed when the heartbeat exits
}

func newLink(conn *transport.Conn) *link {
	return &link{
		conn: conn,
		born: time.Now(),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// exchange sends cmd and reads the reply. Cancelling ctx closes the socket,
// so the exchange fails and the link is presumed dead.
func (l *link) exchange(ctx context.Context, cmd protocol.Command, writeTimeout, readTimeout time.Duration) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { l.conn.Close() })
	defer stop()

	if err := l.conn.WriteCommand(cmd, writeTimeout); err != nil {
		return nil, l.failed(ctx, "send", cmd, err)
	}
	payload, err := l.conn.ReadFrame(readTimeout)
	if err != nil {
		return nil, l.failed(ctx, "receive", cmd, err)
	}
	l.touch()
	return payload, nil
}

// send writes cmd without waiting for a reply.
func (l *link) send(ctx context.Context, cmd protocol.Command, timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { l.conn.Close() })
	defer stop()

	if err := l.conn.WriteCommand(cmd, timeout); err != nil {
		return l.failed(ctx, "send", cmd, err)
	}
	l.touch()
	return nil
}

func (l *link) failed(ctx context.Context, op string, cmd protocol.Command, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return fmt.Errorf("%s %v: %w", op, cmd, err)
}

func (l *link) touch() {
	l.last.Store(int64(time.Since(l.born)))
}

// idle returns how long the link has carried no traffic.
func (l *link) idle() time.Duration {
	return time.Since(l.born) - time.Duration(l.last.Load())
}

func (l *link) shutdown() {
	l.stopOnce.Do(func() {
		close(l.stop)
		l.conn.Close()
	})
}
