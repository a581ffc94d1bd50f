package client

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chronologos/photobooth/internal/protocol"
)

// errBadAck means the device answered KEEPALIVE with a payload, so the
// stream is no longer in step with our requests.
var errBadAck = errors.New("unexpected keepalive acknowledgment")

// heartbeat probes l with KEEPALIVE whenever it has been idle for
// IdleThreshold. It exits when the link is shut down or a probe fails.
func (c *Client) heartbeat(l *link) {
	defer close(l.done)

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}

		if l.idle() < c.cfg.IdleThreshold {
			continue
		}
		if err := c.probe(l); err != nil {
			c.lose(l, fmt.Errorf("heartbeat: %w", err))
			return
		}
	}
}

// probe runs one KEEPALIVE exchange under the link lock.
func (c *Client) probe(l *link) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// A request may have run while we waited for the lock.
	if l.idle() < c.cfg.IdleThreshold {
		return nil
	}
	select {
	case <-l.stop:
		return nil
	default:
	}

	start := time.Now()
	if err := l.conn.WriteCommand(protocol.CmdKeepAlive, c.cfg.Timeout); err != nil {
		return err
	}
	ack, err := l.conn.ReadFrame(c.cfg.Timeout)
	if err != nil {
		return err
	}
	if len(ack) != 0 {
		return fmt.Errorf("%w: %d bytes", errBadAck, len(ack))
	}
	l.touch()
	c.log.Debug("keepalive acknowledged", zap.Duration("rtt", time.Since(start)))
	return nil
}
