package session

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/chronologos/photobooth/internal/camera"
	"github.com/chronologos/photobooth/internal/metrics"
	"github.com/chronologos/photobooth/internal/power"
	"github.com/chronologos/photobooth/internal/protocol"
	"github.com/chronologos/photobooth/internal/transport"
)

const (
	defaultIdleTimeout  = 30 * time.Second
	defaultWriteTimeout = 60 * time.Second
	maxLoggedToken      = 64
)

// Config holds per-session timeouts.
type Config struct {
	// IdleTimeout bounds the wait for the next request. Controllers send
	// KEEPALIVE every few seconds, so a silent peer is presumed dead.
	IdleTimeout time.Duration
	// WriteTimeout bounds sending one response, including a full image.
	WriteTimeout time.Duration
}

// Deps are the collaborators a session dispatches to.
type Deps struct {
	Backend camera.Backend
	Power   power.Controller
	Metrics *metrics.Collector // optional
}

// Session is the server-side request loop for one controller connection.
// It owns the connection exclusively and shares no mutable state with other
// sessions.
type Session struct {
	id   uint64
	conn *transport.Conn
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New creates a session for an accepted connection. Call Serve to run it.
func New(id uint64, conn *transport.Conn, cfg Config, deps Deps, logger *zap.Logger) *Session {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Session{
		id:   id,
		conn: conn,
		cfg:  cfg,
		deps: deps,
		log: logger.With(
			zap.String("component", "session"),
			zap.Uint64("session_id", id),
			zap.Stringer("remote", conn.RemoteAddr()),
		),
	}
}

// Serve runs the request loop until the peer disconnects, an I/O error
// occurs, the peer sends POWER_OFF, or ctx is cancelled. The connection is
// always closed on return. A clean disconnect returns nil.
func (s *Session) Serve(ctx context.Context) error {
	// Cancelling ctx closes the socket, which unblocks a pending read.
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()
	defer s.conn.Close()

	s.log.Info("client connected")

	for {
		cmd, raw, err := s.conn.ReadCommand(s.cfg.IdleTimeout)
		if err != nil {
			return s.readFailed(ctx, err)
		}

		done, err := s.dispatch(ctx, cmd, raw)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("write response failed", zap.Stringer("command", cmd), zap.Error(err))
			return err
		}
		if done {
			return nil
		}
	}
}

// readFailed classifies a read error, logs it, and returns the value Serve
// should return.
func (s *Session) readFailed(ctx context.Context, err error) error {
	var ne net.Error
	switch {
	case ctx.Err() != nil:
		s.log.Info("session closed by server shutdown")
		return nil
	case errors.Is(err, protocol.ErrClosed):
		s.log.Info("client disconnected")
		return nil
	case errors.Is(err, protocol.ErrTruncated):
		s.log.Warn("client disconnected unexpectedly", zap.Error(err))
	case errors.Is(err, protocol.ErrFrameTooLarge):
		// The stream can no longer be framed; answer so the peer is not left
		// waiting, then drop it.
		s.deps.Metrics.IncProtocolError()
		s.log.Warn("malformed request header", zap.Error(err))
		s.conn.WriteFrame(nil, s.cfg.WriteTimeout)
	case errors.As(err, &ne) && ne.Timeout():
		s.log.Info("client timed out", zap.Duration("idle_timeout", s.cfg.IdleTimeout))
	default:
		s.log.Warn("read request failed", zap.Error(err))
	}
	return err
}

// dispatch handles one request. done is true when the session must end.
func (s *Session) dispatch(ctx context.Context, cmd protocol.Command, raw []byte) (done bool, err error) {
	switch {
	case cmd.IsCapture():
		return false, s.handleCapture(ctx, cmd)

	case cmd == protocol.CmdKeepAlive:
		s.deps.Metrics.IncKeepAlive()
		s.log.Debug("keepalive")
		return false, s.conn.WriteFrame(nil, s.cfg.WriteTimeout)

	case cmd == protocol.CmdPowerOff:
		s.deps.Metrics.IncPowerOff()
		s.log.Info("power off requested")
		if err := s.deps.Power.PowerOff(ctx); err != nil {
			s.log.Error("power off failed", zap.Error(err))
		}
		// No response: the host may already be going down.
		return true, nil

	default:
		s.deps.Metrics.IncProtocolError()
		s.log.Warn("unrecognized command", zap.ByteString("token", truncate(raw, maxLoggedToken)))
		return false, s.conn.WriteFrame(nil, s.cfg.WriteTimeout)
	}
}

// handleCapture runs the backend and streams the result. A backend failure
// is answered with the zero-length frame and keeps the session alive.
func (s *Session) handleCapture(ctx context.Context, cmd protocol.Command) error {
	kind := cmd.Kind()
	start := time.Now()

	var img []byte
	var err error
	if kind == protocol.KindMain {
		img, err = camera.Check(s.deps.Backend.CaptureMain(ctx))
	} else {
		img, err = camera.Check(s.deps.Backend.CapturePreview(ctx))
	}

	if err != nil {
		s.deps.Metrics.RecordCapture(false, 0)
		s.log.Warn("capture failed", zap.Stringer("kind", kind), zap.Error(err))
		return s.conn.WriteResult(nil, s.cfg.WriteTimeout)
	}

	s.log.Info("captured",
		zap.Stringer("kind", kind),
		zap.Int("bytes", len(img)),
		zap.Duration("elapsed", time.Since(start)),
	)
	if err := s.conn.WriteResult(img, s.cfg.WriteTimeout); err != nil {
		s.deps.Metrics.RecordCapture(false, 0)
		return err
	}
	s.deps.Metrics.RecordCapture(true, len(img))
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
