// Package server accepts controller connections and runs one capture session
// per connection until stopped.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chronologos/photobooth/internal/camera"
	"github.com/chronologos/photobooth/internal/metrics"
	"github.com/chronologos/photobooth/internal/power"
	"github.com/chronologos/photobooth/internal/session"
	"github.com/chronologos/photobooth/internal/transport"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address, "host:port". Port 0 picks a free port.
	Addr    string
	Session session.Config
}

// Server is the connection supervisor. Sessions run concurrently and are
// isolated from each other; a stalled or failing controller never affects
// another.
type Server struct {
	cfg     Config
	backend camera.Backend
	power   power.Controller
	metrics *metrics.Collector
	base    *zap.Logger // for sessions, which tag their own component
	log     *zap.Logger

	ctx    context.Context // parent of every session; cancelled by Stop
	cancel context.CancelFunc

	mu       sync.Mutex
	ln       *transport.Listener
	stopping bool
	stopOnce sync.Once

	nextID atomic.Uint64
	wg     sync.WaitGroup

	// Ready is closed after the listener is bound, with Port set, or when
	// Run returns early because Stop came first (Port stays 0). A bind
	// failure leaves it open; wait on Run's result as well.
	Ready chan struct{}
	Port  int
}

// New creates a server but does not start it. Call Run to begin.
func New(cfg Config, backend camera.Backend, pc power.Controller, logger *zap.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = transport.DefaultListenAddr
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		backend: backend,
		power:   pc,
		metrics: metrics.NewCollector(),
		base:    logger,
		log:     logger.With(zap.String("component", "server")),
		ctx:     ctx,
		cancel:  cancel,
		Ready:   make(chan struct{}),
	}
}

// Metrics returns the server's counters.
func (s *Server) Metrics() *metrics.Collector {
	return s.metrics
}

// Run binds the listener and accepts connections until ctx is cancelled or
// Stop is called. It returns after every session has ended. A bind failure
// is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	ln, err := transport.Listen(ctx, s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		ln.Close()
		close(s.Ready)
		return nil
	}
	s.ln = ln
	s.mu.Unlock()

	s.Port = ln.Port()
	close(s.Ready)
	s.log.Info("listening", zap.Stringer("addr", ln.Addr()))

	stop := context.AfterFunc(ctx, s.Stop)
	defer stop()

	err = s.acceptLoop()

	s.wg.Wait()
	s.log.Info("server stopped", s.metrics.Field())
	return err
}

func (s *Server) acceptLoop() error {
	backoff := minAcceptBackoff
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.isStopping() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Transient failures such as EMFILE: keep serving after a pause.
			s.log.Warn("accept failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-s.ctx.Done():
				return nil
			}
			backoff = min(backoff*2, maxAcceptBackoff)
			continue
		}
		backoff = minAcceptBackoff
		s.spawn(conn)
	}
}

func (s *Server) spawn(conn *transport.Conn) {
	id := s.nextID.Add(1)
	s.metrics.IncSessionAccepted()

	sess := session.New(id, conn, s.cfg.Session, session.Deps{
		Backend: s.backend,
		Power:   s.power,
		Metrics: s.metrics,
	}, s.base)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.metrics.IncSessionClosed()
		// Errors are logged by the session and never reach other sessions.
		sess.Serve(s.ctx)
	}()
}

// Stop closes the listener and ends every session. It returns immediately;
// Run returns once sessions have exited. Safe to call more than once and
// before Run.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		ln := s.ln
		s.mu.Unlock()

		s.cancel()
		if ln != nil {
			ln.Close()
		}
	})
}

func (s *Server) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}
