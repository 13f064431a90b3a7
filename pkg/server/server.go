// Package server implements the autocomplete TCP service: a serialized
// acceptor, one session per connection, and the operator-facing
// administration of the word book.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/japaniel/autotext/pkg/textsource"
	"github.com/japaniel/autotext/pkg/wordbook"
)

var (
	// ErrServerClosed is returned by Start on a server that was stopped.
	ErrServerClosed = errors.New("server: closed")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("server: already started")
)

// Spec holds the runtime dependencies of the server.
type Spec struct {
	Config *Config
	Store  *wordbook.Store
	Log    *slog.Logger
	// Loader reads administration sources; nil uses textsource defaults.
	Loader *textsource.Loader
}

// Server accepts peers and runs a session for each of them.
type Server struct {
	Spec Spec

	registry *Registry

	mu       sync.Mutex
	listener net.Listener
	running  atomic.Bool
	stopped  bool
	stop     chan struct{}
	loopDone chan struct{}
	slots    chan struct{}
	sessions sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a server. A nil Config uses DefaultConfig and a nil Log uses
// slog.Default.
func New(spec *Spec) *Server {
	s := &Server{Spec: *spec, registry: NewRegistry()}
	if s.Spec.Config == nil {
		s.Spec.Config = DefaultConfig()
	}
	if s.Spec.Log == nil {
		s.Spec.Log = slog.Default()
	}
	if s.Spec.Loader == nil {
		s.Spec.Loader = textsource.NewLoader()
	}
	return s
}

// Start binds the listener and starts the accept loop in the background.
// A bind failure is returned and leaves the server unstarted.
func (s *Server) Start() error {
	cfg := s.Spec.Config
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrServerClosed
	}
	if s.listener != nil {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}
	s.listener = ln
	s.stop = make(chan struct{})
	s.loopDone = make(chan struct{})
	if cfg.MaxSessions > 0 {
		s.slots = make(chan struct{}, cfg.MaxSessions)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running.Store(true)

	go s.acceptLoop()
	s.Spec.Log.Info("listener started", "addr", ln.Addr().String(), "max_sessions", cfg.MaxSessions)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Sessions returns the number of registered sessions.
func (s *Server) Sessions() int {
	return s.registry.Len()
}

// Running reports whether the server is accepting peers.
func (s *Server) Running() bool {
	return s.running.Load()
}

type accepted struct {
	conn net.Conn
	err  error
}

// acceptLoop keeps exactly one Accept in flight. With a MaxSessions cap it
// takes a session slot before accepting, so at the cap no accept is pending.
func (s *Server) acceptLoop() {
	defer close(s.loopDone)

	results := make(chan accepted, 1)
	var backoff time.Duration
	for {
		if !s.acquireSlot() {
			s.listener.Close()
			return
		}

		go func() {
			conn, err := s.listener.Accept()
			results <- accepted{conn, err}
		}()

		var r accepted
		select {
		case r = <-results:
		case <-s.stop:
			s.releaseSlot()
			s.listener.Close()
			if late := <-results; late.conn != nil {
				late.conn.Close()
			}
			return
		}

		if r.err != nil {
			s.releaseSlot()
			if errors.Is(r.err, net.ErrClosed) {
				s.Spec.Log.Error("listener closed unexpectedly", "error", r.err)
				return
			}
			backoff = nextBackoff(backoff)
			s.Spec.Log.Error("accept error", "error", r.err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		s.startSession(r.conn)
	}
}

// acquireSlot reserves room for one more session. It reports false once the
// server is stopping.
func (s *Server) acquireSlot() bool {
	if s.slots == nil {
		select {
		case <-s.stop:
			return false
		default:
			return true
		}
	}
	select {
	case s.slots <- struct{}{}:
		return true
	case <-s.stop:
		return false
	}
}

func (s *Server) releaseSlot() {
	if s.slots != nil {
		<-s.slots
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	return min(2*d, time.Second)
}

func (s *Server) startSession(conn net.Conn) {
	id := uuid.NewString()
	log := s.Spec.Log

	handle, err := s.Spec.Store.Handle(s.ctx)
	if err != nil {
		log.Error("allocating store handle", "session", id, "error", err)
		conn.Close()
		s.releaseSlot()
		return
	}

	cfg := s.Spec.Config
	var limiter *rate.Limiter
	if cfg.CommandRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.CommandRate), max(cfg.CommandBurst, 1))
	}
	session := NewSession(id, conn, &SessionConfig{
		Store:        handle,
		Log:          log,
		Limit:        cfg.SearchLimit,
		ReadTimeout:  cfg.ReadTimeout,
		DrainWindow:  cfg.DrainWindow,
		WriteTimeout: cfg.WriteTimeout,
		BufferSize:   cfg.BufferSize,
		Limiter:      limiter,
		OnDone:       s.drop,
	})
	s.registry.Add(session)
	log.Debug("session started", "session", id, "remote", session.RemoteAddr())

	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()
		defer s.releaseSlot()
		session.Run(s.ctx)
		log.Debug("session ended", "session", id)
	}()
}

func (s *Server) drop(session *Session) {
	if s.registry.Remove(session.ID) {
		s.Spec.Log.Debug("session dropped", "session", session.ID)
	}
}

// Stop stops accepting, asks every session to stop, and waits for the
// accept loop and the sessions to wind down. Open sockets are not closed
// from here; each session closes its own when its loop exits.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped || s.listener == nil {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.running.Store(false)
	close(s.stop)
	<-s.loopDone
	s.registry.StopAll()
	s.sessions.Wait()
	s.registry.Clear()
	s.cancel()
	s.Spec.Log.Info("listener stopped")
}
