package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/japaniel/autotext/pkg/protocol"
)

// Searcher is the store view a session works against. *wordbook.Handle
// satisfies it.
type Searcher interface {
	Search(ctx context.Context, prefix string, limit int) ([]string, error)
	Close() error
}

// SessionConfig contains configuration for creating a session.
type SessionConfig struct {
	Store        Searcher
	Log          *slog.Logger
	Limit        int
	ReadTimeout  time.Duration
	DrainWindow  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
	Limiter      *rate.Limiter // nil means unthrottled
	// OnDone is called when the session ends because its peer went away
	// while it was still running. It is not called after Stop.
	OnDone func(*Session)
}

// Session serves one client connection. Commands are handled strictly in
// the order they arrive, one at a time.
type Session struct {
	ID    string
	conn  net.Conn
	store Searcher
	log   *slog.Logger
	cfg   SessionConfig

	running   atomic.Bool
	connected atomic.Bool
	done      chan struct{}

	// stopped is canceled by Stop and aborts a pending throttle wait.
	stopped context.Context
	stop    context.CancelFunc
}

// NewSession creates a session for conn. The session owns both conn and
// cfg.Store and closes them when Run returns.
func NewSession(id string, conn net.Conn, cfg *SessionConfig) *Session {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		ID:    id,
		conn:  conn,
		store: cfg.Store,
		log:   log.With("session", id),
		cfg:   *cfg,
		done:  make(chan struct{}),
	}
	s.stopped, s.stop = context.WithCancel(context.Background())
	if s.cfg.ReadTimeout <= 0 {
		s.cfg.ReadTimeout = time.Second
	}
	s.running.Store(true)
	s.connected.Store(true)
	return s
}

// Run serves commands until the peer leaves or Stop is called.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	defer s.release()
	defer s.stop()

	buf := make([]byte, max(s.cfg.BufferSize, 1))
	for s.running.Load() && s.connected.Load() {
		frame, err := protocol.ReadFrame(s.conn, buf, s.cfg.ReadTimeout, s.cfg.DrainWindow)
		if len(frame) > 0 {
			s.handle(ctx, strings.ToValidUTF8(string(frame), "\uFFFD"))
		}
		if err == nil {
			continue
		}
		switch {
		case protocol.IsTimeout(err):
		case errors.Is(err, io.EOF), protocol.IsReset(err):
			s.log.Debug("peer disconnected")
			s.connected.Store(false)
		default:
			s.log.Warn("read failed", "error", err)
			s.connected.Store(false)
		}
	}

	if s.running.Load() && s.cfg.OnDone != nil {
		s.cfg.OnDone(s)
	}
}

// Stop asks the session to finish. The loop notices within one read
// timeout; an in-flight search is completed first, a command still waiting
// on the rate limiter is dropped.
func (s *Session) Stop() {
	s.running.Store(false)
	s.stop()
}

// Done is closed once Run has returned and the session's resources are
// released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

func (s *Session) handle(ctx context.Context, msg string) {
	cmd := protocol.ParseCommand(msg)
	if cmd.Kind == protocol.Closed {
		s.log.Debug("peer announced close")
		s.connected.Store(false)
		if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
			_ = cw.CloseWrite()
		}
		return
	}

	if err := s.throttle(ctx); err != nil {
		s.log.Debug("command dropped", "error", err)
		return
	}

	resp := protocol.EmptyResponse
	if cmd.Kind == protocol.Get {
		resp = protocol.FormatResponse(s.lookup(ctx, cmd.Prefix))
	} else {
		s.log.Debug("malformed command", "command", msg)
	}

	if s.cfg.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := protocol.WriteFrame(s.conn, resp); err != nil {
		s.log.Debug("send failed", "error", err)
	}
}

// throttle waits for the limiter until ctx is done or the session is stopped.
func (s *Session) throttle(ctx context.Context) error {
	if s.cfg.Limiter == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unhook := context.AfterFunc(s.stopped, cancel)
	defer unhook()
	return s.cfg.Limiter.Wait(ctx)
}

func (s *Session) lookup(ctx context.Context, prefix string) []string {
	matches, err := s.store.Search(ctx, prefix, s.cfg.Limit)
	if err != nil {
		s.log.Warn("search failed", "prefix", prefix, "error", err)
		return nil
	}
	return matches
}

func (s *Session) release() {
	if err := s.store.Close(); err != nil {
		s.log.Warn("closing store handle", "error", err)
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Debug("closing connection", "error", err)
	}
}
