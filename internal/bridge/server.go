package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/proofline/internal/correction"
	"github.com/MrWong99/proofline/internal/observe"
	"github.com/MrWong99/proofline/pkg/editor"
	"github.com/MrWong99/proofline/pkg/oracle"
)

// ErrShutdown is returned by [Server.Check] once [Server.Shutdown] started.
var ErrShutdown = errors.New("bridge: server shut down")

// readLimit bounds one client frame. A frame carries the whole document.
const readLimit = 4 << 20

// Server accepts editor websocket connections and runs one correction engine
// per connection. It implements [http.Handler].
type Server struct {
	oracle       oracle.Oracle
	log          *slog.Logger
	metrics      *observe.Metrics
	origins      []string
	writeTimeout time.Duration

	mu       sync.Mutex
	settings correction.Settings
	enabled  bool
	sessions map[string]*Session
	cancels  map[string]context.CancelFunc
	closed   bool
	wg       sync.WaitGroup
}

// Option configures a [Server].
type Option func(*Server)

// WithSettings sets the engine tunables for new sessions and whether
// correction starts enabled.
func WithSettings(s correction.Settings, enabled bool) Option {
	return func(srv *Server) {
		srv.settings = s
		srv.enabled = enabled
	}
}

// WithOriginPatterns allows cross-origin connections from hosts matching the
// given patterns (see [websocket.AcceptOptions]).
func WithOriginPatterns(patterns ...string) Option {
	return func(srv *Server) { srv.origins = patterns }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.log = l }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(srv *Server) { srv.metrics = m }
}

// WithWriteTimeout bounds one frame write. Default: 5s.
func WithWriteTimeout(d time.Duration) Option {
	return func(srv *Server) {
		if d > 0 {
			srv.writeTimeout = d
		}
	}
}

// NewServer returns a Server correcting with o.
func NewServer(o oracle.Oracle, opts ...Option) *Server {
	s := &Server{
		oracle:       o,
		log:          slog.Default(),
		writeTimeout: 5 * time.Second,
		settings:     correction.DefaultSettings(),
		enabled:      true,
		sessions:     make(map[string]*Session),
		cancels:      make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// ServeHTTP upgrades the request and serves the editor until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.log.Warn("bridge: accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(readLimit)

	id := uuid.NewString()
	log := observe.LoggerFrom(r.Context(), s.log).With("session", id)

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	s.mu.Lock()
	settings, enabled := s.settings, s.enabled
	s.mu.Unlock()

	sess := newSession(id, conn, func(surface editor.Surface) *correction.Engine {
		return correction.New(surface, s.oracle,
			correction.WithSettings(settings),
			correction.WithEnabled(enabled),
			correction.WithLogger(log),
			correction.WithMetrics(s.metrics),
		)
	}, log, s.writeTimeout)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	s.sessions[id] = sess
	s.cancels[id] = cancel
	s.mu.Unlock()

	s.metrics.ActiveSessions.Add(ctx, 1)
	log.Info("bridge: editor connected", "remote", r.RemoteAddr)

	err = sess.run(ctx)

	s.metrics.ActiveSessions.Add(ctx, -1)
	s.mu.Lock()
	delete(s.sessions, id)
	delete(s.cancels, id)
	closed := s.closed
	s.mu.Unlock()

	switch {
	case closed:
		conn.Close(websocket.StatusGoingAway, "shutting down")
	case err != nil:
		log.Warn("bridge: session ended", "err", err)
		conn.Close(websocket.StatusInternalError, "session error")
	default:
		conn.Close(websocket.StatusNormalClosure, "")
	}
	log.Info("bridge: editor disconnected", "corrections", len(sess.engine.Records()))
}

// SetSettings updates the engine tunables of every live session and of
// sessions connecting later. enabled only affects new sessions; live
// editors keep their own toggle.
func (s *Server) SetSettings(settings correction.Settings, enabled bool) {
	s.mu.Lock()
	s.settings = settings
	s.enabled = enabled
	live := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.Unlock()

	for _, sess := range live {
		sess.engine.Apply(settings)
	}
}

// Sessions returns the number of connected editors.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Session returns the live session with the given id.
func (s *Server) Session(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Check reports whether the server accepts new editors. It is suitable as a
// readiness check.
func (s *Server) Check(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrShutdown
	}
	return nil
}

// Shutdown stops accepting editors, ends every live session and waits for
// them to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
