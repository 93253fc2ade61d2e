// Package app wires all Proofline subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds the oracle chain, the
// editor bridge and the HTTP routes, Run serves until the context ends, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithOracle,
// WithMetrics, ...). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/proofline/internal/bridge"
	"github.com/MrWong99/proofline/internal/config"
	"github.com/MrWong99/proofline/internal/correction"
	"github.com/MrWong99/proofline/internal/health"
	"github.com/MrWong99/proofline/internal/observe"
	"github.com/MrWong99/proofline/internal/resilience"
	"github.com/MrWong99/proofline/pkg/editor"
	"github.com/MrWong99/proofline/pkg/oracle"
)

// ErrOracleUnavailable is reported by the readiness check when every oracle
// breaker is open.
var ErrOracleUnavailable = errors.New("app: all oracle circuits open")

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	registry *config.Registry
	metrics  *observe.Metrics
	level    *slog.LevelVar
	log      *slog.Logger

	oracle   oracle.Oracle
	fallback *resilience.OracleFallback
	bridge   *bridge.Server
	health   *health.Handler
	metricsH http.Handler
	handler  http.Handler
	server   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithOracle injects the oracle instead of building one from config. The
// injected oracle is still placed behind a circuit breaker.
func WithOracle(o oracle.Oracle) Option {
	return func(a *App) { a.oracle = o }
}

// WithRegistry injects the oracle registry. The default registry holds the
// built-in oracles.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics injects the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets the app change the log level on config reload.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithMetricsHandler replaces the /metrics handler. Default: promhttp.Handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsH = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsH == nil {
		a.metricsH = promhttp.Handler()
	}

	// ── 1. Oracle chain ──────────────────────────────────────────────────
	if err := a.initOracle(ctx); err != nil {
		return nil, fmt.Errorf("app: init oracle: %w", err)
	}

	// ── 2. Editor bridge ─────────────────────────────────────────────────
	a.bridge = bridge.NewServer(a.fallback,
		bridge.WithSettings(EngineSettings(cfg.Engine), cfg.Engine.IsEnabled()),
		bridge.WithOriginPatterns(cfg.Server.AllowedOrigins...),
		bridge.WithMetrics(a.metrics),
		bridge.WithLogger(a.log),
	)

	// ── 3. Health ────────────────────────────────────────────────────────
	a.health = health.New(
		health.Checker{Name: "oracle", Check: a.checkOracle},
		health.Checker{Name: "bridge", Check: a.bridge.Check},
	)

	// ── 4. HTTP routes ───────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.Handle("GET /ws", a.bridge)
	mux.Handle("GET /metrics", a.metricsH)
	a.health.Register(mux)
	a.handler = observe.Middleware(a.metrics)(mux)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// initOracle builds the oracle chain, or wraps the injected oracle.
func (a *App) initOracle(ctx context.Context) error {
	if a.oracle != nil {
		a.fallback = resilience.NewOracleFallback(a.oracle, breakerConfig(a.cfg.Resilience, a.metrics))
		return nil
	}

	if a.registry == nil {
		a.registry = config.NewRegistry()
		RegisterBuiltinOracles(a.registry, breakerConfig(a.cfg.Resilience, a.metrics))
	}
	fb, closers, err := BuildOracle(a.cfg, a.registry, a.metrics)
	if err != nil {
		return err
	}
	a.fallback = fb
	a.oracle = fb
	a.closers = append(a.closers, closers...)

	// Persistent transports dial now so a misconfigured URL shows up at
	// startup. Failure is not fatal; they redial on first use.
	if c, ok := fb.Primary().(interface{ Connect(context.Context) error }); ok {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := c.Connect(cctx); err != nil {
			a.log.Warn("oracle not reachable yet", "name", fb.Name(), "err", err)
		}
	}
	return nil
}

// checkOracle fails when no oracle would currently accept a call.
func (a *App) checkOracle(context.Context) error {
	for _, st := range a.fallback.States() {
		if st != resilience.StateOpen {
			return nil
		}
	}
	return ErrOracleUnavailable
}

// EngineSettings converts the engine config block to engine tunables.
func EngineSettings(ec config.EngineConfig) correction.Settings {
	s := correction.DefaultSettings()
	if ec.Debounce > 0 {
		s.Debounce = ec.Debounce
	}
	// Zero is a valid cooldown.
	s.Cooldown = ec.Cooldown
	if ec.ReleaseDelay > 0 {
		s.ReleaseDelay = ec.ReleaseDelay
	}
	if ec.HighlightDuration > 0 {
		s.HighlightDuration = ec.HighlightDuration
	}
	if ec.Colors.Grammar != "" {
		s.Palette.Grammar = editor.Tag(ec.Colors.Grammar)
	}
	if ec.Colors.Spelling != "" {
		s.Palette.Spelling = editor.Tag(ec.Colors.Spelling)
	}
	return s
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Oracle returns the breaker-guarded oracle used by every editor session.
func (a *App) Oracle() oracle.Oracle { return a.fallback }

// Bridge returns the editor bridge.
func (a *App) Bridge() *bridge.Server { return a.bridge }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured address until ctx is cancelled. It does
// not shut the app down; call [App.Shutdown] afterwards.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.log.Info("listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		// Stop accepting; sessions are ended by Shutdown.
		a.health.SetDraining(true)
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
		defer cancel()
		return a.server.Shutdown(sctx)
	})

	err := g.Wait()
	if err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of next. It is meant as the
// callback of a [config.Watcher].
func (a *App) ApplyConfig(prev, next *config.Config) {
	d := config.Diff(prev, next)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.EngineChanged {
		a.bridge.SetSettings(EngineSettings(d.NewEngine), d.NewEngine.IsEnabled())
		a.log.Info("engine settings reloaded", "sessions", a.bridge.Sessions())
	}
	if d.RequiresRestart() {
		a.log.Warn("configuration changes require a restart to take effect",
			"oracle", d.OracleChanged,
			"resilience", d.ResilienceChanged,
			"listen", d.ListenChanged,
		)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems: readiness goes to draining, editor
// sessions end, the HTTP server stops, then closers run. It respects the
// context deadline: if ctx expires, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "sessions", a.bridge.Sessions(), "closers", len(a.closers))
		a.health.SetDraining(true)

		if err := a.bridge.Shutdown(ctx); err != nil {
			a.log.Warn("bridge shutdown incomplete", "err", err)
			shutdownErr = err
		}
		if err := a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("http shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) shutdownTimeout() time.Duration {
	if d := a.cfg.Server.ShutdownTimeout; d > 0 {
		return d
	}
	return config.DefaultShutdownTimeout
}
