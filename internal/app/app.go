// Package app wires all Jack subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and the session sweeper until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithBackend,
// WithSessions, WithArchive). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinredperu/jack/internal/audit"
	"github.com/tinredperu/jack/internal/config"
	"github.com/tinredperu/jack/internal/dialog/orchestrator"
	"github.com/tinredperu/jack/internal/health"
	"github.com/tinredperu/jack/internal/server"
	"github.com/tinredperu/jack/internal/session"
	"github.com/tinredperu/jack/internal/tinred"
	"github.com/tinredperu/jack/pkg/provider/llm"
	"github.com/tinredperu/jack/pkg/provider/stt"
)

// Defaults for zero-value config fields.
const (
	defaultListenAddr    = ":8080"
	defaultSessionTTL    = 24 * time.Hour
	defaultSweepInterval = 10 * time.Minute
	defaultContextMaxAge = time.Hour
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
}

// sweeper is the slice of the session store Run needs for background eviction.
// [*session.MemStore] satisfies it.
type sweeper interface {
	Run(ctx context.Context, interval time.Duration)
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	backend  orchestrator.Backend
	sessions session.Store
	archive  audit.Store
	pool     *pgxpool.Pool
	orch     *orchestrator.Orchestrator
	httpSrv  *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBackend injects a TinRed backend instead of creating a client from config.
func WithBackend(b orchestrator.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithSessions injects a session store instead of creating a MemStore.
func WithSessions(s session.Store) Option {
	return func(a *App) { a.sessions = s }
}

// WithArchive injects an emission archive instead of creating one from config.
func WithArchive(s audit.Store) Option {
	return func(a *App) { a.archive = s }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. TinRed client ─────────────────────────────────────────────────
	if err := a.initBackend(); err != nil {
		return nil, fmt.Errorf("app: init backend: %w", err)
	}

	// ── 2. Session store ─────────────────────────────────────────────────
	a.initSessions()

	// ── 3. Emission archive ──────────────────────────────────────────────
	if err := a.initArchive(ctx); err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}

	// ── 4. Orchestrator ──────────────────────────────────────────────────
	a.initOrchestrator()

	// ── 5. HTTP server ───────────────────────────────────────────────────
	a.initServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initBackend() error {
	if a.backend != nil {
		return nil
	}

	var opts []tinred.Option
	if secs := a.cfg.TinRed.EmitTimeoutSeconds; secs > 0 {
		opts = append(opts, tinred.WithEmitTimeout(time.Duration(secs)*time.Second))
	}
	client, err := tinred.New(a.cfg.TinRed.BaseURL, opts...)
	if err != nil {
		return err
	}
	a.backend = client
	return nil
}

func (a *App) initSessions() {
	if a.sessions != nil {
		return
	}

	ttl := defaultSessionTTL
	if m := a.cfg.Session.TTLMinutes; m > 0 {
		ttl = time.Duration(m) * time.Minute
	}
	a.sessions = session.NewMemStore(session.WithTTL(ttl))
}

func (a *App) initArchive(ctx context.Context) error {
	if a.archive != nil {
		return nil
	}

	dsn := a.cfg.Audit.PostgresDSN
	if dsn == "" {
		slog.Info("emission archive running in memory")
		a.archive = audit.NewMemStore()
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}

	store := audit.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("migrate archive schema: %w", err)
	}

	a.pool = pool
	a.archive = store
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	slog.Info("emission archive connected", "backend", "postgres")
	return nil
}

func (a *App) initOrchestrator() {
	opts := []orchestrator.Option{
		orchestrator.WithArchive(a.archive),
	}
	if a.providers.STT != nil {
		opts = append(opts, orchestrator.WithSpeech(a.providers.STT))
	}
	if a.providers.LLM != nil {
		opts = append(opts, orchestrator.WithAssistant(a.providers.LLM))
	}

	maxAge := defaultContextMaxAge
	if m := a.cfg.Session.ContextMaxAgeMinutes; m > 0 {
		maxAge = time.Duration(m) * time.Minute
	}
	opts = append(opts, orchestrator.WithContextMaxAge(maxAge))

	a.orch = orchestrator.New(a.sessions, a.backend, opts...)
}

func (a *App) initServer() {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}

	srv := server.New(a.orch, server.WithHealth(health.New(a.healthCheckers()...)))
	a.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// healthCheckers builds the readiness probes: TinRed reachability, provider
// configuration, and the session store.
func (a *App) healthCheckers() []health.Checker {
	checkers := []health.Checker{
		{
			Name: "tinred",
			Check: func(ctx context.Context) error {
				// An unknown probe number proves the API answered; only
				// transport and server errors fail the check.
				_, err := a.backend.Identify(ctx, "000000000")
				if err != nil && !errors.Is(err, tinred.ErrNotIdentified) {
					return err
				}
				return nil
			},
		},
		{
			Name: "llm",
			Check: func(context.Context) error {
				if a.cfg.Providers.LLM.Name != "" && a.providers.LLM == nil {
					return errors.New("configured but not constructed")
				}
				return nil
			},
		},
		{
			Name: "sessions",
			Check: func(ctx context.Context) error {
				_, err := a.sessions.Peek(ctx, "healthcheck")
				if err != nil && !errors.Is(err, session.ErrNotFound) {
					return err
				}
				return nil
			},
		},
	}
	return checkers
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and the session sweeper until ctx is cancelled, then drains
// in-flight requests. Returns ctx.Err() on clean shutdown.
func (a *App) Run(ctx context.Context) error {
	// Background session eviction when the store supports it.
	if sw, ok := a.sessions.(sweeper); ok {
		interval := defaultSweepInterval
		if m := a.cfg.Session.SweepIntervalMinutes; m > 0 {
			interval = time.Duration(m) * time.Minute
		}
		go sw.Run(ctx, interval)
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			slog.Info("listening", "addr", a.httpSrv.Addr, "tls", true)
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("listening", "addr", a.httpSrv.Addr, "tls", false)
			err = a.httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(drainCtx); err != nil {
		slog.Warn("http drain incomplete", "err", err)
	}

	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// Handler exposes the routed HTTP handler for tests.
func (a *App) Handler() http.Handler {
	return a.httpSrv.Handler
}
