// Package app wires the vidtube server runtime: config, logging, storage,
// the auth service and its HTTP routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"vidtube/cmd/identity"
	authapi "vidtube/cmd/internal/auth/api"
	"vidtube/cmd/internal/auth/session"
	"vidtube/cmd/internal/media"
	"vidtube/cmd/internal/metrics"
	"vidtube/cmd/security/password"
	"vidtube/cmd/security/token"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the vidtube server runtime: it owns HTTP server wiring and the
// lifecycle of its dependencies.
type App struct {
	cfg Config
	log Logger

	store     Store
	dbPool    *pgxpool.Pool
	dbEnabled bool

	metrics *metrics.Metrics
	auth    *authapi.Handler

	// Set when assets live on local disk and are served by this process.
	mediaDir  string
	mediaPath string
}

// New constructs a fully wired App instance from config and logger.
// Session, password, media and auth API settings are read from the environment.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	mediaCfg, err := media.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	assets, err := media.New(ctx, mediaCfg)
	if err != nil {
		return nil, err
	}

	users, st, pool, err := newStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    pool,
		dbEnabled: pool != nil,
	}

	deps := session.Deps{
		Store:     users,
		Assets:    assets,
		Passwords: pwCfg,
		Hasher:    token.HasherFromEnv(),
		Logger:    log,
	}
	if cfg.MetricsEnabled {
		a.metrics = metrics.New()
		deps.Recorder = a.metrics
	}

	svc, err := session.NewService(sessCfg, deps)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}
	a.auth, err = authapi.NewHandler(log, authapi.LoadConfigFromEnv(), svc)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	if local, ok := assets.(*media.LocalStore); ok {
		a.mediaDir = local.Dir()
		a.mediaPath = mediaMountPath(mediaCfg.PublicBaseURL)
	}

	log.Info("app.wired",
		"db_enabled", a.dbEnabled,
		"media_driver", string(mediaCfg.Driver),
		"password_algorithm", string(pwCfg.Algorithm),
		"token_hmac", deps.Hasher.Keyed(),
		"metrics", cfg.MetricsEnabled,
	)
	return a, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a)

	var h http.Handler = mux
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	h = a.metrics.Middleware(h)
	h = WithRequestLogging(h, a.log)
	return WithRecover(h, a.log)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 30*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		_ = a.store.Close(ctx)
		return fmt.Errorf("listen: %w", err)
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "url", runtimeBaseURL(ln.Addr().String()), "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	// Close store resources (pool etc).
	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return runErr
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// newStore decides between the Postgres-backed store and the in-memory dev store.
func newStore(ctx context.Context, cfg Config, log Logger) (identity.Store, Store, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return identity.NewMemoryStore(), nopStore{}, nil, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	if cfg.DBMigrate {
		if err := RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		log.Info("db.migrations.applied")
	}

	// Ownership model:
	// - app owns pool lifecycle
	// - PostgresStore never closes it
	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	log.Info("db.enabled.postgres_store")
	return users, dbStore{pool: pool}, pool, nil
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
