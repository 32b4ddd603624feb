// Package app wires the todosync server runtime: config, logging, HTTP routes,
// and the realtime gateway.
//
// It is intentionally small and deterministic to keep behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"todosync/cmd/internal/auth/session"
	"todosync/cmd/internal/realtime"
	"todosync/cmd/internal/todo"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the todosync server runtime: it owns HTTP server wiring and the
// realtime gateway dependencies.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	ws *realtime.Gateway
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	st, dbPool, dbEnabled, todoStore, sessionStore, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	sessions := session.NewService(log, sessionStore)
	registry := realtime.NewRegistry(log)
	ws := realtime.NewGateway(log, registry, todoStore, sessions)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		ws:        ws,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.ws)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(WithSecurityHeaders(mux), a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	// Close store resources (pool etc).
	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
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

// newStores decides between Postgres-backed persistence and in-memory dev stores.
// Todo records and sessions always live in the same place: both Postgres, or
// both in-memory.
func newStores(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, todo.Store, session.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")

		sessions := session.NewInMemoryStore()
		seedDevSession(cfg, log, sessions)

		return nopStore{}, nil, false, todo.NewInMemoryStore(), sessions, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, nil, nil, err
	}

	log.Info("db.enabled.postgres_store")

	// Ownership model:
	// - app owns pool lifecycle
	// - the stores' Close() is a no-op
	todoStore, err := todo.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, err
	}
	sessionStore, err := session.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, err
	}

	return dbStore{pool: pool, todos: todoStore}, pool, true, todoStore, sessionStore, nil
}

// seedDevSession installs a long-lived session into the in-memory store so a
// local client can connect without a database or an issuing system.
func seedDevSession(cfg Config, log Logger, sessions *session.InMemoryStore) {
	if cfg.DevSessionToken == "" {
		return
	}

	sessions.Seed(
		session.Row{
			ID:        session.TokenID(cfg.DevSessionToken),
			UserID:    cfg.DevSessionUserID,
			ExpiresAt: time.Now().UTC().Add(365 * 24 * time.Hour),
		},
		session.Identity{ID: cfg.DevSessionUserID, Username: cfg.DevSessionUsername},
	)
	log.Info("session.dev.seeded", "user_id", cfg.DevSessionUserID)
}

type dbStore struct {
	pool  *pgxpool.Pool
	todos todo.Store
}

func (s dbStore) Close(_ context.Context) error {
	if s.todos != nil {
		_ = s.todos.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
