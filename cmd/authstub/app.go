package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avoronova/sessionkit/internal/backend/auth"
	"github.com/avoronova/sessionkit/internal/backend/db"
	"github.com/avoronova/sessionkit/internal/backend/handlers"
	"github.com/avoronova/sessionkit/internal/backend/issuer"
	"github.com/avoronova/sessionkit/internal/backend/repository"
	"github.com/avoronova/sessionkit/internal/backend/repository/memory"
	"github.com/avoronova/sessionkit/internal/backend/repository/postgres"
	"github.com/avoronova/sessionkit/internal/logger"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Logger     logger.Logger

	cleanup func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	l := logger.NewJSON(c.LogLevel)

	// Postgres when a DSN is given, in-memory otherwise
	var storage repository.Storage
	cleanup := func() {}
	if c.DatabaseDSN != "" {
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		storage = postgres.NewStorage(pool)
		cleanup = pool.Close
	} else {
		l.Warn("No database configured, sessions live in memory only")
		storage = memory.NewStorage()
	}

	iss, err := issuer.New(issuer.Config{SecretKey: c.SecretKey})
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("error while creating token issuer. Err: %w", err)
	}

	authService, err := auth.NewService(auth.Config{Logger: l}, iss, storage)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    handlers.NewRouter(authService, l),
		Logger:     l,
		cleanup:    cleanup,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.cleanup()

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.Logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.Logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.Logger.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
