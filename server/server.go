// Package server assembles the HTTP surface over the store and engine.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/pkg/errors"

	"github.com/parleyhq/parley/plugin/lorestore"
	"github.com/parleyhq/parley/server/broker"
	"github.com/parleyhq/parley/server/engine"
	"github.com/parleyhq/parley/server/profile"
	apiv1 "github.com/parleyhq/parley/server/router/api/v1"
	"github.com/parleyhq/parley/store"
)

// Server owns the echo instance and its collaborators.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echo *echo.Echo
}

// NewServer builds the echo app and mounts the API.
func NewServer(prof *profile.Profile, st *store.Store, eng *engine.Engine, b *broker.Broker, lore *lorestore.Store) *Server {
	e := echo.New()
	e.Use(requestLogger)

	apiv1.NewAPIV1Service(st, eng, b, prof, lore).Register(e)

	return &Server{
		Profile: prof,
		Store:   st,
		echo:    e,
	}
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Profile.ListenAddr(),
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("server started", "addr", srv.Addr, "version", s.Profile.Version)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		start := time.Now()
		err := next(c)
		slog.Info("request",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"elapsed", time.Since(start).String(),
			"err", err,
		)
		return err
	}
}
