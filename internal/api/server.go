// Package api serves the HTTP control API of a running ODE handler: trigger
// and action inspection and toggling, handler state, occurrence history and
// Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/eventlog"
	"github.com/tphakala/odeflow/internal/logger"
	"github.com/tphakala/odeflow/internal/ode"
)

const componentName = "api"

// Server owns the echo instance and the HTTP listener.
type Server struct {
	echo       *echo.Echo
	controller *Controller
	log        logger.Logger
	gatherer   prometheus.Gatherer
}

// Option configures a Server.
type Option func(*Server)

// WithHistory exposes the occurrence log under /api/v1/history.
func WithHistory(repo eventlog.Repository) Option {
	return func(s *Server) { s.controller.history = repo }
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a server for h with every route registered.
func New(h *ode.Handler, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:       e,
		controller: &Controller{handler: h},
		log:        logger.Global().Module(componentName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.controller.log = s.log

	e.Use(middleware.Recover())
	e.GET("/healthz", s.controller.Health)
	if s.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	s.controller.Group = e.Group("/api/v1")
	s.controller.initRoutes()
	return s
}

// ServeHTTP makes the server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Run listens on addr until ctx is done, then shuts down gracefully within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", logger.String("addr", addr))
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("addr", addr).
			Build()
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("operation", "shutdown").
			Build()
	}
	s.log.Info("api stopped")
	return nil
}
