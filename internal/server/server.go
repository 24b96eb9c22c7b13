// Package server assembles the trellis HTTP API: the lint, expand, and
// rules endpoints under /v1, health and version probes, and an optional
// token-gated admin surface.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/trellis/internal/errors"
	"github.com/3leaps/trellis/internal/observability"
	"github.com/3leaps/trellis/internal/server/handlers"
	"github.com/3leaps/trellis/internal/server/middleware"
)

// Default timeouts applied when the caller does not configure them.
const (
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// maxRequestBytes caps any request body before handlers apply their own
// tighter limits.
const maxRequestBytes = 2 << 20

// Server is the trellis API server.
type Server struct {
	host   string
	port   int
	router chi.Router

	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration

	// onSignal receives admin signal requests. Nil disables the callback;
	// the endpoint still acknowledges the signal.
	onSignal func(signal string)
}

// New builds a server listening on host:port with all routes registered.
func New(host string, port int) *Server {
	s := &Server{
		host:            host,
		port:            port,
		readTimeout:     defaultReadTimeout,
		writeTimeout:    defaultWriteTimeout,
		idleTimeout:     defaultIdleTimeout,
		shutdownTimeout: defaultShutdownTimeout,
	}
	s.router = s.buildRouter()
	return s
}

// ConfigureTimeouts overrides the HTTP server timeouts. Zero values keep
// the defaults.
func (s *Server) ConfigureTimeouts(read, write, idle, shutdown time.Duration) {
	if read > 0 {
		s.readTimeout = read
	}
	if write > 0 {
		s.writeTimeout = write
	}
	if idle > 0 {
		s.idleTimeout = idle
	}
	if shutdown > 0 {
		s.shutdownTimeout = shutdown
	}
}

// OnSignal registers the callback invoked when the admin signal endpoint
// accepts a request.
func (s *Server) OnSignal(fn func(signal string)) {
	s.onSignal = fn
}

// Handler returns the assembled route tree.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}

// Host returns the configured listen host.
func (s *Server) Host() string {
	return s.host
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(observability.HTTPMetrics(observability.TelemetrySystem))
	r.Use(middleware.Logger(zap.L()))
	r.Use(middleware.Recovery)
	r.Use(middleware.MaxBytes(maxRequestBytes))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.New(apperrors.CodeNotFound, "resource not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.New(apperrors.CodeMethodNotAllowed, "method not allowed"))
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/lint", handlers.LintHandler)
		r.Post("/expand", handlers.ExpandHandler)
		r.Get("/rules", handlers.RulesHandler)
	})

	s.registerAdminEndpoint(r)

	return r
}

// Run serves until ctx is canceled, then shuts down gracefully within the
// shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
