// Package http serves the tenantgate settings and admin APIs over HTTP.
package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/tenantgate/pkg/auth"
	"github.com/rhuss/tenantgate/pkg/observability"
	"github.com/rhuss/tenantgate/pkg/transport"
)

// DefaultMaxBodySize bounds JSON request bodies.
const DefaultMaxBodySize = 1 << 20

// HealthChecker reports whether a backing store is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Routes bundles the handlers and the authentication chain guarding each
// API surface. A nil handler leaves its surface unrouted.
type Routes struct {
	Settings     *SettingsHandler
	SettingsAuth *auth.AuthChain

	Admin     *AdminHandler
	AdminAuth *auth.AuthChain

	// Health backs /readyz. Nil reports ready unconditionally.
	Health HealthChecker
}

// Server wraps an http.Server with the API routes and manages the full
// lifecycle including startup and graceful shutdown.
type Server struct {
	httpServer *http.Server
	routes     Routes
	config     ServerConfig
	logger     *slog.Logger
}

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// MetricsPath exposes Prometheus metrics when non-empty.
	MetricsPath string
	Logger      *slog.Logger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MetricsPath:     "/metrics",
		Logger:          slog.Default(),
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithTimeouts sets the read and write timeouts.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(s *Server) {
		s.config.ReadTimeout = read
		s.config.WriteTimeout = write
	}
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithMetricsPath sets the metrics endpoint; empty disables it.
func WithMetricsPath(path string) ServerOption {
	return func(s *Server) { s.config.MetricsPath = path }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.config.Logger = l; s.logger = l }
}

// NewServer creates a server for routes. Default middleware (request ID,
// logging, recovery, metrics) is applied automatically.
func NewServer(routes Routes, opts ...ServerOption) *Server {
	s := &Server{
		routes: routes,
		config: DefaultServerConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	return s
}

// Handler returns the complete http.Handler. Use this to integrate with
// httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.config.MetricsPath != "" {
		mux.Handle("GET "+s.config.MetricsPath, promhttp.Handler())
	}

	if s.routes.Settings != nil {
		settingsMux := http.NewServeMux()
		s.routes.Settings.Register(settingsMux)
		mux.Handle("/api/v1/", guard(s.routes.SettingsAuth, "settings", settingsMux))
	}
	if s.routes.Admin != nil {
		adminMux := http.NewServeMux()
		s.routes.Admin.Register(adminMux)
		mux.Handle("/admin/v1/", guard(s.routes.AdminAuth, "admin", adminMux))
	}

	return transport.Chain(
		transport.RequestID(),
		transport.Logging(s.logger),
		transport.Recovery(),
		observability.MetricsMiddleware,
	)(mux)
}

// guard wraps h with an authentication chain. A nil chain rejects every
// request so that a missing wiring never exposes a surface.
func guard(chain *auth.AuthChain, surface string, h http.Handler) http.Handler {
	if chain == nil {
		chain = &auth.AuthChain{DefaultDecision: auth.No}
	}
	return auth.Middleware(chain, surface)(h)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.routes.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.routes.Health.HealthCheck(ctx); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

// ServeOn starts the server on the given listener and shuts down when ctx
// is cancelled. Used for testing.
func (s *Server) ServeOn(ctx context.Context, ln net.Listener) error {
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// clientIP returns the host part of the request's remote address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
