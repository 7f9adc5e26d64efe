package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hongminglow/svcmon/internal/auth"
	"github.com/hongminglow/svcmon/internal/config"
	"github.com/hongminglow/svcmon/internal/http/handlers"
	"github.com/hongminglow/svcmon/internal/logging"
	"github.com/hongminglow/svcmon/internal/metrics"
	"github.com/hongminglow/svcmon/internal/middleware"
	"github.com/hongminglow/svcmon/internal/monitor"
	"github.com/hongminglow/svcmon/internal/storage"
	"github.com/hongminglow/svcmon/internal/systemd"
)

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// Option customises New.
type Option func(*options)

type options struct {
	runner  systemd.Runner
	metrics *metrics.Metrics
}

// WithRunner replaces the os/exec command runner used for systemctl.
func WithRunner(r systemd.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithMetrics supplies the metrics registry instead of creating one.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, store storage.UserStore, logger logging.Logger, opts ...Option) (*Server, error) {
	o := options{runner: systemd.ExecRunner{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}

	authn, err := auth.NewAuthenticator(store, cfg.AuthSettings(), logger)
	if err != nil {
		return nil, fmt.Errorf("init authenticator: %w", err)
	}
	guard := middleware.NewGuard(authn, logger, o.metrics)
	monitored := monitor.NewStore(cfg.MonitoredServicesFile)
	units := systemd.NewManager(o.runner, cfg.UnitDirs, cfg.UseSudo, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(time.Now(), monitored, store, logger).Register(mux)
	handlers.NewAuthHandler(authn, guard, o.metrics, logger).Register(mux)
	handlers.NewServicesHandler(units, monitored, guard, o.metrics, logger).Register(mux)
	mux.Handle("GET /metrics", o.metrics.Handler())

	handler := middleware.CORS(cfg.CORSOrigins, middleware.Logging(logger, o.metrics, mux))

	// WriteTimeout leaves room for a 30s systemctl action after the unit check.
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{inner: httpServer}, nil
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.inner.Handler
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
