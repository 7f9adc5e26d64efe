package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/hongminglow/svcmon/internal/http/respond"
	"github.com/hongminglow/svcmon/internal/logging"
	"github.com/hongminglow/svcmon/internal/models/dto"
	"github.com/hongminglow/svcmon/internal/monitor"
)

// APIVersion is reported by the root banner.
const APIVersion = "1.0.0"

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the unauthenticated banner and health routes.
type HealthHandler struct {
	startedAt time.Time
	monitored *monitor.Store
	store     Pinger
	logger    logging.Logger
}

// NewHealthHandler reports uptime since startedAt and pings store on /health.
func NewHealthHandler(startedAt time.Time, monitored *monitor.Store, store Pinger, logger logging.Logger) *HealthHandler {
	return &HealthHandler{startedAt: startedAt, monitored: monitored, store: store, logger: logger.With("handler", "health")}
}

// Register wires the handler into a ServeMux.
func (h *HealthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("GET /health", h.handleHealth)
}

func (h *HealthHandler) handleRoot(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{
		"message": "Systemd Service Monitor API",
		"version": APIVersion,
	})
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := dto.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(h.startedAt).Truncate(time.Second).String(),
	}
	status := http.StatusOK

	if names, err := h.monitored.Load(); err != nil {
		h.logger.Warn(ctx, "health: load monitored list", "error", err)
	} else {
		resp.MonitoredServicesCount = len(names)
	}

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Error(ctx, "health: credential store unreachable", "error", err)
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	respond.JSON(w, status, resp)
}
