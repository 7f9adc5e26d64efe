package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/hongminglow/svcmon/internal/http/respond"
	"github.com/hongminglow/svcmon/internal/logging"
	"github.com/hongminglow/svcmon/internal/metrics"
	"github.com/hongminglow/svcmon/internal/middleware"
	"github.com/hongminglow/svcmon/internal/models"
	"github.com/hongminglow/svcmon/internal/models/dto"
	"github.com/hongminglow/svcmon/internal/monitor"
	"github.com/hongminglow/svcmon/internal/systemd"
)

const (
	maxJSONBytes = 1 << 20
	maxPageSize  = 10000
)

// ServiceController is the systemd surface the routes need.
type ServiceController interface {
	ScanUnits() ([]string, error)
	Status(ctx context.Context, name string) models.ServiceInfo
	Control(ctx context.Context, name, action string) (systemd.ControlResult, error)
	Logs(ctx context.Context, name string, lines int) (systemd.LogResult, error)
}

// ServicesHandler serves the discovery, monitoring and control routes.
type ServicesHandler struct {
	units     ServiceController
	monitored *monitor.Store
	guard     *middleware.Guard
	metrics   *metrics.Metrics
	logger    logging.Logger
}

// NewServicesHandler wires the unit controller and the monitored list behind guard.
func NewServicesHandler(units ServiceController, monitored *monitor.Store, guard *middleware.Guard, m *metrics.Metrics, logger logging.Logger) *ServicesHandler {
	return &ServicesHandler{
		units:     units,
		monitored: monitored,
		guard:     guard,
		metrics:   m,
		logger:    logger.With("handler", "services"),
	}
}

// Register attaches the service routes. Reads need any identity; changes to
// the monitored list and unit control need an admin.
func (h *ServicesHandler) Register(mux *http.ServeMux) {
	mux.Handle("GET /scan-services", h.guard.Authenticated(h.handleScan))
	mux.Handle("GET /available-services", h.guard.Authenticated(h.handleAvailable))
	mux.Handle("GET /monitored-services", h.guard.Authenticated(h.handleListMonitored))
	mux.Handle("GET /service-status/{name}", h.guard.Authenticated(h.handleStatus))
	mux.Handle("GET /monitored-status", h.guard.Authenticated(h.handleMonitoredStatus))
	mux.Handle("GET /service-logs/{name}", h.guard.Authenticated(h.handleLogs))

	mux.Handle("POST /monitored-services", h.guard.Admin(h.handleAddMonitored))
	mux.Handle("POST /monitored-services/batch", h.guard.Admin(h.handleAddMonitoredBatch))
	mux.Handle("DELETE /monitored-services/{name}", h.guard.Admin(h.handleRemoveMonitored))
	mux.Handle("POST /service-control/{name}/{action}", h.guard.Admin(h.handleControl))
}

func (h *ServicesHandler) handleScan(w http.ResponseWriter, r *http.Request) {
	units, err := h.units.ScanUnits()
	if err != nil {
		h.logger.Error(r.Context(), "scan units", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to scan services")
		return
	}
	respond.JSON(w, http.StatusOK, units)
}

func (h *ServicesHandler) handleAvailable(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := parsePaging(r)
	if err != nil {
		respond.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	units, err := h.units.ScanUnits()
	if err != nil {
		h.logger.Error(r.Context(), "scan units", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to scan services")
		return
	}
	if page > 0 && pageSize > 0 {
		start := min((page-1)*pageSize, len(units))
		end := min(start+pageSize, len(units))
		units = units[start:end]
	}

	out := make([]dto.AvailableService, 0, len(units))
	for _, name := range units {
		info := h.units.Status(r.Context(), name)
		out = append(out, dto.AvailableService{
			Name:        name,
			Description: info.Description,
			Enabled:     info.Enabled,
			Loaded:      info.Loaded,
		})
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *ServicesHandler) handleListMonitored(w http.ResponseWriter, r *http.Request) {
	names, ok := h.loadMonitored(w, r)
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, names)
}

func (h *ServicesHandler) handleAddMonitored(w http.ResponseWriter, r *http.Request) {
	var req dto.ServiceAddRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name, err := systemd.NormalizeName(req.ServiceName)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid service name")
		return
	}

	units, err := h.units.ScanUnits()
	if err != nil {
		h.logger.Error(r.Context(), "scan units", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to scan services")
		return
	}
	if !slices.Contains(units, name) {
		respond.Error(w, http.StatusNotFound, fmt.Sprintf("Service %s not found", name))
		return
	}

	names, added, err := h.monitored.Add(name)
	if err != nil {
		h.logger.Error(r.Context(), "add monitored service", "service", name, "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to update monitored services")
		return
	}
	if added {
		h.logger.Info(r.Context(), "service monitored", "service", name, "by", caller(r))
	}
	respond.JSON(w, http.StatusOK, dto.ServiceAddResponse{
		Message:  fmt.Sprintf("Service %s added to monitoring", name),
		Services: names,
	})
}

func (h *ServicesHandler) handleAddMonitoredBatch(w http.ResponseWriter, r *http.Request) {
	var req dto.ServiceBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	units, err := h.units.ScanUnits()
	if err != nil {
		h.logger.Error(r.Context(), "scan units", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to scan services")
		return
	}

	found := []string{}
	notFound := []string{}
	for _, raw := range req.Services {
		name, err := systemd.NormalizeName(raw)
		if err != nil {
			notFound = append(notFound, strings.TrimSpace(raw))
			continue
		}
		if !slices.Contains(units, name) {
			notFound = append(notFound, name)
			continue
		}
		found = append(found, name)
	}

	added, total, err := h.monitored.AddMany(found)
	if err != nil {
		h.logger.Error(r.Context(), "add monitored services", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to update monitored services")
		return
	}
	h.logger.Info(r.Context(), "batch monitored", "added", len(added), "not_found", len(notFound), "by", caller(r))
	respond.JSON(w, http.StatusOK, dto.ServiceBatchResponse{
		Message:        "Batch operation completed",
		Added:          added,
		NotFound:       notFound,
		TotalMonitored: total,
	})
}

func (h *ServicesHandler) handleRemoveMonitored(w http.ResponseWriter, r *http.Request) {
	name, ok := pathUnit(w, r)
	if !ok {
		return
	}
	removed, err := h.monitored.Remove(name)
	if err != nil {
		h.logger.Error(r.Context(), "remove monitored service", "service", name, "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to update monitored services")
		return
	}
	if !removed {
		respond.Error(w, http.StatusNotFound, fmt.Sprintf("Service %s not in monitoring list", name))
		return
	}
	h.logger.Info(r.Context(), "service unmonitored", "service", name, "by", caller(r))
	respond.JSON(w, http.StatusOK, dto.MessageResponse{Message: fmt.Sprintf("Service %s removed from monitoring", name)})
}

func (h *ServicesHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	name, ok := pathUnit(w, r)
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, h.units.Status(r.Context(), name))
}

func (h *ServicesHandler) handleMonitoredStatus(w http.ResponseWriter, r *http.Request) {
	names, ok := h.loadMonitored(w, r)
	if !ok {
		return
	}
	out := make([]models.ServiceInfo, 0, len(names))
	for _, name := range names {
		out = append(out, h.units.Status(r.Context(), name))
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *ServicesHandler) handleControl(w http.ResponseWriter, r *http.Request) {
	name, ok := pathUnit(w, r)
	if !ok {
		return
	}
	action := r.PathValue("action")

	res, err := h.units.Control(r.Context(), name, action)
	if err != nil {
		if errors.Is(err, systemd.ErrInvalidAction) {
			respond.Error(w, http.StatusBadRequest, fmt.Sprintf("Invalid action %q", action))
			return
		}
		h.logger.Error(r.Context(), "control service", "service", name, "action", action, "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to control service")
		return
	}

	if h.metrics != nil {
		h.metrics.ServiceAction(action, res.Success)
	}
	h.logger.Info(r.Context(), "service control", "service", name, "action", action, "success", res.Success, "by", caller(r))
	if !res.Success {
		respond.Error(w, http.StatusBadRequest, res.Message)
		return
	}
	respond.JSON(w, http.StatusOK, dto.ControlResponse{
		Success:    true,
		Message:    res.Message,
		ReturnCode: res.ReturnCode,
	})
}

func (h *ServicesHandler) handleLogs(w http.ResponseWriter, r *http.Request) {
	name, ok := pathUnit(w, r)
	if !ok {
		return
	}
	lines := systemd.DefaultLogLines
	if raw := r.URL.Query().Get("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < systemd.MinLogLines || n > systemd.MaxLogLines {
			respond.Error(w, http.StatusUnprocessableEntity,
				fmt.Sprintf("lines must be an integer between %d and %d", systemd.MinLogLines, systemd.MaxLogLines))
			return
		}
		lines = n
	}

	res, err := h.units.Logs(r.Context(), name, lines)
	if err != nil {
		if errors.Is(err, systemd.ErrTimeout) {
			respond.Error(w, http.StatusRequestTimeout, "Log retrieval timed out")
			return
		}
		h.logger.Error(r.Context(), "read journal", "service", name, "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to get logs")
		return
	}
	respond.JSON(w, http.StatusOK, dto.LogsResponse{Logs: res.Lines, Error: res.Error})
}

func (h *ServicesHandler) loadMonitored(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	names, err := h.monitored.Load()
	if err != nil {
		h.logger.Error(r.Context(), "load monitored services", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to load monitored services")
		return nil, false
	}
	return names, true
}

func pathUnit(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := systemd.NormalizeName(r.PathValue("name"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid service name")
		return "", false
	}
	return name, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respond.Error(w, http.StatusUnprocessableEntity, "invalid JSON payload")
		return false
	}
	return true
}

func parsePaging(r *http.Request) (page, pageSize int, err error) {
	q := r.URL.Query()
	if raw := q.Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, errors.New("page must be an integer >= 1")
		}
	}
	if raw := q.Get("page_size"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize < 1 || pageSize > maxPageSize {
			return 0, 0, fmt.Errorf("page_size must be an integer between 1 and %d", maxPageSize)
		}
	}
	return page, pageSize, nil
}

func caller(r *http.Request) string {
	id, _ := middleware.IdentityFrom(r.Context())
	return id.Username
}
