package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/mir00r/split-router/pkg/logger"
)

// StoreChecker reports whether the configured store is reachable.
type StoreChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides the health, readiness and liveness probes
type HealthHandler struct {
	startTime time.Time
	version   string
	backend   string
	store     StoreChecker
	logger    *logger.Logger
}

// NewHealthHandler creates a new health handler. store may be nil.
func NewHealthHandler(version, backend string, store StoreChecker, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{
		startTime: time.Now(),
		version:   version,
		backend:   backend,
		store:     store,
		logger:    logger,
	}
}

func (h *HealthHandler) baseResponse(status string) map[string]interface{} {
	return map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   h.version,
		"uptime":    time.Since(h.startTime).String(),
	}
}

// HealthHandler reports overall status and the store backend in use
func (h *HealthHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	response := h.baseResponse("healthy")
	response["store_backend"] = h.backend
	writeJSON(w, http.StatusOK, response)
}

// ReadinessHandler checks if the application is ready to serve traffic
func (h *HealthHandler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.store.Ping(ctx); err != nil {
			h.logger.WithError(err).Warn("Readiness check failed")
			response := h.baseResponse("not_ready")
			response["error"] = "store unavailable"
			writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}
	}

	writeJSON(w, http.StatusOK, h.baseResponse("ready"))
}

// LivenessHandler checks if the application is alive
func (h *HealthHandler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.baseResponse("alive"))
}
