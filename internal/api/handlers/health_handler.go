package handlers

import (
	"net/http"

	"github.com/manru/manru-be/internal/monitoring"
)

// HealthSource provides the latest process health sample.
type HealthSource interface {
	Snapshot() monitoring.Health
}

// HealthHandler serves /health.
type HealthHandler struct {
	source HealthSource
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(source HealthSource) *HealthHandler {
	return &HealthHandler{source: source}
}

// Get reports process health. A degraded database answers 503.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	health := h.source.Snapshot()
	status := http.StatusOK
	if health.Status != monitoring.StatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}
