package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Handler serves the registry's aggregated health as JSON. Unhealthy maps
// to 503, healthy and degraded to 200.
type Handler struct {
	registry *Registry
	timeout  time.Duration
}

// NewHandler creates an HTTP handler over the registry
func NewHandler(registry *Registry, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Handler{registry: registry, timeout: timeout}
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	overall := h.registry.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if overall.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(overall)
}

// LivenessHandler reports process liveness without running any checks
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}
