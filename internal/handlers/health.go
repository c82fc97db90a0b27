package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ReadinessProbe reports whether a downstream dependency is reachable.
type ReadinessProbe func(ctx context.Context) error

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	start  time.Time
	probes map[string]ReadinessProbe
}

// NewHealthHandlers constructs health handlers with optional named probes.
func NewHealthHandlers(probes map[string]ReadinessProbe) *HealthHandlers {
	return &HealthHandlers{
		start:  time.Now(),
		probes: probes,
	}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(h.start).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz runs the registered probes and fails when any dependency is down.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failures := map[string]string{}
	for name, probe := range h.probes {
		if probe == nil {
			continue
		}
		if err := probe(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "unavailable",
			"failures": failures,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
