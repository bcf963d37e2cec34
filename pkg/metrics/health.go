package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

// HealthChecker aggregates dependency probes into a health report
type HealthChecker struct {
	checks map[string]CheckFunc
}

// NewHealthChecker creates an empty health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]CheckFunc)}
}

// Register adds a named dependency probe
func (h *HealthChecker) Register(name string, check CheckFunc) {
	h.checks[name] = check
}

type componentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthReport struct {
	Status     string                     `json:"status"`
	Components map[string]componentHealth `json:"components"`
}

// report runs all probes with a shared deadline
func (h *HealthChecker) report(ctx context.Context) healthReport {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rep := healthReport{Status: "UP", Components: make(map[string]componentHealth)}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			rep.Status = "DOWN"
			rep.Components[name] = componentHealth{Status: "DOWN", Error: err.Error()}
			continue
		}
		rep.Components[name] = componentHealth{Status: "UP"}
	}
	return rep
}

// Handler serves the full health report, 503 when any dependency is down
func (h *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep := h.report(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if rep.Status != "UP" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(rep)
	}
}

// ReadinessHandler mirrors Handler; readiness and health share the probes
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return h.Handler()
}

// LivenessHandler reports process liveness only, no dependency probes
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"UP"}`))
	}
}
