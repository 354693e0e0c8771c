package api

import (
	"net/http"
	"time"

	"scriptd/internal/version"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Checks    map[string]bool `json:"checks"`
}

// handleHealth handles GET /health (liveness)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}

	WriteJSON(w, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	}, http.StatusOK)
}

// handleReady handles GET /ready. Not ready until the store of record
// answers a ping; the jobs runner is reported but not required.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}

	checks := map[string]bool{
		"database": false,
		"jobs":     s.runner != nil && s.runner.IsRunning(),
	}

	if s.db != nil {
		if err := s.db.Conn().PingContext(r.Context()); err == nil {
			checks["database"] = true
		}
	}

	status := "ready"
	code := http.StatusOK
	if !checks["database"] {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	WriteJSON(w, ReadyResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}, code)
}
