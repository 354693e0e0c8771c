package api

import (
	"net/http"

	"scriptd/internal/version"
)

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	// Health and readiness checks
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/ready", s.handleReady)

	// Prometheus metrics
	s.router.Handle("/metrics", s.metrics.Handler())

	// Script operations
	s.router.HandleFunc("/scripts", s.handleScripts)       // GET list, POST create
	s.router.HandleFunc("/scripts/", s.handleScriptRoutes) // /:id and sub-resources

	// Background jobs
	s.router.HandleFunc("/jobs", s.handleListJobs) // GET
	s.router.HandleFunc("/jobs/", s.handleJobRoutes)

	// API keys: GET list, POST issue, DELETE /:id revoke
	s.router.HandleFunc("/keys", s.handleKeys)
	s.router.HandleFunc("/keys/", s.handleKeyRoutes)

	// Categories
	s.router.HandleFunc("/categories", s.handleCategories) // GET list, POST create

	// Root endpoint
	s.router.HandleFunc("/", s.handleRoot)
}

// handleRoot handles requests to the root path
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	// Only handle exact root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}

	response := map[string]interface{}{
		"name":    "scriptd HTTP API",
		"version": version.Version,
		"endpoints": []string{
			"GET /health - Health check",
			"GET /ready - Readiness check",
			"GET /metrics - Prometheus metrics",
			"POST /scripts - Create script (inline analysis)",
			"GET /scripts - List own scripts (admins: all)",
			"GET /scripts/public - List public scripts",
			"POST /scripts/upload - Upload script (deferred analysis)",
			"POST /scripts/delete - Bulk delete scripts",
			"GET /scripts/:id - Get script",
			"PUT /scripts/:id - Update script",
			"DELETE /scripts/:id - Delete script",
			"POST /scripts/:id/analyze - Re-run analysis",
			"GET /scripts/:id/similar - Find similar scripts",
			"GET /scripts/:id/versions - List version history",
			"POST /scripts/:id/run - Execute script",
			"GET /scripts/:id/executions - List execution logs",
			"GET /jobs - List background jobs",
			"GET /jobs/:id - Get job status",
			"POST /jobs/:id/cancel - Cancel job",
			"GET /keys - List own API keys",
			"POST /keys - Issue API key (admins may issue for any user)",
			"DELETE /keys/:id - Revoke API key",
			"GET /categories - List categories",
			"POST /categories - Create category (admin)",
		},
	}

	WriteJSON(w, response, http.StatusOK)
}
