package api

import (
	"net/http"
	"strings"

	"scriptd/internal/jobs"
)

// handleListJobs serves GET /jobs with optional status/type filters
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}
	if _, ok := s.actor(w, r); !ok {
		return
	}

	q := r.URL.Query()
	opts := jobs.ListJobsOptions{
		Limit:  intParam(q.Get("limit"), 20),
		Offset: intParam(q.Get("offset"), 0),
	}
	if status := q.Get("status"); status != "" {
		opts.Status = []jobs.JobStatus{jobs.JobStatus(status)}
	}
	if jobType := q.Get("type"); jobType != "" {
		opts.Type = []jobs.JobType{jobs.JobType(jobType)}
	}

	result, err := s.jobStore.ListJobs(opts)
	if err != nil {
		InternalError(w, "failed to list jobs")
		return
	}

	WriteJSON(w, result, http.StatusOK)
}

// handleJobRoutes dispatches /jobs/{id} and /jobs/{id}/cancel
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.actor(w, r); !ok {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		NotFound(w, "job not found")
		return
	}
	jobID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			MethodNotAllowed(w)
			return
		}
		job, err := s.jobStore.GetJob(jobID)
		if err != nil {
			InternalError(w, "failed to load job")
			return
		}
		if job == nil {
			NotFound(w, "job not found")
			return
		}
		WriteJSON(w, job, http.StatusOK)
		return
	}

	if len(parts) == 2 && parts[1] == "cancel" {
		if r.Method != http.MethodPost {
			MethodNotAllowed(w)
			return
		}
		if s.runner == nil {
			InternalError(w, "job runner is not running")
			return
		}
		if err := s.runner.Cancel(jobID); err != nil {
			BadRequest(w, err.Error())
			return
		}
		WriteJSON(w, map[string]string{"status": "cancelled", "id": jobID}, http.StatusOK)
		return
	}

	NotFound(w, "unknown job resource")
}
