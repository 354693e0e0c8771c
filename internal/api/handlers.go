package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"scriptd/internal/errors"
	"scriptd/internal/script"
)

// maxBodyBytes caps request bodies; script content fits comfortably below this
const maxBodyBytes = 4 << 20

// actor pulls the authenticated actor out of the request context. The auth
// middleware guarantees it for every non-exempt route.
func (s *Server) actor(w http.ResponseWriter, r *http.Request) (script.Actor, bool) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		Unauthorized(w, "authentication required")
	}
	return actor, ok
}

// decodeBody decodes a JSON request body into dst
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// handleScripts serves the /scripts collection: GET lists, POST creates.
func (s *Server) handleScripts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListScripts(w, r)
	case http.MethodPost:
		s.handleCreateScript(w, r)
	default:
		MethodNotAllowed(w)
	}
}

// handleScriptRoutes dispatches /scripts/{id} and its sub-resources
func (s *Server) handleScriptRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/scripts/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		NotFound(w, "script not found")
		return
	}

	// Collection-level POST endpoints sit beside the ID routes
	if len(parts) == 1 {
		switch parts[0] {
		case "upload":
			if r.Method != http.MethodPost {
				MethodNotAllowed(w)
				return
			}
			s.handleUploadScript(w, r)
			return
		case "delete":
			if r.Method != http.MethodPost {
				MethodNotAllowed(w)
				return
			}
			s.handleBulkDelete(w, r)
			return
		case "public":
			if r.Method != http.MethodGet {
				MethodNotAllowed(w)
				return
			}
			s.handleListPublic(w, r)
			return
		}

		scriptID := parts[0]
		switch r.Method {
		case http.MethodGet:
			s.handleGetScript(w, r, scriptID)
		case http.MethodPut:
			s.handleUpdateScript(w, r, scriptID)
		case http.MethodDelete:
			s.handleDeleteScript(w, r, scriptID)
		default:
			MethodNotAllowed(w)
		}
		return
	}

	if len(parts) == 2 {
		scriptID := parts[0]
		switch parts[1] {
		case "analyze":
			if r.Method != http.MethodPost {
				MethodNotAllowed(w)
				return
			}
			s.handleAnalyzeScript(w, r, scriptID)
		case "similar":
			if r.Method != http.MethodGet {
				MethodNotAllowed(w)
				return
			}
			s.handleSimilarScripts(w, r, scriptID)
		case "versions":
			if r.Method != http.MethodGet {
				MethodNotAllowed(w)
				return
			}
			s.handleScriptVersions(w, r, scriptID)
		case "run":
			if r.Method != http.MethodPost {
				MethodNotAllowed(w)
				return
			}
			s.handleRunScript(w, r, scriptID)
		case "executions":
			if r.Method != http.MethodGet {
				MethodNotAllowed(w)
				return
			}
			s.handleScriptExecutions(w, r, scriptID)
		default:
			NotFound(w, "unknown script resource")
		}
		return
	}

	NotFound(w, "unknown script resource")
}

func (s *Server) handleCreateScript(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var input script.CreateInput
	if !decodeBody(w, r, &input) {
		return
	}

	created, err := s.scripts.Create(r.Context(), actor, input)
	s.metrics.ObserveWrite("create", err)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, created, http.StatusCreated)
}

// handleUploadScript accepts either a JSON body or a multipart form with a
// "file" part. Analysis runs in the background either way.
func (s *Server) handleUploadScript(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var input script.CreateInput

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			BadRequest(w, "invalid multipart form")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			BadRequest(w, "missing file part")
			return
		}
		defer file.Close()

		content, err := io.ReadAll(io.LimitReader(file, maxBodyBytes))
		if err != nil {
			BadRequest(w, "failed to read file")
			return
		}

		input.Content = string(content)
		input.Title = r.FormValue("title")
		if input.Title == "" {
			input.Title = header.Filename
		}
		input.Description = r.FormValue("description")
		input.CategoryID = r.FormValue("categoryId")
		input.IsPublic = r.FormValue("isPublic") == "true"
		if tags := r.FormValue("tags"); tags != "" {
			input.Tags = strings.Split(tags, ",")
		}
	} else {
		if !decodeBody(w, r, &input) {
			return
		}
	}

	created, err := s.scripts.Upload(r.Context(), actor, input)
	s.metrics.ObserveWrite("upload", err)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, created, http.StatusCreated)
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request, scriptID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	found, err := s.scripts.Get(r.Context(), actor, scriptID)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, found, http.StatusOK)
}

func (s *Server) handleUpdateScript(w http.ResponseWriter, r *http.Request, scriptID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var input script.UpdateInput
	if !decodeBody(w, r, &input) {
		return
	}

	updated, err := s.scripts.Update(r.Context(), actor, scriptID, input)
	s.metrics.ObserveWrite("update", err)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, updated, http.StatusOK)
}

func (s *Server) handleDeleteScript(w http.ResponseWriter, r *http.Request, scriptID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	err := s.scripts.Delete(r.Context(), actor, scriptID)
	s.metrics.ObserveWrite("delete", err)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, map[string]string{"status": "deleted", "id": scriptID}, http.StatusOK)
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var body struct {
		IDs []string `json:"ids"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	result, err := s.scripts.BulkDelete(r.Context(), actor, body.IDs)
	s.metrics.ObserveWrite("bulk_delete", err)
	if err != nil {
		if result != nil && len(result.Failed) > 0 && errors.Is(err, errors.NotFound) {
			// Every ID failed; report the per-ID outcomes with the error status
			WriteJSON(w, result, http.StatusNotFound)
			return
		}
		WriteError(w, err)
		return
	}

	WriteJSON(w, result, http.StatusOK)
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	result, err := s.scripts.List(r.Context(), actor, listInputFromQuery(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, result, http.StatusOK)
}

func (s *Server) handleListPublic(w http.ResponseWriter, r *http.Request) {
	result, err := s.scripts.ListPublic(r.Context(), listInputFromQuery(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, result, http.StatusOK)
}

// listInputFromQuery maps the list query parameters onto the service input
func listInputFromQuery(r *http.Request) script.ListInput {
	q := r.URL.Query()
	return script.ListInput{
		CategoryID: q.Get("category"),
		Tag:        q.Get("tag"),
		Search:     q.Get("search"),
		SortBy:     q.Get("sort"),
		SortDesc:   q.Get("order") != "asc",
		Limit:      intParam(q.Get("limit"), 0),
		Offset:     intParam(q.Get("offset"), 0),
	}
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Server) handleAnalyzeScript(w http.ResponseWriter, r *http.Request, scriptID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	result, err := s.scripts.Analyze(r.Context(), actor, scriptID)
	if err != nil {
		s.metrics.ObserveAnalysis("error")
		WriteError(w, err)
		return
	}

	s.metrics.ObserveAnalysis("ok")
	WriteJSON(w, result, http.StatusOK)
}

func (s *Server) handleSimilarScripts(w http.ResponseWriter, r *http.Request, scriptID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	threshold := 0.0
	if raw := q.Get("threshold"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			BadRequest(w, "threshold must be a number in [0,1]")
			return
		}
		threshold = parsed
	}

	matches, err := s.scripts.FindSimilar(r.Context(), actor, scriptID, threshold, intParam(q.Get("limit"), 0))
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, map[string]interface{}{
		"scriptId": scriptID,
		"matches":  matches,
		"total":    len(matches),
	}, http.StatusOK)
}

func (s *Server) handleScriptVersions(w http.ResponseWriter, r *http.Request, scriptID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	versions, err := s.scripts.Versions(r.Context(), actor, scriptID)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, map[string]interface{}{
		"scriptId": scriptID,
		"versions": versions,
		"total":    len(versions),
	}, http.StatusOK)
}

func (s *Server) handleRunScript(w http.ResponseWriter, r *http.Request, scriptID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var body struct {
		Parameters map[string]interface{} `json:"parameters"`
	}
	// An empty body means no parameters
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		BadRequest(w, "invalid JSON body")
		return
	}

	log, err := s.scripts.Execute(r.Context(), actor, scriptID, body.Parameters)
	s.metrics.ObserveWrite("execute", err)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, log, http.StatusOK)
}

func (s *Server) handleScriptExecutions(w http.ResponseWriter, r *http.Request, scriptID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	logs, err := s.scripts.ExecutionLogs(r.Context(), actor, scriptID, intParam(r.URL.Query().Get("limit"), 20))
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, map[string]interface{}{
		"scriptId":   scriptID,
		"executions": logs,
		"total":      len(logs),
	}, http.StatusOK)
}
