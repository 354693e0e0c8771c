package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"scriptd/internal/errors"
	"scriptd/internal/storage"
)

// handleKeys serves the /keys collection: GET lists, POST issues a new key.
func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		userID := actor.UserID
		if requested := r.URL.Query().Get("user"); requested != "" && actor.IsAdmin() {
			userID = requested
		}
		keys, err := s.auth.ListKeys(r.Context(), userID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, map[string]interface{}{"keys": keys, "total": len(keys)}, http.StatusOK)

	case http.MethodPost:
		var body struct {
			UserID string `json:"userId"`
		}
		if !decodeBody(w, r, &body) {
			return
		}

		userID := actor.UserID
		if body.UserID != "" && body.UserID != actor.UserID {
			if !actor.IsAdmin() {
				WriteError(w, errors.New(errors.NotAuthorized, "only admins may issue keys for other users"))
				return
			}
			userID = body.UserID
		}

		key, token, err := s.auth.Issue(r.Context(), userID)
		if err != nil {
			WriteError(w, err)
			return
		}

		// The raw token is shown exactly once
		WriteJSON(w, map[string]interface{}{
			"key":   key,
			"token": token,
		}, http.StatusCreated)

	default:
		MethodNotAllowed(w)
	}
}

// handleKeyRoutes serves DELETE /keys/{id} (revocation)
func (s *Server) handleKeyRoutes(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	keyID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/keys/"), "/")
	if keyID == "" || strings.Contains(keyID, "/") {
		NotFound(w, "key not found")
		return
	}
	if r.Method != http.MethodDelete {
		MethodNotAllowed(w)
		return
	}

	if !actor.IsAdmin() {
		owned, err := s.auth.ListKeys(r.Context(), actor.UserID)
		if err != nil {
			WriteError(w, err)
			return
		}
		mine := false
		for _, key := range owned {
			if key.KeyID == keyID {
				mine = true
				break
			}
		}
		if !mine {
			NotFound(w, "key not found")
			return
		}
	}

	if err := s.auth.Revoke(r.Context(), keyID); err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, map[string]string{"status": "revoked", "id": keyID}, http.StatusOK)
}

// handleCategories serves GET /categories and admin-only POST /categories.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	repo := storage.NewCategoryRepository(s.db)

	switch r.Method {
	case http.MethodGet:
		categories, err := repo.List(s.db)
		if err != nil {
			InternalError(w, "failed to list categories")
			return
		}
		WriteJSON(w, map[string]interface{}{"categories": categories, "total": len(categories)}, http.StatusOK)

	case http.MethodPost:
		if !actor.IsAdmin() {
			WriteError(w, errors.New(errors.NotAuthorized, "only admins may create categories"))
			return
		}

		var body struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		if body.Name == "" {
			BadRequest(w, "name is required")
			return
		}

		if existing, err := repo.GetByName(s.db, body.Name); err == nil && existing != nil {
			WriteJSON(w, existing, http.StatusOK)
			return
		}

		category := &storage.Category{
			ID:          uuid.New().String(),
			Name:        body.Name,
			Description: body.Description,
		}
		if err := repo.Create(s.db, category); err != nil {
			InternalError(w, "failed to create category")
			return
		}
		WriteJSON(w, category, http.StatusCreated)

	default:
		MethodNotAllowed(w)
	}
}
