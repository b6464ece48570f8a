package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskdeck/internal/db"
	"taskdeck/internal/engine"
	"taskdeck/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowLegacyUserHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func asUser(t *testing.T, userID string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + signToken(t, userID)}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type idBody struct {
	ID string `json:"id"`
}

func mustCreate(t *testing.T, srv *testServer, user, path string, body any) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+path, body, asUser(t, user))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("POST %s status %d: %s", path, res.StatusCode, string(data))
	}
	var out idBody
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out.ID
}

// seedHierarchy creates project/module/usecase/task as alice, with bob
// as a member, and returns the ids.
func seedHierarchy(t *testing.T, srv *testServer) (projectID, moduleID, usecaseID, taskID string) {
	t.Helper()
	projectID = mustCreate(t, srv, "alice", "/v1/projects", map[string]any{"title": "Billing revamp"})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+projectID+"/members",
		map[string]any{"user_id": "bob", "role": "member"}, asUser(t, "alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add member status %d: %s", res.StatusCode, string(data))
	}
	moduleID = mustCreate(t, srv, "alice", "/v1/projects/"+projectID+"/modules", map[string]any{"title": "Invoicing"})
	usecaseID = mustCreate(t, srv, "alice", "/v1/modules/"+moduleID+"/usecases", map[string]any{"title": "Issue invoice"})
	taskID = mustCreate(t, srv, "bob", "/v1/usecases/"+usecaseID+"/tasks", map[string]any{"title": "Render invoice PDF", "type": "feature"})
	return
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{"Authorization": "Bearer bogus"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}

	// health stays open
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for health, got %d", res.StatusCode)
	}
}

func TestLegacyUserHeader(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects",
		map[string]any{"title": "Legacy project"}, map[string]string{"X-User-Id": "carol"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 via legacy header, got %d: %s", res.StatusCode, string(data))
	}
}

func TestTaskWorkflowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, _, _, taskID := seedHierarchy(t, srv)

	// start without assignee -> 409 illegal_transition
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks/"+taskID+"/state",
		map[string]any{"state": "in_progress"}, asUser(t, "bob"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "illegal_transition" {
		t.Fatalf("expected illegal_transition, got %s", envelope.Error.Code)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks/"+taskID+"/assign",
		map[string]any{"assignee_id": "bob"}, asUser(t, "alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks/"+taskID+"/state",
		map[string]any{"state": "in_progress"}, asUser(t, "bob"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks/"+taskID+"/state",
		map[string]any{"state": "completed", "completion_note": "shipped"}, asUser(t, "bob"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.State != "completed" || task.CompletionNote != "shipped" || task.CompletedAt == nil {
		t.Fatalf("completion not recorded: %+v", task)
	}
}

func TestForbiddenVersusNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	projectID, _, _, _ := seedHierarchy(t, srv)

	// viewer gets 403 on mutation
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+projectID+"/members",
		map[string]any{"user_id": "vera", "role": "viewer"}, asUser(t, "alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add viewer status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+projectID+"/modules",
		map[string]any{"title": "Refunds"}, asUser(t, "vera"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer mutation: expected 403, got %d", res.StatusCode)
	}

	// outsider gets 404 instead of 403
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects/"+projectID, nil, asUser(t, "mallory"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("outsider read: expected 404, got %d", res.StatusCode)
	}
}

func TestRelationEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, _, usecaseID, taskID := seedHierarchy(t, srv)
	otherID := mustCreate(t, srv, "bob", "/v1/usecases/"+usecaseID+"/tasks", map[string]any{"title": "Write PDF tests", "type": "test"})

	relID := mustCreate(t, srv, "bob", "/v1/tasks/"+taskID+"/relations",
		map[string]any{"target_task_id": otherID, "relation_type": "blocks"})

	// self relation is rejected with 422
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks/"+taskID+"/relations",
		map[string]any{"target_task_id": taskID, "relation_type": "blocks"}, asUser(t, "bob"))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("self relation: expected 422, got %d: %s", res.StatusCode, string(data))
	}

	// idempotent delete
	for i := 0; i < 2; i++ {
		res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v1/tasks/"+taskID+"/relations/"+relID, nil, asUser(t, "bob"))
		if res.StatusCode >= 300 {
			t.Fatalf("delete relation (attempt %d) status %d: %s", i+1, res.StatusCode, string(data))
		}
	}
}

func TestArchivedProjectRejectsMutations(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	projectID, _, _, _ := seedHierarchy(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/projects/"+projectID+"/status",
		map[string]any{"status": "archived"}, asUser(t, "alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("archive status %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+projectID+"/modules",
		map[string]any{"title": "Refunds"}, asUser(t, "alice"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("mutation under archived project: expected 403, got %d", res.StatusCode)
	}

	// reactivation still works
	res, _ = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/projects/"+projectID+"/status",
		map[string]any{"status": "active"}, asUser(t, "alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reactivate: expected 200, got %d", res.StatusCode)
	}
}
