package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dayline/internal/config"
	"dayline/internal/db"
	"dayline/internal/domain"
	"dayline/internal/engine"
	"dayline/internal/migrate"
	"dayline/internal/mirror"
)

var serverNow = time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)

type testServer struct {
	*httptest.Server
	Engine engine.Engine
	Token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return serverNow }
	mem := mirror.NewMemory()
	mem.Now = func() time.Time { return serverNow }
	eng.Mirror = mem

	handler, err := New(Config{
		Engine:   eng,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: cfg.Auth.JWTSecret},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	ts := &testServer{Server: srv, Engine: eng}

	res, data := ts.doJSON(t, http.MethodPost, "/v0/init", map[string]any{
		"workspace_name": "Test",
		"timezone":       "UTC",
		"user_email":     "tester@example.com",
		"user_name":      "Tester",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("init status %d: %s", res.StatusCode, string(data))
	}
	var init engine.InitResult
	if err := json.Unmarshal(data, &init); err != nil {
		t.Fatalf("unmarshal init result: %v", err)
	}
	if init.AuthToken == "" {
		t.Fatalf("expected auth token in init result")
	}
	ts.Token = init.AuthToken
	return ts
}

func (s *testServer) doJSON(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	res, err := s.Client().Do(req)
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

func TestHealthWithoutAuth(t *testing.T) {
	srv := newTestServer(t)
	res, err := srv.Client().Get(srv.URL + "/v0/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestMissingTokenRejected(t *testing.T) {
	srv := newTestServer(t)
	res, err := srv.Client().Get(srv.URL + "/v0/inbox-tasks")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %q", envelope.Error.Code)
	}
}

func TestBadTokenRejected(t *testing.T) {
	srv := newTestServer(t)
	srv.Token = "not-a-jwt"
	res, data := srv.doJSON(t, http.MethodGet, "/v0/inbox-tasks", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
}

func TestSecondInitConflicts(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.doJSON(t, http.MethodPost, "/v0/init", map[string]any{
		"workspace_name": "Another",
		"user_email":     "other@example.com",
	})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "already_exists" {
		t.Fatalf("expected already_exists, got %q", envelope.Error.Code)
	}
}

func TestInboxTaskLifecycle(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.doJSON(t, http.MethodPost, "/v0/inbox-tasks", map[string]any{
		"name": "Write report",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created domain.InboxTask
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if created.RefID == "" || created.Status != domain.StatusNotStarted {
		t.Fatalf("unexpected created task %+v", created)
	}

	res, data = srv.doJSON(t, http.MethodPatch, "/v0/inbox-tasks/"+created.RefID, map[string]any{
		"status": "done",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}
	var updated domain.InboxTask
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatalf("unmarshal updated: %v", err)
	}
	if updated.Status != domain.StatusDone || updated.CompletedTime == nil {
		t.Fatalf("expected done with completed time, got %+v", updated)
	}

	res, data = srv.doJSON(t, http.MethodPost, "/v0/inbox-tasks/"+created.RefID+"/archive", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("archive status %d: %s", res.StatusCode, string(data))
	}

	res, data = srv.doJSON(t, http.MethodGet, "/v0/inbox-tasks", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedInboxTasks
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("expected archived task hidden, got %d items", len(page.Items))
	}

	res, data = srv.doJSON(t, http.MethodGet, "/v0/inbox-tasks?allow_archived=true", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list archived status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 1 || !page.Items[0].Archived {
		t.Fatalf("expected one archived task, got %+v", page.Items)
	}
}

func TestInboxTaskPagination(t *testing.T) {
	srv := newTestServer(t)
	for _, name := range []string{"One", "Two", "Three"} {
		res, data := srv.doJSON(t, http.MethodPost, "/v0/inbox-tasks", map[string]any{"name": name})
		if res.StatusCode != http.StatusOK {
			t.Fatalf("create %s status %d: %s", name, res.StatusCode, string(data))
		}
	}
	res, data := srv.doJSON(t, http.MethodGet, "/v0/inbox-tasks?limit=2", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("first page status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedInboxTasks
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal first page: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected full first page with cursor, got %d items cursor %q", len(page.Items), page.NextCursor)
	}
	res, data = srv.doJSON(t, http.MethodGet, "/v0/inbox-tasks?limit=2&cursor="+page.NextCursor, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second page status %d: %s", res.StatusCode, string(data))
	}
	// next_cursor is omitted on the final page, so decode into a fresh
	// struct rather than on top of the first page.
	var last paginatedInboxTasks
	if err := json.Unmarshal(data, &last); err != nil {
		t.Fatalf("unmarshal second page: %v", err)
	}
	if len(last.Items) != 1 || last.NextCursor != "" {
		t.Fatalf("expected final page of one, got %d items cursor %q", len(last.Items), last.NextCursor)
	}
}

func TestMissingTaskNotFound(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.doJSON(t, http.MethodGet, "/v0/inbox-tasks/no-such-task", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("expected not_found, got %q", envelope.Error.Code)
	}
}

func TestGenerateOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	if _, err := srv.Engine.CreateHabit(context.Background(), engine.HabitCreateOptions{
		Name: "Meditate",
		Gen:  domain.GenParams{Period: domain.PeriodDaily},
	}); err != nil {
		t.Fatalf("create habit: %v", err)
	}
	res, data := srv.doJSON(t, http.MethodPost, "/v0/generate", map[string]any{
		"targets": []string{"habits"},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("generate status %d: %s", res.StatusCode, string(data))
	}
	var report engine.GenReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.Created != 1 {
		t.Fatalf("expected one created task, got %+v", report)
	}
}

func TestGenerateRejectsUnknownTarget(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.doJSON(t, http.MethodPost, "/v0/generate", map[string]any{
		"targets": []string{"laundry"},
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
}

func TestSyncOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	if _, err := srv.Engine.CreateHabit(context.Background(), engine.HabitCreateOptions{
		Name: "Stretch",
		Gen:  domain.GenParams{Period: domain.PeriodDaily},
	}); err != nil {
		t.Fatalf("create habit: %v", err)
	}
	res, data := srv.doJSON(t, http.MethodPost, "/v0/sync", map[string]any{
		"targets": []string{"habits"},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("sync status %d: %s", res.StatusCode, string(data))
	}
	var report engine.SyncReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.CreatedRemote != 1 {
		t.Fatalf("expected one created remote, got %+v", report)
	}
}

func TestEventTail(t *testing.T) {
	srv := newTestServer(t)
	if _, data := srv.doJSON(t, http.MethodPost, "/v0/inbox-tasks", map[string]any{"name": "Track events"}); len(data) == 0 {
		t.Fatal("create returned no body")
	}
	res, data := srv.doJSON(t, http.MethodGet, "/v0/events?limit=5", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events) == 0 || events[0].Kind != "inbox-task.created" {
		t.Fatalf("expected newest event first, got %+v", events)
	}
}

func TestClearAllOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	if res, data := srv.doJSON(t, http.MethodPost, "/v0/inbox-tasks", map[string]any{"name": "Doomed"}); res.StatusCode != http.StatusOK {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	res, data := srv.doJSON(t, http.MethodPost, "/v0/clear-all", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("clear-all status %d: %s", res.StatusCode, string(data))
	}
	var report engine.ClearReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.Removed["inbox tasks"] != 1 {
		t.Fatalf("expected one removed task, got %+v", report.Removed)
	}
}
