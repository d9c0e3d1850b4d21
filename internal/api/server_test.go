package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/tender-analyzer/internal/config"
	"github.com/JakeFAU/tender-analyzer/internal/storage/memory"
	"github.com/JakeFAU/tender-analyzer/internal/tender"
)

type fakeTasks struct {
	mu        sync.Mutex
	submitted []int64
	running   map[string]bool
	states    map[string]tender.TaskState
	err       error
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{running: map[string]bool{}, states: map[string]tender.TaskState{}}
}

func (f *fakeTasks) Submit(id int64) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", false, f.err
	}
	taskID := jsonInt(id)
	if f.running[taskID] {
		return taskID, false, nil
	}
	f.running[taskID] = true
	f.submitted = append(f.submitted, id)
	return taskID, true, nil
}

func (f *fakeTasks) Status(taskID string) (tender.TaskState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[taskID]
	if !ok {
		return tender.TaskState{}, tender.ErrTaskNotFound
	}
	return state, nil
}

func jsonInt(id int64) string {
	data, _ := json.Marshal(id)
	return string(data)
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, *fakeTasks, *memory.ReportStore) {
	t.Helper()
	tasks := newFakeTasks()
	reports := memory.NewReportStore()
	return NewServer(tasks, reports, cfg, nil), tasks, reports
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestParseStartsTask(t *testing.T) {
	t.Parallel()

	server, tasks, _ := newTestServer(t, config.Config{})
	rec := do(t, server, http.MethodPost, "/api/parse", `{"advert_id": 15755249}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "15755249", body["task_id"])
	assert.Equal(t, "Parsing started", body["message"])
	assert.Equal(t, []int64{15755249}, tasks.submitted)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestParseAcceptsStringID(t *testing.T) {
	t.Parallel()

	server, tasks, _ := newTestServer(t, config.Config{})
	rec := do(t, server, http.MethodPost, "/api/parse", `{"advert_id": " 42 "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{42}, tasks.submitted)
}

func TestParseAlreadyRunning(t *testing.T) {
	t.Parallel()

	server, tasks, _ := newTestServer(t, config.Config{})
	do(t, server, http.MethodPost, "/api/parse", `{"advert_id": 7}`)
	rec := do(t, server, http.MethodPost, "/api/parse", `{"advert_id": "7"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "7", body["task_id"])
	assert.Equal(t, "Task already running", body["message"])
	assert.Len(t, tasks.submitted, 1)
}

func TestParseRejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"invalid json": `{`,
		"missing":      `{}`,
		"null":         `{"advert_id": null}`,
		"empty string": `{"advert_id": ""}`,
		"non numeric":  `{"advert_id": "abc"}`,
		"float":        `{"advert_id": 1.5}`,
		"zero":         `{"advert_id": 0}`,
		"negative":     `{"advert_id": "-3"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			server, tasks, _ := newTestServer(t, config.Config{})
			rec := do(t, server, http.MethodPost, "/api/parse", body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode(t, rec), "error")
			assert.Empty(t, tasks.submitted)
		})
	}
}

func TestParseSubmitFailure(t *testing.T) {
	t.Parallel()

	server, tasks, _ := newTestServer(t, config.Config{})
	tasks.err = errors.New("id generator broken")
	rec := do(t, server, http.MethodPost, "/api/parse", `{"advert_id": 5}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	server, tasks, _ := newTestServer(t, config.Config{})
	result := "goszakup_9.json"
	tasks.states["9"] = tender.TaskState{ID: "9", Status: tender.TaskCompleted, Progress: 100, Message: "done", Result: &result}

	rec := do(t, server, http.MethodGet, "/api/status/9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "completed", body["status"])
	assert.EqualValues(t, 100, body["progress"])
	assert.Equal(t, "goszakup_9.json", body["result"])
	assert.Nil(t, body["error"])

	rec = do(t, server, http.MethodGet, "/api/status/unknown", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Task not found", decode(t, rec)["error"])
}

func TestReports(t *testing.T) {
	t.Parallel()

	server, _, reports := newTestServer(t, config.Config{})
	rec := do(t, server, http.MethodGet, "/api/reports", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"reports":[]}`, rec.Body.String())

	_, err := reports.Put(context.Background(), "goszakup_2.json", []byte(`{"tender_id": "2"}`))
	require.NoError(t, err)
	_, err = reports.Put(context.Background(), "goszakup_1.json", []byte(`{"tender_id": "1"}`))
	require.NoError(t, err)

	rec = do(t, server, http.MethodGet, "/api/reports", "")
	require.JSONEq(t, `{"reports":["goszakup_1.json","goszakup_2.json"]}`, rec.Body.String())

	rec = do(t, server, http.MethodGet, "/reports/goszakup_1.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"tender_id": "1"}`, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	rec = do(t, server, http.MethodGet, "/reports/missing.json", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyRequiredWhenEnabled(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	server, _, _ := newTestServer(t, cfg)

	rec := do(t, server, http.MethodGet, "/api/reports", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, server, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code, "health checks bypass the api key")
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	server, _, _ := newTestServer(t, config.Config{})
	rec := do(t, server, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, server, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRequestIDPropagated(t *testing.T) {
	t.Parallel()

	server, _, _ := newTestServer(t, config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestViewer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "viewer.html")
	require.NoError(t, os.WriteFile(path, []byte("<html>viewer</html>"), 0o600))

	server, _, _ := newTestServer(t, config.Config{Server: config.ServerConfig{ViewerPath: path}})
	rec := do(t, server, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "viewer")

	server, _, _ = newTestServer(t, config.Config{Server: config.ServerConfig{ViewerPath: filepath.Join(dir, "nope.html")}})
	rec = do(t, server, http.MethodGet, "/", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	handler := recoverMiddleware(nopLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func nopLogger() *zap.Logger { return zap.NewNop() }
