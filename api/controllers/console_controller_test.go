package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/excel-console/api/middlewares"
	"github.com/moyoez/excel-console/console"
	"github.com/moyoez/excel-console/intake"
	"github.com/moyoez/excel-console/transfer"
	"github.com/moyoez/excel-console/types"
)

type stubBackend struct{}

func (stubBackend) Preview(_ context.Context, file types.SelectedFile) (*types.PreviewResult, error) {
	return &types.PreviewResult{TotalRows: 2, Rows: []types.PreviewRow{
		{RowNumber: 1, Name: "Juan", Email: "juan@example.com", IsValid: true},
		{RowNumber: 2, Name: "María", Email: "maria@example.com", IsValid: true},
	}}, nil
}

func (stubBackend) Upload(_ context.Context, _ types.SelectedFile, onProgress func(int)) (*types.UploadOutcome, error) {
	onProgress(100)
	return &types.UploadOutcome{TotalRows: 2}, nil
}

type stubChannel struct{}

func (stubChannel) Open(context.Context) error { return nil }

func (stubChannel) Close() error { return nil }

type stubHistory struct {
	err     error
	entries []types.UploadLogEntry
}

func (h *stubHistory) List(context.Context, int) ([]types.UploadLogEntry, error) {
	if h.err != nil {
		return nil, h.err
	}
	return h.entries, nil
}

func (h *stubHistory) Get(_ context.Context, id int64) (*types.UploadLogEntry, error) {
	for _, e := range h.entries {
		if e.ID == id {
			entry := e
			return &entry, nil
		}
	}
	return nil, &transfer.RemoteError{Op: "get log", StatusCode: http.StatusNotFound, Detail: "Log not found"}
}

func (h *stubHistory) Last() []types.UploadLogEntry {
	return h.entries
}

type stubStatus struct {
	healthErr error
}

func (stubStatus) BaseURL() string { return "http://127.0.0.1:8000" }

func (stubStatus) Stats(context.Context) (*types.UploadStats, error) {
	return &types.UploadStats{TotalUploads: 3, TotalSuccessful: 20, TotalFailed: 1}, nil
}

func (s stubStatus) Health(context.Context) error { return s.healthErr }

func (stubStatus) ValidateFile(_ context.Context, file types.SelectedFile) (*types.ValidationResponse, error) {
	return &types.ValidationResponse{Message: "ok", Filename: file.Name, SizeOK: true, Sheets: []string{"Sheet1"}, TotalSheets: 1}, nil
}

func (stubStatus) ListSheets(context.Context) (*types.SheetsResponse, error) {
	return nil, &transfer.RemoteError{Op: "sheets", StatusCode: http.StatusNotFound, Detail: "No file uploaded yet"}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

type snapshotBody struct {
	Stage          string `json:"stage"`
	CanUpload      bool   `json:"canUpload"`
	ErrorMessage   string `json:"errorMessage"`
	SuccessMessage string `json:"successMessage"`
	File           *struct {
		Name string `json:"name"`
	} `json:"file"`
}

// setupRouter creates a test router with the console endpoints
func setupRouter(t *testing.T, history *stubHistory, status stubStatus) (*gin.Engine, *console.Console, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c := console.New(stubBackend{}, &stubHistory{}, console.Options{
		SettleWindow: time.Hour,
		NewChannel:   func(func(types.PushMessage), func(error)) console.PushChannel { return stubChannel{} },
	})
	t.Cleanup(func() { _ = c.Close() })

	folder := t.TempDir()
	consoleCtrl := NewConsoleController(c, status, folder)
	historyCtrl := NewHistoryController(history, status, false)

	router := gin.New()
	v1 := router.Group("/api/console/v1", middlewares.OnlyAllowLocal)
	{
		v1.GET("/state", consoleCtrl.HandleState)
		v1.POST("/select", consoleCtrl.HandleSelect)
		v1.POST("/preview", consoleCtrl.HandlePreview)
		v1.POST("/commit", consoleCtrl.HandleCommit)
		v1.POST("/reset", consoleCtrl.HandleReset)
		v1.POST("/validate", consoleCtrl.HandleValidate)
		v1.GET("/sheets", consoleCtrl.HandleSheets)
		v1.GET("/template", consoleCtrl.HandleTemplate)
		v1.GET("/logs", historyCtrl.HandleLogs)
		v1.GET("/logs/:id", historyCtrl.HandleLog)
		v1.GET("/stats", historyCtrl.HandleStats)
		v1.GET("/health", historyCtrl.HandleHealth)
		v1.GET("/qr", QRCode(status.BaseURL()))
	}
	return router, c, folder
}

func do(router *gin.Engine, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.RemoteAddr = "127.0.0.1:12345" // Mock local IP for middleware
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) (snapshotBody, string) {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
	}
	var snap snapshotBody
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			t.Fatalf("Failed to parse snapshot: %v", err)
		}
	}
	return snap, env.Error
}

func templateUpload(t *testing.T, name string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	if err := intake.WriteTemplate(part); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, mw.FormDataContentType()
}

func TestConsoleRejectsRemoteClients(t *testing.T) {
	router, _, _ := setupRouter(t, &stubHistory{}, stubStatus{})
	req, _ := http.NewRequest(http.MethodGet, "/api/console/v1/state", nil)
	req.RemoteAddr = "192.168.1.20:40000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status code 403, got %d", w.Code)
	}

	w = do(router, http.MethodGet, "/api/console/v1/state", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status code 200, got %d", w.Code)
	}
	if snap, _ := decodeSnapshot(t, w); snap.Stage != string(console.StageIdle) {
		t.Errorf("stage = %q, want idle", snap.Stage)
	}
}

func TestSelectByPathRejectsUnsupportedType(t *testing.T) {
	router, _, _ := setupRouter(t, &stubHistory{}, stubStatus{})
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("name,email\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	payload, _ := json.Marshal(map[string]string{"path": path})

	w := do(router, http.MethodPost, "/api/console/v1/select", bytes.NewBuffer(payload), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status code 400, got %d: %s", w.Code, w.Body.String())
	}
	snap, msg := decodeSnapshot(t, w)
	if !strings.Contains(msg, ".xlsx") || snap.File != nil {
		t.Errorf("error=%q file=%v", msg, snap.File)
	}
}

func TestSelectMultipartThroughCommit(t *testing.T) {
	router, c, folder := setupRouter(t, &stubHistory{}, stubStatus{})

	body, contentType := templateUpload(t, "users.xlsx")
	w := do(router, http.MethodPost, "/api/console/v1/select", body, contentType)
	if w.Code != http.StatusOK {
		t.Fatalf("select: %d %s", w.Code, w.Body.String())
	}
	snap, _ := decodeSnapshot(t, w)
	if snap.File == nil || snap.File.Name != "users.xlsx" || snap.Stage != string(console.StageFileSelected) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, err := os.Stat(filepath.Join(folder, "users.xlsx")); err != nil {
		t.Errorf("upload not stored: %v", err)
	}

	w = do(router, http.MethodGet, "/api/console/v1/sheets", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Sheet1") {
		t.Errorf("sheets: %d %s", w.Code, w.Body.String())
	}

	w = do(router, http.MethodGet, "/api/console/v1/sheets?source=remote", nil, "")
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "No file uploaded yet") {
		t.Errorf("remote sheets: %d %s", w.Code, w.Body.String())
	}

	w = do(router, http.MethodPost, "/api/console/v1/validate", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"size_ok":true`) {
		t.Errorf("validate: %d %s", w.Code, w.Body.String())
	}

	w = do(router, http.MethodPost, "/api/console/v1/commit", nil, "")
	if w.Code != http.StatusConflict {
		t.Errorf("commit before preview: expected 409, got %d", w.Code)
	}

	w = do(router, http.MethodPost, "/api/console/v1/preview", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("preview: %d %s", w.Code, w.Body.String())
	}
	deadline := time.Now().Add(2 * time.Second)
	for !c.View().CanUpload() {
		if time.Now().After(deadline) {
			t.Fatal("preview never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	w = do(router, http.MethodPost, "/api/console/v1/commit", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("commit: %d %s", w.Code, w.Body.String())
	}
	if snap, _ := decodeSnapshot(t, w); snap.Stage != string(console.StageUploading) || snap.CanUpload {
		t.Errorf("after commit: %+v", snap)
	}

	w = do(router, http.MethodPost, "/api/console/v1/reset", nil, "")
	if w.Code != http.StatusConflict {
		t.Errorf("reset while uploading: expected 409, got %d", w.Code)
	}
}

func TestSelectMultipartRejectsBeforeStoring(t *testing.T) {
	router, _, folder := setupRouter(t, &stubHistory{}, stubStatus{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "notes.txt")
	_, _ = part.Write([]byte("hello"))
	_ = mw.Close()

	w := do(router, http.MethodPost, "/api/console/v1/select", &body, mw.FormDataContentType())
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status code 400, got %d", w.Code)
	}
	entries, _ := os.ReadDir(folder)
	if len(entries) != 0 {
		t.Errorf("rejected file was stored: %d entries", len(entries))
	}
}

func TestLogsEndpoints(t *testing.T) {
	history := &stubHistory{entries: []types.UploadLogEntry{
		{ID: 7, Filename: "a.xlsx", Status: types.UploadCompleted},
		{ID: 2, Filename: "b.xlsx", Status: types.UploadFailed},
	}}
	router, _, _ := setupRouter(t, history, stubStatus{})

	w := do(router, http.MethodGet, "/api/console/v1/logs?limit=10", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"a.xlsx"`) {
		t.Errorf("logs: %d %s", w.Code, w.Body.String())
	}

	w = do(router, http.MethodGet, "/api/console/v1/logs/abc", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", w.Code)
	}
	w = do(router, http.MethodGet, "/api/console/v1/logs/2", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("detail: expected 200, got %d", w.Code)
	}
	w = do(router, http.MethodGet, "/api/console/v1/logs/99", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing: expected 404, got %d", w.Code)
	}

	history.err = errors.New("connection refused")
	w = do(router, http.MethodGet, "/api/console/v1/logs", nil, "")
	if w.Code != http.StatusBadGateway {
		t.Errorf("failing logs: expected 502, got %d", w.Code)
	}
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	if env.Error == "" || !strings.Contains(string(env.Data), "b.xlsx") {
		t.Errorf("failing logs body: %s", w.Body.String())
	}
}

func TestStatsHealthTemplateAndQR(t *testing.T) {
	router, _, _ := setupRouter(t, &stubHistory{}, stubStatus{healthErr: errors.New("dial tcp: refused")})

	w := do(router, http.MethodGet, "/api/console/v1/stats", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total_uploads":3`) {
		t.Errorf("stats: %d %s", w.Code, w.Body.String())
	}

	w = do(router, http.MethodGet, "/api/console/v1/health", nil, "")
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), `"reachable":false`) {
		t.Errorf("health: %d %s", w.Code, w.Body.String())
	}

	w = do(router, http.MethodGet, "/api/console/v1/template", nil, "")
	if w.Code != http.StatusOK || !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Errorf("template: %d, %d bytes", w.Code, w.Body.Len())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, intake.TemplateFileName) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	w = do(router, http.MethodGet, "/api/console/v1/qr?size=128x128", nil, "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("qr: %d %q", w.Code, w.Header().Get("Content-Type"))
	}
}

func TestParseSize(t *testing.T) {
	cases := map[string]int{"": 0, "200": 200, "300x300": 300, "abc": 0, "-5": 0}
	for in, want := range cases {
		if got := parseSize(in); got != want {
			t.Errorf("parseSize(%q) = %d, want %d", in, got, want)
		}
	}
}
