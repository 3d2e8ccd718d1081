package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/moyoez/excel-console/console"
	"github.com/moyoez/excel-console/types"
)

type nopBackend struct{}

func (nopBackend) Preview(context.Context, types.SelectedFile) (*types.PreviewResult, error) {
	return &types.PreviewResult{}, nil
}

func (nopBackend) Upload(context.Context, types.SelectedFile, func(int)) (*types.UploadOutcome, error) {
	return &types.UploadOutcome{}, nil
}

func (nopBackend) BaseURL() string { return "http://127.0.0.1:8000" }

func (nopBackend) Stats(context.Context) (*types.UploadStats, error) { return &types.UploadStats{}, nil }

func (nopBackend) Health(context.Context) error { return nil }

func (nopBackend) ValidateFile(context.Context, types.SelectedFile) (*types.ValidationResponse, error) {
	return &types.ValidationResponse{SizeOK: true}, nil
}

func (nopBackend) ListSheets(context.Context) (*types.SheetsResponse, error) {
	return &types.SheetsResponse{}, nil
}

type nopHistory struct{}

func (nopHistory) List(context.Context, int) ([]types.UploadLogEntry, error) { return nil, nil }

func (nopHistory) Get(context.Context, int64) (*types.UploadLogEntry, error) {
	return &types.UploadLogEntry{}, nil
}

func (nopHistory) Last() []types.UploadLogEntry { return nil }

type nopChannel struct{}

func (nopChannel) Open(context.Context) error { return nil }

func (nopChannel) Close() error { return nil }

type stateFrame struct {
	Type string `json:"type"`
	Data struct {
		Stage string `json:"stage"`
		File  *struct {
			Name string `json:"name"`
		} `json:"file"`
	} `json:"data"`
}

func TestNotifyWSRelaysConsoleState(t *testing.T) {
	c := console.New(nopBackend{}, nopHistory{}, console.Options{
		NewChannel: func(func(types.PushMessage), func(error)) console.PushChannel { return nopChannel{} },
	})
	defer c.Close()

	s := NewServer(0, Deps{Console: c, History: nopHistory{}, Backend: nopBackend{}, UploadFolder: t.TempDir()})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	go s.relay()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/console/v1/notify-ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() stateFrame {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var frame stateFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		return frame
	}

	first := read()
	if first.Type != types.ConsoleEventState || first.Data.Stage != string(console.StageIdle) {
		t.Fatalf("initial frame = %+v", first)
	}

	path := filepath.Join(t.TempDir(), "users.xlsx")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Select(path); err != nil {
		t.Fatal(err)
	}
	for {
		frame := read()
		if frame.Data.File != nil && frame.Data.File.Name == "users.xlsx" {
			break
		}
	}
}

func TestConsoleRoutesAreLocalOnly(t *testing.T) {
	c := console.New(nopBackend{}, nopHistory{}, console.Options{
		NewChannel: func(func(types.PushMessage), func(error)) console.PushChannel { return nopChannel{} },
	})
	defer c.Close()
	s := NewServer(0, Deps{Console: c, History: nopHistory{}, Backend: nopBackend{}})

	req := httptest.NewRequest(http.MethodGet, "/api/console/v1/state", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status code 403, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/console/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS headers missing on preflight")
	}
}
