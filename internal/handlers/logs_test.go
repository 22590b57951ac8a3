package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/webtermd/webterm/internal/config"
)

func setupLogFile(t *testing.T, lines []string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "webterm.log")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	prev := config.Cfg.LogPath
	config.Cfg.LogPath = path
	t.Cleanup(func() { config.Cfg.LogPath = prev })
}

func TestLogsTail(t *testing.T) {
	setupGate(t, "")
	setupLogFile(t, []string{"first", "second", "third"})

	req := httptest.NewRequest(http.MethodGet, "/api/logs?lines=2", nil)
	rec := httptest.NewRecorder()
	Logs(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Logs string `json:"logs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Logs != "second\nthird" {
		t.Errorf("logs = %q, want last two lines", body.Logs)
	}
}

func TestLogsRequiresCredential(t *testing.T) {
	setupGate(t, "123456")
	setupLogFile(t, []string{"secret"})

	req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
	rec := httptest.NewRecorder()
	Logs(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without credential = %d, want 401", rec.Code)
	}
}

func TestLogsRejectsBadLinesParam(t *testing.T) {
	setupGate(t, "")
	setupLogFile(t, []string{"line"})

	req := httptest.NewRequest(http.MethodGet, "/api/logs?lines=zero", nil)
	rec := httptest.NewRecorder()
	Logs(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestClearLogs(t *testing.T) {
	setupGate(t, "")
	setupLogFile(t, []string{"old entry"})

	req := httptest.NewRequest(http.MethodDelete, "/api/logs", nil)
	rec := httptest.NewRecorder()
	ClearLogs(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data, err := os.ReadFile(config.Cfg.LogPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("log file not truncated: %q", data)
	}
}
