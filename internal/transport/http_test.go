package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arcweave/dispatchd/internal/config"
	"github.com/arcweave/dispatchd/internal/daemon"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	manifestDir := filepath.Join(dir, "manifests")
	if err := os.MkdirAll(manifestDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(manifestDir, "fs.read.json"), []byte(
		`{"name":"fs.read","version":"1.0.0","entry":"native://fs.read"}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := config.Default()
	cfg.RBAC.PoliciesPath = filepath.Join(dir, "policies.json")
	cfg.ManifestDir = manifestDir
	cfg.RBAC.FSAllowlist = []string{dir}

	d, err := daemon.New(cfg, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return NewServer(d, ":0", nil)
}

func TestHandleExecuteRejectsNonPost(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/tools/execute", nil)
	rec := httptest.NewRecorder()
	s.handleExecute(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleExecuteUnknownToolReturnsFailureBody(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{
		"tool":  "does.not.exist",
		"input": map[string]any{},
		"context": map[string]any{
			"reason_trace_id": "t1",
			"tenant_id":       "local:dev",
			"stage":           "dev",
			"risk_level":      0,
			"ts":              time.Now().Format(time.RFC3339),
		},
		"user": "local:dev",
	}
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/tools/execute", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.handleExecute(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp executeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if resp.Success {
		t.Error("expected an unknown tool to fail")
	}
	if !strings.Contains(resp.Error, "unknown tool") {
		t.Errorf("resp.Error = %q, want it to mention unknown tool", resp.Error)
	}
}

func TestHandleExecuteBadBodyReturns400(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/tools/execute", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	s.handleExecute(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestListenAndServeStopsOnContextCancel(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServe returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not return after cancellation")
	}
}
