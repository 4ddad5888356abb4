package handlers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arcweave/dispatchd/internal/pathsec"
	"github.com/arcweave/dispatchd/pkg/dispatchmodel"
)

func testCtx() dispatchmodel.ContextFrame {
	return dispatchmodel.ContextFrame{
		ReasonTraceID: "trace-1",
		TenantID:      "tenant-1",
		Stage:         dispatchmodel.StageDev,
		RiskLevel:     dispatchmodel.RiskSafe,
		Timestamp:     time.Now(),
	}
}

func TestFSReadReturnsContentAndSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	if err := os.WriteFile(path, []byte("hi"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	table := NewTable(pathsec.Resolver{}, []string{dir})
	input, _ := json.Marshal(map[string]string{"path": path})
	result, err := table.fsRead(input, testCtx())
	if err != nil {
		t.Fatalf("fsRead: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}

	var out map[string]any
	if err := json.Unmarshal(result.Output, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["content"] != "hi" {
		t.Errorf("content = %v, want %q", out["content"], "hi")
	}
	if out["size"] != float64(2) {
		t.Errorf("size = %v, want 2", out["size"])
	}
}

func TestFSReadRejectsPathOutsideAllowlist(t *testing.T) {
	allowed := t.TempDir()
	outside := t.TempDir()
	path := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	table := NewTable(pathsec.Resolver{}, []string{allowed})
	input, _ := json.Marshal(map[string]string{"path": path})
	result, err := table.fsRead(input, testCtx())
	if err != nil {
		t.Fatalf("fsRead: %v", err)
	}
	if result.Success {
		t.Error("expected fs.read outside the allowlist to fail")
	}
}

func TestFSListDefaultsToCurrentDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	table := NewTable(pathsec.Resolver{Base: dir}, []string{dir})
	input := json.RawMessage(`{}`)
	result, err := table.fsList(input, testCtx())
	if err != nil {
		t.Fatalf("fsList: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}

	var out map[string]any
	if err := json.Unmarshal(result.Output, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	entries, ok := out["entries"].([]any)
	if !ok || len(entries) != 2 {
		t.Errorf("entries = %v, want 2 entries", out["entries"])
	}
}

func TestEnvGetReturnsNotFoundForMissingKey(t *testing.T) {
	table := NewTable(pathsec.Resolver{}, nil)
	input, _ := json.Marshal(map[string]string{"key": "DISPATCHD_DOES_NOT_EXIST"})
	result, err := table.envGet(input, testCtx())
	if err != nil {
		t.Fatalf("envGet: %v", err)
	}
	if result.Success {
		t.Error("expected a missing key to fail")
	}
	if result.Error != "NotFound" {
		t.Errorf("result.Error = %q, want NotFound", result.Error)
	}
}

func TestEnvGetReturnsValue(t *testing.T) {
	t.Setenv("DISPATCHD_TEST_KEY", "value-1")
	table := NewTable(pathsec.Resolver{}, nil)
	input, _ := json.Marshal(map[string]string{"key": "DISPATCHD_TEST_KEY"})
	result, err := table.envGet(input, testCtx())
	if err != nil {
		t.Fatalf("envGet: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}

	var out map[string]any
	if err := json.Unmarshal(result.Output, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["value"] != "value-1" {
		t.Errorf("value = %v, want value-1", out["value"])
	}
}

func TestProcessExecuteCapturesOutputAndExitCode(t *testing.T) {
	table := NewTable(pathsec.Resolver{}, nil)
	input, _ := json.Marshal(map[string]any{"command": "true", "args": []string{}})
	result, err := table.processExecute(input, testCtx())
	if err != nil {
		t.Fatalf("processExecute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}

	var out map[string]any
	if err := json.Unmarshal(result.Output, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["exit_code"] != float64(0) {
		t.Errorf("exit_code = %v, want 0", out["exit_code"])
	}
}

// TestStubHandlersNeverExecute covers the whole db.*/embedding.*/completion.*
// family and checks each returns the env-var-specific configuration error
// rather than running anything.
func TestStubHandlersNeverExecute(t *testing.T) {
	table := NewTable(pathsec.Resolver{}, nil)
	cases := []struct {
		name    string
		wantErr string
	}{
		{"db.query", "DATABASE_URL"},
		{"db.execute", "DATABASE_URL"},
		{"db.schema", "DATABASE_URL"},
		{"embedding.generate", "OPENAI_API_KEY"},
		{"completion.stream", "OPENAI_API_KEY"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, ok := table.Lookup(tc.name)
			if !ok {
				t.Fatalf("expected %s to be registered", tc.name)
			}
			_, err := h(json.RawMessage(`{}`), testCtx())
			if err == nil {
				t.Fatal("expected a configuration-missing error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %q, want it to mention %s", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestTelemetryPushAlwaysSucceeds(t *testing.T) {
	table := NewTable(pathsec.Resolver{}, nil)
	result, err := table.telemetryPush(json.RawMessage(`{"event":"x"}`), testCtx())
	if err != nil {
		t.Fatalf("telemetryPush: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}

	var out map[string]any
	if err := json.Unmarshal(result.Output, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["pushed"] != true {
		t.Errorf("pushed = %v, want true", out["pushed"])
	}
}
