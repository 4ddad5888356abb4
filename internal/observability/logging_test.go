package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNewLoggerDefaults(t *testing.T) {
	logger := NewLogger(LogConfig{})
	if logger == nil || logger.logger == nil {
		t.Fatal("NewLogger() returned a logger with a nil slog logger")
	}
}

func TestLoggerRedactsSecretsInArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})
	logger.Info(context.Background(), "env.get result", "value", "api_key=sk-ant-REDACTED")
	if strings.Contains(buf.String(), "abcdefghijklmnop") {
		t.Errorf("expected secret to be redacted, got: %s", buf.String())
	}
}

func TestLoggerContextCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})
	ctx := AddRequestID(context.Background(), "req-1")
	ctx = AddToolID(ctx, "fs.read")
	logger.Info(ctx, "dispatching")
	out := buf.String()
	if !strings.Contains(out, "req-1") || !strings.Contains(out, "fs.read") {
		t.Errorf("expected request_id and tool_id in log line, got: %s", out)
	}
}

func TestWithFieldsAttachesToSubsequentRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf}).WithFields("component", "dispatch")
	logger.Info(context.Background(), "ready")
	if !strings.Contains(buf.String(), `"component":"dispatch"`) {
		t.Errorf("expected component field, got: %s", buf.String())
	}
}
