// Package handlers implements the native handler table from §4.4: a
// closed set of built-in operations, each a short function taking raw
// JSON input and a context and returning a ToolResult. Every handler
// that takes a path argument runs it through the path security
// resolver before touching the filesystem.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/arcweave/dispatchd/internal/pathsec"
	"github.com/arcweave/dispatchd/pkg/dispatchmodel"
)

// Handler matches the dispatcher's native handler signature: a short
// function (input, context) -> ToolResult. Handlers return a Go error
// for undecodable input and, in the db.*/embedding.*/completion.* stubs,
// for the missing configuration; the dispatcher wraps it into
// HandlerFailure. Other failures are encoded in the returned
// ToolResult's Error field instead.
type Handler func(input json.RawMessage, ctx dispatchmodel.ContextFrame) (*dispatchmodel.ToolResult, error)

// Table is the closed set of native handlers, keyed by tool_id.
type Table struct {
	resolver    pathsec.Resolver
	allowlist   []string
	httpClient  *http.Client
	execTimeout time.Duration
}

// NewTable builds the native handler table. allowlist is the set of
// host directories fs.read/fs.list may touch.
func NewTable(resolver pathsec.Resolver, allowlist []string) *Table {
	return &Table{
		resolver:    resolver,
		allowlist:   allowlist,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		execTimeout: 30 * time.Second,
	}
}

// Lookup returns the handler bound to tool_id, if any.
func (t *Table) Lookup(toolID string) (Handler, bool) {
	h, ok := t.handlers()[toolID]
	return h, ok
}

func (t *Table) handlers() map[string]Handler {
	return map[string]Handler{
		"fs.read":            t.fsRead,
		"fs.list":            t.fsList,
		"http.request":       t.httpRequest,
		"fetch.url":          t.fetchURL,
		"env.get":            t.envGet,
		"process.execute":    t.processExecute,
		"telemetry.push":     t.telemetryPush,
		"db.query":           stubHandler("Database not configured. Set DATABASE_URL environment variable."),
		"db.execute":         stubHandler("Database not configured. Set DATABASE_URL environment variable."),
		"db.schema":          stubHandler("Database not configured. Set DATABASE_URL environment variable."),
		"embedding.generate": stubHandler("AI tools require OPENAI_API_KEY environment variable."),
		"completion.stream":  stubHandler("AI tools require OPENAI_API_KEY environment variable."),
	}
}

// stubHandler implements the db.*/embedding.*/completion.* family: always
// a configuration-missing error, never executes anything. The message
// names the concrete environment variable the real backend would read
// (DATABASE_URL, OPENAI_API_KEY) instead of a generic placeholder.
func stubHandler(message string) Handler {
	return func(json.RawMessage, dispatchmodel.ContextFrame) (*dispatchmodel.ToolResult, error) {
		return nil, fmt.Errorf("%s", message)
	}
}

type pathInput struct {
	Path string `json:"path"`
}

func (t *Table) fsRead(input json.RawMessage, ctx dispatchmodel.ContextFrame) (*dispatchmodel.ToolResult, error) {
	var in pathInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode fs.read input: %w", err)
	}
	resolved, err := t.resolver.ResolvePath(in.Path, t.allowlist)
	if err != nil {
		return dispatchmodel.Failure(ctx, err.Error()), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return dispatchmodel.Failure(ctx, err.Error()), nil
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return dispatchmodel.Failure(ctx, err.Error()), nil
	}
	return dispatchmodel.Succeed(ctx, map[string]any{
		"content": string(data),
		"path":    resolved,
		"size":    info.Size(),
	})
}

func (t *Table) fsList(input json.RawMessage, ctx dispatchmodel.ContextFrame) (*dispatchmodel.ToolResult, error) {
	var in pathInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("decode fs.list input: %w", err)
		}
	}
	if in.Path == "" {
		in.Path = "."
	}
	resolved, err := t.resolver.ResolvePath(in.Path, t.allowlist)
	if err != nil {
		return dispatchmodel.Failure(ctx, err.Error()), nil
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return dispatchmodel.Failure(ctx, err.Error()), nil
	}
	type entry struct {
		Name  string `json:"name"`
		IsDir bool   `json:"is_dir"`
		Size  int64  `json:"size"`
	}
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, entry{Name: e.Name(), IsDir: e.IsDir(), Size: info.Size()})
	}
	return dispatchmodel.Succeed(ctx, map[string]any{
		"path":    resolved,
		"entries": out,
	})
}

type httpRequestInput struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

func (t *Table) httpRequest(input json.RawMessage, ctx dispatchmodel.ContextFrame) (*dispatchmodel.ToolResult, error) {
	var in httpRequestInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode http.request input: %w", err)
	}
	method := in.Method
	if method == "" {
		method = http.MethodGet
	}
	var bodyReader io.Reader
	if in.Body != "" {
		bodyReader = strings.NewReader(in.Body)
	}
	req, err := http.NewRequest(method, in.URL, bodyReader)
	if err != nil {
		return dispatchmodel.Failure(ctx, err.Error()), nil
	}
	for k, v := range in.Headers {
		req.Header.Set(k, v)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return dispatchmodel.Failure(ctx, err.Error()), nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return dispatchmodel.Failure(ctx, err.Error()), nil
	}
	headers := map[string]string{}
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	if resp.StatusCode >= 400 {
		return dispatchmodel.Failure(ctx, fmt.Sprintf("http status %d", resp.StatusCode)), nil
	}
	return dispatchmodel.Succeed(ctx, map[string]any{
		"status":  resp.StatusCode,
		"headers": headers,
		"body":    string(body),
	})
}

type fetchURLInput struct {
	URL string `json:"url"`
}

func (t *Table) fetchURL(input json.RawMessage, ctx dispatchmodel.ContextFrame) (*dispatchmodel.ToolResult, error) {
	var in fetchURLInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode fetch.url input: %w", err)
	}
	resp, err := t.httpClient.Get(in.URL)
	if err != nil {
		return dispatchmodel.Failure(ctx, err.Error()), nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return dispatchmodel.Failure(ctx, err.Error()), nil
	}
	if resp.StatusCode >= 400 {
		return dispatchmodel.Failure(ctx, fmt.Sprintf("http status %d", resp.StatusCode)), nil
	}
	return dispatchmodel.Succeed(ctx, map[string]any{
		"body":   string(body),
		"length": len(body),
	})
}

type envGetInput struct {
	Key string `json:"key"`
}

func (t *Table) envGet(input json.RawMessage, ctx dispatchmodel.ContextFrame) (*dispatchmodel.ToolResult, error) {
	var in envGetInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode env.get input: %w", err)
	}
	value, ok := os.LookupEnv(in.Key)
	if !ok {
		return dispatchmodel.Failure(ctx, "NotFound"), nil
	}
	return dispatchmodel.Succeed(ctx, map[string]any{"key": in.Key, "value": value})
}

type processExecuteInput struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

func (t *Table) processExecute(input json.RawMessage, ctx dispatchmodel.ContextFrame) (*dispatchmodel.ToolResult, error) {
	var in processExecuteInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode process.execute input: %w", err)
	}
	execCtx, cancel := context.WithTimeout(context.Background(), t.execTimeout)
	defer cancel()
	cmd := exec.CommandContext(execCtx, in.Command, in.Args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return dispatchmodel.Failure(ctx, runErr.Error()), nil
		}
	}
	return dispatchmodel.Succeed(ctx, map[string]any{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	})
}

func (t *Table) telemetryPush(_ json.RawMessage, ctx dispatchmodel.ContextFrame) (*dispatchmodel.ToolResult, error) {
	return dispatchmodel.Succeed(ctx, map[string]any{
		"pushed":    true,
		"timestamp": time.Now().UTC(),
	})
}
