// Package dispatch implements the Tool Dispatcher from §4.1: given a
// tool id, raw JSON input, and a ContextFrame, it produces a
// ToolResult within a single logical invocation, routing by manifest
// entry scheme to the sandbox, a native handler, or the subprocess
// driver, with the wildcard fs.read/fs.list aggregation handled ahead
// of any of those.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/arcweave/dispatchd/internal/handlers"
	"github.com/arcweave/dispatchd/internal/manifest"
	"github.com/arcweave/dispatchd/internal/pathsec"
	"github.com/arcweave/dispatchd/internal/sandbox"
	"github.com/arcweave/dispatchd/internal/subprocess"
	"github.com/arcweave/dispatchd/pkg/dispatchmodel"
)

// Dispatcher routes a tool invocation to its resolved handler.
type Dispatcher struct {
	manifests  *manifest.Registry
	resolver   pathsec.Resolver
	allowlist  []string
	sandboxDrv *sandbox.Driver
	subprocDrv *subprocess.Driver
	handlers   *handlers.Table
	logger     *slog.Logger
}

// New builds a Dispatcher wired to its collaborators.
func New(manifests *manifest.Registry, resolver pathsec.Resolver, allowlist []string, sandboxDrv *sandbox.Driver, subprocDrv *subprocess.Driver, handlerTable *handlers.Table, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		manifests:  manifests,
		resolver:   resolver,
		allowlist:  allowlist,
		sandboxDrv: sandboxDrv,
		subprocDrv: subprocDrv,
		handlers:   handlerTable,
		logger:     logger,
	}
}

var fsFamilyMutating = map[string]bool{
	"fs.write":  true,
	"fs.delete": true,
}

// Dispatch is the state machine from §4.1: Received → Validated →
// Resolved → Dispatched → Completed. It always returns a non-nil
// ToolResult; every failure is reported through result.Success and
// result.Error.
func (d *Dispatcher) Dispatch(ctx context.Context, toolID string, input json.RawMessage, frame dispatchmodel.ContextFrame) *dispatchmodel.ToolResult {
	start := time.Now()
	result := d.dispatch(ctx, toolID, input, frame)
	result.ExecutionTimeMS = uint64(time.Since(start).Milliseconds())
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, toolID string, input json.RawMessage, frame dispatchmodel.ContextFrame) *dispatchmodel.ToolResult {
	// Received → Validated
	if err := frame.Validate(); err != nil {
		return dispatchmodel.Failure(frame, fmt.Errorf("%w: %v", ErrInvalidContext, err).Error())
	}

	// Validated → Resolved (manifest lookup)
	m, ok := d.manifests.Lookup(toolID)
	if !ok {
		return dispatchmodel.Failure(frame, fmt.Errorf("%w: %s", ErrUnknownTool, toolID).Error())
	}

	if frame.Flags != nil && frame.Flags.ReadOnly && fsFamilyMutating[toolID] {
		return dispatchmodel.Failure(frame, fmt.Errorf("%w", ErrReadOnlyViolation).Error())
	}

	scheme, token := m.Scheme()
	switch scheme {
	case dispatchmodel.EntryWasm:
		return d.dispatchWasm(ctx, toolID, token, input, frame)
	case dispatchmodel.EntryNative:
		return d.dispatchNative(ctx, toolID, token, input, frame)
	default:
		return d.dispatchBuiltin(toolID, input, frame)
	}
}

func (d *Dispatcher) dispatchWasm(ctx context.Context, toolID, modulePath string, input json.RawMessage, frame dispatchmodel.ContextFrame) *dispatchmodel.ToolResult {
	if isFSFamily(toolID) {
		path, hasPath := extractPath(input)
		if hasPath {
			if pathsec.IsWildcard(path) {
				return d.aggregateWildcard(toolID, path, frame)
			}
			resolved, err := d.resolver.ResolvePath(path, d.allowlist)
			if err != nil {
				return dispatchmodel.Failure(frame, err.Error())
			}
			rewritten, err := rewritePath(input, resolved)
			if err != nil {
				return dispatchmodel.Failure(frame, err.Error())
			}
			input = rewritten
		}
	}

	if d.sandboxDrv == nil {
		return dispatchmodel.Failure(frame, fmt.Errorf("%w", ErrSandboxUnavailable).Error())
	}
	out, err := d.sandboxDrv.Exec(ctx, modulePath, input, d.allowlist)
	if err != nil {
		if errors.Is(err, sandbox.ErrSandboxUnavailable) {
			return dispatchmodel.Failure(frame, fmt.Errorf("%w", ErrSandboxUnavailable).Error())
		}
		return dispatchmodel.Failure(frame, fmt.Errorf("%w: %v", ErrSandboxError, err).Error())
	}
	return succeed(frame, json.RawMessage(out))
}

func (d *Dispatcher) dispatchNative(ctx context.Context, toolID, token string, input json.RawMessage, frame dispatchmodel.ContextFrame) *dispatchmodel.ToolResult {
	if toolID == "session.compress" {
		if d.subprocDrv == nil {
			return dispatchmodel.Failure(frame, fmt.Errorf("%w: session.compress subprocess not configured", ErrHandlerFailure).Error())
		}
		contextEcho, err := json.Marshal(frame)
		if err != nil {
			return dispatchmodel.Failure(frame, err.Error())
		}
		reply, err := d.subprocDrv.Compress(ctx, input, contextEcho)
		if err != nil {
			return dispatchmodel.Failure(frame, fmt.Errorf("%w: %v", ErrHandlerFailure, err).Error())
		}
		return succeed(frame, reply)
	}
	return d.invokeHandler(token, input, frame)
}

func (d *Dispatcher) dispatchBuiltin(toolID string, input json.RawMessage, frame dispatchmodel.ContextFrame) *dispatchmodel.ToolResult {
	if isFSFamily(toolID) {
		if path, hasPath := extractPath(input); hasPath && pathsec.IsWildcard(path) {
			return d.aggregateWildcard(toolID, path, frame)
		}
	}
	if _, ok := d.handlers.Lookup(toolID); !ok {
		return dispatchmodel.Failure(frame, fmt.Errorf("%w: %s", ErrNotImplemented, toolID).Error())
	}
	return d.invokeHandler(toolID, input, frame)
}

// invokeHandler calls the native handler table, recovering any panic
// so a buggy handler can never crash the dispatcher.
func (d *Dispatcher) invokeHandler(key string, input json.RawMessage, frame dispatchmodel.ContextFrame) (result *dispatchmodel.ToolResult) {
	handler, ok := d.handlers.Lookup(key)
	if !ok {
		return dispatchmodel.Failure(frame, fmt.Errorf("%w: %s", ErrNotImplemented, key).Error())
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic recovered", "handler", key, "panic", r)
			result = dispatchmodel.Failure(frame, fmt.Errorf("%w: %v", ErrHandlerFailure, r).Error())
		}
	}()
	res, err := handler(input, frame)
	if err != nil {
		return dispatchmodel.Failure(frame, fmt.Errorf("%w: %v", ErrHandlerFailure, err).Error())
	}
	return res
}

// succeed collapses dispatchmodel.Succeed's (result, error) pair into a
// single ToolResult: a marshal failure becomes an ordinary failed
// result rather than a second error-handling path for every call site.
func succeed(frame dispatchmodel.ContextFrame, output any) *dispatchmodel.ToolResult {
	result, err := dispatchmodel.Succeed(frame, output)
	if err != nil {
		return dispatchmodel.Failure(frame, err.Error())
	}
	return result
}

func isFSFamily(toolID string) bool {
	return strings.HasPrefix(toolID, "fs.")
}

func extractPath(input json.RawMessage) (string, bool) {
	if len(input) == 0 {
		return "", false
	}
	var fields struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &fields); err != nil {
		return "", false
	}
	return fields.Path, fields.Path != ""
}

func rewritePath(input json.RawMessage, resolved string) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if len(input) > 0 {
		if err := json.Unmarshal(input, &fields); err != nil {
			return nil, err
		}
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	raw, err := json.Marshal(resolved)
	if err != nil {
		return nil, err
	}
	fields["path"] = raw
	return json.Marshal(fields)
}

type fsReadEntry struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Size    int64  `json:"size"`
}

type fsListEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// aggregateWildcard implements the fs.read/fs.list wildcard aggregation
// rule: bypass the sandbox entirely, expand via the allowlist-enforced
// globber, and shape a family-specific aggregate result.
func (d *Dispatcher) aggregateWildcard(toolID, pattern string, frame dispatchmodel.ContextFrame) *dispatchmodel.ToolResult {
	matches, err := d.resolver.ExpandWildcardPath(pattern, d.allowlist)
	if err != nil {
		return dispatchmodel.Failure(frame, fmt.Errorf("%w: %v", ErrNoMatch, err).Error())
	}

	switch toolID {
	case "fs.read":
		files := make([]fsReadEntry, 0, len(matches))
		for _, m := range matches {
			data, err := os.ReadFile(m)
			if err != nil {
				return dispatchmodel.Failure(frame, err.Error())
			}
			info, err := os.Stat(m)
			if err != nil {
				return dispatchmodel.Failure(frame, err.Error())
			}
			files = append(files, fsReadEntry{
				Path:    m,
				Name:    info.Name(),
				Content: string(data),
				Size:    info.Size(),
			})
		}
		return succeed(frame, map[string]any{
			"pattern":       pattern,
			"matched_count": len(files),
			"files":         files,
		})
	case "fs.list":
		entries := make([]fsListEntry, 0, len(matches))
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return dispatchmodel.Failure(frame, err.Error())
			}
			entries = append(entries, fsListEntry{
				Name:  info.Name(),
				Path:  m,
				IsDir: info.IsDir(),
				Size:  info.Size(),
			})
		}
		return succeed(frame, map[string]any{
			"pattern":       pattern,
			"matched_count": len(entries),
			"entries":       entries,
		})
	default:
		return dispatchmodel.Failure(frame, fmt.Errorf("%w: wildcard expansion not supported for %s", ErrNotImplemented, toolID).Error())
	}
}
