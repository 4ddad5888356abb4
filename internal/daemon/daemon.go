// Package daemon wires together the Tool Dispatcher, Path Security
// Resolver, Sandbox Driver, Context Engine, Event Bus, and Policy/RBAC
// store into the single running process described by spec.md §2's
// request-flow diagram, and exposes the one operation every transport
// ultimately calls: ExecuteTool.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arcweave/dispatchd/internal/config"
	"github.com/arcweave/dispatchd/internal/contextengine"
	"github.com/arcweave/dispatchd/internal/dispatch"
	"github.com/arcweave/dispatchd/internal/eventbus"
	"github.com/arcweave/dispatchd/internal/handlers"
	"github.com/arcweave/dispatchd/internal/manifest"
	"github.com/arcweave/dispatchd/internal/pathsec"
	"github.com/arcweave/dispatchd/internal/rbac"
	"github.com/arcweave/dispatchd/internal/sandbox"
	"github.com/arcweave/dispatchd/internal/subprocess"
	"github.com/arcweave/dispatchd/pkg/dispatchmodel"
)

// Daemon owns every process-singleton collaborator and is the daemon's
// single entry point for dispatching a tool invocation.
type Daemon struct {
	cfg    config.Config
	logger *slog.Logger

	Policies    *rbac.Store
	Manifests   *manifest.Registry
	Dispatcher  *dispatch.Dispatcher
	ContextEng  *contextengine.Engine
	Events      *eventbus.Bus
	Connections *Connections

	stopWatchers []context.CancelFunc
}

// New loads the policy store and manifest registry from cfg and wires
// every dispatch-path collaborator. It does not start background
// watchers or block; call Run for that.
func New(cfg config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	policies, err := rbac.Load(cfg.RBAC.PoliciesPath)
	if err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}

	manifests, err := manifest.LoadDir(cfg.ManifestDir)
	if err != nil {
		return nil, fmt.Errorf("load manifests: %w", err)
	}

	allowlist := cfg.RBAC.FSAllowlist
	if len(allowlist) == 0 {
		allowlist = policies.Policies().FSAllowlist
	}

	resolver := pathsec.Resolver{}
	handlerTable := handlers.NewTable(resolver, allowlist)

	sandboxTimeout := time.Duration(cfg.Sandbox.TimeoutMS) * time.Millisecond
	sandboxDrv := sandbox.New(sandbox.Config{RuntimeBinary: cfg.Sandbox.RuntimeBinary, Timeout: sandboxTimeout}, logger)

	var subprocDrv *subprocess.Driver
	if cfg.Sandbox.ScriptPath != "" {
		subprocDrv = subprocess.New(cfg.Sandbox.ScriptPath)
	}

	dispatcher := dispatch.New(manifests, resolver, allowlist, sandboxDrv, subprocDrv, handlerTable, logger)

	engine := contextengine.New(contextengine.Config{
		Enabled:       cfg.ContextEngine.Enabled,
		ChangeCapPct:  cfg.ContextEngine.ChangeCapPctPerDay,
		MinConfidence: cfg.ContextEngine.MinConfidence,
	}, logger)

	bus := eventbus.New(eventbus.Config{
		BatchSize: cfg.Performance.BatchSize,
		Capacity:  cfg.Performance.MaxInflight,
		Watermark: cfg.Performance.QueueWatermark,
	}, logger)

	return &Daemon{
		cfg:         cfg,
		logger:      logger,
		Policies:    policies,
		Manifests:   manifests,
		Dispatcher:  dispatcher,
		ContextEng:  engine,
		Events:      bus,
		Connections: NewConnections(),
	}, nil
}

// Run starts the manifest/policy hot-reload watchers and blocks until
// ctx is canceled, then stops them and the context engine's scheduler.
func (d *Daemon) Run(ctx context.Context) error {
	if cancel, err := manifest.Watch(ctx, d.cfg.ManifestDir, d.Manifests, d.logger); err == nil {
		d.stopWatchers = append(d.stopWatchers, cancel)
	} else {
		d.logger.Warn("manifest watch disabled", "error", err, "dir", d.cfg.ManifestDir)
	}
	if cancel, err := d.Policies.Watch(ctx, d.logger); err == nil {
		d.stopWatchers = append(d.stopWatchers, cancel)
	} else {
		d.logger.Warn("policy watch disabled", "error", err, "path", d.cfg.RBAC.PoliciesPath)
	}

	<-ctx.Done()
	d.Stop()
	return nil
}

// Stop cancels every running watcher and the context engine's cron
// scheduler. Safe to call more than once.
func (d *Daemon) Stop() {
	for _, cancel := range d.stopWatchers {
		cancel()
	}
	d.stopWatchers = nil
	d.ContextEng.Stop()
}

// ExecuteTool is the RBAC-gated entry point from spec.md §2's overview
// diagram ("Policy Store — consulted before dispatch"): it checks
// is_tool_allowed(user, tool) before ever reaching the dispatcher, then
// publishes an audit event recording the outcome. user identifies the
// caller for RBAC purposes; transports that have no richer identity
// model may pass frame.TenantID.
func (d *Daemon) ExecuteTool(ctx context.Context, user, toolID string, input json.RawMessage, frame dispatchmodel.ContextFrame) *dispatchmodel.ToolResult {
	if !d.Policies.IsToolAllowed(user, toolID) {
		err := fmt.Errorf("%w: %s may not invoke %s", dispatch.ErrPolicyDenied, user, toolID)
		result := dispatchmodel.Failure(frame, err.Error())
		d.publishAudit(frame, toolID, user, result)
		return result
	}

	result := d.Dispatcher.Dispatch(ctx, toolID, input, frame)
	d.publishAudit(frame, toolID, user, result)
	return result
}

func (d *Daemon) publishAudit(frame dispatchmodel.ContextFrame, toolID, user string, result *dispatchmodel.ToolResult) {
	data, err := eventbus.MarshalEventData(map[string]any{
		"tool":              toolID,
		"user":              user,
		"success":           result.Success,
		"execution_time_ms": result.ExecutionTimeMS,
	})
	if err != nil {
		d.logger.Warn("failed to marshal audit event data", "error", err)
		return
	}
	_, err = d.Events.Publish(dispatchmodel.Event{
		StreamID:  frame.TenantID,
		EventType: "tool.dispatch",
		Data:      data,
		Metadata:  dispatchmodel.EventMetadata{CorrelationID: frame.ReasonTraceID + ":" + toolID + ":" + uuid.NewString()},
		Context:   frame,
	})
	if err != nil {
		d.logger.Warn("failed to publish audit event", "error", err, "tool", toolID)
	}
}
