// Package contextengine implements adaptive per-key parameter tuning:
// clamped daily adjustments around a promotable baseline, gated by a
// request's ContextFrame.
package contextengine

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/arcweave/dispatchd/pkg/dispatchmodel"
)

// Config controls autotune eligibility and clamp width.
type Config struct {
	Enabled bool
	// ChangeCapPct is the maximum percent a metric may move from its
	// baseline in a single adjustment window (0-100).
	ChangeCapPct float64
	// MinConfidence is the context_confidence floor below which
	// adjustments are refused even when risk is safe.
	MinConfidence float64
	// PromoteAfter is the number of consecutive record_success calls
	// required before a baseline promotes. Defaults to 2.
	PromoteAfter int
}

func (c Config) promoteAfter() int {
	if c.PromoteAfter <= 0 {
		return 2
	}
	return c.PromoteAfter
}

// Engine owns per-key MetricState behind a single writer lock, matching
// the lazy-bucket pattern used elsewhere in this codebase for per-key
// state (see internal/ratelimit style in the teacher corpus).
type Engine struct {
	mu      sync.RWMutex
	cfg     Config
	metrics map[string]*dispatchmodel.MetricState
	logger  *slog.Logger

	cronEntry cron.EntryID
	scheduler *cron.Cron
}

// New creates an Engine. If cfg.Enabled, a daily cron job (at midnight)
// is scheduled to close out the current per-day change-cap window: it
// logs the boundary and resets every tracked key's consecutive-success
// streak, since a streak toward promotion that hasn't closed out within
// a day shouldn't carry into the next one. The clamp itself is enforced
// against the current baseline rather than elapsed time, so a missed
// tick never breaks AdjustMetric's correctness — it only delays when a
// stalled streak gets cleared.
func New(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:     cfg,
		metrics: make(map[string]*dispatchmodel.MetricState),
		logger:  logger,
	}
	if cfg.Enabled {
		e.scheduler = cron.New()
		id, err := e.scheduler.AddFunc("0 0 * * *", e.dayBoundary)
		if err == nil {
			e.cronEntry = id
			e.scheduler.Start()
		}
	}
	return e
}

// dayBoundary closes out the current per-day change-cap window: it
// resets every tracked key's consecutive-success counter back to zero,
// so a promotion streak that stalled mid-day doesn't silently carry
// across the boundary into tomorrow's window.
func (e *Engine) dayBoundary() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key, state := range e.metrics {
		state.ConsecutiveSuccesses = 0
		e.logger.Info("context engine day boundary reached", "key", key, "baseline", state.Baseline)
	}
}

// Stop releases the engine's background scheduler, if any.
func (e *Engine) Stop() {
	if e.scheduler != nil {
		e.scheduler.Stop()
	}
}

// CanAutotune mirrors ContextFrame.CanAutotune but also requires the
// engine itself to be enabled and the confidence floor configured here
// to be met (the frame's own 0.6 floor is a hard minimum; a stricter
// engine-level floor can raise it further).
func (e *Engine) CanAutotune(ctx dispatchmodel.ContextFrame) bool {
	if !e.cfg.Enabled {
		return false
	}
	if !ctx.CanAutotune() {
		return false
	}
	if e.cfg.MinConfidence > 0 {
		if ctx.ContextConfidence == nil || *ctx.ContextConfidence < e.cfg.MinConfidence {
			return false
		}
	}
	return true
}

// AdjustMetric clamps observed to [baseline-delta, baseline+delta] when
// autotune is permitted, persisting the clamped value as current. When
// not permitted, observed passes through unchanged and no state is
// recorded.
func (e *Engine) AdjustMetric(key string, observed float64, ctx dispatchmodel.ContextFrame) float64 {
	if !e.CanAutotune(ctx) {
		return observed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.metrics[key]
	if !ok {
		state = &dispatchmodel.MetricState{
			Current:  observed,
			Baseline: observed,
		}
		state.LastUpdate = time.Now()
		e.metrics[key] = state
		return state.Current
	}

	delta := state.Baseline * (e.cfg.ChangeCapPct / 100)
	clamped := math.Min(state.Baseline+delta, math.Max(state.Baseline-delta, observed))
	state.Current = clamped
	state.LastUpdate = time.Now()
	return state.Current
}

// RecordSuccess increments the key's consecutive-success counter and
// promotes current to baseline once the configured threshold is hit.
func (e *Engine) RecordSuccess(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.metrics[key]
	if !ok {
		return
	}
	state.ConsecutiveSuccesses++
	if state.ConsecutiveSuccesses >= e.cfg.promoteAfter() {
		state.Baseline = state.Current
		state.ConsecutiveSuccesses = 0
	}
}

// Rollback resets current to baseline and clears the success counter,
// returning the baseline or false if the key is unknown.
func (e *Engine) Rollback(key string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.metrics[key]
	if !ok {
		return 0, false
	}
	state.Current = state.Baseline
	state.ConsecutiveSuccesses = 0
	return state.Baseline, true
}

// Snapshot returns a (current, baseline) pair per key.
type Snapshot struct {
	Current  float64
	Baseline float64
}

// Snapshot returns a point-in-time copy of every tracked key's state.
func (e *Engine) Snapshot() map[string]Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]Snapshot, len(e.metrics))
	for k, v := range e.metrics {
		out[k] = Snapshot{Current: v.Current, Baseline: v.Baseline}
	}
	return out
}
