package contextengine

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/arcweave/dispatchd/pkg/dispatchmodel"
)

func safeCtx(confidence float64) dispatchmodel.ContextFrame {
	c := confidence
	return dispatchmodel.ContextFrame{
		ReasonTraceID:     "rt-1",
		TenantID:          "t-1",
		Stage:             dispatchmodel.StageProd,
		RiskLevel:         dispatchmodel.RiskSafe,
		ContextConfidence: &c,
		Timestamp:         time.Now(),
	}
}

func TestAdjustMetricCapScenario(t *testing.T) {
	e := New(Config{Enabled: true, ChangeCapPct: 10, MinConfidence: 0.6}, nil)
	ctx := safeCtx(0.7)

	if got := e.AdjustMetric("m", 100, ctx); got != 100.0 {
		t.Fatalf("first AdjustMetric = %v, want 100", got)
	}
	if got := e.AdjustMetric("m", 120, ctx); got != 110.0 {
		t.Fatalf("clamped AdjustMetric = %v, want 110", got)
	}

	baseline, ok := e.Rollback("m")
	if !ok || baseline != 100.0 {
		t.Fatalf("Rollback = (%v, %v), want (100, true)", baseline, ok)
	}

	snap := e.Snapshot()["m"]
	if snap.Current != 100.0 || snap.Baseline != 100.0 {
		t.Errorf("snapshot after rollback = %+v, want current=baseline=100", snap)
	}
}

func TestAdjustMetricPassesThroughWhenDisabled(t *testing.T) {
	e := New(Config{Enabled: false, ChangeCapPct: 10, MinConfidence: 0.6}, nil)
	ctx := safeCtx(0.9)

	if got := e.AdjustMetric("m", 42, ctx); got != 42.0 {
		t.Errorf("AdjustMetric = %v, want 42 (pass-through)", got)
	}
	if len(e.Snapshot()) != 0 {
		t.Error("expected no state recorded when autotune is disabled")
	}
}

func TestAdjustMetricRefusedBelowConfidenceFloor(t *testing.T) {
	e := New(Config{Enabled: true, ChangeCapPct: 10, MinConfidence: 0.6}, nil)
	ctx := safeCtx(0.5)

	if got := e.AdjustMetric("m", 42, ctx); got != 42.0 {
		t.Errorf("AdjustMetric = %v, want 42 (pass-through)", got)
	}
	if len(e.Snapshot()) != 0 {
		t.Error("expected no state recorded below the confidence floor")
	}
}

func TestRecordSuccessPromotesBaselineAfterThreshold(t *testing.T) {
	e := New(Config{Enabled: true, ChangeCapPct: 50, MinConfidence: 0.6, PromoteAfter: 2}, nil)
	ctx := safeCtx(0.8)

	e.AdjustMetric("m", 100, ctx)
	e.AdjustMetric("m", 130, ctx)

	e.RecordSuccess("m")
	if snap := e.Snapshot()["m"]; snap.Baseline != 100.0 {
		t.Errorf("baseline = %v, want 100 (should not promote before threshold)", snap.Baseline)
	}

	e.RecordSuccess("m")
	if snap := e.Snapshot()["m"]; snap.Baseline != 130.0 {
		t.Errorf("baseline = %v, want 130 (promotes on the Nth consecutive success)", snap.Baseline)
	}
}

func TestRollbackUnknownKey(t *testing.T) {
	e := New(Config{Enabled: true, ChangeCapPct: 10, MinConfidence: 0.6}, nil)
	if _, ok := e.Rollback("missing"); ok {
		t.Error("Rollback on an unknown key should report ok=false")
	}
}

// TestDayBoundaryResetsStalledStreak simulates the daily cron tick firing
// directly (rather than waiting on real wall-clock time) and checks that it
// both logs the boundary and clears an in-progress promotion streak.
func TestDayBoundaryResetsStalledStreak(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	e := New(Config{Enabled: true, ChangeCapPct: 50, MinConfidence: 0.6, PromoteAfter: 2}, logger)
	ctx := safeCtx(0.8)

	e.AdjustMetric("m", 100, ctx)
	e.RecordSuccess("m")
	if got := e.metrics["m"].ConsecutiveSuccesses; got != 1 {
		t.Fatalf("ConsecutiveSuccesses = %d, want 1 before the boundary fires", got)
	}

	e.dayBoundary()

	if got := e.metrics["m"].ConsecutiveSuccesses; got != 0 {
		t.Errorf("ConsecutiveSuccesses = %d, want 0 after the day boundary resets it", got)
	}
	if !strings.Contains(buf.String(), "context engine day boundary reached") {
		t.Errorf("expected the day boundary to be logged, got: %q", buf.String())
	}
}
