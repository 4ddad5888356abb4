// Package dispatchmodel defines the wire-level data model shared by every
// component of the dispatch daemon: context frames, tool manifests,
// results, events, and policies. Types here are pure data; behavior that
// needs locking or I/O lives in the internal packages that consume them.
package dispatchmodel

import (
	"fmt"
	"strings"
	"time"
)

// Stage is the deployment stage a request originates from.
type Stage string

const (
	StageDev     Stage = "dev"
	StageStaging Stage = "staging"
	StageProd    Stage = "prod"
)

func (s Stage) valid() bool {
	switch s {
	case StageDev, StageStaging, StageProd:
		return true
	default:
		return false
	}
}

// RiskLevel classifies how risky a request is considered.
type RiskLevel int

const (
	RiskSafe    RiskLevel = 0
	RiskCaution RiskLevel = 1
	RiskBlock   RiskLevel = 2
)

func (r RiskLevel) valid() bool {
	return r == RiskSafe || r == RiskCaution || r == RiskBlock
}

// Flags carries optional per-request toggles.
type Flags struct {
	AllowAutotune bool `json:"allow_autotune,omitempty"`
	ReadOnly      bool `json:"read_only,omitempty"`
}

// ContextFrame is the mandatory causal/permission envelope threaded
// through every mutating operation in the daemon.
type ContextFrame struct {
	ReasonTraceID      string             `json:"reason_trace_id"`
	TenantID           string             `json:"tenant_id"`
	Stage              Stage              `json:"stage"`
	RiskLevel          RiskLevel          `json:"risk_level"`
	NoveltyScore       *float64           `json:"novelty_score,omitempty"`
	ContextConfidence  *float64           `json:"context_confidence,omitempty"`
	Budgets            map[string]float64 `json:"budgets,omitempty"`
	Flags              *Flags             `json:"flags,omitempty"`
	Timestamp          time.Time          `json:"ts"`
}

// Validate checks every ContextFrame invariant from the specification.
// It returns the first violation found.
func (c ContextFrame) Validate() error {
	if strings.TrimSpace(c.ReasonTraceID) == "" {
		return fmt.Errorf("reason_trace_id must be non-empty")
	}
	if strings.TrimSpace(c.TenantID) == "" {
		return fmt.Errorf("tenant_id must be non-empty")
	}
	if !c.Stage.valid() {
		return fmt.Errorf("stage %q is not one of dev, staging, prod", c.Stage)
	}
	if !c.RiskLevel.valid() {
		return fmt.Errorf("risk_level %d is not one of 0, 1, 2", c.RiskLevel)
	}
	if c.NoveltyScore != nil && (*c.NoveltyScore < 0 || *c.NoveltyScore > 1) {
		return fmt.Errorf("novelty_score %v out of range [0,1]", *c.NoveltyScore)
	}
	if c.ContextConfidence != nil && (*c.ContextConfidence < 0 || *c.ContextConfidence > 1) {
		return fmt.Errorf("context_confidence %v out of range [0,1]", *c.ContextConfidence)
	}
	if c.Timestamp.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

// CanAutotune implements can_autotune(): risk must be safe, confidence
// must clear the 0.6 floor, and, when flags are present, allow_autotune
// must be true.
func (c ContextFrame) CanAutotune() bool {
	if c.RiskLevel != RiskSafe {
		return false
	}
	if c.ContextConfidence == nil || *c.ContextConfidence < 0.6 {
		return false
	}
	if c.Flags != nil && !c.Flags.AllowAutotune {
		return false
	}
	return true
}
