package contracts

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CycleMode controls how aggressively a cycle trades.
type CycleMode string

const (
	ModeConservative CycleMode = "conservative"
	ModeNormal       CycleMode = "normal"
	ModeAggressive   CycleMode = "aggressive"
)

// Valid reports whether the mode is a known value.
func (m CycleMode) Valid() bool {
	switch m {
	case ModeConservative, ModeNormal, ModeAggressive:
		return true
	}
	return false
}

// CycleStatus represents the lifecycle state of a trading cycle.
//
// Lifecycle:
//
//	idle → starting → active → stopping → stopped
//	                        ↘ failed | completed
//	emergency_stopped is reachable from any non-idle state.
type CycleStatus string

const (
	CycleIdle             CycleStatus = "idle"
	CycleStarting         CycleStatus = "starting"
	CycleActive           CycleStatus = "active"
	CycleStopping         CycleStatus = "stopping"
	CycleStopped          CycleStatus = "stopped"
	CycleFailed           CycleStatus = "failed"
	CycleCompleted        CycleStatus = "completed"
	CycleEmergencyStopped CycleStatus = "emergency_stopped"
)

// IsRunning reports whether the cycle counts against the
// single-active-cycle invariant.
func (s CycleStatus) IsRunning() bool {
	return s == CycleStarting || s == CycleActive
}

// IsTerminal reports whether the cycle can never transition again.
func (s CycleStatus) IsTerminal() bool {
	switch s {
	case CycleStopped, CycleFailed, CycleCompleted, CycleEmergencyStopped:
		return true
	}
	return false
}

// CycleSettings holds the validated configuration of one cycle.
type CycleSettings struct {
	Mode            CycleMode     `json:"mode"`
	Aggressiveness  float64       `json:"aggressiveness"` // [0,1]
	MaxPositions    int           `json:"max_positions"`  // [1,10]
	ScanFrequency   time.Duration `json:"scan_frequency"`
	RiskLevel       float64       `json:"risk_level"` // fraction of equity per position
	TotalRiskBudget float64       `json:"total_risk_budget"`
	ConfidenceFloor float64       `json:"confidence_floor"` // [0,100]
}

// Validate checks settings bounds. Frequency bounds come from the
// operator config because deployments differ.
func (s CycleSettings) Validate(minFreq, maxFreq time.Duration) error {
	if !s.Mode.Valid() {
		return NewValidationError(fmt.Sprintf("invalid mode %q", s.Mode))
	}
	if s.MaxPositions < 1 || s.MaxPositions > 10 {
		return NewValidationError(fmt.Sprintf("max_positions must be in [1,10], got %d", s.MaxPositions))
	}
	if s.Aggressiveness < 0 || s.Aggressiveness > 1 {
		return NewValidationError(fmt.Sprintf("aggressiveness must be in [0,1], got %v", s.Aggressiveness))
	}
	if s.ScanFrequency < minFreq || s.ScanFrequency > maxFreq {
		return NewValidationError(fmt.Sprintf("scan_frequency must be in [%s,%s], got %s", minFreq, maxFreq, s.ScanFrequency))
	}
	if s.RiskLevel <= 0 || s.RiskLevel > 1 {
		return NewValidationError(fmt.Sprintf("risk_level must be in (0,1], got %v", s.RiskLevel))
	}
	if s.TotalRiskBudget <= 0 {
		return NewValidationError("total_risk_budget must be positive")
	}
	return nil
}

// TradingCycle represents one workflow run.
type TradingCycle struct {
	CycleID   string        `json:"cycle_id"`
	Status    CycleStatus   `json:"status"`
	Settings  CycleSettings `json:"settings"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`

	// Risk bookkeeping snapshot, mirrored from the ledger at each step.
	UsedRiskBudget   float64 `json:"used_risk_budget"`
	CurrentPositions int     `json:"current_positions"`
	CurrentExposure  float64 `json:"current_exposure"`

	Metrics map[string]interface{} `json:"metrics"`
}

// NewCycleID returns an opaque ID sortable by creation time. The
// timestamp prefix keeps lexical order equal to creation order; the
// uuid suffix keeps it globally unique.
func NewCycleID(now time.Time) string {
	return fmt.Sprintf("cycle_%s_%s",
		now.UTC().Format("20060102T150405.000000000"),
		uuid.New().String()[:8])
}

// NewScanID returns an ID for one scan within a cycle.
func NewScanID(now time.Time) string {
	return fmt.Sprintf("scan_%s_%s",
		now.UTC().Format("20060102T150405.000000000"),
		uuid.New().String()[:8])
}

// ScanIDCutoff returns a prefix that sorts after every scan ID created
// before t. Used by retention pruning.
func ScanIDCutoff(t time.Time) string {
	return fmt.Sprintf("scan_%s", t.UTC().Format("20060102T150405.000000000"))
}

// RecordMetric stores an accumulated metric on the cycle.
func (c *TradingCycle) RecordMetric(key string, value interface{}) {
	if c.Metrics == nil {
		c.Metrics = make(map[string]interface{})
	}
	c.Metrics[key] = value
}

// CanTransitionTo reports whether status may legally follow the
// current status.
func (c *TradingCycle) CanTransitionTo(next CycleStatus) bool {
	if next == CycleEmergencyStopped {
		return !c.Status.IsTerminal() && c.Status != CycleIdle
	}

	switch c.Status {
	case CycleIdle:
		return next == CycleStarting
	case CycleStarting:
		return next == CycleActive || next == CycleStopping || next == CycleFailed || next == CycleIdle
	case CycleActive:
		return next == CycleStopping || next == CycleFailed || next == CycleCompleted
	case CycleStopping:
		return next == CycleStopped
	}
	return false
}
