package cycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/internal/risk"
	"github.com/quantpulse/pulse/pkg/logger"
)

// Store persists cycle records. Split out as an interface so the
// machine tests run without a database.
type Store interface {
	SaveCycle(ctx context.Context, cycle *contracts.TradingCycle) error
}

// Machine owns the single authoritative trading-cycle record. At most
// one cycle may be starting or active at any time; every transition is
// validated against the cycle lifecycle. All mutation happens through
// the machine; the workflow never writes cycle fields directly.
type Machine struct {
	mu      sync.RWMutex
	current *contracts.TradingCycle // nil when idle
	store   Store
	logger  *logger.Logger

	// dirty marks a failed durable write. The in-memory record stays
	// authoritative and the write is retried at the next step boundary.
	dirty bool
}

// NewMachine creates a machine in the idle state.
func NewMachine(store Store, log *logger.Logger) *Machine {
	return &Machine{
		store:  store,
		logger: log,
	}
}

// Start creates a new cycle in the starting state. It fails with
// ValidationError when another cycle is already running (only one cycle
// may exist at a time) or when settings are out of bounds.
func (m *Machine) Start(ctx context.Context, settings contracts.CycleSettings, minFreq, maxFreq time.Duration) (*contracts.TradingCycle, error) {
	if err := settings.Validate(minFreq, maxFreq); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Status.IsRunning() {
		return nil, contracts.NewValidationError(
			fmt.Sprintf("cycle %s is already %s", m.current.CycleID, m.current.Status))
	}

	now := time.Now()
	cycle := &contracts.TradingCycle{
		CycleID:   contracts.NewCycleID(now),
		Status:    contracts.CycleStarting,
		Settings:  settings,
		StartedAt: now,
		Metrics:   make(map[string]interface{}),
	}

	m.current = cycle
	m.persistLocked(ctx)

	m.logger.WithFields(map[string]interface{}{
		"cycle_id":       cycle.CycleID,
		"mode":           settings.Mode,
		"max_positions":  settings.MaxPositions,
		"scan_frequency": settings.ScanFrequency,
	}).Info("Cycle starting")

	return m.snapshotLocked(), nil
}

// Activate moves starting → active once mandatory downstream services
// acknowledged initialization.
func (m *Machine) Activate(ctx context.Context) error {
	return m.transition(ctx, contracts.CycleActive)
}

// AbortStart reverts a failed start to idle. No half-initialized cycle
// is ever visible: the record is terminated as failed and the machine
// returns to idle.
func (m *Machine) AbortStart(ctx context.Context, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.Status != contracts.CycleStarting {
		return
	}

	m.logger.WithError(cause).WithField("cycle_id", m.current.CycleID).
		Error("Cycle start aborted, reverting to idle")

	now := time.Now()
	m.current.Status = contracts.CycleFailed
	m.current.EndedAt = &now
	m.current.RecordMetric("abort_reason", cause.Error())
	m.persistLocked(ctx)

	m.current = nil
}

// BeginStop moves active/starting → stopping. Positions stay open; a
// separate explicit close step owns liquidation.
func (m *Machine) BeginStop(ctx context.Context) error {
	return m.transition(ctx, contracts.CycleStopping)
}

// FinishStop moves stopping → stopped.
func (m *Machine) FinishStop(ctx context.Context) error {
	return m.transition(ctx, contracts.CycleStopped)
}

// Fail terminates the cycle after an unrecoverable step error.
func (m *Machine) Fail(ctx context.Context, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return contracts.ErrNoActiveCycle
	}
	if !m.current.CanTransitionTo(contracts.CycleFailed) {
		return contracts.NewValidationError(
			fmt.Sprintf("cannot fail cycle in status %s", m.current.Status))
	}

	now := time.Now()
	m.current.Status = contracts.CycleFailed
	m.current.EndedAt = &now
	if cause != nil {
		m.current.RecordMetric("failure_reason", cause.Error())
	}
	m.persistLocked(ctx)
	return nil
}

// Complete terminates the cycle normally (e.g. end of trading day).
func (m *Machine) Complete(ctx context.Context) error {
	return m.transition(ctx, contracts.CycleCompleted)
}

// EmergencyStop forces emergency_stopped from any non-idle state,
// regardless of in-flight step status.
func (m *Machine) EmergencyStop(ctx context.Context) error {
	return m.transition(ctx, contracts.CycleEmergencyStopped)
}

// transition applies a lifecycle move with legality checking.
func (m *Machine) transition(ctx context.Context, next contracts.CycleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return contracts.ErrNoActiveCycle
	}
	if !m.current.CanTransitionTo(next) {
		return contracts.NewValidationError(
			fmt.Sprintf("illegal transition %s → %s", m.current.Status, next))
	}

	prev := m.current.Status
	m.current.Status = next
	if next.IsTerminal() {
		now := time.Now()
		m.current.EndedAt = &now
	}
	m.persistLocked(ctx)

	m.logger.WithFields(map[string]interface{}{
		"cycle_id": m.current.CycleID,
		"from":     prev,
		"to":       next,
	}).Info("Cycle transition")

	return nil
}

// Current returns a copy of the cycle record, or nil when idle.
func (m *Machine) Current() *contracts.TradingCycle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Running reports whether a cycle is starting or active.
func (m *Machine) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil && m.current.Status.IsRunning()
}

// UpdateSettings applies a config update to the running cycle.
func (m *Machine) UpdateSettings(ctx context.Context, settings contracts.CycleSettings, minFreq, maxFreq time.Duration) error {
	if err := settings.Validate(minFreq, maxFreq); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || !m.current.Status.IsRunning() {
		return contracts.ErrNoActiveCycle
	}

	m.current.Settings = settings
	m.persistLocked(ctx)

	m.logger.WithField("cycle_id", m.current.CycleID).Info("Cycle settings updated")
	return nil
}

// SyncRisk mirrors the risk ledger onto the cycle record.
func (m *Machine) SyncRisk(ctx context.Context, snap risk.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}
	m.current.UsedRiskBudget = snap.UsedBudget
	m.current.CurrentPositions = snap.PositionCount
	m.current.CurrentExposure = snap.Exposure
	m.persistLocked(ctx)
}

// RecordMetric stores a metric on the running cycle and persists.
func (m *Machine) RecordMetric(ctx context.Context, key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}
	m.current.RecordMetric(key, value)
	m.persistLocked(ctx)
}

// persistLocked writes the current record, tolerating write failures:
// the in-memory state stays authoritative and the next boundary retries.
// Callers hold the mutex.
func (m *Machine) persistLocked(ctx context.Context) {
	if m.store == nil || m.current == nil {
		return
	}

	if err := m.store.SaveCycle(ctx, m.current); err != nil {
		m.dirty = true
		perr := &contracts.PersistenceError{Op: "save cycle", Err: err}
		m.logger.WithError(perr).WithField("cycle_id", m.current.CycleID).
			Error("Cycle persistence failed, will retry at next step boundary")
		return
	}

	if m.dirty {
		m.logger.WithField("cycle_id", m.current.CycleID).Info("Cycle persistence recovered")
	}
	m.dirty = false
}

// Dirty reports whether the last durable write failed.
func (m *Machine) Dirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dirty
}

func (m *Machine) snapshotLocked() *contracts.TradingCycle {
	if m.current == nil {
		return nil
	}
	copy := *m.current
	copy.Metrics = make(map[string]interface{}, len(m.current.Metrics))
	for k, v := range m.current.Metrics {
		copy.Metrics[k] = v
	}
	return &copy
}
