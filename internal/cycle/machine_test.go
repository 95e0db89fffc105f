package cycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/internal/risk"
	"github.com/quantpulse/pulse/pkg/logger"
)

// memStore is an in-memory Store for machine tests. err, when set,
// makes every write fail.
type memStore struct {
	saves []contracts.TradingCycle
	err   error
}

func (s *memStore) SaveCycle(ctx context.Context, cycle *contracts.TradingCycle) error {
	if s.err != nil {
		return s.err
	}
	s.saves = append(s.saves, *cycle)
	return nil
}

func validSettings() contracts.CycleSettings {
	return contracts.CycleSettings{
		Mode:            contracts.ModeNormal,
		Aggressiveness:  0.5,
		MaxPositions:    5,
		ScanFrequency:   30 * time.Second,
		RiskLevel:       0.02,
		TotalRiskBudget: 10000,
		ConfidenceFloor: 60,
	}
}

const (
	testMinFreq = 10 * time.Second
	testMaxFreq = 5 * time.Minute
)

func TestMachine_StartLifecycle(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	m := NewMachine(store, logger.NewNop())

	cycle, err := m.Start(ctx, validSettings(), testMinFreq, testMaxFreq)
	require.NoError(t, err)
	require.NotNil(t, cycle)
	assert.Equal(t, contracts.CycleStarting, cycle.Status)
	assert.NotEmpty(t, cycle.CycleID)
	assert.True(t, m.Running())

	require.NoError(t, m.Activate(ctx))
	assert.Equal(t, contracts.CycleActive, m.Current().Status)

	require.NoError(t, m.BeginStop(ctx))
	assert.False(t, m.Running())

	require.NoError(t, m.FinishStop(ctx))
	current := m.Current()
	assert.Equal(t, contracts.CycleStopped, current.Status)
	require.NotNil(t, current.EndedAt)

	// Every transition produced a durable write.
	assert.Len(t, store.saves, 4)
}

func TestMachine_SingleActiveCycle(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(nil, logger.NewNop())

	_, err := m.Start(ctx, validSettings(), testMinFreq, testMaxFreq)
	require.NoError(t, err)

	// A second start while starting or active is rejected.
	_, err = m.Start(ctx, validSettings(), testMinFreq, testMaxFreq)
	require.Error(t, err)
	assert.True(t, contracts.IsValidationError(err))

	require.NoError(t, m.Activate(ctx))
	_, err = m.Start(ctx, validSettings(), testMinFreq, testMaxFreq)
	require.Error(t, err)

	// After a full stop a new cycle may start.
	require.NoError(t, m.BeginStop(ctx))
	require.NoError(t, m.FinishStop(ctx))
	_, err = m.Start(ctx, validSettings(), testMinFreq, testMaxFreq)
	assert.NoError(t, err)
}

func TestMachine_StartValidatesSettings(t *testing.T) {
	m := NewMachine(nil, logger.NewNop())

	bad := validSettings()
	bad.MaxPositions = 0

	_, err := m.Start(context.Background(), bad, testMinFreq, testMaxFreq)
	require.Error(t, err)
	assert.True(t, contracts.IsValidationError(err))
	assert.False(t, m.Running())
}

func TestMachine_AbortStart(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	m := NewMachine(store, logger.NewNop())

	_, err := m.Start(ctx, validSettings(), testMinFreq, testMaxFreq)
	require.NoError(t, err)

	m.AbortStart(ctx, errors.New("scan source unreachable"))

	// The machine is idle again and the record was terminated as failed.
	assert.Nil(t, m.Current())
	assert.False(t, m.Running())
	last := store.saves[len(store.saves)-1]
	assert.Equal(t, contracts.CycleFailed, last.Status)
	assert.Equal(t, "scan source unreachable", last.Metrics["abort_reason"])

	// Abort after activation is a no-op.
	_, err = m.Start(ctx, validSettings(), testMinFreq, testMaxFreq)
	require.NoError(t, err)
	require.NoError(t, m.Activate(ctx))
	m.AbortStart(ctx, errors.New("too late"))
	assert.Equal(t, contracts.CycleActive, m.Current().Status)
}

func TestMachine_IllegalTransitions(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(nil, logger.NewNop())

	// Nothing to transition while idle.
	assert.ErrorIs(t, m.Activate(ctx), contracts.ErrNoActiveCycle)
	assert.ErrorIs(t, m.BeginStop(ctx), contracts.ErrNoActiveCycle)

	_, err := m.Start(ctx, validSettings(), testMinFreq, testMaxFreq)
	require.NoError(t, err)

	// starting → stopped skips stopping.
	err = m.FinishStop(ctx)
	require.Error(t, err)
	assert.True(t, contracts.IsValidationError(err))

	// starting → completed is not legal either.
	err = m.Complete(ctx)
	require.Error(t, err)
}

func TestMachine_EmergencyStop(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(nil, logger.NewNop())

	_, err := m.Start(ctx, validSettings(), testMinFreq, testMaxFreq)
	require.NoError(t, err)
	require.NoError(t, m.Activate(ctx))

	require.NoError(t, m.EmergencyStop(ctx))
	current := m.Current()
	assert.Equal(t, contracts.CycleEmergencyStopped, current.Status)
	require.NotNil(t, current.EndedAt)

	// Terminal: nothing else applies.
	assert.Error(t, m.EmergencyStop(ctx))
}

func TestMachine_Fail(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(nil, logger.NewNop())

	_, err := m.Start(ctx, validSettings(), testMinFreq, testMaxFreq)
	require.NoError(t, err)
	require.NoError(t, m.Activate(ctx))

	require.NoError(t, m.Fail(ctx, errors.New("persistent scan failure")))
	current := m.Current()
	assert.Equal(t, contracts.CycleFailed, current.Status)
	assert.Equal(t, "persistent scan failure", current.Metrics["failure_reason"])
}

func TestMachine_UpdateSettings(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(nil, logger.NewNop())

	// No running cycle: rejected.
	err := m.UpdateSettings(ctx, validSettings(), testMinFreq, testMaxFreq)
	assert.ErrorIs(t, err, contracts.ErrNoActiveCycle)

	_, err = m.Start(ctx, validSettings(), testMinFreq, testMaxFreq)
	require.NoError(t, err)
	require.NoError(t, m.Activate(ctx))

	updated := validSettings()
	updated.MaxPositions = 3
	require.NoError(t, m.UpdateSettings(ctx, updated, testMinFreq, testMaxFreq))
	assert.Equal(t, 3, m.Current().Settings.MaxPositions)

	// Invalid settings never replace the current ones.
	bad := validSettings()
	bad.RiskLevel = 0
	require.Error(t, m.UpdateSettings(ctx, bad, testMinFreq, testMaxFreq))
	assert.Equal(t, 3, m.Current().Settings.MaxPositions)
}

func TestMachine_SyncRisk(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(nil, logger.NewNop())

	_, err := m.Start(ctx, validSettings(), testMinFreq, testMaxFreq)
	require.NoError(t, err)

	m.SyncRisk(ctx, risk.Snapshot{UsedBudget: 450, PositionCount: 2, Exposure: 30000})

	current := m.Current()
	assert.Equal(t, 450.0, current.UsedRiskBudget)
	assert.Equal(t, 2, current.CurrentPositions)
	assert.Equal(t, 30000.0, current.CurrentExposure)
}

func TestMachine_PersistenceFailureKeepsStateAuthoritative(t *testing.T) {
	ctx := context.Background()
	store := &memStore{err: errors.New("connection refused")}
	m := NewMachine(store, logger.NewNop())

	// Start succeeds in memory even though the write failed.
	cycle, err := m.Start(ctx, validSettings(), testMinFreq, testMaxFreq)
	require.NoError(t, err)
	require.NotNil(t, cycle)
	assert.True(t, m.Dirty())

	// Once the store recovers, the next boundary write clears the flag.
	store.err = nil
	require.NoError(t, m.Activate(ctx))
	assert.False(t, m.Dirty())
	require.Len(t, store.saves, 1)
	assert.Equal(t, contracts.CycleActive, store.saves[0].Status)
}

func TestMachine_CurrentReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(nil, logger.NewNop())

	_, err := m.Start(ctx, validSettings(), testMinFreq, testMaxFreq)
	require.NoError(t, err)

	snap := m.Current()
	snap.Status = contracts.CycleFailed
	snap.Metrics["poison"] = true

	current := m.Current()
	assert.Equal(t, contracts.CycleStarting, current.Status)
	assert.NotContains(t, current.Metrics, "poison")
}
