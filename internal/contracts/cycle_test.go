package contracts

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleSettings_Validate(t *testing.T) {
	minFreq := 10 * time.Second
	maxFreq := 5 * time.Minute

	valid := CycleSettings{
		Mode:            ModeNormal,
		Aggressiveness:  0.5,
		MaxPositions:    5,
		ScanFrequency:   30 * time.Second,
		RiskLevel:       0.02,
		TotalRiskBudget: 10000,
		ConfidenceFloor: 60,
	}
	require.NoError(t, valid.Validate(minFreq, maxFreq))

	tests := []struct {
		name   string
		mutate func(*CycleSettings)
	}{
		{"unknown mode", func(s *CycleSettings) { s.Mode = "yolo" }},
		{"zero positions", func(s *CycleSettings) { s.MaxPositions = 0 }},
		{"too many positions", func(s *CycleSettings) { s.MaxPositions = 11 }},
		{"negative aggressiveness", func(s *CycleSettings) { s.Aggressiveness = -0.1 }},
		{"aggressiveness above one", func(s *CycleSettings) { s.Aggressiveness = 1.1 }},
		{"frequency too low", func(s *CycleSettings) { s.ScanFrequency = time.Second }},
		{"frequency too high", func(s *CycleSettings) { s.ScanFrequency = time.Hour }},
		{"zero risk level", func(s *CycleSettings) { s.RiskLevel = 0 }},
		{"risk level above one", func(s *CycleSettings) { s.RiskLevel = 1.5 }},
		{"zero budget", func(s *CycleSettings) { s.TotalRiskBudget = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := s.Validate(minFreq, maxFreq)
			require.Error(t, err)
			assert.True(t, IsValidationError(err), "expected a validation error, got %T", err)
		})
	}
}

func TestCycleStatus_Predicates(t *testing.T) {
	assert.True(t, CycleStarting.IsRunning())
	assert.True(t, CycleActive.IsRunning())
	assert.False(t, CycleStopping.IsRunning())
	assert.False(t, CycleIdle.IsRunning())

	for _, s := range []CycleStatus{CycleStopped, CycleFailed, CycleCompleted, CycleEmergencyStopped} {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}
	for _, s := range []CycleStatus{CycleIdle, CycleStarting, CycleActive, CycleStopping} {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
}

func TestTradingCycle_CanTransitionTo(t *testing.T) {
	allowed := map[CycleStatus][]CycleStatus{
		CycleIdle:     {CycleStarting},
		CycleStarting: {CycleActive, CycleStopping, CycleFailed, CycleIdle, CycleEmergencyStopped},
		CycleActive:   {CycleStopping, CycleFailed, CycleCompleted, CycleEmergencyStopped},
		CycleStopping: {CycleStopped, CycleEmergencyStopped},
	}
	all := []CycleStatus{
		CycleIdle, CycleStarting, CycleActive, CycleStopping,
		CycleStopped, CycleFailed, CycleCompleted, CycleEmergencyStopped,
	}

	for from, nexts := range allowed {
		ok := make(map[CycleStatus]bool)
		for _, n := range nexts {
			ok[n] = true
		}
		cycle := &TradingCycle{Status: from}
		for _, next := range all {
			assert.Equal(t, ok[next], cycle.CanTransitionTo(next),
				"%s -> %s", from, next)
		}
	}

	// Terminal states allow nothing, including emergency stop.
	for _, from := range []CycleStatus{CycleStopped, CycleFailed, CycleCompleted, CycleEmergencyStopped} {
		cycle := &TradingCycle{Status: from}
		for _, next := range all {
			assert.False(t, cycle.CanTransitionTo(next), "%s -> %s", from, next)
		}
	}

	// Emergency stop never applies to an idle cycle.
	idle := &TradingCycle{Status: CycleIdle}
	assert.False(t, idle.CanTransitionTo(CycleEmergencyStopped))
}

func TestNewCycleID_SortsByCreationTime(t *testing.T) {
	base := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)

	ids := []string{
		NewCycleID(base.Add(2 * time.Hour)),
		NewCycleID(base),
		NewCycleID(base.Add(time.Minute)),
	}

	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	assert.Equal(t, ids[1], sorted[0])
	assert.Equal(t, ids[2], sorted[1])
	assert.Equal(t, ids[0], sorted[2])
}

func TestScanIDCutoff(t *testing.T) {
	cutoffTime := time.Date(2026, 8, 28, 3, 0, 0, 0, time.UTC)
	cutoff := ScanIDCutoff(cutoffTime)

	older := NewScanID(cutoffTime.Add(-time.Hour))
	newer := NewScanID(cutoffTime.Add(time.Hour))

	assert.Less(t, older, cutoff)
	assert.Greater(t, newer, cutoff)
}
