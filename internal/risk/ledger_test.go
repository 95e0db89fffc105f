package risk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/pulse/internal/contracts"
)

func TestLedger_ReserveCommitRelease(t *testing.T) {
	ledger := NewLedger(1000, 5)

	require.NoError(t, ledger.Reserve("AAPL", 400))
	assert.InDelta(t, 600.0, ledger.Remaining(), 1e-9)

	ledger.Commit(400, 20000)
	snap := ledger.Snapshot()
	assert.InDelta(t, 400.0, snap.UsedBudget, 1e-9)
	assert.InDelta(t, 0.0, snap.Reserved, 1e-9)
	assert.Equal(t, 1, snap.PositionCount)
	assert.InDelta(t, 20000.0, snap.Exposure, 1e-9)

	// A released reservation returns to the pool.
	require.NoError(t, ledger.Reserve("MSFT", 300))
	ledger.Release(300)
	assert.InDelta(t, 600.0, ledger.Remaining(), 1e-9)
}

func TestLedger_BudgetNeverExceeded(t *testing.T) {
	ledger := NewLedger(1000, 10)

	require.NoError(t, ledger.Reserve("AAA", 600))

	// Used + reserved + new claim must fit inside the budget.
	err := ledger.Reserve("BBB", 500)
	require.Error(t, err)
	assert.True(t, contracts.IsRiskBudgetExceeded(err))

	require.NoError(t, ledger.Reserve("CCC", 400))
	err = ledger.Reserve("DDD", 1)
	require.Error(t, err)
}

func TestLedger_PositionCap(t *testing.T) {
	ledger := NewLedger(10000, 2)

	require.NoError(t, ledger.Reserve("AAA", 100))
	ledger.Commit(100, 1000)
	require.NoError(t, ledger.Reserve("BBB", 100))
	ledger.Commit(100, 1000)

	err := ledger.Reserve("CCC", 100)
	require.Error(t, err)
	assert.True(t, contracts.IsRiskBudgetExceeded(err))
}

func TestLedger_RejectsNonPositiveAmount(t *testing.T) {
	ledger := NewLedger(1000, 5)

	assert.Error(t, ledger.Reserve("AAA", 0))
	assert.Error(t, ledger.Reserve("AAA", -10))
}

func TestLedger_ClosePosition(t *testing.T) {
	ledger := NewLedger(1000, 5)

	require.NoError(t, ledger.Reserve("AAA", 300))
	ledger.Commit(300, 15000)

	ledger.ClosePosition(300, 15000)
	snap := ledger.Snapshot()
	assert.InDelta(t, 0.0, snap.UsedBudget, 1e-9)
	assert.InDelta(t, 0.0, snap.Exposure, 1e-9)
	assert.Equal(t, 0, snap.PositionCount)

	// Closing more than was opened never drives the ledger negative.
	ledger.ClosePosition(500, 500)
	snap = ledger.Snapshot()
	assert.GreaterOrEqual(t, snap.UsedBudget, 0.0)
	assert.GreaterOrEqual(t, snap.Exposure, 0.0)
	assert.Equal(t, 0, snap.PositionCount)
}

func TestLedger_ConcurrentReserves(t *testing.T) {
	ledger := NewLedger(1000, 100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.Reserve("X", 100); err == nil {
				ledger.Commit(100, 100)
			}
		}()
	}
	wg.Wait()

	snap := ledger.Snapshot()
	assert.LessOrEqual(t, snap.UsedBudget, snap.TotalBudget)
	assert.Equal(t, 10, snap.PositionCount)
}
