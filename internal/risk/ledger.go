package risk

import (
	"fmt"
	"sync"

	"github.com/quantpulse/pulse/internal/contracts"
)

// Ledger tracks used/remaining risk budget and position counts for one
// cycle. It is the only mutable state shared between the workflow and
// the fill stream, so every access is serialized behind the mutex.
// Execution calls are sequential by design; the ledger enforces the
// budget invariants regardless.
type Ledger struct {
	mu sync.Mutex

	totalBudget  float64
	usedBudget   float64
	reserved     float64
	positions    int
	maxPositions int
	exposure     float64
}

// Snapshot is a point-in-time copy of the ledger for reporting.
type Snapshot struct {
	TotalBudget   float64 `json:"total_budget"`
	UsedBudget    float64 `json:"used_budget"`
	Reserved      float64 `json:"reserved"`
	PositionCount int     `json:"position_count"`
	MaxPositions  int     `json:"max_positions"`
	Exposure      float64 `json:"exposure"`
}

// NewLedger creates a ledger for one cycle.
func NewLedger(totalBudget float64, maxPositions int) *Ledger {
	return &Ledger{
		totalBudget:  totalBudget,
		maxPositions: maxPositions,
	}
}

// Reserve claims budget for one candidate ahead of an execution call.
// It fails with RiskBudgetExceededError when the claim would breach
// the budget or the position cap; the candidate is skipped, not the cycle.
func (l *Ledger) Reserve(symbol string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount <= 0 {
		return &contracts.RiskBudgetExceededError{
			Symbol: symbol,
			Reason: "non-positive risk amount",
		}
	}
	if l.positions+1 > l.maxPositions {
		return &contracts.RiskBudgetExceededError{
			Symbol: symbol,
			Reason: fmt.Sprintf("position cap reached (%d/%d)", l.positions, l.maxPositions),
		}
	}
	if l.usedBudget+l.reserved+amount > l.totalBudget {
		return &contracts.RiskBudgetExceededError{
			Symbol: symbol,
			Reason: fmt.Sprintf("would use %.2f of %.2f budget",
				l.usedBudget+l.reserved+amount, l.totalBudget),
		}
	}

	l.reserved += amount
	return nil
}

// Commit converts a reservation into used budget after the venue
// accepted the order.
func (l *Ledger) Commit(amount, notional float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reserved -= amount
	if l.reserved < 0 {
		l.reserved = 0
	}
	l.usedBudget += amount
	if l.usedBudget > l.totalBudget {
		l.usedBudget = l.totalBudget
	}
	l.positions++
	l.exposure += notional
}

// Release returns a reservation after a rejected or failed submission.
func (l *Ledger) Release(amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reserved -= amount
	if l.reserved < 0 {
		l.reserved = 0
	}
}

// ClosePosition returns budget and exposure when a position exits.
func (l *Ledger) ClosePosition(riskAmount, notional float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.usedBudget -= riskAmount
	if l.usedBudget < 0 {
		l.usedBudget = 0
	}
	l.exposure -= notional
	if l.exposure < 0 {
		l.exposure = 0
	}
	if l.positions > 0 {
		l.positions--
	}
}

// Snapshot returns a copy of the current ledger state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Snapshot{
		TotalBudget:   l.totalBudget,
		UsedBudget:    l.usedBudget,
		Reserved:      l.reserved,
		PositionCount: l.positions,
		MaxPositions:  l.maxPositions,
		Exposure:      l.exposure,
	}
}

// Remaining returns the uncommitted, unreserved budget.
func (l *Ledger) Remaining() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalBudget - l.usedBudget - l.reserved
}
