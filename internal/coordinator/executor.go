package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/internal/risk"
)

// executeSignals runs the execution phase of one tick. Submissions are
// strictly sequential: each one reserves ledger budget before the call
// and settles it after, so concurrent submissions can never
// double-spend the budget. A stop or emergency signal observed between
// candidates halts further processing; the in-flight submission always
// completes to avoid leaving an order in an undefined state.
func (c *Coordinator) executeSignals(ctx context.Context, cycleID, scanID string, signals []contracts.Signal) {
	if len(signals) == 0 {
		return
	}

	c.mu.Lock()
	ledger := c.ledger
	c.mu.Unlock()
	if ledger == nil {
		return
	}

	start := time.Now()
	executed := 0
	skipped := 0

	for _, signal := range signals {
		if c.stopRequested() {
			c.logger.WithField("remaining", len(signals)-executed-skipped).
				Info("Stop observed, halting execution phase")
			break
		}

		reason, ok := c.executeOne(ctx, cycleID, scanID, ledger, signal)
		if ok {
			executed++
			continue
		}

		skipped++
		c.metrics.RiskSkips.WithLabelValues(reason).Inc()
		// Skips are per-candidate, never cycle-wide.
		c.recordStep(ctx, contracts.StepRecord{
			CycleID: cycleID,
			ScanID:  scanID,
			Step:    contracts.StepRisk,
			Outcome: contracts.StepSkipped,
			Detail:  fmt.Sprintf("%s: %s", signal.Symbol, reason),
		})
	}

	c.recordStep(ctx, contracts.StepRecord{
		CycleID:    cycleID,
		ScanID:     scanID,
		Step:       contracts.StepExecution,
		Outcome:    contracts.StepOK,
		InputSize:  len(signals),
		OutputSize: executed,
		Duration:   time.Since(start),
		Extra:      map[string]interface{}{"skipped": skipped},
	})
}

// executeOne gates and submits a single signal. Returns (skip reason,
// executed). The ledger reservation is committed only after the venue
// accepted the order, and released on any other outcome.
func (c *Coordinator) executeOne(ctx context.Context, cycleID, scanID string, ledger *risk.Ledger, signal contracts.Signal) (string, bool) {
	riskAmount := signal.ImpliedRisk()

	// Local budget gate first: breaching total_budget or max_positions
	// skips the candidate with a recorded reason.
	if err := ledger.Reserve(signal.Symbol, riskAmount); err != nil {
		c.logger.WithError(err).WithField("symbol", signal.Symbol).
			Info("Candidate skipped by risk budget")
		return "budget", false
	}

	// External risk evaluator sees the post-reservation ledger. Its
	// rejection is final for this step; never retried.
	check, checkResult := c.riskSvc.Check(ctx, signal, ledger.Snapshot(), 0)
	c.observeCall(checkResult)
	if !checkResult.Success {
		ledger.Release(riskAmount)
		return "risk_service_unavailable", false
	}
	if !check.Approved {
		ledger.Release(riskAmount)
		c.logger.WithFields(map[string]interface{}{
			"symbol": signal.Symbol,
			"reason": check.Reason,
		}).Info("Candidate rejected by risk evaluator")
		return "risk_rejected", false
	}

	order := contracts.Order{
		ID:        fmt.Sprintf("ord_%s", uuid.New().String()[:12]),
		CycleID:   cycleID,
		Symbol:    signal.Symbol,
		Side:      signal.Side,
		Qty:       signal.Quantity,
		OrderType: contracts.OrderTypeMarket,
		Status:    contracts.StatusPending,
		CreatedAt: time.Now(),
	}

	result, callResult := c.execution.SubmitOrder(ctx, order, 0)
	c.observeCall(callResult)
	if !callResult.Success {
		ledger.Release(riskAmount)
		c.metrics.OrdersSubmitted.WithLabelValues("error").Inc()
		return "submission_failed", false
	}
	if result.Status == contracts.StatusRejected || result.Status == contracts.StatusCanceled {
		ledger.Release(riskAmount)
		c.metrics.OrdersSubmitted.WithLabelValues(string(result.Status)).Inc()
		return "venue_rejected", false
	}

	fillPrice := result.FillPrice
	if fillPrice <= 0 {
		fillPrice = signal.EntryPrice
	}
	ledger.Commit(riskAmount, fillPrice*float64(signal.Quantity))
	c.metrics.OrdersSubmitted.WithLabelValues(string(result.Status)).Inc()

	c.logger.WithFields(map[string]interface{}{
		"symbol":     signal.Symbol,
		"order_id":   result.OrderID,
		"qty":        signal.Quantity,
		"fill_price": fillPrice,
		"risk":       riskAmount,
	}).Info("Order executed")

	return "", true
}
