package services

import (
	"context"
	"time"

	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/internal/risk"
)

// RiskClient wraps the external risk evaluator. The evaluator sees the
// candidate signal alongside the current ledger snapshot, so its
// decision accounts for budget already committed this cycle.
type RiskClient struct {
	caller *Caller
}

// NewRiskClient creates a risk evaluator client.
func NewRiskClient(caller *Caller) *RiskClient {
	return &RiskClient{caller: caller}
}

type riskCheckRequest struct {
	Signal contracts.Signal `json:"candidate"`
	Ledger risk.Snapshot    `json:"current_ledger"`
}

// Check asks the risk evaluator to approve one candidate signal.
// A risk check failure is never retried within the same step.
func (c *RiskClient) Check(ctx context.Context, signal contracts.Signal, ledger risk.Snapshot, timeout time.Duration) (*contracts.RiskCheckResult, contracts.ServiceCallResult) {
	result := c.caller.Call(ctx, contracts.ServiceRisk, "check", riskCheckRequest{
		Signal: signal,
		Ledger: ledger,
	}, timeout)

	var resp contracts.RiskCheckResult
	if !DecodeResult(&result, &resp) {
		return nil, result
	}
	return &resp, result
}
