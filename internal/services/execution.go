package services

import (
	"context"
	"time"

	"github.com/quantpulse/pulse/internal/contracts"
)

// ExecutionClient wraps the execution venue collaborator.
type ExecutionClient struct {
	caller *Caller
}

// NewExecutionClient creates an execution client.
func NewExecutionClient(caller *Caller) *ExecutionClient {
	return &ExecutionClient{caller: caller}
}

type submitOrderRequest struct {
	Symbol    string              `json:"symbol"`
	Side      contracts.OrderSide `json:"side"`
	Qty       int                 `json:"qty"`
	OrderType contracts.OrderType `json:"order_type"`
	Price     float64             `json:"price,omitempty"`
}

// SubmitOrder submits one order. Callers issue submissions strictly
// sequentially; concurrent submissions would double-spend the risk budget.
func (c *ExecutionClient) SubmitOrder(ctx context.Context, order contracts.Order, timeout time.Duration) (*contracts.OrderResult, contracts.ServiceCallResult) {
	result := c.caller.Call(ctx, contracts.ServiceExecution, "orders", submitOrderRequest{
		Symbol:    order.Symbol,
		Side:      order.Side,
		Qty:       order.Qty,
		OrderType: order.OrderType,
		Price:     order.Price,
	}, timeout)

	var resp contracts.OrderResult
	if !DecodeResult(&result, &resp) {
		return nil, result
	}
	return &resp, result
}

type closeAllRequest struct {
	Reason string `json:"reason"`
}

type closeAllResponse struct {
	ClosedPositions int `json:"closed_positions"`
}

// CloseAllPositions liquidates everything. Only the emergency stop
// path uses it.
func (c *ExecutionClient) CloseAllPositions(ctx context.Context, reason string, timeout time.Duration) (int, contracts.ServiceCallResult) {
	result := c.caller.Call(ctx, contracts.ServiceExecution, "positions/close-all", closeAllRequest{
		Reason: reason,
	}, timeout)

	var resp closeAllResponse
	if !DecodeResult(&result, &resp) {
		return 0, result
	}
	return resp.ClosedPositions, result
}
