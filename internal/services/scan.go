package services

import (
	"context"
	"time"

	"github.com/quantpulse/pulse/internal/contracts"
)

// ScanClient wraps the scan source collaborator. The scan source is
// the only mandatory collaborator: a cycle cannot start without it.
type ScanClient struct {
	caller *Caller
}

// NewScanClient creates a scan client.
func NewScanClient(caller *Caller) *ScanClient {
	return &ScanClient{caller: caller}
}

type scanRequest struct {
	Mode         contracts.CycleMode `json:"mode"`
	UniverseSize int                 `json:"universe_size"`
}

type scanResponse struct {
	Rows []contracts.ScanRow `json:"rows"`
}

// Scan requests a market scan. The result's ErrorKind tells the
// workflow whether and how the call failed; a failed scan is retried
// on the next cycle tick, never here.
func (c *ScanClient) Scan(ctx context.Context, mode contracts.CycleMode, universeSize int, timeout time.Duration) ([]contracts.ScanRow, contracts.ServiceCallResult) {
	result := c.caller.Call(ctx, contracts.ServiceScan, "scan", scanRequest{
		Mode:         mode,
		UniverseSize: universeSize,
	}, timeout)

	var resp scanResponse
	if !DecodeResult(&result, &resp) {
		return nil, result
	}
	return resp.Rows, result
}
