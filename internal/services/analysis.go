package services

import (
	"context"
	"time"

	"github.com/quantpulse/pulse/internal/contracts"
)

// PatternClient wraps the pattern analyzer collaborator. Pattern
// detection is expensive per symbol, so callers only ever invoke it
// for the funnel's final shortlist.
type PatternClient struct {
	caller *Caller
}

// NewPatternClient creates a pattern client.
func NewPatternClient(caller *Caller) *PatternClient {
	return &PatternClient{caller: caller}
}

type detectRequest struct {
	Symbol    string               `json:"symbol"`
	Timeframe string               `json:"timeframe"`
	Catalysts []contracts.Catalyst `json:"catalyst_context,omitempty"`
}

type detectResponse struct {
	Patterns []contracts.PatternMatch `json:"patterns"`
}

// Detect runs pattern detection for one symbol with its catalyst context.
func (c *PatternClient) Detect(ctx context.Context, symbol, timeframe string, catalysts []contracts.Catalyst, timeout time.Duration) ([]contracts.PatternMatch, contracts.ServiceCallResult) {
	result := c.caller.Call(ctx, contracts.ServicePattern, "detect", detectRequest{
		Symbol:    symbol,
		Timeframe: timeframe,
		Catalysts: catalysts,
	}, timeout)

	var resp detectResponse
	if !DecodeResult(&result, &resp) {
		return nil, result
	}
	return resp.Patterns, result
}

// TechnicalClient wraps the technical analyzer collaborator.
type TechnicalClient struct {
	caller *Caller
}

// NewTechnicalClient creates a technical client.
func NewTechnicalClient(caller *Caller) *TechnicalClient {
	return &TechnicalClient{caller: caller}
}

type analyzeRequest struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

// Analyze runs indicator analysis for one symbol.
func (c *TechnicalClient) Analyze(ctx context.Context, symbol, timeframe string, timeout time.Duration) (*contracts.TechnicalResult, contracts.ServiceCallResult) {
	result := c.caller.Call(ctx, contracts.ServiceTechnical, "analyze", analyzeRequest{
		Symbol:    symbol,
		Timeframe: timeframe,
	}, timeout)

	var resp contracts.TechnicalResult
	if !DecodeResult(&result, &resp) {
		return nil, result
	}
	return &resp, result
}
