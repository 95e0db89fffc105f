package contracts

import "time"

// ServiceName identifies one downstream collaborator. The set is
// closed: dispatch over it is checked at compile time, not through
// string-keyed handler maps.
type ServiceName string

const (
	ServiceScan      ServiceName = "scan"
	ServiceNews      ServiceName = "news"
	ServicePattern   ServiceName = "pattern"
	ServiceTechnical ServiceName = "technical"
	ServiceRisk      ServiceName = "risk"
	ServiceExecution ServiceName = "execution"
)

// AllServices lists every collaborator, in initialization order.
func AllServices() []ServiceName {
	return []ServiceName{
		ServiceScan,
		ServiceNews,
		ServicePattern,
		ServiceTechnical,
		ServiceRisk,
		ServiceExecution,
	}
}

// ErrorKind classifies a failed collaborator call.
type ErrorKind string

const (
	ErrKindNone              ErrorKind = ""
	ErrKindTimeout           ErrorKind = "timeout"
	ErrKindUnreachable       ErrorKind = "unreachable"
	ErrKindRejected          ErrorKind = "rejected"       // 4xx-equivalent
	ErrKindUpstreamFault     ErrorKind = "upstream_fault" // 5xx-equivalent
	ErrKindMalformedResponse ErrorKind = "malformed_response"
)

// ServiceCallResult captures the outcome of one collaborator call.
// It is transient: consumed immediately by the workflow, never persisted.
type ServiceCallResult struct {
	Service   ServiceName   `json:"service"`
	Operation string        `json:"operation"`
	Success   bool          `json:"success"`
	Payload   []byte        `json:"-"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency"`
}

// ServiceHealth is one collaborator's health as seen by the registry.
type ServiceHealth struct {
	Service     ServiceName `json:"service"`
	Healthy     bool        `json:"healthy"`
	LastChecked time.Time   `json:"last_checked"`
	LastError   string      `json:"last_error,omitempty"`
	LastLatency string      `json:"last_latency,omitempty"`
}

// ---------------------------------------------------------------------
// Collaborator payloads (request/response contracts, transport-agnostic)
// ---------------------------------------------------------------------

// ScanRow is one row of a scan source response.
type ScanRow struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
	ChangePct float64 `json:"change_pct"`
}

// PatternMatch is one detected chart pattern.
type PatternMatch struct {
	PatternName string  `json:"pattern_name"`
	Direction   string  `json:"direction"` // bullish | bearish | neutral
	Confidence  float64 `json:"confidence"`
}

// TechnicalResult is the technical analyzer response for one symbol.
type TechnicalResult struct {
	Symbol     string             `json:"symbol"`
	Timeframe  string             `json:"timeframe"`
	Indicators map[string]float64 `json:"indicators"`
	Trend      string             `json:"trend"` // up | down | sideways
	Support    float64            `json:"support"`
	Resistance float64            `json:"resistance"`
}

// RiskCheckResult is the risk evaluator's decision for one candidate.
type RiskCheckResult struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}
