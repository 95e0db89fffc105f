package contracts

import "time"

// Step identifies a workflow stage within one tick.
//
// Tick flow:
//
//	scan+news (concurrent) → funnel → analysis → signals → risk → execution
type Step string

const (
	StepScan      Step = "SCAN"
	StepNews      Step = "NEWS"
	StepFunnel    Step = "FUNNEL"
	StepAnalysis  Step = "ANALYSIS"
	StepSignals   Step = "SIGNALS"
	StepRisk      Step = "RISK"
	StepExecution Step = "EXECUTION"
)

// StepOutcome classifies how a step ended.
type StepOutcome string

const (
	StepOK       StepOutcome = "ok"
	StepDegraded StepOutcome = "degraded" // partial data, workflow continued
	StepSkipped  StepOutcome = "skipped"
	StepFailed   StepOutcome = "failed" // step halted, cycle continued
)

// StepRecord is one entry of a cycle's append-only step log. A crash
// mid-cycle leaves an inspectable partial record rather than a silent gap.
type StepRecord struct {
	CycleID    string                 `json:"cycle_id"`
	ScanID     string                 `json:"scan_id,omitempty"`
	Step       Step                   `json:"step"`
	Outcome    StepOutcome            `json:"outcome"`
	Detail     string                 `json:"detail,omitempty"`
	InputSize  int                    `json:"input_size"`
	OutputSize int                    `json:"output_size"`
	Duration   time.Duration          `json:"duration"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
	RecordedAt time.Time              `json:"recorded_at"`
}
