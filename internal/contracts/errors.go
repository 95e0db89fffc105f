package contracts

import (
	"errors"
	"fmt"
)

// Error taxonomy for the workflow. Validation and risk errors surface
// synchronously to the caller; collaborator and persistence errors are
// recorded in the step log and degrade the step, not the process.

// ValidationError rejects bad configuration before any state mutation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// NewValidationError creates a ValidationError.
func NewValidationError(reason string) error {
	return &ValidationError{Reason: reason}
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CollaboratorUnavailableError signals a failed downstream call. The
// workflow degrades, logs, and continues with reduced data.
type CollaboratorUnavailableError struct {
	Service ServiceName
	Kind    ErrorKind
	Detail  string
}

func (e *CollaboratorUnavailableError) Error() string {
	return fmt.Sprintf("collaborator %s unavailable (%s): %s", e.Service, e.Kind, e.Detail)
}

// RiskBudgetExceededError skips one candidate, never fails the cycle.
type RiskBudgetExceededError struct {
	Symbol string
	Reason string
}

func (e *RiskBudgetExceededError) Error() string {
	return fmt.Sprintf("risk budget exceeded for %s: %s", e.Symbol, e.Reason)
}

// IsRiskBudgetExceeded reports whether err is a RiskBudgetExceededError.
func IsRiskBudgetExceeded(err error) bool {
	var re *RiskBudgetExceededError
	return errors.As(err, &re)
}

// PersistenceError marks a failed durable write. The in-memory state is
// retained and the write retried at the next step boundary; it is
// surfaced to operators, never swallowed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// InitFailureError aborts a cycle start when a mandatory collaborator
// fails initialization; the machine reverts to idle.
type InitFailureError struct {
	Service ServiceName
	Err     error
}

func (e *InitFailureError) Error() string {
	return fmt.Sprintf("mandatory service %s failed to initialize: %v", e.Service, e.Err)
}

func (e *InitFailureError) Unwrap() error {
	return e.Err
}

// ErrNoActiveCycle is returned by control-plane calls that need a
// running cycle when none exists.
var ErrNoActiveCycle = errors.New("no active cycle")
