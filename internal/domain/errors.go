// Package domain defines the core types, ports and errors of the query engine.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a state conflict (e.g. a plan that already ran).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// PlanningError indicates the Oracle output could not be turned into a plan.
type PlanningError struct {
	Message string
	// NoPlan is set when the Oracle produced zero statements.
	NoPlan bool
}

func (e *PlanningError) Error() string { return e.Message }

// PolicyDeniedError indicates the Policy Gate refused a step.
type PolicyDeniedError struct {
	Step   int
	Reason string
}

func (e *PolicyDeniedError) Error() string {
	if e.Step > 0 {
		return fmt.Sprintf("step %d denied: %s", e.Step, e.Reason)
	}
	return "denied: " + e.Reason
}

// ExecutionError wraps a failure reported by the target database.
type ExecutionError struct {
	DatabaseID string
	Message    string
	Code       string
	Timeout    bool
	Err        error
}

func (e *ExecutionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("query timed out on %q: %s", e.DatabaseID, e.Message)
	}
	return fmt.Sprintf("query failed on %q: %s", e.DatabaseID, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// RollbackUnavailableError indicates an undo cannot be performed.
type RollbackUnavailableError struct {
	Message string
}

func (e *RollbackUnavailableError) Error() string { return e.Message }

// OracleError indicates the SQL Oracle could not be reached or its answer
// could not be read.
type OracleError struct {
	Message string
	Err     error
}

func (e *OracleError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *OracleError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrPlanning creates a PlanningError with a formatted message.
func ErrPlanning(format string, args ...interface{}) *PlanningError {
	return &PlanningError{Message: fmt.Sprintf(format, args...)}
}

// ErrNoPlanGenerated is returned when the Oracle produced no statements.
func ErrNoPlanGenerated() *PlanningError {
	return &PlanningError{Message: "no plan generated: the oracle returned no SQL statements", NoPlan: true}
}

// ErrRollbackUnavailable creates a RollbackUnavailableError with a formatted message.
func ErrRollbackUnavailable(format string, args ...interface{}) *RollbackUnavailableError {
	return &RollbackUnavailableError{Message: fmt.Sprintf(format, args...)}
}
