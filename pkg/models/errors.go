package models

import (
	"errors"
	"fmt"
)

// Error kinds raised by the workflow aggregate.
var (
	// ErrValidation marks a malformed workflow definition. Never persisted, never retried.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks a collision such as a duplicate action order.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks a reference to an unknown action or workflow.
	ErrNotFound = errors.New("not found")

	// ErrBusinessRule marks an operation forbidden by the current aggregate state.
	ErrBusinessRule = errors.New("business rule violation")

	// ErrActionExecution marks a failed or timed out action executor call.
	ErrActionExecution = errors.New("action execution failed")
)

// DomainError wraps one of the error kinds with the failing operation.
type DomainError struct {
	Op      string // Aggregate operation (e.g. "AddAction")
	Kind    error  // One of ErrValidation, ErrConflict, ErrNotFound, ErrBusinessRule, ErrActionExecution
	Message string // Human readable detail
	Err     error  // Underlying cause, if any
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches both the error kind and the wrapped cause.
func (e *DomainError) Is(target error) bool {
	if target == e.Kind {
		return true
	}

	return e.Err != nil && errors.Is(e.Err, target)
}

func newValidationError(op, format string, args ...any) *DomainError {
	return &DomainError{Op: op, Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func wrapValidationError(op, message string, err error) *DomainError {
	return &DomainError{Op: op, Kind: ErrValidation, Message: message, Err: err}
}

func newConflictError(op, format string, args ...any) *DomainError {
	return &DomainError{Op: op, Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

func newNotFoundError(op, format string, args ...any) *DomainError {
	return &DomainError{Op: op, Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func newBusinessRuleError(op, format string, args ...any) *DomainError {
	return &DomainError{Op: op, Kind: ErrBusinessRule, Message: fmt.Sprintf(format, args...)}
}

// NewActionExecutionError wraps a failed executor call for the given action.
func NewActionExecutionError(actionID string, err error) *DomainError {
	return &DomainError{
		Op:      "ExecuteAction",
		Kind:    ErrActionExecution,
		Message: fmt.Sprintf("action %s", actionID),
		Err:     err,
	}
}

// IsValidationError checks if an error is a workflow definition validation error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflictError checks if an error is a conflict error.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFoundError checks if an error references an unknown entity.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsBusinessRuleError checks if an error is a business rule violation.
func IsBusinessRuleError(err error) bool {
	return errors.Is(err, ErrBusinessRule)
}

// IsActionExecutionError checks if an error came from an action executor.
func IsActionExecutionError(err error) bool {
	return errors.Is(err, ErrActionExecution)
}
