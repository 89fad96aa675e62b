package workflow

import "errors"

var (
	// ErrExecutionInFlight is returned when a workflow already has a running or suspended execution.
	ErrExecutionInFlight = errors.New("workflow has an execution in flight")
	// ErrExecutionQueueFull is returned when a workflow's pending execution queue is at capacity.
	ErrExecutionQueueFull = errors.New("workflow execution queue is full")
	// ErrInvalidEvent is returned for events without a known type or a tenant,
	// or whose payload uses a reserved key.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrManagerClosed is returned by Dispatch after Shutdown.
	ErrManagerClosed = errors.New("workflow manager is closed")
	// ErrDelaySchedulerStopped is returned when a continuation is scheduled after Stop.
	ErrDelaySchedulerStopped = errors.New("delay scheduler stopped")
	// ErrActionPanicked wraps a panic raised inside an action executor.
	ErrActionPanicked = errors.New("action executor panicked")
)
