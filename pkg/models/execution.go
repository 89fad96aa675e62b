package models

import "time"

// Event is an incoming business event offered to the dispatcher.
type Event struct {
	ID         string         `json:"id"`
	Type       TriggerType    `json:"type"                         validate:"required"`
	TenantID   string         `json:"tenant_id"                    validate:"required"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`

	// TargetWorkflowID restricts dispatch to one workflow. Set on scheduler ticks.
	TargetWorkflowID string `json:"target_workflow_id,omitempty"`
}

// ActionStatus is the outcome of one action within an execution.
type ActionStatus string

const (
	ActionStatusSucceeded ActionStatus = "succeeded"
	ActionStatusFailed    ActionStatus = "failed"
	ActionStatusSkipped   ActionStatus = "skipped"
	ActionStatusWaited    ActionStatus = "waited"
)

// ActionOutcome records what happened to a single action.
type ActionOutcome struct {
	ActionID    string       `json:"action_id"`
	Type        ActionType   `json:"type"`
	Order       int          `json:"order"`
	Status      ActionStatus `json:"status"`
	Result      any          `json:"result,omitempty"`
	Error       string       `json:"error,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
}

// WorkflowExecution is one end-to-end run of a pipeline, as stored in the history sink.
type WorkflowExecution struct {
	ID              string          `json:"id"`
	WorkflowID      string          `json:"workflow_id"`
	TenantID        string          `json:"tenant_id"`
	TriggerType     TriggerType     `json:"trigger_type"`
	TriggerData     map[string]any  `json:"trigger_data,omitempty"`
	Outcomes        []ActionOutcome `json:"outcomes"`
	ActionsExecuted int             `json:"actions_executed"`
	Success         bool            `json:"success"`
	Errors          []string        `json:"errors,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Complete closes the record. Success is derived from the accumulated errors only.
func (e *WorkflowExecution) Complete(now time.Time) {
	e.Success = len(e.Errors) == 0
	e.CompletedAt = &now
}

// ExecutedAt is the completion time, or fallback while still running.
func (e *WorkflowExecution) ExecutedAt(fallback time.Time) time.Time {
	if e.CompletedAt != nil {
		return *e.CompletedAt
	}

	return fallback
}

// Duration is zero until the execution completes.
func (e *WorkflowExecution) Duration() time.Duration {
	if e.CompletedAt == nil {
		return 0
	}

	return e.CompletedAt.Sub(e.StartedAt)
}

// ExecutionResult is what ExecuteWorkflow hands back to its caller.
type ExecutionResult struct {
	ExecutionID     string     `json:"execution_id,omitempty"`
	WorkflowID      string     `json:"workflow_id"`
	Success         bool       `json:"success"`
	ActionsExecuted int        `json:"actions_executed"`
	Errors          []string   `json:"errors,omitempty"`
	Suspended       bool       `json:"suspended,omitempty"`
	ResumeAt        *time.Time `json:"resume_at,omitempty"`
}

// ExecutionStats aggregates execution history for reporting.
type ExecutionStats struct {
	Total          int64      `json:"total"`
	Succeeded      int64      `json:"succeeded"`
	Failed         int64      `json:"failed"`
	SuccessRate    float64    `json:"success_rate"`
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`
}

// NewExecutionStats derives the success rate from the counters.
func NewExecutionStats(succeeded, failed int64, last *time.Time) ExecutionStats {
	stats := ExecutionStats{
		Total:          succeeded + failed,
		Succeeded:      succeeded,
		Failed:         failed,
		LastExecutedAt: last,
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(succeeded) / float64(stats.Total)
	}

	return stats
}
