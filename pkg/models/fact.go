package models

import "time"

// FactType names something that happened to a workflow aggregate.
type FactType string

const (
	FactWorkflowCreated        FactType = "workflow.created"
	FactWorkflowDetailsUpdated FactType = "workflow.details_updated"
	FactWorkflowActivated      FactType = "workflow.activated"
	FactWorkflowDeactivated    FactType = "workflow.deactivated"
	FactActionAdded            FactType = "workflow.action_added"
	FactActionUpdated          FactType = "workflow.action_updated"
	FactActionRemoved          FactType = "workflow.action_removed"
	FactActionsReordered       FactType = "workflow.actions_reordered"
	FactTriggerUpdated         FactType = "workflow.trigger_updated"
	FactConditionsUpdated      FactType = "workflow.conditions_updated"
	FactWorkflowExecuted       FactType = "workflow.executed"
	FactWorkflowFailed         FactType = "workflow.failed"
)

// Fact is an outbox entry returned by aggregate mutators. The aggregate never
// keeps them; callers publish them after persisting the change.
type Fact struct {
	Type       FactType       `json:"type"`
	WorkflowID string         `json:"workflow_id"`
	TenantID   string         `json:"tenant_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

func (w *Workflow) fact(factType FactType, now time.Time, data map[string]any) Fact {
	return Fact{
		Type:       factType,
		WorkflowID: w.ID,
		TenantID:   w.TenantID,
		OccurredAt: now,
		Data:       data,
	}
}
