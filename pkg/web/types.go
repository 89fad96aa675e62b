package web

import (
	"encoding/json"

	"github.com/dukex/automation/pkg/conditions"
	"github.com/dukex/automation/pkg/models"
)

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string                  `json:"name"                 validate:"required"`
	Description string                  `json:"description"`
	Trigger     models.WorkflowTrigger  `json:"trigger"`
	Actions     []models.WorkflowAction `json:"actions"              validate:"required,min=1"`
	Conditions  []conditions.Condition  `json:"conditions,omitempty" validate:"dive"`
	Active      *bool                   `json:"active,omitempty"`
}

// UpdateWorkflowRequest carries the editable details of a workflow.
type UpdateWorkflowRequest struct {
	Name        string `json:"name"        validate:"required"`
	Description string `json:"description"`
}

// UpdateActionRequest represents a partial action update. A config must be
// sent when the type changes; it is decoded for the resulting type.
type UpdateActionRequest struct {
	Type       *models.ActionType      `json:"type,omitempty"`
	Order      *int                    `json:"order,omitempty"`
	Config     json.RawMessage         `json:"config,omitempty"`
	Conditions *[]conditions.Condition `json:"conditions,omitempty"`
	Delay      *models.Delay           `json:"delay,omitempty"`
	ClearDelay bool                    `json:"clear_delay,omitempty"`
}

// ReorderActionsRequest assigns new orders in bulk.
type ReorderActionsRequest struct {
	Orders []models.ActionOrder `json:"orders" validate:"required,min=1,dive"`
}

// UpdateConditionsRequest replaces the workflow-level conditions.
type UpdateConditionsRequest struct {
	Conditions []conditions.Condition `json:"conditions" validate:"dive"`
}

// IngestEventRequest is a business event posted by the host application.
type IngestEventRequest struct {
	Type    models.TriggerType `json:"type"    validate:"required"`
	Payload map[string]any     `json:"payload"`
}
