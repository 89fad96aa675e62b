package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/persistence"
)

// Dispatcher selects the workflows an event should run. Matched workflows are
// independent of each other and carry no relative order.
type Dispatcher struct {
	workflows persistence.WorkflowRepository
	logger    *slog.Logger
}

func NewDispatcher(workflows persistence.WorkflowRepository, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		workflows: workflows,
		logger:    logger.With("module", "trigger_dispatcher"),
	}
}

// Match returns the active workflows of the event's tenant whose trigger type
// equals the event type and whose conditions hold for the payload. A target
// workflow id on the event narrows the result to that workflow.
func (d *Dispatcher) Match(ctx context.Context, event models.Event) ([]*models.Workflow, error) {
	candidates, err := d.workflows.FindActiveWorkflows(ctx, event.TenantID, event.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to find workflows for %s: %w", event.Type, err)
	}

	matched := make([]*models.Workflow, 0, len(candidates))

	for _, workflow := range candidates {
		if event.TargetWorkflowID != "" && workflow.ID != event.TargetWorkflowID {
			continue
		}

		if !workflow.CanBeTriggered(event.Payload) {
			d.logger.DebugContext(ctx, "Workflow conditions not met",
				"workflow_id", workflow.ID,
				"event_id", event.ID)

			continue
		}

		matched = append(matched, workflow)
	}

	d.logger.InfoContext(ctx, "Completed trigger matching",
		"event_id", event.ID,
		"event_type", event.Type,
		"tenant_id", event.TenantID,
		"candidates", len(candidates),
		"matches_found", len(matched))

	return matched, nil
}
