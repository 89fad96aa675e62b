package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/automation/pkg/conditions"
	"github.com/dukex/automation/pkg/eventbus"
	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/persistence"
	"github.com/jonboulle/clockwork"
)

// Workflow loads the aggregate, applies one mutator, persists it and then
// publishes the facts the mutator returned.
type Workflow struct {
	persistence persistence.Persistence
	facts       eventbus.FactPublisher
	clock       clockwork.Clock
	ids         models.IDGenerator
	logger      *slog.Logger
}

type Option func(*Workflow)

func WithClock(clock clockwork.Clock) Option {
	return func(w *Workflow) { w.clock = clock }
}

func WithIDGenerator(ids models.IDGenerator) Option {
	return func(w *Workflow) { w.ids = ids }
}

// NewWorkflow creates a new workflow service. facts may be nil.
func NewWorkflow(persistence persistence.Persistence, facts eventbus.FactPublisher, logger *slog.Logger, opts ...Option) *Workflow {
	w := &Workflow{
		persistence: persistence,
		facts:       facts,
		clock:       clockwork.NewRealClock(),
		ids:         models.UUIDGenerator{},
		logger:      logger.With("module", "workflow_service"),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	TenantID string

	// Pagination
	Limit  int
	Offset int

	// Filtering
	Search      string
	TriggerType models.TriggerType
	Active      *bool
	HasSchedule *bool

	// Sorting
	SortBy    string
	SortOrder string
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// ListWorkflows retrieves the tenant's workflows with filtering, sorting, and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, ErrTenantRequired
	}

	if req.TriggerType != "" && !req.TriggerType.Valid() {
		return nil, NewValidationError("ListWorkflows", "INVALID_TRIGGER_TYPE",
			fmt.Sprintf("invalid trigger type '%s'", req.TriggerType), ErrInvalidRequest)
	}

	opts := persistence.ListWorkflowsOptions{
		TenantID:    req.TenantID,
		Search:      strings.TrimSpace(req.Search),
		TriggerType: req.TriggerType,
		Active:      req.Active,
		HasSchedule: req.HasSchedule,
		Limit:       req.Limit,
		Offset:      req.Offset,
		SortBy:      req.SortBy,
		SortOrder:   req.SortOrder,
	}

	result, err := w.persistence.WorkflowRepository().ListWorkflows(ctx, opts)
	if err != nil {
		switch {
		case persistence.IsInvalidSortField(err):
			return nil, NewValidationError("ListWorkflows", "INVALID_SORT_FIELD",
				fmt.Sprintf("invalid sort field '%s', allowed: created_at, updated_at, name", req.SortBy), ErrInvalidSortField)
		case persistence.IsInvalidSortOrder(err):
			return nil, NewValidationError("ListWorkflows", "INVALID_SORT_ORDER",
				fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder), ErrInvalidSortOrder)
		}

		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return &ListWorkflowsResponse{
		Workflows:   result.Workflows,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// FetchByID retrieves a workflow of the tenant by its ID.
func (w *Workflow) FetchByID(ctx context.Context, tenantID, workflowID string) (*models.Workflow, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrTenantRequired
	}

	return w.persistence.WorkflowRepository().GetByID(ctx, tenantID, workflowID)
}

// CreateWorkflowRequest is the definition of a new workflow.
type CreateWorkflowRequest struct {
	TenantID    string
	Name        string
	Description string
	Trigger     models.WorkflowTrigger
	Actions     []models.WorkflowAction
	Conditions  []conditions.Condition
	Inactive    bool
}

// Create validates the definition and stores the new workflow.
func (w *Workflow) Create(ctx context.Context, req CreateWorkflowRequest) (*models.Workflow, error) {
	workflow, facts, err := models.NewWorkflow(w.ids, w.clock.Now().UTC(), models.NewWorkflowParams{
		TenantID:    req.TenantID,
		Name:        req.Name,
		Description: req.Description,
		Trigger:     req.Trigger,
		Actions:     req.Actions,
		Conditions:  req.Conditions,
		Inactive:    req.Inactive,
	})
	if err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.publish(ctx, facts)

	return workflow, nil
}

func (w *Workflow) UpdateDetails(ctx context.Context, tenantID, workflowID, name, description string) (*models.Workflow, error) {
	return w.mutate(ctx, tenantID, workflowID, func(workflow *models.Workflow, now time.Time) ([]models.Fact, error) {
		return workflow.UpdateDetails(now, name, description)
	})
}

func (w *Workflow) AddAction(ctx context.Context, tenantID, workflowID string, action models.WorkflowAction) (*models.Workflow, error) {
	return w.mutate(ctx, tenantID, workflowID, func(workflow *models.Workflow, now time.Time) ([]models.Fact, error) {
		return workflow.AddAction(w.ids, now, action)
	})
}

func (w *Workflow) UpdateAction(ctx context.Context, tenantID, workflowID, actionID string, update models.ActionUpdate) (*models.Workflow, error) {
	return w.mutate(ctx, tenantID, workflowID, func(workflow *models.Workflow, now time.Time) ([]models.Fact, error) {
		return workflow.UpdateAction(now, actionID, update)
	})
}

func (w *Workflow) RemoveAction(ctx context.Context, tenantID, workflowID, actionID string) (*models.Workflow, error) {
	return w.mutate(ctx, tenantID, workflowID, func(workflow *models.Workflow, now time.Time) ([]models.Fact, error) {
		return workflow.RemoveAction(now, actionID)
	})
}

func (w *Workflow) ReorderActions(ctx context.Context, tenantID, workflowID string, orders []models.ActionOrder) (*models.Workflow, error) {
	return w.mutate(ctx, tenantID, workflowID, func(workflow *models.Workflow, now time.Time) ([]models.Fact, error) {
		return workflow.ReorderActions(now, orders)
	})
}

func (w *Workflow) UpdateTrigger(ctx context.Context, tenantID, workflowID string, trigger models.WorkflowTrigger) (*models.Workflow, error) {
	return w.mutate(ctx, tenantID, workflowID, func(workflow *models.Workflow, now time.Time) ([]models.Fact, error) {
		return workflow.UpdateTrigger(now, trigger)
	})
}

func (w *Workflow) UpdateConditions(ctx context.Context, tenantID, workflowID string, conds []conditions.Condition) (*models.Workflow, error) {
	return w.mutate(ctx, tenantID, workflowID, func(workflow *models.Workflow, now time.Time) ([]models.Fact, error) {
		return workflow.UpdateConditions(now, conds)
	})
}

func (w *Workflow) Activate(ctx context.Context, tenantID, workflowID string) (*models.Workflow, error) {
	return w.mutate(ctx, tenantID, workflowID, func(workflow *models.Workflow, now time.Time) ([]models.Fact, error) {
		return workflow.Activate(now)
	})
}

func (w *Workflow) Deactivate(ctx context.Context, tenantID, workflowID string) (*models.Workflow, error) {
	return w.mutate(ctx, tenantID, workflowID, func(workflow *models.Workflow, now time.Time) ([]models.Fact, error) {
		return workflow.Deactivate(now), nil
	})
}

// Delete removes a workflow of the tenant.
func (w *Workflow) Delete(ctx context.Context, tenantID, workflowID string) error {
	if _, err := w.FetchByID(ctx, tenantID, workflowID); err != nil {
		return err
	}

	if err := w.persistence.WorkflowRepository().Delete(ctx, tenantID, workflowID); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow deleted", "tenant_id", tenantID, "workflow_id", workflowID)

	return nil
}

// Executions returns the workflow's execution history, newest first.
func (w *Workflow) Executions(ctx context.Context, tenantID, workflowID string, limit int) ([]*models.WorkflowExecution, error) {
	if _, err := w.FetchByID(ctx, tenantID, workflowID); err != nil {
		return nil, err
	}

	return w.persistence.ExecutionRepository().GetByWorkflow(ctx, tenantID, workflowID, limit)
}

// Stats aggregates execution history. An empty workflow id covers the whole tenant.
func (w *Workflow) Stats(ctx context.Context, tenantID, workflowID string) (models.ExecutionStats, error) {
	if strings.TrimSpace(tenantID) == "" {
		return models.ExecutionStats{}, ErrTenantRequired
	}

	if workflowID != "" {
		if _, err := w.FetchByID(ctx, tenantID, workflowID); err != nil {
			return models.ExecutionStats{}, err
		}
	}

	return w.persistence.ExecutionRepository().Stats(ctx, tenantID, workflowID)
}

type mutator func(workflow *models.Workflow, now time.Time) ([]models.Fact, error)

func (w *Workflow) mutate(ctx context.Context, tenantID, workflowID string, fn mutator) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	facts, err := fn(workflow, w.clock.Now().UTC())
	if err != nil {
		return nil, err
	}

	if len(facts) == 0 {
		return workflow, nil
	}

	if err := w.persistence.WorkflowRepository().Update(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	w.publish(ctx, facts)

	return workflow, nil
}

func (w *Workflow) publish(ctx context.Context, facts []models.Fact) {
	if w.facts == nil || len(facts) == 0 {
		return
	}

	if err := w.facts.PublishFacts(ctx, facts); err != nil {
		w.logger.ErrorContext(ctx, "Failed to publish workflow facts", "error", err)
	}
}
