// Package persistence provides the storage abstraction for workflows, execution history and scheduler state.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/automation/pkg/models"
)

// Persistence groups the repositories of one storage backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	ScheduleRepository() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository is the tenant-scoped workflow store.
type WorkflowRepository interface {
	// Save inserts a new workflow. Fails with ErrWorkflowAlreadyExists on id collision.
	Save(ctx context.Context, workflow *models.Workflow) error

	// Update replaces the definition of an existing workflow. The execution
	// counters are kept as stored and copied back onto workflow. Fails with
	// ErrWorkflowNotFound.
	Update(ctx context.Context, workflow *models.Workflow) error

	// RecordExecution applies a finished execution to the stored counters
	// without touching the definition or the activation state, and returns the
	// updated workflow. Fails with ErrWorkflowNotFound.
	RecordExecution(ctx context.Context, execution *models.WorkflowExecution, now time.Time) (*models.Workflow, error)

	// Delete removes a workflow. Deleting a missing workflow is not an error.
	Delete(ctx context.Context, tenantID, workflowID string) error

	// GetByID fails with ErrWorkflowNotFound when the workflow does not exist in the tenant.
	GetByID(ctx context.Context, tenantID, workflowID string) (*models.Workflow, error)

	ListWorkflows(ctx context.Context, opts ListWorkflowsOptions) (*WorkflowListResult, error)

	// FindByTriggerType returns active and inactive workflows of the tenant with the trigger type.
	FindByTriggerType(ctx context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error)

	// FindActiveWorkflows returns the active workflows of the tenant with the trigger type.
	FindActiveWorkflows(ctx context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error)

	// FindScheduledWorkflows returns active SCHEDULED workflows. An empty tenant means all tenants.
	FindScheduledWorkflows(ctx context.Context, tenantID string) ([]*models.Workflow, error)
}

// ListWorkflowsOptions filters and paginates ListWorkflows.
type ListWorkflowsOptions struct {
	TenantID    string
	Search      string
	TriggerType models.TriggerType
	Active      *bool
	HasSchedule *bool

	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// WorkflowListResult is one page of workflows.
type WorkflowListResult struct {
	Workflows   []*models.Workflow
	TotalCount  int64
	HasNextPage bool
}

// ExecutionRepository is the execution history sink.
type ExecutionRepository interface {
	Append(ctx context.Context, execution *models.WorkflowExecution) error

	// GetByWorkflow returns executions newest first. A non-positive limit means no limit.
	GetByWorkflow(ctx context.Context, tenantID, workflowID string, limit int) ([]*models.WorkflowExecution, error)

	// Stats aggregates completed executions. An empty workflow id covers the whole tenant.
	Stats(ctx context.Context, tenantID, workflowID string) (models.ExecutionStats, error)
}

// ScheduleState is the scheduler's bookkeeping for one SCHEDULED workflow.
type ScheduleState struct {
	WorkflowID  string     `json:"workflow_id"`
	TenantID    string     `json:"tenant_id"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	FiredOnce   bool       `json:"fired_once"`
	Fingerprint string     `json:"fingerprint"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ScheduleRepository stores scheduler state keyed by workflow id.
type ScheduleRepository interface {
	Save(ctx context.Context, state *ScheduleState) error

	// Get fails with ErrScheduleStateNotFound.
	Get(ctx context.Context, workflowID string) (*ScheduleState, error)
	Delete(ctx context.Context, workflowID string) error
	List(ctx context.Context) ([]*ScheduleState, error)
}

// Sort fields accepted by ListWorkflows.
var AllowedSortFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"name":       true,
}

// Normalize applies list defaults and validates the sort parameters.
func (o *ListWorkflowsOptions) Normalize() error {
	if o.Limit <= 0 || o.Limit > 100 {
		o.Limit = 20
	}

	if o.Offset < 0 {
		o.Offset = 0
	}

	if o.SortBy == "" {
		o.SortBy = "created_at"
	}

	if o.SortOrder == "" {
		o.SortOrder = "desc"
	}

	if !AllowedSortFields[o.SortBy] {
		return ErrInvalidSortField
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		return ErrInvalidSortOrder
	}

	return nil
}
