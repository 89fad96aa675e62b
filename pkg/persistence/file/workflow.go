package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/persistence"
)

// WorkflowRepository stores one JSON document per workflow under
// <root>/tenants/<tenant>/workflows/<id>.json.
type WorkflowRepository struct {
	root string
	mu   sync.RWMutex
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

func (wr *WorkflowRepository) tenantsDir() string {
	return filepath.Join(wr.root, "tenants")
}

func (wr *WorkflowRepository) workflowPath(tenantID, workflowID string) string {
	return filepath.Join(wr.tenantsDir(), tenantID, "workflows", workflowID+".json")
}

func validateKeys(tenantID, workflowID string) error {
	if err := validateID(tenantID); err != nil {
		return err
	}

	return validateID(workflowID)
}

// Save inserts a new workflow.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	if err := validateKeys(workflow.TenantID, workflow.ID); err != nil {
		return persistence.NewWorkflowError("Save", workflow.TenantID, workflow.ID, err)
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	path := wr.workflowPath(workflow.TenantID, workflow.ID)
	if _, err := os.Stat(path); err == nil {
		return persistence.NewWorkflowError("Save", workflow.TenantID, workflow.ID, persistence.ErrWorkflowAlreadyExists)
	}

	if err := writeJSON(path, workflow); err != nil {
		return persistence.NewWorkflowError("Save", workflow.TenantID, workflow.ID, err)
	}

	return nil
}

// Update replaces the definition of an existing workflow, keeping the stored
// execution counters.
func (wr *WorkflowRepository) Update(_ context.Context, workflow *models.Workflow) error {
	if err := validateKeys(workflow.TenantID, workflow.ID); err != nil {
		return persistence.NewWorkflowError("Update", workflow.TenantID, workflow.ID, err)
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	current, err := wr.load(workflow.TenantID, workflow.ID)
	if err != nil {
		return persistence.NewWorkflowError("Update", workflow.TenantID, workflow.ID, errors.Unwrap(err))
	}

	workflow.ExecutionCount = current.ExecutionCount
	workflow.FailureCount = current.FailureCount
	workflow.LastExecutedAt = current.LastExecutedAt

	if err := writeJSON(wr.workflowPath(workflow.TenantID, workflow.ID), workflow); err != nil {
		return persistence.NewWorkflowError("Update", workflow.TenantID, workflow.ID, err)
	}

	return nil
}

// RecordExecution updates the counters of the stored workflow in place.
func (wr *WorkflowRepository) RecordExecution(_ context.Context, execution *models.WorkflowExecution, now time.Time) (*models.Workflow, error) {
	tenantID, workflowID := execution.TenantID, execution.WorkflowID

	if err := validateKeys(tenantID, workflowID); err != nil {
		return nil, persistence.NewWorkflowError("RecordExecution", tenantID, workflowID, err)
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflow, err := wr.load(tenantID, workflowID)
	if err != nil {
		return nil, persistence.NewWorkflowError("RecordExecution", tenantID, workflowID, errors.Unwrap(err))
	}

	workflow.RecordExecution(now, execution)

	if err := writeJSON(wr.workflowPath(tenantID, workflowID), workflow); err != nil {
		return nil, persistence.NewWorkflowError("RecordExecution", tenantID, workflowID, err)
	}

	return workflow, nil
}

// Delete removes a workflow by its ID.
func (wr *WorkflowRepository) Delete(_ context.Context, tenantID, workflowID string) error {
	if err := validateKeys(tenantID, workflowID); err != nil {
		return persistence.NewWorkflowError("Delete", tenantID, workflowID, err)
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	err := os.Remove(wr.workflowPath(tenantID, workflowID))
	if err != nil && !os.IsNotExist(err) {
		return persistence.NewWorkflowError("Delete", tenantID, workflowID, err)
	}

	return nil
}

// GetByID retrieves a workflow of the tenant by its ID.
func (wr *WorkflowRepository) GetByID(_ context.Context, tenantID, workflowID string) (*models.Workflow, error) {
	if err := validateKeys(tenantID, workflowID); err != nil {
		return nil, persistence.NewWorkflowError("GetByID", tenantID, workflowID, err)
	}

	wr.mu.RLock()
	defer wr.mu.RUnlock()

	return wr.load(tenantID, workflowID)
}

func (wr *WorkflowRepository) load(tenantID, workflowID string) (*models.Workflow, error) {
	var workflow models.Workflow

	err := readJSON(wr.workflowPath(tenantID, workflowID), &workflow)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewWorkflowError("GetByID", tenantID, workflowID, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("GetByID", tenantID, workflowID, err)
	}

	return &workflow, nil
}

// ListWorkflows returns paginated and filtered workflows with in-memory operations.
func (wr *WorkflowRepository) ListWorkflows(_ context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	if err := opts.Normalize(); err != nil {
		return nil, err
	}

	wr.mu.RLock()
	all, err := wr.loadTenants(opts.TenantID)
	wr.mu.RUnlock()

	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Workflow, 0, len(all))

	for _, workflow := range all {
		if matches(workflow, opts) {
			filtered = append(filtered, workflow)
		}
	}

	sortWorkflows(filtered, opts.SortBy, opts.SortOrder)

	totalCount := int64(len(filtered))
	if opts.Offset >= len(filtered) {
		return &persistence.WorkflowListResult{
			Workflows:   make([]*models.Workflow, 0),
			TotalCount:  totalCount,
			HasNextPage: false,
		}, nil
	}

	endIdx := min(opts.Offset+opts.Limit, len(filtered))

	return &persistence.WorkflowListResult{
		Workflows:   filtered[opts.Offset:endIdx],
		TotalCount:  totalCount,
		HasNextPage: endIdx < len(filtered),
	}, nil
}

func (wr *WorkflowRepository) FindByTriggerType(_ context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	return wr.find(tenantID, func(w *models.Workflow) bool {
		return w.Trigger.Type == triggerType
	})
}

func (wr *WorkflowRepository) FindActiveWorkflows(_ context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	return wr.find(tenantID, func(w *models.Workflow) bool {
		return w.IsActive && w.Trigger.Type == triggerType
	})
}

func (wr *WorkflowRepository) FindScheduledWorkflows(_ context.Context, tenantID string) ([]*models.Workflow, error) {
	return wr.find(tenantID, func(w *models.Workflow) bool {
		return w.IsActive && w.Trigger.HasSchedule()
	})
}

func (wr *WorkflowRepository) find(tenantID string, keep func(*models.Workflow) bool) ([]*models.Workflow, error) {
	wr.mu.RLock()
	all, err := wr.loadTenants(tenantID)
	wr.mu.RUnlock()

	if err != nil {
		return nil, err
	}

	out := make([]*models.Workflow, 0)

	for _, workflow := range all {
		if keep(workflow) {
			out = append(out, workflow)
		}
	}

	sortWorkflows(out, "created_at", "asc")

	return out, nil
}

// loadTenants reads every workflow of tenantID, or of all tenants when empty.
func (wr *WorkflowRepository) loadTenants(tenantID string) ([]*models.Workflow, error) {
	tenants := []string{tenantID}

	if tenantID == "" {
		entries, err := os.ReadDir(wr.tenantsDir())
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}

			return nil, fmt.Errorf("failed to list tenants: %w", err)
		}

		tenants = tenants[:0]

		for _, entry := range entries {
			if entry.IsDir() {
				tenants = append(tenants, entry.Name())
			}
		}
	} else if err := validateID(tenantID); err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0)

	for _, tenant := range tenants {
		jsonFiles, err := fs.Glob(os.DirFS(filepath.Join(wr.tenantsDir(), tenant, "workflows")), "*.json")
		if err != nil {
			return nil, fmt.Errorf("failed to list workflow files: %w", err)
		}

		for _, file := range jsonFiles {
			workflow, err := wr.load(tenant, strings.TrimSuffix(file, ".json"))
			if err != nil {
				if persistence.IsWorkflowNotFound(err) {
					continue
				}

				return nil, err
			}

			workflows = append(workflows, workflow)
		}
	}

	return workflows, nil
}

func matches(workflow *models.Workflow, opts persistence.ListWorkflowsOptions) bool {
	if opts.Search != "" {
		needle := strings.ToLower(opts.Search)
		if !strings.Contains(strings.ToLower(workflow.Name), needle) &&
			!strings.Contains(strings.ToLower(workflow.Description), needle) {
			return false
		}
	}

	if opts.TriggerType != "" && workflow.Trigger.Type != opts.TriggerType {
		return false
	}

	if opts.Active != nil && workflow.IsActive != *opts.Active {
		return false
	}

	if opts.HasSchedule != nil && workflow.Trigger.HasSchedule() != *opts.HasSchedule {
		return false
	}

	return true
}

// sortWorkflows sorts workflows in-place based on the specified field and order.
func sortWorkflows(workflows []*models.Workflow, sortBy, sortOrder string) {
	sort.SliceStable(workflows, func(i, j int) bool {
		a, b := workflows[i], workflows[j]
		if sortOrder == "desc" {
			a, b = b, a
		}

		switch sortBy {
		case "updated_at":
			return a.UpdatedAt.Before(b.UpdatedAt)
		case "name":
			return a.Name < b.Name
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
}
