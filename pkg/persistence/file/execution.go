package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dukex/automation/pkg/models"
)

// ExecutionRepository appends execution records as one JSON file each under
// <root>/tenants/<tenant>/executions/<workflow>/<execution>.json.
type ExecutionRepository struct {
	root string
	mu   sync.RWMutex
}

// NewExecutionRepository creates a new execution history repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (er *ExecutionRepository) workflowDir(tenantID, workflowID string) string {
	return filepath.Join(er.root, "tenants", tenantID, "executions", workflowID)
}

func (er *ExecutionRepository) Append(_ context.Context, execution *models.WorkflowExecution) error {
	if err := validateKeys(execution.TenantID, execution.WorkflowID); err != nil {
		return err
	}

	if err := validateID(execution.ID); err != nil {
		return err
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	path := filepath.Join(er.workflowDir(execution.TenantID, execution.WorkflowID), execution.ID+".json")
	if err := writeJSON(path, execution); err != nil {
		return fmt.Errorf("failed to append execution %s: %w", execution.ID, err)
	}

	return nil
}

func (er *ExecutionRepository) GetByWorkflow(_ context.Context, tenantID, workflowID string, limit int) ([]*models.WorkflowExecution, error) {
	if err := validateKeys(tenantID, workflowID); err != nil {
		return nil, err
	}

	er.mu.RLock()
	executions, err := er.loadDir(er.workflowDir(tenantID, workflowID))
	er.mu.RUnlock()

	if err != nil {
		return nil, err
	}

	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

func (er *ExecutionRepository) Stats(_ context.Context, tenantID, workflowID string) (models.ExecutionStats, error) {
	if err := validateID(tenantID); err != nil {
		return models.ExecutionStats{}, err
	}

	dirs := []string{}

	if workflowID != "" {
		if err := validateID(workflowID); err != nil {
			return models.ExecutionStats{}, err
		}

		dirs = append(dirs, er.workflowDir(tenantID, workflowID))
	} else {
		base := filepath.Join(er.root, "tenants", tenantID, "executions")

		entries, err := os.ReadDir(base)
		if err != nil && !os.IsNotExist(err) {
			return models.ExecutionStats{}, fmt.Errorf("failed to list executions: %w", err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				dirs = append(dirs, filepath.Join(base, entry.Name()))
			}
		}
	}

	er.mu.RLock()
	defer er.mu.RUnlock()

	var (
		succeeded, failed int64
		last              *time.Time
	)

	for _, dir := range dirs {
		executions, err := er.loadDir(dir)
		if err != nil {
			return models.ExecutionStats{}, err
		}

		for _, execution := range executions {
			if execution.CompletedAt == nil {
				continue
			}

			if execution.Success {
				succeeded++
			} else {
				failed++
			}

			if last == nil || execution.CompletedAt.After(*last) {
				completed := *execution.CompletedAt
				last = &completed
			}
		}
	}

	return models.NewExecutionStats(succeeded, failed, last), nil
}

func (er *ExecutionRepository) loadDir(dir string) ([]*models.WorkflowExecution, error) {
	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	executions := make([]*models.WorkflowExecution, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		var execution models.WorkflowExecution
		if err := readJSON(filepath.Join(dir, file), &execution); err != nil {
			return nil, err
		}

		executions = append(executions, &execution)
	}

	return executions, nil
}
