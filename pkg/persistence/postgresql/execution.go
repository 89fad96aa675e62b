package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/automation/pkg/models"
)

// ExecutionRepository stores execution history in workflow_executions.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution history repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (r *ExecutionRepository) Append(ctx context.Context, execution *models.WorkflowExecution) error {
	triggerData, err := json.Marshal(orEmptyMap(execution.TriggerData))
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	outcomes, err := json.Marshal(orEmptySlice(execution.Outcomes))
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}

	errs, err := json.Marshal(orEmptySlice(execution.Errors))
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}

	query := `
		INSERT INTO workflow_executions (id, tenant_id, workflow_id, trigger_type, trigger_data, outcomes,
			actions_executed, success, errors, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.TenantID,
		execution.WorkflowID,
		execution.TriggerType,
		triggerData,
		outcomes,
		execution.ActionsExecuted,
		execution.Success,
		errs,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append execution %s: %w", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByWorkflow(ctx context.Context, tenantID, workflowID string, limit int) ([]*models.WorkflowExecution, error) {
	query := `
		SELECT id, tenant_id, workflow_id, trigger_type, trigger_data, outcomes,
			actions_executed, success, errors, started_at, completed_at
		FROM workflow_executions
		WHERE tenant_id = $1 AND workflow_id = $2
		ORDER BY started_at DESC, id
	`
	args := []any{tenantID, workflowID}

	if limit > 0 {
		query += ` LIMIT $3`

		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		var (
			execution                           models.WorkflowExecution
			triggerData, outcomes, errorsColumn []byte
			completedAt                         sql.NullTime
		)

		err := rows.Scan(
			&execution.ID,
			&execution.TenantID,
			&execution.WorkflowID,
			&execution.TriggerType,
			&triggerData,
			&outcomes,
			&execution.ActionsExecuted,
			&execution.Success,
			&errorsColumn,
			&execution.StartedAt,
			&completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		if err := json.Unmarshal(triggerData, &execution.TriggerData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
		}

		if err := json.Unmarshal(outcomes, &execution.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outcomes: %w", err)
		}

		if err := json.Unmarshal(errorsColumn, &execution.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal errors: %w", err)
		}

		execution.StartedAt = execution.StartedAt.UTC()

		if completedAt.Valid {
			completed := completedAt.Time.UTC()
			execution.CompletedAt = &completed
		}

		executions = append(executions, &execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func (r *ExecutionRepository) Stats(ctx context.Context, tenantID, workflowID string) (models.ExecutionStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE success)
		  , COUNT(*) FILTER (WHERE NOT success)
		  , MAX(completed_at)
		FROM workflow_executions
		WHERE tenant_id = $1 AND ($2::text = '' OR workflow_id = $2) AND completed_at IS NOT NULL
	`

	var (
		succeeded, failed int64
		last              sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, tenantID, workflowID).Scan(&succeeded, &failed, &last)
	if err != nil {
		return models.ExecutionStats{}, fmt.Errorf("failed to compute execution stats: %w", err)
	}

	if !last.Valid {
		return models.NewExecutionStats(succeeded, failed, nil), nil
	}

	lastExecutedAt := last.Time.UTC()

	return models.NewExecutionStats(succeeded, failed, &lastExecutedAt), nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	return m
}

func orEmptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}
