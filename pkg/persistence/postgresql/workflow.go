package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/automation/pkg/conditions"
	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/persistence"
	"github.com/lib/pq"
)

const workflowColumns = `
	id
  , tenant_id
  , name
  , description
  , trigger_spec
  , actions
  , conditions
  , is_active
  , execution_count
  , failure_count
  , last_executed_at
  , created_at
  , updated_at
`

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

type workflowRow struct {
	trigger    []byte
	actions    []byte
	conditions []byte
}

func encodeWorkflow(workflow *models.Workflow) (workflowRow, error) {
	var (
		row workflowRow
		err error
	)

	row.trigger, err = json.Marshal(workflow.Trigger)
	if err != nil {
		return row, fmt.Errorf("failed to marshal trigger: %w", err)
	}

	row.actions, err = json.Marshal(workflow.Actions)
	if err != nil {
		return row, fmt.Errorf("failed to marshal actions: %w", err)
	}

	conds := workflow.Conditions
	if conds == nil {
		conds = []conditions.Condition{}
	}

	row.conditions, err = json.Marshal(conds)
	if err != nil {
		return row, fmt.Errorf("failed to marshal conditions: %w", err)
	}

	return row, nil
}

// Save inserts a new workflow.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	row, err := encodeWorkflow(workflow)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.TenantID, workflow.ID, err)
	}

	query := `
		INSERT INTO workflows (id, tenant_id, name, description, trigger_type, trigger_spec, actions, conditions,
			is_active, has_schedule, execution_count, failure_count, last_executed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.TenantID,
		workflow.Name,
		workflow.Description,
		workflow.Trigger.Type,
		row.trigger,
		row.actions,
		row.conditions,
		workflow.IsActive,
		workflow.Trigger.HasSchedule(),
		workflow.ExecutionCount,
		workflow.FailureCount,
		workflow.LastExecutedAt,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return persistence.NewWorkflowError("Save", workflow.TenantID, workflow.ID, persistence.ErrWorkflowAlreadyExists)
		}

		return persistence.NewWorkflowError("Save", workflow.TenantID, workflow.ID, err)
	}

	return nil
}

// Update replaces the definition of an existing workflow of the same tenant.
// The execution counters stay as stored and are read back into workflow.
func (r *WorkflowRepository) Update(ctx context.Context, workflow *models.Workflow) error {
	row, err := encodeWorkflow(workflow)
	if err != nil {
		return persistence.NewWorkflowError("Update", workflow.TenantID, workflow.ID, err)
	}

	query := `
		UPDATE workflows SET
			name = $3,
			description = $4,
			trigger_type = $5,
			trigger_spec = $6,
			actions = $7,
			conditions = $8,
			is_active = $9,
			has_schedule = $10,
			updated_at = $11
		WHERE id = $1 AND tenant_id = $2
		RETURNING execution_count, failure_count, last_executed_at
	`

	var lastExecutedAt sql.NullTime

	err = r.db.QueryRowContext(ctx, query,
		workflow.ID,
		workflow.TenantID,
		workflow.Name,
		workflow.Description,
		workflow.Trigger.Type,
		row.trigger,
		row.actions,
		row.conditions,
		workflow.IsActive,
		workflow.Trigger.HasSchedule(),
		workflow.UpdatedAt,
	).Scan(&workflow.ExecutionCount, &workflow.FailureCount, &lastExecutedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewWorkflowError("Update", workflow.TenantID, workflow.ID, persistence.ErrWorkflowNotFound)
		}

		return persistence.NewWorkflowError("Update", workflow.TenantID, workflow.ID, err)
	}

	workflow.LastExecutedAt = nil
	if lastExecutedAt.Valid {
		last := lastExecutedAt.Time.UTC()
		workflow.LastExecutedAt = &last
	}

	return nil
}

// RecordExecution increments the counters in a single statement so that a
// concurrent definition update is never overwritten.
func (r *WorkflowRepository) RecordExecution(
	ctx context.Context, execution *models.WorkflowExecution, now time.Time,
) (*models.Workflow, error) {
	failed := 0
	if !execution.Success {
		failed = 1
	}

	query := `
		UPDATE workflows SET
			execution_count = execution_count + 1,
			failure_count = failure_count + $3,
			last_executed_at = $4
		WHERE id = $1 AND tenant_id = $2
		RETURNING ` + workflowColumns

	row := r.db.QueryRowContext(ctx, query, execution.WorkflowID, execution.TenantID, failed, execution.ExecutedAt(now))

	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("RecordExecution", execution.TenantID, execution.WorkflowID, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("RecordExecution", execution.TenantID, execution.WorkflowID, err)
	}

	return workflow, nil
}

// Delete removes a workflow. Missing workflows are not an error.
func (r *WorkflowRepository) Delete(ctx context.Context, tenantID, workflowID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1 AND tenant_id = $2`, workflowID, tenantID)
	if err != nil {
		return persistence.NewWorkflowError("Delete", tenantID, workflowID, err)
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, tenantID, workflowID string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1 AND tenant_id = $2`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, workflowID, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", tenantID, workflowID, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("GetByID", tenantID, workflowID, err)
	}

	return workflow, nil
}

// ListWorkflows filters, sorts and paginates in SQL. Sort columns come from
// the allowlist only.
func (r *WorkflowRepository) ListWorkflows(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	if err := opts.Normalize(); err != nil {
		return nil, err
	}

	where, args := listFilters(opts)

	var totalCount int64

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflows`+where, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count workflows: %w", err)
	}

	order := "ASC"
	if opts.SortOrder == "desc" {
		order = "DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM workflows%s ORDER BY %s %s, id LIMIT $%d OFFSET $%d`,
		workflowColumns, where, opts.SortBy, order, len(args)+1, len(args)+2)

	workflows, err := r.query(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, err
	}

	return &persistence.WorkflowListResult{
		Workflows:   workflows,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(workflows)) < totalCount,
	}, nil
}

func listFilters(opts persistence.ListWorkflowsOptions) (string, []any) {
	var (
		clauses []string
		args    []any
	)

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if opts.TenantID != "" {
		add("tenant_id = $%d", opts.TenantID)
	}

	if opts.Search != "" {
		add("(name ILIKE $%[1]d OR description ILIKE $%[1]d)", "%"+opts.Search+"%")
	}

	if opts.TriggerType != "" {
		add("trigger_type = $%d", opts.TriggerType)
	}

	if opts.Active != nil {
		add("is_active = $%d", *opts.Active)
	}

	if opts.HasSchedule != nil {
		add("has_schedule = $%d", *opts.HasSchedule)
	}

	if len(clauses) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *WorkflowRepository) FindByTriggerType(ctx context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE tenant_id = $1 AND trigger_type = $2 ORDER BY created_at`

	return r.query(ctx, query, tenantID, triggerType)
}

func (r *WorkflowRepository) FindActiveWorkflows(ctx context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows
		WHERE tenant_id = $1 AND trigger_type = $2 AND is_active ORDER BY created_at`

	return r.query(ctx, query, tenantID, triggerType)
}

func (r *WorkflowRepository) FindScheduledWorkflows(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows
		WHERE has_schedule AND is_active AND ($1::text = '' OR tenant_id = $1) ORDER BY created_at`

	return r.query(ctx, query, tenantID)
}

func (r *WorkflowRepository) query(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row scanner) (*models.Workflow, error) {
	var (
		workflow                models.Workflow
		trigger, actions, conds []byte
		lastExecutedAt          sql.NullTime
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.TenantID,
		&workflow.Name,
		&workflow.Description,
		&trigger,
		&actions,
		&conds,
		&workflow.IsActive,
		&workflow.ExecutionCount,
		&workflow.FailureCount,
		&lastExecutedAt,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(trigger, &workflow.Trigger); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger: %w", err)
	}

	if err := json.Unmarshal(actions, &workflow.Actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
	}

	if err := json.Unmarshal(conds, &workflow.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}

	if lastExecutedAt.Valid {
		last := lastExecutedAt.Time.UTC()
		workflow.LastExecutedAt = &last
	}

	workflow.CreatedAt = workflow.CreatedAt.UTC()
	workflow.UpdatedAt = workflow.UpdatedAt.UTC()

	return &workflow, nil
}
