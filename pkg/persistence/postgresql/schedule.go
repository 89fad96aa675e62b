package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/automation/pkg/persistence"
)

// ScheduleRepository stores scheduler bookkeeping in schedule_states.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewScheduleRepository creates a new scheduler state repository.
func NewScheduleRepository(db *sql.DB, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger}
}

func (r *ScheduleRepository) Save(ctx context.Context, state *persistence.ScheduleState) error {
	query := `
		INSERT INTO schedule_states (workflow_id, tenant_id, next_run_at, last_run_at, fired_once, fingerprint, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (workflow_id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			next_run_at = EXCLUDED.next_run_at,
			last_run_at = EXCLUDED.last_run_at,
			fired_once = EXCLUDED.fired_once,
			fingerprint = EXCLUDED.fingerprint,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		state.WorkflowID,
		state.TenantID,
		state.NextRunAt,
		state.LastRunAt,
		state.FiredOnce,
		state.Fingerprint,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule state %s: %w", state.WorkflowID, err)
	}

	return nil
}

func (r *ScheduleRepository) Get(ctx context.Context, workflowID string) (*persistence.ScheduleState, error) {
	query := `SELECT workflow_id, tenant_id, next_run_at, last_run_at, fired_once, fingerprint, updated_at
		FROM schedule_states WHERE workflow_id = $1`

	state, err := scanScheduleState(r.db.QueryRowContext(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workflow %s: %w", workflowID, persistence.ErrScheduleStateNotFound)
		}

		return nil, fmt.Errorf("failed to load schedule state %s: %w", workflowID, err)
	}

	return state, nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, workflowID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM schedule_states WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete schedule state %s: %w", workflowID, err)
	}

	return nil
}

func (r *ScheduleRepository) List(ctx context.Context) ([]*persistence.ScheduleState, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT workflow_id, tenant_id, next_run_at, last_run_at, fired_once, fingerprint, updated_at
		FROM schedule_states ORDER BY workflow_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule states: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	states := make([]*persistence.ScheduleState, 0)

	for rows.Next() {
		state, err := scanScheduleState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule state: %w", err)
		}

		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule states: %w", err)
	}

	return states, nil
}

func scanScheduleState(row scanner) (*persistence.ScheduleState, error) {
	var (
		state              persistence.ScheduleState
		nextRunAt, lastRun sql.NullTime
	)

	err := row.Scan(&state.WorkflowID, &state.TenantID, &nextRunAt, &lastRun, &state.FiredOnce, &state.Fingerprint, &state.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if nextRunAt.Valid {
		next := nextRunAt.Time.UTC()
		state.NextRunAt = &next
	}

	if lastRun.Valid {
		last := lastRun.Time.UTC()
		state.LastRunAt = &last
	}

	state.UpdatedAt = state.UpdatedAt.UTC()

	return &state, nil
}
