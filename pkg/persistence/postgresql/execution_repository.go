package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cadencehq/cadence/pkg/models"
	"github.com/cadencehq/cadence/pkg/persistence"
)

// ExecutionRepository handles executions, their step ledger and their
// diagnostic logs.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id
  , workflow_id
  , lead_id
  , status
  , trigger_data
  , resume_from
  , resume_at
  , started_at
  , completed_at
  , error_message
  , created_at
  , updated_at
`

// GetByID returns an execution by its ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+executionColumns+" FROM executions WHERE id = $1", id)

	execution, err := r.scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("ExecutionByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// Save upserts the execution row.
func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	triggerData, err := json.Marshal(execution.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	query := `
		INSERT INTO executions (id, workflow_id, lead_id, status, trigger_data, resume_from, resume_at, started_at, completed_at, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			resume_from = EXCLUDED.resume_from,
			resume_at = EXCLUDED.resume_at,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.LeadID,
		execution.Status,
		triggerData,
		execution.ResumeFrom,
		execution.ResumeAt,
		execution.StartedAt,
		execution.CompletedAt,
		execution.ErrorMessage,
		execution.CreatedAt,
		execution.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", execution.ID, err)
	}

	return nil
}

// PausedDue returns paused executions whose resume time passed before the
// given instant.
func (r *ExecutionRepository) PausedDue(ctx context.Context, before time.Time) ([]*models.Execution, error) {
	query := "SELECT " + executionColumns + `
		FROM executions
		WHERE status = $1 AND resume_at IS NOT NULL AND resume_at < $2
		ORDER BY resume_at
	`

	rows, err := r.db.QueryContext(ctx, query, models.ExecutionStatusPaused, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query paused executions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// SaveStep upserts a step, refusing to touch steps already in a terminal
// status. The ledger is append-only once a step finishes.
func (r *ExecutionRepository) SaveStep(ctx context.Context, step *models.ExecutionStep) error {
	outputData, err := json.Marshal(step.OutputData)
	if err != nil {
		return fmt.Errorf("failed to marshal step output data: %w", err)
	}

	var currentStatus models.StepStatus

	err = r.db.QueryRowContext(ctx, "SELECT status FROM execution_steps WHERE id = $1", step.ID).Scan(&currentStatus)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check step status: %w", err)
	}

	if currentStatus == models.StepStatusCompleted || currentStatus == models.StepStatusFailed {
		return persistence.NewStoreError("SaveStep", step.ID, persistence.ErrStepImmutable)
	}

	query := `
		INSERT INTO execution_steps (id, execution_id, node_id, node_type, step_number, status, started_at, completed_at, duration_ms, output_data, error_message, error_detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			duration_ms = EXCLUDED.duration_ms,
			output_data = EXCLUDED.output_data,
			error_message = EXCLUDED.error_message,
			error_detail = EXCLUDED.error_detail
	`

	_, err = r.db.ExecContext(ctx, query,
		step.ID,
		step.ExecutionID,
		step.NodeID,
		step.NodeType,
		step.StepNumber,
		step.Status,
		step.StartedAt,
		step.CompletedAt,
		step.DurationMs,
		outputData,
		step.ErrorMessage,
		step.ErrorDetail,
	)
	if err != nil {
		return fmt.Errorf("failed to save step %s: %w", step.ID, err)
	}

	return nil
}

// StepsByExecution returns the execution's steps in ledger order.
func (r *ExecutionRepository) StepsByExecution(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	query := `
		SELECT id, execution_id, node_id, node_type, step_number, status, started_at, completed_at, duration_ms, output_data, error_message, error_detail
		FROM execution_steps
		WHERE execution_id = $1
		ORDER BY step_number
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer r.closeRows(ctx, rows)

	steps := make([]*models.ExecutionStep, 0)

	for rows.Next() {
		var (
			step       models.ExecutionStep
			outputData []byte
		)

		err = rows.Scan(
			&step.ID,
			&step.ExecutionID,
			&step.NodeID,
			&step.NodeType,
			&step.StepNumber,
			&step.Status,
			&step.StartedAt,
			&step.CompletedAt,
			&step.DurationMs,
			&outputData,
			&step.ErrorMessage,
			&step.ErrorDetail,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		if len(outputData) > 0 {
			err = json.Unmarshal(outputData, &step.OutputData)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal output data for step %s: %w", step.ID, err)
			}
		}

		steps = append(steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

// AppendLog inserts a diagnostic log entry.
func (r *ExecutionRepository) AppendLog(ctx context.Context, entry *models.ExecutionLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO execution_logs (id, execution_id, node_id, level, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.ExecutionID, entry.NodeID, entry.Level, entry.Message, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append execution log: %w", err)
	}

	return nil
}

// Logs returns the most recent log entries for the execution, newest first.
func (r *ExecutionRepository) Logs(ctx context.Context, executionID string, limit int) ([]*models.ExecutionLog, error) {
	query := `
		SELECT id, execution_id, node_id, level, message, created_at
		FROM execution_logs
		WHERE execution_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, executionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer r.closeRows(ctx, rows)

	logs := make([]*models.ExecutionLog, 0)

	for rows.Next() {
		var entry models.ExecutionLog

		err = rows.Scan(&entry.ID, &entry.ExecutionID, &entry.NodeID, &entry.Level, &entry.Message, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		logs = append(logs, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return logs, nil
}

func (r *ExecutionRepository) scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution   models.Execution
		triggerData []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.LeadID,
		&execution.Status,
		&triggerData,
		&execution.ResumeFrom,
		&execution.ResumeAt,
		&execution.StartedAt,
		&execution.CompletedAt,
		&execution.ErrorMessage,
		&execution.CreatedAt,
		&execution.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(triggerData) > 0 {
		err = json.Unmarshal(triggerData, &execution.TriggerData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
		}
	}

	return &execution, nil
}

func (r *ExecutionRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
