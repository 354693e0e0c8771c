package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// ExecutionLogRepository provides operations for the execution_logs table
type ExecutionLogRepository struct {
	db *DB
}

// NewExecutionLogRepository creates a new execution log repository
func NewExecutionLogRepository(db *DB) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db}
}

// Create inserts a new execution log row, normally in the pending state
func (r *ExecutionLogRepository) Create(q Querier, log *ExecutionLog) error {
	_, err := q.Exec(`
		INSERT INTO execution_logs (
			id, script_id, user_id, parameters, status,
			output, error_message, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		log.ID,
		log.ScriptID,
		log.UserID,
		log.Parameters,
		log.Status,
		log.Output,
		log.ErrorMessage,
		log.StartedAt.Format(time.RFC3339),
		formatTimePtr(log.FinishedAt),
	)

	if err != nil {
		return fmt.Errorf("failed to create execution log: %w", err)
	}

	return nil
}

// Finish records the outcome of a run
func (r *ExecutionLogRepository) Finish(q Querier, id, status, output, errorMessage string, finishedAt time.Time) error {
	result, err := q.Exec(`
		UPDATE execution_logs
		SET status = ?, output = ?, error_message = ?, finished_at = ?
		WHERE id = ?
	`, status, output, errorMessage, finishedAt.Format(time.RFC3339), id)

	if err != nil {
		return fmt.Errorf("failed to finish execution log: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("execution log not found: %s", id)
	}

	return nil
}

// ListByScriptID returns a script's execution logs, newest first
func (r *ExecutionLogRepository) ListByScriptID(q Querier, scriptID string, limit int) ([]*ExecutionLog, error) {
	query := `
		SELECT id, script_id, user_id, parameters, status,
		       output, error_message, started_at, finished_at
		FROM execution_logs
		WHERE script_id = ?
		ORDER BY started_at DESC
	`
	args := []interface{}{scriptID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution logs: %w", err)
	}
	defer rows.Close()

	var logs []*ExecutionLog
	for rows.Next() {
		var log ExecutionLog
		var startedAt string
		var finishedAt sql.NullString

		if err := rows.Scan(
			&log.ID,
			&log.ScriptID,
			&log.UserID,
			&log.Parameters,
			&log.Status,
			&log.Output,
			&log.ErrorMessage,
			&startedAt,
			&finishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		log.StartedAt, err = time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid started_at format: %w", err)
		}
		log.FinishedAt, err = parseTimePtr(finishedAt)
		if err != nil {
			return nil, err
		}

		logs = append(logs, &log)
	}

	return logs, rows.Err()
}

// DeleteByScriptID removes all execution logs for a script
func (r *ExecutionLogRepository) DeleteByScriptID(q Querier, scriptID string) error {
	_, err := q.Exec("DELETE FROM execution_logs WHERE script_id = ?", scriptID)
	if err != nil {
		return fmt.Errorf("failed to delete execution logs: %w", err)
	}
	return nil
}
