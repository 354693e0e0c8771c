package script

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"scriptd/internal/errors"
	"scriptd/internal/storage"
)

// Executor runs script content with parameters and returns its output.
// The server ships without one; running untrusted scripts is opt-in and
// the deployment must provide its own sandboxed implementation.
type Executor interface {
	Run(ctx context.Context, script *storage.Script, params map[string]interface{}) (output string, err error)
}

// Execute runs a script and records the run. Every attempt leaves an
// execution log: pending while running, then completed or failed.
func (s *Service) Execute(ctx context.Context, actor Actor, scriptID string, params map[string]interface{}) (*storage.ExecutionLog, error) {
	script, err := s.scripts.Get(s.db, scriptID)
	if err != nil {
		return nil, errors.Wrap(errors.StoreFailure, "failed to load script", err)
	}
	if script == nil {
		return nil, errors.New(errors.NotFound, "script not found")
	}
	if !actor.canRead(script) {
		return nil, errors.New(errors.NotAuthorized, "not allowed to run this script")
	}
	if s.executor == nil {
		return nil, errors.New(errors.NotAuthorized, "script execution is disabled on this server")
	}

	paramsJSON := "{}"
	if len(params) > 0 {
		data, err := json.Marshal(params)
		if err != nil {
			var v errors.ValidationErrors
			v.Add("parameters", "parameters must be JSON-encodable")
			return nil, v.AsError()
		}
		paramsJSON = string(data)
	}

	log := &storage.ExecutionLog{
		ID:         uuid.New().String(),
		ScriptID:   script.ID,
		UserID:     actor.UserID,
		Parameters: paramsJSON,
		Status:     storage.ExecStatusPending,
		StartedAt:  time.Now().UTC(),
	}

	err = s.db.WithTx(func(tx *sql.Tx) error {
		if err := s.execLogs.Create(tx, log); err != nil {
			return err
		}
		return s.scripts.IncrementExecutionCount(tx, script.ID)
	})
	if err != nil {
		return nil, errors.Wrap(errors.StoreFailure, "failed to record execution", err)
	}

	output, runErr := s.executor.Run(ctx, script, params)
	finished := time.Now().UTC()

	if runErr != nil {
		log.Status = storage.ExecStatusFailed
		log.ErrorMessage = runErr.Error()
	} else {
		log.Status = storage.ExecStatusCompleted
		log.Output = output
	}
	log.FinishedAt = &finished

	if err := s.execLogs.Finish(s.db, log.ID, log.Status, log.Output, log.ErrorMessage, finished); err != nil {
		return nil, errors.Wrap(errors.StoreFailure, "failed to finalize execution log", err)
	}

	s.logger.Info("Script executed", map[string]interface{}{
		"script_id": script.ID,
		"log_id":    log.ID,
		"status":    log.Status,
	})
	s.invalidate(ctx, script.ID)

	return log, nil
}

// ExecutionLogs lists a script's recent runs
func (s *Service) ExecutionLogs(ctx context.Context, actor Actor, scriptID string, limit int) ([]*storage.ExecutionLog, error) {
	script, err := s.scripts.Get(s.db, scriptID)
	if err != nil {
		return nil, errors.Wrap(errors.StoreFailure, "failed to load script", err)
	}
	if script == nil {
		return nil, errors.New(errors.NotFound, "script not found")
	}
	if !actor.canRead(script) {
		return nil, errors.New(errors.NotAuthorized, "not allowed to view this script")
	}

	logs, err := s.execLogs.ListByScriptID(s.db, scriptID, limit)
	if err != nil {
		return nil, errors.Wrap(errors.StoreFailure, "failed to list execution logs", err)
	}
	return logs, nil
}
