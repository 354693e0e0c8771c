package script

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"scriptd/internal/analysis"
	"scriptd/internal/jobs"
)

// RegisterJobHandlers wires the service's background work into the job
// runner. Each handler re-fetches the script when it runs; the state that
// queued the job may be long gone.
func (s *Service) RegisterJobHandlers(runner *jobs.Runner) {
	runner.RegisterHandler(jobs.JobTypeAnalyzeScript, s.handleAnalyzeJob)
	runner.RegisterHandler(jobs.JobTypeUpsertEmbedding, s.handleEmbeddingJob)
}

// handleAnalyzeJob performs deferred analysis for uploaded scripts. The
// placeholder row written at upload time stays in place if this fails;
// the job is not retried.
func (s *Service) handleAnalyzeJob(ctx context.Context, job *jobs.Job) error {
	scope, err := jobs.ParseScriptScope(job.Scope)
	if err != nil {
		return fmt.Errorf("invalid job scope: %w", err)
	}

	script, err := s.scripts.Get(s.db, scope.ScriptID)
	if err != nil {
		return err
	}
	if script == nil {
		// Deleted before the job ran; nothing to do
		return nil
	}

	if s.analyzer == nil {
		return fmt.Errorf("analysis service is not configured")
	}

	result := s.analyzer.Analyze(ctx, script.ID, script.Content)
	if result.Outcome != analysis.OutcomeOK {
		return fmt.Errorf("analysis failed for script %s: %w", script.ID, result.Err)
	}

	now := time.Now().UTC()
	err = s.db.WithTx(func(tx *sql.Tx) error {
		current, err := s.scripts.Get(tx, script.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return nil
		}
		if current.ContentHash != script.ContentHash {
			// Content changed while the job was queued; the write that
			// changed it scheduled its own analysis
			return nil
		}
		return s.applyAnalysis(tx, current, result.Record, now)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, script.ID)
	return nil
}

// handleEmbeddingJob refreshes a script's embedding vector
func (s *Service) handleEmbeddingJob(ctx context.Context, job *jobs.Job) error {
	scope, err := jobs.ParseScriptScope(job.Scope)
	if err != nil {
		return fmt.Errorf("invalid job scope: %w", err)
	}

	if s.embeddings == nil {
		return nil
	}

	return s.embeddings.Upsert(ctx, scope.ScriptID)
}
