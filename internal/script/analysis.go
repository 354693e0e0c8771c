package script

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"scriptd/internal/analysis"
	"scriptd/internal/errors"
	"scriptd/internal/storage"
)

// analyzeWithFallback asks the AI service for an analysis and degrades to
// the neutral placeholder on any failure. Script writes never fail because
// the analysis service is down.
func (s *Service) analyzeWithFallback(ctx context.Context, scriptID, content string) *analysis.Record {
	if s.analyzer == nil {
		return analysis.Fallback()
	}

	result := s.analyzer.Analyze(ctx, scriptID, content)
	if result.Outcome != analysis.OutcomeOK {
		s.logger.Warn("Analysis degraded to placeholder", map[string]interface{}{
			"script_id": scriptID,
			"error":     errString(result.Err),
		})
		return analysis.Fallback()
	}
	return result.Record
}

// applyAnalysis stores an analysis record inside the caller's transaction
// and resolves the service's suggested category when the script has none
func (s *Service) applyAnalysis(tx *sql.Tx, script *storage.Script, record *analysis.Record, now time.Time) error {
	if err := s.analyses.Upsert(tx, &storage.Analysis{
		ID:               uuid.New().String(),
		ScriptID:         script.ID,
		Purpose:          record.Purpose,
		ParameterDocs:    record.ParameterDocs,
		SecurityScore:    record.SecurityScore,
		QualityScore:     record.QualityScore,
		RiskScore:        record.RiskScore,
		Suggestions:      record.Suggestions,
		CommandDetails:   record.CommandDetails,
		MSDocsReferences: record.MSDocsReferences,
		CreatedAt:        now,
		UpdatedAt:        now,
	}); err != nil {
		return errors.Wrap(errors.StoreFailure, "failed to store analysis", err)
	}

	// The suggested category is advisory and never overrides an explicit one
	if script.CategoryID == "" && record.SuggestedCategory != "" {
		category, err := s.categories.GetByName(tx, record.SuggestedCategory)
		if err != nil {
			return errors.Wrap(errors.StoreFailure, "failed to resolve suggested category", err)
		}
		if category != nil {
			script.CategoryID = category.ID
			if err := s.scripts.Update(tx, script); err != nil {
				return errors.Wrap(errors.StoreFailure, "failed to apply suggested category", err)
			}
		}
	}

	return nil
}

// Analyze re-runs AI analysis for a script on demand. Unlike the write
// paths, an explicit request surfaces service failures to the caller
// instead of silently storing a placeholder.
func (s *Service) Analyze(ctx context.Context, actor Actor, scriptID string) (*storage.Analysis, error) {
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

	if s.analyzer == nil {
		return nil, errors.New(errors.AnalysisUnavailable, "analysis service is not configured")
	}

	result := s.analyzer.Analyze(ctx, script.ID, script.Content)
	switch result.Outcome {
	case analysis.OutcomeOK:
	case analysis.OutcomeDegraded:
		return nil, errors.Wrap(errors.AnalysisUnavailable, "analysis service is unavailable", result.Err)
	default:
		return nil, errors.Wrap(errors.ValidationFailed, "script cannot be analyzed", result.Err)
	}

	now := time.Now().UTC()
	err = s.db.WithTx(func(tx *sql.Tx) error {
		// Re-read under the transaction; the script may have been deleted
		// while the service call was in flight
		current, err := s.scripts.Get(tx, scriptID)
		if err != nil {
			return errors.Wrap(errors.StoreFailure, "failed to reload script", err)
		}
		if current == nil {
			return errors.New(errors.NotFound, "script not found")
		}
		return s.applyAnalysis(tx, current, result.Record, now)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, scriptID)

	stored, err := s.analyses.GetByScriptID(s.db, scriptID)
	if err != nil {
		return nil, errors.Wrap(errors.StoreFailure, "failed to load analysis", err)
	}
	return stored, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
