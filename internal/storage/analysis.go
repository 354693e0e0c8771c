package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// AnalysisRepository provides operations for the script_analysis table
type AnalysisRepository struct {
	db *DB
}

// NewAnalysisRepository creates a new analysis repository
func NewAnalysisRepository(db *DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Upsert writes the analysis for a script, replacing any previous row.
// script_id is UNIQUE, so a script carries at most one analysis.
func (r *AnalysisRepository) Upsert(q Querier, a *Analysis) error {
	_, err := q.Exec(`
		INSERT INTO script_analysis (
			id, script_id, purpose, parameter_docs,
			security_score, quality_score, risk_score,
			suggestions, command_details, ms_docs_references,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(script_id) DO UPDATE SET
			purpose = excluded.purpose,
			parameter_docs = excluded.parameter_docs,
			security_score = excluded.security_score,
			quality_score = excluded.quality_score,
			risk_score = excluded.risk_score,
			suggestions = excluded.suggestions,
			command_details = excluded.command_details,
			ms_docs_references = excluded.ms_docs_references,
			updated_at = excluded.updated_at
	`,
		a.ID,
		a.ScriptID,
		a.Purpose,
		a.ParameterDocs,
		a.SecurityScore,
		a.QualityScore,
		a.RiskScore,
		a.Suggestions,
		a.CommandDetails,
		a.MSDocsReferences,
		a.CreatedAt.Format(time.RFC3339),
		a.UpdatedAt.Format(time.RFC3339),
	)

	if err != nil {
		return fmt.Errorf("failed to upsert analysis: %w", err)
	}

	return nil
}

// GetByScriptID retrieves the analysis for a script, or (nil, nil) when absent
func (r *AnalysisRepository) GetByScriptID(q Querier, scriptID string) (*Analysis, error) {
	var a Analysis
	var createdAt, updatedAt string

	err := q.QueryRow(`
		SELECT id, script_id, purpose, parameter_docs,
		       security_score, quality_score, risk_score,
		       suggestions, command_details, ms_docs_references,
		       created_at, updated_at
		FROM script_analysis
		WHERE script_id = ?
	`, scriptID).Scan(
		&a.ID,
		&a.ScriptID,
		&a.Purpose,
		&a.ParameterDocs,
		&a.SecurityScore,
		&a.QualityScore,
		&a.RiskScore,
		&a.Suggestions,
		&a.CommandDetails,
		&a.MSDocsReferences,
		&createdAt,
		&updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	a.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at format: %w", err)
	}
	a.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid updated_at format: %w", err)
	}

	return &a, nil
}

// DeleteByScriptID removes the analysis row for a script, if any
func (r *AnalysisRepository) DeleteByScriptID(q Querier, scriptID string) error {
	_, err := q.Exec("DELETE FROM script_analysis WHERE script_id = ?", scriptID)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	return nil
}
