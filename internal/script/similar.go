package script

import (
	"context"

	"scriptd/internal/errors"
	"scriptd/internal/storage"
)

// SimilarScript pairs a similarity match with the script it points at
type SimilarScript struct {
	Script     *storage.Script `json:"script"`
	Similarity float64         `json:"similarity"`
}

// FindSimilar returns scripts whose content is semantically close to the
// given one. A script that has no embedding yet, or whose neighbors are
// all below the threshold, yields an empty result.
func (s *Service) FindSimilar(ctx context.Context, actor Actor, scriptID string, threshold float64, limit int) ([]SimilarScript, error) {
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

	if s.embeddings == nil {
		return nil, nil
	}

	if threshold <= 0 || threshold > 1 {
		threshold = s.opts.MinSimilarity
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	matches, err := s.embeddings.FindSimilar(ctx, scriptID, threshold, limit)
	if err != nil {
		return nil, errors.Wrap(errors.StoreFailure, "similarity search failed", err)
	}

	var similar []SimilarScript
	for _, match := range matches {
		candidate, err := s.scripts.Get(s.db, match.ScriptID)
		if err != nil {
			return nil, errors.Wrap(errors.StoreFailure, "failed to load matched script", err)
		}
		if candidate == nil || !actor.canRead(candidate) {
			// Deleted since matching, or not visible to this actor
			continue
		}
		if err := s.hydrateRefs(candidate); err != nil {
			return nil, err
		}
		similar = append(similar, SimilarScript{Script: candidate, Similarity: match.Similarity})
	}

	return similar, nil
}
