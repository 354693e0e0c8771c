// Package embedding maintains script embedding vectors and answers
// similarity queries over them. Vectors are produced by the analysis
// service and refreshed out of band; a script with no vector simply does
// not participate in similarity search.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"scriptd/internal/analysis"
	"scriptd/internal/logging"
	"scriptd/internal/storage"
)

// Match is one similarity search result
type Match struct {
	ScriptID   string  `json:"scriptId"`
	Similarity float64 `json:"similarity"`
}

// Gateway owns the embedding lifecycle for scripts
type Gateway struct {
	db      *storage.DB
	repo    *storage.EmbeddingRepository
	scripts *storage.ScriptRepository
	client  *analysis.Client
	logger  *logging.Logger
}

// NewGateway creates an embedding gateway
func NewGateway(db *storage.DB, client *analysis.Client, logger *logging.Logger) *Gateway {
	return &Gateway{
		db:      db,
		repo:    storage.NewEmbeddingRepository(db),
		scripts: storage.NewScriptRepository(db),
		client:  client,
		logger:  logger,
	}
}

// Upsert fetches a fresh vector for the script's current content and
// stores it, replacing any previous vector. Runs from background jobs
// only; the script may have been deleted since the job was queued, which
// is not an error.
func (g *Gateway) Upsert(ctx context.Context, scriptID string) error {
	script, err := g.scripts.Get(g.db, scriptID)
	if err != nil {
		return err
	}
	if script == nil {
		g.logger.Debug("Script gone before embedding refresh", map[string]interface{}{
			"script_id": scriptID,
		})
		return nil
	}

	existing, err := g.repo.GetByScriptID(g.db, scriptID)
	if err != nil {
		return err
	}
	if existing != nil && existing.ContentHash == script.ContentHash {
		// Content unchanged since the last refresh
		return nil
	}

	vector, model, err := g.client.Embed(ctx, script.Content)
	if err != nil {
		return fmt.Errorf("failed to embed script %s: %w", scriptID, err)
	}

	now := time.Now().UTC()
	embedding := &storage.Embedding{
		ScriptID:    scriptID,
		Vector:      vector,
		Dims:        len(vector),
		Model:       model,
		ContentHash: script.ContentHash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.repo.Upsert(g.db, embedding); err != nil {
		return err
	}

	g.logger.Debug("Embedding refreshed", map[string]interface{}{
		"script_id": scriptID,
		"dims":      len(vector),
	})

	return nil
}

// Delete removes a script's vector within the caller's transaction
func (g *Gateway) Delete(q storage.Querier, scriptID string) error {
	return g.repo.DeleteByScriptID(q, scriptID)
}

// FindSimilar returns scripts whose vectors are close to the given
// script's, excluding the script itself. A script with no stored vector
// yields an empty result, not an error.
func (g *Gateway) FindSimilar(ctx context.Context, scriptID string, threshold float64, limit int) ([]Match, error) {
	source, err := g.repo.GetByScriptID(g.db, scriptID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, nil
	}

	candidates, err := g.repo.ListExcept(g.db, scriptID)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, candidate := range candidates {
		if candidate.Dims != source.Dims {
			continue
		}
		similarity := CosineSimilarity(source.Vector, candidate.Vector)
		if similarity >= threshold {
			matches = append(matches, Match{ScriptID: candidate.ScriptID, Similarity: similarity})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// A zero vector has no direction and yields 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
