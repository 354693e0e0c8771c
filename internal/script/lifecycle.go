package script

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"scriptd/internal/analysis"
	"scriptd/internal/errors"
	"scriptd/internal/hash"
	"scriptd/internal/jobs"
	"scriptd/internal/sanitize"
	"scriptd/internal/storage"
)

// CreateInput carries the fields of a new script
type CreateInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	CategoryID  string   `json:"categoryId"`
	Tags        []string `json:"tags"`
	IsPublic    bool     `json:"isPublic"`
}

// Create stores a new script with inline analysis. The whole write runs in
// a serializable transaction so two concurrent submissions of identical
// content cannot both become version one.
func (s *Service) Create(ctx context.Context, actor Actor, input CreateInput) (*storage.Script, error) {
	return s.createScript(ctx, actor, input, false)
}

// Upload stores a new script like Create, but defers analysis to a
// background job: bulk imports should not wait on the AI service. The
// stored analysis starts as the neutral placeholder.
func (s *Service) Upload(ctx context.Context, actor Actor, input CreateInput) (*storage.Script, error) {
	return s.createScript(ctx, actor, input, true)
}

func (s *Service) createScript(ctx context.Context, actor Actor, input CreateInput, deferAnalysis bool) (*storage.Script, error) {
	title := sanitize.Line(input.Title, maxTitleLength)
	description := sanitize.Truncate(sanitize.Text(input.Description), maxDescriptionLength)

	if err := validateWrite(title, input.Content); err != nil {
		return nil, err
	}
	if err := s.screenContent(input.Content); err != nil {
		return nil, err
	}

	contentHash := hash.ContentString(input.Content)
	now := time.Now().UTC()

	script := &storage.Script{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Content:     input.Content,
		UserID:      actor.UserID,
		CategoryID:  input.CategoryID,
		Version:     1,
		IsPublic:    input.IsPublic,
		ContentHash: contentHash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithSerializableTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.scripts.GetByContentHash(tx, actor.UserID, contentHash)
		if err != nil {
			return errors.Wrap(errors.StoreFailure, "failed to check for duplicates", err)
		}
		if existing != nil {
			return errors.Duplicate(existing.ID, existing.Title)
		}

		if script.CategoryID != "" {
			category, err := s.categories.Get(tx, script.CategoryID)
			if err != nil {
				return errors.Wrap(errors.StoreFailure, "failed to look up category", err)
			}
			if category == nil {
				var v errors.ValidationErrors
				v.Add("categoryId", "category does not exist")
				return v.AsError()
			}
		}

		if err := s.scripts.Create(tx, script); err != nil {
			return errors.Wrap(errors.StoreFailure, "failed to store script", err)
		}

		if err := s.versions.Create(tx, &storage.Version{
			ID:          uuid.New().String(),
			ScriptID:    script.ID,
			Version:     1,
			Content:     script.Content,
			ContentHash: contentHash,
			CreatedAt:   now,
		}); err != nil {
			return errors.Wrap(errors.StoreFailure, "failed to store script version", err)
		}

		if err := s.tags.Replace(tx, script.ID, normalizeTags(input.Tags)); err != nil {
			return errors.Wrap(errors.StoreFailure, "failed to store tags", err)
		}

		var record *analysis.Record
		if deferAnalysis {
			record = analysis.Fallback()
		} else {
			record = s.analyzeWithFallback(ctx, script.ID, script.Content)
		}
		if err := s.applyAnalysis(tx, script, record, now); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Script created", map[string]interface{}{
		"script_id": script.ID,
		"user_id":   actor.UserID,
		"uploaded":  deferAnalysis,
	})

	if deferAnalysis {
		s.schedule(jobs.JobTypeAnalyzeScript, script.ID)
	}
	s.schedule(jobs.JobTypeUpsertEmbedding, script.ID)
	s.invalidate(ctx, script.ID)

	return s.hydrate(ctx, script)
}

// UpdateInput carries a script update. Nil pointers leave a field alone.
// Tags are replaced wholesale on every update; an absent tag list clears
// the script's tags.
type UpdateInput struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Content     *string  `json:"content"`
	CategoryID  *string  `json:"categoryId"`
	IsPublic    *bool    `json:"isPublic"`
	Tags        []string `json:"tags"`
}

// Update modifies a script. The version number advances only when the
// content itself changes; metadata-only edits keep the current version and
// trigger no re-analysis.
func (s *Service) Update(ctx context.Context, actor Actor, scriptID string, input UpdateInput) (*storage.Script, error) {
	var script *storage.Script
	contentChanged := false

	err := s.db.WithTx(func(tx *sql.Tx) error {
		var err error
		script, err = s.scripts.Get(tx, scriptID)
		if err != nil {
			return errors.Wrap(errors.StoreFailure, "failed to load script", err)
		}
		if script == nil {
			return errors.New(errors.NotFound, "script not found")
		}
		if !actor.canMutate(script) {
			return errors.New(errors.NotAuthorized, "not allowed to modify this script")
		}

		now := time.Now().UTC()

		if input.Title != nil {
			title := sanitize.Line(*input.Title, maxTitleLength)
			if title == "" {
				var v errors.ValidationErrors
				v.Add("title", "title is required")
				return v.AsError()
			}
			script.Title = title
		}
		if input.Description != nil {
			script.Description = sanitize.Truncate(sanitize.Text(*input.Description), maxDescriptionLength)
		}
		if input.IsPublic != nil {
			script.IsPublic = *input.IsPublic
		}
		if input.CategoryID != nil {
			if *input.CategoryID != "" {
				category, err := s.categories.Get(tx, *input.CategoryID)
				if err != nil {
					return errors.Wrap(errors.StoreFailure, "failed to look up category", err)
				}
				if category == nil {
					var v errors.ValidationErrors
					v.Add("categoryId", "category does not exist")
					return v.AsError()
				}
			}
			script.CategoryID = *input.CategoryID
		}

		if input.Content != nil {
			if *input.Content == "" {
				var v errors.ValidationErrors
				v.Add("content", "content cannot be empty")
				return v.AsError()
			}
			newHash := hash.ContentString(*input.Content)
			if newHash != script.ContentHash {
				if err := s.screenContent(*input.Content); err != nil {
					return err
				}

				duplicate, err := s.scripts.GetByContentHash(tx, script.UserID, newHash)
				if err != nil {
					return errors.Wrap(errors.StoreFailure, "failed to check for duplicates", err)
				}
				if duplicate != nil && duplicate.ID != script.ID {
					return errors.Duplicate(duplicate.ID, duplicate.Title)
				}

				script.Content = *input.Content
				script.ContentHash = newHash
				script.Version++
				contentChanged = true

				if err := s.versions.Create(tx, &storage.Version{
					ID:          uuid.New().String(),
					ScriptID:    script.ID,
					Version:     script.Version,
					Content:     script.Content,
					ContentHash: newHash,
					CreatedAt:   now,
				}); err != nil {
					return errors.Wrap(errors.StoreFailure, "failed to store script version", err)
				}
			}
		}

		script.UpdatedAt = now
		if err := s.scripts.Update(tx, script); err != nil {
			return errors.Wrap(errors.StoreFailure, "failed to update script", err)
		}

		if err := s.tags.Replace(tx, script.ID, normalizeTags(input.Tags)); err != nil {
			return errors.Wrap(errors.StoreFailure, "failed to update tags", err)
		}

		if contentChanged {
			record := s.analyzeWithFallback(ctx, script.ID, script.Content)
			if err := s.applyAnalysis(tx, script, record, now); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Script updated", map[string]interface{}{
		"script_id":       script.ID,
		"version":         script.Version,
		"content_changed": contentChanged,
	})

	if contentChanged {
		s.schedule(jobs.JobTypeUpsertEmbedding, script.ID)
	}
	s.invalidate(ctx, script.ID)

	return s.hydrate(ctx, script)
}

// Delete removes a script and everything attached to it in one
// transaction.
func (s *Service) Delete(ctx context.Context, actor Actor, scriptID string) error {
	err := s.db.WithTx(func(tx *sql.Tx) error {
		return s.deleteScriptTx(tx, actor, scriptID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Script deleted", map[string]interface{}{
		"script_id": scriptID,
	})
	s.invalidate(ctx, scriptID)

	return nil
}

// deleteScriptTx removes a script's dependent rows and then the script
// itself, inside the caller's transaction
func (s *Service) deleteScriptTx(tx *sql.Tx, actor Actor, scriptID string) error {
	script, err := s.scripts.Get(tx, scriptID)
	if err != nil {
		return errors.Wrap(errors.StoreFailure, "failed to load script", err)
	}
	if script == nil {
		return errors.New(errors.NotFound, "script not found")
	}
	if !actor.canMutate(script) {
		return errors.New(errors.NotAuthorized, "not allowed to delete this script")
	}

	if err := s.analyses.DeleteByScriptID(tx, scriptID); err != nil {
		return errors.Wrap(errors.StoreFailure, "failed to delete analysis", err)
	}
	if err := s.versions.DeleteByScriptID(tx, scriptID); err != nil {
		return errors.Wrap(errors.StoreFailure, "failed to delete versions", err)
	}
	if err := s.execLogs.DeleteByScriptID(tx, scriptID); err != nil {
		return errors.Wrap(errors.StoreFailure, "failed to delete execution logs", err)
	}
	if err := s.tags.DeleteByScriptID(tx, scriptID); err != nil {
		return errors.Wrap(errors.StoreFailure, "failed to delete tags", err)
	}
	if s.embeddings != nil {
		if err := s.embeddings.Delete(tx, scriptID); err != nil {
			return errors.Wrap(errors.StoreFailure, "failed to delete embedding", err)
		}
	}
	if err := s.scripts.Delete(tx, scriptID); err != nil {
		return errors.Wrap(errors.StoreFailure, "failed to delete script", err)
	}

	return nil
}

// BulkOutcome reports the fate of one ID in a bulk delete
type BulkOutcome struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// BulkDeleteResult summarizes a bulk delete
type BulkDeleteResult struct {
	Deleted []string      `json:"deleted"`
	Failed  []BulkOutcome `json:"failed,omitempty"`
}

// BulkDelete removes several scripts in one shared transaction. A failure
// on one ID does not abort the rest; the transaction commits as long as at
// least one delete succeeded. When every ID fails, nothing commits and an
// error is returned alongside the per-ID outcomes.
func (s *Service) BulkDelete(ctx context.Context, actor Actor, scriptIDs []string) (*BulkDeleteResult, error) {
	if len(scriptIDs) == 0 {
		var v errors.ValidationErrors
		v.Add("ids", "at least one script ID is required")
		return nil, v.AsError()
	}

	result := &BulkDeleteResult{}

	err := s.db.WithTx(func(tx *sql.Tx) error {
		for _, id := range scriptIDs {
			// Scope each delete to a savepoint so one failure does not
			// poison the shared transaction.
			if _, err := tx.Exec("SAVEPOINT bulk_delete"); err != nil {
				return errors.Wrap(errors.StoreFailure, "failed to create savepoint", err)
			}

			if err := s.deleteScriptTx(tx, actor, id); err != nil {
				if _, rbErr := tx.Exec("ROLLBACK TO SAVEPOINT bulk_delete"); rbErr != nil {
					return errors.Wrap(errors.StoreFailure, "failed to roll back savepoint", rbErr)
				}
				result.Failed = append(result.Failed, BulkOutcome{ID: id, Error: err.Error()})
			} else {
				result.Deleted = append(result.Deleted, id)
			}

			if _, err := tx.Exec("RELEASE SAVEPOINT bulk_delete"); err != nil {
				return errors.Wrap(errors.StoreFailure, "failed to release savepoint", err)
			}
		}

		if len(result.Deleted) == 0 {
			return errors.New(errors.NotFound, "no scripts could be deleted")
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	s.logger.Info("Bulk delete finished", map[string]interface{}{
		"deleted": len(result.Deleted),
		"failed":  len(result.Failed),
	})
	for _, id := range result.Deleted {
		s.invalidate(ctx, id)
	}

	return result, nil
}
