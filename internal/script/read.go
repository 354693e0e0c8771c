package script

import (
	"context"
	"encoding/json"
	"strconv"

	"scriptd/internal/cache"
	"scriptd/internal/errors"
	"scriptd/internal/storage"
)

// Get returns a fully hydrated script. Reads go through the cache; the
// entity key is populated here and removed by every write to the script.
func (s *Service) Get(ctx context.Context, actor Actor, scriptID string) (*storage.Script, error) {
	if s.cache != nil {
		if data, hit := s.cache.Get(ctx, cache.ScriptKey(scriptID)); hit {
			var script storage.Script
			if err := json.Unmarshal(data, &script); err == nil {
				if !actor.canRead(&script) {
					return nil, errors.New(errors.NotAuthorized, "not allowed to view this script")
				}
				return &script, nil
			}
			// Unreadable cache entry; fall through to the store
			s.cache.Delete(ctx, cache.ScriptKey(scriptID))
		}
	}

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

	hydrated, err := s.hydrate(ctx, script)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(hydrated); err == nil {
			s.cache.Set(ctx, cache.ScriptKey(scriptID), data, s.opts.ScriptTTL)
		}
	}

	return hydrated, nil
}

// ListInput narrows and pages a script listing
type ListInput struct {
	CategoryID string
	Tag        string
	Search     string
	SortBy     string
	SortDesc   bool
	Limit      int
	Offset     int
}

// ListResult is a page of scripts with the unpaged total
type ListResult struct {
	Scripts []*storage.Script `json:"scripts"`
	Total   int               `json:"total"`
}

// List returns the actor's scripts, or every script for admins. Public
// discovery goes through ListPublic. Results are cached per parameter
// combination and invalidated wholesale on any script write.
func (s *Service) List(ctx context.Context, actor Actor, input ListInput) (*ListResult, error) {
	if input.Limit <= 0 || input.Limit > 100 {
		input.Limit = 20
	}

	key := cache.ListKey(map[string]string{
		"actor":    actor.UserID,
		"admin":    strconv.FormatBool(actor.IsAdmin()),
		"category": input.CategoryID,
		"tag":      input.Tag,
		"search":   input.Search,
		"sort":     input.SortBy,
		"desc":     strconv.FormatBool(input.SortDesc),
		"limit":    strconv.Itoa(input.Limit),
		"offset":   strconv.Itoa(input.Offset),
	})

	if s.cache != nil {
		if data, hit := s.cache.Get(ctx, key); hit {
			var result ListResult
			if err := json.Unmarshal(data, &result); err == nil {
				return &result, nil
			}
		}
	}

	filter := storage.ListFilter{
		CategoryID: input.CategoryID,
		Tag:        input.Tag,
		Search:     input.Search,
		SortBy:     input.SortBy,
		SortDesc:   input.SortDesc,
		Limit:      input.Limit,
		Offset:     input.Offset,
	}
	if !actor.IsAdmin() {
		filter.UserID = actor.UserID
	}

	scripts, err := s.scripts.List(s.db, filter)
	if err != nil {
		return nil, errors.Wrap(errors.StoreFailure, "failed to list scripts", err)
	}
	total, err := s.scripts.Count(s.db, filter)
	if err != nil {
		return nil, errors.Wrap(errors.StoreFailure, "failed to count scripts", err)
	}

	for _, script := range scripts {
		if err := s.hydrateRefs(script); err != nil {
			return nil, err
		}
	}

	result := &ListResult{Scripts: scripts, Total: total}

	if s.cache != nil {
		if data, err := json.Marshal(result); err == nil {
			s.cache.Set(ctx, key, data, s.opts.ListTTL)
		}
	}

	return result, nil
}

// ListPublic returns public scripts regardless of owner
func (s *Service) ListPublic(ctx context.Context, input ListInput) (*ListResult, error) {
	if input.Limit <= 0 || input.Limit > 100 {
		input.Limit = 20
	}

	filter := storage.ListFilter{
		CategoryID: input.CategoryID,
		Tag:        input.Tag,
		Search:     input.Search,
		SortBy:     input.SortBy,
		SortDesc:   input.SortDesc,
		Limit:      input.Limit,
		Offset:     input.Offset,
		PublicOnly: true,
	}

	scripts, err := s.scripts.List(s.db, filter)
	if err != nil {
		return nil, errors.Wrap(errors.StoreFailure, "failed to list scripts", err)
	}
	total, err := s.scripts.Count(s.db, filter)
	if err != nil {
		return nil, errors.Wrap(errors.StoreFailure, "failed to count scripts", err)
	}

	for _, script := range scripts {
		if err := s.hydrateRefs(script); err != nil {
			return nil, err
		}
	}

	return &ListResult{Scripts: scripts, Total: total}, nil
}

// Versions lists a script's stored content revisions, newest first
func (s *Service) Versions(ctx context.Context, actor Actor, scriptID string) ([]*storage.Version, error) {
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

	versions, err := s.versions.ListByScriptID(s.db, scriptID)
	if err != nil {
		return nil, errors.Wrap(errors.StoreFailure, "failed to list versions", err)
	}
	return versions, nil
}

// hydrate attaches associations to a script for API responses
func (s *Service) hydrate(ctx context.Context, script *storage.Script) (*storage.Script, error) {
	if err := s.hydrateRefs(script); err != nil {
		return nil, err
	}

	analysisRow, err := s.analyses.GetByScriptID(s.db, script.ID)
	if err != nil {
		return nil, errors.Wrap(errors.StoreFailure, "failed to load analysis", err)
	}
	script.Analysis = analysisRow

	return script, nil
}

// hydrateRefs attaches the cheap associations only: owner, category, tags
func (s *Service) hydrateRefs(script *storage.Script) error {
	user, err := s.users.Get(s.db, script.UserID)
	if err != nil {
		return errors.Wrap(errors.StoreFailure, "failed to load owner", err)
	}
	script.User = user

	if script.CategoryID != "" {
		category, err := s.categories.Get(s.db, script.CategoryID)
		if err != nil {
			return errors.Wrap(errors.StoreFailure, "failed to load category", err)
		}
		script.Category = category
	}

	tags, err := s.tags.NamesForScript(s.db, script.ID)
	if err != nil {
		return errors.Wrap(errors.StoreFailure, "failed to load tags", err)
	}
	script.Tags = tags

	return nil
}
