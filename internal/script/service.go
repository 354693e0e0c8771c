// Package script implements the script lifecycle: create, upload, update,
// delete, execution, analysis orchestration, and similarity search. All
// writes go through one service so the invariants hold everywhere: version
// bumps only on content change, at most one analysis row per script, and
// cache invalidation on every mutation.
package script

import (
	"context"
	"time"

	"scriptd/internal/analysis"
	"scriptd/internal/cache"
	"scriptd/internal/embedding"
	"scriptd/internal/errors"
	"scriptd/internal/jobs"
	"scriptd/internal/logging"
	"scriptd/internal/safety"
	"scriptd/internal/storage"
)

// Input field limits
const (
	maxTitleLength       = 255
	maxDescriptionLength = 4000
)

// Actor is the authenticated principal performing an operation
type Actor struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the actor may mutate other users' scripts
func (a Actor) IsAdmin() bool {
	return a.Role == storage.RoleAdmin
}

// canMutate reports whether the actor may change the given script
func (a Actor) canMutate(s *storage.Script) bool {
	return a.IsAdmin() || s.UserID == a.UserID
}

// canRead reports whether the actor may see the given script
func (a Actor) canRead(s *storage.Script) bool {
	return s.IsPublic || a.canMutate(s)
}

// Options tunes service behavior
type Options struct {
	ScriptTTL     time.Duration
	ListTTL       time.Duration
	MinSimilarity float64
}

// DefaultOptions returns the default service options
func DefaultOptions() Options {
	return Options{
		ScriptTTL:     10 * time.Minute,
		ListTTL:       5 * time.Minute,
		MinSimilarity: 0.7,
	}
}

// Service owns the script lifecycle
type Service struct {
	db         *storage.DB
	scripts    *storage.ScriptRepository
	analyses   *storage.AnalysisRepository
	versions   *storage.VersionRepository
	tags       *storage.TagRepository
	execLogs   *storage.ExecutionLogRepository
	users      *storage.UserRepository
	categories *storage.CategoryRepository

	analyzer   *analysis.Client
	embeddings *embedding.Gateway
	cache      *cache.Cache
	runner     *jobs.Runner
	screen     *safety.Screen
	executor   Executor

	opts   Options
	logger *logging.Logger
}

// NewService wires up the script service. The runner may be nil in tests;
// background work is then skipped. The executor may be nil, which leaves
// script execution disabled.
func NewService(
	db *storage.DB,
	analyzer *analysis.Client,
	embeddings *embedding.Gateway,
	scriptCache *cache.Cache,
	runner *jobs.Runner,
	screen *safety.Screen,
	opts Options,
	logger *logging.Logger,
) (*Service, error) {
	versions, err := storage.NewVersionRepository(db)
	if err != nil {
		return nil, err
	}

	if opts.ScriptTTL <= 0 {
		opts.ScriptTTL = DefaultOptions().ScriptTTL
	}
	if opts.ListTTL <= 0 {
		opts.ListTTL = DefaultOptions().ListTTL
	}
	if opts.MinSimilarity <= 0 {
		opts.MinSimilarity = DefaultOptions().MinSimilarity
	}

	return &Service{
		db:         db,
		scripts:    storage.NewScriptRepository(db),
		analyses:   storage.NewAnalysisRepository(db),
		versions:   versions,
		tags:       storage.NewTagRepository(db),
		execLogs:   storage.NewExecutionLogRepository(db),
		users:      storage.NewUserRepository(db),
		categories: storage.NewCategoryRepository(db),
		analyzer:   analyzer,
		embeddings: embeddings,
		cache:      scriptCache,
		runner:     runner,
		screen:     screen,
		opts:       opts,
		logger:     logger,
	}, nil
}

// SetExecutor installs a script executor. Without one, Execute is refused.
func (s *Service) SetExecutor(executor Executor) {
	s.executor = executor
}

// validateWrite checks the shared fields of create and upload input
func validateWrite(title, content string) error {
	var v errors.ValidationErrors
	if title == "" {
		v.Add("title", "title is required")
	} else if len(title) > maxTitleLength {
		v.Add("title", "title is too long")
	}
	if content == "" {
		v.Add("content", "content is required")
	}
	return v.AsError()
}

// screenContent runs the safety rules and converts violations into the
// unsafe-content error
func (s *Service) screenContent(content string) error {
	if s.screen == nil {
		return nil
	}
	violations := s.screen.Check(content)
	if len(violations) == 0 {
		return nil
	}
	return errors.New(errors.UnsafeContent, "script content failed the safety screen").
		WithDetails(violations)
}

// invalidate drops a script's cache entry and every list entry
func (s *Service) invalidate(ctx context.Context, scriptID string) {
	if s.cache == nil {
		return
	}
	s.cache.Delete(ctx, cache.ScriptKey(scriptID))
	s.cache.DeleteByPrefix(ctx, cache.ListKeyPrefix())
}

// schedule queues a background job, tolerating a missing runner
func (s *Service) schedule(jobType jobs.JobType, scriptID string) {
	if s.runner == nil {
		return
	}
	job, err := jobs.NewScriptJob(jobType, scriptID)
	if err != nil {
		s.logger.Warn("Failed to build job", map[string]interface{}{
			"type":      jobType,
			"script_id": scriptID,
			"error":     err.Error(),
		})
		return
	}
	if err := s.runner.Submit(job); err != nil {
		s.logger.Warn("Failed to queue job", map[string]interface{}{
			"type":      jobType,
			"script_id": scriptID,
			"error":     err.Error(),
		})
	}
}
