package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"scriptd/internal/logging"
)

// JobHandler executes a specific type of job. Each job gets a single
// attempt; a returned error marks it failed permanently.
type JobHandler func(ctx context.Context, job *Job) error

// jobRetention is how long terminal jobs stay queryable before cleanup
const jobRetention = 7 * 24 * time.Hour

// Runner manages background job execution.
type Runner struct {
	store    *Store
	logger   *logging.Logger
	handlers map[JobType]JobHandler

	queue       chan *Job
	queueSize   int
	workerCount int

	done   chan struct{}
	cancel map[string]context.CancelFunc

	mu sync.RWMutex
	wg sync.WaitGroup

	processedCount atomic.Int64
	failedCount    atomic.Int64

	recoveryInterval time.Duration
}

// RunnerConfig contains configuration for the job runner.
type RunnerConfig struct {
	QueueSize        int
	WorkerCount      int
	RecoveryInterval time.Duration // How often to check for jobs stranded in the queue table
}

// DefaultRunnerConfig returns the default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		QueueSize:        100,
		WorkerCount:      2,
		RecoveryInterval: 30 * time.Second,
	}
}

// NewRunner creates a new job runner.
func NewRunner(store *Store, logger *logging.Logger, config RunnerConfig) *Runner {
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.RecoveryInterval <= 0 {
		config.RecoveryInterval = 30 * time.Second
	}

	return &Runner{
		store:            store,
		logger:           logger,
		handlers:         make(map[JobType]JobHandler),
		queue:            make(chan *Job, config.QueueSize),
		queueSize:        config.QueueSize,
		workerCount:      config.WorkerCount,
		done:             make(chan struct{}),
		cancel:           make(map[string]context.CancelFunc),
		recoveryInterval: config.RecoveryInterval,
	}
}

// RegisterHandler registers a handler for a job type.
func (r *Runner) RegisterHandler(jobType JobType, handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
	r.logger.Debug("Registered job handler", map[string]interface{}{
		"type": jobType,
	})
}

// Start begins processing jobs.
func (r *Runner) Start() error {
	r.logger.Info("Starting job runner", map[string]interface{}{
		"workers":          r.workerCount,
		"queueSize":        r.queueSize,
		"recoveryInterval": r.recoveryInterval.String(),
	})

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.recoveryLoop()

	// Pick up jobs queued before a restart. Only never-started jobs are
	// recovered; a job that died while running stays as it ended.
	r.recoverPendingJobs()

	return nil
}

func (r *Runner) recoveryLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.recoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.recoverPendingJobs()
			r.cleanupOldJobs()
		case <-r.done:
			r.logger.Debug("Recovery loop stopping", nil)
			return
		}
	}
}

// cleanupOldJobs prunes terminal jobs past the retention window
func (r *Runner) cleanupOldJobs() {
	removed, err := r.store.CleanupOldJobs(jobRetention)
	if err != nil {
		r.logger.Warn("Failed to clean up old jobs", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if removed > 0 {
		r.logger.Debug("Cleaned up old jobs", map[string]interface{}{
			"removed": removed,
		})
	}
}

func (r *Runner) recoverPendingJobs() {
	pending, err := r.store.GetPendingJobs()
	if err != nil {
		r.logger.Warn("Failed to recover pending jobs", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if len(pending) == 0 {
		return
	}

	recovered := 0
	for _, job := range pending {
		select {
		case r.queue <- job:
			recovered++
		default:
			// Queue still full, will retry on next interval
		}
	}

	if recovered > 0 {
		r.logger.Info("Recovered pending jobs", map[string]interface{}{
			"recovered": recovered,
			"remaining": len(pending) - recovered,
		})
	}
}

// Stop gracefully shuts down the runner.
func (r *Runner) Stop(timeout time.Duration) error {
	r.logger.Info("Stopping job runner", nil)

	close(r.done)

	r.mu.Lock()
	for id, cancel := range r.cancel {
		r.logger.Debug("Cancelling running job", map[string]interface{}{
			"jobId": id,
		})
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Job runner stopped cleanly", nil)
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("job runner shutdown timed out after %v", timeout)
	}
}

// Submit persists a job and adds it to the queue. A full queue is not an
// error; the job stays queued in the database and recovery picks it up.
func (r *Runner) Submit(job *Job) error {
	if err := r.store.CreateJob(job); err != nil {
		return fmt.Errorf("failed to persist job: %w", err)
	}

	select {
	case r.queue <- job:
		r.logger.Debug("Job queued", map[string]interface{}{
			"jobId": job.ID,
			"type":  job.Type,
		})
		return nil
	case <-time.After(100 * time.Millisecond):
		r.logger.Warn("Job queue full, job will be processed later", map[string]interface{}{
			"jobId": job.ID,
		})
		return nil
	case <-r.done:
		return fmt.Errorf("runner is shutting down")
	}
}

// Cancel attempts to cancel a job.
func (r *Runner) Cancel(jobID string) error {
	job, err := r.store.GetJob(jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if !job.CanCancel() {
		return fmt.Errorf("job cannot be cancelled in state: %s", job.Status)
	}

	r.mu.Lock()
	if cancel, ok := r.cancel[jobID]; ok {
		cancel()
	}
	r.mu.Unlock()

	job.MarkCancelled()
	return r.store.UpdateJob(job)
}

// GetJob retrieves a job by ID.
func (r *Runner) GetJob(jobID string) (*Job, error) {
	return r.store.GetJob(jobID)
}

// ListJobs lists jobs with filters.
func (r *Runner) ListJobs(opts ListJobsOptions) (*ListJobsResponse, error) {
	return r.store.ListJobs(opts)
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("Job worker started", map[string]interface{}{
		"workerId": id,
	})

	for {
		select {
		case job, ok := <-r.queue:
			if !ok {
				return
			}
			r.processJob(job)

		case <-r.done:
			r.logger.Debug("Job worker stopping", map[string]interface{}{
				"workerId": id,
			})
			return
		}
	}
}

func (r *Runner) processJob(job *Job) {
	r.mu.RLock()
	handler, ok := r.handlers[job.Type]
	r.mu.RUnlock()

	if !ok {
		r.logger.Error("No handler for job type", map[string]interface{}{
			"jobId": job.ID,
			"type":  job.Type,
		})
		job.MarkFailed(fmt.Errorf("no handler for job type: %s", job.Type))
		_ = r.store.UpdateJob(job)
		return
	}

	// A job may have been cancelled, or recovered twice, between queueing
	// and execution. Re-check its persisted state before running.
	current, err := r.store.GetJob(job.ID)
	if err == nil && current != nil && current.Status != JobQueued {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel[job.ID] = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.cancel, job.ID)
		r.mu.Unlock()
		cancel()
	}()

	job.MarkStarted()
	if err := r.store.UpdateJob(job); err != nil {
		r.logger.Error("Failed to update job status", map[string]interface{}{
			"jobId": job.ID,
			"error": err.Error(),
		})
	}

	r.logger.Info("Processing job", map[string]interface{}{
		"jobId": job.ID,
		"type":  job.Type,
	})

	startTime := time.Now()
	err = handler(ctx, job)
	duration := time.Since(startTime)

	if err != nil {
		if ctx.Err() == context.Canceled {
			job.MarkCancelled()
			r.logger.Info("Job cancelled", map[string]interface{}{
				"jobId":    job.ID,
				"duration": duration.String(),
			})
		} else {
			job.MarkFailed(err)
			r.failedCount.Add(1)
			r.logger.Error("Job failed", map[string]interface{}{
				"jobId":    job.ID,
				"error":    err.Error(),
				"duration": duration.String(),
			})
		}
	} else {
		job.MarkCompleted()
		r.processedCount.Add(1)
		r.logger.Info("Job completed", map[string]interface{}{
			"jobId":    job.ID,
			"duration": duration.String(),
		})
	}

	if err := r.store.UpdateJob(job); err != nil {
		r.logger.Error("Failed to save job final state", map[string]interface{}{
			"jobId": job.ID,
			"error": err.Error(),
		})
	}
}

// Stats returns runner statistics.
func (r *Runner) Stats() map[string]interface{} {
	r.mu.RLock()
	runningCount := len(r.cancel)
	r.mu.RUnlock()

	return map[string]interface{}{
		"queueLength":    len(r.queue),
		"queueCapacity":  r.queueSize,
		"runningJobs":    runningCount,
		"processedTotal": r.processedCount.Load(),
		"failedTotal":    r.failedCount.Load(),
		"workerCount":    r.workerCount,
	}
}

// QueueLength returns the current queue length.
func (r *Runner) QueueLength() int {
	return len(r.queue)
}

// IsRunning returns true if the runner is active.
func (r *Runner) IsRunning() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}
