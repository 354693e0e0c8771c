// Package jobs provides background job processing for work that must not
// hold up script writes: AI re-analysis and embedding refresh. Jobs run
// once; a failed job stays failed and the next write of the same script
// queues a fresh one.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// JobType identifies the kind of work a job performs.
type JobType string

const (
	JobTypeAnalyzeScript   JobType = "analyze_script"
	JobTypeUpsertEmbedding JobType = "upsert_embedding"
)

// ScriptScope carries the target script for script-bound job types.
type ScriptScope struct {
	ScriptID string `json:"scriptId"`
}

// ParseScriptScope parses the scope JSON of a script-bound job.
func ParseScriptScope(scopeJSON string) (*ScriptScope, error) {
	var scope ScriptScope
	if err := json.Unmarshal([]byte(scopeJSON), &scope); err != nil {
		return nil, err
	}
	return &scope, nil
}

// Job represents a background task with its state and metadata.
type Job struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Scope       string     `json:"scope,omitempty"` // JSON-encoded scope parameters
	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// NewJob creates a new queued job with the given type and scope.
func NewJob(jobType JobType, scope interface{}) (*Job, error) {
	var scopeJSON string
	if scope != nil {
		data, err := json.Marshal(scope)
		if err != nil {
			return nil, err
		}
		scopeJSON = string(data)
	}

	return &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Scope:     scopeJSON,
		Status:    JobQueued,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// NewScriptJob creates a queued job targeting one script.
func NewScriptJob(jobType JobType, scriptID string) (*Job, error) {
	return NewJob(jobType, ScriptScope{ScriptID: scriptID})
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed || j.Status == JobCancelled
}

// CanCancel returns true if the job can be cancelled.
func (j *Job) CanCancel() bool {
	return j.Status == JobQueued || j.Status == JobRunning
}

// MarkStarted transitions the job to running state.
func (j *Job) MarkStarted() {
	now := time.Now().UTC()
	j.Status = JobRunning
	j.StartedAt = &now
}

// MarkCompleted transitions the job to completed state.
func (j *Job) MarkCompleted() {
	now := time.Now().UTC()
	j.Status = JobCompleted
	j.CompletedAt = &now
}

// MarkFailed transitions the job to failed state with error.
func (j *Job) MarkFailed(err error) {
	now := time.Now().UTC()
	j.Status = JobFailed
	j.CompletedAt = &now
	if err != nil {
		j.Error = err.Error()
	}
}

// MarkCancelled transitions the job to cancelled state.
func (j *Job) MarkCancelled() {
	now := time.Now().UTC()
	j.Status = JobCancelled
	j.CompletedAt = &now
}

// Duration returns how long the job took (or has been running).
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	endTime := time.Now().UTC()
	if j.CompletedAt != nil {
		endTime = *j.CompletedAt
	}
	return endTime.Sub(*j.StartedAt)
}

// ListJobsOptions contains options for listing jobs.
type ListJobsOptions struct {
	Status []JobStatus
	Type   []JobType
	Limit  int
	Offset int
}

// ListJobsResponse contains the result of listing jobs.
type ListJobsResponse struct {
	Jobs       []*Job `json:"jobs"`
	TotalCount int    `json:"totalCount"`
}
