package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned by JobStore.GetJob for an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeReminder fires a transaction reminder notification.
	JobTypeReminder JobType = "transaction_reminder"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusScheduled indicates the job is waiting for its delay to elapse.
	JobStatusScheduled JobStatus = "scheduled"
	// JobStatusPending indicates the job is due and waiting for a worker.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// Live reports whether the job may still run.
func (s JobStatus) Live() bool {
	switch s {
	case JobStatusScheduled, JobStatusPending, JobStatusRunning, JobStatusRetrying:
		return true
	default:
		return false
	}
}

// ReminderPayload is the body of a reminder job.
type ReminderPayload struct {
	OwnerID       string `json:"owner_id"`
	TransactionID string `json:"transaction_id"`
}

// DelayedJob is a job that becomes runnable at RunAt.
type DelayedJob struct {
	// JobID is the caller-chosen stable key. At most one job per key exists.
	JobID string `json:"job_id"`

	Name JobType `json:"name"`

	Payload ReminderPayload `json:"payload"`

	// RunAt is when the job becomes due.
	RunAt time.Time `json:"run_at"`

	Status JobStatus `json:"status"`

	// AutoCleanup removes the job record once it completes or fails terminally.
	AutoCleanup bool `json:"auto_cleanup"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *DelayedJob) GetID() string { return j.JobID }

// GetType implements the Job interface.
func (j *DelayedJob) GetType() JobType { return j.Name }

// GetStatus implements the Job interface.
func (j *DelayedJob) GetStatus() JobStatus { return j.Status }

// EnqueueOptions controls a delayed enqueue.
type EnqueueOptions struct {
	JobID       string
	Delay       time.Duration
	AutoCleanup bool
	MaxRetries  int
}

// Scheduler is the producer side of a delayed-job system.
// This abstraction allows for different queue implementations (in-memory, Cloud Tasks, Redis).
type Scheduler interface {
	// Enqueue schedules a job to run after opts.Delay.
	Enqueue(ctx context.Context, name JobType, payload ReminderPayload, opts EnqueueOptions) error

	// Remove cancels a job by key. Removing an absent job is not an error.
	Remove(ctx context.Context, jobID string) error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs. The handler is called for each due job.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job state.
// This allows tracking job execution across service restarts.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *DelayedJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*DelayedJob, error)

	// DeleteJob removes a job. Deleting an absent job is not an error.
	DeleteJob(ctx context.Context, jobID string) error

	// ListJobs retrieves jobs with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*DelayedJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// TransactionID filters jobs by payload transaction.
	TransactionID string

	// Status filters jobs by status.
	Status JobStatus

	// LiveOnly keeps jobs that may still run.
	LiveOnly bool

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// Matches reports whether job passes the filter.
func (f JobFilter) Matches(job *DelayedJob) bool {
	if f.TransactionID != "" && job.Payload.TransactionID != f.TransactionID {
		return false
	}
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	if f.LiveOnly && !job.Status.Live() {
		return false
	}
	return true
}

// Page applies Offset and Limit to an already filtered list.
func (f JobFilter) Page(in []*DelayedJob) []*DelayedJob {
	if f.Offset > 0 {
		if f.Offset >= len(in) {
			return []*DelayedJob{}
		}
		in = in[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(in) {
		in = in[:f.Limit]
	}
	return in
}
