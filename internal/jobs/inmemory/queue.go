package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/jobs"
)

const (
	defaultWorkers    = 5
	defaultMaxRetries = 3
)

// Queue is an in-memory delayed job queue.
// Each job waits on its own timer, then flows through a channel to a pool of
// workers. Jobs are keyed by JobID: enqueueing an existing key replaces it,
// so at most one live job per key exists. Job state is mirrored to a JobStore
// so Restore can reschedule pending work after a restart. Store writes happen
// under mu, and only for the job that is live for its key.
type Queue struct {
	jobChan   chan *jobs.DelayedJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	live      map[string]*entry
	store     jobs.JobStore
	closed    bool
	started   bool

	workers   int
	retryBase time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

type entry struct {
	job   *jobs.DelayedJob
	timer *time.Timer
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithRetryBackoff sets the linear retry backoff step.
func WithRetryBackoff(d time.Duration) Option {
	return func(q *Queue) { q.retryBase = d }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithLogger sets the queue logger.
func WithLogger(log zerolog.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// NewQueue creates a new in-memory delayed job queue.
// bufferSize determines how many due jobs can wait for a worker before timers block.
func NewQueue(bufferSize int, store jobs.JobStore, opts ...Option) *Queue {
	q := &Queue{
		jobChan:   make(chan *jobs.DelayedJob, bufferSize),
		closeChan: make(chan struct{}),
		live:      make(map[string]*entry),
		store:     store,
		workers:   defaultWorkers,
		retryBase: time.Second,
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue implements jobs.Scheduler.
func (q *Queue) Enqueue(ctx context.Context, name jobs.JobType, payload jobs.ReminderPayload, opts jobs.EnqueueOptions) error {
	if opts.JobID == "" {
		opts.JobID = uuid.New().String()
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}

	now := q.now()
	job := &jobs.DelayedJob{
		JobID:       opts.JobID,
		Name:        name,
		Payload:     payload,
		RunAt:       now.Add(opts.Delay),
		Status:      jobs.JobStatusScheduled,
		AutoCleanup: opts.AutoCleanup,
		CreatedAt:   now,
		MaxRetries:  opts.MaxRetries,
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	q.scheduleLocked(job, opts.Delay)
	return nil
}

// scheduleLocked arms the timer for job, replacing any live job with the same key.
func (q *Queue) scheduleLocked(job *jobs.DelayedJob, delay time.Duration) {
	if old, ok := q.live[job.JobID]; ok {
		old.timer.Stop()
	}
	e := &entry{job: job}
	e.timer = time.AfterFunc(delay, func() { q.dispatch(job) })
	q.live[job.JobID] = e
}

// isCurrentLocked reports whether job is still the live job for its key.
func (q *Queue) isCurrentLocked(job *jobs.DelayedJob) bool {
	e, ok := q.live[job.JobID]
	return ok && e.job == job
}

// dispatch hands a due job to the workers unless it was removed or replaced.
func (q *Queue) dispatch(job *jobs.DelayedJob) {
	q.mu.Lock()
	if q.closed || !q.isCurrentLocked(job) {
		q.mu.Unlock()
		return
	}
	job.Status = jobs.JobStatusPending
	q.saveLocked(context.Background(), job)
	q.mu.Unlock()

	select {
	case q.jobChan <- job:
	case <-q.closeChan:
	}
}

// Remove implements jobs.Scheduler.
func (q *Queue) Remove(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.live[jobID]; ok {
		e.timer.Stop()
		delete(q.live, jobID)
	}
	if q.store != nil {
		if err := q.store.DeleteJob(ctx, jobID); err != nil {
			return fmt.Errorf("failed to delete job %s: %w", jobID, err)
		}
	}
	return nil
}

// Restore reschedules live jobs found in the store that this queue does not
// already track. Overdue jobs run immediately. It returns how many were restored.
func (q *Queue) Restore(ctx context.Context) (int, error) {
	if q.store == nil {
		return 0, nil
	}
	stored, err := q.store.ListJobs(ctx, jobs.JobFilter{LiveOnly: true})
	if err != nil {
		return 0, fmt.Errorf("failed to list stored jobs: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, fmt.Errorf("queue is closed")
	}

	restored := 0
	now := q.now()
	for _, job := range stored {
		if _, ok := q.live[job.JobID]; ok {
			continue
		}
		job.Status = jobs.JobStatusScheduled
		job.StartedAt = nil
		delay := job.RunAt.Sub(now)
		if delay < 0 {
			delay = 0
		}
		q.scheduleLocked(job, delay)
		restored++
	}
	return restored, nil
}

// Start implements the Consumer interface.
// It starts the worker goroutines that process due jobs using handler.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}
	if q.started {
		return fmt.Errorf("queue already started")
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.DelayedJob, handler jobs.JobHandler) {
	q.mu.Lock()
	if !q.isCurrentLocked(job) {
		// Removed or replaced while waiting for a worker.
		q.mu.Unlock()
		return
	}
	job.Status = jobs.JobStatusRunning
	now := q.now()
	job.StartedAt = &now
	q.saveLocked(ctx, job)
	q.mu.Unlock()

	err := handler(ctx, job)

	q.mu.Lock()
	if !q.isCurrentLocked(job) {
		q.mu.Unlock()
		return
	}

	completedAt := q.now()
	job.CompletedAt = &completedAt

	if err != nil {
		job.Error = err.Error()
		q.log.Warn().Err(err).Str("job_id", job.JobID).Int("retry_count", job.RetryCount).Msg("Job failed")

		if job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Status = jobs.JobStatusRetrying
			backoff := time.Duration(job.RetryCount) * q.retryBase
			q.live[job.JobID].timer = time.AfterFunc(backoff, func() {
				q.mu.Lock()
				job.StartedAt = nil
				job.CompletedAt = nil
				q.mu.Unlock()
				q.dispatch(job)
			})
			q.saveLocked(ctx, job)
			q.mu.Unlock()
			return
		}
		job.Status = jobs.JobStatusFailed
	} else {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	}

	delete(q.live, job.JobID)
	if job.AutoCleanup && q.store != nil {
		if err := q.store.DeleteJob(ctx, job.JobID); err != nil {
			q.log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to delete finished job")
		}
	} else {
		q.saveLocked(ctx, job)
	}
	q.mu.Unlock()
}

// saveLocked mirrors job to the store. The store copies what it keeps.
func (q *Queue) saveLocked(ctx context.Context, job *jobs.DelayedJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to persist job state")
	}
}

// Live returns the keys of jobs that may still run, for diagnostics.
func (q *Queue) Live() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	keys := make([]string, 0, len(q.live))
	for k := range q.live {
		keys = append(keys, k)
	}
	return keys
}

// Stop implements the Consumer interface.
// It stops timers and workers and waits for in-flight jobs to complete.
// Scheduled jobs stay in the store for Restore.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for _, e := range q.live {
		e.timer.Stop()
	}
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the queue and releases resources.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Scheduler and Consumer interfaces.
var _ jobs.Scheduler = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
