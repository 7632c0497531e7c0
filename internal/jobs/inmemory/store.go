package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/finance-ledger/internal/jobs"
)

// Store is an in-memory implementation of JobStore.
// It stores jobs in memory and is safe for concurrent use.
// Data is lost on service restart - for persistence, use boltstore.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.DelayedJob
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.DelayedJob),
	}
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.DelayedJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Create a copy to avoid external modifications
	jobCopy := *job
	s.jobs[job.JobID] = &jobCopy

	return nil
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.DelayedJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}

	jobCopy := *job
	return &jobCopy, nil
}

// DeleteJob implements the JobStore interface.
func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, jobID)
	return nil
}

// ListJobs implements the JobStore interface. Results are ordered by RunAt.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.DelayedJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*jobs.DelayedJob
	for _, job := range s.jobs {
		if !filter.Matches(job) {
			continue
		}
		jobCopy := *job
		result = append(result, &jobCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].RunAt.Equal(result[j].RunAt) {
			return result[i].JobID < result[j].JobID
		}
		return result[i].RunAt.Before(result[j].RunAt)
	})

	return filter.Page(result), nil
}

// Ensure Store implements JobStore interface.
var _ jobs.JobStore = (*Store)(nil)
