// Package boltstore persists delayed jobs in a bbolt file so scheduled
// reminders survive process restarts.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/dvloznov/finance-ledger/internal/jobs"
)

// ErrNotFound is returned when a job is not found.
var ErrNotFound = jobs.ErrJobNotFound

const bucketJobs = "jobs"

// Store is a bbolt-backed jobs.JobStore. Jobs are JSON values keyed by JobID.
type Store struct {
	db *bolt.DB
}

// New opens (or creates) the bbolt file at path and initializes the bucket.
func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open job database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketJobs)); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketJobs, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveJob implements jobs.JobStore.
func (s *Store) SaveJob(ctx context.Context, job *jobs.DelayedJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketJobs)).Put([]byte(job.JobID), data)
	})
}

// GetJob implements jobs.JobStore.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.DelayedJob, error) {
	var job jobs.DelayedJob
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketJobs)).Get([]byte(jobID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &job)
	})
	if err != nil {
		return nil, fmt.Errorf("GetJob %s: %w", jobID, err)
	}
	return &job, nil
}

// DeleteJob implements jobs.JobStore.
func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketJobs)).Delete([]byte(jobID))
	})
}

// ListJobs implements jobs.JobStore. Results are ordered by RunAt.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.DelayedJob, error) {
	var result []*jobs.DelayedJob
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketJobs)).ForEach(func(k, v []byte) error {
			var job jobs.DelayedJob
			if err := json.Unmarshal(v, &job); err != nil {
				return fmt.Errorf("decode job %s: %w", k, err)
			}
			if filter.Matches(&job) {
				result = append(result, &job)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("ListJobs: %w", err)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].RunAt.Equal(result[j].RunAt) {
			return result[i].JobID < result[j].JobID
		}
		return result[i].RunAt.Before(result[j].RunAt)
	})
	return filter.Page(result), nil
}

var _ jobs.JobStore = (*Store)(nil)
