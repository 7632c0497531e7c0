// Package reminders keeps at most one delayed notification job per transaction.
package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/jobs"
)

// JobKey is the stable job id for a transaction's reminder.
func JobKey(transactionID string) string {
	return "reminder:" + transactionID
}

// Scheduler upserts and cancels reminder jobs on a delayed-job system.
type Scheduler struct {
	queue jobs.Scheduler
	now   func() time.Time
	log   zerolog.Logger
}

// NewScheduler creates a Scheduler. now may be nil to use time.Now.
func NewScheduler(queue jobs.Scheduler, now func() time.Time, log zerolog.Logger) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{queue: queue, now: now, log: log}
}

// Upsert replaces the reminder job for transactionID so it fires at remindAt.
// A remindAt that is not in the future cancels any existing job instead and
// reports scheduled=false.
func (s *Scheduler) Upsert(ctx context.Context, transactionID string, remindAt time.Time, payload jobs.ReminderPayload) (bool, error) {
	now := s.now()
	if !remindAt.After(now) {
		if err := s.Cancel(ctx, transactionID); err != nil {
			return false, err
		}
		return false, nil
	}

	key := JobKey(transactionID)
	if err := s.queue.Remove(ctx, key); err != nil {
		return false, fmt.Errorf("Upsert: remove existing reminder: %w", err)
	}

	err := s.queue.Enqueue(ctx, jobs.JobTypeReminder, payload, jobs.EnqueueOptions{
		JobID:       key,
		Delay:       remindAt.Sub(now),
		AutoCleanup: true,
	})
	if err != nil {
		return false, fmt.Errorf("Upsert: enqueue reminder: %w", err)
	}

	s.log.Debug().
		Str("transaction_id", transactionID).
		Time("remind_at", remindAt).
		Msg("Reminder scheduled")
	return true, nil
}

// Cancel removes the reminder job for transactionID. It is idempotent.
func (s *Scheduler) Cancel(ctx context.Context, transactionID string) error {
	if err := s.queue.Remove(ctx, JobKey(transactionID)); err != nil {
		return fmt.Errorf("Cancel: remove reminder: %w", err)
	}
	return nil
}

// Sync applies a transaction's reminder settings: it schedules the job when
// enabled and in the future, otherwise cancels it. It returns the remindAt
// that was computed, or nil when the reminder is disabled.
func (s *Scheduler) Sync(ctx context.Context, tx *domain.Transaction) (*time.Time, bool, error) {
	if !tx.Reminder.Enabled {
		return nil, false, s.Cancel(ctx, tx.ID)
	}
	remindAt := domain.RemindAtFor(tx.Date, tx.Reminder.OffsetMinutes)
	scheduled, err := s.Upsert(ctx, tx.ID, remindAt, jobs.ReminderPayload{
		OwnerID:       tx.OwnerID,
		TransactionID: tx.ID,
	})
	return &remindAt, scheduled, err
}
