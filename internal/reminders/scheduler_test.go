package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/jobs"
)

// fakeQueue records enqueued jobs keyed by JobID.
type fakeQueue struct {
	jobs       map[string]jobs.EnqueueOptions
	payloads   map[string]jobs.ReminderPayload
	removed    []string
	EnqueueErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		jobs:     make(map[string]jobs.EnqueueOptions),
		payloads: make(map[string]jobs.ReminderPayload),
	}
}

func (f *fakeQueue) Enqueue(ctx context.Context, name jobs.JobType, payload jobs.ReminderPayload, opts jobs.EnqueueOptions) error {
	if f.EnqueueErr != nil {
		return f.EnqueueErr
	}
	f.jobs[opts.JobID] = opts
	f.payloads[opts.JobID] = payload
	return nil
}

func (f *fakeQueue) Remove(ctx context.Context, jobID string) error {
	f.removed = append(f.removed, jobID)
	delete(f.jobs, jobID)
	delete(f.payloads, jobID)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestScheduler_UpsertFuture(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	q := newFakeQueue()
	s := NewScheduler(q, fixedClock(now), zerolog.Nop())

	remindAt := domain.RemindAtFor(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), 1440)
	scheduled, err := s.Upsert(context.Background(), "tx1", remindAt, jobs.ReminderPayload{OwnerID: "u1", TransactionID: "tx1"})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !scheduled {
		t.Fatal("expected reminder to be scheduled")
	}

	opts, ok := q.jobs["reminder:tx1"]
	if !ok {
		t.Fatalf("no job enqueued under reminder:tx1: %+v", q.jobs)
	}
	if want := remindAt.Sub(now); opts.Delay != want {
		t.Errorf("Delay = %v, want %v", opts.Delay, want)
	}
	if !opts.AutoCleanup {
		t.Error("expected AutoCleanup")
	}
	if got := remindAt.Format(time.RFC3339); got != "2024-01-09T00:00:00Z" {
		t.Errorf("remindAt = %s", got)
	}
}

func TestScheduler_UpsertReplacesExisting(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := newFakeQueue()
	s := NewScheduler(q, fixedClock(now), zerolog.Nop())
	ctx := context.Background()

	_, _ = s.Upsert(ctx, "tx1", now.Add(time.Hour), jobs.ReminderPayload{TransactionID: "tx1"})
	_, _ = s.Upsert(ctx, "tx1", now.Add(2*time.Hour), jobs.ReminderPayload{TransactionID: "tx1"})

	if len(q.jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(q.jobs))
	}
	if d := q.jobs["reminder:tx1"].Delay; d != 2*time.Hour {
		t.Errorf("Delay = %v, want 2h", d)
	}
}

func TestScheduler_UpsertPastCancels(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := newFakeQueue()
	s := NewScheduler(q, fixedClock(now), zerolog.Nop())
	ctx := context.Background()

	_, _ = s.Upsert(ctx, "tx1", now.Add(time.Hour), jobs.ReminderPayload{TransactionID: "tx1"})

	tests := []struct {
		name     string
		remindAt time.Time
	}{
		{"exactly now", now},
		{"in the past", now.Add(-time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scheduled, err := s.Upsert(ctx, "tx1", tt.remindAt, jobs.ReminderPayload{TransactionID: "tx1"})
			if err != nil {
				t.Fatalf("Upsert failed: %v", err)
			}
			if scheduled {
				t.Error("expected scheduled=false")
			}
			if len(q.jobs) != 0 {
				t.Errorf("expected no live jobs, got %+v", q.jobs)
			}
		})
	}
}

func TestScheduler_CancelIdempotent(t *testing.T) {
	q := newFakeQueue()
	s := NewScheduler(q, nil, zerolog.Nop())

	for i := 0; i < 2; i++ {
		if err := s.Cancel(context.Background(), "tx1"); err != nil {
			t.Fatalf("Cancel #%d failed: %v", i+1, err)
		}
	}
	if len(q.removed) != 2 || q.removed[0] != "reminder:tx1" {
		t.Errorf("removed = %v", q.removed)
	}
}

func TestScheduler_EnqueueError(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := newFakeQueue()
	q.EnqueueErr = errors.New("queue is closed")
	s := NewScheduler(q, fixedClock(now), zerolog.Nop())

	_, err := s.Upsert(context.Background(), "tx1", now.Add(time.Hour), jobs.ReminderPayload{})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestScheduler_Sync(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		reminder      domain.Reminder
		wantRemindAt  bool
		wantScheduled bool
	}{
		{"disabled", domain.Reminder{}, false, false},
		{"enabled future", domain.Reminder{Enabled: true, OffsetMinutes: 60}, true, true},
		{"enabled but past", domain.Reminder{Enabled: true, OffsetMinutes: 20 * 24 * 60}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newFakeQueue()
			s := NewScheduler(q, fixedClock(now), zerolog.Nop())
			tx := &domain.Transaction{ID: "tx1", OwnerID: "u1", Date: day, Reminder: tt.reminder}

			remindAt, scheduled, err := s.Sync(context.Background(), tx)
			if err != nil {
				t.Fatalf("Sync failed: %v", err)
			}
			if (remindAt != nil) != tt.wantRemindAt {
				t.Errorf("remindAt = %v, want set=%v", remindAt, tt.wantRemindAt)
			}
			if scheduled != tt.wantScheduled {
				t.Errorf("scheduled = %v, want %v", scheduled, tt.wantScheduled)
			}
			if got := len(q.jobs); got != map[bool]int{true: 1, false: 0}[tt.wantScheduled] {
				t.Errorf("live jobs = %d", got)
			}
		})
	}
}
