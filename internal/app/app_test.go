package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/capture"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/drafts"
	"github.com/dvloznov/finance-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/finance-ledger/internal/reminders"
	"github.com/dvloznov/finance-ledger/internal/store"
	"github.com/dvloznov/finance-ledger/internal/store/memory"
)

func seed(t *testing.T, st store.Seeder) {
	t.Helper()
	ctx := context.Background()
	if err := st.CreateAccount(ctx, &domain.Account{ID: "acc-usd", OwnerID: "u1", Currency: "USD"}); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
}

func TestNewServices_ReminderScheduled(t *testing.T) {
	st := memory.NewStore()
	seed(t, st)
	queue := inmemory.NewQueue(10, inmemory.NewStore())
	defer queue.Close()

	svc := NewServices(st, Options{Queue: queue, Threshold: 0.85, Rules: capture.DefaultRules(), Logger: zerolog.Nop()})
	if svc.Reminders == nil {
		t.Fatal("expected a reminder scheduler when a queue is configured")
	}

	tx, err := svc.Engine.Post(context.Background(), domain.Candidate{
		OwnerID:     "u1",
		AccountID:   "acc-usd",
		Type:        domain.TypeExpense,
		AmountMinor: 4200,
		Currency:    "USD",
		Date:        time.Now().AddDate(0, 0, 30),
		Reminder:    domain.ReminderSettings{Enabled: true, OffsetMinutes: 60},
	})
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	live := queue.Live()
	if len(live) != 1 || live[0] != reminders.JobKey(tx.ID) {
		t.Errorf("live jobs = %v, want [%s]", live, reminders.JobKey(tx.ID))
	}
}

func TestNewServices_WithoutQueue(t *testing.T) {
	st := memory.NewStore()
	seed(t, st)
	svc := NewServices(st, Options{Logger: zerolog.Nop()})
	if svc.Reminders != nil {
		t.Fatal("reminder scheduler must be nil without a queue")
	}

	_, err := svc.Engine.Post(context.Background(), domain.Candidate{
		OwnerID:     "u1",
		AccountID:   "acc-usd",
		Type:        domain.TypeExpense,
		AmountMinor: 100,
		Currency:    "USD",
		Date:        time.Now().AddDate(0, 0, 5),
		Reminder:    domain.ReminderSettings{Enabled: true},
	})
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
}

func TestNewServices_CaptureReviewFlow(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	seed(t, st)
	svc := NewServices(st, Options{Rules: capture.DefaultRules(), Threshold: 0.99, Logger: zerolog.Nop()})

	res, err := svc.Capture.Capture(ctx, "u1", "acc-usd", "spent 12.50 USD lunch", capture.Overrides{})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if res.Outcome != capture.OutcomeDraft {
		t.Fatalf("Outcome = %s, want draft", res.Outcome)
	}

	amount := int64(1300)
	if _, err := svc.Drafts.Patch(ctx, "u1", res.Draft.ID, drafts.Patch{AmountMinor: &amount}); err != nil {
		t.Fatalf("Patch failed: %v", err)
	}
	d, tx, err := svc.Drafts.Post(ctx, "u1", res.Draft.ID)
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if d.Status != domain.DraftStatusPosted || tx.AmountMinor != 1300 {
		t.Errorf("got status %s amount %d", d.Status, tx.AmountMinor)
	}

	rep, err := svc.Reconciler.Check(ctx, "u1", "acc-usd")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !rep.Balanced() {
		t.Errorf("ledger drifted: %+v", rep)
	}
}

func TestRunRecurrence(t *testing.T) {
	st := memory.NewStore()
	seed(t, st)
	now := func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) }
	svc := NewServices(st, Options{Now: now, Logger: zerolog.Nop()})

	_, err := svc.Engine.Post(context.Background(), domain.Candidate{
		OwnerID:     "u1",
		AccountID:   "acc-usd",
		Type:        domain.TypeExpense,
		AmountMinor: 999,
		Currency:    "USD",
		Date:        time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Recurrence:  &domain.RecurrenceSettings{Frequency: domain.FrequencyMonthly, Interval: 1},
	})
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunRecurrence(ctx, svc.Expander, time.Hour, now, zerolog.Nop())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	var txs []domain.Transaction
	for time.Now().Before(deadline) {
		txs, err = st.FindTransactions(context.Background(), store.TransactionFilter{OwnerID: "u1"})
		if err != nil {
			t.Fatalf("FindTransactions failed: %v", err)
		}
		if len(txs) == 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if len(txs) != 3 {
		t.Fatalf("got %d transactions, want template plus 2 instances", len(txs))
	}
	a, _ := st.GetAccount(context.Background(), "u1", "acc-usd")
	if a.Balance != -3*999 {
		t.Errorf("Balance = %d, want %d", a.Balance, -3*999)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Store: config.StoreConfig{
			DBPath:     filepath.Join(dir, "ledger.db"),
			JobsDBPath: filepath.Join(dir, "jobs.db"),
		},
		Capture:    config.CaptureConfig{AutoPostThreshold: 0.85},
		Recurrence: config.RecurrenceConfig{Interval: time.Hour, MaxCatchUp: 10},
		Reminders:  config.ReminderConfig{Workers: 1, QueueBuffer: 4},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := Open(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if rt.Exporter != nil {
		t.Error("exporter must stay nil without a BigQuery project")
	}
	seed(t, rt.Store)

	tx, err := rt.Engine.Post(ctx, domain.Candidate{
		OwnerID:     "u1",
		AccountID:   "acc-usd",
		Type:        domain.TypeIncome,
		AmountMinor: 5000,
		Currency:    "USD",
		Date:        time.Now().AddDate(0, 1, 0),
		Reminder:    domain.ReminderSettings{Enabled: true},
	})
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if err := rt.StartReminders(ctx); err != nil {
		t.Fatalf("StartReminders failed: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopening restores the persisted reminder job.
	rt, err = Open(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer rt.Close()
	n, err := rt.Queue.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if n != 1 {
		t.Errorf("restored %d jobs, want 1", n)
	}
	got, err := rt.Store.GetTransaction(ctx, "u1", tx.ID)
	if err != nil || got.AmountMinor != 5000 {
		t.Errorf("GetTransaction = %+v, %v", got, err)
	}
}

func TestOpen_BadRulesPath(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Store:   config.StoreConfig{DBPath: filepath.Join(dir, "ledger.db"), JobsDBPath: filepath.Join(dir, "jobs.db")},
		Capture: config.CaptureConfig{RulesPath: filepath.Join(dir, "missing.yaml")},
	}
	if _, err := Open(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected an error for a missing rules file")
	}
}
