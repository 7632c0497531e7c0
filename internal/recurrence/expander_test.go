package recurrence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/recurrence"
	"github.com/dvloznov/finance-ledger/internal/store"
	"github.com/dvloznov/finance-ledger/internal/store/memory"
)

func day(s string) time.Time {
	t, err := time.Parse(domain.DayLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

type env struct {
	store    *memory.Store
	engine   *ledger.Engine
	expander *recurrence.Expander
}

func newEnv(t *testing.T, now time.Time) *env {
	t.Helper()
	s := memory.NewStore()
	if err := s.CreateAccount(context.Background(), &domain.Account{ID: "acc", OwnerID: "u1", Currency: "USD"}); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	e := ledger.New(ledger.Deps{
		Accounts:     s,
		Categories:   s,
		Transactions: s,
		Now:          func() time.Time { return now },
		Logger:       zerolog.Nop(),
	})
	return &env{store: s, engine: e, expander: recurrence.NewExpander(s, e, 0, zerolog.Nop())}
}

// seedTemplate stores a template directly so its nextRunAt can be chosen freely.
func (e *env) seedTemplate(t *testing.T, id string, r domain.Recurrence) {
	t.Helper()
	r.IsTemplate = true
	if r.Interval == 0 {
		r.Interval = 1
	}
	tpl := &domain.Transaction{
		ID:          id,
		OwnerID:     "u1",
		AccountID:   "acc",
		Type:        domain.TypeExpense,
		AmountMinor: 1000,
		Currency:    "USD",
		Date:        *r.StartDate,
		Recurrence:  r,
		CreatedAt:   *r.StartDate,
	}
	if err := e.store.CreateTransaction(context.Background(), tpl); err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
}

func (e *env) template(t *testing.T, id string) domain.Recurrence {
	t.Helper()
	tpl, err := e.store.GetTransaction(context.Background(), "u1", id)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	return tpl.Recurrence
}

func ptr(t time.Time) *time.Time { return &t }

func TestMaterialize_MonthlyTemplate(t *testing.T) {
	e := newEnv(t, day("2024-01-01"))
	e.seedTemplate(t, "tpl", domain.Recurrence{
		Frequency: domain.FrequencyMonthly,
		StartDate: ptr(day("2023-12-01")),
		NextRunAt: ptr(day("2024-01-01")),
	})

	created, err := e.expander.Materialize(context.Background(), "u1", day("2024-01-01"))
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d instances, want 1", len(created))
	}
	inst := created[0]
	if !inst.Date.Equal(day("2024-01-01")) {
		t.Errorf("instance date = %s", inst.Date.Format(domain.DayLayout))
	}
	if inst.Recurrence.IsTemplate || inst.Recurrence.ParentID == nil || *inst.Recurrence.ParentID != "tpl" {
		t.Errorf("unexpected instance recurrence %+v", inst.Recurrence)
	}

	r := e.template(t, "tpl")
	if r.NextRunAt == nil || !r.NextRunAt.Equal(day("2024-02-01")) {
		t.Errorf("NextRunAt = %v, want 2024-02-01", r.NextRunAt)
	}
	if r.LastRunAt == nil || !r.LastRunAt.Equal(day("2024-01-01")) {
		t.Errorf("LastRunAt = %v, want 2024-01-01", r.LastRunAt)
	}
}

func TestMaterialize_Idempotent(t *testing.T) {
	e := newEnv(t, day("2024-01-01"))
	e.seedTemplate(t, "tpl", domain.Recurrence{
		Frequency: domain.FrequencyMonthly,
		StartDate: ptr(day("2023-12-01")),
		NextRunAt: ptr(day("2024-01-01")),
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := e.expander.Materialize(ctx, "u1", day("2024-01-01")); err != nil {
			t.Fatalf("run %d failed: %v", i+1, err)
		}
	}

	instances, _ := e.store.FindTransactions(ctx, store.TransactionFilter{OwnerID: "u1", DateFrom: ptr(day("2024-01-01"))})
	if len(instances) != 1 {
		t.Errorf("got %d instances, want 1", len(instances))
	}
	a, _ := e.store.GetAccount(ctx, "u1", "acc")
	if a.Balance != -1000 {
		t.Errorf("balance = %d, want -1000", a.Balance)
	}
}

func TestMaterialize_CollisionStillAdvances(t *testing.T) {
	e := newEnv(t, day("2024-01-01"))
	e.seedTemplate(t, "tpl", domain.Recurrence{
		Frequency: domain.FrequencyMonthly,
		StartDate: ptr(day("2023-12-01")),
		NextRunAt: ptr(day("2024-01-01")),
	})
	ctx := context.Background()

	// An earlier run created the instance but crashed before advancing.
	existing := &domain.Transaction{
		ID:          "inst",
		OwnerID:     "u1",
		AccountID:   "acc",
		Type:        domain.TypeExpense,
		AmountMinor: 1000,
		Currency:    "USD",
		Date:        day("2024-01-01"),
		Recurrence: domain.Recurrence{
			ParentID:     ptr2("tpl"),
			ScheduledFor: ptr(day("2024-01-01")),
		},
	}
	if err := e.store.CreateTransaction(ctx, existing); err != nil {
		t.Fatalf("seed instance failed: %v", err)
	}

	created, err := e.expander.Materialize(ctx, "u1", day("2024-01-01"))
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("created %d, want 0", len(created))
	}
	if r := e.template(t, "tpl"); r.NextRunAt == nil || !r.NextRunAt.Equal(day("2024-02-01")) {
		t.Errorf("NextRunAt = %v, want 2024-02-01", r.NextRunAt)
	}
}

func ptr2(s string) *string { return &s }

func TestMaterialize_CatchUpAndEndDate(t *testing.T) {
	e := newEnv(t, day("2024-04-15"))
	e.seedTemplate(t, "tpl", domain.Recurrence{
		Frequency: domain.FrequencyMonthly,
		StartDate: ptr(day("2023-12-10")),
		EndDate:   ptr(day("2024-03-10")),
		NextRunAt: ptr(day("2024-01-10")),
	})

	created, err := e.expander.Materialize(context.Background(), "u1", day("2024-04-15"))
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("created %d instances, want 3 (Jan, Feb, Mar)", len(created))
	}
	if r := e.template(t, "tpl"); r.NextRunAt != nil {
		t.Errorf("NextRunAt = %v, want cleared after end date", r.NextRunAt)
	}

	again, _ := e.expander.Materialize(context.Background(), "u1", day("2025-01-01"))
	if len(again) != 0 {
		t.Errorf("exhausted template produced %d instances", len(again))
	}
}

func TestMaterialize_CatchUpCap(t *testing.T) {
	e := newEnv(t, day("2024-01-31"))
	e.expander = recurrence.NewExpander(e.store, e.engine, 5, zerolog.Nop())
	e.seedTemplate(t, "tpl", domain.Recurrence{
		Frequency: domain.FrequencyDaily,
		StartDate: ptr(day("2023-12-31")),
		NextRunAt: ptr(day("2024-01-01")),
	})

	created, _ := e.expander.Materialize(context.Background(), "u1", day("2024-01-31"))
	if len(created) != 5 {
		t.Errorf("created %d, want 5", len(created))
	}
	if r := e.template(t, "tpl"); r.NextRunAt == nil || !r.NextRunAt.Equal(day("2024-01-06")) {
		t.Errorf("NextRunAt = %v, want 2024-01-06", r.NextRunAt)
	}
}

func TestMaterialize_FutureHorizonDoesNotTouchBalance(t *testing.T) {
	e := newEnv(t, day("2024-01-01"))
	e.seedTemplate(t, "tpl", domain.Recurrence{
		Frequency: domain.FrequencyMonthly,
		StartDate: ptr(day("2024-01-01")),
		NextRunAt: ptr(day("2024-02-01")),
	})

	created, err := e.expander.Materialize(context.Background(), "u1", day("2024-02-01"))
	if err != nil || len(created) != 1 {
		t.Fatalf("Materialize = %d, %v", len(created), err)
	}
	if created[0].Effective {
		t.Error("future-dated instance must not be effective")
	}
	a, _ := e.store.GetAccount(context.Background(), "u1", "acc")
	if a.Balance != 0 {
		t.Errorf("balance = %d, want 0", a.Balance)
	}
}

type failingPoster struct {
	err error
}

func (p failingPoster) Post(ctx context.Context, c domain.Candidate) (*domain.Transaction, error) {
	return nil, p.err
}

func TestMaterialize_PostFailures(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantErr     bool
		wantAdvance bool
	}{
		{"domain error advances", domain.ErrConsistency, false, true},
		{"infrastructure error stops", errors.New("database is locked"), true, false},
		{"failed compensation on collision stops", errors.Join(store.ErrUniqueViolation, domain.ErrCompensationFailed), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, day("2024-01-01"))
			e.seedTemplate(t, "tpl", domain.Recurrence{
				Frequency: domain.FrequencyMonthly,
				StartDate: ptr(day("2023-12-01")),
				NextRunAt: ptr(day("2024-01-01")),
			})
			exp := recurrence.NewExpander(e.store, failingPoster{err: tt.err}, 0, zerolog.Nop())

			_, err := exp.Materialize(context.Background(), "u1", day("2024-01-01"))
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			advanced := e.template(t, "tpl").NextRunAt.Equal(day("2024-02-01"))
			if advanced != tt.wantAdvance {
				t.Errorf("advanced = %v, want %v", advanced, tt.wantAdvance)
			}
		})
	}
}

func TestMaterializeAll(t *testing.T) {
	e := newEnv(t, day("2024-01-01"))
	e.seedTemplate(t, "tpl", domain.Recurrence{
		Frequency: domain.FrequencyWeekly,
		StartDate: ptr(day("2023-12-25")),
		NextRunAt: ptr(day("2024-01-01")),
	})

	n, err := e.expander.MaterializeAll(context.Background(), day("2024-01-01"))
	if err != nil {
		t.Fatalf("MaterializeAll failed: %v", err)
	}
	if n != 1 {
		t.Errorf("created %d, want 1", n)
	}
}
