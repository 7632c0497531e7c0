package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/drafts"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/store"
	"github.com/dvloznov/finance-ledger/internal/store/memory"
)

var captureNow = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

type harness struct {
	store   *memory.Store
	service *Service
}

func newHarness(t *testing.T, categories ...domain.Category) *harness {
	t.Helper()
	ctx := context.Background()
	s := memory.NewStore()
	for _, a := range []domain.Account{
		{ID: "acc-try", OwnerID: "u1", Currency: "TRY"},
		{ID: "acc-usd", OwnerID: "u1", Currency: "USD"},
	} {
		a := a
		if err := s.CreateAccount(ctx, &a); err != nil {
			t.Fatalf("CreateAccount failed: %v", err)
		}
	}
	for i := range categories {
		if err := s.CreateCategory(ctx, &categories[i]); err != nil {
			t.Fatalf("CreateCategory failed: %v", err)
		}
	}

	now := func() time.Time { return captureNow }
	engine := ledger.New(ledger.Deps{
		Accounts:     s,
		Categories:   s,
		Transactions: s,
		Now:          now,
		Logger:       zerolog.Nop(),
	})
	draftSvc := drafts.NewService(s, engine, now, zerolog.Nop())

	return &harness{
		store: s,
		service: NewService(Deps{
			Accounts:     s,
			Categories:   s,
			Transactions: s,
			DraftRepo:    s,
			Drafts:       draftSvc,
			Now:          now,
			Logger:       zerolog.Nop(),
		}),
	}
}

func (h *harness) transactions(t *testing.T) []domain.Transaction {
	t.Helper()
	txs, err := h.store.FindTransactions(context.Background(), store.TransactionFilter{OwnerID: "u1"})
	if err != nil {
		t.Fatalf("FindTransactions failed: %v", err)
	}
	return txs
}

func TestCapture_LowConfidenceBecomesDraft(t *testing.T) {
	h := newHarness(t)

	res, err := h.service.Capture(context.Background(), "u1", "acc-try", "paid 280 TRY coffee", Overrides{})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if res.Outcome != OutcomeDraft || res.Draft == nil {
		t.Fatalf("Outcome = %s, want draft", res.Outcome)
	}
	d := res.Draft
	if d.Confidence != 0.75 {
		t.Errorf("Confidence = %v, want 0.75", d.Confidence)
	}
	if d.Status != domain.DraftStatusDraft {
		t.Errorf("Status = %s", d.Status)
	}
	c := d.Candidate
	if c.AmountMinor != 28000 || c.Currency != "TRY" || c.Type != domain.TypeExpense {
		t.Errorf("unexpected candidate %+v", c)
	}
	if c.Description == nil || *c.Description != "coffee" {
		t.Errorf("Description = %v, want coffee", c.Description)
	}
	if len(d.Reasons) != 1 {
		t.Errorf("Reasons = %v, want only the date fallback", d.Reasons)
	}
	if n := len(h.transactions(t)); n != 0 {
		t.Errorf("created %d transactions, want 0", n)
	}
}

func TestCapture_FullConfidenceAutoPosts(t *testing.T) {
	h := newHarness(t, domain.Category{ID: "cat-salary", OwnerID: "u1", Kind: domain.KindIncome, Name: "Salary"})
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cat := "cat-salary"

	res, err := h.service.Capture(context.Background(), "u1", "acc-usd", "salary 1500 USD",
		Overrides{Date: &date, CategoryID: &cat})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if res.Outcome != OutcomeAutoPosted || res.Transaction == nil {
		t.Fatalf("Outcome = %s, want auto_posted", res.Outcome)
	}
	tx := res.Transaction
	if tx.Type != domain.TypeIncome || tx.AmountMinor != 150000 {
		t.Errorf("unexpected transaction %+v", tx)
	}
	if res.Draft == nil || res.Draft.Confidence != 1.0 || res.Draft.Status != domain.DraftStatusPosted {
		t.Errorf("unexpected draft %+v", res.Draft)
	}

	a, _ := h.store.GetAccount(context.Background(), "u1", "acc-usd")
	if a.Balance != 150000 {
		t.Errorf("balance = %d, want 150000", a.Balance)
	}
}

func TestCapture_CategoryMatchedByName(t *testing.T) {
	h := newHarness(t,
		domain.Category{ID: "cat-salary", OwnerID: "u1", Kind: domain.KindIncome, Name: "Lunch"},
		domain.Category{ID: "cat-lunch", OwnerID: "u1", Kind: domain.KindExpense, Name: "Lunch"},
	)

	res, err := h.service.Capture(context.Background(), "u1", "acc-usd", "spent 50 USD lunch", Overrides{})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if res.Outcome != OutcomeAutoPosted {
		t.Fatalf("Outcome = %s, want auto_posted at 0.90", res.Outcome)
	}
	if id := res.Transaction.CategoryID; id == nil || *id != "cat-lunch" {
		t.Errorf("CategoryID = %v, want the expense category", id)
	}
}

func TestCapture_Duplicates(t *testing.T) {
	tests := []struct {
		name       string
		categories []domain.Category
		wantFirst  Outcome
	}{
		{"first drafted", nil, OutcomeDraft},
		{"first auto-posted", []domain.Category{{ID: "c", OwnerID: "u1", Kind: domain.KindExpense, Name: "lunch"}}, OutcomeAutoPosted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.categories...)
			ctx := context.Background()

			first, err := h.service.Capture(ctx, "u1", "acc-usd", "spent 50 USD lunch", Overrides{})
			if err != nil {
				t.Fatalf("first Capture failed: %v", err)
			}
			if first.Outcome != tt.wantFirst {
				t.Fatalf("first Outcome = %s, want %s", first.Outcome, tt.wantFirst)
			}

			second, err := h.service.Capture(ctx, "u1", "acc-usd", "spent 50 USD lunch", Overrides{})
			if err != nil {
				t.Fatalf("second Capture failed: %v", err)
			}
			if second.Outcome != OutcomeDuplicate {
				t.Fatalf("second Outcome = %s, want duplicate", second.Outcome)
			}

			wantID := first.Draft.ID
			if first.Transaction != nil {
				wantID = first.Transaction.ID
			}
			if second.DuplicateOf != wantID {
				t.Errorf("DuplicateOf = %s, want %s", second.DuplicateOf, wantID)
			}
			if n := len(h.transactions(t)); n > 1 {
				t.Errorf("created %d transactions", n)
			}
		})
	}
}

func TestCapture_DuplicateWithinOneDay(t *testing.T) {
	h := newHarness(t, domain.Category{ID: "c", OwnerID: "u1", Kind: domain.KindExpense, Name: "lunch"})
	ctx := context.Background()
	yesterday := captureNow.AddDate(0, 0, -1)
	threeDaysAgo := captureNow.AddDate(0, 0, -3)

	first, err := h.service.Capture(ctx, "u1", "acc-usd", "spent 50 USD lunch", Overrides{Date: &yesterday})
	if err != nil || first.Outcome != OutcomeAutoPosted {
		t.Fatalf("first = %+v, %v", first, err)
	}

	second, _ := h.service.Capture(ctx, "u1", "acc-usd", "spent 50 USD lunch", Overrides{})
	if second.Outcome != OutcomeDuplicate || second.DuplicateOf != first.Transaction.ID {
		t.Errorf("next-day capture = %+v, want duplicate of %s", second, first.Transaction.ID)
	}

	third, _ := h.service.Capture(ctx, "u1", "acc-usd", "spent 50 USD lunch", Overrides{Date: &threeDaysAgo})
	if third.Outcome == OutcomeDuplicate {
		t.Error("capture two days away should not be a duplicate")
	}
}

func TestCapture_CurrencyFallback(t *testing.T) {
	h := newHarness(t)

	res, err := h.service.Capture(context.Background(), "u1", "acc-try", "taxi 45,5", Overrides{})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	c := res.Draft.Candidate
	if c.Currency != "TRY" || c.AmountMinor != 4550 {
		t.Errorf("candidate = %+v", c)
	}
	if res.Draft.Confidence != 0.65 {
		t.Errorf("Confidence = %v, want 0.65", res.Draft.Confidence)
	}
	if len(res.Draft.Reasons) != 2 {
		t.Errorf("Reasons = %v, want currency and date caveats", res.Draft.Reasons)
	}
}

func TestCapture_AutoPostDomainFailureLeavesDraft(t *testing.T) {
	h := newHarness(t, domain.Category{ID: "c", OwnerID: "u1", Kind: domain.KindExpense, Name: "lunch"})

	// EUR against a USD account cannot post; the capture falls back to review.
	res, err := h.service.Capture(context.Background(), "u1", "acc-usd", "spent 50 EUR lunch", Overrides{})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if res.Outcome != OutcomeDraft || res.Draft.Status != domain.DraftStatusDraft {
		t.Errorf("result = %+v, want pending draft", res)
	}
}

func TestCapture_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	missing := "nope"

	tests := []struct {
		name      string
		accountID string
		text      string
		o         Overrides
		wantErr   error
	}{
		{"no amount", "acc-usd", "coffee with friends", Overrides{}, domain.ErrAmountNotDetected},
		{"blank text", "acc-usd", "   ", Overrides{}, domain.ErrAmountNotDetected},
		{"unknown account", "missing", "coffee 5", Overrides{}, domain.ErrReference},
		{"unknown category override", "acc-usd", "coffee 5", Overrides{CategoryID: &missing}, domain.ErrReference},
		{"amount out of range", "acc-usd", "car $184467440737095516.21", Overrides{}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.service.Capture(ctx, "u1", tt.accountID, tt.text, tt.o)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestScore_Monotonic(t *testing.T) {
	if got := Score(Signals{}); got != 0.55 {
		t.Errorf("minimal score = %v, want 0.55", got)
	}
	if got := Score(Signals{true, true, true, true}); got != 1.0 {
		t.Errorf("full score = %v, want 1.0", got)
	}

	for mask := 0; mask < 16; mask++ {
		base := signalsFromMask(mask)
		for bit := 0; bit < 4; bit++ {
			more := signalsFromMask(mask | 1<<bit)
			if Score(more) < Score(base) {
				t.Errorf("adding signal %d to %+v lowered confidence", bit, base)
			}
		}
	}
}

func signalsFromMask(m int) Signals {
	return Signals{
		CurrencyParsed:  m&1 != 0,
		HasDescription:  m&2 != 0,
		CategoryMatched: m&4 != 0,
		DateExplicit:    m&8 != 0,
	}
}

func TestDedupeKey(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	a, b := "Lunch  at   Cafe", "lunch at cafe"

	k1 := DedupeKey("u1", domain.TypeExpense, 5000, "USD", day, &a)
	k2 := DedupeKey("u1", domain.TypeExpense, 5000, "USD", day.Add(15*time.Hour), &b)
	if k1 != k2 {
		t.Error("keys should match after normalization and day truncation")
	}
	if k3 := DedupeKey("u2", domain.TypeExpense, 5000, "USD", day, &a); k3 == k1 {
		t.Error("different owners must produce different keys")
	}
	if len(k1) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(k1))
	}
}
