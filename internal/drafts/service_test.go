package drafts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/store/memory"
)

type mockPoster struct {
	PostFunc func(ctx context.Context, c domain.Candidate) (*domain.Transaction, error)
	calls    int
}

func (m *mockPoster) Post(ctx context.Context, c domain.Candidate) (*domain.Transaction, error) {
	m.calls++
	if m.PostFunc != nil {
		return m.PostFunc(ctx, c)
	}
	return &domain.Transaction{ID: c.ID, OwnerID: c.OwnerID, AmountMinor: c.AmountMinor}, nil
}

var fixedNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T, poster *mockPoster) (*Service, *domain.Draft) {
	t.Helper()
	s := NewService(memory.NewStore(), poster, func() time.Time { return fixedNow }, zerolog.Nop())
	d := &domain.Draft{
		OwnerID:   "u1",
		AccountID: "acc",
		Source:    "text",
		Candidate: domain.Candidate{
			OwnerID:     "u1",
			AccountID:   "acc",
			Type:        domain.TypeExpense,
			AmountMinor: 28000,
			Currency:    "TRY",
			Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		Confidence: 0.75,
	}
	if err := s.Create(context.Background(), d); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return s, d
}

func ptr[T any](v T) *T { return &v }

func TestPatch(t *testing.T) {
	tests := []struct {
		name    string
		patch   Patch
		wantErr error
		check   func(t *testing.T, c domain.Candidate)
	}{
		{
			name:  "type and amount",
			patch: Patch{Type: ptr("Income"), AmountMinor: ptr(int64(5000))},
			check: func(t *testing.T, c domain.Candidate) {
				if c.Type != domain.TypeIncome || c.AmountMinor != 5000 {
					t.Errorf("got type=%s amount=%d", c.Type, c.AmountMinor)
				}
			},
		},
		{
			name:  "currency normalized",
			patch: Patch{Currency: ptr("usd")},
			check: func(t *testing.T, c domain.Candidate) {
				if c.Currency != "USD" {
					t.Errorf("Currency = %s", c.Currency)
				}
			},
		},
		{
			name:  "date and tags",
			patch: Patch{Date: ptr("2024-02-28"), Tags: []string{" food ", "", "food", "trip"}},
			check: func(t *testing.T, c domain.Candidate) {
				if c.Date.Format(domain.DayLayout) != "2024-02-28" {
					t.Errorf("Date = %v", c.Date)
				}
				if len(c.Tags) != 2 || c.Tags[0] != "food" || c.Tags[1] != "trip" {
					t.Errorf("Tags = %v", c.Tags)
				}
			},
		},
		{
			name:  "clear description",
			patch: Patch{Description: ptr("  ")},
			check: func(t *testing.T, c domain.Candidate) {
				if c.Description != nil {
					t.Errorf("Description = %q, want nil", *c.Description)
				}
			},
		},
		{
			name:  "reminder",
			patch: Patch{Reminder: &ReminderPatch{Enabled: ptr(true), OffsetMinutes: ptr(60)}},
			check: func(t *testing.T, c domain.Candidate) {
				if !c.Reminder.Enabled || c.Reminder.OffsetMinutes != 60 {
					t.Errorf("Reminder = %+v", c.Reminder)
				}
			},
		},
		{name: "bad type", patch: Patch{Type: ptr("gift")}, wantErr: domain.ErrValidation},
		{name: "zero amount", patch: Patch{AmountMinor: ptr(int64(0))}, wantErr: domain.ErrValidation},
		{name: "bad currency", patch: Patch{Currency: ptr("DOLLARS")}, wantErr: domain.ErrValidation},
		{name: "bad date", patch: Patch{Date: ptr("yesterday")}, wantErr: domain.ErrValidation},
		{
			name:    "offset out of range",
			patch:   Patch{Reminder: &ReminderPatch{OffsetMinutes: ptr(domain.MaxReminderOffsetMinutes + 1)}},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "one invalid field rejects all",
			patch:   Patch{AmountMinor: ptr(int64(1)), Currency: ptr("???")},
			wantErr: domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, d := newService(t, &mockPoster{})
			ctx := context.Background()

			got, err := s.Patch(ctx, "u1", d.ID, tt.patch)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				stored, _ := s.Get(ctx, "u1", d.ID)
				if stored.Candidate.AmountMinor != 28000 || stored.Candidate.Currency != "TRY" {
					t.Errorf("draft changed after failed patch: %+v", stored.Candidate)
				}
				return
			}
			if err != nil {
				t.Fatalf("Patch failed: %v", err)
			}
			tt.check(t, got.Candidate)

			stored, _ := s.Get(ctx, "u1", d.ID)
			tt.check(t, stored.Candidate)
		})
	}
}

func TestPost(t *testing.T) {
	poster := &mockPoster{}
	s, d := newService(t, poster)

	got, tx, err := s.Post(context.Background(), "u1", d.ID)
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if got.Status != domain.DraftStatusPosted {
		t.Errorf("Status = %s", got.Status)
	}
	if got.PostedTransactionID == nil || *got.PostedTransactionID != tx.ID {
		t.Errorf("PostedTransactionID = %v, want %s", got.PostedTransactionID, tx.ID)
	}
}

func TestPost_ConcurrentPostCreatesOneTransaction(t *testing.T) {
	poster := &mockPoster{}
	s, d := newService(t, poster)

	var innerErr error
	poster.PostFunc = func(ctx context.Context, c domain.Candidate) (*domain.Transaction, error) {
		if poster.calls == 1 {
			_, _, innerErr = s.Post(ctx, "u1", d.ID)
		}
		return &domain.Transaction{ID: c.ID, OwnerID: c.OwnerID}, nil
	}

	got, tx, err := s.Post(context.Background(), "u1", d.ID)
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if poster.calls != 1 {
		t.Errorf("ledger posts = %d, want 1", poster.calls)
	}
	if !errors.Is(innerErr, domain.ErrDraftNotEditable) {
		t.Errorf("second Post err = %v, want ErrDraftNotEditable", innerErr)
	}
	if got.PostedTransactionID == nil || *got.PostedTransactionID != tx.ID {
		t.Errorf("PostedTransactionID = %v, want %s", got.PostedTransactionID, tx.ID)
	}
	stored, _ := s.Get(context.Background(), "u1", d.ID)
	if stored.Status != domain.DraftStatusPosted || *stored.PostedTransactionID != tx.ID {
		t.Errorf("stored draft = %+v", stored)
	}
}

func TestPost_UsesPreallocatedID(t *testing.T) {
	var seen string
	poster := &mockPoster{
		PostFunc: func(ctx context.Context, c domain.Candidate) (*domain.Transaction, error) {
			seen = c.ID
			return &domain.Transaction{ID: "other"}, nil
		},
	}
	s, d := newService(t, poster)

	got, _, err := s.Post(context.Background(), "u1", d.ID)
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if seen == "" {
		t.Error("candidate reached the ledger without an id")
	}
	stored, _ := s.Get(context.Background(), "u1", d.ID)
	if *got.PostedTransactionID != "other" || *stored.PostedTransactionID != "other" {
		t.Errorf("PostedTransactionID = %s, stored %s, want other", *got.PostedTransactionID, *stored.PostedTransactionID)
	}
}

func TestPost_FailureLeavesDraft(t *testing.T) {
	poster := &mockPoster{
		PostFunc: func(ctx context.Context, c domain.Candidate) (*domain.Transaction, error) {
			return nil, domain.ErrConsistency
		},
	}
	s, d := newService(t, poster)

	_, _, err := s.Post(context.Background(), "u1", d.ID)
	if !errors.Is(err, domain.ErrConsistency) {
		t.Fatalf("err = %v, want ErrConsistency", err)
	}
	stored, _ := s.Get(context.Background(), "u1", d.ID)
	if stored.Status != domain.DraftStatusDraft || stored.PostedTransactionID != nil {
		t.Errorf("draft mutated after failed post: %+v", stored)
	}
}

func TestReject(t *testing.T) {
	s, d := newService(t, &mockPoster{})

	got, err := s.Reject(context.Background(), "u1", d.ID, ptr("not mine"))
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if got.Status != domain.DraftStatusRejected || got.RejectedReason == nil || *got.RejectedReason != "not mine" {
		t.Errorf("unexpected draft %+v", got)
	}
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	finish := map[string]func(s *Service, id string) error{
		"posted": func(s *Service, id string) error {
			_, _, err := s.Post(context.Background(), "u1", id)
			return err
		},
		"rejected": func(s *Service, id string) error {
			_, err := s.Reject(context.Background(), "u1", id, nil)
			return err
		},
	}

	for name, fn := range finish {
		t.Run(name, func(t *testing.T) {
			poster := &mockPoster{}
			s, d := newService(t, poster)
			ctx := context.Background()
			if err := fn(s, d.ID); err != nil {
				t.Fatalf("transition failed: %v", err)
			}

			if _, err := s.Patch(ctx, "u1", d.ID, Patch{Notes: ptr("x")}); !errors.Is(err, domain.ErrDraftNotEditable) {
				t.Errorf("Patch err = %v", err)
			}
			if _, _, err := s.Post(ctx, "u1", d.ID); !errors.Is(err, domain.ErrDraftNotEditable) {
				t.Errorf("Post err = %v", err)
			}
			if _, err := s.Reject(ctx, "u1", d.ID, nil); !errors.Is(err, domain.ErrDraftNotEditable) {
				t.Errorf("Reject err = %v", err)
			}
			if name == "posted" && poster.calls != 1 {
				t.Errorf("ledger posted %d times, want 1", poster.calls)
			}
		})
	}
}

func TestMissingDraft(t *testing.T) {
	s, _ := newService(t, &mockPoster{})
	ctx := context.Background()

	if _, _, err := s.Post(ctx, "u1", "missing"); !errors.Is(err, domain.ErrDraftNotEditable) {
		t.Errorf("Post err = %v, want ErrDraftNotEditable", err)
	}
	if _, err := s.Get(ctx, "u2", "missing"); !errors.Is(err, domain.ErrReference) {
		t.Errorf("Get err = %v, want ErrReference", err)
	}
}
