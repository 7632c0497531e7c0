package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseTransactionType(t *testing.T) {
	tests := []struct {
		in      string
		want    TransactionType
		wantErr bool
	}{
		{"income", TypeIncome, false},
		{"EXPENSE", TypeExpense, false},
		{" investment ", TypeInvestment, false},
		{"transfer", TypeTransfer, false},
		{"refund", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTransactionType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTransactionType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSign(t *testing.T) {
	if TypeIncome.Sign() != 1 || TypeExpense.Sign() != -1 || TypeInvestment.Sign() != -1 || TypeTransfer.Sign() != 0 {
		t.Error("unexpected sign mapping")
	}
}

func TestDayAndParseDay(t *testing.T) {
	ts := time.Date(2024, 3, 1, 23, 30, 0, 0, time.FixedZone("X", -2*3600))
	want := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	if got := Day(ts); !got.Equal(want) {
		t.Errorf("Day() = %v, want %v", got, want)
	}

	got, err := ParseDay("2024-01-10")
	if err != nil || !got.Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ParseDay = %v, %v", got, err)
	}
	if _, err := ParseDay("10/01/2024"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestRemindAtFor(t *testing.T) {
	day := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
	got := RemindAtFor(day, 1440)
	want := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("RemindAtFor = %v, want %v", got, want)
	}
}

func TestDraftStatusTerminal(t *testing.T) {
	if DraftStatusDraft.Terminal() {
		t.Error("draft must not be terminal")
	}
	if !DraftStatusPosted.Terminal() || !DraftStatusRejected.Terminal() {
		t.Error("posted and rejected must be terminal")
	}
}
