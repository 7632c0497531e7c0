package domain

import (
	"fmt"
	"strings"
	"time"
)

// TransactionType is the closed set of ledger event types.
type TransactionType string

const (
	TypeIncome     TransactionType = "income"
	TypeExpense    TransactionType = "expense"
	TypeTransfer   TransactionType = "transfer"
	TypeInvestment TransactionType = "investment"
)

// ParseTransactionType validates a raw type string. Matching is case-insensitive.
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeIncome, TypeExpense, TypeTransfer, TypeInvestment:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown transaction type %q", ErrValidation, s)
	}
}

// Sign returns +1 for money flowing into the account and -1 for money leaving it.
// Transfers have no sign because they are not posted by this engine.
func (t TransactionType) Sign() int64 {
	switch t {
	case TypeIncome:
		return 1
	case TypeExpense, TypeInvestment:
		return -1
	default:
		return 0
	}
}

// CategoryKind is the closed set of category kinds.
type CategoryKind string

const (
	KindIncome     CategoryKind = "income"
	KindExpense    CategoryKind = "expense"
	KindInvestment CategoryKind = "investment"
)

// ParseCategoryKind validates a raw category kind string.
func ParseCategoryKind(s string) (CategoryKind, error) {
	switch k := CategoryKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindIncome, KindExpense, KindInvestment:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown category kind %q", ErrValidation, s)
	}
}

// CategoryKindFor returns the category kind a transaction type must be paired
// with. ok is false for types that carry no category constraint.
func CategoryKindFor(t TransactionType) (CategoryKind, bool) {
	switch t {
	case TypeIncome:
		return KindIncome, true
	case TypeExpense:
		return KindExpense, true
	case TypeInvestment:
		return KindInvestment, true
	default:
		return "", false
	}
}

// Frequency is how often a recurrence template fires.
type Frequency string

const (
	FrequencyNone    Frequency = "none"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// ParseFrequency validates a raw frequency. An empty string means FrequencyNone.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case "":
		return FrequencyNone, nil
	case FrequencyNone, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown frequency %q", ErrValidation, s)
	}
}

// DraftStatus is the lifecycle state of a TransactionDraft.
type DraftStatus string

const (
	DraftStatusDraft    DraftStatus = "draft"
	DraftStatusPosted   DraftStatus = "posted"
	DraftStatusRejected DraftStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s DraftStatus) Terminal() bool {
	return s == DraftStatusPosted || s == DraftStatusRejected
}

// MaxReminderOffsetMinutes bounds how far before the transaction day a reminder may fire.
const MaxReminderOffsetMinutes = 30 * 24 * 60

// Account is a currency-denominated balance holder.
type Account struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name,omitempty"`
	Currency string `json:"currency"`
	Balance  int64  `json:"balance"`
	Deleted  bool   `json:"deleted"`
}

// Category classifies transactions of a matching kind.
type Category struct {
	ID      string       `json:"id"`
	OwnerID string       `json:"owner_id"`
	Kind    CategoryKind `json:"kind"`
	Name    string       `json:"name"`
}

// Day truncates t to the UTC midnight of its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay accepts YYYY-MM-DD or an RFC 3339 timestamp and returns its calendar day.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DayLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unparseable date %q", ErrValidation, s)
	}
	return Day(t), nil
}

// DayLayout is the calendar-day wire format.
const DayLayout = "2006-01-02"
