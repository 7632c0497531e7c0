package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable ledger record. AmountMinor is always stored
// unsigned; the posting sign comes from Type.
type Transaction struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	AccountID   string          `json:"account_id"`
	CategoryID  *string         `json:"category_id,omitempty"`
	Type        TransactionType `json:"type"`
	AmountMinor int64           `json:"amount_minor"`
	Currency    string          `json:"currency"`
	Date        time.Time       `json:"date"` // calendar day, UTC midnight
	Description *string         `json:"description,omitempty"`
	Notes       *string         `json:"notes,omitempty"`
	Tags        []string        `json:"tags"`

	// Investment only.
	AssetSymbol *string          `json:"asset_symbol,omitempty"`
	Units       *decimal.Decimal `json:"units,omitempty"`

	Reminder   Reminder   `json:"reminder"`
	Recurrence Recurrence `json:"recurrence"`

	// Effective records whether the balance was mutated when this record was
	// posted. Future-dated records never flip to effective later.
	Effective bool      `json:"effective"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
}

// Delta is the signed balance change this transaction applies when effective.
func (t *Transaction) Delta() int64 {
	return t.Type.Sign() * t.AmountMinor
}

// Reminder holds per-transaction notification settings.
type Reminder struct {
	Enabled       bool       `json:"enabled"`
	OffsetMinutes int        `json:"offset_minutes"`
	RemindAt      *time.Time `json:"remind_at,omitempty"`
}

// RemindAtFor returns the instant a reminder fires for a transaction dated day.
func RemindAtFor(day time.Time, offsetMinutes int) time.Time {
	return Day(day).Add(-time.Duration(offsetMinutes) * time.Minute)
}

// Recurrence describes either a template (IsTemplate) or an instance
// generated from one (ParentID + ScheduledFor).
type Recurrence struct {
	IsTemplate   bool          `json:"is_template"`
	ParentID     *string       `json:"parent_id,omitempty"`
	Frequency    Frequency     `json:"frequency"`
	Interval     int           `json:"interval"`
	StartDate    *time.Time    `json:"start_date,omitempty"`
	EndDate      *time.Time    `json:"end_date,omitempty"`
	DayOfMonth   int           `json:"day_of_month,omitempty"`
	Weekday      *time.Weekday `json:"weekday,omitempty"`
	NextRunAt    *time.Time    `json:"next_run_at,omitempty"`
	LastRunAt    *time.Time    `json:"last_run_at,omitempty"`
	ScheduledFor *time.Time    `json:"scheduled_for,omitempty"`
}

// Anchor returns the day-of-month / weekday alignment for NextDate.
func (r Recurrence) Anchor() Anchor {
	return Anchor{DayOfMonth: r.DayOfMonth, Weekday: r.Weekday}
}

// Anchor pins recurring dates to a day of month or a weekday.
type Anchor struct {
	DayOfMonth int
	Weekday    *time.Weekday
}

// ReminderSettings is the caller-supplied part of Reminder.
type ReminderSettings struct {
	Enabled       bool `json:"enabled"`
	OffsetMinutes int  `json:"offset_minutes"`
}

// RecurrenceSettings turns a posted candidate into a recurrence template.
type RecurrenceSettings struct {
	Frequency  Frequency     `json:"frequency"`
	Interval   int           `json:"interval"`
	StartDate  *time.Time    `json:"start_date,omitempty"`
	EndDate    *time.Time    `json:"end_date,omitempty"`
	DayOfMonth int           `json:"day_of_month,omitempty"`
	Weekday    *time.Weekday `json:"weekday,omitempty"`
}

// InstanceRef marks a candidate as a generated occurrence of a template.
type InstanceRef struct {
	ParentID     string    `json:"parent_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// Candidate is a transaction before posting. Drafts store one verbatim.
type Candidate struct {
	// ID, when set, becomes the posted record's id instead of a fresh one.
	ID string `json:"-"`

	OwnerID     string           `json:"owner_id"`
	AccountID   string           `json:"account_id"`
	CategoryID  *string          `json:"category_id,omitempty"`
	Type        TransactionType  `json:"type"`
	AmountMinor int64            `json:"amount_minor"`
	Currency    string           `json:"currency"`
	Date        time.Time        `json:"date"`
	Description *string          `json:"description,omitempty"`
	Notes       *string          `json:"notes,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
	AssetSymbol *string          `json:"asset_symbol,omitempty"`
	Units       *decimal.Decimal `json:"units,omitempty"`

	Reminder   ReminderSettings    `json:"reminder"`
	Recurrence *RecurrenceSettings `json:"recurrence,omitempty"`

	// NextDate asks the engine to also create an identical sibling on that day.
	NextDate *time.Time `json:"next_date,omitempty"`

	// Instance is set only by the recurrence expander.
	Instance *InstanceRef `json:"-"`
}

// Draft is a captured candidate awaiting review.
type Draft struct {
	ID                  string      `json:"id"`
	OwnerID             string      `json:"owner_id"`
	AccountID           string      `json:"account_id"`
	Source              string      `json:"source"`
	Status              DraftStatus `json:"status"`
	Candidate           Candidate   `json:"candidate"`
	Confidence          float64     `json:"confidence"`
	Reasons             []string    `json:"reasons"`
	DedupeKey           string      `json:"dedupe_key"`
	PostedTransactionID *string     `json:"posted_transaction_id,omitempty"`
	RejectedReason      *string     `json:"rejected_reason,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// StringPtr returns a pointer to s, or nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
