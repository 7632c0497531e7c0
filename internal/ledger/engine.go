// Package ledger applies validated transaction candidates to the ledger and
// keeps account balances consistent with the records posted against them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/money"
	"github.com/dvloznov/finance-ledger/internal/recurrence"
	"github.com/dvloznov/finance-ledger/internal/store"
)

// ReminderSyncer schedules or cancels a transaction's reminder.
type ReminderSyncer interface {
	Sync(ctx context.Context, tx *domain.Transaction) (*time.Time, bool, error)
}

// Exporter mirrors created records to an analytics sink.
type Exporter interface {
	Export(ctx context.Context, tx *domain.Transaction) error
}

// Deps holds the Engine's collaborators. Reminders and Exporter are optional.
type Deps struct {
	Accounts     store.AccountRepository
	Categories   store.CategoryRepository
	Transactions store.TransactionRepository
	Reminders    ReminderSyncer
	Exporter     Exporter
	Now          func() time.Time
	Logger       zerolog.Logger
}

// Engine is the ledger posting engine.
type Engine struct {
	accounts   store.AccountRepository
	categories store.CategoryRepository
	txs        store.TransactionRepository
	reminders  ReminderSyncer
	exporter   Exporter
	now        func() time.Time
	log        zerolog.Logger
}

// New creates an Engine.
func New(d Deps) *Engine {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		accounts:   d.Accounts,
		categories: d.Categories,
		txs:        d.Transactions,
		reminders:  d.Reminders,
		exporter:   d.Exporter,
		now:        now,
		log:        d.Logger,
	}
}

// Post validates c and records it. An effective transaction (dated today or
// earlier, UTC) increments the account balance before the record is written;
// a failed write is followed by a compensating decrement.
//
// When c.NextDate is set an identical sibling is also created on that day
// unless one already exists.
func (e *Engine) Post(ctx context.Context, c domain.Candidate) (*domain.Transaction, error) {
	tx, err := e.validate(ctx, c)
	if err != nil {
		return nil, err
	}

	if err := e.apply(ctx, tx); err != nil {
		return nil, err
	}

	if c.NextDate != nil {
		if err := e.postSibling(ctx, tx, domain.Day(*c.NextDate)); err != nil {
			// The primary record stands; the sibling is a convenience.
			e.log.Error().Err(err).
				Str("owner_id", tx.OwnerID).
				Str("transaction_id", tx.ID).
				Msg("Failed to create next-date sibling")
		}
	}

	return tx, nil
}

// validate runs the posting checks in order and builds the record to write.
func (e *Engine) validate(ctx context.Context, c domain.Candidate) (*domain.Transaction, error) {
	if c.OwnerID == "" {
		return nil, fmt.Errorf("Post: %w: owner id is required", domain.ErrValidation)
	}
	if c.AccountID == "" {
		return nil, fmt.Errorf("Post: %w: account id is required", domain.ErrValidation)
	}

	account, err := e.accounts.GetAccount(ctx, c.OwnerID, c.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("Post: %w: account %s not found", domain.ErrReference, c.AccountID)
	}
	if err != nil {
		return nil, fmt.Errorf("Post: load account: %w", err)
	}

	var category *domain.Category
	if c.CategoryID != nil {
		category, err = e.categories.GetCategory(ctx, c.OwnerID, *c.CategoryID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("Post: %w: category %s not found", domain.ErrReference, *c.CategoryID)
		}
		if err != nil {
			return nil, fmt.Errorf("Post: load category: %w", err)
		}
	}

	switch c.Type {
	case domain.TypeIncome, domain.TypeExpense, domain.TypeInvestment:
	case domain.TypeTransfer:
		return nil, fmt.Errorf("Post: %w: transfers are not posted by the ledger engine", domain.ErrUnsupported)
	default:
		return nil, fmt.Errorf("Post: %w: unknown transaction type %q", domain.ErrValidation, c.Type)
	}

	if c.AmountMinor < 0 {
		return nil, fmt.Errorf("Post: %w: amount must be non-negative", domain.ErrValidation)
	}

	if category != nil {
		if kind, ok := domain.CategoryKindFor(c.Type); ok && category.Kind != kind {
			return nil, fmt.Errorf("Post: %w: category kind %s does not match type %s",
				domain.ErrConsistency, category.Kind, c.Type)
		}
	}

	if !money.IsCurrency(c.Currency) {
		return nil, fmt.Errorf("Post: %w: unknown currency %q", domain.ErrValidation, c.Currency)
	}
	if account.Currency != c.Currency {
		return nil, fmt.Errorf("Post: %w: account currency %s, transaction currency %s",
			domain.ErrConsistency, account.Currency, c.Currency)
	}

	if c.Date.IsZero() {
		return nil, fmt.Errorf("Post: %w: date is required", domain.ErrValidation)
	}
	if c.Reminder.OffsetMinutes < 0 || c.Reminder.OffsetMinutes > domain.MaxReminderOffsetMinutes {
		return nil, fmt.Errorf("Post: %w: reminder offset must be between 0 and %d minutes",
			domain.ErrValidation, domain.MaxReminderOffsetMinutes)
	}
	if c.Type != domain.TypeInvestment && (c.AssetSymbol != nil || c.Units != nil) {
		return nil, fmt.Errorf("Post: %w: asset symbol and units apply to investments only", domain.ErrValidation)
	}

	id := c.ID
	if id == "" {
		id = uuid.New().String()
	}
	tx := &domain.Transaction{
		ID:          id,
		OwnerID:     c.OwnerID,
		AccountID:   c.AccountID,
		CategoryID:  c.CategoryID,
		Type:        c.Type,
		AmountMinor: c.AmountMinor,
		Currency:    c.Currency,
		Date:        domain.Day(c.Date),
		Description: c.Description,
		Notes:       c.Notes,
		Tags:        c.Tags,
		AssetSymbol: c.AssetSymbol,
		Units:       c.Units,
		Reminder: domain.Reminder{
			Enabled:       c.Reminder.Enabled,
			OffsetMinutes: c.Reminder.OffsetMinutes,
		},
		Recurrence: domain.Recurrence{Frequency: domain.FrequencyNone},
	}
	if tx.Tags == nil {
		tx.Tags = []string{}
	}

	switch {
	case c.Instance != nil:
		parent := c.Instance.ParentID
		scheduled := domain.Day(c.Instance.ScheduledFor)
		tx.Recurrence = domain.Recurrence{
			Frequency:    domain.FrequencyNone,
			ParentID:     &parent,
			ScheduledFor: &scheduled,
		}
	case c.Recurrence != nil && c.Recurrence.Frequency != "" && c.Recurrence.Frequency != domain.FrequencyNone:
		if err := validateRecurrence(*c.Recurrence); err != nil {
			return nil, fmt.Errorf("Post: %w", err)
		}
		tx.Recurrence = recurrence.Schedule(*c.Recurrence, tx.Date)
	}

	return tx, nil
}

func validateRecurrence(s domain.RecurrenceSettings) error {
	if _, err := domain.ParseFrequency(string(s.Frequency)); err != nil {
		return err
	}
	if s.Interval < 0 {
		return fmt.Errorf("%w: recurrence interval must be positive", domain.ErrValidation)
	}
	if s.DayOfMonth < 0 || s.DayOfMonth > 31 {
		return fmt.Errorf("%w: day of month must be between 1 and 31", domain.ErrValidation)
	}
	if s.Weekday != nil && (*s.Weekday < time.Sunday || *s.Weekday > time.Saturday) {
		return fmt.Errorf("%w: invalid weekday", domain.ErrValidation)
	}
	if s.StartDate != nil && s.EndDate != nil && domain.Day(*s.EndDate).Before(domain.Day(*s.StartDate)) {
		return fmt.Errorf("%w: recurrence ends before it starts", domain.ErrValidation)
	}
	return nil
}

// apply performs the two-step write for tx: balance increment when
// effective, then record creation, compensating the increment on failure.
// Balance and record are not written atomically.
func (e *Engine) apply(ctx context.Context, tx *domain.Transaction) error {
	now := e.now()
	tx.Effective = !tx.Date.After(domain.Day(now))
	tx.CreatedAt = now.UTC()
	if tx.Reminder.Enabled {
		remindAt := domain.RemindAtFor(tx.Date, tx.Reminder.OffsetMinutes)
		tx.Reminder.RemindAt = &remindAt
	}

	delta := tx.Delta()
	if tx.Effective {
		err := e.accounts.IncrementBalance(ctx, tx.OwnerID, tx.AccountID, delta)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("Post: %w: account %s not found", domain.ErrReference, tx.AccountID)
		}
		if err != nil {
			return fmt.Errorf("Post: increment balance: %w", err)
		}
	}

	if err := e.txs.CreateTransaction(ctx, tx); err != nil {
		createErr := fmt.Errorf("Post: create transaction: %w", err)
		if !tx.Effective {
			return createErr
		}
		if cerr := e.accounts.IncrementBalance(ctx, tx.OwnerID, tx.AccountID, -delta); cerr != nil {
			e.log.Error().Err(cerr).
				Str("owner_id", tx.OwnerID).
				Str("account_id", tx.AccountID).
				Int64("delta", delta).
				AnErr("create_error", err).
				Msg("ledger compensation failed")
			return errors.Join(createErr, fmt.Errorf("%w: %v", domain.ErrCompensationFailed, cerr))
		}
		return createErr
	}

	e.afterCreate(ctx, tx)
	return nil
}

// afterCreate runs the best-effort side effects of a created record.
func (e *Engine) afterCreate(ctx context.Context, tx *domain.Transaction) {
	if e.reminders != nil {
		if _, _, err := e.reminders.Sync(ctx, tx); err != nil {
			e.log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to sync reminder")
		}
	}
	if e.exporter != nil {
		if err := e.exporter.Export(ctx, tx); err != nil {
			e.log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to export transaction")
		}
	}

	e.log.Info().
		Str("owner_id", tx.OwnerID).
		Str("transaction_id", tx.ID).
		Str("account_id", tx.AccountID).
		Str("type", string(tx.Type)).
		Int64("amount_minor", tx.AmountMinor).
		Bool("effective", tx.Effective).
		Msg("Transaction posted")
}

// postSibling creates a copy of primary dated day, skipping it when an
// identical record already exists.
func (e *Engine) postSibling(ctx context.Context, primary *domain.Transaction, day time.Time) error {
	amount := primary.AmountMinor
	existing, err := e.txs.FindTransactions(ctx, store.TransactionFilter{
		OwnerID:          primary.OwnerID,
		AccountID:        primary.AccountID,
		CategoryID:       primary.CategoryID,
		MatchCategory:    true,
		Type:             primary.Type,
		AmountMinor:      &amount,
		Currency:         primary.Currency,
		Description:      primary.Description,
		MatchDescription: true,
		DateFrom:         &day,
		DateTo:           &day,
		Limit:            1,
	})
	if err != nil {
		return fmt.Errorf("postSibling: find existing: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	sibling := &domain.Transaction{
		ID:          uuid.New().String(),
		OwnerID:     primary.OwnerID,
		AccountID:   primary.AccountID,
		CategoryID:  primary.CategoryID,
		Type:        primary.Type,
		AmountMinor: primary.AmountMinor,
		Currency:    primary.Currency,
		Date:        day,
		Description: primary.Description,
		Notes:       primary.Notes,
		Tags:        append([]string{}, primary.Tags...),
		AssetSymbol: primary.AssetSymbol,
		Units:       primary.Units,
		Reminder: domain.Reminder{
			Enabled:       primary.Reminder.Enabled,
			OffsetMinutes: primary.Reminder.OffsetMinutes,
		},
		Recurrence: domain.Recurrence{Frequency: domain.FrequencyNone},
	}
	return e.apply(ctx, sibling)
}
