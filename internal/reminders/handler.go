package reminders

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/money"
	"github.com/dvloznov/finance-ledger/internal/store"
)

// Notifier delivers a reminder to the transaction's owner.
type Notifier interface {
	Notify(ctx context.Context, tx *domain.Transaction) error
}

// TransactionGetter loads the transaction a reminder refers to.
type TransactionGetter interface {
	GetTransaction(ctx context.Context, ownerID, transactionID string) (*domain.Transaction, error)
}

// LogNotifier writes reminders to the log. Push delivery is handled elsewhere.
type LogNotifier struct {
	Log zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, tx *domain.Transaction) error {
	ev := n.Log.Info().
		Str("owner_id", tx.OwnerID).
		Str("transaction_id", tx.ID).
		Str("type", string(tx.Type)).
		Str("amount", money.Format(tx.AmountMinor, tx.Currency)).
		Str("date", tx.Date.Format(domain.DayLayout))
	if tx.Description != nil {
		ev = ev.Str("description", *tx.Description)
	}
	ev.Msg("Transaction reminder")
	return nil
}

// Handler returns the job handler consuming fired reminder jobs. Delivery is
// at-least-once, so it skips reminders whose transaction is gone or whose
// reminder has since been disabled.
func Handler(txs TransactionGetter, notifier Notifier, log zerolog.Logger) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		dj, ok := job.(*jobs.DelayedJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}
		if dj.Name != jobs.JobTypeReminder {
			return fmt.Errorf("unexpected job name: %s", dj.Name)
		}

		p := dj.Payload
		tx, err := txs.GetTransaction(ctx, p.OwnerID, p.TransactionID)
		if errors.Is(err, store.ErrNotFound) {
			log.Info().Str("transaction_id", p.TransactionID).Msg("Reminder skipped: transaction gone")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reminder handler: load transaction: %w", err)
		}
		if !tx.Reminder.Enabled {
			return nil
		}

		if err := notifier.Notify(ctx, tx); err != nil {
			return fmt.Errorf("reminder handler: notify: %w", err)
		}
		return nil
	}
}
