package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/store"
)

// Report compares an account's stored balance with the sum of deltas of its
// effective, non-deleted transactions.
type Report struct {
	AccountID        string `json:"account_id"`
	Currency         string `json:"currency"`
	StoredBalance    int64  `json:"stored_balance"`
	ComputedBalance  int64  `json:"computed_balance"`
	Drift            int64  `json:"drift"`
	EffectiveCount   int    `json:"effective_count"`
	FutureDatedCount int    `json:"future_dated_count"`
}

// Balanced reports whether stored and computed balances agree.
func (r Report) Balanced() bool { return r.Drift == 0 }

// Reconciler recomputes balances for out-of-band repair after a failed
// compensation. It never writes.
type Reconciler struct {
	accounts store.AccountRepository
	txs      store.TransactionRepository
	log      zerolog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(accounts store.AccountRepository, txs store.TransactionRepository, log zerolog.Logger) *Reconciler {
	return &Reconciler{accounts: accounts, txs: txs, log: log}
}

// Check builds a Report for one account. Records posted with a future date
// never count, even once their date has passed.
func (r *Reconciler) Check(ctx context.Context, ownerID, accountID string) (*Report, error) {
	account, err := r.accounts.GetAccount(ctx, ownerID, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("Check: %w: account %s not found", domain.ErrReference, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("Check: load account: %w", err)
	}

	txs, err := r.txs.FindTransactions(ctx, store.TransactionFilter{OwnerID: ownerID, AccountID: accountID})
	if err != nil {
		return nil, fmt.Errorf("Check: find transactions: %w", err)
	}

	rep := &Report{
		AccountID:     account.ID,
		Currency:      account.Currency,
		StoredBalance: account.Balance,
	}
	for i := range txs {
		if !txs[i].Effective {
			rep.FutureDatedCount++
			continue
		}
		rep.EffectiveCount++
		rep.ComputedBalance += txs[i].Delta()
	}
	rep.Drift = rep.StoredBalance - rep.ComputedBalance

	if !rep.Balanced() {
		r.log.Warn().
			Str("owner_id", ownerID).
			Str("account_id", accountID).
			Int64("drift", rep.Drift).
			Msg("Account balance drift detected")
	}
	return rep, nil
}
