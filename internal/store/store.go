// Package store declares the persistence contracts the ledger core consumes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

var (
	// ErrNotFound is returned when no live record matches the lookup scope.
	ErrNotFound = errors.New("record not found")

	// ErrUniqueViolation is returned when a write collides with the
	// (recurrence.parentId, recurrence.scheduledFor) uniqueness constraint.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrStatusMismatch is returned by conditional updates whose expected
	// state no longer holds.
	ErrStatusMismatch = errors.New("status mismatch")
)

// AccountRepository provides account lookups and the atomic balance increment.
type AccountRepository interface {
	// GetAccount returns a non-deleted account owned by ownerID.
	GetAccount(ctx context.Context, ownerID, accountID string) (*domain.Account, error)

	// IncrementBalance atomically adds delta to the balance of the account
	// matching id+owner+not-deleted. Returns ErrNotFound when nothing matched.
	IncrementBalance(ctx context.Context, ownerID, accountID string, delta int64) error
}

// CategoryRepository provides read-only category access.
type CategoryRepository interface {
	// GetCategory returns a category owned by ownerID.
	GetCategory(ctx context.Context, ownerID, categoryID string) (*domain.Category, error)

	// ListCategories returns the owner's categories of the given kind in creation order.
	ListCategories(ctx context.Context, ownerID string, kind domain.CategoryKind) ([]domain.Category, error)
}

// TransactionFilter narrows FindTransactions. Zero-valued fields are ignored
// except Description, which is matched exactly when MatchDescription is set.
type TransactionFilter struct {
	OwnerID          string
	AccountID        string
	CategoryID       *string
	MatchCategory    bool
	Type             domain.TransactionType
	AmountMinor      *int64
	Currency         string
	Description      *string
	MatchDescription bool
	DateFrom         *time.Time // inclusive
	DateTo           *time.Time // inclusive
	Limit            int
}

// TransactionRepository persists ledger records and recurrence templates.
type TransactionRepository interface {
	// CreateTransaction inserts a new record. Returns ErrUniqueViolation on an
	// instance (parentId, scheduledFor) collision.
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error

	// GetTransaction returns a non-deleted transaction.
	GetTransaction(ctx context.Context, ownerID, transactionID string) (*domain.Transaction, error)

	// FindTransactions returns non-deleted transactions matching filter, ordered by date then creation.
	FindTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)

	// ListDueTemplates returns the owner's templates with frequency != none and nextRunAt <= horizon.
	ListDueTemplates(ctx context.Context, ownerID string, horizon time.Time) ([]domain.Transaction, error)

	// ListTemplateOwners returns owners having at least one due template.
	ListTemplateOwners(ctx context.Context, horizon time.Time) ([]string, error)

	// AdvanceTemplate sets lastRunAt/nextRunAt only if the stored nextRunAt
	// still equals expectNextRunAt. Returns ErrStatusMismatch otherwise.
	AdvanceTemplate(ctx context.Context, ownerID, templateID string, expectNextRunAt time.Time, lastRunAt time.Time, nextRunAt *time.Time) error
}

// DraftRepository persists drafts.
type DraftRepository interface {
	CreateDraft(ctx context.Context, d *domain.Draft) error
	GetDraft(ctx context.Context, ownerID, draftID string) (*domain.Draft, error)

	// FindDraftByDedupeKey returns the newest draft with the key and status, or ErrNotFound.
	FindDraftByDedupeKey(ctx context.Context, ownerID, dedupeKey string, status domain.DraftStatus) (*domain.Draft, error)

	// UpdateDraft replaces the draft only when its stored status equals
	// expectStatus. Returns ErrStatusMismatch (or ErrNotFound) otherwise.
	UpdateDraft(ctx context.Context, d *domain.Draft, expectStatus domain.DraftStatus) error
}

// Seeder creates accounts and categories. Account and category management
// lives outside the ledger core; this exists for fixtures and the CLI.
type Seeder interface {
	CreateAccount(ctx context.Context, a *domain.Account) error
	CreateCategory(ctx context.Context, c *domain.Category) error
}

// Store is the full persistence surface used by the wiring layer.
type Store interface {
	AccountRepository
	CategoryRepository
	TransactionRepository
	DraftRepository
	Seeder
	Close() error
}
