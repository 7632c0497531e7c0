package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/store"
)

// CreateAccount implements store.Seeder.
func (s *Store) CreateAccount(ctx context.Context, a *domain.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, owner_id, name, currency, balance, deleted)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.OwnerID, a.Name, a.Currency, a.Balance, a.Deleted)
	if err != nil {
		return fmt.Errorf("CreateAccount: %w", translate(err))
	}
	return nil
}

// GetAccount implements store.AccountRepository.
func (s *Store) GetAccount(ctx context.Context, ownerID, accountID string) (*domain.Account, error) {
	var a domain.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, currency, balance, deleted
		FROM accounts
		WHERE id = ? AND owner_id = ? AND deleted = 0`,
		accountID, ownerID,
	).Scan(&a.ID, &a.OwnerID, &a.Name, &a.Currency, &a.Balance, &a.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return &a, nil
}

// IncrementBalance implements store.AccountRepository with a single
// UPDATE so concurrent increments never lose each other.
func (s *Store) IncrementBalance(ctx context.Context, ownerID, accountID string, delta int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET balance = balance + ?
		WHERE id = ? AND owner_id = ? AND deleted = 0`,
		delta, accountID, ownerID)
	if err != nil {
		return fmt.Errorf("IncrementBalance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("IncrementBalance: rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateCategory implements store.Seeder.
func (s *Store) CreateCategory(ctx context.Context, c *domain.Category) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, owner_id, kind, name) VALUES (?, ?, ?, ?)`,
		c.ID, c.OwnerID, string(c.Kind), c.Name)
	if err != nil {
		return fmt.Errorf("CreateCategory: %w", translate(err))
	}
	return nil
}

// GetCategory implements store.CategoryRepository.
func (s *Store) GetCategory(ctx context.Context, ownerID, categoryID string) (*domain.Category, error) {
	var c domain.Category
	var kind string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, kind, name FROM categories WHERE id = ? AND owner_id = ?`,
		categoryID, ownerID,
	).Scan(&c.ID, &c.OwnerID, &kind, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetCategory: %w", err)
	}
	c.Kind = domain.CategoryKind(kind)
	return &c, nil
}

// ListCategories implements store.CategoryRepository.
func (s *Store) ListCategories(ctx context.Context, ownerID string, kind domain.CategoryKind) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, kind, name FROM categories
		WHERE owner_id = ? AND kind = ?
		ORDER BY seq`,
		ownerID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		var k string
		if err := rows.Scan(&c.ID, &c.OwnerID, &k, &c.Name); err != nil {
			return nil, fmt.Errorf("ListCategories: scan: %w", err)
		}
		c.Kind = domain.CategoryKind(k)
		out = append(out, c)
	}
	return out, rows.Err()
}
