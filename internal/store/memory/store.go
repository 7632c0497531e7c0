package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/store"
)

// Store is an in-memory implementation of store.Store.
// It is safe for concurrent use and returns copies so callers never alias
// stored state. Data is lost on restart; use the sqlite store for persistence.
type Store struct {
	mu           sync.RWMutex
	accounts     map[string]*domain.Account
	categories   []domain.Category
	transactions []*domain.Transaction
	txByID       map[string]*domain.Transaction
	instances    map[string]string // parentID|scheduledFor -> transaction id
	drafts       map[string]*domain.Draft
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		accounts:  make(map[string]*domain.Account),
		txByID:    make(map[string]*domain.Transaction),
		instances: make(map[string]string),
		drafts:    make(map[string]*domain.Draft),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// CreateAccount implements store.Seeder.
func (s *Store) CreateAccount(ctx context.Context, a *domain.Account) error {
	if a.ID == "" {
		return fmt.Errorf("account ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

// CreateCategory implements store.Seeder.
func (s *Store) CreateCategory(ctx context.Context, c *domain.Category) error {
	if c.ID == "" {
		return fmt.Errorf("category ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append(s.categories, *c)
	return nil
}

// GetAccount implements store.AccountRepository.
func (s *Store) GetAccount(ctx context.Context, ownerID, accountID string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[accountID]
	if !ok || a.OwnerID != ownerID || a.Deleted {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// IncrementBalance implements store.AccountRepository.
func (s *Store) IncrementBalance(ctx context.Context, ownerID, accountID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok || a.OwnerID != ownerID || a.Deleted {
		return store.ErrNotFound
	}
	a.Balance += delta
	return nil
}

// GetCategory implements store.CategoryRepository.
func (s *Store) GetCategory(ctx context.Context, ownerID, categoryID string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.categories {
		if c.ID == categoryID && c.OwnerID == ownerID {
			cp := c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

// ListCategories implements store.CategoryRepository.
func (s *Store) ListCategories(ctx context.Context, ownerID string, kind domain.CategoryKind) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Category
	for _, c := range s.categories {
		if c.OwnerID == ownerID && c.Kind == kind {
			out = append(out, c)
		}
	}
	return out, nil
}

func instanceKey(parentID string, scheduledFor time.Time) string {
	return parentID + "|" + domain.Day(scheduledFor).Format(domain.DayLayout)
}

// CreateTransaction implements store.TransactionRepository.
func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("transaction ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txByID[tx.ID]; exists {
		return fmt.Errorf("transaction %s: %w", tx.ID, store.ErrUniqueViolation)
	}
	r := tx.Recurrence
	if !r.IsTemplate && r.ParentID != nil && r.ScheduledFor != nil {
		key := instanceKey(*r.ParentID, *r.ScheduledFor)
		if _, exists := s.instances[key]; exists {
			return fmt.Errorf("instance %s: %w", key, store.ErrUniqueViolation)
		}
		s.instances[key] = tx.ID
	}

	cp := cloneTransaction(tx)
	s.transactions = append(s.transactions, cp)
	s.txByID[tx.ID] = cp
	return nil
}

// GetTransaction implements store.TransactionRepository.
func (s *Store) GetTransaction(ctx context.Context, ownerID, transactionID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txByID[transactionID]
	if !ok || tx.OwnerID != ownerID || tx.Deleted {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

// FindTransactions implements store.TransactionRepository.
func (s *Store) FindTransactions(ctx context.Context, f store.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Transaction
	for _, tx := range s.transactions {
		if matches(tx, f) {
			out = append(out, *cloneTransaction(tx))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(tx *domain.Transaction, f store.TransactionFilter) bool {
	switch {
	case tx.Deleted:
		return false
	case f.OwnerID != "" && tx.OwnerID != f.OwnerID:
		return false
	case f.AccountID != "" && tx.AccountID != f.AccountID:
		return false
	case f.Type != "" && tx.Type != f.Type:
		return false
	case f.AmountMinor != nil && tx.AmountMinor != *f.AmountMinor:
		return false
	case f.Currency != "" && tx.Currency != f.Currency:
		return false
	case f.DateFrom != nil && tx.Date.Before(*f.DateFrom):
		return false
	case f.DateTo != nil && tx.Date.After(*f.DateTo):
		return false
	case f.MatchDescription && !equalPtr(tx.Description, f.Description):
		return false
	case f.MatchCategory && !equalPtr(tx.CategoryID, f.CategoryID):
		return false
	}
	return true
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ListDueTemplates implements store.TransactionRepository.
func (s *Store) ListDueTemplates(ctx context.Context, ownerID string, horizon time.Time) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Transaction
	for _, tx := range s.transactions {
		if tx.OwnerID == ownerID && isDue(tx, horizon) {
			out = append(out, *cloneTransaction(tx))
		}
	}
	return out, nil
}

// ListTemplateOwners implements store.TransactionRepository.
func (s *Store) ListTemplateOwners(ctx context.Context, horizon time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, tx := range s.transactions {
		if isDue(tx, horizon) && !seen[tx.OwnerID] {
			seen[tx.OwnerID] = true
			out = append(out, tx.OwnerID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func isDue(tx *domain.Transaction, horizon time.Time) bool {
	r := tx.Recurrence
	return !tx.Deleted && r.IsTemplate && r.Frequency != domain.FrequencyNone &&
		r.NextRunAt != nil && !r.NextRunAt.After(horizon)
}

// AdvanceTemplate implements store.TransactionRepository.
func (s *Store) AdvanceTemplate(ctx context.Context, ownerID, templateID string, expectNextRunAt, lastRunAt time.Time, nextRunAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txByID[templateID]
	if !ok || tx.OwnerID != ownerID || tx.Deleted || !tx.Recurrence.IsTemplate {
		return store.ErrNotFound
	}
	if tx.Recurrence.NextRunAt == nil || !tx.Recurrence.NextRunAt.Equal(expectNextRunAt) {
		return store.ErrStatusMismatch
	}
	last := lastRunAt
	tx.Recurrence.LastRunAt = &last
	tx.Recurrence.NextRunAt = copyTime(nextRunAt)
	return nil
}

// CreateDraft implements store.DraftRepository.
func (s *Store) CreateDraft(ctx context.Context, d *domain.Draft) error {
	if d.ID == "" {
		return fmt.Errorf("draft ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[d.ID] = cloneDraft(d)
	return nil
}

// GetDraft implements store.DraftRepository.
func (s *Store) GetDraft(ctx context.Context, ownerID, draftID string) (*domain.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drafts[draftID]
	if !ok || d.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	return cloneDraft(d), nil
}

// FindDraftByDedupeKey implements store.DraftRepository.
func (s *Store) FindDraftByDedupeKey(ctx context.Context, ownerID, dedupeKey string, status domain.DraftStatus) (*domain.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Draft
	for _, d := range s.drafts {
		if d.OwnerID != ownerID || d.DedupeKey != dedupeKey || d.Status != status {
			continue
		}
		if found == nil || d.CreatedAt.After(found.CreatedAt) {
			found = d
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return cloneDraft(found), nil
}

// UpdateDraft implements store.DraftRepository.
func (s *Store) UpdateDraft(ctx context.Context, d *domain.Draft, expectStatus domain.DraftStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.drafts[d.ID]
	if !ok || cur.OwnerID != d.OwnerID {
		return store.ErrNotFound
	}
	if cur.Status != expectStatus {
		return store.ErrStatusMismatch
	}
	s.drafts[d.ID] = cloneDraft(d)
	return nil
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)
