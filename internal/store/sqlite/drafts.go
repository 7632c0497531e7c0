package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/store"
)

const draftColumns = `id, owner_id, account_id, source, status, candidate, confidence, reasons,
	dedupe_key, posted_transaction_id, rejected_reason, created_at, updated_at`

func draftArgs(d *domain.Draft) ([]any, error) {
	candidate, err := json.Marshal(d.Candidate)
	if err != nil {
		return nil, fmt.Errorf("marshal candidate: %w", err)
	}
	reasons := d.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return nil, fmt.Errorf("marshal reasons: %w", err)
	}
	return []any{
		d.ID, d.OwnerID, d.AccountID, d.Source, string(d.Status), string(candidate), d.Confidence, string(reasonsJSON),
		d.DedupeKey, nullString(d.PostedTransactionID), nullString(d.RejectedReason),
		d.CreatedAt.UTC().Format(tsLayout), d.UpdatedAt.UTC().Format(tsLayout),
	}, nil
}

func scanDraft(row rowScanner) (*domain.Draft, error) {
	var (
		d                                   domain.Draft
		status, candidate, reasons          string
		createdAt, updatedAt                string
		postedTransactionID, rejectedReason sql.NullString
	)
	err := row.Scan(&d.ID, &d.OwnerID, &d.AccountID, &d.Source, &status, &candidate, &d.Confidence, &reasons,
		&d.DedupeKey, &postedTransactionID, &rejectedReason, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.Status = domain.DraftStatus(status)
	d.PostedTransactionID = stringPtr(postedTransactionID)
	d.RejectedReason = stringPtr(rejectedReason)
	if err := json.Unmarshal([]byte(candidate), &d.Candidate); err != nil {
		return nil, fmt.Errorf("parse candidate: %w", err)
	}
	if err := json.Unmarshal([]byte(reasons), &d.Reasons); err != nil {
		return nil, fmt.Errorf("parse reasons: %w", err)
	}
	if d.CreatedAt, err = time.Parse(tsLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(tsLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &d, nil
}

// CreateDraft implements store.DraftRepository.
func (s *Store) CreateDraft(ctx context.Context, d *domain.Draft) error {
	args, err := draftArgs(d)
	if err != nil {
		return fmt.Errorf("CreateDraft: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO drafts (`+draftColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("CreateDraft: %w", translate(err))
	}
	return nil
}

// GetDraft implements store.DraftRepository.
func (s *Store) GetDraft(ctx context.Context, ownerID, draftID string) (*domain.Draft, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = ? AND owner_id = ?`,
		draftID, ownerID)
	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetDraft: %w", err)
	}
	return d, nil
}

// FindDraftByDedupeKey implements store.DraftRepository.
func (s *Store) FindDraftByDedupeKey(ctx context.Context, ownerID, dedupeKey string, status domain.DraftStatus) (*domain.Draft, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM drafts
		WHERE owner_id = ? AND dedupe_key = ? AND status = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		ownerID, dedupeKey, string(status))
	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("FindDraftByDedupeKey: %w", err)
	}
	return d, nil
}

// UpdateDraft implements store.DraftRepository. The status guard and the
// write happen in one statement.
func (s *Store) UpdateDraft(ctx context.Context, d *domain.Draft, expectStatus domain.DraftStatus) error {
	args, err := draftArgs(d)
	if err != nil {
		return fmt.Errorf("UpdateDraft: %w", err)
	}
	// args[0:2] are id, owner_id; the rest are the mutable columns.
	res, err := s.db.ExecContext(ctx, `
		UPDATE drafts SET account_id = ?, source = ?, status = ?, candidate = ?, confidence = ?, reasons = ?,
			dedupe_key = ?, posted_transaction_id = ?, rejected_reason = ?, created_at = ?, updated_at = ?
		WHERE id = ? AND owner_id = ? AND status = ?`,
		append(args[2:], d.ID, d.OwnerID, string(expectStatus))...)
	if err != nil {
		return fmt.Errorf("UpdateDraft: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateDraft: rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.GetDraft(ctx, d.OwnerID, d.ID); errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return store.ErrStatusMismatch
	}
	return nil
}
