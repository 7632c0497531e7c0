// Package drafts implements the review lifecycle of captured transactions:
// a draft may be edited, then either posted to the ledger or rejected.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/money"
	"github.com/dvloznov/finance-ledger/internal/store"
)

// Poster posts a candidate through the ledger.
type Poster interface {
	Post(ctx context.Context, c domain.Candidate) (*domain.Transaction, error)
}

// Service runs draft transitions. Only the draft state accepts operations.
type Service struct {
	drafts store.DraftRepository
	poster Poster
	now    func() time.Time
	log    zerolog.Logger
}

// NewService creates a Service. now may be nil to use time.Now.
func NewService(drafts store.DraftRepository, poster Poster, now func() time.Time, log zerolog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{drafts: drafts, poster: poster, now: now, log: log}
}

// Create stores d as a new draft, assigning id, status and timestamps.
func (s *Service) Create(ctx context.Context, d *domain.Draft) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := s.now().UTC()
	d.Status = domain.DraftStatusDraft
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.Reasons == nil {
		d.Reasons = []string{}
	}
	if err := s.drafts.CreateDraft(ctx, d); err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// Get returns a draft in any state.
func (s *Service) Get(ctx context.Context, ownerID, draftID string) (*domain.Draft, error) {
	d, err := s.drafts.GetDraft(ctx, ownerID, draftID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("Get: %w: draft %s not found", domain.ErrReference, draftID)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return d, nil
}

// editable loads a draft that is still in the draft state.
func (s *Service) editable(ctx context.Context, op, ownerID, draftID string) (*domain.Draft, error) {
	d, err := s.drafts.GetDraft(ctx, ownerID, draftID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrDraftNotEditable)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if d.Status != domain.DraftStatusDraft {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrDraftNotEditable)
	}
	return d, nil
}

// save writes d back if it is still a draft.
func (s *Service) save(ctx context.Context, op string, d *domain.Draft) error {
	err := s.drafts.UpdateDraft(ctx, d, domain.DraftStatusDraft)
	if errors.Is(err, store.ErrStatusMismatch) || errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, domain.ErrDraftNotEditable)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Patch applies the non-nil fields of p. Every field is validated before any
// is applied, so an invalid patch leaves the draft untouched.
func (s *Service) Patch(ctx context.Context, ownerID, draftID string, p Patch) (*domain.Draft, error) {
	d, err := s.editable(ctx, "Patch", ownerID, draftID)
	if err != nil {
		return nil, err
	}

	c := d.Candidate
	if err := p.apply(&c); err != nil {
		return nil, fmt.Errorf("Patch: %w", err)
	}
	d.Candidate = c
	d.UpdatedAt = s.now().UTC()

	if err := s.save(ctx, "Patch", d); err != nil {
		return nil, err
	}
	return d, nil
}

// Post sends the draft's candidate through the ledger. The draft is claimed
// as posted, with the transaction id allocated up front, before the ledger is
// touched, so concurrent posts of one draft create at most one transaction.
// On failure the draft is restored exactly as it was.
func (s *Service) Post(ctx context.Context, ownerID, draftID string) (*domain.Draft, *domain.Transaction, error) {
	d, err := s.editable(ctx, "Post", ownerID, draftID)
	if err != nil {
		return nil, nil, err
	}

	txID := uuid.New().String()
	claimed := *d
	claimed.Status = domain.DraftStatusPosted
	claimed.PostedTransactionID = &txID
	claimed.UpdatedAt = s.now().UTC()
	if err := s.save(ctx, "Post", &claimed); err != nil {
		return nil, nil, err
	}

	c := d.Candidate
	c.ID = txID
	tx, err := s.poster.Post(ctx, c)
	if err != nil {
		if rerr := s.drafts.UpdateDraft(ctx, d, domain.DraftStatusPosted); rerr != nil {
			s.log.Error().Err(rerr).
				Str("owner_id", ownerID).
				Str("draft_id", draftID).
				Msg("Failed to release draft after post failure")
		}
		return nil, nil, fmt.Errorf("Post: %w", err)
	}

	if tx.ID != txID {
		claimed.PostedTransactionID = &tx.ID
		if err := s.drafts.UpdateDraft(ctx, &claimed, domain.DraftStatusPosted); err != nil {
			s.log.Error().Err(err).
				Str("draft_id", draftID).
				Str("transaction_id", tx.ID).
				Msg("Failed to record posted transaction on draft")
		}
	}

	s.log.Info().Str("draft_id", claimed.ID).Str("transaction_id", tx.ID).Msg("Draft posted")
	return &claimed, tx, nil
}

// Reject moves the draft to rejected with an optional reason.
func (s *Service) Reject(ctx context.Context, ownerID, draftID string, reason *string) (*domain.Draft, error) {
	d, err := s.editable(ctx, "Reject", ownerID, draftID)
	if err != nil {
		return nil, err
	}

	d.Status = domain.DraftStatusRejected
	if reason != nil {
		d.RejectedReason = domain.StringPtr(strings.TrimSpace(*reason))
	}
	d.UpdatedAt = s.now().UTC()

	if err := s.save(ctx, "Reject", d); err != nil {
		return nil, err
	}
	s.log.Info().Str("draft_id", d.ID).Msg("Draft rejected")
	return d, nil
}

// Patch holds draft edits. Nil fields are left unchanged. An empty string
// clears CategoryID, Description and Notes.
type Patch struct {
	Type        *string        `json:"type,omitempty"`
	AmountMinor *int64         `json:"amount_minor,omitempty"`
	Currency    *string        `json:"currency,omitempty"`
	Date        *string        `json:"date,omitempty"`
	CategoryID  *string        `json:"category_id,omitempty"`
	Description *string        `json:"description,omitempty"`
	Notes       *string        `json:"notes,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Reminder    *ReminderPatch `json:"reminder,omitempty"`
}

// ReminderPatch edits reminder settings.
type ReminderPatch struct {
	Enabled       *bool `json:"enabled,omitempty"`
	OffsetMinutes *int  `json:"offset_minutes,omitempty"`
}

// apply validates p and writes it into c. c is only modified when every
// field is valid.
func (p Patch) apply(c *domain.Candidate) error {
	next := *c

	if p.Type != nil {
		t, err := domain.ParseTransactionType(*p.Type)
		if err != nil {
			return err
		}
		next.Type = t
	}
	if p.AmountMinor != nil {
		if *p.AmountMinor <= 0 {
			return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
		}
		next.AmountMinor = *p.AmountMinor
	}
	if p.Currency != nil {
		cur, err := money.NormalizeCurrency(*p.Currency)
		if err != nil {
			return err
		}
		next.Currency = cur
	}
	if p.Date != nil {
		d, err := domain.ParseDay(*p.Date)
		if err != nil {
			return err
		}
		next.Date = d
	}
	if p.CategoryID != nil {
		next.CategoryID = domain.StringPtr(strings.TrimSpace(*p.CategoryID))
	}
	if p.Description != nil {
		next.Description = domain.StringPtr(strings.TrimSpace(*p.Description))
	}
	if p.Notes != nil {
		next.Notes = domain.StringPtr(strings.TrimSpace(*p.Notes))
	}
	if p.Tags != nil {
		next.Tags = normalizeTags(p.Tags)
	}
	if p.Reminder != nil {
		if p.Reminder.Enabled != nil {
			next.Reminder.Enabled = *p.Reminder.Enabled
		}
		if off := p.Reminder.OffsetMinutes; off != nil {
			if *off < 0 || *off > domain.MaxReminderOffsetMinutes {
				return fmt.Errorf("%w: reminder offset must be between 0 and %d minutes",
					domain.ErrValidation, domain.MaxReminderOffsetMinutes)
			}
			next.Reminder.OffsetMinutes = *off
		}
	}

	*c = next
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
