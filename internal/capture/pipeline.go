package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/money"
	"github.com/dvloznov/finance-ledger/internal/store"
)

// Outcome tells the caller which branch a capture took.
type Outcome string

const (
	OutcomeAutoPosted Outcome = "auto_posted"
	OutcomeDraft      Outcome = "draft"
	OutcomeDuplicate  Outcome = "duplicate"
)

// Result is the successful result of a capture. Exactly one of Transaction,
// Draft-only or DuplicateOf is meaningful, per Outcome.
type Result struct {
	Outcome     Outcome             `json:"outcome"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
	Draft       *domain.Draft       `json:"draft,omitempty"`
	DuplicateOf string              `json:"duplicate_of,omitempty"`
}

// Overrides are caller-supplied values that win over parsing.
type Overrides struct {
	Type       *domain.TransactionType
	Date       *time.Time
	CategoryID *string
	Notes      *string
	Tags       []string
	Reminder   *domain.ReminderSettings
	Source     string
}

// DraftStore creates drafts and posts them.
type DraftStore interface {
	Create(ctx context.Context, d *domain.Draft) error
	Post(ctx context.Context, ownerID, draftID string) (*domain.Draft, *domain.Transaction, error)
}

// CaptureStep is a single step of the capture pipeline.
type CaptureStep interface {
	Execute(ctx context.Context, state *CaptureState) error
}

// CaptureState is shared by all capture steps. A step that sets Result ends
// the pipeline.
type CaptureState struct {
	OwnerID   string
	AccountID string
	RawText   string
	Overrides Overrides

	Account    *domain.Account
	Parsed     Parsed
	Candidate  domain.Candidate
	Signals    Signals
	Reasons    []string
	Confidence float64
	DedupeKey  string

	Result *Result
}

// Step 1: LoadAccountStep resolves the target account.
type LoadAccountStep struct {
	Accounts store.AccountRepository
}

func (s *LoadAccountStep) Execute(ctx context.Context, state *CaptureState) error {
	a, err := s.Accounts.GetAccount(ctx, state.OwnerID, state.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: account %s not found", domain.ErrReference, state.AccountID)
	}
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	state.Account = a
	return nil
}

// Step 2: ParseStep extracts amount, currency, type and description.
type ParseStep struct {
	Parser *Parser
}

func (s *ParseStep) Execute(ctx context.Context, state *CaptureState) error {
	parsed, err := s.Parser.Parse(state.RawText)
	if err != nil {
		return err
	}
	if state.Overrides.Type != nil {
		parsed.Type = *state.Overrides.Type
	}
	state.Parsed = parsed
	return nil
}

// Step 3: ResolveStep applies currency and date fallbacks and builds the candidate.
type ResolveStep struct {
	Now func() time.Time
}

func (s *ResolveStep) Execute(ctx context.Context, state *CaptureState) error {
	p := state.Parsed
	o := state.Overrides

	currency := p.Currency
	if currency != "" {
		state.Signals.CurrencyParsed = true
	} else {
		currency = state.Account.Currency
		state.Reasons = append(state.Reasons,
			fmt.Sprintf("currency not detected; used account currency %s", currency))
	}

	var date time.Time
	if o.Date != nil {
		date = domain.Day(*o.Date)
		state.Signals.DateExplicit = true
	} else {
		date = domain.Day(s.Now())
		state.Reasons = append(state.Reasons, "date not provided; used today")
	}

	state.Signals.HasDescription = p.Description != nil

	minor, err := money.ToMinor(p.Amount.Abs(), currency)
	if err != nil {
		return err
	}

	c := domain.Candidate{
		OwnerID:     state.OwnerID,
		AccountID:   state.AccountID,
		Type:        p.Type,
		AmountMinor: minor,
		Currency:    currency,
		Date:        date,
		Description: p.Description,
		Notes:       o.Notes,
		Tags:        o.Tags,
	}
	if o.Reminder != nil {
		c.Reminder = *o.Reminder
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	state.Candidate = c
	return nil
}

// Step 4: CategorizeStep picks the category by override or by name match.
type CategorizeStep struct {
	Categories store.CategoryRepository
}

func (s *CategorizeStep) Execute(ctx context.Context, state *CaptureState) error {
	if id := state.Overrides.CategoryID; id != nil {
		if _, err := s.Categories.GetCategory(ctx, state.OwnerID, *id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: category %s not found", domain.ErrReference, *id)
			}
			return fmt.Errorf("load category: %w", err)
		}
		state.Candidate.CategoryID = id
		state.Signals.CategoryMatched = true
		return nil
	}

	kind, ok := domain.CategoryKindFor(state.Candidate.Type)
	if !ok {
		return nil
	}
	cats, err := s.Categories.ListCategories(ctx, state.OwnerID, kind)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	for _, c := range cats {
		if containsWord(state.RawText, c.Name) {
			id := c.ID
			state.Candidate.CategoryID = &id
			state.Signals.CategoryMatched = true
			return nil
		}
	}
	return nil
}

// Step 5: ScoreStep computes confidence and the dedupe key.
type ScoreStep struct{}

func (s *ScoreStep) Execute(ctx context.Context, state *CaptureState) error {
	c := state.Candidate
	state.Confidence = Score(state.Signals)
	state.DedupeKey = DedupeKey(c.OwnerID, c.Type, c.AmountMinor, c.Currency, c.Date, c.Description)
	return nil
}

// Step 6: DedupeStep short-circuits when the same transaction was already
// recorded within a day, or is already waiting as a draft.
type DedupeStep struct {
	Transactions store.TransactionRepository
	Drafts       store.DraftRepository
}

func (s *DedupeStep) Execute(ctx context.Context, state *CaptureState) error {
	c := state.Candidate
	from := c.Date.AddDate(0, 0, -1)
	to := c.Date.AddDate(0, 0, 1)
	amount := c.AmountMinor

	existing, err := s.Transactions.FindTransactions(ctx, store.TransactionFilter{
		OwnerID:          c.OwnerID,
		Type:             c.Type,
		AmountMinor:      &amount,
		Currency:         c.Currency,
		Description:      c.Description,
		MatchDescription: true,
		DateFrom:         &from,
		DateTo:           &to,
		Limit:            1,
	})
	if err != nil {
		return fmt.Errorf("find duplicates: %w", err)
	}
	if len(existing) > 0 {
		state.Result = &Result{Outcome: OutcomeDuplicate, DuplicateOf: existing[0].ID}
		return nil
	}

	pending, err := s.Drafts.FindDraftByDedupeKey(ctx, c.OwnerID, state.DedupeKey, domain.DraftStatusDraft)
	if err == nil {
		state.Result = &Result{Outcome: OutcomeDuplicate, DuplicateOf: pending.ID}
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("find pending draft: %w", err)
	}
	return nil
}

// Step 7: GateStep stores the draft and posts it when confidence clears the threshold.
type GateStep struct {
	Drafts    DraftStore
	Threshold float64
	Log       zerolog.Logger
}

func (s *GateStep) Execute(ctx context.Context, state *CaptureState) error {
	source := strings.TrimSpace(state.Overrides.Source)
	if source == "" {
		source = "text"
	}
	reasons := state.Reasons
	if reasons == nil {
		reasons = []string{}
	}

	d := &domain.Draft{
		OwnerID:    state.OwnerID,
		AccountID:  state.AccountID,
		Source:     source,
		Candidate:  state.Candidate,
		Confidence: state.Confidence,
		Reasons:    reasons,
		DedupeKey:  state.DedupeKey,
	}
	if err := s.Drafts.Create(ctx, d); err != nil {
		return fmt.Errorf("create draft: %w", err)
	}

	if state.Confidence < s.Threshold {
		state.Result = &Result{Outcome: OutcomeDraft, Draft: d}
		return nil
	}

	posted, tx, err := s.Drafts.Post(ctx, state.OwnerID, d.ID)
	if err != nil {
		if domain.IsCallerError(err) {
			s.Log.Info().Err(err).Str("draft_id", d.ID).Msg("Auto-post rejected; leaving draft for review")
			state.Result = &Result{Outcome: OutcomeDraft, Draft: d}
			return nil
		}
		return fmt.Errorf("auto-post draft %s: %w", d.ID, err)
	}
	state.Result = &Result{Outcome: OutcomeAutoPosted, Transaction: tx, Draft: posted}
	return nil
}

// Pipeline executes capture steps in order until one produces a Result.
type Pipeline struct {
	steps []CaptureStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...CaptureStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs the steps sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *CaptureState) error {
	for _, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return err
		}
		if state.Result != nil {
			return nil
		}
	}
	return nil
}
