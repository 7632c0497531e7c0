package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/store"
)

// Deps holds the Service's collaborators.
type Deps struct {
	Accounts     store.AccountRepository
	Categories   store.CategoryRepository
	Transactions store.TransactionRepository
	DraftRepo    store.DraftRepository
	Drafts       DraftStore
	Rules        Rules
	Threshold    float64
	Now          func() time.Time
	Logger       zerolog.Logger
}

// Service runs free-text captures.
type Service struct {
	pipeline *Pipeline
	log      zerolog.Logger
}

// NewService builds the capture pipeline. A zero Threshold uses DefaultThreshold.
func NewService(d Deps) *Service {
	if d.Threshold == 0 {
		d.Threshold = DefaultThreshold
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Rules.Symbols == nil {
		d.Rules = DefaultRules()
	}

	return &Service{
		pipeline: NewPipeline(
			&LoadAccountStep{Accounts: d.Accounts},
			&ParseStep{Parser: NewParser(d.Rules)},
			&ResolveStep{Now: d.Now},
			&CategorizeStep{Categories: d.Categories},
			&ScoreStep{},
			&DedupeStep{Transactions: d.Transactions, Drafts: d.DraftRepo},
			&GateStep{Drafts: d.Drafts, Threshold: d.Threshold, Log: d.Logger},
		),
		log: d.Logger,
	}
}

// Capture parses rawText into a candidate for accountID and either posts it,
// stores it as a draft, or reports the existing record it duplicates.
func (s *Service) Capture(ctx context.Context, ownerID, accountID, rawText string, o Overrides) (*Result, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, fmt.Errorf("Capture: %w", domain.ErrAmountNotDetected)
	}
	if ownerID == "" || accountID == "" {
		return nil, fmt.Errorf("Capture: %w: owner and account are required", domain.ErrValidation)
	}

	state := &CaptureState{
		OwnerID:   ownerID,
		AccountID: accountID,
		RawText:   rawText,
		Overrides: o,
	}
	if err := s.pipeline.Execute(ctx, state); err != nil {
		return nil, fmt.Errorf("Capture: %w", err)
	}
	if state.Result == nil {
		return nil, fmt.Errorf("Capture: pipeline finished without a result")
	}

	s.log.Info().
		Str("owner_id", ownerID).
		Str("outcome", string(state.Result.Outcome)).
		Float64("confidence", state.Confidence).
		Msg("Capture processed")
	return state.Result, nil
}
