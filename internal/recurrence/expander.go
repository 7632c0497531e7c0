package recurrence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/store"
)

// DefaultMaxCatchUp bounds how many occurrences one template produces per run.
const DefaultMaxCatchUp = 120

// Poster posts a candidate through the ledger.
type Poster interface {
	Post(ctx context.Context, c domain.Candidate) (*domain.Transaction, error)
}

// Expander materializes due recurrence templates. Repeated and concurrent
// runs are safe: instance uniqueness on (parent, scheduledFor) absorbs
// duplicates and template advancement is compare-and-set.
type Expander struct {
	templates  store.TransactionRepository
	poster     Poster
	maxCatchUp int
	log        zerolog.Logger
}

// NewExpander creates an Expander. maxCatchUp <= 0 uses DefaultMaxCatchUp.
func NewExpander(templates store.TransactionRepository, poster Poster, maxCatchUp int, log zerolog.Logger) *Expander {
	if maxCatchUp <= 0 {
		maxCatchUp = DefaultMaxCatchUp
	}
	return &Expander{templates: templates, poster: poster, maxCatchUp: maxCatchUp, log: log}
}

// Materialize creates every due occurrence up to horizon for ownerID and
// returns the instances it created. Occurrences that already exist are not
// returned and are not errors.
func (e *Expander) Materialize(ctx context.Context, ownerID string, horizon time.Time) ([]domain.Transaction, error) {
	templates, err := e.templates.ListDueTemplates(ctx, ownerID, horizon)
	if err != nil {
		return nil, fmt.Errorf("Materialize: list due templates: %w", err)
	}

	var created []domain.Transaction
	var errs []error
	for i := range templates {
		out, err := e.expand(ctx, &templates[i], horizon)
		created = append(created, out...)
		if err != nil {
			errs = append(errs, fmt.Errorf("template %s: %w", templates[i].ID, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return created, fmt.Errorf("Materialize: %w", err)
	}
	return created, nil
}

// MaterializeAll runs Materialize for every owner with due templates.
func (e *Expander) MaterializeAll(ctx context.Context, horizon time.Time) (int, error) {
	owners, err := e.templates.ListTemplateOwners(ctx, horizon)
	if err != nil {
		return 0, fmt.Errorf("MaterializeAll: list owners: %w", err)
	}

	total := 0
	var errs []error
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		created, err := e.Materialize(ctx, owner, horizon)
		total += len(created)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// expand walks one template forward until its nextRunAt passes horizon.
func (e *Expander) expand(ctx context.Context, tpl *domain.Transaction, horizon time.Time) ([]domain.Transaction, error) {
	var created []domain.Transaction
	r := tpl.Recurrence
	log := e.log.With().Str("owner_id", tpl.OwnerID).Str("template_id", tpl.ID).Logger()

	for n := 0; n < e.maxCatchUp; n++ {
		if r.NextRunAt == nil || r.NextRunAt.After(horizon) {
			return created, nil
		}
		current := *r.NextRunAt
		if r.EndDate != nil && current.After(*r.EndDate) {
			// Exhausted.
			return created, nil
		}

		scheduledFor := domain.Day(current)
		tx, err := e.poster.Post(ctx, instanceCandidate(tpl, scheduledFor))
		switch {
		case err == nil:
			created = append(created, *tx)
		case errors.Is(err, domain.ErrCompensationFailed):
			// The balance was moved but not restored; stop so it surfaces.
			return created, err
		case errors.Is(err, store.ErrUniqueViolation):
			log.Debug().Time("scheduled_for", scheduledFor).Msg("Occurrence already generated")
		case domain.IsCallerError(err):
			// The template no longer posts cleanly (e.g. account currency
			// changed). Skip this occurrence so the schedule keeps moving.
			log.Warn().Err(err).Time("scheduled_for", scheduledFor).Msg("Skipping recurring occurrence")
		default:
			return created, err
		}

		next := NextDate(r.Frequency, r.Interval, current, r.Anchor())
		var nextPtr *time.Time
		if r.EndDate == nil || !next.After(*r.EndDate) {
			nextPtr = &next
		}

		err = e.templates.AdvanceTemplate(ctx, tpl.OwnerID, tpl.ID, current, current, nextPtr)
		if errors.Is(err, store.ErrStatusMismatch) || errors.Is(err, store.ErrNotFound) {
			// Another run advanced or removed the template.
			return created, nil
		}
		if err != nil {
			return created, fmt.Errorf("advance: %w", err)
		}

		r.LastRunAt = &current
		r.NextRunAt = nextPtr
	}

	log.Warn().Int("max_catch_up", e.maxCatchUp).Msg("Catch-up limit reached; remaining occurrences deferred")
	return created, nil
}

// instanceCandidate copies the template's financial fields onto a candidate
// tied to (template, scheduledFor).
func instanceCandidate(tpl *domain.Transaction, scheduledFor time.Time) domain.Candidate {
	return domain.Candidate{
		OwnerID:     tpl.OwnerID,
		AccountID:   tpl.AccountID,
		CategoryID:  tpl.CategoryID,
		Type:        tpl.Type,
		AmountMinor: tpl.AmountMinor,
		Currency:    tpl.Currency,
		Date:        scheduledFor,
		Description: tpl.Description,
		Notes:       tpl.Notes,
		Tags:        append([]string{}, tpl.Tags...),
		AssetSymbol: tpl.AssetSymbol,
		Units:       tpl.Units,
		Reminder: domain.ReminderSettings{
			Enabled:       tpl.Reminder.Enabled,
			OffsetMinutes: tpl.Reminder.OffsetMinutes,
		},
		Instance: &domain.InstanceRef{ParentID: tpl.ID, ScheduledFor: scheduledFor},
	}
}
