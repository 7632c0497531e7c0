package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/store"
)

// tsLayout is fixed-width so timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

const txColumns = `id, owner_id, account_id, category_id, type, amount_minor, currency, date,
	description, notes, tags, asset_symbol, units,
	reminder_enabled, reminder_offset_minutes, remind_at,
	is_template, recurrence_parent_id, frequency, recurrence_interval, start_date, end_date,
	day_of_month, weekday, next_run_at, last_run_at, recurrence_scheduled_for,
	effective, deleted, created_at`

func dayString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: domain.Day(*t).Format(domain.DayLayout), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func parseDayPtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(domain.DayLayout, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// CreateTransaction implements store.TransactionRepository.
func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	tags := tx.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("CreateTransaction: marshal tags: %w", err)
	}

	var units sql.NullString
	if tx.Units != nil {
		units = sql.NullString{String: tx.Units.String(), Valid: true}
	}
	var remindAt sql.NullString
	if tx.Reminder.RemindAt != nil {
		remindAt = sql.NullString{String: tx.Reminder.RemindAt.UTC().Format(tsLayout), Valid: true}
	}
	var weekday sql.NullInt64
	if tx.Recurrence.Weekday != nil {
		weekday = sql.NullInt64{Int64: int64(*tx.Recurrence.Weekday), Valid: true}
	}
	freq := tx.Recurrence.Frequency
	if freq == "" {
		freq = domain.FrequencyNone
	}
	r := tx.Recurrence

	_, err = s.db.ExecContext(ctx, `INSERT INTO transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.OwnerID, tx.AccountID, nullString(tx.CategoryID), string(tx.Type), tx.AmountMinor, tx.Currency,
		domain.Day(tx.Date).Format(domain.DayLayout),
		nullString(tx.Description), nullString(tx.Notes), string(tagsJSON), nullString(tx.AssetSymbol), units,
		tx.Reminder.Enabled, tx.Reminder.OffsetMinutes, remindAt,
		r.IsTemplate, nullString(r.ParentID), string(freq), r.Interval, dayString(r.StartDate), dayString(r.EndDate),
		r.DayOfMonth, weekday, dayString(r.NextRunAt), dayString(r.LastRunAt), dayString(r.ScheduledFor),
		tx.Effective, tx.Deleted, tx.CreatedAt.UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("CreateTransaction: %w", translate(err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx                                                 domain.Transaction
		categoryID, description, notes, assetSymbol, units sql.NullString
		remindAt, parentID, startDate, endDate             sql.NullString
		nextRunAt, lastRunAt, scheduledFor                 sql.NullString
		typ, freq, date, tagsJSON, createdAt               string
		weekday                                            sql.NullInt64
	)

	err := row.Scan(
		&tx.ID, &tx.OwnerID, &tx.AccountID, &categoryID, &typ, &tx.AmountMinor, &tx.Currency, &date,
		&description, &notes, &tagsJSON, &assetSymbol, &units,
		&tx.Reminder.Enabled, &tx.Reminder.OffsetMinutes, &remindAt,
		&tx.Recurrence.IsTemplate, &parentID, &freq, &tx.Recurrence.Interval, &startDate, &endDate,
		&tx.Recurrence.DayOfMonth, &weekday, &nextRunAt, &lastRunAt, &scheduledFor,
		&tx.Effective, &tx.Deleted, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Type = domain.TransactionType(typ)
	tx.Recurrence.Frequency = domain.Frequency(freq)
	tx.CategoryID = stringPtr(categoryID)
	tx.Description = stringPtr(description)
	tx.Notes = stringPtr(notes)
	tx.AssetSymbol = stringPtr(assetSymbol)
	tx.Recurrence.ParentID = stringPtr(parentID)

	if tx.Date, err = time.Parse(domain.DayLayout, date); err != nil {
		return nil, fmt.Errorf("parse date: %w", err)
	}
	if tx.CreatedAt, err = time.Parse(tsLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &tx.Tags); err != nil {
		return nil, fmt.Errorf("parse tags: %w", err)
	}
	if units.Valid {
		u, err := decimal.NewFromString(units.String)
		if err != nil {
			return nil, fmt.Errorf("parse units: %w", err)
		}
		tx.Units = &u
	}
	if remindAt.Valid {
		t, err := time.Parse(tsLayout, remindAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse remind_at: %w", err)
		}
		tx.Reminder.RemindAt = &t
	}
	if weekday.Valid {
		wd := time.Weekday(weekday.Int64)
		tx.Recurrence.Weekday = &wd
	}

	days := []struct {
		src sql.NullString
		dst **time.Time
	}{
		{startDate, &tx.Recurrence.StartDate},
		{endDate, &tx.Recurrence.EndDate},
		{nextRunAt, &tx.Recurrence.NextRunAt},
		{lastRunAt, &tx.Recurrence.LastRunAt},
		{scheduledFor, &tx.Recurrence.ScheduledFor},
	}
	for _, d := range days {
		if *d.dst, err = parseDayPtr(d.src); err != nil {
			return nil, fmt.Errorf("parse recurrence day: %w", err)
		}
	}

	return &tx, nil
}

// GetTransaction implements store.TransactionRepository.
func (s *Store) GetTransaction(ctx context.Context, ownerID, transactionID string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions
		WHERE id = ? AND owner_id = ? AND deleted = 0`, transactionID, ownerID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return tx, nil
}

// FindTransactions implements store.TransactionRepository.
func (s *Store) FindTransactions(ctx context.Context, f store.TransactionFilter) ([]domain.Transaction, error) {
	where := []string{"deleted = 0"}
	var args []any
	add := func(clause string, v ...any) {
		where = append(where, clause)
		args = append(args, v...)
	}

	if f.OwnerID != "" {
		add("owner_id = ?", f.OwnerID)
	}
	if f.AccountID != "" {
		add("account_id = ?", f.AccountID)
	}
	if f.Type != "" {
		add("type = ?", string(f.Type))
	}
	if f.AmountMinor != nil {
		add("amount_minor = ?", *f.AmountMinor)
	}
	if f.Currency != "" {
		add("currency = ?", f.Currency)
	}
	if f.DateFrom != nil {
		add("date >= ?", domain.Day(*f.DateFrom).Format(domain.DayLayout))
	}
	if f.DateTo != nil {
		add("date <= ?", domain.Day(*f.DateTo).Format(domain.DayLayout))
	}
	if f.MatchDescription {
		if f.Description == nil {
			add("description IS NULL")
		} else {
			add("description = ?", *f.Description)
		}
	}
	if f.MatchCategory {
		if f.CategoryID == nil {
			add("category_id IS NULL")
		} else {
			add("category_id = ?", *f.CategoryID)
		}
	}

	query := `SELECT ` + txColumns + ` FROM transactions WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY date, created_at, seq`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	return s.queryTransactions(ctx, "FindTransactions", query, args...)
}

func (s *Store) queryTransactions(ctx context.Context, op, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

const dueTemplateClause = `deleted = 0 AND is_template = 1 AND frequency != 'none'
	AND next_run_at IS NOT NULL AND next_run_at <= ?`

// ListDueTemplates implements store.TransactionRepository.
func (s *Store) ListDueTemplates(ctx context.Context, ownerID string, horizon time.Time) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx, "ListDueTemplates",
		`SELECT `+txColumns+` FROM transactions WHERE owner_id = ? AND `+dueTemplateClause+` ORDER BY next_run_at, seq`,
		ownerID, domain.Day(horizon).Format(domain.DayLayout))
}

// ListTemplateOwners implements store.TransactionRepository.
func (s *Store) ListTemplateOwners(ctx context.Context, horizon time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT owner_id FROM transactions WHERE `+dueTemplateClause+` ORDER BY owner_id`,
		domain.Day(horizon).Format(domain.DayLayout))
	if err != nil {
		return nil, fmt.Errorf("ListTemplateOwners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, fmt.Errorf("ListTemplateOwners: scan: %w", err)
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// AdvanceTemplate implements store.TransactionRepository as a
// compare-and-set on next_run_at.
func (s *Store) AdvanceTemplate(ctx context.Context, ownerID, templateID string, expectNextRunAt, lastRunAt time.Time, nextRunAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET last_run_at = ?, next_run_at = ?
		WHERE id = ? AND owner_id = ? AND deleted = 0 AND is_template = 1 AND next_run_at = ?`,
		dayString(&lastRunAt), dayString(nextRunAt),
		templateID, ownerID, domain.Day(expectNextRunAt).Format(domain.DayLayout))
	if err != nil {
		return fmt.Errorf("AdvanceTemplate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("AdvanceTemplate: rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.GetTransaction(ctx, ownerID, templateID); errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return store.ErrStatusMismatch
	}
	return nil
}
