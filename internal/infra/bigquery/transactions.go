// Package bigquery mirrors posted ledger records into a BigQuery table for analytics.
package bigquery

import (
	"math/big"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/money"
)

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	OwnerID    string              `bigquery:"owner_id"`    // REQUIRED
	AccountID  string              `bigquery:"account_id"`  // REQUIRED
	CategoryID bigquery.NullString `bigquery:"category_id"` // NULLABLE

	Type            string     `bigquery:"type"`             // REQUIRED
	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED, partition column

	Amount      *big.Rat `bigquery:"amount"`       // REQUIRED NUMERIC, signed major units
	AmountMinor int64    `bigquery:"amount_minor"` // REQUIRED, unsigned
	Currency    string   `bigquery:"currency"`     // REQUIRED

	Description bigquery.NullString `bigquery:"description"` // NULLABLE
	Tags        []string            `bigquery:"tags"`        // REPEATED STRING

	AssetSymbol bigquery.NullString `bigquery:"asset_symbol"` // NULLABLE
	Units       bigquery.NullString `bigquery:"units"`        // NULLABLE, decimal text

	IsTemplate         bool                `bigquery:"is_template"`
	RecurrenceParentID bigquery.NullString `bigquery:"recurrence_parent_id"`
	ScheduledFor       bigquery.NullDate   `bigquery:"scheduled_for"`

	Effective bool `bigquery:"effective"`

	CreatedTS  time.Time `bigquery:"created_ts"`  // REQUIRED
	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
}

func nullString(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *s, Valid: true}
}

// NewTransactionRow maps a posted transaction onto its mirror row.
func NewTransactionRow(tx *domain.Transaction, exportedAt time.Time) *TransactionRow {
	row := &TransactionRow{
		TransactionID:      tx.ID,
		OwnerID:            tx.OwnerID,
		AccountID:          tx.AccountID,
		CategoryID:         nullString(tx.CategoryID),
		Type:               string(tx.Type),
		TransactionDate:    civil.DateOf(domain.Day(tx.Date)),
		Amount:             money.FromMinor(tx.Type.Sign()*tx.AmountMinor, tx.Currency).Rat(),
		AmountMinor:        tx.AmountMinor,
		Currency:           tx.Currency,
		Description:        nullString(tx.Description),
		Tags:               tx.Tags,
		AssetSymbol:        nullString(tx.AssetSymbol),
		IsTemplate:         tx.Recurrence.IsTemplate,
		RecurrenceParentID: nullString(tx.Recurrence.ParentID),
		Effective:          tx.Effective,
		CreatedTS:          tx.CreatedAt.UTC(),
		ExportedTS:         exportedAt.UTC(),
	}
	if row.Tags == nil {
		row.Tags = []string{}
	}
	if tx.Units != nil {
		row.Units = bigquery.NullString{StringVal: tx.Units.String(), Valid: true}
	}
	if tx.Recurrence.ScheduledFor != nil {
		row.ScheduledFor = bigquery.NullDate{Date: civil.DateOf(domain.Day(*tx.Recurrence.ScheduledFor)), Valid: true}
	}
	return row
}

const transactionsTableDDL = "CREATE TABLE IF NOT EXISTS `{{PROJECT_ID}}.{{DATASET_ID}}.{{TABLE}}` (" + `
	transaction_id        STRING NOT NULL,
	owner_id              STRING NOT NULL,
	account_id            STRING NOT NULL,
	category_id           STRING,
	type                  STRING NOT NULL,
	transaction_date      DATE NOT NULL,
	amount                NUMERIC NOT NULL,
	amount_minor          INT64 NOT NULL,
	currency              STRING NOT NULL,
	description           STRING,
	tags                  ARRAY<STRING>,
	asset_symbol          STRING,
	units                 STRING,
	is_template           BOOL,
	recurrence_parent_id  STRING,
	scheduled_for         DATE,
	effective             BOOL,
	created_ts            TIMESTAMP NOT NULL,
	exported_ts           TIMESTAMP NOT NULL
)
PARTITION BY transaction_date
CLUSTER BY owner_id, account_id`

// TableDDL renders the mirror table definition for a project, dataset and table.
func TableDDL(project, dataset, table string) string {
	return strings.NewReplacer(
		"{{PROJECT_ID}}", project,
		"{{DATASET_ID}}", dataset,
		"{{TABLE}}", table,
	).Replace(transactionsTableDDL)
}
