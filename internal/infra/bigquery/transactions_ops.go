package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

// Exporter streams posted transactions into the mirror table. It holds a
// shared client so each export does not open a new connection.
type Exporter struct {
	client  *bigquery.Client
	project string
	dataset string
	table   string
	now     func() time.Time
}

// NewExporter creates an Exporter with its own BigQuery client.
func NewExporter(ctx context.Context, project, dataset, table string) (*Exporter, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewExporter: creating client: %w", err)
	}
	return NewExporterWithClient(client, dataset, table), nil
}

// NewExporterWithClient creates an Exporter around an existing client.
func NewExporterWithClient(client *bigquery.Client, dataset, table string) *Exporter {
	return &Exporter{
		client:  client,
		project: client.Project(),
		dataset: dataset,
		table:   table,
		now:     time.Now,
	}
}

// Close closes the BigQuery client connection.
func (e *Exporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Export implements ledger.Exporter.
func (e *Exporter) Export(ctx context.Context, tx *domain.Transaction) error {
	return InsertTransactionsWithClient(ctx, e.client, e.dataset, e.table, []*TransactionRow{NewTransactionRow(tx, e.now())})
}

// InsertTransactionsWithClient streams rows into dataset.table. The
// transaction id is the insert id, so a retried export is deduplicated
// by BigQuery's best-effort streaming dedupe.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, dataset, table string, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	savers := make([]*bigquery.StructSaver, 0, len(rows))
	for _, r := range rows {
		savers = append(savers, &bigquery.StructSaver{Struct: r, InsertID: r.TransactionID})
	}

	inserter := client.Dataset(dataset).Table(table).Inserter()
	if err := inserter.Put(ctx, savers); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}
	return nil
}

// ListExported returns the owner's mirrored rows dated within [from, to].
func (e *Exporter) ListExported(ctx context.Context, ownerID string, from, to time.Time) ([]*TransactionRow, error) {
	q := e.client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			owner_id,
			account_id,
			category_id,
			type,
			transaction_date,
			amount,
			amount_minor,
			currency,
			description,
			tags,
			asset_symbol,
			units,
			is_template,
			recurrence_parent_id,
			scheduled_for,
			effective,
			created_ts,
			exported_ts
		FROM `+"`%s.%s.%s`"+`
		WHERE owner_id = @owner_id
		  AND transaction_date >= @start_date
		  AND transaction_date <= @end_date
		ORDER BY transaction_date, created_ts
	`, e.project, e.dataset, e.table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
		{Name: "start_date", Value: civil.DateOf(domain.Day(from))},
		{Name: "end_date", Value: civil.DateOf(domain.Day(to))},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListExported: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListExported: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

// EnsureTable creates the mirror table when it does not exist yet.
func (e *Exporter) EnsureTable(ctx context.Context) error {
	job, err := e.client.Query(TableDDL(e.project, e.dataset, e.table)).Run(ctx)
	if err != nil {
		return fmt.Errorf("EnsureTable: running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("EnsureTable: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("EnsureTable: job error: %w", err)
	}
	return nil
}
