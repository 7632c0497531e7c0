package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dvloznov/finance-ledger/internal/config"
	infraBQ "github.com/dvloznov/finance-ledger/internal/infra/bigquery"
	"github.com/dvloznov/finance-ledger/internal/store/sqlite"
)

var (
	dbPath    = flag.String("db", "", "SQLite ledger path (defaults to LEDGER_DB_PATH)")
	appliedBy = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	status    = flag.Bool("status", false, "Print migration status without applying anything")
	withBQ    = flag.Bool("bigquery", false, "Also create the BigQuery export table (requires BQ_PROJECT)")
)

func main() {
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dbPath != "" {
		cfg.Store.DBPath = *dbPath
	}

	db, err := sqlite.Connect(ctx, cfg.Store.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to SQLite database: %s", cfg.Store.DBPath)

	if *status {
		if err := printStatus(ctx, os.Stdout, db); err != nil {
			log.Fatalf("Failed to read migration status: %v", err)
		}
		return
	}

	migrations, err := sqlite.Migrations()
	if err != nil {
		log.Fatalf("Failed to read migrations: %v", err)
	}
	log.Printf("Found %d migration files", len(migrations))

	count, err := sqlite.Migrate(ctx, db, *appliedBy)
	if err != nil {
		log.Fatalf("Failed after applying %d migration(s): %v", count, err)
	}
	if count == 0 {
		log.Println("No new migrations to apply. Database is up to date.")
	} else {
		log.Printf("Successfully applied %d migration(s)", count)
	}

	if *withBQ {
		if !cfg.BigQuery.Enabled() {
			log.Fatal("Error: -bigquery requires BQ_PROJECT to be set")
		}
		exp, err := infraBQ.NewExporter(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset, cfg.BigQuery.Table)
		if err != nil {
			log.Fatalf("Failed to create BigQuery client: %v", err)
		}
		defer exp.Close()

		if err := exp.EnsureTable(ctx); err != nil {
			log.Fatalf("Failed to ensure export table: %v", err)
		}
		log.Printf("Export table %s.%s.%s is ready", cfg.BigQuery.Project, cfg.BigQuery.Dataset, cfg.BigQuery.Table)
	}
}

// printStatus writes one line per known migration with its applied state.
func printStatus(ctx context.Context, w io.Writer, db *sql.DB) error {
	migrations, err := sqlite.Migrations()
	if err != nil {
		return err
	}
	applied, err := sqlite.AppliedMigrations(ctx, db)
	if err != nil {
		return err
	}

	byVersion := make(map[int]sqlite.AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	for _, m := range migrations {
		am, ok := byVersion[m.Version]
		switch {
		case !ok:
			fmt.Fprintf(w, "  [PENDING] %04d_%s\n", m.Version, m.Name)
		case am.Checksum != m.Checksum:
			fmt.Fprintf(w, "  [CHANGED] %04d_%s (applied %s by %s)\n", m.Version, m.Name, am.AppliedAt.Format("2006-01-02 15:04"), am.AppliedBy)
		default:
			fmt.Fprintf(w, "  [OK]      %04d_%s (applied %s by %s)\n", m.Version, m.Name, am.AppliedAt.Format("2006-01-02 15:04"), am.AppliedBy)
		}
	}
	return nil
}
