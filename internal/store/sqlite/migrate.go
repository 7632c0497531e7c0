package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"time"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrationPattern matches migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration represents a single migration file.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// Migrations returns the embedded migrations sorted by version.
func Migrations() ([]Migration, error) {
	return readMigrations(migrationFiles, "migrations")
}

func readMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m, ok, err := parseMigration(fsys, dir, entry.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			migrations = append(migrations, m)
		}
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func parseMigration(fsys fs.FS, dir, filename string) (Migration, bool, error) {
	matches := migrationPattern.FindStringSubmatch(filename)
	if matches == nil {
		return Migration{}, false, nil
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return Migration{}, false, nil
	}

	content, err := fs.ReadFile(fsys, dir+"/"+filename)
	if err != nil {
		return Migration{}, false, fmt.Errorf("reading file %s: %w", filename, err)
	}

	return Migration{
		Version:  version,
		Name:     matches[2],
		Filename: filename,
		SQL:      string(content),
		Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
	}, true, nil
}

const schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     INTEGER PRIMARY KEY,
    name        TEXT NOT NULL,
    applied_at  TEXT NOT NULL,
    checksum    TEXT NOT NULL,
    applied_by  TEXT NOT NULL
)`

// AppliedMigrations lists migrations recorded in schema_migrations.
func AppliedMigrations(ctx context.Context, db *sql.DB) ([]AppliedMigration, error) {
	if _, err := db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT version, name, applied_at, checksum, applied_by FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var am AppliedMigration
		var appliedAt string
		if err := rows.Scan(&am.Version, &am.Name, &appliedAt, &am.Checksum, &am.AppliedBy); err != nil {
			return nil, fmt.Errorf("scanning applied migration: %w", err)
		}
		am.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt)
		applied = append(applied, am)
	}
	return applied, rows.Err()
}

// Migrate applies pending embedded migrations, each in its own transaction,
// and returns how many ran. It fails if an applied migration's file changed.
func Migrate(ctx context.Context, db *sql.DB, appliedBy string) (int, error) {
	migrations, err := Migrations()
	if err != nil {
		return 0, err
	}
	return apply(ctx, db, migrations, appliedBy)
}

func apply(ctx context.Context, db *sql.DB, migrations []Migration, appliedBy string) (int, error) {
	applied, err := AppliedMigrations(ctx, db)
	if err != nil {
		return 0, err
	}
	checksums := make(map[int]string, len(applied))
	for _, am := range applied {
		checksums[am.Version] = am.Checksum
	}

	count := 0
	for _, m := range migrations {
		if sum, ok := checksums[m.Version]; ok {
			if sum != m.Checksum {
				return count, fmt.Errorf("migration %04d_%s was modified after being applied", m.Version, m.Name)
			}
			continue
		}

		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("executing %s: %w", m.Filename, err)
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name, applied_at, checksum, applied_by) VALUES (?, ?, ?, ?, ?)`,
				m.Version, m.Name, time.Now().UTC().Format(time.RFC3339), m.Checksum, appliedBy)
			if err != nil {
				return fmt.Errorf("recording %s: %w", m.Filename, err)
			}
			return nil
		})
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
