package database

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"
)

// Migrations are forward-only: each is a single .up.sql file named
// VERSION_description.up.sql with VERSION = YYYYMMDD_HHMMSS, applied in
// version order and recorded in schema_migrations. There is no rollback
// path; the schema only ever grows, so an old binary can still read a
// newer database (this is how pre-bucket energy databases stay
// loadable).

var (
	registryMu   sync.Mutex
	migrationsFS fs.FS
)

// RegisterMigrations supplies the migration files, normally called from
// the migrations package's init so a blank import wires them up.
func RegisterMigrations(fsys fs.FS) {
	registryMu.Lock()
	migrationsFS = fsys
	registryMu.Unlock()
}

// migration is one parsed .up.sql file.
type migration struct {
	version string
	name    string
	sql     string
}

// Migrate applies every registered migration that is not yet recorded,
// oldest first, each in its own transaction. A failure stops the run
// after rolling back only the failing migration; re-running Migrate
// resumes from there.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	pending, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if applied[m.version] {
			continue
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating applied migrations: %w", err)
	}
	return applied, nil
}

func (db *DB) applyMigration(ctx context.Context, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}

// loadMigrations reads and sorts the registered .up.sql files. An empty
// registry is fine; Migrate is then a no-op beyond the bookkeeping
// table.
func loadMigrations() ([]migration, error) {
	registryMu.Lock()
	fsys := migrationsFS
	registryMu.Unlock()
	if fsys == nil {
		return nil, nil
	}

	names, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}

	migrations := make([]migration, 0, len(names))
	for _, name := range names {
		version, desc, ok := parseMigrationName(name)
		if !ok {
			return nil, fmt.Errorf("malformed migration filename %q", name)
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		migrations = append(migrations, migration{
			version: version,
			name:    desc,
			sql:     string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})
	return migrations, nil
}

// parseMigrationName splits "20260810_090000_energy_totals.up.sql" into
// version "20260810_090000" and description "energy_totals".
func parseMigrationName(name string) (version, desc string, ok bool) {
	base := strings.TrimSuffix(name, ".up.sql")
	parts := strings.SplitN(base, "_", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[0] + "_" + parts[1], parts[2], true
}
