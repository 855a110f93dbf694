package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one embedded DDL file.
type Migration struct {
	Name    string // file name without extension
	Version int    // applied in ascending order
	SQL     string
}

// registry lists migrations in the order they must be applied.
// Append new entries; never renumber existing ones.
var registry = []Migration{
	{Name: "settings", Version: 1},
	{Name: "llm_calls", Version: 2},
}

// All returns every migration with its SQL loaded, in version order.
func All() ([]Migration, error) {
	migrations := make([]Migration, len(registry))
	copy(migrations, registry)

	for i := range migrations {
		content, err := migrationFS.ReadFile(fmt.Sprintf("migrations/%s.sql", migrations[i].Name))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", migrations[i].Name, err)
		}
		migrations[i].SQL = string(content)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Latest is the schema version after all migrations are applied.
func Latest() int {
	latest := 0
	for _, m := range registry {
		if m.Version > latest {
			latest = m.Version
		}
	}
	return latest
}

// Initialize applies pending migrations. Safe to call on every start.
func Initialize(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	migrations, err := All()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	current, err := Version(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return err
		}
		logger.Info("migration applied", "name", m.Name, "version", m.Version)
	}
	return nil
}

// Version returns the highest applied migration version, or 0.
func Version(ctx context.Context, db *sql.DB) (int, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRowContext(ctx, `SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", m.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to apply migration %s: %w", m.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.Version); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.Name, err)
	}
	return tx.Commit()
}
