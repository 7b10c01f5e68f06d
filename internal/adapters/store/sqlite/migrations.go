package sqlite

import (
	"database/sql"
	"fmt"
)

// migration is one forward-only schema step.
type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{1, "create_offline_actions_table", createOfflineActionsTable},
	{2, "create_offline_actions_indices", createOfflineActionsIndices},
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// applyMigrations brings db up to the latest schema version.
func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(createMigrationsTable); err != nil {
		return fmt.Errorf("could not create migrations table: %w", err)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := runMigration(db, m); err != nil {
			return err
		}
	}
	return nil
}

func appliedVersions(db *sql.DB) (map[int]bool, error) {
	rows, err := db.Query("SELECT version FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("could not read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("could not read applied migrations: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// runMigration applies m and records it in one transaction.
func runMigration(db *sql.DB, m migration) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migration %d: begin: %w", m.version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(m.sql); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
	}
	if _, err = tx.Exec("INSERT INTO migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
		return fmt.Errorf("migration %d: record: %w", m.version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("migration %d: commit: %w", m.version, err)
	}
	return nil
}

// created_at and updated_at hold Unix nanoseconds so FIFO order survives
// actions queued within the same second.
const createOfflineActionsTable = `
CREATE TABLE offline_actions (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	data TEXT NOT NULL DEFAULT '{}',
	metadata TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

const createOfflineActionsIndices = `
CREATE INDEX IF NOT EXISTS idx_offline_actions_status_created ON offline_actions(status, created_at);
CREATE INDEX IF NOT EXISTS idx_offline_actions_type ON offline_actions(type);
`
