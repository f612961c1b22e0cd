package journal

import (
	"database/sql"
	"fmt"
)

// migration is one forward-only schema step
type migration struct {
	Version     string
	Description string
	SQL         string
}

// FUNCTIONAL DISCOVERY: seq gives a total order for entries written within the same timestamp
var migrations = []migration{
	{
		Version:     "001",
		Description: "journal entries",
		SQL: `
			CREATE TABLE IF NOT EXISTS journal_entries (
				seq           INTEGER PRIMARY KEY AUTOINCREMENT,
				id            TEXT NOT NULL UNIQUE,
				class_code    TEXT NOT NULL,
				kind          TEXT NOT NULL,
				connection_id TEXT NOT NULL DEFAULT '',
				detail        TEXT,
				at            DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_journal_class_seq ON journal_entries(class_code, seq);
		`,
	},
	{
		Version:     "002",
		Description: "journal kind index",
		SQL:         `CREATE INDEX IF NOT EXISTS idx_journal_kind ON journal_entries(kind);`,
	},
}

// applyMigrations brings the schema up to date
// ARCHITECTURAL DISCOVERY: Each migration runs in its own transaction together with its
// schema_migrations row, so a failed step leaves no partial state
func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	_ = rows.Close()

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %s: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply migration %s (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}
	}

	return nil
}
