package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"

	"classlock/pkg/types"
)

// SQLiteJournal appends session events to a local SQLite file
type SQLiteJournal struct {
	db     *sql.DB
	writer *asyncWriter
}

// NewSQLite opens (or creates) the journal database at path and applies migrations
func NewSQLite(path string, buffer int, logger *slog.Logger) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &SQLiteJournal{db: db}
	j.writer = newAsyncWriter(buffer, j.insert, logger.With("component", "journal", "driver", "sqlite"))
	return j, nil
}

// Record queues an entry without blocking
func (j *SQLiteJournal) Record(ctx context.Context, entry types.JournalEntry) error {
	return j.writer.enqueue(entry)
}

func (j *SQLiteJournal) insert(ctx context.Context, entry types.JournalEntry) error {
	var detail sql.NullString
	if len(entry.Detail) > 0 {
		detail = sql.NullString{String: string(entry.Detail), Valid: true}
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO journal_entries (id, class_code, kind, connection_id, detail, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.ClassCode, entry.Kind, entry.ConnectionID, detail, entry.At.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	return nil
}

// History returns up to limit of the most recent entries for a class, oldest first
func (j *SQLiteJournal) History(ctx context.Context, classCode string, limit int) ([]types.JournalEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, class_code, kind, connection_id, detail, at
		FROM journal_entries
		WHERE class_code = ?
		ORDER BY seq DESC
		LIMIT ?
	`, classCode, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []types.JournalEntry
	for rows.Next() {
		var entry types.JournalEntry
		var detail sql.NullString
		if err := rows.Scan(&entry.ID, &entry.ClassCode, &entry.Kind, &entry.ConnectionID, &detail, &entry.At); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		if detail.Valid {
			entry.Detail = []byte(detail.String)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal rows: %w", err)
	}

	reverse(entries)
	return entries, nil
}

// HealthCheck validates database connectivity
func (j *SQLiteJournal) HealthCheck(ctx context.Context) error {
	if err := j.db.PingContext(ctx); err != nil {
		return fmt.Errorf("journal ping failed: %w", err)
	}
	var n int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		return fmt.Errorf("journal read test failed: %w", err)
	}
	return nil
}

// Close flushes queued entries and closes the database
func (j *SQLiteJournal) Close() error {
	if !j.writer.close() {
		return nil
	}
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("failed to close journal database: %w", err)
	}
	return nil
}

// applySQLiteOptimizations applies performance pragmas
func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for concurrent reads
		"PRAGMA synchronous = NORMAL", // Balance safety and performance
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	return nil
}

func reverse(entries []types.JournalEntry) {
	for i, k := 0, len(entries)-1; i < k; i, k = i+1, k-1 {
		entries[i], entries[k] = entries[k], entries[i]
	}
}
