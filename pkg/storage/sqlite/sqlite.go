// Package sqlite provides a durable event log backend stored in a single
// SQLite file. It uses the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rhuss/evileye/pkg/eventlog"
	"github.com/rhuss/evileye/pkg/storage"
)

//go:embed schema.sql
var schemaSQL string

// Store is a SQLite-backed event log.
type Store struct {
	db *sql.DB
}

// Ensure Store implements eventlog.Backend at compile time.
var _ eventlog.Backend = (*Store)(nil)

// Open creates or opens the event log file at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("event log path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// One writer keeps positions contiguous without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Append inserts rec. The position must be exactly one past the last record.
func (s *Store) Append(ctx context.Context, rec storage.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("begin", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var last int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) FROM events`).Scan(&last); err != nil {
		return s.wrap("read last position", err)
	}
	if rec.Position != last+1 {
		return storage.ErrConflict
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (position, id, type, props, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		rec.Position, rec.ID, rec.Type, string(rec.Props), rec.RecordedAt.UnixNano(),
	)
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrConflict
		}
		return s.wrap("insert event", err)
	}

	return s.wrap("commit", tx.Commit())
}

// Load calls fn for every record in position order.
func (s *Store) Load(ctx context.Context, fn func(storage.Record) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, id, type, props, recorded_at FROM events ORDER BY position`)
	if err != nil {
		return s.wrap("query events", err)
	}

	// Drain before invoking fn so fn may append on the single connection.
	var records []storage.Record
	for rows.Next() {
		var (
			rec      storage.Record
			props    string
			recorded int64
		)
		if err := rows.Scan(&rec.Position, &rec.ID, &rec.Type, &props, &recorded); err != nil {
			rows.Close()
			return fmt.Errorf("scan event: %w", err)
		}
		rec.Props = []byte(props)
		rec.RecordedAt = time.Unix(0, recorded).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate events: %w", err)
	}
	rows.Close()

	for _, rec := range records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Reset deletes all events. The backend is durable, so eventlog.Log refuses
// to call it; it exists for tooling that wipes a stage's log explicitly.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events`)
	return s.wrap("delete events", err)
}

// Durable reports true.
func (s *Store) Durable() bool {
	return true
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%s: %w", op, storage.ErrClosed)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
