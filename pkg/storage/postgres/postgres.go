// Package postgres provides a durable event log backend on PostgreSQL.
// It uses pgx/v5 for connection pooling and JSONB for event props.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/evileye/pkg/eventlog"
	"github.com/rhuss/evileye/pkg/logging"
	"github.com/rhuss/evileye/pkg/storage"
)

// Store is a PostgreSQL-backed event log.
type Store struct {
	pool   *pgxpool.Pool
	logger *logging.Logger
	closed atomic.Bool
}

// Ensure Store implements eventlog.Backend at compile time.
var _ eventlog.Backend = (*Store)(nil)

// New connects to PostgreSQL and applies pending migrations.
func New(ctx context.Context, cfg Config, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Append inserts rec inside a transaction that locks the table, so
// concurrent writers from other processes cannot interleave positions.
func (s *Store) Append(ctx context.Context, rec storage.Record) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "LOCK TABLE events IN SHARE ROW EXCLUSIVE MODE"); err != nil {
			return fmt.Errorf("locking events: %w", err)
		}

		var last int64
		if err := tx.QueryRow(ctx, "SELECT COALESCE(MAX(position), 0) FROM events").Scan(&last); err != nil {
			return fmt.Errorf("reading last position: %w", err)
		}
		if rec.Position != last+1 {
			return storage.ErrConflict
		}

		_, err := tx.Exec(ctx,
			"INSERT INTO events (position, id, type, props, recorded_at) VALUES ($1, $2, $3, $4, $5)",
			rec.Position, rec.ID, rec.Type, []byte(rec.Props), rec.RecordedAt,
		)
		if err != nil {
			if isDuplicateKey(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("inserting event: %w", err)
		}
		return nil
	})
}

// Load calls fn for every record in position order.
func (s *Store) Load(ctx context.Context, fn func(storage.Record) error) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}

	rows, err := s.pool.Query(ctx,
		"SELECT position, id, type, props, recorded_at FROM events ORDER BY position")
	if err != nil {
		return fmt.Errorf("querying events: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.Record, error) {
		var (
			rec   storage.Record
			props []byte
		)
		err := row.Scan(&rec.Position, &rec.ID, &rec.Type, &props, &rec.RecordedAt)
		rec.Props = props
		return rec, err
	})
	if err != nil {
		return fmt.Errorf("scanning events: %w", err)
	}

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
	if s.closed.Load() {
		return storage.ErrClosed
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM events"); err != nil {
		return fmt.Errorf("deleting events: %w", err)
	}
	return nil
}

// Durable reports true.
func (s *Store) Durable() bool {
	return true
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.pool.Close()
	return nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
