// Package memory provides an ephemeral event log backend. Records are kept
// in a slice and lost when the process exits, which makes it the backend
// that supports restarting the log from scratch.
package memory

import (
	"context"
	"sync"

	"github.com/rhuss/evileye/pkg/eventlog"
	"github.com/rhuss/evileye/pkg/storage"
)

// Store is an in-memory event log backend.
type Store struct {
	mu      sync.RWMutex
	records []storage.Record
	closed  bool
}

// Ensure Store implements eventlog.Backend at compile time.
var _ eventlog.Backend = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{}
}

// Append stores rec. The position must be exactly one past the last record.
func (s *Store) Append(_ context.Context, rec storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	if rec.Position != int64(len(s.records))+1 {
		return storage.ErrConflict
	}

	s.records = append(s.records, rec)
	return nil
}

// Load calls fn for every record in position order. It iterates over a
// snapshot, so fn may append.
func (s *Store) Load(ctx context.Context, fn func(storage.Record) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return storage.ErrClosed
	}
	snapshot := make([]storage.Record, len(s.records))
	copy(snapshot, s.records)
	s.mu.RUnlock()

	for _, rec := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Reset discards all records.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	s.records = nil
	return nil
}

// Durable reports false: nothing survives the process.
func (s *Store) Durable() bool {
	return false
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close marks the store closed. Further calls fail with storage.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = nil
	return nil
}
