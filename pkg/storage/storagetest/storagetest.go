// Package storagetest provides a conformance suite for event log backends.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rhuss/evileye/pkg/eventlog"
	"github.com/rhuss/evileye/pkg/storage"
)

// Record builds a record at pos with a small JSON payload.
func Record(pos int64, typ string) storage.Record {
	props, _ := json.Marshal(map[string]any{"n": pos})
	return storage.Record{
		ID:         fmt.Sprintf("evt_%s_%d", typ, pos),
		Position:   pos,
		Type:       typ,
		Props:      props,
		RecordedAt: time.Unix(1700000000+pos, 0).UTC(),
	}
}

// Run exercises the Backend contract against backends produced by open.
func Run(t *testing.T, open func(t *testing.T) eventlog.Backend) {
	t.Run("AppendAndLoadInOrder", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()

		for i, typ := range []string{"UserAdded", "UserRenamed", "UserAdded"} {
			if err := b.Append(ctx, Record(int64(i+1), typ)); err != nil {
				t.Fatalf("Append(%d) failed: %v", i+1, err)
			}
		}

		var got []storage.Record
		if err := b.Load(ctx, func(rec storage.Record) error {
			got = append(got, rec)
			return nil
		}); err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if len(got) != 3 {
			t.Fatalf("loaded %d records, want 3", len(got))
		}
		for i, rec := range got {
			if rec.Position != int64(i+1) {
				t.Errorf("record %d position = %d, want %d", i, rec.Position, i+1)
			}
		}
		if got[1].Type != "UserRenamed" {
			t.Errorf("record 2 type = %q, want UserRenamed", got[1].Type)
		}

		var props map[string]any
		if err := json.Unmarshal(got[2].Props, &props); err != nil {
			t.Fatalf("props are not JSON: %v", err)
		}
		if props["n"] != float64(3) {
			t.Errorf("props = %v, want n=3", props)
		}
		if !got[0].RecordedAt.Equal(time.Unix(1700000001, 0)) {
			t.Errorf("RecordedAt = %v, want round trip", got[0].RecordedAt)
		}
	})

	t.Run("RejectsPositionGap", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()

		if err := b.Append(ctx, Record(1, "A")); err != nil {
			t.Fatalf("Append(1) failed: %v", err)
		}
		if err := b.Append(ctx, Record(1, "B")); !errors.Is(err, storage.ErrConflict) {
			t.Errorf("duplicate position: err = %v, want ErrConflict", err)
		}
		if err := b.Append(ctx, Record(3, "C")); !errors.Is(err, storage.ErrConflict) {
			t.Errorf("gap: err = %v, want ErrConflict", err)
		}
	})

	t.Run("LoadStopsOnCallbackError", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		for i := int64(1); i <= 3; i++ {
			if err := b.Append(ctx, Record(i, "A")); err != nil {
				t.Fatalf("Append(%d) failed: %v", i, err)
			}
		}

		stop := errors.New("stop")
		calls := 0
		err := b.Load(ctx, func(storage.Record) error {
			calls++
			return stop
		})
		if !errors.Is(err, stop) {
			t.Errorf("Load error = %v, want callback error", err)
		}
		if calls != 1 {
			t.Errorf("callback ran %d times, want 1", calls)
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		if err := b.Append(ctx, Record(1, "A")); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if err := b.Reset(ctx); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}

		n := 0
		if err := b.Load(ctx, func(storage.Record) error { n++; return nil }); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if n != 0 {
			t.Errorf("loaded %d records after reset, want 0", n)
		}
		if err := b.Append(ctx, Record(1, "A")); err != nil {
			t.Errorf("Append at position 1 after reset failed: %v", err)
		}
	})
}
