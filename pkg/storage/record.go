package storage

import (
	"encoding/json"
	"time"
)

// Record is a single persisted event. Positions start at 1 and are
// contiguous.
type Record struct {
	ID         string
	Position   int64
	Type       string
	Props      json.RawMessage
	RecordedAt time.Time
}
