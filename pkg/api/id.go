package api

import (
	"strings"

	"github.com/google/uuid"
)

const eventIDPrefix = "evt_"

// NewEventID returns "evt_" followed by a version 7 UUID, so ids sort in
// creation order.
func NewEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return eventIDPrefix + id.String()
}

// ValidateEventID reports whether id is an event ID.
func ValidateEventID(id string) bool {
	rest, ok := strings.CutPrefix(id, eventIDPrefix)
	if !ok || len(rest) != 36 {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
