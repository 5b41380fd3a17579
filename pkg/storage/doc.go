// Package storage holds the types shared by event log backends: the
// persisted event record and sentinel errors.
//
// Backends (memory, sqlite, postgres) implement eventlog.Backend. This
// package contains only shared types, not the interface itself.
package storage
