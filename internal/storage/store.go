// Package storage persists purchase records and the device-local
// key-value slots (PIN credential) behind small capability interfaces,
// with a durable SQLite implementation and an in-memory one for tests
// and the memory backend.
package storage

import (
	"context"
	"errors"

	"kopilka/internal/core"
)

var (
	// ErrNotFound is returned when a record or setting identity does not
	// resolve to a stored row.
	ErrNotFound = errors.New("not found")
)

// RecordStore is the contract every backend must satisfy. Each operation
// is one atomic unit of work: a mutation either commits fully before the
// call returns or leaves no partial write behind.
type RecordStore interface {
	// GetAll returns the full record set.
	GetAll(ctx context.Context) ([]core.Record, error)

	// Get returns the record with the given identity or ErrNotFound.
	Get(ctx context.Context, id int64) (core.Record, error)

	// Add stores a new record and returns its assigned identity.
	// Identities ascend monotonically and are never reused.
	Add(ctx context.Context, r core.Record) (int64, error)

	// Put replaces the record with r.ID field-for-field. ErrNotFound when
	// the identity does not exist.
	Put(ctx context.Context, r core.Record) error

	// Delete removes the record with the given identity. Deleting an
	// unknown identity is a no-op, not an error.
	Delete(ctx context.Context, id int64) error
}

// KeyValueStore is the durable slot store backing the access gate
// credential. Values are opaque strings.
type KeyValueStore interface {
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key, value string) error
}
