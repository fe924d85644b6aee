// Package store defines the persistence contracts used by the assistant
// and an in-memory implementation.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key or snapshot does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when a snapshot id has already been written.
	ErrExists = errors.New("already exists")
)

// KV holds small per-user records such as profiles and OAuth tokens.
type KV interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Snapshots holds serialized conversation state keyed by snapshot id.
// A snapshot is never modified after it is written: PutSnapshot on an
// existing id fails with ErrExists.
type Snapshots interface {
	PutSnapshot(ctx context.Context, id string, blob []byte) error
	GetSnapshot(ctx context.Context, id string) ([]byte, error)
	DeleteSnapshot(ctx context.Context, id string) error
}

// Store is a backend providing both contracts.
type Store interface {
	KV
	Snapshots
	Close() error
}

// ProfileKey returns the KV key of a user's profile.
func ProfileKey(userID string) string {
	return "profile." + userID
}

// TokenKey returns the KV key of a user's OAuth token for provider.
func TokenKey(provider, userID string) string {
	return "token." + provider + "." + userID
}

// ConsumedKey returns the snapshot id of the marker recording that the
// snapshot id has been resumed.
func ConsumedKey(snapshotID string) string {
	return "consumed." + snapshotID
}
