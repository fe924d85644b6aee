package nats

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/assistant/internal/store"
)

const (
	// ProfileBucket holds profiles, OAuth tokens, and consent states.
	ProfileBucket = "ASSISTANT_KV"

	// SnapshotBucket holds suspended conversation snapshots.
	SnapshotBucket = "ASSISTANT_SNAPSHOTS"
)

// Store implements store.Store on two JetStream KV buckets.
type Store struct {
	client    *Client
	kv        jetstream.KeyValue
	snapshots jetstream.KeyValue
}

var _ store.Store = (*Store)(nil)

// NewStore opens, creating if needed, the KV buckets. A non-zero
// snapshotTTL expires snapshots server side.
func NewStore(ctx context.Context, client *Client, snapshotTTL time.Duration) (*Store, error) {
	kv, err := ensureBucket(ctx, client.JetStream(), jetstream.KeyValueConfig{
		Bucket:      ProfileBucket,
		Description: "User profiles and OAuth tokens",
		History:     1,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, err
	}

	snaps, err := ensureBucket(ctx, client.JetStream(), jetstream.KeyValueConfig{
		Bucket:      SnapshotBucket,
		Description: "Conversation snapshots awaiting authorization",
		History:     1,
		TTL:         snapshotTTL,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, err
	}

	return &Store{client: client, kv: kv, snapshots: snaps}, nil
}

func ensureBucket(ctx context.Context, js jetstream.JetStream, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("failed to open bucket %s: %w", cfg.Bucket, err)
	}

	kv, err = js.CreateKeyValue(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
	}
	return kv, nil
}

// encodeKey maps arbitrary keys onto the KV key charset.
func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func get(ctx context.Context, kv jetstream.KeyValue, key string) ([]byte, error) {
	entry, err := kv.Get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return entry.Value(), nil
}

func del(ctx context.Context, kv jetstream.KeyValue, key string) error {
	err := kv.Delete(ctx, encodeKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return err
	}
	return nil
}

// Put stores value under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(ctx, encodeKey(key), value); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return get(ctx, s.kv, key)
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := get(ctx, s.kv, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return del(ctx, s.kv, key)
}

// PutSnapshot writes blob under id. Existing snapshots are never
// overwritten.
func (s *Store) PutSnapshot(ctx context.Context, id string, blob []byte) error {
	if _, err := s.snapshots.Create(ctx, encodeKey(id), blob); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("failed to write snapshot %s: %w", id, store.ErrExists)
		}
		return fmt.Errorf("failed to write snapshot %s: %w", id, err)
	}
	return nil
}

// GetSnapshot returns the blob stored under id.
func (s *Store) GetSnapshot(ctx context.Context, id string) ([]byte, error) {
	return get(ctx, s.snapshots, id)
}

// DeleteSnapshot removes id.
func (s *Store) DeleteSnapshot(ctx context.Context, id string) error {
	return del(ctx, s.snapshots, id)
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}
