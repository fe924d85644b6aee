package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type snapshotEntry struct {
	blob      []byte
	createdAt time.Time
}

// Memory is a process-local Store. Snapshots older than the configured
// TTL are treated as missing.
type Memory struct {
	mu        sync.RWMutex
	kv        map[string][]byte
	snapshots map[string]snapshotEntry
	ttl       time.Duration
	now       func() time.Time
}

// NewMemory creates an in-memory store. A zero ttl keeps snapshots forever.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		kv:        make(map[string][]byte),
		snapshots: make(map[string]snapshotEntry),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Put stores a copy of value under key.
func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = append([]byte(nil), value...)
	return nil
}

// Get returns the value stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.kv[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Exists reports whether key is present.
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.kv[key]
	return ok, nil
}

// Delete removes key. Missing keys are not an error.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	return nil
}

// PutSnapshot stores blob under id. Rewriting an existing id is rejected.
func (m *Memory) PutSnapshot(_ context.Context, id string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[id]; ok {
		return fmt.Errorf("snapshot %s: %w", id, ErrExists)
	}
	m.snapshots[id] = snapshotEntry{blob: append([]byte(nil), blob...), createdAt: m.now()}
	return nil
}

// GetSnapshot returns the blob stored under id.
func (m *Memory) GetSnapshot(_ context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.snapshots[id]
	if !ok {
		return nil, ErrNotFound
	}
	if m.ttl > 0 && m.now().Sub(e.createdAt) > m.ttl {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.blob...), nil
}

// DeleteSnapshot removes id. Missing snapshots are not an error.
func (m *Memory) DeleteSnapshot(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, id)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

// SetClock replaces the time source. Used by tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
