// Package dedup rejects re-delivered inbound events.
package dedup

import (
	"sync"
)

// DefaultCapacity is the number of recent event ids remembered.
const DefaultCapacity = 1000

// Deduplicator is a bounded set of recently seen event ids. Once full,
// inserting a new id evicts the oldest one. Lookups never refresh an
// id's position.
type Deduplicator struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	ring     []string
	next     int
	capacity int
}

// New creates a deduplicator holding at most capacity ids. A non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *Deduplicator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Deduplicator{
		seen:     make(map[string]struct{}, capacity),
		ring:     make([]string, 0, capacity),
		capacity: capacity,
	}
}

// Observe returns true the first time id is seen and false on any repeat
// while id is still remembered. Empty ids are always processed and never
// remembered.
func (d *Deduplicator) Observe(id string) bool {
	if id == "" {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return false
	}

	if len(d.ring) < d.capacity {
		d.ring = append(d.ring, id)
	} else {
		delete(d.seen, d.ring[d.next])
		d.ring[d.next] = id
		d.next = (d.next + 1) % d.capacity
	}
	d.seen[id] = struct{}{}
	return true
}

// Len returns the number of remembered ids.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Capacity returns the configured window size.
func (d *Deduplicator) Capacity() int {
	return d.capacity
}
