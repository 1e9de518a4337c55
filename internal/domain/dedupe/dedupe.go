// Package dedupe enforces area id uniqueness within a single input table.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen area ids so repeated rows can be rejected.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets an id. Used when a row was recorded but then rejected
	// for another reason, so a later corrected row with the same id is kept.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps every id for the lifetime of the run. Tables are
// fully materialized, so there is no eviction.
type inMemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
	size atomic.Int64
}

// NewInMemoryDeduper creates a deduper sized for the expected row count.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}
	d.seen = make(map[string]struct{}, max(cfg.expectedSize, 0))
	return d
}

// SeenAndRecord atomically checks if id was seen and records it if not.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}
	d.seen[id] = struct{}{}
	d.size.Add(1)
	return false
}

// Unrecord removes id from the seen set.
func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		delete(d.seen, id)
		d.size.Add(-1)
	}
}

// Size returns the current number of recorded ids.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
