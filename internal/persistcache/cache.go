// Package persistcache provides a lazy-loaded, write-through cache over a
// single durable record.
package persistcache

import (
	"context"
	"fmt"
	"sync"
)

// LoadFunc fetches the record from durable storage. found=false means the
// record is absent, which is a normal condition, not an error.
type LoadFunc[T any] func(ctx context.Context) (value T, found bool, err error)

// SaveFunc writes the record to durable storage.
type SaveFunc[T any] func(ctx context.Context, value T) error

// Cache caches one durable record in memory. The loader runs at most once:
// concurrent first readers block on the same load rather than issuing
// redundant I/O. Writes go through to storage before updating memory.
//
// "loaded" and "has a value" are tracked independently: storing an absent
// value does not mark the cache unloaded, so it never forces a redundant
// reload on the next read.
type Cache[T any] struct {
	load LoadFunc[T]
	save SaveFunc[T]

	mu       sync.Mutex
	loaded   bool
	hasValue bool
	value    T
}

// New creates a cache backed by the given load and save functions.
func New[T any](load LoadFunc[T], save SaveFunc[T]) *Cache[T] {
	return &Cache[T]{load: load, save: save}
}

// Get returns the cached value, loading it from storage on first access.
// found=false means neither memory nor storage holds a value.
func (c *Cache[T]) Get(ctx context.Context) (T, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		v, found, err := c.load(ctx)
		if err != nil {
			var zero T
			return zero, false, fmt.Errorf("loading record: %w", err)
		}
		c.loaded = true
		c.hasValue = found
		if found {
			c.value = v
		}
	}
	return c.value, c.hasValue, nil
}

// Set writes the value through to storage and updates the in-memory copy.
// The cache is marked loaded either way, so a later Get never re-reads
// storage behind a successful Set.
func (c *Cache[T]) Set(ctx context.Context, v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.save(ctx, v); err != nil {
		return fmt.Errorf("saving record: %w", err)
	}
	c.loaded = true
	c.hasValue = true
	c.value = v
	return nil
}
