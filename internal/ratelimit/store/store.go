// Package store provides per-key timestamp storage for the sliding-window
// rate limiter.
package store

import (
	"context"
	"errors"
	"time"
)

// UpdateFunc receives the timestamps currently stored for a key and returns
// the timestamps to store. Returning an empty slice removes the key.
// Returning an error aborts the update and leaves the key unchanged.
type UpdateFunc func(current []time.Time) ([]time.Time, error)

// Store defines the interface for rate limit storage.
type Store interface {
	// Get returns the timestamps stored for key. A missing key yields an
	// empty slice.
	Get(ctx context.Context, key string) ([]time.Time, error)

	// Put replaces the timestamps for key and sets its time to live.
	Put(ctx context.Context, key string, stamps []time.Time, ttl time.Duration) error

	// Update runs fn and stores its result atomically with respect to other
	// operations on the same key, and returns what was stored.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) ([]time.Time, error)

	// Delete removes the key from the store.
	Delete(ctx context.Context, key string) error

	// Close closes the store and releases resources.
	Close() error
}

// Pinger is implemented by stores that can report whether their backend is
// reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sentinel errors for store operations.
var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrConflict is returned when an optimistic update keeps losing races.
	ErrConflict = errors.New("store update conflict")

	// ErrStoreUnavailable is returned while the circuit breaker is open.
	ErrStoreUnavailable = errors.New("store unavailable")
)

func cloneStamps(stamps []time.Time) []time.Time {
	if len(stamps) == 0 {
		return []time.Time{}
	}
	out := make([]time.Time, len(stamps))
	copy(out, stamps)
	return out
}
