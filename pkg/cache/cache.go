// Package cache stores expensive intermediate results between runs.
//
// Rule indices and basins are costly to build for large page stores and are
// fully determined by the store fingerprint and their parameters, so they
// are cached by content-derived keys (see [Keyer]). The [Cache] interface is
// a plain byte store with optional TTL; backends:
//
//   - [FileCache]: one file per entry under a directory (CLI default)
//   - [BadgerCache]: embedded BadgerDB, for large local indices
//   - [RedisCache]: shared cache for several workers on one machine
//   - [NullCache]: disables caching
package cache

import (
	"context"
	"time"
)

// Default TTLs per entry kind. Zero means no expiry.
const (
	TTLIndex     time.Duration = 0
	TTLTerminals time.Duration = 0
	TTLBasin                   = 7 * 24 * time.Hour
)

// Cache is a byte store keyed by string.
type Cache interface {
	// Get returns the stored value and true, or false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

// Clearer is implemented by caches that can drop every entry at once.
type Clearer interface {
	Clear(ctx context.Context) error
}
