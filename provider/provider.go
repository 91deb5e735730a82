// Package provider defines the byte store behind pagecache.ByteCache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key. The cache frames its
// values (see internal/wire) and treats anything it cannot decode as corruption.
//
// The ByteCache keeps its own size accounting and LRU order; a provider may
// still drop entries on its own (TTL, memory pressure). Such drops surface as
// misses and the cache self-heals by refetching.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (<= 0 means no expiry). cost is the
	// payload size in bytes; stores without cost accounting ignore it.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort; missing keys are not an error).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
