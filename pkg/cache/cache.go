// Package cache provides a TTL cache for serialized authorization decisions.
//
// Entries are immutable once written; expiry is the only mutation. The
// in-memory backend is the default, the Redis backend lets several proxy
// instances share one decision cache.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values under string keys for a bounded lifetime.
type Cache interface {
	// Get retrieves a value. The second return is false on a miss or after
	// expiry; the error is reserved for backend I/O failures.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value for the given TTL. A zero TTL uses the backend
	// default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Del removes a value.
	Del(ctx context.Context, key string) error
	// Len returns the number of live entries. Backends that cannot count
	// cheaply may return -1.
	Len() int
}
