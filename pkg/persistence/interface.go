package persistence

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("not found")

// KV is the narrow persistence port the gateway stores thread snapshots
// through. Implementations only need opaque key-value semantics; the
// caller owns serialization.
type KV interface {
	// Get retrieves the value stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every key in this store's namespace.
	Clear(ctx context.Context) error

	// Health checks if the backing store is reachable.
	Health(ctx context.Context) error

	// Close releases resources held by the backing store.
	Close() error
}

// ThreadKey returns the storage key for a thread snapshot.
func ThreadKey(threadID string) string {
	return "thread:" + threadID
}
