package cache

import "context"

// Driver identifiers supported by the result cache.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Store maps a request fingerprint to the path of a previously generated
// audio file. A hit lets the gateway return the stored file instead of
// synthesizing again.
type Store interface {
	// Get returns the cached output path for key, if present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set records the output path produced for key.
	Set(ctx context.Context, key, path string) error

	// Delete evicts one entry.
	Delete(ctx context.Context, key string) error

	Close() error
}
