package cache

import (
	"fmt"

	"xtts-server-go/internal/platform/config"
)

// New creates a result cache based on the provided configuration. Returns
// nil when caching is disabled.
func New(cfg config.CacheConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	driver := cfg.Type
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemory(cfg.TTL), nil
	case DriverRedis:
		return NewRedis(cfg)
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", driver)
	}
}
